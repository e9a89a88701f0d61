// Package notification stores reminders and messages addressed to a dynamic
// list and delivers them when their send date arrives: calendar entries go
// into each recipient's calendar and an email goes out to the list.
package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	ResourceType      = "myberkeley/notification"
	StoreName         = "_myberkeley_notificationstore"
	StoreResourceType = "myberkeley/notificationstore"
)

// Property names of a stored notification.
const (
	PropID             = "id"
	PropSenderID       = "senderID"
	PropSendDate       = "sendDate"
	PropSendState      = "sendState"
	PropMessageBox     = "sakai:messagebox"
	PropMessageStore   = "sakai:messagestore"
	PropDynamicListID  = "dynamicListID"
	PropCalendarWrap   = "calendarWrapper"
	PropCategory       = "category"
	PropUXState        = "uxState"
	PropEmailMessageID = "emailMessageID"
	PropType           = "type"
	PropSubject        = "subject"
	PropBody           = "body"
)

type SendState string

const (
	SendStatePending SendState = "pending"
	SendStateSent    SendState = "sent"
)

type MessageBox string

const (
	BoxDrafts  MessageBox = "drafts"
	BoxQueue   MessageBox = "queue"
	BoxArchive MessageBox = "archive"
	BoxTrash   MessageBox = "trash"
)

// ParseMessageBox returns the box named s.
func ParseMessageBox(s string) (MessageBox, error) {
	switch b := MessageBox(s); b {
	case BoxDrafts, BoxQueue, BoxArchive, BoxTrash:
		return b, nil
	}
	return "", fmt.Errorf("unknown message box %q", s)
}

type Category string

const (
	// CategoryReminder is a task or event put into each recipient's calendar.
	CategoryReminder Category = "reminder"
	// CategoryMessage is a message that may also be emailed.
	CategoryMessage Category = "message"
)

type Type string

const (
	TypeCalendar Type = "calendar"
	TypeMessage  Type = "message"
)

// Notification is a message to every member of a dynamic list. Calendar
// notifications carry Wrapper; message notifications carry Subject and Body.
type Notification struct {
	ID             uuid.UUID
	SenderID       string
	SendDate       time.Time
	SendState      SendState
	MessageBox     MessageBox
	DynamicListID  string
	Category       Category
	UXState        map[string]any
	EmailMessageID string
	Type           Type

	Wrapper *caldav.CalendarWrapper
	Subject string
	Body    string
}

// StorePath returns the notification store of a user.
func StorePath(userID string) string {
	return repository.HomePath(userID) + "/" + StoreName
}

// IDFromJSON returns the id in fields, or a new random id when it is missing
// or malformed.
func IDFromJSON(fields map[string]json.RawMessage) uuid.UUID {
	var s string
	if raw, ok := fields[PropID]; ok && json.Unmarshal(raw, &s) == nil {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	return uuid.New()
}

// FromJSON builds a notification from the JSON the portal posts.
func FromJSON(data []byte) (*Notification, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid notification json: %w", err)
	}
	str := func(key string, required bool) (string, error) {
		raw, ok := fields[key]
		if !ok {
			if required {
				return "", fmt.Errorf("notification json has no %s", key)
			}
			return "", nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("notification %s is not a string: %w", key, err)
		}
		return s, nil
	}

	n := &Notification{
		ID:         IDFromJSON(fields),
		SendState:  SendStatePending,
		MessageBox: BoxDrafts,
		UXState:    map[string]any{},
	}
	var err error
	var typ, sendDate, category, state, box string
	if typ, err = str(PropType, true); err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	if n.Type != TypeCalendar && n.Type != TypeMessage {
		return nil, fmt.Errorf("notification type %q is not supported", typ)
	}
	if n.SenderID, err = str(PropSenderID, true); err != nil {
		return nil, err
	}
	if sendDate, err = str(PropSendDate, true); err != nil {
		return nil, err
	}
	if n.SendDate, err = isodate.Parse(sendDate); err != nil {
		return nil, err
	}
	if n.DynamicListID, err = str(PropDynamicListID, true); err != nil {
		return nil, err
	}
	if category, err = str(PropCategory, true); err != nil {
		return nil, err
	}
	n.Category = Category(category)
	if n.Category != CategoryReminder && n.Category != CategoryMessage {
		return nil, fmt.Errorf("unknown notification category %q", category)
	}
	if state, _ = str(PropSendState, false); state != "" {
		n.SendState = SendState(state)
	}
	if box, _ = str(PropMessageBox, false); box != "" {
		if n.MessageBox, err = ParseMessageBox(box); err != nil {
			return nil, err
		}
	}
	n.EmailMessageID, _ = str(PropEmailMessageID, false)
	if raw, ok := fields[PropUXState]; ok {
		var ux map[string]any
		if json.Unmarshal(raw, &ux) == nil && ux != nil {
			n.UXState = ux
		}
	}

	switch n.Type {
	case TypeCalendar:
		raw, ok := fields[PropCalendarWrap]
		if !ok {
			return nil, fmt.Errorf("calendar notification has no %s", PropCalendarWrap)
		}
		if n.Wrapper, err = caldav.ParseWrapperJSON(raw); err != nil {
			return nil, err
		}
	case TypeMessage:
		if n.Subject, err = str(PropSubject, true); err != nil {
			return nil, err
		}
		if n.Body, err = str(PropBody, true); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// FromContent reads a stored notification.
func FromContent(c *repository.Content) (*Notification, error) {
	id, err := uuid.Parse(c.String(PropID))
	if err != nil {
		return nil, fmt.Errorf("notification %s has an invalid id: %w", c.Path, err)
	}
	sendDate, err := isodate.Parse(c.String(PropSendDate))
	if err != nil {
		return nil, fmt.Errorf("notification %s: %w", c.Path, err)
	}
	box, err := ParseMessageBox(c.String(PropMessageBox))
	if err != nil {
		return nil, fmt.Errorf("notification %s: %w", c.Path, err)
	}
	n := &Notification{
		ID:             id,
		SenderID:       c.String(PropSenderID),
		SendDate:       sendDate,
		SendState:      SendState(c.String(PropSendState)),
		MessageBox:     box,
		DynamicListID:  c.String(PropDynamicListID),
		Category:       Category(c.String(PropCategory)),
		UXState:        map[string]any{},
		EmailMessageID: c.String(PropEmailMessageID),
		Type:           Type(c.String(PropType)),
	}
	if ux := c.String(PropUXState); ux != "" {
		_ = json.Unmarshal([]byte(ux), &n.UXState)
	}
	// older nodes have no type and are always calendar notifications
	if n.Type == "" {
		n.Type = TypeCalendar
	}
	switch n.Type {
	case TypeCalendar:
		if n.Wrapper, err = caldav.ParseWrapperJSON([]byte(c.String(PropCalendarWrap))); err != nil {
			return nil, fmt.Errorf("notification %s has invalid calendar data: %w", c.Path, err)
		}
	case TypeMessage:
		n.Subject = c.String(PropSubject)
		n.Body = c.String(PropBody)
	default:
		return nil, fmt.Errorf("notification %s has unknown type %q", c.Path, n.Type)
	}
	return n, nil
}

// Path returns the node path of n in storePath.
func (n *Notification) Path(storePath string) string {
	return storePath + "/" + n.ID.String()
}

// ToContent writes every field of n onto c. The wrapper and the UX state are
// stored as JSON text.
func (n *Notification) ToContent(storePath string, c *repository.Content) error {
	ux, err := json.Marshal(n.UXState)
	if err != nil {
		return fmt.Errorf("failed to encode ux state: %w", err)
	}
	c.SetProperty(PropMessageStore, storePath)
	c.SetProperty(PropID, n.ID.String())
	c.SetProperty(PropSenderID, n.SenderID)
	c.SetProperty(PropSendDate, isodate.Format(n.SendDate))
	c.SetProperty(PropSendState, string(n.SendState))
	c.SetProperty(PropMessageBox, string(n.MessageBox))
	c.SetProperty(PropDynamicListID, n.DynamicListID)
	c.SetProperty(PropCategory, string(n.Category))
	c.SetProperty(PropUXState, string(ux))
	c.SetProperty(PropType, string(n.Type))
	if n.EmailMessageID != "" {
		c.SetProperty(PropEmailMessageID, n.EmailMessageID)
	}
	switch n.Type {
	case TypeCalendar:
		wrapper, err := json.Marshal(n.Wrapper.ToJSON())
		if err != nil {
			return fmt.Errorf("failed to encode calendar wrapper: %w", err)
		}
		c.SetProperty(PropCalendarWrap, string(wrapper))
	case TypeMessage:
		c.SetProperty(PropSubject, n.Subject)
		c.SetProperty(PropBody, n.Body)
	}
	return nil
}

// IsTask reports whether a calendar notification holds a VTODO.
func (n *Notification) IsTask() bool {
	return n.Wrapper != nil && n.Wrapper.ComponentName() == string(caldav.TypeToDo)
}
