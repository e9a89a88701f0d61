package caldav

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
)

// ProductID is written into every calendar built from JSON.
const ProductID = "-//ETS Berkeley//MyBerkeley CalDAV 1.0//EN"

var dateProps = map[string]bool{
	ical.PropDateTimeStamp:  true,
	ical.PropDateTimeStart:  true,
	ical.PropDateTimeEnd:    true,
	ical.PropDue:            true,
	ical.PropCompleted:      true,
	ical.PropCreated:        true,
	ical.PropLastModified:   true,
	ical.PropRecurrenceID:   true,
	ical.PropExceptionDates: true,
}

// CalendarWrapper pairs a calendar with its URI and the single VEVENT or VTODO
// it carries.
type CalendarWrapper struct {
	calendar  *ical.Calendar
	component *ical.Component
	uri       CalendarURI
}

// NewCalendarWrapper wraps cal, which must contain a VEVENT or VTODO.
func NewCalendarWrapper(cal *ical.Calendar, uri string, etag time.Time) (*CalendarWrapper, error) {
	comp := findComponent(cal, ical.CompEvent)
	if comp == nil {
		comp = findComponent(cal, ical.CompToDo)
	}
	if comp == nil {
		return nil, fmt.Errorf("calendar has no VTODO or VEVENT: %w", ErrUnsupportedComponent)
	}
	return &CalendarWrapper{calendar: cal, component: comp, uri: CalendarURI{URI: uri, Etag: etag}}, nil
}

// ParseCalendarWrapper decodes iCalendar text fetched from uri.
func ParseCalendarWrapper(data, uri, etag string) (*CalendarWrapper, error) {
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("invalid calendar data at %s: %w", uri, err)
	}
	t, err := ParseEtag(etag)
	if err != nil {
		return nil, err
	}
	return NewCalendarWrapper(cal, uri, t)
}

func findComponent(cal *ical.Calendar, name string) *ical.Component {
	if cal == nil || cal.Component == nil {
		return nil
	}
	for _, child := range cal.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

func (w *CalendarWrapper) Calendar() *ical.Calendar   { return w.calendar }
func (w *CalendarWrapper) Component() *ical.Component { return w.component }
func (w *CalendarWrapper) URI() *CalendarURI          { return &w.uri }
func (w *CalendarWrapper) Etag() time.Time            { return w.uri.Etag }

// ComponentName is VEVENT or VTODO.
func (w *CalendarWrapper) ComponentName() string { return w.component.Name }

func (w *CalendarWrapper) IsRequired() bool  { return w.HasCategory(CategoryRequired) }
func (w *CalendarWrapper) IsArchived() bool  { return w.HasCategory(CategoryArchived) }
func (w *CalendarWrapper) IsRead() bool      { return w.HasCategory(CategoryRead) }
func (w *CalendarWrapper) IsCompleted() bool { return w.Status() == StatusCompleted }

func (w *CalendarWrapper) Status() string {
	if p := w.component.Props.Get(ical.PropStatus); p != nil {
		return strings.ToUpper(strings.TrimSpace(p.Value))
	}
	return ""
}

// HasCategory reports whether any CATEGORIES property lists category.
func (w *CalendarWrapper) HasCategory(category string) bool {
	for _, p := range w.component.Props[ical.PropCategories] {
		for _, c := range splitCategories(p.Value) {
			if c == category {
				return true
			}
		}
	}
	return false
}

func splitCategories(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToggleCategory adds category when on is set and removes it otherwise.
func (w *CalendarWrapper) ToggleCategory(category string, on bool) {
	props := w.component.Props[ical.PropCategories]
	kept := make([]ical.Prop, 0, len(props)+1)
	for _, p := range props {
		var rest []string
		for _, c := range splitCategories(p.Value) {
			if c != category {
				rest = append(rest, c)
			}
		}
		if len(rest) == 0 {
			continue
		}
		p.Value = strings.Join(rest, ",")
		kept = append(kept, p)
	}
	if on {
		p := ical.NewProp(ical.PropCategories)
		p.Value = category
		kept = append(kept, *p)
	}
	if len(kept) == 0 {
		delete(w.component.Props, ical.PropCategories)
		return
	}
	w.component.Props[ical.PropCategories] = kept
}

// SetCompleted sets STATUS to COMPLETED or NEEDS-ACTION.
func (w *CalendarWrapper) SetCompleted(completed bool) {
	status := StatusNeedsAction
	if completed {
		status = StatusCompleted
	}
	w.component.Props.SetText(ical.PropStatus, status)
}

// GenerateNewUID gives the component a fresh UID so a copy is distinct from
// its source on the server.
func (w *CalendarWrapper) GenerateNewUID() {
	w.component.Props.SetText(ical.PropUID, uuid.NewString())
}

func (w *CalendarWrapper) UID() string         { return w.text(ical.PropUID) }
func (w *CalendarWrapper) Summary() string     { return w.text(ical.PropSummary) }
func (w *CalendarWrapper) Description() string { return w.text(ical.PropDescription) }

func (w *CalendarWrapper) hasProp(name string) bool {
	return w.component.Props.Get(name) != nil
}

func (w *CalendarWrapper) text(name string) string {
	p := w.component.Props.Get(name)
	if p == nil {
		return ""
	}
	if s, err := p.Text(); err == nil {
		return s
	}
	return p.Value
}

// Date returns a date property in UTC. ok is false when it is missing or
// unparseable.
func (w *CalendarWrapper) Date(name string) (time.Time, bool) {
	p := w.component.Props.Get(name)
	if p == nil {
		return time.Time{}, false
	}
	t, err := p.DateTime(time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// SortDate is DUE for tasks and DTSTART for events.
func (w *CalendarWrapper) SortDate() time.Time {
	name := ical.PropDateTimeStart
	if w.component.Name == ical.CompToDo {
		name = ical.PropDue
	}
	t, _ := w.Date(name)
	return t
}

// Encode renders the whole calendar as iCalendar text.
func (w *CalendarWrapper) Encode() (string, error) {
	return EncodeCalendar(w.calendar)
}

// EncodeComponent renders only the wrapped component.
func (w *CalendarWrapper) EncodeComponent() (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, w.component)
	s, err := EncodeCalendar(cal)
	if err != nil {
		return "", err
	}
	begin := strings.Index(s, "BEGIN:"+w.component.Name)
	end := strings.LastIndex(s, "END:"+w.component.Name)
	if begin < 0 || end < 0 {
		return s, nil
	}
	return s[begin : end+len("END:"+w.component.Name)], nil
}

// EncodeCalendar renders cal as iCalendar text.
func EncodeCalendar(cal *ical.Calendar) (string, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.String(), nil
}

// WrapperJSON is the JSON form of a CalendarWrapper.
type WrapperJSON struct {
	URI         string         `json:"uri"`
	Etag        string         `json:"etag"`
	Component   string         `json:"component"`
	IsRequired  bool           `json:"isRequired"`
	IsCompleted bool           `json:"isCompleted"`
	IsArchived  bool           `json:"isArchived"`
	IsRead      bool           `json:"isRead"`
	ICalData    map[string]any `json:"icalData"`
}

// ToJSON converts the wrapper. Repeated properties become arrays and dates are
// written as ISO8601 in UTC.
func (w *CalendarWrapper) ToJSON() WrapperJSON {
	data := make(map[string]any, len(w.component.Props))
	for name, props := range w.component.Props {
		values := make([]string, 0, len(props))
		for i := range props {
			values = append(values, propJSONValue(&props[i]))
		}
		if len(values) == 1 {
			data[name] = values[0]
		} else {
			data[name] = values
		}
	}
	return WrapperJSON{
		URI:         w.uri.URI,
		Etag:        isodate.Format(w.uri.Etag),
		Component:   w.component.Name,
		IsRequired:  w.IsRequired(),
		IsCompleted: w.IsCompleted(),
		IsArchived:  w.IsArchived(),
		IsRead:      w.IsRead(),
		ICalData:    data,
	}
}

func (w *CalendarWrapper) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.ToJSON())
}

func propJSONValue(p *ical.Prop) string {
	if dateProps[p.Name] {
		if t, err := p.DateTime(time.UTC); err == nil {
			return isodate.Format(t)
		}
	}
	if s, err := p.Text(); err == nil {
		return s
	}
	return p.Value
}

// wrapperInput is decoded with pointer fields so missing keys can be told
// apart from empty ones.
type wrapperInput struct {
	URI       *string        `json:"uri"`
	Etag      *string        `json:"etag"`
	Component *string        `json:"component"`
	ICalData  map[string]any `json:"icalData"`
}

// ParseWrapperJSON builds a wrapper from its JSON form.
func ParseWrapperJSON(data []byte) (*CalendarWrapper, error) {
	var in wrapperInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("invalid json data passed: %w", err)
	}
	if in.URI == nil || in.Etag == nil || in.Component == nil {
		return nil, fmt.Errorf("invalid json data passed: uri, etag and component are required")
	}
	if in.ICalData == nil {
		return nil, fmt.Errorf("no valid icalData found in JSON")
	}
	return FromJSON(*in.URI, *in.Etag, *in.Component, in.ICalData)
}

// FromJSON builds a new calendar holding one component described by icalData.
func FromJSON(uri, etag, componentName string, icalData map[string]any) (*CalendarWrapper, error) {
	etagTime, err := ParseEtag(etag)
	if err != nil {
		return nil, fmt.Errorf("exception parsing date %q: %w", etag, err)
	}
	if componentName != ical.CompEvent && componentName != ical.CompToDo {
		return nil, fmt.Errorf("component type %q: %w", componentName, ErrUnsupportedComponent)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Children = append(cal.Children, losAngelesTimezone())

	comp := ical.NewComponent(componentName)
	keys := make([]string, 0, len(icalData))
	for k := range icalData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch v := icalData[key].(type) {
		case []any:
			for _, item := range v {
				if err := addJSONProp(comp, key, fmt.Sprint(item)); err != nil {
					return nil, err
				}
			}
		case []string:
			for _, item := range v {
				if err := addJSONProp(comp, key, item); err != nil {
					return nil, err
				}
			}
		case nil:
		default:
			if err := addJSONProp(comp, key, fmt.Sprint(v)); err != nil {
				return nil, err
			}
		}
	}

	if comp.Props.Get(ical.PropUID) == nil {
		comp.Props.SetText(ical.PropUID, uuid.NewString())
	}
	if comp.Props.Get(ical.PropDateTimeStamp) == nil {
		comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	}
	cal.Children = append(cal.Children, comp)

	return &CalendarWrapper{calendar: cal, component: comp, uri: CalendarURI{URI: uri, Etag: etagTime}}, nil
}

func addJSONProp(comp *ical.Component, name, value string) error {
	name = strings.ToUpper(name)
	p := ical.NewProp(name)
	if dateProps[name] {
		// values that are not ISO8601 (EXDATE lists) are kept as written
		if t, err := isodate.Parse(value); err == nil {
			p.SetDateTime(t.UTC())
		} else {
			p.Value = value
		}
		if name == ical.PropDateTimeStamp {
			comp.Props.Set(p)
			return nil
		}
	} else if vt := p.ValueType(); vt == ical.ValueText || vt == ical.ValueDefault {
		p.SetText(value)
	} else {
		p.Value = value
	}
	comp.Props[name] = append(comp.Props[name], *p)
	return nil
}

// CloneFromJSON round-trips the wrapper through JSON, producing a normalized
// copy with a fresh calendar. The copy keeps the URI and etag.
func (w *CalendarWrapper) CloneFromJSON() (*CalendarWrapper, error) {
	j := w.ToJSON()
	return FromJSON(j.URI, j.Etag, j.Component, j.ICalData)
}
