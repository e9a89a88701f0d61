package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/internal/mailer"
	"github.com/ets-berkeley-edu/myberkeley/internal/metrics"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Email styles.
const (
	StyleMyBerkeley = "myb"
	StyleCalCentral = "calcentral"
)

const reminderRecipient = "reminder-recipient:;"

// Emailer emails a notification to its recipients and returns the message id.
type Emailer interface {
	Send(ctx context.Context, n *Notification, recipientIDs []string) (string, error)
}

// UserEmail returns the address in the user's email profile section.
func UserEmail(ctx context.Context, repo repository.ContentManager, userID string) (string, error) {
	email, err := repository.ProfileElement(ctx, repo, userID, "email", "email")
	if err != nil {
		return "", fmt.Errorf("failed to read email of %s: %w", userID, err)
	}
	if email == "" {
		return "", fmt.Errorf("user %s has no email address", userID)
	}
	return email, nil
}

type emailBase struct {
	repo   repository.ContentManager
	sender mailer.Sender
	logger *slog.Logger
}

// blindCopy builds a message from the notification's sender to every address
// in recipients, all blind copied along with the sender.
func (b *emailBase) blindCopy(ctx context.Context, n *Notification, recipients []string) (*mailer.Message, error) {
	from, err := UserEmail(ctx, b.repo, n.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender for notification %s: %w", n.ID, err)
	}
	return &mailer.Message{
		From:     from,
		ToHeader: reminderRecipient,
		Bcc:      append([]string{from}, recipients...),
	}, nil
}

func (b *emailBase) addresses(ctx context.Context, ids []string, participantsOnly bool) []string {
	var out []string
	for _, id := range ids {
		if participantsOnly {
			node, err := b.repo.Get(ctx, dynamiclist.ParticipantPath(id))
			if err != nil || !node.Bool("value") {
				continue
			}
		}
		email, err := UserEmail(ctx, b.repo, id)
		if err != nil {
			b.logger.Warn("skipping recipient without email", "user", id, "error", err)
			continue
		}
		out = append(out, email)
	}
	b.logger.Info("email recipients", "recipients", out)
	return out
}

func (b *emailBase) send(ctx context.Context, kind string, msg *mailer.Message) (string, error) {
	id, err := b.sender.Send(ctx, msg)
	if err != nil {
		metrics.EmailsSent.WithLabelValues(kind, "failed").Inc()
		return "", err
	}
	metrics.EmailsSent.WithLabelValues(kind, "sent").Inc()
	return id, nil
}

func calendarAttachment(n *Notification, prefix string) (mailer.Attachment, error) {
	ics, err := n.Wrapper.Encode()
	if err != nil {
		return mailer.Attachment{}, err
	}
	return mailer.Attachment{
		Filename:    prefix + n.Wrapper.UID() + ".ics",
		ContentType: "text/calendar",
		Data:        []byte(ics),
	}, nil
}

// NotificationEmailSender mails participants on the list, with the calendar
// entry attached and a subject tagged by kind.
type NotificationEmailSender struct {
	emailBase
}

func NewNotificationEmailSender(repo repository.ContentManager, sender mailer.Sender, logger *slog.Logger) *NotificationEmailSender {
	return &NotificationEmailSender{emailBase{repo: repo, sender: sender, logger: logger}}
}

// SubjectPrefix tags the subject by component and required flag.
func SubjectPrefix(n *Notification) string {
	switch {
	case n.Type == TypeMessage:
		return ""
	case n.IsTask() && n.Wrapper.IsRequired():
		return "[myB-task-required] "
	case n.IsTask():
		return "[myB-task] "
	case n.Wrapper.IsRequired():
		return "[myB-event-required] "
	}
	return "[myB-event] "
}

func (s *NotificationEmailSender) Send(ctx context.Context, n *Notification, recipientIDs []string) (string, error) {
	recipients := s.addresses(ctx, recipientIDs, true)
	if len(recipients) == 0 {
		s.logger.Info("no participants to email", "notification", n.ID)
		return mailer.NotSentID, nil
	}
	msg, err := s.blindCopy(ctx, n, recipients)
	if err != nil {
		return "", err
	}
	if n.Type == TypeMessage {
		msg.Subject = n.Subject
		msg.Body = n.Body
	} else {
		msg.Subject = SubjectPrefix(n) + n.Wrapper.Summary()
		msg.Body = n.Wrapper.Description()
		a, err := calendarAttachment(n, "")
		if err != nil {
			return "", err
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return s.send(ctx, "notification", msg)
}

// CalendarNotificationEmailer mails every recipient a CalCentral styled
// announcement of the new task or event.
type CalendarNotificationEmailer struct {
	emailBase
}

func NewCalendarNotificationEmailer(repo repository.ContentManager, sender mailer.Sender, logger *slog.Logger) *CalendarNotificationEmailer {
	return &CalendarNotificationEmailer{emailBase{repo: repo, sender: sender, logger: logger}}
}

func (e *CalendarNotificationEmailer) Send(ctx context.Context, n *Notification, recipientIDs []string) (string, error) {
	msg, err := e.blindCopy(ctx, n, e.addresses(ctx, recipientIDs, false))
	if err != nil {
		return "", err
	}
	if n.Type == TypeMessage {
		msg.Subject = "[CalCentral message] " + n.Subject
		msg.Body = n.Body
		return e.send(ctx, "notification", msg)
	}
	msg.Subject, msg.Body = CalCentralText(n)
	a, err := calendarAttachment(n, "CalCentral-")
	if err != nil {
		return "", err
	}
	msg.Attachments = append(msg.Attachments, a)
	return e.send(ctx, "notification", msg)
}

// CalCentralText returns the subject and body announcing a calendar
// notification.
func CalCentralText(n *Notification) (subject, body string) {
	kind, widget, article := "Task", "My Tasks", "a"
	if !n.IsTask() {
		kind, widget = "Event", "My Events"
		article = "an"
	}
	lower := strings.ToLower(kind)
	summary := n.Wrapper.Summary()
	subject = fmt.Sprintf("[CalCentral %s] You have a new %s titled %q", lower, lower, summary)

	var b strings.Builder
	b.WriteString("This is an automated message from CalCentral.\n\n")
	fmt.Fprintf(&b, "A new %s has been added to your %s widget:\n\n", lower, widget)
	fmt.Fprintf(&b, "%s Subject: %s\n", kind, summary)
	fmt.Fprintf(&b, "%s Body: %s\n\n", kind, n.Wrapper.Description())
	fmt.Fprintf(&b, "To view this %s in CalCentral:\n\n", kind)
	b.WriteString("* Log on to CalCentral at http://calcentral.berkeley.edu \n")
	fmt.Fprintf(&b, "* If necessary, scroll down to see your %s widget. \n", widget)
	fmt.Fprintf(&b, "* Click on %s %s's title to see details about that %s.\n\n", article, lower, lower)
	fmt.Fprintf(&b, "If you have a standards-compliant calendar system, you can add this "+
		"%s by opening the enclosed file whose name ends with \".ics.\" ", lower)
	if n.IsTask() {
		b.WriteString(" You can keep your task list current by checking off tasks in your CalCentral My Tasks widget as you complete them.")
	}
	b.WriteString("\n\n")
	return subject, b.String()
}

// ReceiptEmailer tells the sender who a notification was delivered to.
type ReceiptEmailer struct {
	emailBase
	now func() time.Time
}

func NewReceiptEmailer(repo repository.ContentManager, sender mailer.Sender, logger *slog.Logger) *ReceiptEmailer {
	return &ReceiptEmailer{emailBase: emailBase{repo: repo, sender: sender, logger: logger}, now: time.Now}
}

func (e *ReceiptEmailer) Send(ctx context.Context, n *Notification, recipientIDs []string) (string, error) {
	from, err := UserEmail(ctx, e.repo, n.SenderID)
	if err != nil {
		return "", fmt.Errorf("invalid sender for notification %s: %w", n.ID, err)
	}
	var what, subject, body string
	switch {
	case n.Type == TypeMessage:
		what = "a message"
		subject, body = n.Subject, n.Body
	case n.IsTask():
		what = "a task notification"
		subject, body = n.Wrapper.Summary(), n.Wrapper.Description()
	default:
		what = "an event notification"
		subject, body = n.Wrapper.Summary(), n.Wrapper.Description()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CalCentral delivered %s to the following students at %s:\n\n",
		what, e.now().Format("Mon, Jan 2, 2006 03:04:05 MST"))
	for _, addr := range e.addresses(ctx, recipientIDs, false) {
		b.WriteString(addr + "\n")
	}
	b.WriteString("\nSubject: " + subject)
	b.WriteString("\nBody: " + body)

	return e.send(ctx, "receipt", &mailer.Message{
		From:    from,
		To:      []string{from},
		Subject: "CalCentral delivered " + what,
		Body:    b.String(),
	})
}

// NewEmailer returns the emailer for style.
func NewEmailer(style string, repo repository.ContentManager, sender mailer.Sender, logger *slog.Logger) (Emailer, error) {
	switch style {
	case "", StyleMyBerkeley:
		return NewNotificationEmailSender(repo, sender, logger), nil
	case StyleCalCentral:
		return NewCalendarNotificationEmailer(repo, sender, logger), nil
	}
	return nil, fmt.Errorf("unknown email style %q", style)
}
