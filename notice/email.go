package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/ets-berkeley-edu/myberkeley/internal/mailer"
	"github.com/ets-berkeley-edu/myberkeley/internal/metrics"
	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	reminderRecipient = "reminder-recipient:;"

	subjectPrefixTask          = "[myB-task] "
	subjectPrefixTaskRequired  = "[myB-task-required] "
	subjectPrefixEvent         = "[myB-event] "
	subjectPrefixEventRequired = "[myB-event-required] "

	// ErrRetriesExhausted is stored on a message that kept failing.
	ErrRetriesExhausted = "Unable to send message, exhausted SMTP retries."

	minRetryWindow = 3 * 24 * time.Hour
)

// SMTPFailure is a failed delivery with the SMTP reply code, when one could
// be found.
type SMTPFailure struct {
	Code int
	Err  error
}

func (e *SMTPFailure) Error() string {
	return fmt.Sprintf("smtp failure %d: %v", e.Code, e.Err)
}

func (e *SMTPFailure) Unwrap() error { return e.Err }

// Temporary reports whether the code is a 4xx reply worth retrying.
func (e *SMTPFailure) Temporary() bool {
	return e.Code/100 == 4
}

// ParseSMTPCode finds the reply code of a delivery error: the code of an
// SMTP reply, the first three characters of the message, or the three
// characters after "response:".
func ParseSMTPCode(err error) (int, bool) {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code, true
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) >= 3 {
		if code, convErr := strconv.Atoi(msg[:3]); convErr == nil {
			return code, true
		}
	}
	const marker = "response:"
	if i := strings.Index(msg, marker); i >= 0 {
		rest := strings.TrimSpace(msg[i+len(marker):])
		if len(rest) >= 3 {
			if code, convErr := strconv.Atoi(rest[:3]); convErr == nil {
				return code, true
			}
		}
	}
	return 0, false
}

// EmailConfig configures the outgoing email listener.
type EmailConfig struct {
	// SMTPServer completes addresses of users without a profile email.
	SMTPServer    string
	RetryInterval time.Duration
	MaxRetries    int
}

// OutgoingEmailListener mails messages taken from the email queue. Every
// recipient and the sender are blind copied. Deliveries failing with a 4xx
// reply are requeued after RetryInterval, up to MaxRetries times.
type OutgoingEmailListener struct {
	repo   repository.ContentManager
	sender mailer.Sender
	queue  *queue.Queue[EmailMessage]
	cfg    EmailConfig
	logger *slog.Logger
}

func NewOutgoingEmailListener(repo repository.ContentManager, sender mailer.Sender, q *queue.Queue[EmailMessage], cfg EmailConfig, logger *slog.Logger) *OutgoingEmailListener {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 240
	}
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = "localhost"
	}
	if time.Duration(cfg.MaxRetries)*cfg.RetryInterval < minRetryWindow {
		logger.Warn("SMTP retry window is very short", "maxRetries", cfg.MaxRetries, "retryInterval", cfg.RetryInterval)
	}
	return &OutgoingEmailListener{repo: repo, sender: sender, queue: q, cfg: cfg, logger: logger}
}

func (l *OutgoingEmailListener) Run(ctx context.Context) error {
	return l.queue.Consume(ctx, func(ctx context.Context, m EmailMessage) {
		if err := l.Handle(ctx, m); err != nil {
			l.logger.Error("failed to handle email message", "node", m.NodePath, "error", err)
		}
	})
}

// Handle mails one message. Delivery problems are recorded on the message
// node; the returned error covers repository failures only.
func (l *OutgoingEmailListener) Handle(ctx context.Context, m EmailMessage) error {
	l.logger.Debug("started handling email message", "node", m.NodePath)
	node, err := l.repo.Get(ctx, m.NodePath)
	if err != nil {
		return fmt.Errorf("failed to load message %s: %w", m.NodePath, err)
	}

	recipients, err := recipientList(m.Recipients)
	if err != nil {
		node.SetProperty(PropMessageError, err.Error())
		return l.repo.Update(ctx, node)
	}
	// a retry starts clean
	node.RemoveProperty(PropMessageError)

	if !node.HasProperty(PropTo) || !node.HasProperty(PropFrom) {
		node.SetProperty(PropMessageError, "Message must have a to and from set")
	} else if err := l.deliver(ctx, node, m, recipients); err != nil {
		return err
	}
	if !node.HasProperty(PropMessageError) {
		node.SetProperty(PropMessageBox, BoxSent)
	}
	return l.repo.Update(ctx, node)
}

func (l *OutgoingEmailListener) deliver(ctx context.Context, node *repository.Content, m EmailMessage, recipients []string) error {
	msg, err := l.constructMessage(ctx, node, recipients)
	if err != nil {
		node.SetProperty(PropMessageError, err.Error())
		return nil
	}
	l.logger.Info("attempting to send email", "node", node.Path, "bcc", msg.Bcc, "subject", msg.Subject)
	id, err := l.sender.Send(ctx, msg)
	if err == nil {
		l.logger.Info("successfully sent email", "messageID", id)
		return nil
	}

	node.SetProperty(PropMessageError, err.Error())
	l.logger.Warn("unable to send email", "node", node.Path, "error", err)
	code, ok := ParseSMTPCode(err)
	if !ok {
		l.logger.Error("unable to reschedule email for delivery", "node", node.Path, "error", err)
		return nil
	}
	l.scheduleRetry(node, m, &SMTPFailure{Code: code, Err: err})
	return nil
}

func (l *OutgoingEmailListener) scheduleRetry(node *repository.Content, m EmailMessage, failure *SMTPFailure) {
	if !failure.Temporary() {
		l.logger.Warn("not scheduling a retry for error code not of the form 4xx", "code", failure.Code)
		return
	}
	retries, _ := strconv.Atoi(node.String(PropRetryCount))
	if retries >= l.cfg.MaxRetries {
		node.SetProperty(PropMessageError, ErrRetriesExhausted)
		return
	}
	node.SetProperty(PropRetryCount, int64(retries+1))
	metrics.NoticeRetries.Inc()
	l.queue.PublishAfter(l.cfg.RetryInterval, m)
	l.logger.Info("email rescheduled for redelivery", "node", node.Path, "retry", retries+1, "in", l.cfg.RetryInterval)
}

func (l *OutgoingEmailListener) constructMessage(ctx context.Context, node *repository.Content, recipients []string) (*mailer.Message, error) {
	senderID := node.String(PropFrom)
	from := l.convertToEmail(ctx, senderID)

	// the sender gets a copy too
	bcc := map[string]bool{}
	for _, r := range append(append([]string(nil), recipients...), senderID) {
		bcc[l.convertToEmail(ctx, strings.TrimSpace(r))] = true
	}
	msg := &mailer.Message{From: from, ToHeader: reminderRecipient, Body: node.String(PropBody)}
	for addr := range bcc {
		msg.Bcc = append(msg.Bcc, addr)
	}
	sort.Strings(msg.Bcc)
	if node.HasProperty(PropSubject) {
		msg.Subject = SubjectPrefix(node) + node.String(PropSubject)
	}

	children, err := l.repo.ListChildren(ctx, node.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachments of %s: %w", node.Path, err)
	}
	for _, child := range children {
		contentType := child.String(PropAttachmentType)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			Filename:    child.Name(),
			ContentType: contentType,
			Data:        []byte(child.String(PropAttachmentContent)),
		})
	}
	return msg, nil
}

// SubjectPrefix tags a notice as a task when it has a due date and as an
// event otherwise, marking required ones.
func SubjectPrefix(node *repository.Content) string {
	task := node.HasProperty(PropDueDate)
	switch {
	case node.Bool(PropRequired) && task:
		return subjectPrefixTaskRequired
	case node.Bool(PropRequired):
		return subjectPrefixEventRequired
	case task:
		return subjectPrefixTask
	}
	return subjectPrefixEvent
}

// convertToEmail maps a user id to the email in its profile, or to
// id@SMTPServer when the profile has none. Addresses pass through.
func (l *OutgoingEmailListener) convertToEmail(ctx context.Context, address string) string {
	if strings.Contains(address, "@") {
		return address
	}
	email, err := repository.ProfileElement(ctx, l.repo, address, "email", "email")
	if err != nil {
		l.logger.Warn("failed to get address for user", "user", address, "error", err)
	}
	if strings.TrimSpace(email) != "" {
		return email
	}
	return address + "@" + l.cfg.SMTPServer
}

func recipientList(v any) ([]string, error) {
	switch r := v.(type) {
	case []string:
		return append([]string(nil), r...), nil
	case string:
		var out []string
		for _, rcpt := range strings.Split(r, ",") {
			if rcpt = strings.TrimSpace(rcpt); rcpt != "" {
				out = append(out, rcpt)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected recipients to be a string or a list of strings, found %T", v)
}
