// Package mailer builds MIME messages and hands them to an SMTP server.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"
)

// NotSentID is returned as the message id when sending is disabled.
const NotSentID = "sendEmail is false, email not sent"

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is an outgoing email. Recipients in To, Cc and Bcc all receive the
// message; only To and Cc are written to the headers.
type Message struct {
	From string
	To   []string
	Cc   []string
	Bcc  []string
	// ToHeader replaces the To header, e.g. with an empty group
	// ("reminder-recipient:;") when every recipient is blind copied.
	ToHeader    string
	Subject     string
	Body        string
	Date        time.Time
	Attachments []Attachment
}

// Recipients returns the envelope recipients.
func (m *Message) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	rcpts = append(rcpts, m.To...)
	rcpts = append(rcpts, m.Cc...)
	return append(rcpts, m.Bcc...)
}

// Sender delivers messages and returns the Message-ID used.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Config configures the SMTP transport.
type Config struct {
	Server    string
	Port      int
	SendEmail bool
}

// SMTPSender sends through a plain SMTP relay. With SendEmail off it only logs.
type SMTPSender struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(cfg Config, logger *slog.Logger) (*SMTPSender, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	logger.Info("email sender started", "sendEmail", cfg.SendEmail, "server", cfg.Server, "port", cfg.Port)
	return &SMTPSender{cfg: cfg, logger: logger}, nil
}

// Server returns the configured SMTP host.
func (s *SMTPSender) Server() string {
	return s.config().Server
}

// Reconfigure swaps the relay settings used by later sends.
func (s *SMTPSender) Reconfigure(cfg Config) {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("email sender reconfigured", "sendEmail", cfg.SendEmail, "server", cfg.Server, "port", cfg.Port)
}

func (s *SMTPSender) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	id, raw, err := Build(msg)
	if err != nil {
		return "", err
	}
	cfg := s.config()
	if !cfg.SendEmail {
		s.logger.Info("email not sent", "reason", NotSentID, "content", string(raw))
		return NotSentID, nil
	}
	s.logger.Debug("sending email", "content", string(raw))

	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	c, err := dial(ctx, addr, cfg.Server)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Close()
	if err := c.SendMail(msg.From, msg.Recipients(), bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	if err := c.Quit(); err != nil {
		s.logger.Warn("failed to close SMTP session", "server", addr, "error", err)
	}
	s.logger.Info("sent email", "messageID", id)
	return id, nil
}

// dial opens a plain SMTP session and upgrades it with STARTTLS when the
// relay offers it. Campus relays often do not.
func dial(ctx context.Context, addr, host string) (*smtp.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := smtp.NewClient(conn)
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, nil
	}
	c.Close()

	conn, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
}

// Build renders msg as a multipart message and returns its Message-ID.
func Build(msg *Message) (string, []byte, error) {
	var h mail.Header
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return "", nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})
	if msg.ToHeader != "" {
		h.Set("To", msg.ToHeader)
	} else if len(msg.To) > 0 {
		to, err := addresses(msg.To)
		if err != nil {
			return "", nil, err
		}
		h.SetAddressList("To", to)
	}
	if len(msg.Cc) > 0 {
		cc, err := addresses(msg.Cc)
		if err != nil {
			return "", nil, err
		}
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return "", nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create message: %w", err)
	}
	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	w, err := mw.CreateSingleInline(th)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create message body: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return "", nil, err
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}
	for _, a := range msg.Attachments {
		var ah mail.AttachmentHeader
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.Set("Content-Type", ct)
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return "", nil, fmt.Errorf("failed to attach %s: %w", a.Filename, err)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return "", nil, err
		}
		if err := aw.Close(); err != nil {
			return "", nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return "", nil, err
	}
	return "<" + id + ">", buf.Bytes(), nil
}

func addresses(list []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}
