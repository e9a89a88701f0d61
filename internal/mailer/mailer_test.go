package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type received struct {
	from  string
	rcpts []string
	data  string
	tls   bool
}

type backend struct {
	mu       sync.Mutex
	messages []received
	rcptErr  error
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b, conn: c}, nil
}

type session struct {
	backend *backend
	conn    *smtp.Conn
	current received
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.rcptErr != nil {
		return s.backend.rcptErr
	}
	s.current.rcpts = append(s.current.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(data)
	_, s.current.tls = s.conn.TLSConnectionState()
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *session) Reset()        { s.current = received{} }
func (s *session) Logout() error { return nil }

func startServer(t *testing.T, be *backend) Config {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Config{Server: host, Port: p, SendEmail: true}
}

func testMessage() *Message {
	return &Message{
		From:     "advisor1@example.edu",
		Bcc:      []string{"bob@example.edu", "advisor1@example.edu"},
		ToHeader: "reminder-recipient:;",
		Subject:  "[myB-task] Submit forms",
		Body:     "Please submit your forms.",
		Date:     time.Date(2011, 1, 3, 19, 45, 17, 0, time.UTC),
		Attachments: []Attachment{
			{Filename: "task-1.ics", ContentType: "text/calendar", Data: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")},
		},
	}
}

func TestBuild(t *testing.T) {
	id, raw, err := Build(testMessage())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<") && strings.HasSuffix(id, ">"))

	text := string(raw)
	assert.Contains(t, text, "To: reminder-recipient:;")
	assert.Contains(t, text, "Subject: [myB-task] Submit forms")
	assert.Contains(t, text, "Please submit your forms.")
	assert.Contains(t, text, `filename=task-1.ics`)
	assert.Contains(t, text, "text/calendar")
	assert.NotContains(t, text, "bob@example.edu")
}

func TestBuild_InvalidFrom(t *testing.T) {
	msg := testMessage()
	msg.From = "not an address"
	_, _, err := Build(msg)
	assert.Error(t, err)
}

func TestSMTPSender_Disabled(t *testing.T) {
	s, err := NewSMTPSender(Config{Server: "localhost"}, discardLogger())
	require.NoError(t, err)
	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, NotSentID, id)
}

func TestSMTPSender_Send(t *testing.T) {
	be := &backend{}
	s, err := NewSMTPSender(startServer(t, be), discardLogger())
	require.NoError(t, err)

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.NotEqual(t, NotSentID, id)

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)
	assert.Equal(t, "advisor1@example.edu", be.messages[0].from)
	assert.Equal(t, []string{"bob@example.edu", "advisor1@example.edu"}, be.messages[0].rcpts)
	assert.Contains(t, be.messages[0].data, strings.Trim(id, "<>"))
}

func TestSMTPSender_SMTPError(t *testing.T) {
	be := &backend{rcptErr: &smtp.SMTPError{Code: 451, Message: "try again later"}}
	s, err := NewSMTPSender(startServer(t, be), discardLogger())
	require.NoError(t, err)

	_, err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 451, smtpErr.Code)
}

func TestNewSMTPSender_RequiresLogger(t *testing.T) {
	_, err := NewSMTPSender(Config{}, nil)
	assert.Error(t, err)
}

func TestSMTPSender_Reconfigure(t *testing.T) {
	be := &backend{}
	s, err := NewSMTPSender(Config{Server: "localhost"}, discardLogger())
	require.NoError(t, err)

	s.Reconfigure(startServer(t, be))
	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.NotEqual(t, NotSentID, id)
	assert.Equal(t, "127.0.0.1", s.Server())
}

func TestSMTPSender_RelayWithoutSTARTTLS(t *testing.T) {
	// startServer sets no TLS config, so STARTTLS is never advertised.
	be := &backend{}
	s, err := NewSMTPSender(startServer(t, be), discardLogger())
	require.NoError(t, err)

	msg := testMessage()
	msg.Bcc = []string{"carol@example.edu"}
	_, err = s.Send(context.Background(), msg)
	require.NoError(t, err)

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)
	assert.False(t, be.messages[0].tls)
	assert.Equal(t, []string{"carol@example.edu"}, be.messages[0].rcpts)
	assert.Contains(t, be.messages[0].data, "Please submit your forms.")
}

func TestSMTPSender_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	s, err := NewSMTPSender(Config{Server: "127.0.0.1", Port: addr.Port, SendEmail: true}, discardLogger())
	require.NoError(t, err)
	_, err = s.Send(context.Background(), testMessage())
	assert.Error(t, err)
}
