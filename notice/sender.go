package notice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	// EnvironmentDev limits the sender to DevUserID.
	EnvironmentDev = "dev"
	// DevUserID is the only advisor whose notices are sent in dev.
	DevUserID = "271592"
	// DefaultAdvisorGroup holds the advisors whose queues are polled.
	DefaultAdvisorGroup = "g-ced-advisors"
)

// SenderConfig configures the queued message sender.
type SenderConfig struct {
	PollInterval time.Duration
	Environment  string
	AdvisorGroup string
}

// QueuedMessageSender releases queued notices of the advisor group once their
// send date has come: each goes to the outbox, is announced on the pending
// queue and then moves to the archive.
type QueuedMessageSender struct {
	repo    repository.Repository
	pending *queue.Queue[PendingMessage]
	cfg     SenderConfig
	logger  *slog.Logger
	now     func() time.Time
	trigger chan struct{}
}

func NewQueuedMessageSender(repo repository.Repository, pending *queue.Queue[PendingMessage], cfg SenderConfig, logger *slog.Logger) *QueuedMessageSender {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.AdvisorGroup == "" {
		cfg.AdvisorGroup = DefaultAdvisorGroup
	}
	return &QueuedMessageSender{
		repo:    repo,
		pending: pending,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Run polls until ctx is cancelled.
func (s *QueuedMessageSender) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("sendQueuedNoticesJob failed", "error", err)
		}
	}
}

// RunNow asks a running sender to poll immediately.
func (s *QueuedMessageSender) RunNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *QueuedMessageSender) RunOnce(ctx context.Context) error {
	s.logger.Info("executing SendQueuedNoticesJob")
	group, err := s.repo.FindAuthorizable(ctx, s.cfg.AdvisorGroup)
	if repository.IsNotFound(err) {
		s.logger.Error("group doesn't exist", "group", s.cfg.AdvisorGroup)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load group %s: %w", s.cfg.AdvisorGroup, err)
	}
	if !group.Group {
		return nil
	}
	for _, advisorID := range group.Members {
		if s.cfg.Environment == EnvironmentDev && advisorID != DevUserID {
			continue
		}
		advisor, err := s.repo.FindAuthorizable(ctx, advisorID)
		if err != nil || advisor.Group {
			continue
		}
		notices, err := s.findQueuedNotices(ctx, advisorID)
		if err != nil {
			return err
		}
		for _, n := range notices {
			s.process(ctx, n, advisorID)
		}
	}
	return nil
}

func (s *QueuedMessageSender) findQueuedNotices(ctx context.Context, advisorID string) ([]*repository.Content, error) {
	found, err := s.repo.Find(ctx, map[string]any{
		repository.PropResourceType: ResourceType,
		PropType:                    TypeNotice,
		PropMessageBox:              BoxQueue,
		PropSendState:               StatePending,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find queued notices of %s: %w", advisorID, err)
	}
	store := StorePath(advisorID) + "/"
	var out []*repository.Content
	for _, n := range found {
		if strings.HasPrefix(n.Path, store) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *QueuedMessageSender) process(ctx context.Context, n *repository.Content, advisorID string) {
	due, err := s.timeToSend(n)
	if err == nil && due {
		err = s.send(ctx, n, advisorID)
	}
	if err != nil {
		// failed notices are not picked up again
		s.logger.Error("could not send notice", "notice", n.Path, "sendState", StateFailed, "error", err)
		n.SetProperty(PropSendState, StateFailed)
		if err := s.repo.Update(ctx, n); err != nil {
			s.logger.Error("failed to save notice", "notice", n.Path, "error", err)
		}
	}
}

func (s *QueuedMessageSender) timeToSend(n *repository.Content) (bool, error) {
	raw := n.String(PropSendDate)
	if raw == "" {
		return false, fmt.Errorf("sendDate is missing, cannot send notice %s", n.Path)
	}
	sendDate, err := ParseDate(raw)
	if err != nil {
		return false, err
	}
	now := s.now()
	if now.Before(sendDate) {
		s.logger.Debug("sendDate is later than now, not sending notice", "sendDate", sendDate, "now", now, "notice", n.Path)
		return false, nil
	}
	return true, nil
}

func (s *QueuedMessageSender) send(ctx context.Context, n *repository.Content, advisorID string) error {
	// in the outbox the next poll no longer finds it
	n.SetProperty(PropMessageBox, BoxOutbox)
	if err := s.repo.Update(ctx, n); err != nil {
		return err
	}
	if state := n.String(PropSendState); state == StateNone || state == StatePending {
		n.SetProperty(PropSendState, StateNotified)
		s.logger.Info("sending queued notice", "notice", n.Path)
		if err := s.pending.Publish(ctx, PendingMessage{Path: n.Path, User: advisorID}); err != nil {
			return fmt.Errorf("failed to publish notice %s: %w", n.Path, err)
		}
	}
	n.SetProperty(PropMessageBox, BoxArchive)
	return s.repo.Update(ctx, n)
}

// Dispatcher routes pending messages: notice routes are copied to inboxes and
// SMTP routes are queued for the outgoing email listener.
type Dispatcher struct {
	repo      repository.ContentManager
	router    *Router
	transport *InboxTransport
	emails    *queue.Queue[EmailMessage]
	logger    *slog.Logger
}

func NewDispatcher(repo repository.ContentManager, router *Router, transport *InboxTransport, emails *queue.Queue[EmailMessage], logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, router: router, transport: transport, emails: emails, logger: logger}
}

// Run consumes pending until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, pending *queue.Queue[PendingMessage]) error {
	return pending.Consume(ctx, func(ctx context.Context, m PendingMessage) {
		if err := d.Dispatch(ctx, m); err != nil {
			d.logger.Error("failed to dispatch message", "message", m.Path, "user", m.User, "error", err)
		}
	})
}

func (d *Dispatcher) Dispatch(ctx context.Context, m PendingMessage) error {
	message, err := d.repo.Get(ctx, m.Path)
	if err != nil {
		return fmt.Errorf("failed to load message %s: %w", m.Path, err)
	}
	routes, err := d.router.Routes(ctx, message)
	if err != nil {
		return err
	}
	if err := d.transport.Send(ctx, routes, message); err != nil {
		return err
	}
	if rcpts := smtpRecipients(routes); len(rcpts) > 0 {
		return d.emails.Publish(ctx, EmailMessage{NodePath: m.Path, Recipients: rcpts})
	}
	return nil
}
