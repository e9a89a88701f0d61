package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/internal/metrics"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// maxQueued bounds the queued notifications read per run.
const maxQueued = 50000

// ListResolver turns a list context and criteria into user ids.
type ListResolver interface {
	LoadContext(ctx context.Context, name string) (*dynamiclist.Context, error)
	UserIDsForCriteria(ctx context.Context, c *dynamiclist.Context, criteria string) ([]string, error)
}

// JobConfig configures SendJob.
type JobConfig struct {
	PollInterval time.Duration
	// Receipts, when set, mails the sender after each delivery.
	Receipts Emailer
}

// SendJob delivers queued notifications whose send date has passed.
type SendJob struct {
	repo      repository.Repository
	lists     ListResolver
	calendars caldav.Provider
	emailer   Emailer
	cfg       JobConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewSendJob(repo repository.Repository, lists ListResolver, calendars caldav.Provider, emailer Emailer, cfg JobConfig, logger *slog.Logger) *SendJob {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &SendJob{
		repo:      repo,
		lists:     lists,
		calendars: calendars,
		emailer:   emailer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the job every poll interval until ctx is done.
func (j *SendJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("send notifications job failed", "error", err)
			}
		}
	}
}

// RunOnce sends every eligible queued notification.
func (j *SendJob) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		j.logger.Debug("send notifications job executed", "duration", time.Since(start))
	}()

	results, err := j.repo.Find(ctx, map[string]any{
		PropMessageBox:              string(BoxQueue),
		repository.PropResourceType: ResourceType,
	}, maxQueued)
	if err != nil {
		return fmt.Errorf("failed to find queued notifications: %w", err)
	}
	now := j.now()
	eligible := 0
	for _, result := range results {
		if !j.eligible(result, now) {
			continue
		}
		eligible++
		j.logger.Debug("the time has come to send notification", "path", result.Path)
		j.send(ctx, result)
	}
	j.logger.Debug("queued notifications", "found", len(results), "eligible", eligible)
	return nil
}

func (j *SendJob) eligible(c *repository.Content, now time.Time) bool {
	n, err := FromContent(c)
	if err != nil {
		j.logger.Error("invalid queued notification", "path", c.Path, "error", err)
		return false
	}
	return n.MessageBox == BoxQueue && n.SendState == SendStatePending && !now.Before(n.SendDate)
}

// send delivers one notification. The recipient log and the node are saved
// even when delivery fails part way, so finished recipients are not repeated.
func (j *SendJob) send(ctx context.Context, result *repository.Content) {
	n, err := FromContent(result)
	if err != nil {
		j.logger.Error("notification has invalid data", "path", result.Path, "error", err)
		return
	}
	rl, err := LoadRecipientLog(ctx, j.repo, result.Path)
	if err != nil {
		j.logger.Error("failed to load recipient log", "path", result.Path, "error", err)
		return
	}

	if err := j.deliver(ctx, n, rl); err != nil {
		j.logger.Error("failed to send notification", "path", result.Path, "error", err)
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
	} else {
		result.SetProperty(PropMessageBox, string(BoxArchive))
		result.SetProperty(PropSendState, string(SendStateSent))
		metrics.NotificationsSent.WithLabelValues("sent").Inc()
		j.logger.Debug("sent notification", "path", result.Path, "recipients", len(rl.Recipients))
	}

	if err := rl.Update(ctx, j.repo); err != nil {
		j.logger.Error("failed to save recipient log", "path", result.Path, "error", err)
	}
	if err := j.repo.Update(ctx, result); err != nil {
		j.logger.Error("failed to save notification", "path", result.Path, "error", err)
	}
}

func (j *SendJob) deliver(ctx context.Context, n *Notification, rl *RecipientLog) error {
	query, err := j.repo.Get(ctx, n.DynamicListID+"/query")
	if err != nil {
		return fmt.Errorf("failed to fetch filter criteria: %w", err)
	}
	listContext, err := j.lists.LoadContext(ctx, query.String(dynamiclist.PropListContext))
	if err != nil {
		return err
	}
	userIDs, err := j.lists.UserIDsForCriteria(ctx, listContext, query.String("filter"))
	if err != nil {
		return err
	}
	j.logger.Info("dynamic list resolved", "notification", n.ID, "users", userIDs)

	if n.Type == TypeCalendar {
		for _, userID := range userIDs {
			if rl.Has(userID) {
				continue
			}
			if err := j.putCalendar(ctx, n, userID, rl); err != nil {
				return err
			}
		}
	}

	if rl.EmailMessageID == "" {
		id, err := j.emailer.Send(ctx, n, userIDs)
		if err != nil {
			j.logger.Error("failed to email notification", "notification", n.ID, "error", err)
		} else if id != "" {
			rl.EmailMessageID = id
		}
		if j.cfg.Receipts != nil {
			if _, err := j.cfg.Receipts.Send(ctx, n, userIDs); err != nil {
				j.logger.Error("failed to send receipt", "notification", n.ID, "error", err)
			}
		}
	}
	return nil
}

func (j *SendJob) putCalendar(ctx context.Context, n *Notification, userID string, rl *RecipientLog) error {
	conn, err := j.calendars.AdminConnector(userID)
	if err != nil {
		return err
	}
	n.Wrapper.GenerateNewUID()
	uri, err := conn.PutCalendar(ctx, n.Wrapper.Calendar())
	if err != nil {
		if caldav.IsNotFound(err) {
			j.logger.Warn("user does not have a calendar account yet, skipping calendar creation", "user", userID)
			return nil
		}
		return fmt.Errorf("failed to put calendar for %s: %w", userID, err)
	}
	rl.Recipients[userID] = uri
	return nil
}
