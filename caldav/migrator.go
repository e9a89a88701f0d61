package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

// AllUserIDs is the userIds value selecting every user home.
const AllUserIDs = "ALL"

// UserLister lists every user with a home in the repository.
type UserLister interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}

// MigratorConfig tunes the migrator fan-out.
type MigratorConfig struct {
	// Workers is the number of users migrated concurrently.
	Workers int
	// Rate is the number of users started per second. Zero disables pacing.
	Rate float64
	// Transport is used for connections to the source server.
	Transport http.RoundTripper
	Timeout   time.Duration
}

// Migrator copies every calendar object of a user from a source CalDAV
// server into the configured calendar store.
type Migrator struct {
	target Provider
	users  UserLister
	cfg    MigratorConfig
	logger *slog.Logger
}

func NewMigrator(target Provider, users UserLister, cfg MigratorConfig, logger *slog.Logger) *Migrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Migrator{target: target, users: users, cfg: cfg, logger: logger}
}

// SourceProvider builds the Bedework provider for the server being migrated
// from, acting as the admin user.
func (m *Migrator) SourceProvider(serverRoot, password string) (*ConnectorProvider, error) {
	return NewProvider(ProviderConfig{
		AdminUsername: "admin",
		AdminPassword: password,
		ServerRoot:    serverRoot,
		Timeout:       m.cfg.Timeout,
		Transport:     m.cfg.Transport,
	}, nil, nil, m.logger)
}

// MigrateUser copies owner's calendar objects from source and returns how
// many were stored.
func (m *Migrator) MigrateUser(ctx context.Context, owner string, source Provider) (int64, error) {
	from, err := source.AdminConnector(owner)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to source calendar: %w", err)
	}
	to, err := m.target.AdminConnector(owner)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to target calendar: %w", err)
	}
	uris, err := from.GetCalendarURIs(ctx)
	if err != nil {
		return 0, err
	}
	m.logger.Info("owner has calendar records", "owner", owner, "count", len(uris))
	wrappers, err := from.GetCalendars(ctx, uris)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, w := range wrappers {
		// normalize the imported format through its JSON form
		normalized, err := w.CloneFromJSON()
		if err != nil {
			m.logger.Error("failed to normalize calendar", "owner", owner, "uri", w.URI().URI, "error", err)
			continue
		}
		if _, err := to.PutCalendar(ctx, normalized.Calendar()); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

type migration struct {
	count int64
	err   error
}

// Migrate migrates userIDs and calls emit with one line per user, in input
// order, followed by the total line.
func (m *Migrator) Migrate(ctx context.Context, source Provider, userIDs []string, emit func(line string)) int64 {
	results := make([]chan migration, len(userIDs))
	for i := range results {
		results[i] = make(chan migration, 1)
	}

	var limiter *rate.Limiter
	if m.cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.Rate), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	go func() {
		for i, id := range userIDs {
			i, id := i, id
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					results[i] <- migration{err: err}
					continue
				}
			}
			g.Go(func() error {
				n, err := m.MigrateUser(gctx, id, source)
				results[i] <- migration{count: n, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	var total int64
	for i, id := range userIDs {
		res := <-results[i]
		if res.err != nil {
			m.logger.Error("failed to migrate calendar", "owner", id, "error", res.err)
		}
		emit(fmt.Sprintf("User %s migrated %d tasks and events", id, res.count))
		total += res.count
	}
	emit(fmt.Sprintf("Migrated a total of %d tasks and events", total))
	return total
}

// Handle serves POST /system/myberkeley/calDavMigrator.
func (m *Migrator) Handle(c *gin.Context) {
	if !auth.Current(c).IsAdmin() {
		c.Status(http.StatusUnauthorized)
		return
	}
	_ = c.Request.ParseForm()
	userIDs := c.Request.Form["userIds"]
	server, hasServer := c.GetPostForm("calDavServer")
	if !hasServer {
		server, hasServer = c.GetQuery("calDavServer")
	}
	password, hasPassword := c.GetPostForm("calDavPassword")
	if !hasPassword {
		password, hasPassword = c.GetQuery("calDavPassword")
	}
	if len(userIDs) == 0 || !hasServer || !hasPassword {
		c.String(http.StatusBadRequest, "The userIds, calDavServer, and calDavPassword parameters are required")
		return
	}

	ctx := c.Request.Context()
	if len(userIDs) == 1 && userIDs[0] == AllUserIDs {
		all, err := m.users.AllUserIDs(ctx)
		if err != nil {
			m.logger.Error("failed to list users", "error", err)
			all = nil
		}
		userIDs = all
	}
	source, err := m.SourceProvider(server, password)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	m.Migrate(ctx, source, userIDs, func(line string) {
		_, _ = c.Writer.WriteString(line + "\n")
		c.Writer.Flush()
	})
}
