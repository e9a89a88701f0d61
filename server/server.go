// Package server assembles the HTTP endpoints and background jobs of the
// portal service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/foreignprincipal"
	"github.com/ets-berkeley-edu/myberkeley/internal/config"
	"github.com/ets-berkeley-edu/myberkeley/internal/mailer"
	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/migrators"
	"github.com/ets-berkeley-edu/myberkeley/notice"
	"github.com/ets-berkeley-edu/myberkeley/notification"
	"github.com/ets-berkeley-edu/myberkeley/provision"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/root"
	"github.com/ets-berkeley-edu/myberkeley/search"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

const (
	queueSize       = 1024
	shutdownTimeout = 10 * time.Second

	LogoutPath = "/system/sling/logout"
)

// Options carries the dependencies New cannot build from configuration.
type Options struct {
	Config *config.Config
	Repo   repository.Repository
	// Index is the Solr core. Nil disables indexing and indexed search.
	Index search.Index
	// People feeds the provisioning endpoints. Nil disables them.
	People provision.PersonAttributeProvider
	Logger *slog.Logger
	// Transport overrides the HTTP transport used for CalDAV, mostly for tests.
	Transport http.RoundTripper
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Server owns the gin engine and the jobs started alongside it.
type Server struct {
	cfg     *config.Config
	repo    repository.Repository
	logger  *slog.Logger
	engine  *gin.Engine
	jobs    []job
	closers []func()

	root     *root.ApplicationRootService
	foreign  *foreignprincipal.Manager
	mailer   *mailer.SMTPSender
	lists    *dynamiclist.Service
	calendar *caldav.ConnectorProvider
}

// New wires every component from opts. Nothing runs until Run is called.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Repo == nil {
		return nil, fmt.Errorf("config and repository are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg, repo, logger := opts.Config, opts.Repo, opts.Logger

	// Keep the interface nil when there is no index.
	var searcher search.Searcher
	if opts.Index != nil {
		searcher = opts.Index
	}

	s := &Server{
		cfg:     cfg,
		repo:    repo,
		logger:  logger,
		root:    root.NewApplicationRootService(repo, logger.With("component", "root")),
		foreign: foreignprincipal.NewManager(repo, logger.With("component", "foreignprincipal")),
	}

	var err error
	s.mailer, err = mailer.NewSMTPSender(mailerConfig(cfg.SMTP), logger.With("component", "mailer"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	s.lists, err = dynamiclist.NewService(repo, searcher, logger.With("component", "dynamiclist"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic list service: %w", err)
	}
	s.calendar, err = caldav.NewProvider(caldav.ProviderConfig{
		AdminUsername:  cfg.CalDAV.AdminUsername,
		AdminPassword:  cfg.CalDAV.AdminPassword,
		ServerRoot:     cfg.CalDAV.ServerRoot,
		Timeout:        cfg.CalDAV.Timeout,
		Embedded:       cfg.CalDAV.Embedded,
		EmbeddedSearch: cfg.CalDAV.EmbeddedSearch,
		Transport:      opts.Transport,
	}, repo, searcher, logger.With("component", "caldav"))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar provider: %w", err)
	}

	cookies, err := foreignprincipal.NewService(foreignprincipal.Config{
		Secret:     cfg.ForeignPrincipal.Secret,
		TTL:        cfg.ForeignPrincipal.TTL,
		CookieName: cfg.ForeignPrincipal.CookieName,
	}, logger.With("component", "foreignprincipal"))
	if err != nil {
		return nil, fmt.Errorf("failed to create foreign principal service: %w", err)
	}

	if opts.Index != nil {
		if err := s.addIndexing(opts.Index); err != nil {
			return nil, err
		}
	}
	if err := s.addNotifications(searcher); err != nil {
		return nil, err
	}
	noticeHandler := s.addNotices()

	s.engine = gin.New()
	s.engine.Use(
		gin.Recovery(),
		requestLogger(logger),
		auth.Middleware(auth.NewRepositoryAuthenticator(repo, logger.With("component", "auth")),
			cfg.Server.CASHeader, cfg.Server.Realm),
		foreignprincipal.Middleware(cookies, s.foreign, cfg.ForeignPrincipal.Redirect, logger),
	)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET(LogoutPath, foreignprincipal.NewAuthenticationHandler(cookies).Logout)

	caldav.NewProxyHandler(s.calendar, logger.With("component", "caldav")).Register(s.engine)
	calMigrator := caldav.NewMigrator(s.calendar, s.lists, caldav.MigratorConfig{
		Workers:   cfg.CalDAV.MigrationWorkers,
		Rate:      cfg.CalDAV.MigrationRate,
		Transport: opts.Transport,
		Timeout:   cfg.CalDAV.Timeout,
	}, logger.With("component", "caldav-migrator"))
	s.engine.POST("/system/myberkeley/calDavMigrator", calMigrator.Handle)

	dynamiclist.NewHandler(s.lists, logger.With("component", "dynamiclist")).Register(s.engine)
	notification.NewHandler(repo, searcher, logger.With("component", "notification")).Register(s.engine)
	noticeHandler.Register(s.engine)

	accounts := provision.NewAuthorizableService(repo, s.lists, logger.With("component", "provision"))
	provision.NewHandler(accounts, opts.People, cookies, logger.With("component", "provision")).Register(s.engine)

	runner := migrators.NewRunner(repo, logger.With("component", "migrators"))
	migrators.NewHandler(runner,
		migrators.NewForcedFileMigrator(repo, logger.With("component", "migrators")),
		migrators.NewMissingContentMigrator(repo, logger.With("component", "migrators")),
		migrators.NewPubspaceMigrator(repo, s.lists, cfg.Migrators.PubspacePagesPerSecond, logger.With("component", "migrators")),
		logger.With("component", "migrators"),
	).Register(s.engine)

	return s, nil
}

func mailerConfig(c config.SMTPConfig) mailer.Config {
	return mailer.Config{Server: c.Server, Port: c.Port, SendEmail: c.SendEmail}
}

func rootConfig(c config.RootConfig) root.Config {
	return root.Config{Path: c.Path, AdminPassword: c.AdminPassword}
}

func (s *Server) addIndexing(index search.Index) error {
	d, err := search.NewDispatcher(s.repo, index, s.logger.With("component", "indexer"))
	if err != nil {
		return fmt.Errorf("failed to create index dispatcher: %w", err)
	}
	dynamiclist.RegisterIndexing(d)
	d.AddHandler(notification.ResourceType, notification.IndexingHandler{})
	d.AddHandler(caldav.ComponentResourceType, caldav.NewIndexingHandler(s.logger.With("component", "indexer")))
	d.Attach(s.repo)
	s.jobs = append(s.jobs, job{name: "indexer", run: d.Run})
	return nil
}

func (s *Server) addNotifications(searcher search.Searcher) error {
	logger := s.logger.With("component", "notification")
	emailer, err := notification.NewEmailer(s.cfg.Notifications.EmailStyle, s.repo, s.mailer, logger)
	if err != nil {
		return err
	}
	jobCfg := notification.JobConfig{PollInterval: s.cfg.Notifications.PollInterval}
	if s.cfg.Notifications.SendReceipts {
		jobCfg.Receipts = notification.NewReceiptEmailer(s.repo, s.mailer, logger)
	}
	sendJob := notification.NewSendJob(s.repo, s.lists, s.calendar, emailer, jobCfg, logger)
	s.jobs = append(s.jobs, job{name: "notification-sender", run: sendJob.Run})
	return nil
}

func (s *Server) addNotices() *notice.Handler {
	logger := s.logger.With("component", "notice")
	pending := queue.New[notice.PendingMessage](queueSize)
	emails := queue.New[notice.EmailMessage](queueSize)
	s.closers = append(s.closers, pending.Close, emails.Close)

	sender := notice.NewQueuedMessageSender(s.repo, pending, notice.SenderConfig{
		PollInterval: s.cfg.Notices.PollInterval,
		Environment:  s.cfg.Notices.Environment,
		AdvisorGroup: s.cfg.Notices.AdvisorGroup,
	}, logger)
	router := notice.NewRouter(s.repo, notice.NewProfileQueryEvaluator(s.repo), logger)
	dispatcher := notice.NewDispatcher(s.repo, router, notice.NewInboxTransport(s.repo, logger), emails, logger)
	listener := notice.NewOutgoingEmailListener(s.repo, s.mailer, emails, notice.EmailConfig{
		SMTPServer:    s.cfg.SMTP.Server,
		RetryInterval: s.cfg.SMTP.RetryInterval,
		MaxRetries:    s.cfg.SMTP.MaxRetries,
	}, logger)

	s.jobs = append(s.jobs,
		job{name: "notice-sender", run: sender.Run},
		job{name: "notice-dispatcher", run: func(ctx context.Context) error { return dispatcher.Run(ctx, pending) }},
		job{name: "notice-email", run: listener.Run},
	)
	return notice.NewHandler(s.repo, pending, logger)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Bootstrap prepares the repository: the admin user, the root redirect, the
// foreign principal group and the configured root settings.
func (s *Server) Bootstrap(ctx context.Context) error {
	if err := s.root.Bootstrap(ctx); err != nil {
		return err
	}
	if err := s.foreign.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure foreign principal group: %w", err)
	}
	s.root.Apply(ctx, rootConfig(s.cfg.Root))
	return nil
}

// Reload applies the settings that can change while running.
func (s *Server) Reload(ctx context.Context, cfg *config.Config) {
	s.root.Apply(ctx, rootConfig(cfg.Root))
	s.mailer.Reconfigure(mailerConfig(cfg.SMTP))
}

// Run bootstraps the repository, then serves HTTP and runs the jobs until ctx
// is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range s.closers {
			closeFn()
		}
	}()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, j := range s.jobs {
		g.Go(func() error {
			s.logger.Info("starting job", "job", j.name)
			err := j.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("job failed", "job", j.name, "error", err)
				return fmt.Errorf("job %s: %w", j.name, err)
			}
			s.logger.Info("job stopped", "job", j.name)
			return nil
		})
	}
	return g.Wait()
}
