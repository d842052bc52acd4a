package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/config"
	"github.com/specialistvlad/sosappend/internal/contribution"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/specialistvlad/sosappend/internal/metrics"
	"github.com/specialistvlad/sosappend/internal/notify"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"github.com/specialistvlad/sosappend/internal/versioning"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	outW   io.Writer
	logger *slog.Logger
	config *Config
	job    *config.Config
	writer string

	stores   *storeSet
	results  blobstore.Store
	modules  blobstore.Store
	index    sosid.Builder
	reader   *contribution.Reader
	manager  *versioning.Manager
	notifier notify.Notifier

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	httpServer *http.Server
	now        func() time.Time
}

// Option customizes an App beyond what the job file says.
type Option func(*App)

// WithStores replaces the stores named in the job file.
func WithStores(results, modules blobstore.Store) Option {
	return func(a *App) {
		a.results, a.modules = results, modules
	}
}

// WithJob replaces the job file.
func WithJob(job *config.Config) Option {
	return func(a *App) {
		a.job = job
	}
}

// WithNotifier replaces the notifier built from the job's notify block.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

// WithClock sets the clock used for commit timestamps and dangling checks.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// NewApp loads the job file and opens its stores. The returned App must be
// closed.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		ctx:    ctx,
		outW:   outW,
		logger: logger,
		config: cfg,
		writer: cfg.Writer,
		stores: newStoreSet(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.writer == "" {
		a.writer = uuid.NewString()
	}

	if a.job == nil {
		job, err := config.Load(ctx, cfg.JobFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		a.job = job
	}
	if cfg.MaxAttempts > 0 {
		a.job.Commit.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Concurrency > 0 {
		a.job.Concurrency = cfg.Concurrency
	}

	if err := a.openStores(ctx); err != nil {
		return nil, multierror.Append(err, a.stores.Close()).ErrorOrNil()
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	moduleRoot := a.job.ModuleStore.Prefix
	a.index = sosid.NewBlobBuilder(a.modules, indexKey(a.job.IndexKey, moduleRoot))
	a.reader = contribution.NewReader(a.modules, contributionKey(a.job.ContributionKey, moduleRoot),
		contribution.WithConcurrency(a.job.Concurrency))
	a.manager = versioning.New(a.results, a.index, versioning.Config{
		Layout:        versioning.Layout{Prefix: a.job.ResultStore.Prefix},
		Writer:        a.writer,
		DanglingAfter: a.job.Commit.DanglingAfter,
		Retry:         retryPolicy(a.job.Commit),
		Attributes:    a.job.Attributes,
		Now:           a.now,
		OnRetry:       a.metrics.Retry,
	})

	if a.notifier == nil {
		n, err := newNotifier(a.job.Notify)
		if err != nil {
			return nil, multierror.Append(err, a.stores.Close()).ErrorOrNil()
		}
		a.notifier = n
	}

	logger.Debug("App initialized.", "writer", a.writer,
		"result_store", a.job.ResultStore.Kind, "module_store", a.job.ModuleStore.Kind)
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.results == nil {
		st, err := a.stores.open(ctx, a.job.ResultStore)
		if err != nil {
			return fmt.Errorf("open result store: %w", err)
		}
		a.results = st
	}
	if a.modules == nil {
		st, err := a.stores.open(ctx, a.job.ModuleStore)
		if err != nil {
			return fmt.Errorf("open module store: %w", err)
		}
		a.modules = st
	}
	return nil
}

func newNotifier(cfg *config.Notify) (notify.Notifier, error) {
	if cfg == nil {
		return notify.Nop{}, nil
	}
	return notify.NewSocketIO(notify.Options{
		URL:                cfg.URL,
		Namespace:          cfg.Namespace,
		Event:              cfg.Event,
		AckEvent:           cfg.AckEvent,
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.Insecure,
	})
}

// retryPolicy fills the policy fields the job left unset from the defaults.
func retryPolicy(c config.Commit) versioning.RetryPolicy {
	p := versioning.DefaultRetryPolicy
	if c.RetryInitial > 0 {
		p.InitialInterval = c.RetryInitial
	}
	if c.RetryMaxInterval > 0 {
		p.MaxInterval = c.RetryMaxInterval
	}
	if c.RetryMaxElapsed > 0 {
		p.MaxElapsedTime = c.RetryMaxElapsed
	}
	if c.RetryMax > 0 {
		p.MaxRetries = c.RetryMax
	}
	return p
}

// Start launches background services configured for the process.
func (a *App) Start() {
	a.healthCheckServer()
}

// Close stops the health check server and closes the stores.
func (a *App) Close() error {
	var result *multierror.Error
	if err := a.closeHealthCheckServer(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.stores.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Manager exposes the version manager for read-only commands.
func (a *App) Manager() *versioning.Manager {
	return a.manager
}

// Registry returns the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Context returns the App's base context carrying its logger.
func (a *App) Context() context.Context {
	return a.ctx
}
