package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/specialistvlad/sosappend/internal/fsutil"
	"github.com/specialistvlad/sosappend/internal/merge"
	"github.com/specialistvlad/sosappend/internal/metrics"
	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/notify"
	"github.com/specialistvlad/sosappend/internal/sosid"
	"github.com/specialistvlad/sosappend/internal/versioning"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidInvocation wraps input errors detected before any I/O.
var ErrInvalidInvocation = errors.New("invalid invocation")

// ErrFigures is returned alongside a committed Result when figure upload failed.
var ErrFigures = errors.New("figure upload failed")

// figureExt selects the validation figures uploaded after a commit.
const figureExt = ".png"

// Invocation asks for the stages in Modules to be appended to the latest SoS
// of a continent and run type.
type Invocation struct {
	Continent string
	RunType   string
	Modules   []string
	// FiguresDir, when set, holds validation figures to upload with the version.
	FiguresDir string
}

// Result describes a committed invocation.
type Result struct {
	Continent string
	RunType   module.RunType
	Version   uint64
	// Modules lists the stages that had output, in merge order.
	Modules  []module.Name
	Attempts int
	Figures  int
}

// Append runs inv to completion: it merges the requested stages into the
// latest version and commits the result as the next one. A lost commit race
// restarts the pass from a fresh read, up to the job's max attempts.
func (a *App) Append(ctx context.Context, inv Invocation) (*Result, error) {
	plan, err := merge.NewPlan(inv.Continent, inv.RunType, inv.Modules)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInvocation, err)
	}
	logger := a.logger.With("continent", plan.Continent, "run_type", plan.RunType)
	ctx = ctxlog.WithLogger(ctx, logger)
	if len(plan.Duplicates) > 0 {
		logger.Warn("Modules requested more than once; the last occurrence wins.", "modules", plan.Duplicates)
	}

	maxAttempts := max(a.job.Commit.MaxAttempts, 1)
	var res *Result
	for attempt := 1; ; attempt++ {
		res, err = a.pass(ctx, plan)
		if err == nil {
			res.Attempts = attempt
			a.metrics.ObservePass(plan.Continent, string(plan.RunType), metrics.ResultCommitted)
			break
		}
		if !errors.Is(err, versioning.ErrVersionConflict) {
			a.metrics.ObservePass(plan.Continent, string(plan.RunType), metrics.ResultFailed)
			return nil, err
		}
		a.metrics.ObservePass(plan.Continent, string(plan.RunType), metrics.ResultConflict)
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Info("Another writer committed first, merging again.", "attempt", attempt, "error", err)
	}

	if inv.FiguresDir != "" {
		n, err := a.uploadFigures(ctx, inv.FiguresDir, plan.Continent, plan.RunType, res.Version)
		res.Figures = n
		if err != nil {
			logger.Error("Figure upload failed after commit.", "version", res.Version, "error", err)
			return res, fmt.Errorf("version %d committed: %w: %w", res.Version, ErrFigures, err)
		}
	}

	a.announce(ctx, res)
	return res, nil
}

// pass is one read-merge-commit cycle against the current latest version.
func (a *App) pass(ctx context.Context, plan *merge.Plan) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	index, err := a.index.Build(ctx, plan.Continent)
	if err != nil {
		return nil, err
	}
	latest, err := a.manager.Latest(ctx, plan.Continent, plan.RunType)
	if err != nil {
		return nil, err
	}
	if !latest.Index.Equal(index) {
		return nil, &sosid.MismatchError{
			Continent: plan.Continent,
			Reason:    fmt.Sprintf("the index changed since version %d was committed", latest.Version),
		}
	}
	logger.Debug("Latest version loaded.", "version", latest.Version, "identifiers", index.Len())

	contributions, err := a.reader.ReadAll(ctx, plan.Effective(), plan.Continent, plan.RunType, index)
	if err != nil {
		return nil, err
	}
	next, err := merge.Merge(latest, contributions)
	if err != nil {
		return nil, err
	}
	applied := make([]module.Name, len(contributions))
	for i, c := range contributions {
		applied[i] = c.Module
		a.metrics.ContributionsRead.WithLabelValues(string(c.Module)).Inc()
	}
	a.metrics.Merged(plan.Continent, string(plan.RunType), time.Since(started))
	if len(applied) == 0 {
		logger.Info("No stage output found; carrying the latest version forward.")
	}

	commitStarted := time.Now()
	version, err := a.manager.Commit(ctx, next, applied)
	if err != nil {
		return nil, err
	}
	a.metrics.Committed(plan.Continent, string(plan.RunType), version, time.Since(commitStarted))

	return &Result{
		Continent: plan.Continent,
		RunType:   plan.RunType,
		Version:   version,
		Modules:   applied,
	}, nil
}

// uploadFigures copies every figure under dir next to version. Figures
// already present at their key are left alone.
func (a *App) uploadFigures(ctx context.Context, dir, continent string, runType module.RunType, version uint64) (int, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFilesByExtension(dir, figureExt)
	if err != nil {
		return 0, fmt.Errorf("find figures in %s: %w", dir, err)
	}

	uploaded := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return uploaded, fmt.Errorf("read figure: %w", err)
		}
		key := a.manager.Layout().FigureKey(continent, runType, version, filepath.Base(f))
		if _, err := a.results.PutIfAbsent(ctx, key, data); err != nil {
			if errors.Is(err, blobstore.ErrPrecondition) {
				logger.Debug("Figure already uploaded.", "key", key)
				continue
			}
			return uploaded, fmt.Errorf("upload figure %s: %w", key, err)
		}
		uploaded++
	}
	a.metrics.FiguresTotal.WithLabelValues(continent, string(runType)).Add(float64(uploaded))
	logger.Info("Figures uploaded.", "version", version, "count", uploaded)
	return uploaded, nil
}

// announce notifies downstream consumers. Failures are logged only: the
// version is committed either way.
func (a *App) announce(ctx context.Context, res *Result) {
	modules := make([]string, len(res.Modules))
	for i, m := range res.Modules {
		modules[i] = string(m)
	}
	err := a.notifier.Committed(ctx, notify.Event{
		Continent:   res.Continent,
		RunType:     string(res.RunType),
		Version:     res.Version,
		Key:         a.manager.Layout().VersionKey(res.Continent, res.RunType, res.Version),
		Modules:     modules,
		Writer:      a.writer,
		CommittedAt: a.now(),
	})
	if err != nil {
		a.metrics.NotifyFailures.Inc()
		ctxlog.FromContext(ctx).Warn("Commit notification failed.", "version", res.Version, "error", err)
	}
}

// AppendMany runs invocations concurrently, at most a.job.Concurrency at a
// time. Every invocation runs regardless of the others' failures; results
// keep the order of invs and are nil for invocations that did not commit.
func (a *App) AppendMany(ctx context.Context, invs []Invocation) ([]*Result, error) {
	results := make([]*Result, len(invs))
	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	var g errgroup.Group
	g.SetLimit(max(a.job.Concurrency, 1))
	for i, inv := range invs {
		g.Go(func() error {
			res, err := a.Append(ctx, inv)
			results[i] = res
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s/%s: %w", inv.Continent, inv.RunType, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, result.ErrorOrNil()
}
