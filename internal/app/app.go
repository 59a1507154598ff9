// Package app ties runs to history, reports and notifications.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/tabide/pagecheck/internal/config"
	"github.com/tabide/pagecheck/internal/notifier"
	"github.com/tabide/pagecheck/internal/report"
	"github.com/tabide/pagecheck/internal/runner"
	"github.com/tabide/pagecheck/internal/store"
	"github.com/tabide/pagecheck/internal/types"
)

// App holds the application state.
type App struct {
	mu      sync.RWMutex
	runner  *runner.Runner  // immutable after creation
	builder *report.Builder // immutable after creation
	store   *store.Store    // nil when history is disabled

	// Mutable fields - use getSnapshot() for concurrent access.
	config   *config.Config
	notifier *notifier.Notifier
}

// snapshot holds fields that may be replaced by ReloadConfig.
type snapshot struct {
	config   *config.Config
	notifier *notifier.Notifier
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:   a.config,
		notifier: a.notifier,
	}
}

// New creates a new App instance. st and n may be nil to disable history and
// notifications.
func New(cfg *config.Config, r *runner.Runner, st *store.Store, n *notifier.Notifier) (*App, error) {
	builder, err := report.New()
	if err != nil {
		return nil, err
	}
	return &App{
		runner:   r,
		builder:  builder,
		store:    st,
		config:   cfg,
		notifier: n,
	}, nil
}

// NotifierFromConfig builds the notifier cfg asks for, or nil when e-mail is
// disabled.
func NotifierFromConfig(cfg *config.Config) (*notifier.Notifier, error) {
	if !cfg.Email.Enabled {
		return nil, nil
	}
	return notifier.NewFromConfig(cfg.Email)
}

// RunSuites executes runs, at most parallel at a time, each in its own
// browser. Every result is recorded and reported whether it passed or not.
// Results are returned in the order of runs; an entry is nil only when that
// run was invalid. The error joins every run's failure.
func (a *App) RunSuites(ctx context.Context, runs []*types.Run, parallel int) ([]*types.RunResult, error) {
	if parallel < 1 {
		parallel = 1
	}

	results := make([]*types.RunResult, len(runs))
	errs := make([]error, len(runs))

	// Suites are independent: one failing does not cancel the others
	var g errgroup.Group
	g.SetLimit(parallel)

	for i, run := range runs {
		g.Go(func() error {
			result, err := a.runner.Run(ctx, run)
			results[i] = result
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", run.Name, err)
			}
			if result != nil {
				a.handleResult(result)
			}
			return nil
		})
	}
	g.Wait()

	var passed int
	for _, r := range results {
		if r != nil && r.Passed() {
			passed++
		}
	}
	log.Printf("[app] %d of %d suites passed", passed, len(runs))

	return results, errors.Join(errs...)
}

// handleResult records, reports and notifies. Failures here are logged and
// never change the run's outcome.
func (a *App) handleResult(result *types.RunResult) {
	s := a.getSnapshot()

	if a.store != nil {
		if err := a.store.RecordRun(result); err != nil {
			log.Printf("[app] Failed to record run %s: %v", result.Name, err)
		}
	}

	if s.config.Report.JSON {
		if path, err := store.SaveReport(result.OutputDir, result); err != nil {
			log.Printf("[app] Failed to save report for %s: %v", result.Name, err)
		} else {
			log.Printf("[app] Report saved to: %s", path)
		}
	}

	if s.config.Report.HTML {
		if path, err := a.builder.Build(result); err != nil {
			log.Printf("[app] Failed to build gallery for %s: %v", result.Name, err)
		} else {
			log.Printf("[app] Gallery saved to: %s", path)
		}
	}

	if s.notifier != nil && !result.Passed() {
		if err := s.notifier.NotifyFailure(result); err != nil {
			log.Printf("[app] Failed to send notification for %s: %v", result.Name, err)
		}
	}
}

// ViewLastReport opens the gallery in dir, rebuilding it from the newest
// JSON report if it is missing.
func (a *App) ViewLastReport(dir string) error {
	path := filepath.Join(dir, report.IndexFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result, _, err := store.LatestReport(dir)
		if err != nil {
			log.Printf("[app] No report found: %v", err)
			return err
		}
		result.OutputDir = dir
		if path, err = a.builder.Build(result); err != nil {
			return err
		}
	}

	log.Printf("[app] Opening report: %s", path)
	return browser.OpenFile(path)
}

// Config returns the current configuration
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// ReloadConfig reloads the configuration from disk.
func (a *App) ReloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	n, err := NotifierFromConfig(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.notifier = n
	a.mu.Unlock()

	log.Println("[app] Configuration reloaded")
	return nil
}
