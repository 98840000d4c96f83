// Package app assembles the re-entry pipeline: configuration in, a set of
// lifecycle-managed services out. Every component implements the same
// small capability interface and is composed here by injection; nothing in
// the tree reaches for ambient singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"reentry/internal/config"
	"reentry/internal/feed"
	"reentry/internal/ledger"
	"reentry/internal/logger"
	"reentry/internal/reentry"
	"reentry/internal/rules"
	"reentry/internal/store/journal"
	"reentry/internal/store/symstate"

	"golang.org/x/sync/errgroup"
)

// Service is the lifecycle contract shared by every long-lived component.
// Initialize prepares resources, Start blocks until ctx is done (or
// returns nil immediately for passive components), Stop releases what
// Initialize acquired, HealthCheck probes liveness.
type Service interface {
	Name() string
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
	HealthCheck(ctx context.Context) error
}

// App owns the assembled pipeline. Construct with NewApp, drive with Run.
type App struct {
	cfg *config.Config

	proc     *reentry.Processor
	feed     *feed.Feed
	registry *rules.Registry
	writer   *ledger.Writer
	states   *symstate.Store // nil: gate state is memory-only
	journal  *journal.Store  // nil: journaling disabled

	services []Service
	Summary  *StartupSummary
}

// NewApp builds the application object from configuration. It does not
// start anything; Run does.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Processor exposes the decision processor for embedding callers and
// replay harnesses.
func (a *App) Processor() *reentry.Processor {
	if a == nil {
		return nil
	}
	return a.proc
}

// Run initializes every service, logs a health pass, then starts them
// under one errgroup until ctx is cancelled. Services are stopped in
// reverse registration order on the way out.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	for _, svc := range a.services {
		if err := svc.Initialize(ctx); err != nil {
			a.stopAll()
			return fmt.Errorf("initialize %s: %w", svc.Name(), err)
		}
		logger.Infof("service %s initialized", svc.Name())
	}

	for name, err := range a.Health(ctx) {
		if err != nil {
			logger.Warnf("health %s: %v", name, err)
		} else {
			logger.Debugf("health %s: ok", name)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, svc := range a.services {
		svc := svc
		group.Go(func() error {
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", svc.Name(), err)
			}
			return nil
		})
	}

	err := group.Wait()
	a.stopAll()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Health probes every service and returns the result per service name.
func (a *App) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(a.services))
	for _, svc := range a.services {
		out[svc.Name()] = svc.HealthCheck(ctx)
	}
	return out
}

// HealthReport renders the health map as sorted "name: status" lines.
func (a *App) HealthReport(ctx context.Context) []string {
	health := a.Health(ctx)
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		if err := health[name]; err != nil {
			lines = append(lines, fmt.Sprintf("%s: %v", name, err))
		} else {
			lines = append(lines, name+": ok")
		}
	}
	return lines
}

// stopAll stops services in reverse registration order.
func (a *App) stopAll() {
	for i := len(a.services) - 1; i >= 0; i-- {
		svc := a.services[i]
		if err := svc.Stop(); err != nil {
			logger.Warnf("stop %s: %v", svc.Name(), err)
		}
	}
}
