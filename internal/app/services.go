package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"reentry/internal/feed"
	"reentry/internal/rules"
	"reentry/internal/scheduler"
	"reentry/internal/store/journal"
	"reentry/internal/store/symstate"
)

// rulesService fronts the parameter-set registry. The registry's file
// watcher runs on its own goroutine from construction; this adapter only
// gives it a lifecycle surface.
type rulesService struct {
	reg *rules.Registry
}

func (s *rulesService) Name() string { return "rules" }

func (s *rulesService) Initialize(context.Context) error {
	// A reload here proves the file still parses at startup, not just at
	// construction time.
	return s.reg.Reload()
}

func (s *rulesService) Start(context.Context) error { return nil }
func (s *rulesService) Stop() error                 { return nil }

func (s *rulesService) HealthCheck(context.Context) error {
	snap := s.reg.Snapshot()
	if len(snap.Sets) == 0 {
		return fmt.Errorf("no parameter sets loaded")
	}
	return nil
}

// ledgerService watches over the ledger directory.
type ledgerService struct {
	dir string
}

func (s *ledgerService) Name() string { return "ledger" }

func (s *ledgerService) Initialize(context.Context) error { return nil }
func (s *ledgerService) Start(context.Context) error      { return nil }
func (s *ledgerService) Stop() error                      { return nil }

func (s *ledgerService) HealthCheck(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// stateService owns the symbol-state database. A nil store means the gate
// state lives in memory only; every probe then reports healthy.
type stateService struct {
	store *symstate.Store
}

func (s *stateService) Name() string                     { return "state" }
func (s *stateService) Initialize(context.Context) error { return nil }
func (s *stateService) Start(context.Context) error      { return nil }

func (s *stateService) Stop() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *stateService) HealthCheck(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	_, err := s.store.Load(ctx)
	return err
}

// journalService owns the decision journal database.
type journalService struct {
	store *journal.Store
}

func (s *journalService) Name() string                     { return "journal" }
func (s *journalService) Initialize(context.Context) error { return nil }
func (s *journalService) Start(context.Context) error      { return nil }

func (s *journalService) Stop() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *journalService) HealthCheck(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	_, err := s.store.CountByStatus(ctx)
	return err
}

// feedService runs the drop-directory consumer.
type feedService struct {
	feed *feed.Feed
	dir  string
}

func (s *feedService) Name() string                     { return "feed" }
func (s *feedService) Initialize(context.Context) error { return nil }
func (s *feedService) Stop() error                      { return nil }

func (s *feedService) Start(ctx context.Context) error {
	return s.feed.Run(ctx)
}

func (s *feedService) HealthCheck(context.Context) error {
	if _, err := os.Stat(s.dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sweepService runs the aligned nightly sweep over gate state. The
// scheduler is built at Start so it binds to the run context.
type sweepService struct {
	every  time.Duration
	offset time.Duration
	task   func()
}

func (s *sweepService) Name() string { return "sweep" }

func (s *sweepService) Initialize(context.Context) error {
	if s.every <= 0 {
		return fmt.Errorf("sweep cadence must be positive")
	}
	return nil
}

func (s *sweepService) Start(ctx context.Context) error {
	scheduler.NewAligned(ctx, s.Name(), s.every, s.offset).Start(s.task)
	return nil
}

func (s *sweepService) Stop() error                       { return nil }
func (s *sweepService) HealthCheck(context.Context) error { return nil }
