// Package scheduler runs maintenance tasks on a UTC-aligned cadence.
// The pipeline uses it for the nightly state sweep: interval 1d with a
// small offset lands the run just after the UTC day rolls over, which is
// when the daily attempt counters go stale.
package scheduler

import (
	"context"
	"time"

	"reentry/internal/logger"
)

// Aligned fires a task at fixed UTC boundaries: every Interval, Offset
// after the boundary. Start blocks until the context is done.
type Aligned struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAligned(ctx context.Context, name string, interval, offset time.Duration) *Aligned {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Aligned{
		Name:     name,
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

func (s *Aligned) Start(task func()) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("scheduler[%s]: task is nil, exit", s.Name)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("scheduler[%s]: negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("scheduler[%s]: started interval=%s offset=%s run_immediately=%v",
		s.Name, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	for {
		next := s.next(s.nowFn().UTC())
		logger.Infof("scheduler[%s]: next run at %s", s.Name, next.Format(time.RFC3339))
		if !s.waitUntil(next) {
			logger.Infof("scheduler[%s]: stopped after %s",
				s.Name, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		}
		task()
	}
}

// next computes the first boundary-plus-offset strictly after now. A
// process starting between a boundary and its offset slot still catches
// that slot instead of waiting a full interval.
func (s *Aligned) next(now time.Time) time.Time {
	candidate := now.Truncate(s.Interval).Add(s.Offset)
	if !candidate.After(now) {
		candidate = candidate.Add(s.Interval)
	}
	return candidate
}

// waitUntil sleeps until target or context cancellation; false on cancel.
func (s *Aligned) waitUntil(target time.Time) bool {
	wait := target.Sub(s.nowFn().UTC())
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
