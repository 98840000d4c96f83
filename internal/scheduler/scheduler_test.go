package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvery(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30m", 30 * time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 2H ", 2 * time.Hour, true},
		{"", 0, false},
		{"d", 0, false},
		{"0d", 0, false},
		{"-1h", 0, false},
		{"1x", 0, false},
		{"1.5h", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseEvery(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNextAlignsToBoundary(t *testing.T) {
	s := &Aligned{Interval: 24 * time.Hour, Offset: 5 * time.Minute}

	now := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 5, 0, 0, time.UTC), s.next(now))

	// Just after a run: the following day, not the boundary we just left.
	now = time.Date(2025, 3, 8, 0, 5, 0, 100, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 5, 0, 0, time.UTC), s.next(now))

	// Between the boundary and its offset slot: today's slot, not tomorrow's.
	now = time.Date(2025, 3, 8, 0, 2, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 5, 0, 0, time.UTC), s.next(now))

	// Exactly on a boundary: the offset slot is still ahead.
	now = time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 5, 0, 0, time.UTC), s.next(now))
}

func TestStartRunsAlignedTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := NewAligned(ctx, "test", 30*time.Millisecond, 0)

	done := make(chan struct{})
	go func() {
		s.Start(func() { runs.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestStartRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s := NewAligned(ctx, "test", time.Hour, 0)
	s.RunImmediately = true

	done := make(chan struct{})
	go func() {
		s.Start(func() { runs.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestStartRejectsBadConfig(t *testing.T) {
	s := NewAligned(context.Background(), "bad", 0, 0)
	// Returns instead of spinning.
	s.Start(func() {})

	var nilSched *Aligned
	nilSched.Start(func() {})
}
