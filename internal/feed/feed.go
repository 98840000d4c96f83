// Package feed watches a drop directory for trade-close files, runs each
// one through the decision processor, and files the input away under an
// archive or reject directory depending on how the decision went.
//
// The bridge on the terminal side writes one JSON object per closed trade
// into the incoming directory (write to a temp name, rename into place).
// We pick files up via fsnotify and a polling sweep; the sweep also covers
// files dropped while this process was down.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reentry/internal/logger"
	"reentry/internal/reentry"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Mirror receives every response for secondary storage. *journal.Store
// satisfies it; a nil mirror disables mirroring.
type Mirror interface {
	Record(ctx context.Context, resp reentry.Response) error
}

// Options configures a Feed.
type Options struct {
	Dir        string
	ArchiveDir string
	FailDir    string
	Poll       time.Duration
	Workers    int

	// Alert receives operational alarm text when processing stalls on
	// ledger trouble. Nil disables alarming; delivery is the callback's
	// problem.
	Alert func(msg string)
}

// One alarm per window; a stuck disk must not flood the alert channel
// while the poll sweep keeps retrying the same files.
const alertThrottle = 10 * time.Minute

// Feed consumes drop files and drives the processor.
type Feed struct {
	proc   *reentry.Processor
	mirror Mirror
	opts   Options

	mu       sync.Mutex
	inflight map[string]struct{}

	alertMu   sync.Mutex
	lastAlert time.Time
}

// New builds a Feed. proc is required; mirror may be nil.
func New(proc *reentry.Processor, mirror Mirror, opts Options) (*Feed, error) {
	if proc == nil {
		return nil, errors.New("feed: processor is nil")
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("feed: incoming dir is empty")
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = filepath.Join(opts.Dir, "processed")
	}
	if opts.FailDir == "" {
		opts.FailDir = filepath.Join(opts.Dir, "rejected")
	}
	if opts.Poll <= 0 {
		opts.Poll = 5 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Feed{
		proc:     proc,
		mirror:   mirror,
		opts:     opts,
		inflight: make(map[string]struct{}),
	}, nil
}

// Run blocks until ctx is cancelled, processing drop files as they appear.
func (f *Feed) Run(ctx context.Context) error {
	for _, dir := range []string{f.opts.Dir, f.opts.ArchiveDir, f.opts.FailDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(f.opts.Dir); err != nil {
		return err
	}

	jobs := make(chan string, 64)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < f.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case path, ok := <-jobs:
					if !ok {
						return nil
					}
					f.handle(ctx, path)
				}
			}
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(f.opts.Poll)
		defer ticker.Stop()
		// Initial sweep picks up anything dropped while we were down.
		if err := f.sweep(ctx, jobs); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
					if err := f.sweep(ctx, jobs); err != nil {
						return err
					}
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warnf("feed: watcher error: %v", werr)
			case <-ticker.C:
				if err := f.sweep(ctx, jobs); err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ProcessOnce sweeps the incoming directory a single time and handles every
// eligible file inline. Used by the one-shot CLI path and by tests.
func (f *Feed) ProcessOnce(ctx context.Context) (int, error) {
	for _, dir := range []string{f.opts.Dir, f.opts.ArchiveDir, f.opts.FailDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	paths, err := f.eligible()
	if err != nil {
		return 0, err
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		f.handle(ctx, path)
	}
	return len(paths), nil
}

// sweep claims every eligible file and enqueues it.
func (f *Feed) sweep(ctx context.Context, jobs chan<- string) error {
	paths, err := f.eligible()
	if err != nil {
		logger.Warnf("feed: scan %s: %v", f.opts.Dir, err)
		return nil
	}
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case jobs <- path:
		}
	}
	return nil
}

// eligible lists unclaimed .json files in the incoming directory and marks
// them in flight. Claims are released by handle once the file is moved.
func (f *Feed) eligible() ([]string, error) {
	entries, err := os.ReadDir(f.opts.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		// Writers land files via rename; anything still named .tmp or not
		// .json is not ours to touch.
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if _, busy := f.inflight[name]; busy {
			continue
		}
		f.inflight[name] = struct{}{}
		out = append(out, filepath.Join(f.opts.Dir, name))
	}
	return out, nil
}

func (f *Feed) release(name string) {
	f.mu.Lock()
	delete(f.inflight, name)
	f.mu.Unlock()
}

// raiseAlert forwards alarm text to the Alert callback, at most once per
// throttle window.
func (f *Feed) raiseAlert(msg string) {
	if f.opts.Alert == nil {
		return
	}
	f.alertMu.Lock()
	if time.Since(f.lastAlert) < alertThrottle {
		f.alertMu.Unlock()
		return
	}
	f.lastAlert = time.Now()
	f.alertMu.Unlock()
	f.opts.Alert(msg)
}

// handle runs one file through parse and process, then files it away.
// Transient failures leave the file in place so the next sweep retries it.
func (f *Feed) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	defer f.release(name)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("feed: read %s: %v", name, err)
		}
		return
	}

	trade, err := ParseTrade(raw)
	if err != nil {
		logger.Warnf("feed: reject %s: %v", name, err)
		f.reject(path, err)
		return
	}

	resp, err := f.proc.Process(ctx, trade)
	if err != nil {
		if errors.Is(err, reentry.ErrInvalidContext) {
			logger.Warnf("feed: reject %s: %v", name, err)
			f.reject(path, err)
			return
		}
		// Ledger trouble is not the file's fault. Leave it in the incoming
		// directory; the poll sweep retries it.
		logger.Errorf("feed: process %s: %v", name, err)
		f.raiseAlert(fmt.Sprintf("*Decision pipeline stalled*\nProcessing failed, %s kept for retry.\nCause: %v", name, err))
		return
	}

	f.archive(ctx, path, resp)
}

// reject moves a bad file aside and drops an .error.txt next to it.
func (f *Feed) reject(path string, cause error) {
	name := filepath.Base(path)
	dst := filepath.Join(f.opts.FailDir, name)
	if err := os.Rename(path, dst); err != nil {
		logger.Errorf("feed: move %s to reject dir: %v", name, err)
		return
	}
	note := []byte(cause.Error() + "\n")
	if err := os.WriteFile(dst+".error.txt", note, 0o644); err != nil {
		logger.Warnf("feed: write error note for %s: %v", name, err)
	}
}

// archive moves a handled file aside, writes the response sidecar, and
// mirrors the response if a mirror is attached.
func (f *Feed) archive(ctx context.Context, path string, resp reentry.Response) {
	name := filepath.Base(path)
	dst := filepath.Join(f.opts.ArchiveDir, name)
	if err := os.Rename(path, dst); err != nil {
		logger.Errorf("feed: move %s to archive dir: %v", name, err)
		return
	}
	if payload, err := json.MarshalIndent(resp, "", "  "); err == nil {
		sidecar := strings.TrimSuffix(dst, ".json") + ".response.json"
		if werr := os.WriteFile(sidecar, append(payload, '\n'), 0o644); werr != nil {
			logger.Warnf("feed: write response for %s: %v", name, werr)
		}
	}
	if f.mirror != nil {
		if err := f.mirror.Record(ctx, resp); err != nil {
			logger.Warnf("feed: journal mirror for %s: %v", name, err)
		}
	}
	logger.Infof("feed: %s %s trade=%s", name, resp.Status, resp.TradeID)
}
