// Package backup writes periodic snapshots of the occurrence list to disk.
//
// Each run produces taskcal-<stamp>.json (the same document the store
// persists) and taskcal-<stamp>.ics. Only the newest Keep pairs survive.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskcal/internal/ics"
	appLog "taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/store"
)

const (
	filePrefix  = "taskcal-"
	stampLayout = "20060102T150405Z"
)

// Source supplies the occurrences to snapshot.
type Source interface {
	All() []model.Occurrence
}

type Config struct {
	Dir  string
	Keep int
	Now  func() time.Time
}

// Backup owns the snapshot directory and, once started, a cron scheduler.
type Backup struct {
	src  Source
	dir  string
	keep int
	now  func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(src Source, cfg Config) *Backup {
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Backup{src: src, dir: cfg.Dir, keep: cfg.Keep, now: cfg.Now}
}

// RunOnce writes one snapshot pair and prunes old ones. It returns the
// stamp used in the file names.
func (b *Backup) RunOnce(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return "", fmt.Errorf("backup dir: %w", err)
	}

	now := b.now().UTC()
	stamp := now.Format(stampLayout)
	occs := b.src.All()

	data, err := json.MarshalIndent(occs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	base := filepath.Join(b.dir, filePrefix+stamp)
	if err := store.WriteFileAtomic(base+".json", data); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	cal := ics.Export(occs, ics.ExportOptions{Name: "taskcal backup " + stamp, Now: func() time.Time { return now }})
	if err := store.WriteFileAtomic(base+".ics", []byte(cal)); err != nil {
		return "", fmt.Errorf("write calendar snapshot: %w", err)
	}

	removed, err := b.prune()
	if err != nil {
		appLog.Warn("backup: prune failed", "dir", b.dir, "err", err)
	}
	appLog.Info("backup: snapshot written", "dir", b.dir, "stamp", stamp, "occurrences", len(occs), "pruned", removed)
	return stamp, nil
}

// prune removes snapshot pairs beyond the newest keep.
func (b *Backup) prune() (int, error) {
	stamps, err := b.Stamps()
	if err != nil {
		return 0, err
	}
	if len(stamps) <= b.keep {
		return 0, nil
	}
	var errs []error
	removed := 0
	for _, stamp := range stamps[:len(stamps)-b.keep] {
		for _, ext := range []string{".json", ".ics"} {
			err := os.Remove(filepath.Join(b.dir, filePrefix+stamp+ext))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Stamps lists the snapshots on disk, oldest first.
func (b *Backup) Stamps() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	seen := make(map[string]bool)
	var stamps []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json"), ".ics")
		if _, err := time.Parse(stampLayout, stamp); err != nil || seen[stamp] {
			continue
		}
		seen[stamp] = true
		stamps = append(stamps, stamp)
	}
	sort.Strings(stamps)
	return stamps, nil
}

// Start schedules RunOnce on a standard five-field cron spec. Overlapping
// runs are skipped.
func (b *Backup) Start(spec string) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := b.RunOnce(context.Background()); err != nil {
			appLog.Error("backup: scheduled run failed", err)
		}
	}); err != nil {
		return fmt.Errorf("backup schedule %q: %w", spec, err)
	}

	b.mu.Lock()
	b.cron = c
	b.mu.Unlock()

	c.Start()
	appLog.Info("backup: scheduler started", "cron", spec, "dir", b.dir, "keep", b.keep)
	return nil
}

// Stop halts the scheduler and waits for a running snapshot to finish or
// ctx to expire.
func (b *Backup) Stop(ctx context.Context) {
	b.mu.Lock()
	c := b.cron
	b.cron = nil
	b.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		appLog.Warn("backup: stop timed out")
	}
}

// cronLogger routes the scheduler's own messages to appLog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
