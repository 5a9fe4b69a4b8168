package configuration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/cron"
)

// Janitor removes stale downloads and forgets long idle operations.
type Janitor struct {
	Dir         string
	MaxAge      time.Duration
	Transitions *Transitions
	Logger      operations.Logger

	now func() time.Time
}

func NewJanitor(m *Manager, maxAge time.Duration) *Janitor {
	return &Janitor{
		Dir:         m.TmpDir(),
		MaxAge:      maxAge,
		Transitions: m.Transitions(),
		Logger:      m.logger,
	}
}

// Sweep deletes download files older than MaxAge and returns how many
// were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	cutoff := now().Add(-j.MaxAge)
	logger := operations.NormalizeLogger(j.Logger).WithContext(ctx)

	if j.Transitions != nil {
		if n := j.Transitions.Prune(cutoff); n > 0 {
			logger.Debug("forgot %d stale configuration operations", n)
		}
	}

	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), DownloadPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.Dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("removing stale download %s failed: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("removed %d stale downloads from %s", removed, j.Dir)
	}
	return removed, nil
}

// Schedule runs Sweep on expr.
func (j *Janitor) Schedule(s *cron.Scheduler, expr string) (cron.Handle, error) {
	return s.Schedule(cron.Job{
		Name:       "configuration-janitor",
		Expression: expr,
		Timeout:    time.Minute,
	}, func(ctx context.Context) error {
		_, err := j.Sweep(ctx)
		return err
	})
}
