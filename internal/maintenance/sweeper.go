// Package maintenance runs the once-a-day backup and retention sweep.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"babylog/internal/metrics"
	"babylog/internal/models"
)

// Retention is how long entries and poop events are kept.
const Retention = 32 * 24 * time.Hour

// Store is what the sweep needs from the durable store.
type Store interface {
	Backup(ctx context.Context, dir string, now time.Time) (string, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (entries, poops int64, err error)
}

// Result describes one completed sweep.
type Result struct {
	RunID          string
	BackupPath     string
	BackupErr      error
	EntriesDeleted int64
	PoopsDeleted   int64
}

type Sweeper struct {
	store      Store
	backupDir  string
	clock      clockwork.Clock
	logger     *slog.Logger
	afterPrune func()

	mu      sync.Mutex // held for the whole run
	state   models.SweepState
	lastRun string // UTC date of the last run, 2006-01-02
	stateMu sync.Mutex
}

type Option func(*Sweeper)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAfterPrune registers fn to run after rows were pruned, e.g. to drop
// cached views that may still show them.
func WithAfterPrune(fn func()) Option {
	return func(s *Sweeper) {
		s.afterPrune = fn
	}
}

func New(store Store, backupDir string, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		backupDir: backupDir,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether a sweep is in progress.
func (s *Sweeper) State() models.SweepState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Sweeper) setState(st models.SweepState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// RunDailyMaintenance is safe to call on every interaction. It runs the
// sweep at most once per UTC calendar day; concurrent callers that find a
// sweep in progress return immediately. ran is false for a no-op.
func (s *Sweeper) RunDailyMaintenance(ctx context.Context) (res Result, ran bool, err error) {
	if !s.mu.TryLock() {
		return Result{}, false, nil
	}
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	today := now.Format(time.DateOnly)
	if s.lastRun == today {
		return Result{}, false, nil
	}
	s.lastRun = today

	s.setState(models.SweepRunning)
	defer s.setState(models.SweepIdle)

	res.RunID = uuid.NewString()
	log := s.logger.With("run_id", res.RunID)
	log.Info("daily maintenance started", "date", today)

	res.BackupPath, res.BackupErr = s.store.Backup(ctx, s.backupDir, now)
	if res.BackupErr != nil {
		log.Warn("backup failed, pruning anyway", "error", res.BackupErr)
		metrics.SweepRuns.WithLabelValues("backup_failed").Inc()
	}

	cutoff := now.Add(-Retention)
	res.EntriesDeleted, res.PoopsDeleted, err = s.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Error("retention prune failed", "error", err)
		metrics.SweepRuns.WithLabelValues("prune_failed").Inc()
		s.lastRun = "" // let the next trigger try again
		return res, true, err
	}
	if s.afterPrune != nil && res.EntriesDeleted+res.PoopsDeleted > 0 {
		s.afterPrune()
	}
	metrics.SweepPruned.WithLabelValues("entries").Add(float64(res.EntriesDeleted))
	metrics.SweepPruned.WithLabelValues("poop_events").Add(float64(res.PoopsDeleted))
	if res.BackupErr == nil {
		metrics.SweepRuns.WithLabelValues("ok").Inc()
	}

	log.Info("daily maintenance finished",
		"backup", res.BackupPath,
		"entries_deleted", res.EntriesDeleted,
		"poops_deleted", res.PoopsDeleted,
	)
	return res, true, nil
}
