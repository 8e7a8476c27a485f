package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"babylog/internal/maintenance"
)

// DefaultInterval is how often the scheduler nudges the daily sweep. The
// sweep itself no-ops except once per day.
const DefaultInterval = time.Hour

// Maintainer runs the daily sweep.
type Maintainer interface {
	RunDailyMaintenance(ctx context.Context) (maintenance.Result, bool, error)
}

// Start registers the maintenance job and starts the scheduler. The first
// run happens immediately.
func Start(m Maintainer, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) (gocron.Scheduler, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, ran, err := m.RunDailyMaintenance(ctx); err != nil {
				logger.Error("scheduled maintenance failed", "error", err)
			} else if ran {
				logger.Debug("scheduled maintenance ran")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	s.Start()
	return s, nil
}
