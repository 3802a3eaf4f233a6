package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/scholaris/scholaris-access/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper deletes grants whose expiry predates the cutoff.
type Sweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// GrantSweepJob removes long-expired grant rows. Expired grants already stop
// counting at read time, so the sweep is pure hygiene and safe to rerun.
type GrantSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGrantSweepJob initialises the sweep handler.
func NewGrantSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantSweepJob {
	return &GrantSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep run.
func (j *GrantSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("grant sweep: handler not configured")
	}
	var payload GrantSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainDays <= 0 {
		payload.RetainDays = 30
	}

	tracker := j.metrics().Track(TaskGrantSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.RetainDays)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	logger.Info("starting grant sweep")

	removed, err := j.Sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddSwept(removed)

	logger.Info("completed grant sweep", slog.Int64("removed", removed))
	return resultErr
}

func (j *GrantSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGrantSweep))
	}
	return slog.Default().With(slog.String("job", TaskGrantSweep))
}

func (j *GrantSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GrantSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
