package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/scholaris/scholaris-access/internal/jobs"
)

// OrphanCounter reports how many users lack a tenant assignment.
type OrphanCounter interface {
	CountOrphans(ctx context.Context) (int64, error)
}

// OrphanGauge receives the latest orphan population size.
type OrphanGauge interface {
	SetOrphanUsers(count int64)
}

// OrphanScanJob counts tenant-less users and publishes the result so the
// OrphanUsersDetected alert can fire.
type OrphanScanJob struct {
	Counter OrphanCounter
	Gauge   OrphanGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOrphanScanJob initialises the orphan scan handler.
func NewOrphanScanJob(counter OrphanCounter, gauge OrphanGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *OrphanScanJob {
	return &OrphanScanJob{
		Counter: counter,
		Gauge:   gauge,
		Logger:  logger,
		Metrics: metrics,
	}
}

// Handle executes one orphan scan.
func (j *OrphanScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Counter == nil {
		return errors.New("orphan scan: handler not configured")
	}
	var payload OrphanScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskOrphanScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting orphan scan")

	count, err := j.Counter.CountOrphans(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	if j.Gauge != nil {
		j.Gauge.SetOrphanUsers(count)
	}
	if count > 0 {
		logger.Warn("users without tenant detected", slog.Int64("orphans", count))
	} else {
		logger.Info("completed orphan scan", slog.Int64("orphans", count))
	}
	return resultErr
}

func (j *OrphanScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOrphanScan))
	}
	return slog.Default().With(slog.String("job", TaskOrphanScan))
}

func (j *OrphanScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
