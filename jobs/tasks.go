package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantSweep removes grant rows whose expiry is long past.
	TaskGrantSweep = "grants:sweep"
	// TaskOrphanScan counts users with no tenant and publishes the gauge.
	TaskOrphanScan = "tenancy:orphan_scan"
)

// GrantSweepPayload configures one sweep run. RetainDays keeps recently
// expired rows around so admins can still inspect them before removal.
type GrantSweepPayload struct {
	RetainDays int `json:"retainDays"`
}

// NewGrantSweepTask constructs an Asynq task for the grant sweep.
func NewGrantSweepTask(retainDays int) (*asynq.Task, error) {
	data, err := json.Marshal(GrantSweepPayload{RetainDays: retainDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantSweep, data), nil
}

// OrphanScanPayload configures one orphan scan run.
type OrphanScanPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

// NewOrphanScanTask constructs an Asynq task for the orphan scan.
func NewOrphanScanTask(requestedAt time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(OrphanScanPayload{RequestedAt: requestedAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrphanScan, data), nil
}
