package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeExpiryScan sweeps every pharmacy for expired and expiring stock.
	TaskTypeExpiryScan = "alerts:expiry_scan"
	// TaskTypeIdempotencyCleanup prunes aged idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ExpiryScanPayload scopes a scan to one pharmacy when PharmacyID is set;
// zero means all pharmacies.
type ExpiryScanPayload struct {
	PharmacyID int64 `json:"pharmacy_id,omitempty"`
}

// NewExpiryScanTask constructs the expiry scan task.
func NewExpiryScanTask(payload ExpiryScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeExpiryScan, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}
