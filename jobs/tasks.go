package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecognitionBatch recalculates every contract of the targeted tenants.
	TaskRecognitionBatch = "revrec:run_all"
	// TaskPostPending posts draft ledger entries of the targeted tenants.
	TaskPostPending = "revrec:post_pending"
)

// AllTenants targets every tenant the worker is configured for.
const AllTenants = "all"

// TenantPayload scopes a job to one tenant or to AllTenants.
type TenantPayload struct {
	TenantID string `json:"tenant_id"`
}

// NewRecognitionBatchTask builds the batch recalculation task.
func NewRecognitionBatchTask(tenantID string) (*asynq.Task, error) {
	return newTenantTask(TaskRecognitionBatch, tenantID)
}

// NewPostPendingTask builds the draft posting task.
func NewPostPendingTask(tenantID string) (*asynq.Task, error) {
	return newTenantTask(TaskPostPending, tenantID)
}

func newTenantTask(typ, tenantID string) (*asynq.Task, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = AllTenants
	}
	body, err := json.Marshal(TenantPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
