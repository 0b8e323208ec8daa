package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/revrec/internal/jobs"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RecognitionService is the part of the engine the background jobs drive.
type RecognitionService interface {
	RunAll(ctx context.Context, tenantID string) (engine.BatchResult, error)
	PostPending(ctx context.Context, tenantID string) (int, error)
}

// RecognitionJob runs batch recalculation and draft posting for tenants.
type RecognitionJob struct {
	Service RecognitionService
	Tenants []string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRecognitionJob constructs the job handlers. tenants is the set
// expanded when a payload targets AllTenants.
func NewRecognitionJob(service RecognitionService, tenants []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecognitionJob {
	return &RecognitionJob{
		Service: service,
		Tenants: tenants,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleBatch executes TaskRecognitionBatch. Per-contract failures are
// reported by the engine and logged here. Validation and inconsistent-state
// failures do not fail the task; external I/O failures do, so Asynq retries
// the batch and the rerun posts only what is still missing.
func (j *RecognitionJob) HandleBatch(ctx context.Context, task *asynq.Task) (err error) {
	tenants, err := j.targets(task)
	if err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskRecognitionBatch)
	defer func() {
		err = tracker.End(err)
	}()

	start := j.now()
	processed, failed, retryable := 0, 0, 0
	for _, tenant := range tenants {
		res, runErr := j.Service.RunAll(ctx, tenant)
		if runErr != nil {
			j.log().Error("batch recalculation", slog.String("tenant_id", tenant), slog.Any("error", runErr))
			return runErr
		}
		processed += res.Processed
		failed += res.Failed
		for _, ce := range res.Errors {
			if ce.Kind == engine.KindExternalIO {
				retryable++
			}
			j.log().Warn("contract skipped", slog.String("tenant_id", tenant), slog.String("contract_id", ce.ContractID),
				slog.String("kind", ce.Kind), slog.String("error", ce.Message))
		}
	}
	j.log().Info("batch recalculation finished", slog.Int("tenants", len(tenants)), slog.Int("processed", processed),
		slog.Int("failed", failed), slog.Duration("duration", j.now().Sub(start)))
	if retryable > 0 {
		return fmt.Errorf("recognition batch: %d contracts failed on storage access: %w", retryable, revrec.ErrExternalIO)
	}
	return nil
}

// HandlePostPending executes TaskPostPending.
func (j *RecognitionJob) HandlePostPending(ctx context.Context, task *asynq.Task) (err error) {
	tenants, err := j.targets(task)
	if err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskPostPending)
	defer func() {
		err = tracker.End(err)
	}()

	posted := 0
	for _, tenant := range tenants {
		n, postErr := j.Service.PostPending(ctx, tenant)
		if postErr != nil {
			j.log().Error("post pending", slog.String("tenant_id", tenant), slog.Any("error", postErr))
			return postErr
		}
		posted += n
	}
	j.log().Info("posted pending entries", slog.Int("tenants", len(tenants)), slog.Int("entries", posted))
	return nil
}

func (j *RecognitionJob) targets(task *asynq.Task) ([]string, error) {
	if j == nil || j.Service == nil {
		return nil, errors.New("recognition job: dependencies not configured")
	}
	var payload TenantPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("recognition job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID != "" && payload.TenantID != AllTenants {
		return []string{payload.TenantID}, nil
	}
	if len(j.Tenants) == 0 {
		return nil, fmt.Errorf("recognition job: no tenants configured: %w", asynq.SkipRetry)
	}
	return j.Tenants, nil
}

func (j *RecognitionJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RecognitionJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("component", "revrec_jobs"))
	}
	return slog.Default().With(slog.String("component", "revrec_jobs"))
}

func (j *RecognitionJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *RecognitionJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
