package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// ContractError records why one contract failed inside a batch.
type ContractError struct {
	ContractID string `json:"contract_id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// BatchResult tallies a run over every contract of a tenant.
type BatchResult struct {
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Errors    []ContractError `json:"errors"`
}

// RunAll runs the engine sequentially for every contract of the tenant. A
// failing contract is recorded and the loop continues; only failing to list
// contracts aborts the batch.
func (s *Service) RunAll(ctx context.Context, tenantID string) (BatchResult, error) {
	var result BatchResult
	if err := requireTenant(tenantID); err != nil {
		return result, err
	}
	ctx, span := tracer.Start(ctx, "revrec.run_all", trace.WithAttributes(attribute.String("revrec.tenant_id", tenantID)))
	defer span.End()
	tracker := s.metrics.Track("revrec_run_all")

	var contracts []revrec.Contract
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		contracts, err = tx.ListContracts(ctx, tenantID)
		return err
	})
	if err != nil {
		return result, tracker.End(err)
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })

	for _, c := range contracts {
		if err := ctx.Err(); err != nil {
			return result, tracker.End(err)
		}
		if _, err := s.RunEngine(ctx, tenantID, c.ID, ""); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ContractError{ContractID: c.ID, Kind: Classify(err), Message: err.Error()})
			continue
		}
		result.Processed++
	}

	span.SetAttributes(attribute.Int("revrec.processed", result.Processed), attribute.Int("revrec.failed", result.Failed))
	s.metrics.AddBatch(result.Processed, result.Failed)
	s.logger.Info("batch recalculation complete",
		slog.String("tenant_id", tenantID),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed))
	_ = tracker.End(nil)
	return result, nil
}

// Error kinds reported in ContractError.Kind.
const (
	KindValidation        = "validation"
	KindConcurrency       = "concurrency"
	KindInconsistentState = "inconsistent_state"
	KindPostingImbalance  = "posting_imbalance"
	KindNotFound          = "not_found"
	KindExternalIO        = "external_io"
	KindInternal          = "internal"
)

// Classify names the error kind for reporting.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, revrec.ErrValidation):
		return KindValidation
	case errors.Is(err, revrec.ErrConcurrency):
		return KindConcurrency
	case errors.Is(err, revrec.ErrInconsistentState):
		return KindInconsistentState
	case errors.Is(err, revrec.ErrPostingImbalance):
		return KindPostingImbalance
	case errors.Is(err, revrec.ErrNotFound):
		return KindNotFound
	case errors.Is(err, revrec.ErrExternalIO):
		return KindExternalIO
	default:
		return KindInternal
	}
}
