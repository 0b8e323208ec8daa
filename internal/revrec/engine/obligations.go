package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/recognition"
)

// ownerLookup resolves the contract a record belongs to so the right lock is taken.
type ownerLookup func(ctx context.Context, tx TxRepository) (string, error)

func (s *Service) ownerOf(ctx context.Context, lookup ownerLookup) (string, error) {
	var contractID string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		contractID, err = lookup(ctx, tx)
		return err
	})
	return contractID, err
}

// mutate runs fn in a transaction while holding the lock of the record's contract.
func (s *Service) mutate(ctx context.Context, tenantID string, lookup ownerLookup, fn func(ctx context.Context, tx TxRepository) error) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	contractID, err := s.ownerOf(ctx, lookup)
	if err != nil {
		return err
	}
	return s.withContractLock(ctx, tenantID, contractID, func() error {
		return s.repo.WithTx(ctx, fn)
	})
}

func obligationOwner(tenantID, id string) ownerLookup {
	return func(ctx context.Context, tx TxRepository) (string, error) {
		ob, err := tx.GetObligation(ctx, tenantID, id)
		return ob.ContractID, err
	}
}

// UpdateProgress records a new percent complete for an over-time obligation.
// Revenue follows on the next recognition run.
func (s *Service) UpdateProgress(ctx context.Context, tenantID, obligationID string, percent decimal.Decimal) (revrec.PerformanceObligation, error) {
	var out revrec.PerformanceObligation
	err := s.mutate(ctx, tenantID, obligationOwner(tenantID, obligationID), func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligation(ctx, tenantID, obligationID)
		if err != nil {
			return err
		}
		ob, err = recognition.ApplyProgress(ob, percent)
		if err != nil {
			return err
		}
		ob.UpdatedAt = s.clock()
		if err := tx.UpdateObligation(ctx, ob); err != nil {
			return err
		}
		out = ob
		return nil
	})
	if err != nil {
		return revrec.PerformanceObligation{}, err
	}
	s.logger.Info("obligation progress updated",
		slog.String("tenant_id", tenantID),
		slog.String("obligation_id", obligationID),
		slog.String("percent_complete", percent.String()))
	return out, nil
}

// SatisfyObligation records transfer of control for a point-in-time obligation
// and recognizes its revenue in the same transaction, so a satisfied
// obligation is never stored without its allocated price recognized.
func (s *Service) SatisfyObligation(ctx context.Context, tenantID, obligationID string, at time.Time) (revrec.PerformanceObligation, error) {
	if at.IsZero() {
		at = s.clock()
	}
	var (
		out    revrec.PerformanceObligation
		posted int
	)
	err := s.mutate(ctx, tenantID, obligationOwner(tenantID, obligationID), func(ctx context.Context, tx TxRepository) error {
		ob, err := tx.GetObligation(ctx, tenantID, obligationID)
		if err != nil {
			return err
		}
		ob, err = recognition.Satisfy(ob, at)
		if err != nil {
			return err
		}
		out, posted, err = s.recognizeWith(ctx, tx, tenantID, ob)
		return err
	})
	if err != nil {
		return revrec.PerformanceObligation{}, err
	}
	s.logger.Info("obligation satisfied",
		slog.String("tenant_id", tenantID),
		slog.String("obligation_id", obligationID),
		slog.String("recognized", out.RecognizedAmount.StringFixed(2)),
		slog.Int("entries", posted))
	s.record(ctx, AuditEvent{
		TenantID: tenantID,
		Action:   "obligation.satisfy",
		Entity:   "performance_obligation",
		EntityID: obligationID,
		Meta:     map[string]any{"recognized": out.RecognizedAmount.StringFixed(2), "entries": posted},
	})
	return out, nil
}

// recognizeWith reruns the contract of ob inside tx with ob in place of its
// stored copy and commits the resulting plan.
func (s *Service) recognizeWith(ctx context.Context, tx TxRepository, tenantID string, ob revrec.PerformanceObligation) (revrec.PerformanceObligation, int, error) {
	snap, err := Load(ctx, tx, tenantID, ob.ContractID, "")
	if err != nil {
		return ob, 0, err
	}
	for i := range snap.Obligations {
		if snap.Obligations[i].ID == ob.ID {
			snap.Obligations[i] = ob
		}
	}
	p, err := s.compute(snap)
	if err != nil {
		return ob, 0, err
	}
	out, found := ob, false
	for _, u := range p.updated {
		if u.ID == ob.ID {
			out, found = u, true
		}
	}
	if !found {
		ob.UpdatedAt = s.clock()
		p.updated = append(p.updated, ob)
		out = ob
	}
	if err := commit(ctx, tx, p); err != nil {
		return ob, 0, err
	}
	for kind, n := range countByKind(p.entries) {
		s.metrics.AddEntries(string(kind), n)
	}
	return out, len(p.entries), nil
}
