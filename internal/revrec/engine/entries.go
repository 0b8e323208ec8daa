package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/ledger"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

func entryOwner(tenantID, id string) ownerLookup {
	return func(ctx context.Context, tx TxRepository) (string, error) {
		e, err := tx.GetEntry(ctx, tenantID, id)
		return e.ContractID, err
	}
}

// ReverseEntry posts the reversal of a ledger entry and rolls back the
// recognized amount it carried. Invoice entries are reversed through
// CancelBilling instead so the billing schedule stays in step.
func (s *Service) ReverseEntry(ctx context.Context, tenantID, entryID string, at time.Time) (revrec.LedgerEntry, error) {
	if at.IsZero() {
		at = s.clock()
	}
	var reversal revrec.LedgerEntry
	err := s.mutate(ctx, tenantID, entryOwner(tenantID, entryID), func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntry(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if original.BillingScheduleID != "" {
			return revrec.Invalid("entry_id", "entry %s belongs to billing %s; cancel the billing instead", entryID, original.BillingScheduleID)
		}
		prior, err := tx.ListEntries(ctx, tenantID, original.ContractID)
		if err != nil {
			return err
		}
		reversal, err = s.poster.Reverse(original, prior, at, s.opts.AutoPost)
		if err != nil {
			return err
		}

		switch {
		case original.EventKind == revrec.EventRevenue && original.ObligationID != "":
			ob, err := tx.GetObligation(ctx, tenantID, original.ObligationID)
			if err != nil {
				return err
			}
			ob.RecognizedAmount = ob.RecognizedAmount.Sub(original.Amount)
			ob.DeferredAmount = ob.AllocatedPrice.Sub(ob.RecognizedAmount)
			ob.IsSatisfied = false
			ob.SatisfiedAt = nil
			ob.Status = revrec.ObligationUnsatisfied
			if ob.RecognizedAmount.IsPositive() {
				ob.Status = revrec.ObligationPartiallyRecognized
			}
			ob.UpdatedAt = s.clock()
			if err := tx.UpdateObligation(ctx, ob); err != nil {
				return err
			}
		case original.EventKind == revrec.EventFinancing:
			fc, err := tx.GetFinancing(ctx, tenantID, original.ContractID)
			if err != nil {
				return err
			}
			if fc != nil {
				fc.RecognizedInterest = fc.RecognizedInterest.Sub(original.Amount)
				fc.UpdatedAt = s.clock()
				if err := tx.UpdateFinancing(ctx, *fc); err != nil {
					return err
				}
			}
		}
		return tx.InsertEntries(ctx, []revrec.LedgerEntry{reversal})
	})
	if err != nil {
		return revrec.LedgerEntry{}, err
	}
	s.record(ctx, AuditEvent{
		TenantID: tenantID,
		Action:   "ledger.reverse",
		Entity:   "ledger_entry",
		EntityID: entryID,
		Meta:     map[string]any{"reversal_id": reversal.ID, "amount": reversal.Amount.StringFixed(2)},
	})
	return reversal, nil
}

// ListUnposted returns the draft entries of the tenant.
func (s *Service) ListUnposted(ctx context.Context, tenantID string) ([]revrec.LedgerEntry, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var out []revrec.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListUnposted(ctx, tenantID)
		return err
	})
	return out, err
}

// PostPending flips every draft entry of the tenant to posted. The transition is one-way.
func (s *Service) PostPending(ctx context.Context, tenantID string) (int, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	now := s.clock()
	var count int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		drafts, err := tx.ListUnposted(ctx, tenantID)
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return nil
		}
		ids := make([]string, 0, len(drafts))
		for _, e := range drafts {
			if err := ledger.ValidateEntry(e); err != nil {
				return err
			}
			ids = append(ids, e.ID)
		}
		if err := tx.MarkPosted(ctx, tenantID, ids, now); err != nil {
			return err
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("draft entries posted", slog.String("tenant_id", tenantID), slog.Int("count", count))
	return count, nil
}

// Reconcile builds the account reconciliation for the tenant over opts.
func (s *Service) Reconcile(ctx context.Context, tenantID string, opts reconcile.Options) (reconcile.Report, error) {
	if err := requireTenant(tenantID); err != nil {
		return reconcile.Report{}, err
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return reconcile.Report{}, revrec.Invalid("end", "must not be before start")
	}
	var entries []revrec.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, tenantID, opts.ContractID)
		return err
	})
	if err != nil {
		return reconcile.Report{}, err
	}
	return reconcile.Reconcile(entries, s.Accounts(), opts), nil
}

// FinancingSchedule returns the accretion schedule of a contract's financing component.
func (s *Service) FinancingSchedule(ctx context.Context, tenantID, contractID string) (financing.Result, error) {
	if err := requireTenant(tenantID); err != nil {
		return financing.Result{}, err
	}
	var fc *revrec.FinancingComponent
	var contract revrec.Contract
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if contract, err = tx.GetContract(ctx, tenantID, contractID); err != nil {
			return err
		}
		fc, err = tx.GetFinancing(ctx, tenantID, contractID)
		return err
	})
	if err != nil {
		return financing.Result{}, err
	}
	if fc == nil {
		return financing.Result{}, revrec.ErrNotFound
	}
	if fc.Method == "" {
		fc.Method = s.opts.FinancingMethod
	}
	if fc.StartDate.IsZero() {
		fc.StartDate = contract.StartDate
	}
	return financing.Calculate(*fc)
}
