package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/ledger"
)

func billingOwner(tenantID, id string) ownerLookup {
	return func(ctx context.Context, tx TxRepository) (string, error) {
		b, err := tx.GetBilling(ctx, tenantID, id)
		return b.ContractID, err
	}
}

// updateBilling loads a billing entry, applies change and persists it under the contract lock.
func (s *Service) updateBilling(ctx context.Context, tenantID, billingID string, change func(ctx context.Context, tx TxRepository, b *revrec.BillingScheduleEntry) error) (revrec.BillingScheduleEntry, error) {
	var out revrec.BillingScheduleEntry
	err := s.mutate(ctx, tenantID, billingOwner(tenantID, billingID), func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBilling(ctx, tenantID, billingID)
		if err != nil {
			return err
		}
		if err := change(ctx, tx, &b); err != nil {
			return err
		}
		if err := tx.UpdateBilling(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// RecordInvoice moves a scheduled billing entry to invoiced. The receivable is
// posted by the next recognition run.
func (s *Service) RecordInvoice(ctx context.Context, tenantID, billingID string, at time.Time) (revrec.BillingScheduleEntry, error) {
	if at.IsZero() {
		at = s.clock()
	}
	b, err := s.updateBilling(ctx, tenantID, billingID, func(_ context.Context, _ TxRepository, b *revrec.BillingScheduleEntry) error {
		if b.Status != revrec.BillingScheduled {
			return revrec.Invalid("status", "billing %s is %s, expected scheduled", b.ID, b.Status)
		}
		if !b.Amount.IsPositive() {
			return revrec.Invalid("amount", "billing %s amount must be positive", b.ID)
		}
		b.Status = revrec.BillingInvoiced
		b.InvoicedAt = &at
		return nil
	})
	if err != nil {
		return b, err
	}
	s.logger.Info("billing invoiced", slog.String("tenant_id", tenantID), slog.String("billing_id", billingID))
	return b, nil
}

// RecordPayment applies a payment to an invoiced or overdue billing entry.
// Partial payments keep the entry open until the full amount is received.
func (s *Service) RecordPayment(ctx context.Context, tenantID, billingID string, amount decimal.Decimal, at time.Time) (revrec.BillingScheduleEntry, error) {
	if at.IsZero() {
		at = s.clock()
	}
	b, err := s.updateBilling(ctx, tenantID, billingID, func(_ context.Context, _ TxRepository, b *revrec.BillingScheduleEntry) error {
		if b.Status != revrec.BillingInvoiced && b.Status != revrec.BillingOverdue {
			return revrec.Invalid("status", "billing %s is %s, expected invoiced or overdue", b.ID, b.Status)
		}
		pay := amount
		if pay.IsZero() {
			pay = b.Amount.Sub(b.PaidAmount)
		}
		if !pay.IsPositive() {
			return revrec.Invalid("amount", "payment must be positive")
		}
		b.PaidAmount = revrec.Round(b.PaidAmount.Add(pay))
		b.PaidAt = &at
		if b.PaidAmount.GreaterThanOrEqual(b.Amount) {
			b.Status = revrec.BillingPaid
		}
		return nil
	})
	if err != nil {
		return b, err
	}
	s.logger.Info("billing payment recorded",
		slog.String("tenant_id", tenantID),
		slog.String("billing_id", billingID),
		slog.String("paid", b.PaidAmount.StringFixed(2)))
	return b, nil
}

// MarkOverdue flags an invoiced entry whose due date has passed.
func (s *Service) MarkOverdue(ctx context.Context, tenantID, billingID string) (revrec.BillingScheduleEntry, error) {
	now := s.clock()
	return s.updateBilling(ctx, tenantID, billingID, func(_ context.Context, _ TxRepository, b *revrec.BillingScheduleEntry) error {
		if b.Status != revrec.BillingInvoiced {
			return revrec.Invalid("status", "billing %s is %s, expected invoiced", b.ID, b.Status)
		}
		if !now.After(b.DueDate) {
			return revrec.Invalid("due_date", "billing %s is not due until %s", b.ID, b.DueDate.Format(time.DateOnly))
		}
		b.Status = revrec.BillingOverdue
		return nil
	})
}

// CancelBilling cancels an uncollected billing entry. Invoice entries already
// in the ledger are reversed in the same transaction.
func (s *Service) CancelBilling(ctx context.Context, tenantID, billingID string) (revrec.BillingScheduleEntry, error) {
	var reversals int
	b, err := s.updateBilling(ctx, tenantID, billingID, func(ctx context.Context, tx TxRepository, b *revrec.BillingScheduleEntry) error {
		switch b.Status {
		case revrec.BillingScheduled, revrec.BillingInvoiced, revrec.BillingOverdue:
		default:
			return revrec.Invalid("status", "billing %s is %s and cannot be cancelled", b.ID, b.Status)
		}
		if b.PaidAmount.IsPositive() {
			return revrec.Invalid("status", "billing %s has collected payments", b.ID)
		}
		entries, err := tx.ListEntries(ctx, tenantID, b.ContractID)
		if err != nil {
			return err
		}
		var out []revrec.LedgerEntry
		all := append([]revrec.LedgerEntry(nil), entries...)
		for _, e := range entries {
			if e.BillingScheduleID != b.ID || e.EventKind != revrec.EventInvoice || e.IsReversed {
				continue
			}
			if ledger.AlreadyReversed(all, e.ID) {
				continue
			}
			rev, err := s.poster.Reverse(e, all, s.clock(), s.opts.AutoPost)
			if err != nil {
				return err
			}
			all = append(all, rev)
			out = append(out, rev)
		}
		if len(out) > 0 {
			if err := tx.InsertEntries(ctx, out); err != nil {
				return err
			}
		}
		reversals = len(out)
		b.Status = revrec.BillingCancelled
		return nil
	})
	if err != nil {
		return b, err
	}
	s.record(ctx, AuditEvent{
		TenantID: tenantID,
		Action:   "billing.cancel",
		Entity:   "billing_schedule",
		EntityID: billingID,
		Meta:     map[string]any{"reversals": reversals},
	})
	return b, nil
}
