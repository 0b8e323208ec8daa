package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/allocation"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/ledger"
	"github.com/odyssey-erp/revrec/internal/revrec/recognition"
)

// RunResult summarises one recognition run.
type RunResult struct {
	ContractID             string
	VersionID              string
	TotalRecognizedRevenue decimal.Decimal
	EntriesPosted          int
	Errors                 []string
}

// plan is the computed outcome of a run before it is committed.
type plan struct {
	created   []revrec.PerformanceObligation
	updated   []revrec.PerformanceObligation
	entries   []revrec.LedgerEntry
	financing *revrec.FinancingComponent
	total     decimal.Decimal
}

// RunEngine recomputes allocation and recognition for one contract and posts
// the deltas since the last run. Calling it again without new progress posts
// nothing. versionID may be empty to use the contract's current version.
func (s *Service) RunEngine(ctx context.Context, tenantID, contractID, versionID string) (RunResult, error) {
	result := RunResult{ContractID: contractID, VersionID: versionID, TotalRecognizedRevenue: decimal.Zero}
	if err := requireTenant(tenantID); err != nil {
		return failed(result, err)
	}
	if contractID == "" {
		return failed(result, revrec.Invalid("contract_id", "required"))
	}

	ctx, span := tracer.Start(ctx, "revrec.run", trace.WithAttributes(
		attribute.String("revrec.tenant_id", tenantID),
		attribute.String("revrec.contract_id", contractID),
	))
	defer span.End()

	tracker := s.metrics.Track("revrec_run")
	var p plan
	err := s.withContractLock(ctx, tenantID, contractID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			snap, err := Load(ctx, tx, tenantID, contractID, versionID)
			if err != nil {
				return err
			}
			result.VersionID = snap.Version.ID
			p, err = s.compute(snap)
			if err != nil {
				return err
			}
			return commit(ctx, tx, p)
		})
	})
	_ = tracker.End(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Classify(err))
		s.logger.Warn("recognition run failed",
			slog.String("tenant_id", tenantID),
			slog.String("contract_id", contractID),
			slog.Any("error", err))
		return failed(result, err)
	}

	result.TotalRecognizedRevenue = p.total
	result.EntriesPosted = len(p.entries)
	span.SetAttributes(
		attribute.String("revrec.version_id", result.VersionID),
		attribute.Int("revrec.entries_posted", result.EntriesPosted),
	)
	for kind, n := range countByKind(p.entries) {
		s.metrics.AddEntries(string(kind), n)
	}
	s.logger.Info("recognition run complete",
		slog.String("tenant_id", tenantID),
		slog.String("contract_id", contractID),
		slog.String("version_id", result.VersionID),
		slog.String("recognized", p.total.StringFixed(2)),
		slog.Int("entries", result.EntriesPosted))
	if result.EntriesPosted > 0 {
		s.record(ctx, AuditEvent{
			TenantID: tenantID,
			Action:   "revrec.run",
			Entity:   "contract",
			EntityID: contractID,
			Meta: map[string]any{
				"version_id": result.VersionID,
				"entries":    result.EntriesPosted,
				"recognized": p.total.StringFixed(2),
			},
		})
	}
	return result, nil
}

func failed(result RunResult, err error) (RunResult, error) {
	result.Errors = append(result.Errors, err.Error())
	return result, err
}

func (s *Service) compute(snap Snapshot) (plan, error) {
	now := s.clock()
	var p plan

	interest := decimal.Zero
	var schedule []financing.Period
	if snap.Financing != nil {
		fc := *snap.Financing
		if fc.Method == "" {
			fc.Method = s.opts.FinancingMethod
		}
		if fc.StartDate.IsZero() {
			fc.StartDate = snap.Contract.StartDate
		}
		res, err := financing.Calculate(fc)
		if err != nil {
			return p, err
		}
		if res.Applies {
			interest = res.TotalInterest
			schedule = res.Schedule
		}
		fc.PresentValue = res.PresentValue
		fc.TotalInterest = res.TotalInterest
		p.financing = &fc
	}

	price, err := allocation.TransactionPrice(snap.Version.TotalValue, snap.Variable, interest, s.opts.VariableThreshold)
	if err != nil {
		return p, err
	}
	allocated, err := allocateRetained(price, snap.LineItems, snap.Obligations)
	if err != nil {
		return p, err
	}

	byKey := make(map[string]revrec.PerformanceObligation, len(snap.Obligations))
	for _, ob := range snap.Obligations {
		byKey[ob.Key] = ob
	}

	var events []ledger.Event
	for _, a := range allocated {
		ob, exists := byKey[a.Key]
		if !exists {
			ob = revrec.PerformanceObligation{
				ID:                s.newID(),
				TenantID:          snap.Contract.TenantID,
				ContractID:        snap.Contract.ID,
				Key:               a.Key,
				RecognitionMethod: a.RecognitionMethod,
				Status:            revrec.ObligationUnsatisfied,
				UpdatedAt:         now,
			}
		}
		if exists && ob.RecognitionMethod != a.RecognitionMethod {
			return p, revrec.Invalid("recognition_method", "obligation %s cannot change from %s to %s", ob.ID, ob.RecognitionMethod, a.RecognitionMethod)
		}
		delete(byKey, a.Key)
		if posted := ledger.RecognizedFor(snap.Entries, ob.ID); !posted.Equal(ob.RecognizedAmount) {
			return p, &revrec.InconsistentStateError{
				ObligationID: ob.ID,
				Recorded:     ob.RecognizedAmount.StringFixed(2),
				Computed:     "ledger " + posted.StringFixed(2),
			}
		}
		before := ob
		ob.TenantID = snap.Contract.TenantID
		ob.VersionID = snap.Version.ID
		ob.Description = a.Description
		ob.LineItemIDs = a.LineItemIDs
		ob.AllocatedPrice = a.AllocatedPrice
		ob.MeasurementMethod = a.MeasurementMethod

		res, err := recognition.Calculate(ob, now)
		if err != nil {
			return p, err
		}
		ob = res.Obligation
		if res.Delta.IsPositive() {
			events = append(events, ledger.Event{
				Kind:         revrec.EventRevenue,
				At:           now,
				Amount:       res.Delta,
				ObligationID: ob.ID,
				Memo:         "revenue recognized: " + ob.Description,
			})
		}
		p.total = p.total.Add(ob.RecognizedAmount)
		switch {
		case !exists:
			p.created = append(p.created, ob)
		case obligationChanged(before, ob):
			ob.UpdatedAt = now
			p.updated = append(p.updated, ob)
		}
	}

	// obligations dropped by a later version are frozen at what they recognized
	for _, ob := range dropped(snap.Obligations, byKey) {
		if posted := ledger.RecognizedFor(snap.Entries, ob.ID); !posted.Equal(ob.RecognizedAmount) {
			return p, &revrec.InconsistentStateError{
				ObligationID: ob.ID,
				Recorded:     ob.RecognizedAmount.StringFixed(2),
				Computed:     "ledger " + posted.StringFixed(2),
			}
		}
		before := ob
		ob.AllocatedPrice = ob.RecognizedAmount
		ob.DeferredAmount = decimal.Zero
		p.total = p.total.Add(ob.RecognizedAmount)
		if obligationChanged(before, ob) {
			ob.UpdatedAt = now
			p.updated = append(p.updated, ob)
		}
	}

	billed, err := billingEvents(snap.Billing, snap.Entries)
	if err != nil {
		return p, err
	}
	events = append(events, billed...)

	if p.financing != nil && len(schedule) > 0 {
		due := financing.AccretionDue(schedule, now)
		accrete := due.Sub(p.financing.RecognizedInterest)
		if accrete.IsNegative() {
			return p, &revrec.InconsistentStateError{
				ObligationID: "financing:" + p.financing.ID,
				Recorded:     p.financing.RecognizedInterest.StringFixed(2),
				Computed:     due.StringFixed(2),
			}
		}
		if accrete.IsPositive() {
			events = append(events, ledger.Event{Kind: revrec.EventFinancing, At: now, Amount: accrete, Memo: "financing income accretion"})
			p.financing.RecognizedInterest = due
		}
		p.financing.UpdatedAt = now
	}

	if commission := commissionDue(snap.Commissions, snap.Entries); commission.IsPositive() {
		events = append(events, ledger.Event{Kind: revrec.EventCommission, At: now, Amount: commission, Memo: "contract acquisition commission"})
	}

	start, end := monthBounds(now)
	p.entries, err = s.poster.Post(ledger.Batch{
		TenantID:     snap.Contract.TenantID,
		ContractID:   snap.Contract.ID,
		Currency:     s.currencyOf(snap.Contract),
		ExchangeRate: snap.Contract.ExchangeRate,
		PeriodStart:  start,
		PeriodEnd:    end,
		Posted:       s.opts.AutoPost,
	}, snap.Entries, events)
	if err != nil {
		return p, err
	}
	return p, nil
}

// allocateRetained allocates the transaction price over the version's line
// items after taking out the revenue already recognized on obligations the
// version no longer contains.
func allocateRetained(price decimal.Decimal, items []revrec.LineItem, existing []revrec.PerformanceObligation) ([]allocation.Obligation, error) {
	allocated, err := allocation.Allocate(price, items)
	if err != nil {
		return nil, err
	}
	frozen := frozenRevenue(existing, allocated)
	if frozen.IsZero() {
		return allocated, nil
	}
	remaining := price.Sub(frozen)
	if remaining.IsNegative() {
		return nil, revrec.Invalid("total_value", "transaction price %s is below the %s already recognized on dropped obligations",
			price.StringFixed(2), frozen.StringFixed(2))
	}
	return allocation.Allocate(remaining, items)
}

// frozenRevenue sums the revenue recognized on obligations absent from allocated.
func frozenRevenue(existing []revrec.PerformanceObligation, allocated []allocation.Obligation) decimal.Decimal {
	kept := make(map[string]bool, len(allocated))
	for _, a := range allocated {
		kept[a.Key] = true
	}
	total := decimal.Zero
	for _, ob := range existing {
		if !kept[ob.Key] {
			total = total.Add(ob.RecognizedAmount)
		}
	}
	return total
}

// dropped returns the obligations left in remaining, in load order.
func dropped(all []revrec.PerformanceObligation, remaining map[string]revrec.PerformanceObligation) []revrec.PerformanceObligation {
	var out []revrec.PerformanceObligation
	for _, ob := range all {
		if _, ok := remaining[ob.Key]; ok {
			out = append(out, ob)
		}
	}
	return out
}

func commit(ctx context.Context, tx TxRepository, p plan) error {
	for _, ob := range p.created {
		if err := tx.CreateObligation(ctx, ob); err != nil {
			return err
		}
	}
	for _, ob := range p.updated {
		if err := tx.UpdateObligation(ctx, ob); err != nil {
			return err
		}
	}
	if p.financing != nil {
		if err := tx.UpdateFinancing(ctx, *p.financing); err != nil {
			return err
		}
	}
	if len(p.entries) == 0 {
		return nil
	}
	return tx.InsertEntries(ctx, p.entries)
}

func obligationChanged(a, b revrec.PerformanceObligation) bool {
	return !a.AllocatedPrice.Equal(b.AllocatedPrice) ||
		!a.RecognizedAmount.Equal(b.RecognizedAmount) ||
		!a.DeferredAmount.Equal(b.DeferredAmount) ||
		a.Status != b.Status ||
		a.IsSatisfied != b.IsSatisfied ||
		a.VersionID != b.VersionID ||
		a.Description != b.Description
}

// billingEvents emits invoice and cash events for billing activity not yet in the ledger.
func billingEvents(billing []revrec.BillingScheduleEntry, entries []revrec.LedgerEntry) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, b := range billing {
		invoiced := ledger.PostedFor(entries, revrec.EventInvoice, b.ID)
		collected := ledger.PostedFor(entries, revrec.EventCash, b.ID)

		var billed decimal.Decimal
		switch b.Status {
		case revrec.BillingInvoiced, revrec.BillingPaid, revrec.BillingOverdue:
			billed = b.Amount
		}
		if billed.LessThan(invoiced) || b.PaidAmount.LessThan(collected) {
			return nil, &revrec.InconsistentStateError{
				ObligationID: "billing:" + b.ID,
				Recorded:     invoiced.StringFixed(2),
				Computed:     billed.StringFixed(2),
			}
		}
		if due := billed.Sub(invoiced); due.IsPositive() {
			at := b.BillingDate
			if b.InvoicedAt != nil {
				at = *b.InvoicedAt
			}
			out = append(out, ledger.Event{Kind: revrec.EventInvoice, At: at, Amount: due, BillingScheduleID: b.ID, Memo: "invoice issued"})
		}
		if due := b.PaidAmount.Sub(collected); due.IsPositive() {
			at := b.DueDate
			if b.PaidAt != nil {
				at = *b.PaidAt
			}
			out = append(out, ledger.Event{Kind: revrec.EventCash, At: at, Amount: due, BillingScheduleID: b.ID, Memo: "payment received"})
		}
	}
	return out, nil
}

func commissionDue(costs []revrec.CommissionCost, entries []revrec.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, c := range costs {
		total = total.Add(c.Amount)
	}
	for _, e := range entries {
		if e.EventKind == revrec.EventCommission {
			total = total.Sub(e.Amount.Mul(e.Sign()))
		}
	}
	return total
}

func countByKind(entries []revrec.LedgerEntry) map[revrec.EventKind]int {
	out := make(map[revrec.EventKind]int)
	for _, e := range entries {
		out[e.EventKind]++
	}
	return out
}

func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

func (s *Service) currencyOf(c revrec.Contract) string {
	if c.Currency != "" {
		return c.Currency
	}
	return s.opts.DefaultCurrency
}
