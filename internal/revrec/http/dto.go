package revrechttp

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

// ProgressRequest updates the percent complete of an obligation.
type ProgressRequest struct {
	PercentComplete string `json:"percent_complete" validate:"required,numeric"`
}

// SatisfyRequest records transfer of control.
type SatisfyRequest struct {
	SatisfiedAt string `json:"satisfied_at" validate:"omitempty,datetime=2006-01-02"`
}

// InvoiceRequest records an issued invoice.
type InvoiceRequest struct {
	InvoicedAt string `json:"invoiced_at" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentRequest records a payment; an empty amount settles the remainder.
type PaymentRequest struct {
	Amount string `json:"amount" validate:"omitempty,numeric"`
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

// ReverseRequest reverses a ledger entry.
type ReverseRequest struct {
	At string `json:"at" validate:"omitempty,datetime=2006-01-02"`
}

// LineItemRequest is one line of a contract modification.
type LineItemRequest struct {
	Key                    string `json:"key" validate:"required,max=64"`
	Description            string `json:"description" validate:"max=255"`
	UnitPrice              string `json:"unit_price" validate:"required,numeric"`
	Quantity               string `json:"quantity" validate:"omitempty,numeric"`
	StandaloneSellingPrice string `json:"standalone_selling_price" validate:"omitempty,numeric"`
	RecognitionMethod      string `json:"recognition_method" validate:"required,oneof=over_time point_in_time"`
	MeasurementMethod      string `json:"measurement_method" validate:"omitempty,oneof=input output"`
	BundleKey              string `json:"bundle_key" validate:"max=64"`
}

// ModifyRequest creates a new contract version.
type ModifyRequest struct {
	TotalValue    string            `json:"total_value" validate:"required,numeric"`
	Reason        string            `json:"reason" validate:"required,max=500"`
	EffectiveDate string            `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems     []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
}

func (m ModifyRequest) toInput() (engine.ModifyInput, error) {
	in := engine.ModifyInput{Reason: strings.TrimSpace(m.Reason)}
	var err error
	if in.TotalValue, err = parseAmount("total_value", m.TotalValue); err != nil {
		return in, err
	}
	if in.EffectiveDate, err = parseDate("effective_date", m.EffectiveDate); err != nil {
		return in, err
	}
	for _, li := range m.LineItems {
		item := engine.LineItemInput{
			Key:               li.Key,
			Description:       li.Description,
			RecognitionMethod: revrec.RecognitionMethod(li.RecognitionMethod),
			MeasurementMethod: revrec.MeasurementMethod(li.MeasurementMethod),
			BundleKey:         li.BundleKey,
		}
		if item.MeasurementMethod == "" {
			item.MeasurementMethod = revrec.MeasurementInput
		}
		if item.UnitPrice, err = parseAmount("unit_price", li.UnitPrice); err != nil {
			return in, err
		}
		if li.Quantity != "" {
			if item.Quantity, err = parseAmount("quantity", li.Quantity); err != nil {
				return in, err
			}
		}
		if li.StandaloneSellingPrice != "" {
			ssp, err := parseAmount("standalone_selling_price", li.StandaloneSellingPrice)
			if err != nil {
				return in, err
			}
			item.StandaloneSellingPrice = &ssp
		}
		in.LineItems = append(in.LineItems, item)
	}
	return in, nil
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, revrec.Invalid(field, "not a decimal: %q", raw)
	}
	return d, nil
}

func parseDate(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, revrec.Invalid(field, "expected YYYY-MM-DD, got %q", raw)
	}
	return t, nil
}

// validationError turns validator output into the domain validation error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return revrec.Invalid(fe.Namespace(), "failed %s", fe.Tag())
	}
	return revrec.Invalid("body", "%v", err)
}

// RunResponse is the JSON form of engine.RunResult.
type RunResponse struct {
	ContractID             string   `json:"contract_id"`
	VersionID              string   `json:"version_id"`
	TotalRecognizedRevenue string   `json:"total_recognized_revenue"`
	EntriesPosted          int      `json:"entries_posted"`
	Errors                 []string `json:"errors"`
}

func newRunResponse(r engine.RunResult) RunResponse {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return RunResponse{
		ContractID:             r.ContractID,
		VersionID:              r.VersionID,
		TotalRecognizedRevenue: r.TotalRecognizedRevenue.StringFixed(2),
		EntriesPosted:          r.EntriesPosted,
		Errors:                 errs,
	}
}

// ObligationResponse is the JSON form of a performance obligation.
type ObligationResponse struct {
	ID                string  `json:"id"`
	ContractID        string  `json:"contract_id"`
	Description       string  `json:"description"`
	RecognitionMethod string  `json:"recognition_method"`
	AllocatedPrice    string  `json:"allocated_price"`
	PercentComplete   string  `json:"percent_complete"`
	RecognizedAmount  string  `json:"recognized_amount"`
	Status            string  `json:"status"`
	SatisfiedAt       *string `json:"satisfied_at,omitempty"`
}

func newObligationResponse(ob revrec.PerformanceObligation) ObligationResponse {
	return ObligationResponse{
		ID:                ob.ID,
		ContractID:        ob.ContractID,
		Description:       ob.Description,
		RecognitionMethod: string(ob.RecognitionMethod),
		AllocatedPrice:    ob.AllocatedPrice.StringFixed(2),
		PercentComplete:   ob.PercentComplete.String(),
		RecognizedAmount:  ob.RecognizedAmount.StringFixed(2),
		Status:            string(ob.Status),
		SatisfiedAt:       formatTimePtr(ob.SatisfiedAt),
	}
}

// BillingResponse is the JSON form of a billing schedule entry.
type BillingResponse struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Amount     string `json:"amount"`
	PaidAmount string `json:"paid_amount"`
	Status     string `json:"status"`
	DueDate    string `json:"due_date"`
}

func newBillingResponse(b revrec.BillingScheduleEntry) BillingResponse {
	return BillingResponse{
		ID:         b.ID,
		ContractID: b.ContractID,
		Amount:     b.Amount.StringFixed(2),
		PaidAmount: b.PaidAmount.StringFixed(2),
		Status:     string(b.Status),
		DueDate:    b.DueDate.Format(time.DateOnly),
	}
}

// VersionResponse is the JSON form of a contract version.
type VersionResponse struct {
	ID            string `json:"id"`
	ContractID    string `json:"contract_id"`
	VersionNumber int    `json:"version_number"`
	EffectiveDate string `json:"effective_date"`
	TotalValue    string `json:"total_value"`
	Reason        string `json:"reason"`
}

func newVersionResponse(v revrec.ContractVersion) VersionResponse {
	return VersionResponse{
		ID:            v.ID,
		ContractID:    v.ContractID,
		VersionNumber: v.VersionNumber,
		EffectiveDate: v.EffectiveDate.Format(time.DateOnly),
		TotalValue:    v.TotalValue.StringFixed(2),
		Reason:        v.ModificationReason,
	}
}

// EntryResponse is the JSON form of a ledger entry.
type EntryResponse struct {
	ID              string `json:"id"`
	ContractID      string `json:"contract_id"`
	EntryDate       string `json:"entry_date"`
	EntryType       string `json:"entry_type"`
	EventKind       string `json:"event_kind"`
	DebitAccount    string `json:"debit_account"`
	CreditAccount   string `json:"credit_account"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Memo            string `json:"memo"`
	IsPosted        bool   `json:"is_posted"`
	IsReversed      bool   `json:"is_reversed"`
	ReversedEntryID string `json:"reversed_entry_id,omitempty"`
}

func newEntryResponse(e revrec.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		ContractID:      e.ContractID,
		EntryDate:       e.EntryDate.UTC().Format(time.RFC3339),
		EntryType:       string(e.EntryType),
		EventKind:       string(e.EventKind),
		DebitAccount:    e.DebitAccount,
		CreditAccount:   e.CreditAccount,
		Amount:          e.Amount.StringFixed(2),
		Currency:        e.Currency,
		Memo:            e.Memo,
		IsPosted:        e.IsPosted,
		IsReversed:      e.IsReversed,
		ReversedEntryID: e.ReversedEntryID,
	}
}

// AccountRowResponse is one reconciliation row.
type AccountRowResponse struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Opening string `json:"opening"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Closing string `json:"closing"`
	Nature  string `json:"nature"`
}

// ReconciliationResponse is the JSON form of reconcile.Report.
type ReconciliationResponse struct {
	Start               string               `json:"start,omitempty"`
	End                 string               `json:"end,omitempty"`
	Rows                []AccountRowResponse `json:"rows"`
	TotalDebit          string               `json:"total_debit"`
	TotalCredit         string               `json:"total_credit"`
	ContractAssets      string               `json:"contract_assets"`
	ContractLiabilities string               `json:"contract_liabilities"`
	NetContractPosition string               `json:"net_contract_position"`
	Position            string               `json:"position"`
	ByEntryType         []TypeRowResponse    `json:"by_entry_type"`
	TrialBalance        TrialBalanceResponse `json:"trial_balance"`
}

// TypeRowResponse is one entry-type aggregate.
type TypeRowResponse struct {
	EntryType string `json:"entry_type"`
	Opening   string `json:"opening"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Closing   string `json:"closing"`
}

// TrialBalanceLineResponse is one account of the trial balance.
type TrialBalanceLineResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Debit  string `json:"debit"`
	Credit string `json:"credit"`
	Net    string `json:"net"`
}

// TrialBalanceResponse is the JSON form of reconcile.TrialBalance.
type TrialBalanceResponse struct {
	Lines       []TrialBalanceLineResponse `json:"lines"`
	TotalDebit  string                     `json:"total_debit"`
	TotalCredit string                     `json:"total_credit"`
	Balanced    bool                       `json:"balanced"`
}

func newReconciliationResponse(r reconcile.Report) ReconciliationResponse {
	out := ReconciliationResponse{
		Rows:                make([]AccountRowResponse, 0, len(r.Rows)),
		TotalDebit:          r.TotalDebit.StringFixed(2),
		TotalCredit:         r.TotalCredit.StringFixed(2),
		ContractAssets:      r.ContractAssets.StringFixed(2),
		ContractLiabilities: r.ContractLiabilities.StringFixed(2),
		NetContractPosition: r.NetContractPosition.StringFixed(2),
		Position:            r.PositionLabel(),
	}
	if !r.Start.IsZero() {
		out.Start = r.Start.Format(time.DateOnly)
	}
	if !r.End.IsZero() {
		out.End = r.End.Format(time.DateOnly)
	}
	for _, row := range r.Rows {
		out.Rows = append(out.Rows, AccountRowResponse{
			Code:    row.Code,
			Name:    row.Name,
			Opening: row.Opening.StringFixed(2),
			Debit:   row.Debit.StringFixed(2),
			Credit:  row.Credit.StringFixed(2),
			Closing: row.Closing.StringFixed(2),
			Nature:  string(row.Nature),
		})
	}
	out.ByEntryType = make([]TypeRowResponse, 0, len(r.ByType))
	for _, row := range r.ByType {
		out.ByEntryType = append(out.ByEntryType, TypeRowResponse{
			EntryType: string(row.Type),
			Opening:   row.Opening.StringFixed(2),
			Debit:     row.Debit.StringFixed(2),
			Credit:    row.Credit.StringFixed(2),
			Closing:   row.Closing.StringFixed(2),
		})
	}
	out.TrialBalance = newTrialBalanceResponse(r.TrialBalance)
	return out
}

func newTrialBalanceResponse(tb reconcile.TrialBalance) TrialBalanceResponse {
	out := TrialBalanceResponse{
		Lines:       make([]TrialBalanceLineResponse, 0, len(tb.Lines)),
		TotalDebit:  tb.TotalDebit.StringFixed(2),
		TotalCredit: tb.TotalCredit.StringFixed(2),
		Balanced:    tb.Balanced(),
	}
	for _, l := range tb.Lines {
		out.Lines = append(out.Lines, TrialBalanceLineResponse{
			Code:   l.Code,
			Name:   l.Name,
			Debit:  l.Debit.StringFixed(2),
			Credit: l.Credit.StringFixed(2),
			Net:    l.Net.StringFixed(2),
		})
	}
	return out
}

// ScheduleResponse is the JSON form of a financing schedule.
type ScheduleResponse struct {
	Applies       bool             `json:"applies"`
	Method        string           `json:"method"`
	PresentValue  string           `json:"present_value"`
	TotalInterest string           `json:"total_interest"`
	Periods       []PeriodResponse `json:"periods"`
}

// PeriodResponse is one accretion month.
type PeriodResponse struct {
	Month      int    `json:"month"`
	Date       string `json:"date"`
	Opening    string `json:"opening"`
	Interest   string `json:"interest"`
	Closing    string `json:"closing"`
	Cumulative string `json:"cumulative"`
}

func newScheduleResponse(res financing.Result) ScheduleResponse {
	out := ScheduleResponse{
		Applies:       res.Applies,
		Method:        string(res.Method),
		PresentValue:  res.PresentValue.StringFixed(2),
		TotalInterest: res.TotalInterest.StringFixed(2),
		Periods:       make([]PeriodResponse, 0, len(res.Schedule)),
	}
	for _, p := range res.Schedule {
		out.Periods = append(out.Periods, PeriodResponse{
			Month:      p.Month,
			Date:       p.Date.Format(time.DateOnly),
			Opening:    p.Opening.StringFixed(2),
			Interest:   p.Interest.StringFixed(2),
			Closing:    p.Closing.StringFixed(2),
			Cumulative: p.Cumulative.StringFixed(2),
		})
	}
	return out
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
