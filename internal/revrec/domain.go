package revrec

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a contract does not name one.
const DefaultCurrency = "BRL"

// ContractStatus enumerates contract lifecycle values.
type ContractStatus string

const (
	ContractStatusActive     ContractStatus = "active"
	ContractStatusModified   ContractStatus = "modified"
	ContractStatusTerminated ContractStatus = "terminated"
	ContractStatusExpired    ContractStatus = "expired"
)

// RecognitionMethod selects how an obligation transfers control.
type RecognitionMethod string

const (
	OverTime    RecognitionMethod = "over_time"
	PointInTime RecognitionMethod = "point_in_time"
)

// Valid reports whether the method is known.
func (m RecognitionMethod) Valid() bool {
	return m == OverTime || m == PointInTime
}

// MeasurementMethod describes where percent complete comes from.
type MeasurementMethod string

const (
	MeasurementInput  MeasurementMethod = "input"
	MeasurementOutput MeasurementMethod = "output"
)

// ObligationStatus is the recognition state of a performance obligation.
type ObligationStatus string

const (
	ObligationUnsatisfied         ObligationStatus = "unsatisfied"
	ObligationPartiallyRecognized ObligationStatus = "partially_recognized"
	ObligationSatisfied           ObligationStatus = "satisfied"
)

// BillingStatus enumerates billing schedule states.
type BillingStatus string

const (
	BillingScheduled BillingStatus = "scheduled"
	BillingInvoiced  BillingStatus = "invoiced"
	BillingPaid      BillingStatus = "paid"
	BillingOverdue   BillingStatus = "overdue"
	BillingCancelled BillingStatus = "cancelled"
)

// EntryType classifies a ledger line for reporting.
type EntryType string

const (
	EntryRevenue           EntryType = "revenue"
	EntryDeferredRevenue   EntryType = "deferred_revenue"
	EntryContractAsset     EntryType = "contract_asset"
	EntryContractLiability EntryType = "contract_liability"
	EntryReceivable        EntryType = "receivable"
	EntryCash              EntryType = "cash"
	EntryFinancingIncome   EntryType = "financing_income"
	EntryCommissionExpense EntryType = "commission_expense"
)

// EventKind names the business event that produced a ledger entry.
type EventKind string

const (
	EventInvoice    EventKind = "invoice"
	EventCash       EventKind = "cash"
	EventRevenue    EventKind = "revenue"
	EventFinancing  EventKind = "financing"
	EventCommission EventKind = "commission"
)

// Contract identifies a customer agreement.
type Contract struct {
	ID               string
	TenantID         string
	Number           string
	CustomerID       string
	TotalValue       decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	Status           ContractStatus
	CurrentVersionID string
	StartDate        time.Time
	EndDate          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ContractVersion is an immutable snapshot of contract terms.
type ContractVersion struct {
	ID                 string
	TenantID           string
	ContractID         string
	VersionNumber      int
	EffectiveDate      time.Time
	TotalValue         decimal.Decimal
	ModificationReason string
	CreatedAt          time.Time
}

// LineItem is a promised good or service inside a version.
type LineItem struct {
	ID                     string
	TenantID               string
	VersionID              string
	Key                    string
	Description            string
	UnitPrice              decimal.Decimal
	Quantity               decimal.Decimal
	TotalPrice             decimal.Decimal
	StandaloneSellingPrice *decimal.Decimal
	RecognitionMethod      RecognitionMethod
	MeasurementMethod      MeasurementMethod
	BundleKey              string
	DeliveryStart          *time.Time
	DeliveryEnd            *time.Time
}

// SSP returns the standalone selling price, falling back to the observable price.
func (li LineItem) SSP() decimal.Decimal {
	if li.StandaloneSellingPrice != nil {
		return *li.StandaloneSellingPrice
	}
	return li.TotalPrice
}

// AllocationKey identifies the obligation the line item feeds. Key keeps the
// identity stable across contract versions; ID is the fallback.
func (li LineItem) AllocationKey() string {
	switch {
	case li.BundleKey != "":
		return "bundle:" + li.BundleKey
	case li.Key != "":
		return "item:" + li.Key
	default:
		return "item:" + li.ID
	}
}

// PerformanceObligation is the unit of revenue recognition.
type PerformanceObligation struct {
	ID                string
	TenantID          string
	ContractID        string
	VersionID         string
	Key               string
	Description       string
	LineItemIDs       []string
	AllocatedPrice    decimal.Decimal
	RecognitionMethod RecognitionMethod
	MeasurementMethod MeasurementMethod
	PercentComplete   decimal.Decimal
	RecognizedAmount  decimal.Decimal
	DeferredAmount    decimal.Decimal
	IsSatisfied       bool
	SatisfiedAt       *time.Time
	Status            ObligationStatus
	UpdatedAt         time.Time
}

// BillingScheduleEntry is a planned invoice or milestone.
type BillingScheduleEntry struct {
	ID          string
	TenantID    string
	ContractID  string
	Amount      decimal.Decimal
	BillingDate time.Time
	DueDate     time.Time
	Status      BillingStatus
	InvoicedAt  *time.Time
	PaidAt      *time.Time
	PaidAmount  decimal.Decimal
}

// LedgerEntry is an immutable double-entry journal line.
type LedgerEntry struct {
	ID                string
	TenantID          string
	ContractID        string
	ObligationID      string
	BillingScheduleID string
	EntryDate         time.Time
	PeriodStart       time.Time
	PeriodEnd         time.Time
	EntryType         EntryType
	EventKind         EventKind
	DebitAccount      string
	CreditAccount     string
	Amount            decimal.Decimal
	Currency          string
	ExchangeRate      decimal.Decimal
	Memo              string
	IsPosted          bool
	PostedAt          *time.Time
	IsReversed        bool
	ReversedEntryID   string
	CreatedAt         time.Time
}

// FunctionalAmount converts the entry amount with the supplied rate.
func (e LedgerEntry) FunctionalAmount() decimal.Decimal {
	rate := e.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	return Round(e.Amount.Mul(rate))
}

// Sign is -1 for reversal entries and 1 otherwise.
func (e LedgerEntry) Sign() decimal.Decimal {
	if e.IsReversed {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// FinancingMethod selects how financing income is accreted.
type FinancingMethod string

const (
	StraightLine      FinancingMethod = "straight_line"
	EffectiveInterest FinancingMethod = "effective_interest"
)

// FinancingComponent records a significant financing component.
type FinancingComponent struct {
	ID                    string
	TenantID              string
	ContractID            string
	NominalAmount         decimal.Decimal
	// DiscountRate is an annual percentage: 10 means 10 % a year.
	DiscountRate          decimal.Decimal
	FinancingPeriodMonths int
	StartDate             time.Time
	Method                FinancingMethod
	PresentValue          decimal.Decimal
	TotalInterest         decimal.Decimal
	RecognizedInterest    decimal.Decimal
	UpdatedAt             time.Time
}

// VariableKind classifies variable consideration.
type VariableKind string

const (
	VariableBonus   VariableKind = "bonus"
	VariablePenalty VariableKind = "penalty"
	VariableRebate  VariableKind = "rebate"
)

// VariableConsideration is an estimated amount that may change the transaction price.
type VariableConsideration struct {
	ID              string
	TenantID        string
	ContractID      string
	Kind            VariableKind
	Description     string
	EstimatedAmount decimal.Decimal
	Likelihood      decimal.Decimal
}

// CommissionCost is an incremental cost of obtaining the contract.
type CommissionCost struct {
	ID         string
	TenantID   string
	ContractID string
	Amount     decimal.Decimal
	IncurredAt time.Time
}
