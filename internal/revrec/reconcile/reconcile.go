package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Nature classifies an account row by the side its balance sits on.
type Nature string

const (
	NatureDebit  Nature = "debit"
	NatureCredit Nature = "credit"
)

// Options scopes a reconciliation.
type Options struct {
	Start         time.Time
	End           time.Time
	ContractID    string
	IncludeDrafts bool
}

// AccountRow is the per-account opening, movement and closing view.
type AccountRow struct {
	Code    string
	Name    string
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Closing decimal.Decimal
	Nature  Nature
}

// TypeRow is the opening, movement and closing of one entry type.
type TypeRow struct {
	Type revrec.EntryType
	TypeBalance
}

// Report is a derived view over ledger entries and is never persisted.
type Report struct {
	Start               time.Time
	End                 time.Time
	Rows                []AccountRow
	TotalDebit          decimal.Decimal
	TotalCredit         decimal.Decimal
	ContractAssets      decimal.Decimal
	ContractLiabilities decimal.Decimal
	NetContractPosition decimal.Decimal
	// ByType books the period's entries on each entry type's natural side.
	ByType []TypeRow
	// TrialBalance covers every in-scope entry up to End, opening included.
	TrialBalance TrialBalance
}

// Reconcile aggregates entries per account over [Start, End]. Entries dated
// before Start form the opening balance; entries after End are ignored.
func Reconcile(entries []revrec.LedgerEntry, accounts revrec.AccountTaxonomy, opts Options) Report {
	rows := make(map[string]*AccountRow)
	row := func(code string) *AccountRow {
		r, ok := rows[code]
		if !ok {
			r = &AccountRow{Code: code, Name: accounts.Name(code)}
			rows[code] = r
		}
		return r
	}

	start := day(opts.Start)
	end := day(opts.End)
	var before, within []revrec.LedgerEntry
	for _, e := range entries {
		if !opts.IncludeDrafts && !e.IsPosted {
			continue
		}
		if opts.ContractID != "" && e.ContractID != opts.ContractID {
			continue
		}
		at := day(e.EntryDate)
		if !end.IsZero() && at.After(end) {
			continue
		}
		amount := e.FunctionalAmount()
		functional := e
		functional.Amount = amount
		debit := row(e.DebitAccount)
		credit := row(e.CreditAccount)
		if !start.IsZero() && at.Before(start) {
			debit.Opening = debit.Opening.Add(amount)
			credit.Opening = credit.Opening.Sub(amount)
			before = append(before, functional)
			continue
		}
		debit.Debit = debit.Debit.Add(amount)
		credit.Credit = credit.Credit.Add(amount)
		within = append(within, functional)
	}

	report := Report{Start: opts.Start, End: opts.End}
	codes := make([]string, 0, len(rows))
	for code := range rows {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		r := rows[code]
		r.Closing = r.Opening.Add(r.Debit).Sub(r.Credit)
		r.Nature = NatureDebit
		if r.Closing.IsNegative() {
			r.Nature = NatureCredit
		}
		report.Rows = append(report.Rows, *r)
		report.TotalDebit = report.TotalDebit.Add(r.Debit)
		report.TotalCredit = report.TotalCredit.Add(r.Credit)
		switch {
		case accounts.IsContractAsset(code):
			report.ContractAssets = report.ContractAssets.Add(r.Closing)
		case accounts.IsContractLiability(code):
			report.ContractLiabilities = report.ContractLiabilities.Sub(r.Closing)
		}
	}
	report.NetContractPosition = report.ContractAssets.Sub(report.ContractLiabilities)
	report.ByType = typeRows(before, within)
	report.TrialBalance = BuildTrialBalance(append(before, within...), accounts)
	return report
}

// typeRows rolls the entry-type balances of before into the opening of within.
func typeRows(before, within []revrec.LedgerEntry) []TypeRow {
	opening := make(map[revrec.EntryType]decimal.Decimal)
	for t, bal := range ByEntryType(before, nil) {
		opening[t] = bal.Closing
	}
	balances := ByEntryType(within, opening)
	out := make([]TypeRow, 0, len(balances))
	for t, bal := range balances {
		out = append(out, TypeRow{Type: t, TypeBalance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Type returns the row for an entry type, or a zero row.
func (r Report) Type(t revrec.EntryType) TypeRow {
	for _, row := range r.ByType {
		if row.Type == t {
			return row
		}
	}
	return TypeRow{Type: t}
}

// Row returns the row for code, if present.
func (r Report) Row(code string) (AccountRow, bool) {
	for _, row := range r.Rows {
		if row.Code == code {
			return row, true
		}
	}
	return AccountRow{}, false
}

// PositionLabel reports whether the contracts net to an asset or a liability.
func (r Report) PositionLabel() string {
	switch {
	case r.NetContractPosition.IsPositive():
		return "contract_asset"
	case r.NetContractPosition.IsNegative():
		return "contract_liability"
	default:
		return "balanced"
	}
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
