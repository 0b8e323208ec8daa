package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// TrialBalanceLine is one touched account.
type TrialBalanceLine struct {
	Code   string
	Name   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
	Net    decimal.Decimal
}

// TrialBalance lists every account an entry set touches.
type TrialBalance struct {
	Lines       []TrialBalanceLine
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// Line returns the line for code, or a zero line.
func (tb TrialBalance) Line(code string) TrialBalanceLine {
	for _, l := range tb.Lines {
		if l.Code == code {
			return l
		}
	}
	return TrialBalanceLine{Code: code}
}

// BuildTrialBalance totals debits and credits per account across the given
// entries, with net = debit - credit. Callers decide whether drafts count.
func BuildTrialBalance(entries []revrec.LedgerEntry, accounts revrec.AccountTaxonomy) TrialBalance {
	lines := make(map[string]*TrialBalanceLine)
	get := func(code string) *TrialBalanceLine {
		l, ok := lines[code]
		if !ok {
			l = &TrialBalanceLine{Code: code, Name: accounts.Name(code)}
			lines[code] = l
		}
		return l
	}
	for _, e := range entries {
		get(e.DebitAccount).Debit = get(e.DebitAccount).Debit.Add(e.Amount)
		get(e.CreditAccount).Credit = get(e.CreditAccount).Credit.Add(e.Amount)
	}

	codes := make([]string, 0, len(lines))
	for code := range lines {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	tb := TrialBalance{}
	for _, code := range codes {
		l := lines[code]
		l.Net = l.Debit.Sub(l.Credit)
		tb.Lines = append(tb.Lines, *l)
		tb.TotalDebit = tb.TotalDebit.Add(l.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(l.Credit)
	}
	return tb
}
