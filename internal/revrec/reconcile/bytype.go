package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

var entryNature = map[revrec.EntryType]Nature{
	revrec.EntryRevenue:           NatureCredit,
	revrec.EntryDeferredRevenue:   NatureCredit,
	revrec.EntryContractLiability: NatureCredit,
	revrec.EntryFinancingIncome:   NatureCredit,
	revrec.EntryReceivable:        NatureDebit,
	revrec.EntryContractAsset:     NatureDebit,
	revrec.EntryCash:              NatureDebit,
	revrec.EntryCommissionExpense: NatureDebit,
}

// NatureOf returns the natural side of an entry type. Unknown types are debit-normal.
func NatureOf(t revrec.EntryType) Nature {
	if n, ok := entryNature[t]; ok {
		return n
	}
	return NatureDebit
}

// TypeBalance is the aggregate for one entry type.
type TypeBalance struct {
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Closing decimal.Decimal
}

// ByEntryType books each entry on its type's natural side and rolls the
// opening balances forward. Reversals land on the opposite side.
func ByEntryType(entries []revrec.LedgerEntry, opening map[revrec.EntryType]decimal.Decimal) map[revrec.EntryType]TypeBalance {
	out := make(map[revrec.EntryType]TypeBalance)
	for t, amount := range opening {
		out[t] = TypeBalance{Opening: amount}
	}
	for _, e := range entries {
		nature := NatureOf(e.EntryType)
		if e.IsReversed {
			nature = opposite(nature)
		}
		bal := out[e.EntryType]
		if nature == NatureDebit {
			bal.Debit = bal.Debit.Add(e.Amount)
		} else {
			bal.Credit = bal.Credit.Add(e.Amount)
		}
		out[e.EntryType] = bal
	}
	for t, bal := range out {
		if NatureOf(t) == NatureDebit {
			bal.Closing = bal.Opening.Add(bal.Debit).Sub(bal.Credit)
		} else {
			bal.Closing = bal.Opening.Sub(bal.Debit).Add(bal.Credit)
		}
		bal.Opening = revrec.Round(bal.Opening)
		bal.Debit = revrec.Round(bal.Debit)
		bal.Credit = revrec.Round(bal.Credit)
		bal.Closing = revrec.Round(bal.Closing)
		out[t] = bal
	}
	return out
}

func opposite(n Nature) Nature {
	if n == NatureDebit {
		return NatureCredit
	}
	return NatureDebit
}
