package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Position is the running state of a contract rebuilt from its ledger.
type Position struct {
	Earned    decimal.Decimal
	Billed    decimal.Decimal
	Collected decimal.Decimal
	Advances  decimal.Decimal
}

// UnbilledEarned is revenue recognized ahead of invoicing.
func (p Position) UnbilledEarned() decimal.Decimal {
	return positive(p.Earned.Sub(p.Billed))
}

// UnearnedBilled is the amount invoiced ahead of recognition.
func (p Position) UnearnedBilled() decimal.Decimal {
	return positive(p.Billed.Sub(p.Earned))
}

// OpenReceivable is billed but not yet collected.
func (p Position) OpenReceivable() decimal.Decimal {
	return positive(p.Billed.Sub(p.Collected))
}

// ExpectedNet is the contract asset minus contract liability the ledger must show.
func (p Position) ExpectedNet() decimal.Decimal {
	return p.Earned.Sub(p.Billed).Sub(p.Advances)
}

func positive(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// originalCredit returns the credit account as first posted, looking through reversals.
func originalCredit(e revrec.LedgerEntry) string {
	if e.IsReversed {
		return e.DebitAccount
	}
	return e.CreditAccount
}

func originalDebit(e revrec.LedgerEntry) string {
	if e.IsReversed {
		return e.CreditAccount
	}
	return e.DebitAccount
}

// PositionOf replays entries into a position. Reversals subtract what their
// original added.
func PositionOf(entries []revrec.LedgerEntry, accounts revrec.AccountTaxonomy) Position {
	pos := Position{}
	for _, e := range entries {
		amount := e.Amount.Mul(e.Sign())
		switch e.EventKind {
		case revrec.EventRevenue:
			pos.Earned = pos.Earned.Add(amount)
		case revrec.EventInvoice:
			pos.Billed = pos.Billed.Add(amount)
		case revrec.EventCash:
			pos.Collected = pos.Collected.Add(amount)
			if accounts.IsContractLiability(originalCredit(e)) {
				pos.Advances = pos.Advances.Add(amount)
			}
		case revrec.EventFinancing:
			pos.Earned = pos.Earned.Add(amount)
			if originalDebit(e) == accounts.AccountsReceivable {
				pos.Billed = pos.Billed.Add(amount)
			}
		}
	}
	return pos
}

// Balances returns debit minus credit per account code.
func Balances(entries []revrec.LedgerEntry) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		out[e.DebitAccount] = out[e.DebitAccount].Add(e.Amount)
		out[e.CreditAccount] = out[e.CreditAccount].Sub(e.Amount)
	}
	return out
}

// ContractNet is the contract asset balance minus the contract liability balance.
func ContractNet(entries []revrec.LedgerEntry, accounts revrec.AccountTaxonomy) decimal.Decimal {
	net := decimal.Zero
	for code, bal := range Balances(entries) {
		switch {
		case accounts.IsContractAsset(code):
			net = net.Add(bal)
		case accounts.IsContractLiability(code):
			// liability balances are credit-normal, so debit minus credit already carries the sign
			net = net.Add(bal)
		}
	}
	return net
}

// PostedFor sums the signed amount already posted for a billing schedule entry and event kind.
func PostedFor(entries []revrec.LedgerEntry, kind revrec.EventKind, billingID string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.EventKind != kind || e.BillingScheduleID != billingID {
			continue
		}
		total = total.Add(e.Amount.Mul(e.Sign()))
	}
	return total
}

// RecognizedFor sums the signed revenue posted against an obligation.
func RecognizedFor(entries []revrec.LedgerEntry, obligationID string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.EventKind != revrec.EventRevenue || e.ObligationID != obligationID {
			continue
		}
		total = total.Add(e.Amount.Mul(e.Sign()))
	}
	return total
}
