package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Event is a business fact the poster turns into journal entries.
type Event struct {
	Kind              revrec.EventKind
	At                time.Time
	Amount            decimal.Decimal
	ObligationID      string
	BillingScheduleID string
	Memo              string
}

var kindOrder = map[revrec.EventKind]int{
	revrec.EventInvoice:    0,
	revrec.EventCash:       1,
	revrec.EventRevenue:    2,
	revrec.EventFinancing:  3,
	revrec.EventCommission: 4,
}

// SortEvents orders events by timestamp, then invoice, cash, revenue, financing.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return kindOrder[events[i].Kind] < kindOrder[events[j].Kind]
	})
}

// Batch scopes a posting run to one contract and period.
type Batch struct {
	TenantID     string
	ContractID   string
	Currency     string
	ExchangeRate decimal.Decimal
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Posted       bool
}

// Poster converts events into balanced double-entry lines.
type Poster struct {
	accounts revrec.AccountTaxonomy
	now      func() time.Time
	newID    func() string
}

// NewPoster constructs a poster over the account taxonomy.
func NewPoster(accounts revrec.AccountTaxonomy) *Poster {
	return &Poster{
		accounts: accounts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithNow overrides the clock used for CreatedAt and PostedAt.
func (p *Poster) WithNow(now func() time.Time) *Poster {
	if now != nil {
		p.now = now
	}
	return p
}

// WithIDs overrides entry id generation.
func (p *Poster) WithIDs(fn func() string) *Poster {
	if fn != nil {
		p.newID = fn
	}
	return p
}

// Accounts exposes the taxonomy in use.
func (p *Poster) Accounts() revrec.AccountTaxonomy { return p.accounts }

// Post replays events over the position implied by prior entries and returns
// the new entries. The batch is validated as a whole; on any failure nothing
// is returned.
func (p *Poster) Post(batch Batch, prior []revrec.LedgerEntry, events []Event) ([]revrec.LedgerEntry, error) {
	if batch.ContractID == "" {
		return nil, revrec.Invalid("contract_id", "required")
	}
	currency, err := revrec.NormalizeCurrency(batch.Currency)
	if err != nil {
		return nil, err
	}
	batch.Currency = currency
	if batch.ExchangeRate.IsZero() {
		batch.ExchangeRate = decimal.NewFromInt(1)
	}
	if !batch.ExchangeRate.IsPositive() {
		return nil, revrec.Invalid("exchange_rate", "must be positive")
	}

	ordered := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Amount.IsNegative() {
			return nil, revrec.Invalid("amount", "%s event amount must be positive", ev.Kind)
		}
		if ev.Amount.IsZero() {
			continue
		}
		if _, ok := kindOrder[ev.Kind]; !ok {
			return nil, revrec.Invalid("event_kind", "unknown event %q", ev.Kind)
		}
		ev.Amount = revrec.Round(ev.Amount)
		ordered = append(ordered, ev)
	}
	SortEvents(ordered)

	pos := PositionOf(prior, p.accounts)
	var out []revrec.LedgerEntry
	for _, ev := range ordered {
		legs := p.legs(&pos, ev)
		legTotal := decimal.Zero
		for _, leg := range legs {
			legTotal = legTotal.Add(leg.Amount)
			out = append(out, p.entry(batch, ev, leg))
		}
		if !legTotal.Equal(ev.Amount) {
			return nil, revrec.Imbalance("%s event %s split into %s", ev.Kind, ev.Amount.StringFixed(2), legTotal.StringFixed(2))
		}
	}

	if err := p.validate(batch, prior, out); err != nil {
		return nil, err
	}
	return out, nil
}

type leg struct {
	debit     string
	credit    string
	entryType revrec.EntryType
	Amount    decimal.Decimal
}

func (p *Poster) legs(pos *Position, ev Event) []leg {
	acc := p.accounts
	amt := ev.Amount
	switch ev.Kind {
	case revrec.EventInvoice:
		toAsset := decimal.Min(amt, pos.UnbilledEarned())
		pos.Billed = pos.Billed.Add(amt)
		return split(amt, toAsset,
			leg{debit: acc.AccountsReceivable, credit: acc.ContractAsset, entryType: revrec.EntryReceivable},
			leg{debit: acc.AccountsReceivable, credit: acc.ContractLiability, entryType: revrec.EntryReceivable})
	case revrec.EventCash:
		toReceivable := decimal.Min(amt, pos.OpenReceivable())
		pos.Collected = pos.Collected.Add(amt)
		pos.Advances = pos.Advances.Add(amt.Sub(toReceivable))
		return split(amt, toReceivable,
			leg{debit: acc.Cash, credit: acc.AccountsReceivable, entryType: revrec.EntryCash},
			leg{debit: acc.Cash, credit: acc.ContractLiability, entryType: revrec.EntryCash})
	case revrec.EventRevenue:
		fromLiability := decimal.Min(amt, pos.UnearnedBilled())
		pos.Earned = pos.Earned.Add(amt)
		return split(amt, fromLiability,
			leg{debit: acc.ContractLiability, credit: acc.Revenue, entryType: revrec.EntryRevenue},
			leg{debit: acc.ContractAsset, credit: acc.Revenue, entryType: revrec.EntryRevenue})
	case revrec.EventFinancing:
		if pos.Earned.GreaterThanOrEqual(pos.Billed) {
			pos.Earned = pos.Earned.Add(amt)
			return []leg{{debit: acc.ContractAsset, credit: acc.FinancingIncome, entryType: revrec.EntryFinancingIncome, Amount: amt}}
		}
		pos.Earned = pos.Earned.Add(amt)
		pos.Billed = pos.Billed.Add(amt)
		return []leg{{debit: acc.AccountsReceivable, credit: acc.FinancingIncome, entryType: revrec.EntryFinancingIncome, Amount: amt}}
	case revrec.EventCommission:
		return []leg{{debit: acc.CommissionExpense, credit: acc.CommissionPayable, entryType: revrec.EntryCommissionExpense, Amount: amt}}
	}
	return nil
}

// split assigns first up to head and the remainder to rest, dropping empty legs.
func split(total, head decimal.Decimal, first, rest leg) []leg {
	var out []leg
	if head.IsPositive() {
		first.Amount = head
		out = append(out, first)
	}
	if remainder := total.Sub(head); remainder.IsPositive() {
		rest.Amount = remainder
		out = append(out, rest)
	}
	return out
}

func (p *Poster) entry(batch Batch, ev Event, l leg) revrec.LedgerEntry {
	now := p.now()
	e := revrec.LedgerEntry{
		ID:                p.newID(),
		TenantID:          batch.TenantID,
		ContractID:        batch.ContractID,
		ObligationID:      ev.ObligationID,
		BillingScheduleID: ev.BillingScheduleID,
		EntryDate:         ev.At,
		PeriodStart:       batch.PeriodStart,
		PeriodEnd:         batch.PeriodEnd,
		EntryType:         l.entryType,
		EventKind:         ev.Kind,
		DebitAccount:      l.debit,
		CreditAccount:     l.credit,
		Amount:            l.Amount,
		Currency:          batch.Currency,
		ExchangeRate:      batch.ExchangeRate,
		Memo:              ev.Memo,
		IsPosted:          batch.Posted,
		CreatedAt:         now,
	}
	if batch.Posted {
		e.PostedAt = &now
	}
	return e
}
