package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

var (
	t0       = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	accounts = revrec.DefaultTaxonomy()
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestPoster() *Poster {
	seq := 0
	return NewPoster(accounts).
		WithNow(func() time.Time { return t0 }).
		WithIDs(func() string {
			seq++
			return fmt.Sprintf("le-%03d", seq)
		})
}

func batch() Batch {
	return Batch{TenantID: "t1", ContractID: "c1", Currency: "BRL", Posted: true}
}

func ev(kind revrec.EventKind, amount string, day int) Event {
	return Event{Kind: kind, Amount: dec(amount), At: t0.AddDate(0, 0, day)}
}

type bal struct{ debit, credit, net string }

func requireLine(t *testing.T, tb reconcile.TrialBalance, code string, want bal) {
	t.Helper()
	line := tb.Line(code)
	require.Equal(t, want.debit, line.Debit.StringFixed(2), "debit %s", code)
	require.Equal(t, want.credit, line.Credit.StringFixed(2), "credit %s", code)
	require.Equal(t, want.net, line.Net.StringFixed(2), "net %s", code)
}

func post(t *testing.T, events ...Event) ([]revrec.LedgerEntry, reconcile.TrialBalance) {
	t.Helper()
	entries, err := newTestPoster().Post(batch(), nil, events)
	require.NoError(t, err)
	tb := reconcile.BuildTrialBalance(entries, accounts)
	require.True(t, tb.Balanced(), "debits %s credits %s", tb.TotalDebit, tb.TotalCredit)
	return entries, tb
}

func TestInvoiceThenPartialRevenue(t *testing.T) {
	_, tb := post(t, ev(revrec.EventInvoice, "100", 0), ev(revrec.EventRevenue, "30", 1))
	requireLine(t, tb, "1200", bal{"100.00", "0.00", "100.00"})
	requireLine(t, tb, "4000", bal{"0.00", "30.00", "-30.00"})
	requireLine(t, tb, "2600", bal{"30.00", "100.00", "-70.00"})
}

func TestRevenueBeforeInvoiceThenCash(t *testing.T) {
	_, tb := post(t,
		ev(revrec.EventRevenue, "30", 0),
		ev(revrec.EventInvoice, "30", 1),
		ev(revrec.EventCash, "30", 2),
	)
	requireLine(t, tb, "1300", bal{"30.00", "30.00", "0.00"})
	requireLine(t, tb, "1200", bal{"30.00", "30.00", "0.00"})
	require.Equal(t, "30.00", tb.Line("1000").Debit.StringFixed(2))
}

func TestRevenueExceedingBillingSplitsIntoAsset(t *testing.T) {
	entries, tb := post(t, ev(revrec.EventInvoice, "100", 0), ev(revrec.EventRevenue, "120", 1))
	require.Equal(t, "100.00", tb.Line("2600").Debit.StringFixed(2))
	require.Equal(t, "20.00", tb.Line("1300").Debit.StringFixed(2))
	require.Equal(t, "120.00", tb.Line("4000").Credit.StringFixed(2))
	require.Len(t, entries, 3)
}

func TestInvoiceExceedingAssetSplitsIntoLiability(t *testing.T) {
	_, tb := post(t, ev(revrec.EventRevenue, "80", 0), ev(revrec.EventInvoice, "100", 1))
	requireLine(t, tb, "1300", bal{"80.00", "80.00", "0.00"})
	requireLine(t, tb, "2600", bal{"0.00", "20.00", "-20.00"})
	requireLine(t, tb, "1200", bal{"100.00", "0.00", "100.00"})
}

func TestAdvancePaymentGoesToLiability(t *testing.T) {
	_, tb := post(t,
		ev(revrec.EventCash, "50", 0),
		ev(revrec.EventInvoice, "100", 1),
		ev(revrec.EventRevenue, "30", 2),
	)
	requireLine(t, tb, "2600", bal{"30.00", "150.00", "-120.00"})
	require.Equal(t, "50.00", tb.Line("1000").Debit.StringFixed(2))
	require.Equal(t, "100.00", tb.Line("1200").Debit.StringFixed(2))
	require.Equal(t, "30.00", tb.Line("4000").Credit.StringFixed(2))
}

func TestSameTimestampOrdersInvoiceBeforeRevenue(t *testing.T) {
	_, tb := post(t, ev(revrec.EventRevenue, "30", 0), ev(revrec.EventInvoice, "100", 0))
	// invoice first: everything billed lands in liability, then revenue draws it down
	requireLine(t, tb, "2600", bal{"30.00", "100.00", "-70.00"})
	require.True(t, tb.Line("1300").Debit.IsZero())
}

func TestPostContinuesFromPriorPosition(t *testing.T) {
	p := newTestPoster()
	first, err := p.Post(batch(), nil, []Event{ev(revrec.EventInvoice, "100", 0)})
	require.NoError(t, err)
	second, err := p.Post(batch(), first, []Event{ev(revrec.EventRevenue, "40", 1)})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "2600", second[0].DebitAccount)
	require.Equal(t, "4000", second[0].CreditAccount)
}

func TestFinancingAccretion(t *testing.T) {
	entries, _ := post(t, ev(revrec.EventRevenue, "100", 0), ev(revrec.EventFinancing, "5", 1))
	require.Equal(t, "1300", entries[1].DebitAccount)
	require.Equal(t, "4100", entries[1].CreditAccount)

	entries, _ = post(t, ev(revrec.EventInvoice, "100", 0), ev(revrec.EventFinancing, "5", 1))
	require.Equal(t, "1200", entries[1].DebitAccount)
	pos := PositionOf(entries, accounts)
	require.Equal(t, "105.00", pos.Billed.StringFixed(2))
	require.NoError(t, CheckPosition(entries, accounts))
}

func TestCommissionPosting(t *testing.T) {
	entries, _ := post(t, ev(revrec.EventCommission, "12.5", 0))
	require.Len(t, entries, 1)
	require.Equal(t, "6100", entries[0].DebitAccount)
	require.Equal(t, "2100", entries[0].CreditAccount)
	require.Equal(t, revrec.EntryCommissionExpense, entries[0].EntryType)
}

func TestZeroEventsAreSkipped(t *testing.T) {
	entries, err := newTestPoster().Post(batch(), nil, []Event{ev(revrec.EventRevenue, "0", 0)})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPostRejectsInvalidBatch(t *testing.T) {
	p := newTestPoster()
	_, err := p.Post(batch(), nil, []Event{ev(revrec.EventRevenue, "-1", 0)})
	require.ErrorIs(t, err, revrec.ErrValidation)

	b := batch()
	b.Currency = "ZZZZ"
	_, err = p.Post(b, nil, []Event{ev(revrec.EventRevenue, "1", 0)})
	require.ErrorIs(t, err, revrec.ErrValidation)

	b = batch()
	b.ExchangeRate = dec("-2")
	_, err = p.Post(b, nil, []Event{ev(revrec.EventRevenue, "1", 0)})
	require.ErrorIs(t, err, revrec.ErrValidation)

	broken := accounts
	broken.Revenue = broken.ContractAsset
	_, err = NewPoster(broken).Post(batch(), nil, []Event{ev(revrec.EventRevenue, "1", 0)})
	require.ErrorIs(t, err, revrec.ErrValidation)
}

func TestValidateBatchRejectsMixedScope(t *testing.T) {
	entries, _ := post(t, ev(revrec.EventInvoice, "100", 0), ev(revrec.EventRevenue, "40", 1))
	require.NoError(t, ValidateBatch(entries))

	mutations := map[string]func(e *revrec.LedgerEntry){
		"contract":      func(e *revrec.LedgerEntry) { e.ContractID = "other" },
		"tenant":        func(e *revrec.LedgerEntry) { e.TenantID = "other" },
		"currency":      func(e *revrec.LedgerEntry) { e.Currency = "USD" },
		"exchange rate": func(e *revrec.LedgerEntry) { e.ExchangeRate = dec("2") },
		"amount":        func(e *revrec.LedgerEntry) { e.Amount = decimal.Zero },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			batch := append([]revrec.LedgerEntry(nil), entries...)
			mutate(&batch[len(batch)-1])
			require.ErrorIs(t, ValidateBatch(batch), revrec.ErrValidation)
		})
	}
}

func TestCheckPositionDetectsTampering(t *testing.T) {
	entries, _ := post(t, ev(revrec.EventInvoice, "100", 0))
	entries[0].CreditAccount = accounts.Revenue
	err := CheckPosition(entries, accounts)
	require.True(t, errors.Is(err, revrec.ErrPostingImbalance), "got %v", err)
}

func TestReverseSwapsAccountsAndRestoresPosition(t *testing.T) {
	p := newTestPoster()
	entries, err := p.Post(batch(), nil, []Event{ev(revrec.EventInvoice, "100", 0), ev(revrec.EventRevenue, "30", 1)})
	require.NoError(t, err)
	original := entries[1]

	rev, err := p.Reverse(original, entries, t0.AddDate(0, 0, 5), true)
	require.NoError(t, err)
	require.True(t, rev.IsReversed)
	require.Equal(t, original.ID, rev.ReversedEntryID)
	require.Equal(t, original.CreditAccount, rev.DebitAccount)
	require.Equal(t, original.DebitAccount, rev.CreditAccount)
	require.False(t, entries[1].IsReversed)

	all := append(entries, rev)
	pos := PositionOf(all, accounts)
	require.True(t, pos.Earned.IsZero())
	require.True(t, RecognizedFor(all, "").IsZero())

	_, err = p.Reverse(original, all, t0, true)
	require.ErrorIs(t, err, revrec.ErrValidation)
	_, err = p.Reverse(rev, all, t0, true)
	require.ErrorIs(t, err, revrec.ErrValidation)
}

func TestPostedForTracksBillingLinks(t *testing.T) {
	e := ev(revrec.EventInvoice, "100", 0)
	e.BillingScheduleID = "b1"
	entries, _ := post(t, e)
	require.Equal(t, "100.00", PostedFor(entries, revrec.EventInvoice, "b1").StringFixed(2))
	require.True(t, PostedFor(entries, revrec.EventCash, "b1").IsZero())
}
