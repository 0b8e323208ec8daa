package reconcile

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

var accounts = revrec.DefaultTaxonomy()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(month, day int) time.Time {
	return time.Date(2025, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func entry(id string, at time.Time, debit, credit, amount string) revrec.LedgerEntry {
	return revrec.LedgerEntry{
		ID:            id,
		ContractID:    "c1",
		EntryDate:     at,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        dec(amount),
		Currency:      "BRL",
		ExchangeRate:  dec("1"),
		IsPosted:      true,
	}
}

func sampleEntries() []revrec.LedgerEntry {
	return []revrec.LedgerEntry{
		entry("e1", date(1, 15), "1200", "2600", "100000"),
		entry("e2", date(1, 31), "2600", "4000", "30000"),
		entry("e3", date(2, 10), "1000", "1200", "60000"),
		entry("e4", date(2, 28), "2600", "4000", "42000"),
		entry("e5", date(3, 31), "2600", "4000", "28000"),
		entry("e6", date(3, 31), "1300", "4000", "20000"),
		entry("e7", date(4, 2), "1000", "1200", "40000"),
	}
}

func TestReconcileOpeningMovementClosing(t *testing.T) {
	report := Reconcile(sampleEntries(), accounts, Options{Start: date(2, 1), End: date(3, 31)})

	ar, ok := report.Row("1200")
	require.True(t, ok)
	require.Equal(t, "100000.00", ar.Opening.StringFixed(2))
	require.Equal(t, "0.00", ar.Debit.StringFixed(2))
	require.Equal(t, "60000.00", ar.Credit.StringFixed(2))
	require.Equal(t, "40000.00", ar.Closing.StringFixed(2))
	require.Equal(t, NatureDebit, ar.Nature)

	rev, ok := report.Row("4000")
	require.True(t, ok)
	require.Equal(t, "-30000.00", rev.Opening.StringFixed(2))
	require.Equal(t, "-120000.00", rev.Closing.StringFixed(2))
	require.Equal(t, NatureCredit, rev.Nature)

	require.Equal(t, "20000.00", report.ContractAssets.StringFixed(2))
	require.Equal(t, "0.00", report.ContractLiabilities.StringFixed(2))
	require.Equal(t, "contract_asset", report.PositionLabel())
	require.True(t, report.TotalDebit.Equal(report.TotalCredit))
}

func TestReconcileReportsEntryTypesAndTrialBalance(t *testing.T) {
	types := map[string]revrec.EntryType{
		"e1": revrec.EntryReceivable, "e2": revrec.EntryRevenue, "e3": revrec.EntryCash,
		"e4": revrec.EntryRevenue, "e5": revrec.EntryRevenue, "e6": revrec.EntryRevenue, "e7": revrec.EntryCash,
	}
	entries := sampleEntries()
	for i := range entries {
		entries[i].EntryType = types[entries[i].ID]
	}

	report := Reconcile(entries, accounts, Options{Start: date(2, 1), End: date(3, 31)})
	require.Len(t, report.ByType, 3)
	require.Equal(t, revrec.EntryCash, report.ByType[0].Type)

	revenue := report.Type(revrec.EntryRevenue)
	require.Equal(t, "30000.00", revenue.Opening.StringFixed(2))
	require.Equal(t, "90000.00", revenue.Credit.StringFixed(2))
	require.Equal(t, "120000.00", revenue.Closing.StringFixed(2))
	require.Equal(t, "60000.00", report.Type(revrec.EntryCash).Closing.StringFixed(2))
	receivable := report.Type(revrec.EntryReceivable)
	require.Equal(t, "100000.00", receivable.Opening.StringFixed(2))
	require.True(t, receivable.Debit.IsZero())

	tb := report.TrialBalance
	require.True(t, tb.Balanced())
	require.Len(t, tb.Lines, 5)
	require.Equal(t, "60000.00", tb.Line("1000").Debit.StringFixed(2))
	require.Equal(t, "40000.00", tb.Line("1200").Net.StringFixed(2))
	require.Equal(t, "-120000.00", tb.Line("4000").Net.StringFixed(2))
}

func TestReconcileIsDeterministic(t *testing.T) {
	opts := Options{Start: date(1, 1), End: date(12, 31)}
	first := Reconcile(sampleEntries(), accounts, opts)
	second := Reconcile(sampleEntries(), accounts, opts)
	require.Equal(t, render(first), render(second))
}

func TestReconcileExcludesDraftsUnlessRequested(t *testing.T) {
	draft := entry("d1", date(1, 5), "1300", "4000", "500")
	draft.IsPosted = false
	entries := append(sampleEntries(), draft)

	report := Reconcile(entries, accounts, Options{})
	require.Equal(t, "20000.00", report.ContractAssets.StringFixed(2))

	report = Reconcile(entries, accounts, Options{IncludeDrafts: true})
	require.Equal(t, "20500.00", report.ContractAssets.StringFixed(2))
}

func TestReconcileFiltersContractAndConvertsRate(t *testing.T) {
	other := entry("x1", date(1, 5), "1200", "2500", "10")
	other.ContractID = "c2"
	other.ExchangeRate = dec("5.5")
	entries := append(sampleEntries(), other)

	report := Reconcile(entries, accounts, Options{ContractID: "c2"})
	require.Len(t, report.Rows, 2)
	legacy, ok := report.Row("2500")
	require.True(t, ok)
	require.Equal(t, "55.00", legacy.Credit.StringFixed(2))
	require.Equal(t, "55.00", report.ContractLiabilities.StringFixed(2))
	require.Equal(t, "contract_liability", report.PositionLabel())
}

func TestReconcileGolden(t *testing.T) {
	report := Reconcile(sampleEntries(), accounts, Options{Start: date(2, 1), End: date(3, 31)})
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "reconciliation_q1", render(report))
}

func render(r Report) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "period %s..%s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	for _, row := range r.Rows {
		fmt.Fprintf(&buf, "%s|%s|%s|%s|%s|%s|%s\n",
			row.Code, row.Name,
			row.Opening.StringFixed(2), row.Debit.StringFixed(2), row.Credit.StringFixed(2), row.Closing.StringFixed(2),
			row.Nature)
	}
	fmt.Fprintf(&buf, "contract_assets=%s contract_liabilities=%s\n",
		r.ContractAssets.StringFixed(2), r.ContractLiabilities.StringFixed(2))
	return buf.Bytes()
}

func TestTrialBalanceCoversTouchedAccounts(t *testing.T) {
	tb := BuildTrialBalance(sampleEntries(), accounts)
	require.True(t, tb.Balanced())
	require.Len(t, tb.Lines, 5)
	require.Equal(t, "-120000.00", tb.Line("4000").Net.StringFixed(2))
	require.True(t, tb.Line("9999").Net.IsZero())
}

func typed(t revrec.EntryType, amount string) revrec.LedgerEntry {
	return revrec.LedgerEntry{EntryType: t, Amount: dec(amount)}
}

func TestByEntryTypeAssetsAndLiabilities(t *testing.T) {
	entries := []revrec.LedgerEntry{
		typed(revrec.EntryReceivable, "1000"),
		typed(revrec.EntryCash, "500"),
		typed(revrec.EntryContractLiability, "300"),
		typed(revrec.EntryRevenue, "700"),
	}
	opening := map[revrec.EntryType]decimal.Decimal{
		revrec.EntryReceivable:        dec("200"),
		revrec.EntryCash:              dec("100"),
		revrec.EntryContractLiability: dec("50"),
		revrec.EntryRevenue:           decimal.Zero,
	}
	got := ByEntryType(entries, opening)

	cases := map[revrec.EntryType][4]string{
		revrec.EntryReceivable:        {"200.00", "1000.00", "0.00", "1200.00"},
		revrec.EntryCash:              {"100.00", "500.00", "0.00", "600.00"},
		revrec.EntryContractLiability: {"50.00", "0.00", "300.00", "350.00"},
		revrec.EntryRevenue:           {"0.00", "0.00", "700.00", "700.00"},
	}
	for typ, want := range cases {
		bal := got[typ]
		require.Equal(t, want[0], bal.Opening.StringFixed(2), "%s opening", typ)
		require.Equal(t, want[1], bal.Debit.StringFixed(2), "%s debit", typ)
		require.Equal(t, want[2], bal.Credit.StringFixed(2), "%s credit", typ)
		require.Equal(t, want[3], bal.Closing.StringFixed(2), "%s closing", typ)
	}
}

func TestByEntryTypeUnknownDefaultsToDebit(t *testing.T) {
	got := ByEntryType([]revrec.LedgerEntry{typed("unknown_account", "250")}, nil)
	bal := got["unknown_account"]
	require.Equal(t, "0.00", bal.Opening.StringFixed(2))
	require.Equal(t, "250.00", bal.Debit.StringFixed(2))
	require.Equal(t, "250.00", bal.Closing.StringFixed(2))
}

func TestByEntryTypeEmpty(t *testing.T) {
	require.Empty(t, ByEntryType(nil, nil))
}

func TestByEntryTypeReversalOffsets(t *testing.T) {
	rev := typed(revrec.EntryRevenue, "30")
	rev.IsReversed = true
	got := ByEntryType([]revrec.LedgerEntry{typed(revrec.EntryRevenue, "100"), rev}, nil)
	require.Equal(t, "70.00", got[revrec.EntryRevenue].Closing.StringFixed(2))
}
