package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

const entryColumns = `id, tenant_id, contract_id, obligation_id, billing_schedule_id, entry_date, period_start, period_end,
entry_type, event_kind, debit_account, credit_account, amount, currency, exchange_rate, memo,
is_posted, posted_at, is_reversed, reversed_entry_id, created_at`

func scanEntry(row pgx.Row) (revrec.LedgerEntry, error) {
	var e revrec.LedgerEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.ContractID, &e.ObligationID, &e.BillingScheduleID, &e.EntryDate, &e.PeriodStart, &e.PeriodEnd,
		&e.EntryType, &e.EventKind, &e.DebitAccount, &e.CreditAccount, &e.Amount, &e.Currency, &e.ExchangeRate, &e.Memo,
		&e.IsPosted, &e.PostedAt, &e.IsReversed, &e.ReversedEntryID, &e.CreatedAt)
	return e, err
}

func (r *txRepository) queryEntries(ctx context.Context, op, sql string, args ...any) ([]revrec.LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrap(op, "ledger_entry", "", err)
	}
	defer rows.Close()
	var out []revrec.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrap(op, "ledger_entry", "", err)
		}
		out = append(out, e)
	}
	return out, wrap(op, "ledger_entry", "", rows.Err())
}

func (r *txRepository) ListEntries(ctx context.Context, tenantID, contractID string) ([]revrec.LedgerEntry, error) {
	if contractID == "" {
		return r.queryEntries(ctx, "list entries", `SELECT `+entryColumns+` FROM ledger_entries WHERE tenant_id=$1 ORDER BY entry_date, created_at, id`, tenantID)
	}
	return r.queryEntries(ctx, "list entries", `SELECT `+entryColumns+` FROM ledger_entries WHERE tenant_id=$1 AND contract_id=$2 ORDER BY entry_date, created_at, id`, tenantID, contractID)
}

func (r *txRepository) GetEntry(ctx context.Context, tenantID, id string) (revrec.LedgerEntry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return revrec.LedgerEntry{}, wrap("get entry", "ledger_entry", id, err)
	}
	return e, nil
}

func (r *txRepository) ListUnposted(ctx context.Context, tenantID string) ([]revrec.LedgerEntry, error) {
	return r.queryEntries(ctx, "list unposted", `SELECT `+entryColumns+` FROM ledger_entries WHERE tenant_id=$1 AND NOT is_posted ORDER BY entry_date, id`, tenantID)
}

// InsertEntries appends entries in one batch; the ledger is never updated in place
// except for the draft to posted flag.
func (r *txRepository) InsertEntries(ctx context.Context, entries []revrec.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO ledger_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			e.ID, e.TenantID, e.ContractID, e.ObligationID, e.BillingScheduleID, e.EntryDate, e.PeriodStart, e.PeriodEnd,
			e.EntryType, e.EventKind, e.DebitAccount, e.CreditAccount, e.Amount.String(), e.Currency, e.ExchangeRate.String(), e.Memo,
			e.IsPosted, e.PostedAt, e.IsReversed, e.ReversedEntryID, e.CreatedAt)
	}
	return wrap("insert entries", "ledger_entry", entries[0].ID, r.tx.SendBatch(ctx, batch).Close())
}

func (r *txRepository) MarkPosted(ctx context.Context, tenantID string, ids []string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_entries SET is_posted=TRUE, posted_at=$3 WHERE tenant_id=$1 AND id = ANY($2) AND NOT is_posted`, tenantID, ids, at)
	return wrap("mark posted", "ledger_entry", "", err)
}
