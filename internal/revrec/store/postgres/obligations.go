package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

const obligationColumns = `id, tenant_id, contract_id, version_id, obligation_key, description, line_item_ids, allocated_price,
recognition_method, measurement_method, percent_complete, recognized_amount, deferred_amount, is_satisfied, satisfied_at, status, updated_at`

func scanObligation(row pgx.Row) (revrec.PerformanceObligation, error) {
	var ob revrec.PerformanceObligation
	err := row.Scan(&ob.ID, &ob.TenantID, &ob.ContractID, &ob.VersionID, &ob.Key, &ob.Description, &ob.LineItemIDs, &ob.AllocatedPrice,
		&ob.RecognitionMethod, &ob.MeasurementMethod, &ob.PercentComplete, &ob.RecognizedAmount, &ob.DeferredAmount,
		&ob.IsSatisfied, &ob.SatisfiedAt, &ob.Status, &ob.UpdatedAt)
	return ob, err
}

func (r *txRepository) ListObligations(ctx context.Context, tenantID, contractID string) ([]revrec.PerformanceObligation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+obligationColumns+` FROM performance_obligations WHERE tenant_id=$1 AND contract_id=$2 ORDER BY id`, tenantID, contractID)
	if err != nil {
		return nil, wrap("list obligations", "obligation", "", err)
	}
	defer rows.Close()
	var out []revrec.PerformanceObligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, wrap("scan obligation", "obligation", "", err)
		}
		out = append(out, ob)
	}
	return out, wrap("list obligations", "obligation", "", rows.Err())
}

func (r *txRepository) GetObligation(ctx context.Context, tenantID, id string) (revrec.PerformanceObligation, error) {
	// FOR UPDATE keeps progress updates and runs from interleaving on the same row.
	ob, err := scanObligation(r.tx.QueryRow(ctx, `SELECT `+obligationColumns+` FROM performance_obligations WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return revrec.PerformanceObligation{}, wrap("get obligation", "obligation", id, err)
	}
	return ob, nil
}

func (r *txRepository) CreateObligation(ctx context.Context, ob revrec.PerformanceObligation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO performance_obligations (`+obligationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		ob.ID, ob.TenantID, ob.ContractID, ob.VersionID, ob.Key, ob.Description, lineItemIDs(ob.LineItemIDs), ob.AllocatedPrice,
		ob.RecognitionMethod, ob.MeasurementMethod, ob.PercentComplete, ob.RecognizedAmount, ob.DeferredAmount,
		ob.IsSatisfied, ob.SatisfiedAt, ob.Status, ob.UpdatedAt)
	return wrap("create obligation", "obligation", ob.ID, err)
}

func (r *txRepository) UpdateObligation(ctx context.Context, ob revrec.PerformanceObligation) error {
	tag, err := r.tx.Exec(ctx, `UPDATE performance_obligations SET version_id=$3, description=$4, line_item_ids=$5, allocated_price=$6,
measurement_method=$7, percent_complete=$8, recognized_amount=$9, deferred_amount=$10, is_satisfied=$11, satisfied_at=$12,
status=$13, updated_at=$14 WHERE tenant_id=$1 AND id=$2`,
		ob.TenantID, ob.ID, ob.VersionID, ob.Description, lineItemIDs(ob.LineItemIDs), ob.AllocatedPrice,
		ob.MeasurementMethod, ob.PercentComplete, ob.RecognizedAmount, ob.DeferredAmount, ob.IsSatisfied, ob.SatisfiedAt,
		ob.Status, ob.UpdatedAt)
	if err != nil {
		return wrap("update obligation", "obligation", ob.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update obligation", "obligation", ob.ID, pgx.ErrNoRows)
	}
	return nil
}

func lineItemIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
