package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

const contractColumns = `id, tenant_id, number, customer_id, total_value, currency, exchange_rate, status,
current_version_id, start_date, end_date, created_at, updated_at`

func scanContract(row pgx.Row) (revrec.Contract, error) {
	var c revrec.Contract
	err := row.Scan(&c.ID, &c.TenantID, &c.Number, &c.CustomerID, &c.TotalValue, &c.Currency, &c.ExchangeRate, &c.Status,
		&c.CurrentVersionID, &c.StartDate, &c.EndDate, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *txRepository) ListContracts(ctx context.Context, tenantID string) ([]revrec.Contract, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+contractColumns+` FROM contracts WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, wrap("list contracts", "contract", "", err)
	}
	defer rows.Close()
	var out []revrec.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, wrap("scan contract", "contract", "", err)
		}
		out = append(out, c)
	}
	return out, wrap("list contracts", "contract", "", rows.Err())
}

func (r *txRepository) GetContract(ctx context.Context, tenantID, id string) (revrec.Contract, error) {
	c, err := scanContract(r.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return revrec.Contract{}, wrap("get contract", "contract", id, err)
	}
	return c, nil
}

func (r *txRepository) UpdateContract(ctx context.Context, c revrec.Contract) error {
	tag, err := r.tx.Exec(ctx, `UPDATE contracts SET total_value=$3, status=$4, current_version_id=$5, end_date=$6, updated_at=$7
WHERE tenant_id=$1 AND id=$2`, c.TenantID, c.ID, c.TotalValue, c.Status, c.CurrentVersionID, c.EndDate, c.UpdatedAt)
	if err != nil {
		return wrap("update contract", "contract", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update contract", "contract", c.ID, pgx.ErrNoRows)
	}
	return nil
}

const versionColumns = `id, tenant_id, contract_id, version_number, effective_date, total_value, modification_reason, created_at`

func scanVersion(row pgx.Row) (revrec.ContractVersion, error) {
	var v revrec.ContractVersion
	err := row.Scan(&v.ID, &v.TenantID, &v.ContractID, &v.VersionNumber, &v.EffectiveDate, &v.TotalValue, &v.ModificationReason, &v.CreatedAt)
	return v, err
}

func (r *txRepository) GetVersion(ctx context.Context, tenantID, id string) (revrec.ContractVersion, error) {
	v, err := scanVersion(r.tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM contract_versions WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return revrec.ContractVersion{}, wrap("get version", "version", id, err)
	}
	return v, nil
}

func (r *txRepository) ListVersions(ctx context.Context, tenantID, contractID string) ([]revrec.ContractVersion, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+versionColumns+` FROM contract_versions WHERE tenant_id=$1 AND contract_id=$2 ORDER BY version_number`, tenantID, contractID)
	if err != nil {
		return nil, wrap("list versions", "version", "", err)
	}
	defer rows.Close()
	var out []revrec.ContractVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, wrap("scan version", "version", "", err)
		}
		out = append(out, v)
	}
	return out, wrap("list versions", "version", "", rows.Err())
}

func (r *txRepository) CreateVersion(ctx context.Context, v revrec.ContractVersion) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO contract_versions (id, tenant_id, contract_id, version_number, effective_date, total_value, modification_reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, v.ID, v.TenantID, v.ContractID, v.VersionNumber, v.EffectiveDate, v.TotalValue, v.ModificationReason, v.CreatedAt)
	return wrap("create version", "version", v.ID, err)
}

func (r *txRepository) ListLineItems(ctx context.Context, tenantID, versionID string) ([]revrec.LineItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, version_id, item_key, description, unit_price, quantity, total_price,
standalone_selling_price, recognition_method, measurement_method, bundle_key, delivery_start, delivery_end
FROM line_items WHERE tenant_id=$1 AND version_id=$2 ORDER BY id`, tenantID, versionID)
	if err != nil {
		return nil, wrap("list line items", "line_item", "", err)
	}
	defer rows.Close()
	var out []revrec.LineItem
	for rows.Next() {
		var li revrec.LineItem
		var ssp decimal.NullDecimal
		if err := rows.Scan(&li.ID, &li.TenantID, &li.VersionID, &li.Key, &li.Description, &li.UnitPrice, &li.Quantity, &li.TotalPrice,
			&ssp, &li.RecognitionMethod, &li.MeasurementMethod, &li.BundleKey, &li.DeliveryStart, &li.DeliveryEnd); err != nil {
			return nil, wrap("scan line item", "line_item", "", err)
		}
		li.StandaloneSellingPrice = decimalPtr(ssp)
		out = append(out, li)
	}
	return out, wrap("list line items", "line_item", "", rows.Err())
}

func (r *txRepository) CreateLineItems(ctx context.Context, items []revrec.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, li := range items {
		batch.Queue(`INSERT INTO line_items (id, tenant_id, version_id, item_key, description, unit_price, quantity, total_price,
standalone_selling_price, recognition_method, measurement_method, bundle_key, delivery_start, delivery_end)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			li.ID, li.TenantID, li.VersionID, li.Key, li.Description, li.UnitPrice, li.Quantity, li.TotalPrice,
			nullDecimal(li.StandaloneSellingPrice), li.RecognitionMethod, li.MeasurementMethod, li.BundleKey, li.DeliveryStart, li.DeliveryEnd)
	}
	return wrap("create line items", "line_item", "", r.tx.SendBatch(ctx, batch).Close())
}
