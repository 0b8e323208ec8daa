package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

const billingColumns = `id, tenant_id, contract_id, amount, billing_date, due_date, status, invoiced_at, paid_at, paid_amount`

func scanBilling(row pgx.Row) (revrec.BillingScheduleEntry, error) {
	var b revrec.BillingScheduleEntry
	err := row.Scan(&b.ID, &b.TenantID, &b.ContractID, &b.Amount, &b.BillingDate, &b.DueDate, &b.Status, &b.InvoicedAt, &b.PaidAt, &b.PaidAmount)
	return b, err
}

func (r *txRepository) ListBilling(ctx context.Context, tenantID, contractID string) ([]revrec.BillingScheduleEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+billingColumns+` FROM billing_schedule WHERE tenant_id=$1 AND contract_id=$2 ORDER BY billing_date, id`, tenantID, contractID)
	if err != nil {
		return nil, wrap("list billing", "billing", "", err)
	}
	defer rows.Close()
	var out []revrec.BillingScheduleEntry
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, wrap("scan billing", "billing", "", err)
		}
		out = append(out, b)
	}
	return out, wrap("list billing", "billing", "", rows.Err())
}

func (r *txRepository) GetBilling(ctx context.Context, tenantID, id string) (revrec.BillingScheduleEntry, error) {
	b, err := scanBilling(r.tx.QueryRow(ctx, `SELECT `+billingColumns+` FROM billing_schedule WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return revrec.BillingScheduleEntry{}, wrap("get billing", "billing", id, err)
	}
	return b, nil
}

func (r *txRepository) UpdateBilling(ctx context.Context, b revrec.BillingScheduleEntry) error {
	tag, err := r.tx.Exec(ctx, `UPDATE billing_schedule SET status=$3, invoiced_at=$4, paid_at=$5, paid_amount=$6
WHERE tenant_id=$1 AND id=$2`, b.TenantID, b.ID, b.Status, b.InvoicedAt, b.PaidAt, b.PaidAmount)
	if err != nil {
		return wrap("update billing", "billing", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update billing", "billing", b.ID, pgx.ErrNoRows)
	}
	return nil
}

func (r *txRepository) GetFinancing(ctx context.Context, tenantID, contractID string) (*revrec.FinancingComponent, error) {
	var fc revrec.FinancingComponent
	var start *time.Time
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, contract_id, nominal_amount, discount_rate, financing_period_months, start_date,
method, present_value, total_interest, recognized_interest, updated_at
FROM financing_components WHERE tenant_id=$1 AND contract_id=$2`, tenantID, contractID).
		Scan(&fc.ID, &fc.TenantID, &fc.ContractID, &fc.NominalAmount, &fc.DiscountRate, &fc.FinancingPeriodMonths, &start,
			&fc.Method, &fc.PresentValue, &fc.TotalInterest, &fc.RecognizedInterest, &fc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get financing", "financing", contractID, err)
	}
	if start != nil {
		fc.StartDate = *start
	}
	return &fc, nil
}

func (r *txRepository) UpdateFinancing(ctx context.Context, fc revrec.FinancingComponent) error {
	_, err := r.tx.Exec(ctx, `UPDATE financing_components SET method=$3, present_value=$4, total_interest=$5, recognized_interest=$6, updated_at=$7
WHERE tenant_id=$1 AND id=$2`, fc.TenantID, fc.ID, fc.Method, fc.PresentValue, fc.TotalInterest, fc.RecognizedInterest, fc.UpdatedAt)
	return wrap("update financing", "financing", fc.ID, err)
}

func (r *txRepository) ListVariableConsideration(ctx context.Context, tenantID, contractID string) ([]revrec.VariableConsideration, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, contract_id, kind, description, estimated_amount, likelihood
FROM variable_consideration WHERE tenant_id=$1 AND contract_id=$2 ORDER BY id`, tenantID, contractID)
	if err != nil {
		return nil, wrap("list variable consideration", "variable_consideration", "", err)
	}
	defer rows.Close()
	var out []revrec.VariableConsideration
	for rows.Next() {
		var vc revrec.VariableConsideration
		if err := rows.Scan(&vc.ID, &vc.TenantID, &vc.ContractID, &vc.Kind, &vc.Description, &vc.EstimatedAmount, &vc.Likelihood); err != nil {
			return nil, wrap("scan variable consideration", "variable_consideration", "", err)
		}
		out = append(out, vc)
	}
	return out, wrap("list variable consideration", "variable_consideration", "", rows.Err())
}

func (r *txRepository) ListCommissions(ctx context.Context, tenantID, contractID string) ([]revrec.CommissionCost, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, contract_id, amount, incurred_at
FROM commission_costs WHERE tenant_id=$1 AND contract_id=$2 ORDER BY id`, tenantID, contractID)
	if err != nil {
		return nil, wrap("list commissions", "commission", "", err)
	}
	defer rows.Close()
	var out []revrec.CommissionCost
	for rows.Next() {
		var c revrec.CommissionCost
		var incurred *time.Time
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ContractID, &c.Amount, &incurred); err != nil {
			return nil, wrap("scan commission", "commission", "", err)
		}
		if incurred != nil {
			c.IncurredAt = *incurred
		}
		out = append(out, c)
	}
	return out, wrap("list commissions", "commission", "", rows.Err())
}
