package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Snapshot is everything a recognition run reads for one contract.
type Snapshot struct {
	Contract    revrec.Contract
	Version     revrec.ContractVersion
	LineItems   []revrec.LineItem
	Obligations []revrec.PerformanceObligation
	Billing     []revrec.BillingScheduleEntry
	Financing   *revrec.FinancingComponent
	Variable    []revrec.VariableConsideration
	Commissions []revrec.CommissionCost
	Entries     []revrec.LedgerEntry
}

// Load reads the contract, the requested version (or the current one) and
// all collaborating records within tx.
func Load(ctx context.Context, tx TxRepository, tenantID, contractID, versionID string) (Snapshot, error) {
	var snap Snapshot
	contract, err := tx.GetContract(ctx, tenantID, contractID)
	if err != nil {
		return snap, fmt.Errorf("load contract %s: %w", contractID, err)
	}
	if contract.TenantID != "" && contract.TenantID != tenantID {
		return snap, fmt.Errorf("load contract %s: %w", contractID, revrec.ErrNotFound)
	}
	contract.TenantID = tenantID
	snap.Contract = contract

	if versionID == "" {
		versionID = contract.CurrentVersionID
	}
	if versionID == "" {
		return snap, revrec.Invalid("current_version_id", "contract %s has no current version", contractID)
	}
	version, err := tx.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, revrec.ErrNotFound) {
			return snap, revrec.Invalid("version_id", "version %s not found for contract %s", versionID, contractID)
		}
		return snap, fmt.Errorf("load version %s: %w", versionID, err)
	}
	if version.ContractID != contractID {
		return snap, revrec.Invalid("version_id", "version %s belongs to contract %s", versionID, version.ContractID)
	}
	snap.Version = version

	if snap.LineItems, err = tx.ListLineItems(ctx, tenantID, versionID); err != nil {
		return snap, fmt.Errorf("load line items: %w", err)
	}
	if snap.Obligations, err = tx.ListObligations(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load obligations: %w", err)
	}
	if snap.Billing, err = tx.ListBilling(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load billing schedule: %w", err)
	}
	if snap.Financing, err = tx.GetFinancing(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load financing component: %w", err)
	}
	if snap.Variable, err = tx.ListVariableConsideration(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load variable consideration: %w", err)
	}
	if snap.Commissions, err = tx.ListCommissions(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load commissions: %w", err)
	}
	if snap.Entries, err = tx.ListEntries(ctx, tenantID, contractID); err != nil {
		return snap, fmt.Errorf("load ledger entries: %w", err)
	}
	return snap, nil
}
