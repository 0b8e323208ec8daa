package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// LineItemInput describes a line item of a new contract version.
type LineItemInput struct {
	Key                    string
	Description            string
	UnitPrice              decimal.Decimal
	Quantity               decimal.Decimal
	StandaloneSellingPrice *decimal.Decimal
	RecognitionMethod      revrec.RecognitionMethod
	MeasurementMethod      revrec.MeasurementMethod
	BundleKey              string
	DeliveryStart          *time.Time
	DeliveryEnd            *time.Time
}

// ModifyInput describes a prospective contract modification.
type ModifyInput struct {
	EffectiveDate time.Time
	TotalValue    decimal.Decimal
	Reason        string
	LineItems     []LineItemInput
}

// ModifyContract creates a new immutable version and points the contract at
// it. Earlier versions and recognized amounts are left as they are; the next
// run reallocates prospectively. Obligations the new version drops keep the
// revenue they recognized, and only the rest of the value is reallocated.
func (s *Service) ModifyContract(ctx context.Context, tenantID, contractID string, input ModifyInput) (revrec.ContractVersion, error) {
	if err := requireTenant(tenantID); err != nil {
		return revrec.ContractVersion{}, err
	}
	if input.Reason == "" {
		return revrec.ContractVersion{}, revrec.Invalid("modification_reason", "required")
	}
	if input.TotalValue.IsNegative() {
		return revrec.ContractVersion{}, revrec.Invalid("total_value", "must not be negative")
	}
	now := s.clock()
	if input.EffectiveDate.IsZero() {
		input.EffectiveDate = now
	}

	var version revrec.ContractVersion
	err := s.withContractLock(ctx, tenantID, contractID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			contract, err := tx.GetContract(ctx, tenantID, contractID)
			if err != nil {
				return err
			}
			if contract.Status == revrec.ContractStatusTerminated || contract.Status == revrec.ContractStatusExpired {
				return revrec.Invalid("status", "contract %s is %s", contractID, contract.Status)
			}
			versions, err := tx.ListVersions(ctx, tenantID, contractID)
			if err != nil {
				return err
			}
			next := 1
			for _, v := range versions {
				if v.VersionNumber >= next {
					next = v.VersionNumber + 1
				}
			}

			version = revrec.ContractVersion{
				ID:                 s.newID(),
				TenantID:           tenantID,
				ContractID:         contractID,
				VersionNumber:      next,
				EffectiveDate:      input.EffectiveDate,
				TotalValue:         revrec.Round(input.TotalValue),
				ModificationReason: input.Reason,
				CreatedAt:          now,
			}
			items := make([]revrec.LineItem, 0, len(input.LineItems))
			for _, in := range input.LineItems {
				qty := in.Quantity
				if qty.IsZero() {
					qty = decimal.NewFromInt(1)
				}
				items = append(items, revrec.LineItem{
					ID:                     s.newID(),
					TenantID:               tenantID,
					VersionID:              version.ID,
					Key:                    in.Key,
					Description:            in.Description,
					UnitPrice:              in.UnitPrice,
					Quantity:               qty,
					TotalPrice:             revrec.Round(in.UnitPrice.Mul(qty)),
					StandaloneSellingPrice: in.StandaloneSellingPrice,
					RecognitionMethod:      in.RecognitionMethod,
					MeasurementMethod:      in.MeasurementMethod,
					BundleKey:              in.BundleKey,
					DeliveryStart:          in.DeliveryStart,
					DeliveryEnd:            in.DeliveryEnd,
				})
			}
			// allocation rejects what a run would reject, before anything is written
			existing, err := tx.ListObligations(ctx, tenantID, contractID)
			if err != nil {
				return err
			}
			if _, err := allocateRetained(version.TotalValue, items, existing); err != nil {
				return err
			}

			if err := tx.CreateVersion(ctx, version); err != nil {
				return err
			}
			if err := tx.CreateLineItems(ctx, items); err != nil {
				return err
			}
			contract.CurrentVersionID = version.ID
			contract.TotalValue = version.TotalValue
			contract.Status = revrec.ContractStatusModified
			contract.UpdatedAt = now
			return tx.UpdateContract(ctx, contract)
		})
	})
	if err != nil {
		return revrec.ContractVersion{}, err
	}
	s.record(ctx, AuditEvent{
		TenantID: tenantID,
		Action:   "contract.modify",
		Entity:   "contract",
		EntityID: contractID,
		Meta:     map[string]any{"version_id": version.ID, "version_number": version.VersionNumber, "reason": input.Reason},
	})
	return version, nil
}
