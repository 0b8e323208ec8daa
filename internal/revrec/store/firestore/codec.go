package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// doc reads typed fields out of a raw document, keeping the first decode error.
type doc struct {
	id   string
	data map[string]any
	err  error
}

func newDoc(id string, data map[string]any) *doc {
	return &doc{id: id, data: data}
}

func (d *doc) fail(field string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("firestore: %s.%s: %w", d.id, field, err)
	}
}

func (d *doc) str(field string) string {
	switch v := d.data[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (d *doc) bool(field string) bool {
	v, _ := d.data[field].(bool)
	return v
}

func (d *doc) int(field string) int {
	v, ok := d.data[field]
	if !ok || v == nil {
		return 0
	}
	n, err := toInt64(v)
	if err != nil {
		d.fail(field, err)
	}
	return int(n)
}

// decimal accepts strings, which is how amounts are written, and numbers
// from documents created by other clients.
func (d *doc) decimal(field string) decimal.Decimal {
	switch v := d.data[field].(type) {
	case nil:
		return decimal.Zero
	case string:
		if v == "" {
			return decimal.Zero
		}
		out, err := decimal.NewFromString(v)
		if err != nil {
			d.fail(field, err)
		}
		return out
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	case int:
		return decimal.NewFromInt(int64(v))
	default:
		d.fail(field, fmt.Errorf("unsupported decimal type %T", v))
		return decimal.Zero
	}
}

func (d *doc) decimalPtr(field string) *decimal.Decimal {
	if v, ok := d.data[field]; !ok || v == nil {
		return nil
	}
	out := d.decimal(field)
	return &out
}

func (d *doc) time(field string) time.Time {
	t, err := Timestamp(d.data[field])
	if err != nil {
		d.fail(field, err)
	}
	return t
}

func (d *doc) timePtr(field string) *time.Time {
	t, err := TimestampPtr(d.data[field])
	if err != nil {
		d.fail(field, err)
	}
	return t
}

func (d *doc) strings(field string) []string {
	switch v := d.data[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				d.fail(field, fmt.Errorf("unsupported element %T", item))
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

func money(d decimal.Decimal) string { return d.String() }

func optionalMoney(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func contractFromDoc(d *doc) (revrec.Contract, error) {
	c := revrec.Contract{
		ID:               d.id,
		TenantID:         d.str("tenantId"),
		Number:           d.str("number"),
		CustomerID:       d.str("customerId"),
		TotalValue:       d.decimal("totalValue"),
		Currency:         d.str("currency"),
		ExchangeRate:     d.decimal("exchangeRate"),
		Status:           revrec.ContractStatus(d.str("status")),
		CurrentVersionID: d.str("currentVersionId"),
		StartDate:        d.time("startDate"),
		EndDate:          d.timePtr("endDate"),
		CreatedAt:        d.time("createdAt"),
		UpdatedAt:        d.time("updatedAt"),
	}
	return c, d.err
}

func contractToDoc(c revrec.Contract) map[string]any {
	return map[string]any{
		"tenantId":         c.TenantID,
		"number":           c.Number,
		"customerId":       c.CustomerID,
		"totalValue":       money(c.TotalValue),
		"currency":         c.Currency,
		"exchangeRate":     money(c.ExchangeRate),
		"status":           string(c.Status),
		"currentVersionId": c.CurrentVersionID,
		"startDate":        c.StartDate.UTC(),
		"endDate":          optionalTime(c.EndDate),
		"createdAt":        c.CreatedAt.UTC(),
		"updatedAt":        c.UpdatedAt.UTC(),
	}
}

func versionFromDoc(d *doc) (revrec.ContractVersion, error) {
	v := revrec.ContractVersion{
		ID:                 d.id,
		TenantID:           d.str("tenantId"),
		ContractID:         d.str("contractId"),
		VersionNumber:      d.int("versionNumber"),
		EffectiveDate:      d.time("effectiveDate"),
		TotalValue:         d.decimal("totalValue"),
		ModificationReason: d.str("modificationReason"),
		CreatedAt:          d.time("createdAt"),
	}
	return v, d.err
}

func versionToDoc(v revrec.ContractVersion) map[string]any {
	return map[string]any{
		"tenantId":           v.TenantID,
		"contractId":         v.ContractID,
		"versionNumber":      int64(v.VersionNumber),
		"effectiveDate":      v.EffectiveDate.UTC(),
		"totalValue":         money(v.TotalValue),
		"modificationReason": v.ModificationReason,
		"createdAt":          v.CreatedAt.UTC(),
	}
}

func lineItemFromDoc(d *doc) (revrec.LineItem, error) {
	li := revrec.LineItem{
		ID:                     d.id,
		TenantID:               d.str("tenantId"),
		VersionID:              d.str("versionId"),
		Key:                    d.str("key"),
		Description:            d.str("description"),
		UnitPrice:              d.decimal("unitPrice"),
		Quantity:               d.decimal("quantity"),
		TotalPrice:             d.decimal("totalPrice"),
		StandaloneSellingPrice: d.decimalPtr("standaloneSellingPrice"),
		RecognitionMethod:      revrec.RecognitionMethod(d.str("recognitionMethod")),
		MeasurementMethod:      revrec.MeasurementMethod(d.str("measurementMethod")),
		BundleKey:              d.str("bundleKey"),
		DeliveryStart:          d.timePtr("deliveryStart"),
		DeliveryEnd:            d.timePtr("deliveryEnd"),
	}
	return li, d.err
}

func lineItemToDoc(li revrec.LineItem) map[string]any {
	return map[string]any{
		"tenantId":               li.TenantID,
		"versionId":              li.VersionID,
		"key":                    li.Key,
		"description":            li.Description,
		"unitPrice":              money(li.UnitPrice),
		"quantity":               money(li.Quantity),
		"totalPrice":             money(li.TotalPrice),
		"standaloneSellingPrice": optionalMoney(li.StandaloneSellingPrice),
		"recognitionMethod":      string(li.RecognitionMethod),
		"measurementMethod":      string(li.MeasurementMethod),
		"bundleKey":              li.BundleKey,
		"deliveryStart":          optionalTime(li.DeliveryStart),
		"deliveryEnd":            optionalTime(li.DeliveryEnd),
	}
}

func obligationFromDoc(d *doc) (revrec.PerformanceObligation, error) {
	ob := revrec.PerformanceObligation{
		ID:                d.id,
		TenantID:          d.str("tenantId"),
		ContractID:        d.str("contractId"),
		VersionID:         d.str("versionId"),
		Key:               d.str("key"),
		Description:       d.str("description"),
		LineItemIDs:       d.strings("lineItemIds"),
		AllocatedPrice:    d.decimal("allocatedPrice"),
		RecognitionMethod: revrec.RecognitionMethod(d.str("recognitionMethod")),
		MeasurementMethod: revrec.MeasurementMethod(d.str("measurementMethod")),
		PercentComplete:   d.decimal("percentComplete"),
		RecognizedAmount:  d.decimal("recognizedAmount"),
		DeferredAmount:    d.decimal("deferredAmount"),
		IsSatisfied:       d.bool("isSatisfied"),
		SatisfiedAt:       d.timePtr("satisfiedAt"),
		Status:            revrec.ObligationStatus(d.str("status")),
		UpdatedAt:         d.time("updatedAt"),
	}
	return ob, d.err
}

func obligationToDoc(ob revrec.PerformanceObligation) map[string]any {
	ids := ob.LineItemIDs
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{
		"tenantId":          ob.TenantID,
		"contractId":        ob.ContractID,
		"versionId":         ob.VersionID,
		"key":               ob.Key,
		"description":       ob.Description,
		"lineItemIds":       ids,
		"allocatedPrice":    money(ob.AllocatedPrice),
		"recognitionMethod": string(ob.RecognitionMethod),
		"measurementMethod": string(ob.MeasurementMethod),
		"percentComplete":   money(ob.PercentComplete),
		"recognizedAmount":  money(ob.RecognizedAmount),
		"deferredAmount":    money(ob.DeferredAmount),
		"isSatisfied":       ob.IsSatisfied,
		"satisfiedAt":       optionalTime(ob.SatisfiedAt),
		"status":            string(ob.Status),
		"updatedAt":         ob.UpdatedAt.UTC(),
	}
}

func billingFromDoc(d *doc) (revrec.BillingScheduleEntry, error) {
	b := revrec.BillingScheduleEntry{
		ID:          d.id,
		TenantID:    d.str("tenantId"),
		ContractID:  d.str("contractId"),
		Amount:      d.decimal("amount"),
		BillingDate: d.time("billingDate"),
		DueDate:     d.time("dueDate"),
		Status:      revrec.BillingStatus(d.str("status")),
		InvoicedAt:  d.timePtr("invoicedAt"),
		PaidAt:      d.timePtr("paidAt"),
		PaidAmount:  d.decimal("paidAmount"),
	}
	return b, d.err
}

func billingToDoc(b revrec.BillingScheduleEntry) map[string]any {
	return map[string]any{
		"tenantId":    b.TenantID,
		"contractId":  b.ContractID,
		"amount":      money(b.Amount),
		"billingDate": b.BillingDate.UTC(),
		"dueDate":     b.DueDate.UTC(),
		"status":      string(b.Status),
		"invoicedAt":  optionalTime(b.InvoicedAt),
		"paidAt":      optionalTime(b.PaidAt),
		"paidAmount":  money(b.PaidAmount),
	}
}

func financingFromDoc(d *doc) (revrec.FinancingComponent, error) {
	fc := revrec.FinancingComponent{
		ID:                    d.id,
		TenantID:              d.str("tenantId"),
		ContractID:            d.str("contractId"),
		NominalAmount:         d.decimal("nominalAmount"),
		DiscountRate:          d.decimal("discountRate"),
		FinancingPeriodMonths: d.int("financingPeriodMonths"),
		StartDate:             d.time("startDate"),
		Method:                revrec.FinancingMethod(d.str("method")),
		PresentValue:          d.decimal("presentValue"),
		TotalInterest:         d.decimal("totalInterest"),
		RecognizedInterest:    d.decimal("recognizedInterest"),
		UpdatedAt:             d.time("updatedAt"),
	}
	return fc, d.err
}

func financingToDoc(fc revrec.FinancingComponent) map[string]any {
	return map[string]any{
		"tenantId":              fc.TenantID,
		"contractId":            fc.ContractID,
		"nominalAmount":         money(fc.NominalAmount),
		"discountRate":          money(fc.DiscountRate),
		"financingPeriodMonths": int64(fc.FinancingPeriodMonths),
		"startDate":             fc.StartDate.UTC(),
		"method":                string(fc.Method),
		"presentValue":          money(fc.PresentValue),
		"totalInterest":         money(fc.TotalInterest),
		"recognizedInterest":    money(fc.RecognizedInterest),
		"updatedAt":             fc.UpdatedAt.UTC(),
	}
}

func variableFromDoc(d *doc) (revrec.VariableConsideration, error) {
	vc := revrec.VariableConsideration{
		ID:              d.id,
		TenantID:        d.str("tenantId"),
		ContractID:      d.str("contractId"),
		Kind:            revrec.VariableKind(d.str("kind")),
		Description:     d.str("description"),
		EstimatedAmount: d.decimal("estimatedAmount"),
		Likelihood:      d.decimal("likelihood"),
	}
	return vc, d.err
}

func commissionFromDoc(d *doc) (revrec.CommissionCost, error) {
	c := revrec.CommissionCost{
		ID:         d.id,
		TenantID:   d.str("tenantId"),
		ContractID: d.str("contractId"),
		Amount:     d.decimal("amount"),
		IncurredAt: d.time("incurredAt"),
	}
	return c, d.err
}

func entryFromDoc(d *doc) (revrec.LedgerEntry, error) {
	e := revrec.LedgerEntry{
		ID:                d.id,
		TenantID:          d.str("tenantId"),
		ContractID:        d.str("contractId"),
		ObligationID:      d.str("obligationId"),
		BillingScheduleID: d.str("billingScheduleId"),
		EntryDate:         d.time("entryDate"),
		PeriodStart:       d.time("periodStart"),
		PeriodEnd:         d.time("periodEnd"),
		EntryType:         revrec.EntryType(d.str("entryType")),
		EventKind:         revrec.EventKind(d.str("eventKind")),
		DebitAccount:      d.str("debitAccount"),
		CreditAccount:     d.str("creditAccount"),
		Amount:            d.decimal("amount"),
		Currency:          d.str("currency"),
		ExchangeRate:      d.decimal("exchangeRate"),
		Memo:              d.str("memo"),
		IsPosted:          d.bool("isPosted"),
		PostedAt:          d.timePtr("postedAt"),
		IsReversed:        d.bool("isReversed"),
		ReversedEntryID:   d.str("reversedEntryId"),
		CreatedAt:         d.time("createdAt"),
	}
	return e, d.err
}

func entryToDoc(e revrec.LedgerEntry) map[string]any {
	return map[string]any{
		"tenantId":          e.TenantID,
		"contractId":        e.ContractID,
		"obligationId":      e.ObligationID,
		"billingScheduleId": e.BillingScheduleID,
		"entryDate":         e.EntryDate.UTC(),
		"periodStart":       e.PeriodStart.UTC(),
		"periodEnd":         e.PeriodEnd.UTC(),
		"entryType":         string(e.EntryType),
		"eventKind":         string(e.EventKind),
		"debitAccount":      e.DebitAccount,
		"creditAccount":     e.CreditAccount,
		"amount":            money(e.Amount),
		"currency":          e.Currency,
		"exchangeRate":      money(e.ExchangeRate),
		"memo":              e.Memo,
		"isPosted":          e.IsPosted,
		"postedAt":          optionalTime(e.PostedAt),
		"isReversed":        e.IsReversed,
		"reversedEntryId":   e.ReversedEntryID,
		"createdAt":         e.CreatedAt.UTC(),
	}
}
