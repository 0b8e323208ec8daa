package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// DefaultVariableThreshold is the likelihood at which upside variable
// consideration is no longer considered highly probable to reverse.
var DefaultVariableThreshold = decimal.NewFromFloat(0.75)

// Obligation is a distinct promise carved out of one or more line items.
type Obligation struct {
	Key               string
	Description       string
	LineItemIDs       []string
	SSP               decimal.Decimal
	ObservablePrice   decimal.Decimal
	RecognitionMethod revrec.RecognitionMethod
	MeasurementMethod revrec.MeasurementMethod
	AllocatedPrice    decimal.Decimal
}

// Combine merges line items that share a bundle key into single obligations,
// preserving first-appearance order.
func Combine(items []revrec.LineItem) ([]Obligation, error) {
	if len(items) == 0 {
		return nil, revrec.Invalid("line_items", "at least one line item required")
	}
	index := make(map[string]int, len(items))
	out := make([]Obligation, 0, len(items))
	for _, item := range items {
		if item.TotalPrice.IsNegative() {
			return nil, revrec.Invalid("line_items."+item.ID+".total_price", "must not be negative")
		}
		ssp := item.SSP()
		if ssp.IsNegative() {
			return nil, revrec.Invalid("line_items."+item.ID+".standalone_selling_price", "must not be negative")
		}
		if !item.RecognitionMethod.Valid() {
			return nil, revrec.Invalid("line_items."+item.ID+".recognition_method", "unknown method %q", item.RecognitionMethod)
		}
		key := item.AllocationKey()
		pos, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Obligation{
				Key:               key,
				Description:       item.Description,
				LineItemIDs:       []string{item.ID},
				SSP:               ssp,
				ObservablePrice:   item.TotalPrice,
				RecognitionMethod: item.RecognitionMethod,
				MeasurementMethod: item.MeasurementMethod,
			})
			continue
		}
		ob := &out[pos]
		if ob.RecognitionMethod != item.RecognitionMethod {
			return nil, revrec.Invalid("line_items."+item.ID+".recognition_method", "bundle %s mixes recognition methods", item.BundleKey)
		}
		ob.LineItemIDs = append(ob.LineItemIDs, item.ID)
		ob.SSP = ob.SSP.Add(ssp)
		ob.ObservablePrice = ob.ObservablePrice.Add(item.TotalPrice)
		if item.Description != "" && ob.Description != item.Description {
			ob.Description = ob.Description + " + " + item.Description
		}
	}
	return out, nil
}

// Allocate distributes the transaction price over the obligations derived from
// items in proportion to standalone selling prices. Every share is rounded to
// cents and the last obligation absorbs the residual so the shares sum to the
// transaction price exactly.
func Allocate(transactionPrice decimal.Decimal, items []revrec.LineItem) ([]Obligation, error) {
	if transactionPrice.IsNegative() {
		return nil, revrec.Invalid("transaction_price", "must not be negative")
	}
	obligations, err := Combine(items)
	if err != nil {
		return nil, err
	}
	totalSSP := decimal.Zero
	for _, ob := range obligations {
		totalSSP = totalSSP.Add(ob.SSP)
	}
	if !totalSSP.IsPositive() {
		return nil, revrec.Invalid("standalone_selling_price", "total must be positive")
	}

	price := revrec.Round(transactionPrice)
	assigned := decimal.Zero
	last := len(obligations) - 1
	for i := range obligations {
		if i == last {
			obligations[i].AllocatedPrice = price.Sub(assigned)
			break
		}
		share := revrec.Round(price.Mul(obligations[i].SSP).Div(totalSSP))
		obligations[i].AllocatedPrice = share
		assigned = assigned.Add(share)
	}
	return obligations, nil
}

// TransactionPrice derives the amount to allocate from the fixed contract
// value. Upside variable consideration is included only when its likelihood
// reaches threshold; penalties and rebates always reduce the price. The
// interest of a significant financing component is excluded.
func TransactionPrice(fixed decimal.Decimal, variable []revrec.VariableConsideration, financingInterest, threshold decimal.Decimal) (decimal.Decimal, error) {
	if fixed.IsNegative() {
		return decimal.Zero, revrec.Invalid("total_value", "must not be negative")
	}
	if financingInterest.IsNegative() {
		return decimal.Zero, revrec.Invalid("financing_interest", "must not be negative")
	}
	price := fixed
	for _, vc := range variable {
		amount := vc.EstimatedAmount.Abs()
		switch vc.Kind {
		case revrec.VariableBonus:
			if vc.Likelihood.LessThan(decimal.Zero) || vc.Likelihood.GreaterThan(decimal.NewFromInt(1)) {
				return decimal.Zero, revrec.Invalid("variable_consideration."+vc.ID+".likelihood", "must be between 0 and 1")
			}
			if vc.Likelihood.GreaterThanOrEqual(threshold) {
				price = price.Add(amount)
			}
		case revrec.VariablePenalty, revrec.VariableRebate:
			price = price.Sub(amount)
		default:
			return decimal.Zero, revrec.Invalid("variable_consideration."+vc.ID+".kind", "unknown kind %q", vc.Kind)
		}
	}
	price = price.Sub(financingInterest)
	if price.IsNegative() {
		return decimal.Zero, revrec.Invalid("transaction_price", "variable consideration and financing exceed contract value")
	}
	return revrec.Round(price), nil
}
