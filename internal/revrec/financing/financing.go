package financing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// SignificantAfterMonths is the period beyond which financing is significant.
const SignificantAfterMonths = 12

var (
	monthsPerYear = decimal.NewFromInt(12)
	percent       = decimal.NewFromInt(100)
)

// Period is one month of interest accretion.
type Period struct {
	Month      int
	Date       time.Time
	Opening    decimal.Decimal
	Interest   decimal.Decimal
	Closing    decimal.Decimal
	Cumulative decimal.Decimal
}

// Result summarises the financing component of a contract.
type Result struct {
	Applies       bool
	Method        revrec.FinancingMethod
	PresentValue  decimal.Decimal
	TotalInterest decimal.Decimal
	Schedule      []Period
}

// Calculate discounts the nominal amount at the monthly rate and builds the
// accretion schedule. Components of twelve months or less are not significant
// and return a result with Applies false and the nominal as present value.
func Calculate(fc revrec.FinancingComponent) (Result, error) {
	if fc.NominalAmount.IsNegative() {
		return Result{}, revrec.Invalid("financing.nominal_amount", "must not be negative")
	}
	if fc.FinancingPeriodMonths < 0 {
		return Result{}, revrec.Invalid("financing.financing_period_months", "must not be negative")
	}
	method := fc.Method
	if method == "" {
		method = revrec.StraightLine
	}
	if method != revrec.StraightLine && method != revrec.EffectiveInterest {
		return Result{}, revrec.Invalid("financing.method", "unknown method %q", method)
	}
	if fc.FinancingPeriodMonths <= SignificantAfterMonths {
		return Result{Method: method, PresentValue: fc.NominalAmount, TotalInterest: decimal.Zero}, nil
	}
	if !fc.DiscountRate.IsPositive() {
		return Result{}, revrec.Invalid("financing.discount_rate", "must be positive")
	}

	monthly := MonthlyRate(fc.DiscountRate)
	pv := PresentValue(fc.NominalAmount, fc.DiscountRate, fc.FinancingPeriodMonths)
	interest := fc.NominalAmount.Sub(pv)

	var schedule []Period
	if method == revrec.EffectiveInterest {
		schedule = effectiveInterest(pv, monthly, interest, fc.FinancingPeriodMonths, fc.StartDate)
	} else {
		schedule = straightLine(pv, interest, fc.FinancingPeriodMonths, fc.StartDate)
	}
	return Result{
		Applies:       true,
		Method:        method,
		PresentValue:  pv,
		TotalInterest: interest,
		Schedule:      schedule,
	}, nil
}

// MonthlyRate converts an annual percentage (10 means 10 %) to the monthly
// fraction used for compounding.
func MonthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.Div(percent).Div(monthsPerYear)
}

// PresentValue returns nominal / (1 + annualPercent/100/12)^months rounded to cents.
func PresentValue(nominal, annualPercent decimal.Decimal, months int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(MonthlyRate(annualPercent))
	compounded := decimal.NewFromInt(1)
	for i := 0; i < months; i++ {
		compounded = compounded.Mul(factor)
	}
	return revrec.Round(nominal.Div(compounded))
}

func straightLine(pv, total decimal.Decimal, months int, start time.Time) []Period {
	monthly := revrec.Round(total.Div(decimal.NewFromInt(int64(months))))
	out := make([]Period, 0, months)
	balance := pv
	cumulative := decimal.Zero
	for m := 1; m <= months; m++ {
		interest := monthly
		if m == months {
			interest = total.Sub(cumulative)
		}
		out = append(out, period(m, start, balance, interest, cumulative))
		balance = balance.Add(interest)
		cumulative = cumulative.Add(interest)
	}
	return out
}

func effectiveInterest(pv, monthlyRate, total decimal.Decimal, months int, start time.Time) []Period {
	out := make([]Period, 0, months)
	balance := pv
	cumulative := decimal.Zero
	for m := 1; m <= months; m++ {
		interest := revrec.Round(balance.Mul(monthlyRate))
		if m == months {
			interest = total.Sub(cumulative)
		}
		out = append(out, period(m, start, balance, interest, cumulative))
		balance = balance.Add(interest)
		cumulative = cumulative.Add(interest)
	}
	return out
}

func period(month int, start time.Time, opening, interest, cumulativeBefore decimal.Decimal) Period {
	return Period{
		Month:      month,
		Date:       start.AddDate(0, month, 0),
		Opening:    opening,
		Interest:   interest,
		Closing:    opening.Add(interest),
		Cumulative: cumulativeBefore.Add(interest),
	}
}

// AccretionDue returns the cumulative interest whose period ended on or before asOf.
func AccretionDue(schedule []Period, asOf time.Time) decimal.Decimal {
	due := decimal.Zero
	for _, p := range schedule {
		if p.Date.After(asOf) {
			break
		}
		due = p.Cumulative
	}
	return due
}
