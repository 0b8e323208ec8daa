package financing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func component(method revrec.FinancingMethod) revrec.FinancingComponent {
	return revrec.FinancingComponent{
		NominalAmount:         dec("100000"),
		DiscountRate:          dec("10"),
		FinancingPeriodMonths: 24,
		StartDate:             start,
		Method:                method,
	}
}

func TestPresentValueMatchesMonthlyCompounding(t *testing.T) {
	res, err := Calculate(component(""))
	require.NoError(t, err)
	require.True(t, res.Applies)
	require.Equal(t, revrec.StraightLine, res.Method)
	require.Equal(t, "81940.95", res.PresentValue.StringFixed(2))
	require.Equal(t, "18059.05", res.TotalInterest.StringFixed(2))
}

func TestShortFinancingIsNotSignificant(t *testing.T) {
	fc := component(revrec.StraightLine)
	fc.FinancingPeriodMonths = 12
	res, err := Calculate(fc)
	require.NoError(t, err)
	require.False(t, res.Applies)
	require.True(t, res.TotalInterest.IsZero())
	require.True(t, res.PresentValue.Equal(fc.NominalAmount))
	require.Empty(t, res.Schedule)
}

func TestSchedulesSumToTotalInterest(t *testing.T) {
	for _, method := range []revrec.FinancingMethod{revrec.StraightLine, revrec.EffectiveInterest} {
		t.Run(string(method), func(t *testing.T) {
			res, err := Calculate(component(method))
			require.NoError(t, err)
			require.Len(t, res.Schedule, 24)
			total := decimal.Zero
			for _, p := range res.Schedule {
				require.False(t, p.Interest.IsNegative())
				total = total.Add(p.Interest)
			}
			require.True(t, total.Equal(res.TotalInterest))
			last := res.Schedule[len(res.Schedule)-1]
			require.True(t, last.Closing.Equal(dec("100000")), "closing %s", last.Closing)
		})
	}
}

func TestEffectiveInterestFrontLoadsLess(t *testing.T) {
	res, err := Calculate(component(revrec.EffectiveInterest))
	require.NoError(t, err)
	require.True(t, res.Schedule[0].Interest.LessThan(res.Schedule[22].Interest))
	require.Equal(t, "682.84", res.Schedule[0].Interest.StringFixed(2))
}

func TestAccretionDueCountsElapsedMonths(t *testing.T) {
	res, err := Calculate(component(revrec.StraightLine))
	require.NoError(t, err)
	require.True(t, AccretionDue(res.Schedule, start).IsZero())
	three := AccretionDue(res.Schedule, start.AddDate(0, 3, 0))
	require.True(t, three.Equal(res.Schedule[0].Interest.Mul(decimal.NewFromInt(3))))
	require.True(t, AccretionDue(res.Schedule, start.AddDate(5, 0, 0)).Equal(res.TotalInterest))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	fc := component(revrec.StraightLine)
	fc.DiscountRate = decimal.Zero
	_, err := Calculate(fc)
	require.ErrorIs(t, err, revrec.ErrValidation)

	fc = component("annuity")
	_, err = Calculate(fc)
	require.ErrorIs(t, err, revrec.ErrValidation)
}

func TestMonthlyRateTreatsDiscountRateAsPercent(t *testing.T) {
	require.Equal(t, "0.008333", MonthlyRate(dec("10")).StringFixed(6))
	require.Equal(t, "0.000500", MonthlyRate(dec("0.6")).StringFixed(6))

	pv := PresentValue(dec("100000"), dec("10"), 24)
	require.Equal(t, "81940.95", pv.StringFixed(2))
	require.True(t, PresentValue(dec("100000"), dec("10"), 0).Equal(dec("100000")))
}
