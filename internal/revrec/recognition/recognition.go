package recognition

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Result carries the recomputed obligation and the amount still to post.
type Result struct {
	Obligation revrec.PerformanceObligation
	Delta      decimal.Decimal
}

// Calculate recomputes recognized revenue to date for the obligation. The
// obligation's RecognizedAmount is treated as what was previously recorded.
func Calculate(ob revrec.PerformanceObligation, asOf time.Time) (Result, error) {
	if ob.AllocatedPrice.IsNegative() {
		return Result{}, revrec.Invalid("obligations."+ob.ID+".allocated_price", "must not be negative")
	}
	if ob.PercentComplete.IsNegative() || ob.PercentComplete.GreaterThan(revrec.Hundred) {
		return Result{}, revrec.Invalid("obligations."+ob.ID+".percent_complete", "must be between 0 and 100")
	}

	var recognized decimal.Decimal
	satisfied := false
	switch ob.RecognitionMethod {
	case revrec.OverTime:
		if ob.PercentComplete.Equal(revrec.Hundred) {
			recognized = ob.AllocatedPrice
			satisfied = true
		} else {
			recognized = revrec.Round(ob.AllocatedPrice.Mul(ob.PercentComplete).Div(revrec.Hundred))
		}
	case revrec.PointInTime:
		if !ob.PercentComplete.IsZero() {
			return Result{}, revrec.Invalid("obligations."+ob.ID+".percent_complete", "point-in-time obligations do not track progress")
		}
		recognized = decimal.Zero
		if ob.IsSatisfied {
			recognized = ob.AllocatedPrice
			satisfied = true
		}
	default:
		return Result{}, revrec.Invalid("obligations."+ob.ID+".recognition_method", "unknown method %q", ob.RecognitionMethod)
	}

	delta := recognized.Sub(ob.RecognizedAmount)
	if delta.IsNegative() {
		return Result{}, &revrec.InconsistentStateError{
			ObligationID: ob.ID,
			Recorded:     ob.RecognizedAmount.StringFixed(2),
			Computed:     recognized.StringFixed(2),
		}
	}

	out := ob
	out.RecognizedAmount = recognized
	out.DeferredAmount = ob.AllocatedPrice.Sub(recognized)
	out.IsSatisfied = satisfied
	out.Status = statusFor(recognized, satisfied)
	if satisfied && out.SatisfiedAt == nil {
		at := asOf
		out.SatisfiedAt = &at
	}
	if !delta.IsZero() || out.Status != ob.Status {
		out.UpdatedAt = asOf
	}
	return Result{Obligation: out, Delta: delta}, nil
}

func statusFor(recognized decimal.Decimal, satisfied bool) revrec.ObligationStatus {
	switch {
	case satisfied:
		return revrec.ObligationSatisfied
	case recognized.IsPositive():
		return revrec.ObligationPartiallyRecognized
	default:
		return revrec.ObligationUnsatisfied
	}
}

// ApplyProgress validates and records a new percent complete on an over-time
// obligation. Progress never moves backwards.
func ApplyProgress(ob revrec.PerformanceObligation, percent decimal.Decimal) (revrec.PerformanceObligation, error) {
	if ob.RecognitionMethod != revrec.OverTime {
		return ob, revrec.Invalid("percent_complete", "obligation %s is not recognized over time", ob.ID)
	}
	if percent.IsNegative() || percent.GreaterThan(revrec.Hundred) {
		return ob, revrec.Invalid("percent_complete", "must be between 0 and 100")
	}
	if percent.LessThan(ob.PercentComplete) {
		return ob, revrec.Invalid("percent_complete", "cannot decrease from %s to %s", ob.PercentComplete.String(), percent.String())
	}
	ob.PercentComplete = percent
	return ob, nil
}

// Satisfy marks a point-in-time obligation as transferred.
func Satisfy(ob revrec.PerformanceObligation, at time.Time) (revrec.PerformanceObligation, error) {
	if ob.RecognitionMethod != revrec.PointInTime {
		return ob, revrec.Invalid("recognition_method", "obligation %s is recognized over time", ob.ID)
	}
	if ob.IsSatisfied {
		return ob, nil
	}
	ob.IsSatisfied = true
	ob.SatisfiedAt = &at
	return ob, nil
}
