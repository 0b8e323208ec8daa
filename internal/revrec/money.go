package revrec

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// Hundred is used for percent arithmetic.
	Hundred = decimal.NewFromInt(100)
	// Cent is the smallest representable amount.
	Cent = decimal.New(1, -2)
)

// Round rounds to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Sum adds the supplied amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// NormalizeCurrency upper-cases the code and validates it against ISO 4217.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", Invalid("currency", "unknown ISO 4217 code %q", code)
	}
	return unit.String(), nil
}
