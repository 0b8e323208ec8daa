package ledger

import (
	"strings"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// ValidateEntry checks a single journal line.
func ValidateEntry(e revrec.LedgerEntry) error {
	if !e.Amount.IsPositive() {
		return revrec.Invalid("amount", "entry %s amount must be positive", e.ID)
	}
	if strings.TrimSpace(e.DebitAccount) == "" || strings.TrimSpace(e.CreditAccount) == "" {
		return revrec.Invalid("account", "entry %s requires debit and credit accounts", e.ID)
	}
	if e.DebitAccount == e.CreditAccount {
		return revrec.Invalid("account", "entry %s debits and credits %s", e.ID, e.DebitAccount)
	}
	if _, err := revrec.NormalizeCurrency(e.Currency); err != nil {
		return err
	}
	if !e.ExchangeRate.IsPositive() {
		return revrec.Invalid("exchange_rate", "entry %s exchange rate must be positive", e.ID)
	}
	return nil
}

// ValidateBatch checks every line and that the lines belong to one tenant and
// contract and share a currency and exchange rate. Post checks that each
// event's legs add up to the event amount.
func ValidateBatch(entries []revrec.LedgerEntry) error {
	for i, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		first := entries[0]
		switch {
		case e.TenantID != first.TenantID:
			return revrec.Invalid("tenant_id", "entry %s belongs to tenant %s, batch to %s", e.ID, e.TenantID, first.TenantID)
		case e.ContractID != first.ContractID:
			return revrec.Invalid("contract_id", "entry %s belongs to contract %s, batch to %s", e.ID, e.ContractID, first.ContractID)
		case e.Currency != first.Currency:
			return revrec.Invalid("currency", "entry %s is in %s, batch in %s", e.ID, e.Currency, first.Currency)
		case !e.ExchangeRate.Equal(first.ExchangeRate):
			return revrec.Invalid("exchange_rate", "entry %s rate %s differs from batch rate %s", e.ID, e.ExchangeRate.String(), first.ExchangeRate.String())
		}
	}
	return nil
}

// CheckPosition verifies the contract asset and liability balances agree with
// the position the entries imply.
func CheckPosition(entries []revrec.LedgerEntry, accounts revrec.AccountTaxonomy) error {
	expected := PositionOf(entries, accounts).ExpectedNet()
	actual := ContractNet(entries, accounts)
	if !revrec.Round(expected).Equal(revrec.Round(actual)) {
		return revrec.Imbalance("contract asset less liability is %s, position implies %s", actual.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

func (p *Poster) validate(batch Batch, prior, out []revrec.LedgerEntry) error {
	if err := ValidateBatch(out); err != nil {
		return err
	}
	all := make([]revrec.LedgerEntry, 0, len(prior)+len(out))
	for _, e := range prior {
		if e.ContractID == batch.ContractID {
			all = append(all, e)
		}
	}
	all = append(all, out...)
	return CheckPosition(all, p.accounts)
}
