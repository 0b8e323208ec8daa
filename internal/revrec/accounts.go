package revrec

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccountTaxonomy maps ledger roles to chart-of-accounts codes.
type AccountTaxonomy struct {
	Cash                    string   `yaml:"cash"`
	AccountsReceivable      string   `yaml:"accounts_receivable"`
	ContractAsset           string   `yaml:"contract_asset"`
	ContractLiability       string   `yaml:"contract_liability"`
	LegacyContractLiability []string `yaml:"legacy_contract_liability"`
	Revenue                 string   `yaml:"revenue"`
	FinancingIncome         string   `yaml:"financing_income"`
	CommissionExpense       string   `yaml:"commission_expense"`
	CommissionPayable       string   `yaml:"commission_payable"`
}

// DefaultTaxonomy returns the standard chart used by the engine.
func DefaultTaxonomy() AccountTaxonomy {
	return AccountTaxonomy{
		Cash:                    "1000",
		AccountsReceivable:      "1200",
		ContractAsset:           "1300",
		ContractLiability:       "2600",
		LegacyContractLiability: []string{"2500"},
		Revenue:                 "4000",
		FinancingIncome:         "4100",
		CommissionExpense:       "6100",
		CommissionPayable:       "2100",
	}
}

// LoadTaxonomy reads a YAML override on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadTaxonomy(path string) (AccountTaxonomy, error) {
	tax := DefaultTaxonomy()
	if strings.TrimSpace(path) == "" {
		return tax, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return AccountTaxonomy{}, fmt.Errorf("revrec: read taxonomy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &tax); err != nil {
		return AccountTaxonomy{}, fmt.Errorf("revrec: parse taxonomy: %w", err)
	}
	if err := tax.Validate(); err != nil {
		return AccountTaxonomy{}, err
	}
	return tax, nil
}

// Validate ensures every role has a code and primary codes do not collide.
func (t AccountTaxonomy) Validate() error {
	roles := map[string]string{
		"cash":                t.Cash,
		"accounts_receivable": t.AccountsReceivable,
		"contract_asset":      t.ContractAsset,
		"contract_liability":  t.ContractLiability,
		"revenue":             t.Revenue,
		"financing_income":    t.FinancingIncome,
		"commission_expense":  t.CommissionExpense,
		"commission_payable":  t.CommissionPayable,
	}
	seen := make(map[string]string, len(roles))
	for role, code := range roles {
		if strings.TrimSpace(code) == "" {
			return Invalid("taxonomy."+role, "account code required")
		}
		if other, ok := seen[code]; ok {
			return Invalid("taxonomy."+role, "code %s already used by %s", code, other)
		}
		seen[code] = role
	}
	return nil
}

// IsContractLiability accepts the primary code and any legacy alias.
func (t AccountTaxonomy) IsContractLiability(code string) bool {
	if code == t.ContractLiability {
		return true
	}
	for _, legacy := range t.LegacyContractLiability {
		if code == legacy {
			return true
		}
	}
	return false
}

// IsContractAsset reports whether the code is the contract asset account.
func (t AccountTaxonomy) IsContractAsset(code string) bool {
	return code == t.ContractAsset
}

// Name returns a human label for a known code.
func (t AccountTaxonomy) Name(code string) string {
	switch {
	case code == t.Cash:
		return "Cash"
	case code == t.AccountsReceivable:
		return "Accounts Receivable"
	case code == t.ContractAsset:
		return "Contract Asset"
	case t.IsContractLiability(code):
		return "Contract Liability"
	case code == t.Revenue:
		return "Revenue"
	case code == t.FinancingIncome:
		return "Financing Income"
	case code == t.CommissionExpense:
		return "Commission Expense"
	case code == t.CommissionPayable:
		return "Commission Payable"
	default:
		return code
	}
}
