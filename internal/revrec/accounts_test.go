package revrec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTaxonomyAcceptsBothLiabilityCodes(t *testing.T) {
	tax := DefaultTaxonomy()
	if err := tax.Validate(); err != nil {
		t.Fatalf("default taxonomy invalid: %v", err)
	}
	if !tax.IsContractLiability("2600") || !tax.IsContractLiability("2500") {
		t.Fatalf("expected 2600 and 2500 to be contract liability codes")
	}
	if tax.IsContractLiability("1300") {
		t.Fatalf("contract asset must not be treated as liability")
	}
}

func TestLoadTaxonomyOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	if err := os.WriteFile(path, []byte("revenue: \"4010\"\ncontract_liability: \"2650\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tax, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tax.Revenue != "4010" || tax.ContractLiability != "2650" {
		t.Fatalf("override not applied: %+v", tax)
	}
	if tax.Cash != "1000" {
		t.Fatalf("defaults should survive partial override, got cash %s", tax.Cash)
	}
}

func TestLoadTaxonomyRejectsCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.yaml")
	if err := os.WriteFile(path, []byte("revenue: \"1000\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadTaxonomy(path)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" usd ")
	if err != nil || code != "USD" {
		t.Fatalf("expected USD, got %q %v", code, err)
	}
	code, err = NormalizeCurrency("")
	if err != nil || code != DefaultCurrency {
		t.Fatalf("expected default currency, got %q %v", code, err)
	}
	if _, err := NormalizeCurrency("XYZQ"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
