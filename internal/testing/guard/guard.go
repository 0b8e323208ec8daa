// Package guard switches the revrec binaries into test mode. Import it for
// side effects from tests that link a main package or internal/app.
package guard

import "os"

func init() {
	if _, set := os.LookupEnv("REVREC_TEST_MODE"); !set {
		_ = os.Setenv("REVREC_TEST_MODE", "1")
	}
}
