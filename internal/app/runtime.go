package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before opening stores or listeners.
const TestModeEnv = "REVREC_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether TestModeEnv is set to a true value. The result is
// cached until RefreshTestMode.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	on = err == nil && on
	testMode.Store(&on)
	return on
}
