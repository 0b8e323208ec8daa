package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/observability"
	revrechttp "github.com/odyssey-erp/revrec/internal/revrec/http"
	_ "github.com/odyssey-erp/revrec/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DEFAULT_CURRENCY", "brl")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, "BRL", cfg.DefaultCurrency)
	require.Equal(t, 2*time.Minute, cfg.LockTTL)
	require.True(t, cfg.AutoPost)
	require.Equal(t, "0 2 * * *", cfg.BatchCron)

	threshold, err := cfg.Threshold()
	require.NoError(t, err)
	require.Equal(t, "0.75", threshold.String())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_TENANTS=t1,t2\nFINANCING_METHOD=effective_interest\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("BATCH_TENANTS")
		_ = os.Unsetenv("FINANCING_METHOD")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2"}, cfg.BatchTenants)
	require.Equal(t, "effective_interest", cfg.FinancingMethod)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreDriver:     StorePostgres,
			PGDSN:           "postgres://x",
			VCThreshold:     "0.75",
			FinancingMethod: "straight_line",
			DefaultCurrency: "USD",
			LockTTL:         time.Minute,
		}
	}
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"unknown driver":    {func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		"firestore project": {func(c *Config) { c.StoreDriver = "Firestore" }, "FIRESTORE_PROJECT"},
		"threshold range":   {func(c *Config) { c.VCThreshold = "1.5" }, "out of range"},
		"threshold parse":   {func(c *Config) { c.VCThreshold = "high" }, "VC_THRESHOLD"},
		"financing method":  {func(c *Config) { c.FinancingMethod = "bullet" }, "FINANCING_METHOD"},
		"currency":          {func(c *Config) { c.DefaultCurrency = "XYZW" }, "DEFAULT_CURRENCY"},
		"lock ttl":          {func(c *Config) { c.LockTTL = 0 }, "LOCK_TTL"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, base().Validate())
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "contract_id", "c1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "c1", rec["contract_id"])
}

func TestInTestModeFromGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func newTestRouter(checks map[string]HealthCheck) http.Handler {
	return NewRouter(RouterParams{
		Config:        &Config{AppEnv: "test", AppRequestTimeout: time.Second},
		RevrecHandler: revrechttp.NewHandler(nil, nil),
		Metrics:       observability.NewMetrics(),
		Checks:        checks,
	})
}

func TestHealthzReportsDependencies(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(map[string]HealthCheck{"postgres": func(context.Context) error { return nil }}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"up"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	newTestRouter(map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("refused") }}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","redis":"down"}`, rr.Body.String())
}

func TestRouterServesMetricsAndProblems(t *testing.T) {
	h := newTestRouter(nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "revrec_http_requests_total")
}
