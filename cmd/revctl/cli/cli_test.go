package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

type stubEngine struct {
	runErr    error
	batch     engine.BatchResult
	lastOpts  reconcile.Options
	lastRunID string
	schedule  financing.Result
}

func (s *stubEngine) RunEngine(_ context.Context, tenantID, contractID, versionID string) (engine.RunResult, error) {
	s.lastRunID = tenantID + "/" + contractID + "/" + versionID
	if s.runErr != nil {
		return engine.RunResult{}, s.runErr
	}
	return engine.RunResult{
		ContractID:             contractID,
		VersionID:              "v1",
		TotalRecognizedRevenue: decimal.RequireFromString("250.5"),
		EntriesPosted:          2,
	}, nil
}

func (s *stubEngine) RunAll(context.Context, string) (engine.BatchResult, error) {
	return s.batch, nil
}

func (s *stubEngine) Reconcile(_ context.Context, _ string, opts reconcile.Options) (reconcile.Report, error) {
	s.lastOpts = opts
	return reconcile.Report{
		Rows: []reconcile.AccountRow{{
			Code: "4000", Name: "Revenue", Credit: decimal.NewFromInt(300),
			Closing: decimal.NewFromInt(300), Nature: reconcile.NatureCredit,
		}},
		TotalDebit:          decimal.NewFromInt(300),
		TotalCredit:         decimal.NewFromInt(300),
		ContractAssets:      decimal.NewFromInt(120),
		NetContractPosition: decimal.NewFromInt(120),
		ByType: []reconcile.TypeRow{{
			Type:        revrec.EntryRevenue,
			TypeBalance: reconcile.TypeBalance{Credit: decimal.NewFromInt(300), Closing: decimal.NewFromInt(300)},
		}},
		TrialBalance: reconcile.TrialBalance{
			Lines: []reconcile.TrialBalanceLine{
				{Code: "1300", Name: "Contract Asset", Debit: decimal.NewFromInt(300), Net: decimal.NewFromInt(300)},
				{Code: "4000", Name: "Revenue", Credit: decimal.NewFromInt(300), Net: decimal.NewFromInt(-300)},
			},
			TotalDebit:  decimal.NewFromInt(300),
			TotalCredit: decimal.NewFromInt(300),
		},
	}, nil
}

func (s *stubEngine) FinancingSchedule(context.Context, string, string) (financing.Result, error) {
	return s.schedule, nil
}

type stubJobs struct {
	kind, tenant string
	closed       bool
}

func (s *stubJobs) Enqueue(_ context.Context, kind, tenantID string) (string, error) {
	s.kind, s.tenant = kind, tenantID
	return "task-1", nil
}

func (s *stubJobs) Stats(context.Context) (QueueStats, error) {
	return QueueStats{Queue: "default", Pending: 3, Retry: 1}, nil
}

func (s *stubJobs) Scheduled(context.Context, int) ([]ScheduledTask, error) {
	return []ScheduledTask{{ID: "s1", Type: "revrec:run_all", NextRunAt: time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC)}}, nil
}

func (s *stubJobs) Close() error {
	s.closed = true
	return nil
}

func opener(eng Engine, redisAddr string) Opener {
	return func(context.Context, *RootOptions) (*Runtime, error) {
		return &Runtime{Engine: eng, RedisAddr: redisAddr}, nil
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(opener(&stubEngine{}, ""))
	assert.Equal(t, "revctl", cmd.Use)
	for _, name := range []string{"run", "run-all", "reconcile", "schedule", "migrate", "jobs"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(opener(&stubEngine{}, ""))

	tenant := cmd.PersistentFlags().Lookup("tenant")
	require.NotNil(t, tenant)
	assert.Equal(t, "t", tenant.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	reconcileCmd, _, err := cmd.Find([]string{"reconcile"})
	require.NoError(t, err)
	for _, name := range []string{"start", "end", "contract", "drafts"} {
		assert.NotNil(t, reconcileCmd.Flags().Lookup(name), name)
	}
}

func TestInvalidFormatIsUsageError(t *testing.T) {
	_, err := execute(t, opener(&stubEngine{}, ""), "run", "c1", "-t", "acme", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRunRequiresTenant(t *testing.T) {
	t.Setenv("REVREC_TENANT", "")
	_, err := execute(t, opener(&stubEngine{}, ""), "run", "c1")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRunPrintsResult(t *testing.T) {
	eng := &stubEngine{}
	out, err := execute(t, opener(eng, ""), "run", "CT-1", "-t", "acme", "--version", "v1")
	require.NoError(t, err)
	assert.Equal(t, "acme/CT-1/v1", eng.lastRunID)
	assert.Contains(t, out, "contract CT-1 (v1): recognized 250.50, 2 entries posted")

	out, err = execute(t, opener(eng, ""), "run", "CT-1", "-t", "acme", "--format", "json")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "250.50", body["total_recognized_revenue"])
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitBusy, ExitCode(&revrec.ConcurrencyError{ContractID: "c1"}))
	assert.Equal(t, ExitUsage, ExitCode(revrec.Invalid("amount", "must be positive")))
	assert.Equal(t, ExitUnavailable, ExitCode(revrec.ErrExternalIO))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))

	_, err := execute(t, opener(&stubEngine{runErr: &revrec.ConcurrencyError{ContractID: "c1"}}, ""), "run", "c1", "-t", "acme")
	assert.Equal(t, ExitBusy, ExitCode(err))
}

func TestRunAllFailsWhenContractsFail(t *testing.T) {
	eng := &stubEngine{batch: engine.BatchResult{
		Processed: 2,
		Failed:    1,
		Errors:    []engine.ContractError{{ContractID: "c2", Kind: "validation", Message: "no obligations"}},
	}}
	out, err := execute(t, opener(eng, ""), "run-all", "-t", "acme")
	require.Error(t, err)
	assert.Contains(t, out, "c2")
	assert.Contains(t, out, "processed 2, failed 1")
}

func TestReconcileParsesDates(t *testing.T) {
	eng := &stubEngine{}
	out, err := execute(t, opener(eng, ""), "reconcile", "-t", "acme",
		"--start", "2025-01-01", "--end", "2025-03-31", "--contract", "c1", "--drafts")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), eng.lastOpts.Start)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), eng.lastOpts.End)
	assert.Equal(t, "c1", eng.lastOpts.ContractID)
	assert.True(t, eng.lastOpts.IncludeDrafts)
	assert.Contains(t, out, "4000")
	assert.Contains(t, out, "net contract position: 120.00")
	assert.Contains(t, out, "ENTRY TYPE")
	assert.Contains(t, out, "revenue")
	assert.Contains(t, out, "trial balance: debit 300.00, credit 300.00 (balanced)")

	out, err = execute(t, opener(eng, ""), "reconcile", "-t", "acme", "--format", "json")
	require.NoError(t, err)
	var body struct {
		ByEntryType  []map[string]string `json:"by_entry_type"`
		TrialBalance struct {
			Balanced bool                `json:"balanced"`
			Lines    []map[string]string `json:"lines"`
		} `json:"trial_balance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Len(t, body.ByEntryType, 1)
	assert.Equal(t, "300.00", body.ByEntryType[0]["closing"])
	assert.True(t, body.TrialBalance.Balanced)
	assert.Len(t, body.TrialBalance.Lines, 2)

	_, err = execute(t, opener(eng, ""), "reconcile", "-t", "acme", "--start", "01/02/2025")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestScheduleWithoutFinancing(t *testing.T) {
	out, err := execute(t, opener(&stubEngine{}, ""), "schedule", "c1", "-t", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "no significant financing component")
}

func TestScheduleJSON(t *testing.T) {
	eng := &stubEngine{schedule: financing.Result{
		Applies:       true,
		Method:        revrec.StraightLine,
		PresentValue:  decimal.NewFromInt(900),
		TotalInterest: decimal.NewFromInt(100),
		Schedule: []financing.Period{{
			Month: 1, Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			Opening: decimal.NewFromInt(900), Interest: decimal.NewFromInt(100),
			Closing: decimal.NewFromInt(1000), Cumulative: decimal.NewFromInt(100),
		}},
	}}
	out, err := execute(t, opener(eng, ""), "schedule", "c1", "-t", "acme", "--format", "json")
	require.NoError(t, err)
	var body struct {
		Applies bool                `json:"applies"`
		Periods []map[string]string `json:"periods"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.True(t, body.Applies)
	require.Len(t, body.Periods, 1)
	assert.Equal(t, "2025-02-01", body.Periods[0]["date"])
	assert.Equal(t, "1000.00", body.Periods[0]["closing"])
}

func TestMigrateNeedsPostgres(t *testing.T) {
	_, err := execute(t, opener(&stubEngine{}, ""), "migrate")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestJobsEnqueueAndStats(t *testing.T) {
	backend := &stubJobs{}
	prev := NewJobsBackend
	NewJobsBackend = func(string) (JobsBackend, error) { return backend, nil }
	t.Cleanup(func() { NewJobsBackend = prev })

	out, err := execute(t, opener(&stubEngine{}, "localhost:6379"), "jobs", "enqueue", "batch", "--all")
	require.NoError(t, err)
	assert.Equal(t, "batch", backend.kind)
	assert.Equal(t, "all", backend.tenant)
	assert.True(t, backend.closed)
	assert.Contains(t, out, "task-1")

	out, err = execute(t, opener(&stubEngine{}, "localhost:6379"), "jobs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "revrec:run_all")

	_, err = execute(t, opener(&stubEngine{}, ""), "jobs", "stats")
	assert.Equal(t, ExitUsage, ExitCode(err))
}
