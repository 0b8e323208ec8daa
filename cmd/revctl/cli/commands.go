package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/revrec/internal/platform/db"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
	pgstore "github.com/odyssey-erp/revrec/internal/revrec/store/postgres"
)

func newRunCommand(opts *RootOptions, open Opener) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "run <contract-id>",
		Short: "Run recognition for one contract",
		Long: `Run recognition for one contract and post the resulting deltas.

Running twice without new progress posts nothing.

Example:
  revctl run -t acme CT-2025-001
  revctl run -t acme CT-2025-001 --version CT-2025-001-v2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := requireTenant(opts)
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
				res, err := rt.Engine.RunEngine(ctx, tenant, args[0], version)
				if err != nil {
					return err
				}
				p := newPrinter(opts, cmd.OutOrStdout())
				if opts.Format == "json" {
					return p.json(map[string]any{
						"contract_id":              res.ContractID,
						"version_id":               res.VersionID,
						"total_recognized_revenue": res.TotalRecognizedRevenue.StringFixed(2),
						"entries_posted":           res.EntriesPosted,
					})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "contract %s (%s): recognized %s, %d entries posted\n",
					res.ContractID, res.VersionID, p.amount(res.TotalRecognizedRevenue), res.EntriesPosted)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "contract version id (default: current version)")
	return cmd
}

func newRunAllCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Recalculate every contract of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := requireTenant(opts)
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
				res, err := rt.Engine.RunAll(ctx, tenant)
				if err != nil {
					return err
				}
				p := newPrinter(opts, cmd.OutOrStdout())
				if opts.Format == "json" {
					if err := p.json(res); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(res.Errors))
					for _, ce := range res.Errors {
						rows = append(rows, []string{ce.ContractID, ce.Kind, ce.Message})
					}
					summary := fmt.Sprintf("processed %d, failed %d", res.Processed, res.Failed)
					if len(rows) == 0 {
						if _, err := fmt.Fprintln(cmd.OutOrStdout(), summary); err != nil {
							return err
						}
					} else if err := p.table([]string{"CONTRACT", "KIND", "ERROR"}, rows, summary); err != nil {
						return err
					}
				}
				if res.Failed > 0 {
					return fmt.Errorf("%d contracts failed", res.Failed)
				}
				return nil
			})
		},
	}
}

func newReconcileCommand(opts *RootOptions, open Opener) *cobra.Command {
	var start, end, contract string
	var drafts bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Print the account reconciliation for a period",
		Long: `Print opening balance, movement and closing balance per account,
and the net contract asset or liability position.

Example:
  revctl reconcile -t acme --start 2025-01-01 --end 2025-03-31
  revctl reconcile -t acme --contract CT-2025-001 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := requireTenant(opts)
			if err != nil {
				return err
			}
			ropts := reconcile.Options{ContractID: contract, IncludeDrafts: drafts}
			if ropts.Start, err = parseDay("start", start); err != nil {
				return err
			}
			if ropts.End, err = parseDay("end", end); err != nil {
				return err
			}
			return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
				report, err := rt.Engine.Reconcile(ctx, tenant, ropts)
				if err != nil {
					return err
				}
				return printReconciliation(newPrinter(opts, cmd.OutOrStdout()), report)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "period start (YYYY-MM-DD, default: unbounded)")
	cmd.Flags().StringVar(&end, "end", "", "period end (YYYY-MM-DD, default: unbounded)")
	cmd.Flags().StringVar(&contract, "contract", "", "restrict to one contract")
	cmd.Flags().BoolVar(&drafts, "drafts", false, "include unposted entries")
	return cmd
}

func printReconciliation(p *printer, report reconcile.Report) error {
	if p.format == "json" {
		rows := make([]map[string]string, 0, len(report.Rows))
		for _, r := range report.Rows {
			rows = append(rows, map[string]string{
				"code":    r.Code,
				"name":    r.Name,
				"opening": r.Opening.StringFixed(2),
				"debit":   r.Debit.StringFixed(2),
				"credit":  r.Credit.StringFixed(2),
				"closing": r.Closing.StringFixed(2),
				"nature":  string(r.Nature),
			})
		}
		byType := make([]map[string]string, 0, len(report.ByType))
		for _, r := range report.ByType {
			byType = append(byType, map[string]string{
				"entry_type": string(r.Type),
				"opening":    r.Opening.StringFixed(2),
				"debit":      r.Debit.StringFixed(2),
				"credit":     r.Credit.StringFixed(2),
				"closing":    r.Closing.StringFixed(2),
			})
		}
		tbLines := make([]map[string]string, 0, len(report.TrialBalance.Lines))
		for _, l := range report.TrialBalance.Lines {
			tbLines = append(tbLines, map[string]string{
				"code":   l.Code,
				"name":   l.Name,
				"debit":  l.Debit.StringFixed(2),
				"credit": l.Credit.StringFixed(2),
				"net":    l.Net.StringFixed(2),
			})
		}
		return p.json(map[string]any{
			"rows":                  rows,
			"total_debit":           report.TotalDebit.StringFixed(2),
			"total_credit":          report.TotalCredit.StringFixed(2),
			"contract_assets":       report.ContractAssets.StringFixed(2),
			"contract_liabilities":  report.ContractLiabilities.StringFixed(2),
			"net_contract_position": report.NetContractPosition.StringFixed(2),
			"position":              report.PositionLabel(),
			"by_entry_type":         byType,
			"trial_balance": map[string]any{
				"lines":        tbLines,
				"total_debit":  report.TrialBalance.TotalDebit.StringFixed(2),
				"total_credit": report.TrialBalance.TotalCredit.StringFixed(2),
				"balanced":     report.TrialBalance.Balanced(),
			},
		})
	}
	rows := make([][]string, 0, len(report.Rows))
	for _, r := range report.Rows {
		rows = append(rows, []string{r.Code, r.Name, p.amount(r.Opening), p.amount(r.Debit), p.amount(r.Credit), p.amount(r.Closing)})
	}
	if err := p.table([]string{"ACCOUNT", "NAME", "OPENING", "DEBIT", "CREDIT", "CLOSING"}, rows,
		fmt.Sprintf("totals: debit %s, credit %s", p.amount(report.TotalDebit), p.amount(report.TotalCredit)),
		fmt.Sprintf("net contract position: %s (%s)", p.amount(report.NetContractPosition.Abs()), report.PositionLabel()),
	); err != nil {
		return err
	}
	if len(report.ByType) > 0 {
		typeRows := make([][]string, 0, len(report.ByType))
		for _, r := range report.ByType {
			typeRows = append(typeRows, []string{string(r.Type), p.amount(r.Opening), p.amount(r.Debit), p.amount(r.Credit), p.amount(r.Closing)})
		}
		if err := p.table([]string{"ENTRY TYPE", "OPENING", "DEBIT", "CREDIT", "CLOSING"}, typeRows); err != nil {
			return err
		}
	}
	tb := report.TrialBalance
	if len(tb.Lines) == 0 {
		return nil
	}
	tbRows := make([][]string, 0, len(tb.Lines))
	for _, l := range tb.Lines {
		tbRows = append(tbRows, []string{l.Code, l.Name, p.amount(l.Debit), p.amount(l.Credit), p.amount(l.Net)})
	}
	status := "balanced"
	if !tb.Balanced() {
		status = "out of balance"
	}
	return p.table([]string{"ACCOUNT", "NAME", "DEBIT", "CREDIT", "NET"}, tbRows,
		fmt.Sprintf("trial balance: debit %s, credit %s (%s)", p.amount(tb.TotalDebit), p.amount(tb.TotalCredit), status),
	)
}

func newScheduleCommand(opts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <contract-id>",
		Short: "Print the financing accretion schedule of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := requireTenant(opts)
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
				res, err := rt.Engine.FinancingSchedule(ctx, tenant, args[0])
				if err != nil {
					return err
				}
				p := newPrinter(opts, cmd.OutOrStdout())
				if opts.Format == "json" {
					periods := make([]map[string]string, 0, len(res.Schedule))
					for _, per := range res.Schedule {
						periods = append(periods, map[string]string{
							"month":      strconv.Itoa(per.Month),
							"date":       per.Date.Format(time.DateOnly),
							"opening":    per.Opening.StringFixed(2),
							"interest":   per.Interest.StringFixed(2),
							"closing":    per.Closing.StringFixed(2),
							"cumulative": per.Cumulative.StringFixed(2),
						})
					}
					return p.json(map[string]any{
						"applies":        res.Applies,
						"method":         string(res.Method),
						"present_value":  res.PresentValue.StringFixed(2),
						"total_interest": res.TotalInterest.StringFixed(2),
						"periods":        periods,
					})
				}
				if !res.Applies {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "no significant financing component")
					return err
				}
				rows := make([][]string, 0, len(res.Schedule))
				for _, per := range res.Schedule {
					rows = append(rows, []string{strconv.Itoa(per.Month), per.Date.Format(time.DateOnly),
						p.amount(per.Opening), p.amount(per.Interest), p.amount(per.Closing), p.amount(per.Cumulative)})
				}
				return p.table([]string{"MONTH", "DATE", "OPENING", "INTEREST", "CLOSING", "CUMULATIVE"}, rows,
					fmt.Sprintf("present value %s, interest %s (%s)", p.amount(res.PresentValue), p.amount(res.TotalInterest), res.Method))
			})
		},
	}
}

func newMigrateCommand(opts *RootOptions, open Opener) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
				if rt.Pool == nil {
					return fmt.Errorf("%w: migrate requires STORE_DRIVER=postgres", errUsage)
				}
				if status {
					version, pending, err := db.MigrationStatus(ctx, rt.Pool, pgstore.Migrations, pgstore.MigrationsDir)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d, pending: %t\n", version, pending)
					return err
				}
				version, err := db.Migrate(ctx, rt.Pool, pgstore.Migrations, pgstore.MigrationsDir, nil)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "report the schema version without migrating")
	return cmd
}

func parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s must be YYYY-MM-DD", errUsage, field)
	}
	return t, nil
}

var errNoRedis = errors.New("REDIS_ADDR is not configured")
