// Package cli implements the revctl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/revrec/internal/app"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

// Exit codes returned by revctl.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitBusy        = 3
	ExitUnavailable = 4
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, revrec.ErrValidation), errors.Is(err, errUsage):
		return ExitUsage
	case errors.Is(err, revrec.ErrConcurrency):
		return ExitBusy
	case errors.Is(err, revrec.ErrExternalIO):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

var errUsage = errors.New("usage")

// Engine is the service surface revctl drives.
type Engine interface {
	RunEngine(ctx context.Context, tenantID, contractID, versionID string) (engine.RunResult, error)
	RunAll(ctx context.Context, tenantID string) (engine.BatchResult, error)
	Reconcile(ctx context.Context, tenantID string, opts reconcile.Options) (reconcile.Report, error)
	FinancingSchedule(ctx context.Context, tenantID, contractID string) (financing.Result, error)
}

// Runtime is what an Opener hands to commands.
type Runtime struct {
	Engine    Engine
	Pool      *pgxpool.Pool
	RedisAddr string
	Close     func()
}

// Opener builds the runtime for one command invocation.
type Opener func(ctx context.Context, opts *RootOptions) (*Runtime, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
	Tenant  string
	Format  string
	Locale  string
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the revctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "revctl",
		Short: "Operate the revenue recognition engine",
		Long: `revctl runs recognition, reconciles contract balances and manages the
schema and background jobs of the revenue recognition service.

Configuration is read from the environment (and --env-file) exactly as the
server reads it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("%w: invalid format %q: must be one of %v", errUsage, opts.Format, ValidFormats)
			}
			if _, err := language.Parse(opts.Locale); err != nil {
				return fmt.Errorf("%w: invalid locale %q", errUsage, opts.Locale)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "optional .env file loaded before the environment")
	cmd.PersistentFlags().StringVarP(&opts.Tenant, "tenant", "t", os.Getenv("REVREC_TENANT"), "tenant id (default $REVREC_TENANT)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Locale, "locale", "en", "BCP 47 locale used to format amounts")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(newRunCommand(opts, open))
	cmd.AddCommand(newRunAllCommand(opts, open))
	cmd.AddCommand(newReconcileCommand(opts, open))
	cmd.AddCommand(newScheduleCommand(opts, open))
	cmd.AddCommand(newMigrateCommand(opts, open))
	cmd.AddCommand(newJobsCommand(opts, open))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func requireTenant(opts *RootOptions) (string, error) {
	tenant := strings.TrimSpace(opts.Tenant)
	if tenant == "" {
		return "", fmt.Errorf("%w: --tenant or REVREC_TENANT is required", errUsage)
	}
	return tenant, nil
}

// withRuntime opens the runtime, runs fn and always closes it.
func withRuntime(cmd *cobra.Command, opts *RootOptions, open Opener, fn func(context.Context, *Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(ctx, rt)
}

// DefaultOpener loads configuration and bootstraps the engine.
func DefaultOpener(ctx context.Context, opts *RootOptions) (*Runtime, error) {
	var files []string
	if opts.EnvFile != "" {
		files = append(files, opts.EnvFile)
	}
	cfg, err := app.LoadConfig(files...)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	rt, err := app.Bootstrap(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return &Runtime{Engine: rt.Service, Pool: rt.Pool, RedisAddr: cfg.RedisAddr, Close: rt.Close}, nil
}
