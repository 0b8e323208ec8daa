package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	jobmetrics "github.com/odyssey-erp/revrec/internal/jobs"
	"github.com/odyssey-erp/revrec/internal/platform/lock"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/allocation"
	"github.com/odyssey-erp/revrec/internal/revrec/ledger"
)

var tracer = otel.Tracer("github.com/odyssey-erp/revrec/internal/revrec/engine")

// Options tunes engine behaviour.
type Options struct {
	// VariableThreshold is the likelihood above which upside variable consideration is included.
	VariableThreshold decimal.Decimal
	// FinancingMethod is used when a financing component does not name one.
	FinancingMethod revrec.FinancingMethod
	// AutoPost marks generated entries as posted instead of draft.
	AutoPost bool
	// DefaultCurrency applies to contracts stored without a currency.
	DefaultCurrency string
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		VariableThreshold: allocation.DefaultVariableThreshold,
		FinancingMethod:   revrec.StraightLine,
		AutoPost:          true,
		DefaultCurrency:   revrec.DefaultCurrency,
	}
}

// Service coordinates recognition runs and the operations that feed them.
type Service struct {
	repo    Repository
	locker  Locker
	poster  *ledger.Poster
	audit   AuditPort
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
	newID   func() string
}

// NewService constructs the engine service.
func NewService(repo Repository, locker Locker, accounts revrec.AccountTaxonomy, opts Options) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if opts.VariableThreshold.IsZero() {
		opts.VariableThreshold = allocation.DefaultVariableThreshold
	}
	if opts.FinancingMethod == "" {
		opts.FinancingMethod = revrec.StraightLine
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = revrec.DefaultCurrency
	}
	s := &Service{
		repo:   repo,
		locker: locker,
		poster: ledger.NewPoster(accounts),
		logger: slog.Default(),
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	s.poster.WithNow(s.clock)
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithIDs overrides id generation for testing.
func (s *Service) WithIDs(fn func() string) {
	if fn != nil {
		s.newID = fn
		s.poster.WithIDs(fn)
	}
}

// WithLogger sets the structured logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithMetrics attaches run instrumentation.
func (s *Service) WithMetrics(m *jobmetrics.Metrics) {
	s.metrics = m
}

// WithAudit attaches the compliance recorder.
func (s *Service) WithAudit(audit AuditPort) {
	s.audit = audit
}

// Accounts exposes the taxonomy used for postings.
func (s *Service) Accounts() revrec.AccountTaxonomy {
	return s.poster.Accounts()
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// withContractLock runs fn while holding the recognition lock of the contract.
func (s *Service) withContractLock(ctx context.Context, tenantID, contractID string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, lock.RecognitionKey(tenantID, contractID))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return &revrec.ConcurrencyError{ContractID: contractID}
		}
		return revrec.ExternalIO("acquire lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release recognition lock", slog.String("contract_id", contractID), slog.Any("error", err))
		}
	}()
	return fn()
}

func (s *Service) record(ctx context.Context, event AuditEvent) {
	if s.audit == nil {
		return
	}
	event.At = s.clock()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", event.Action), slog.Any("error", err))
	}
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return revrec.Invalid("tenant_id", "required")
	}
	return nil
}
