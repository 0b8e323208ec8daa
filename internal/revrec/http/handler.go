package revrechttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/revrec/internal/platform/httpx"
	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
	"github.com/odyssey-erp/revrec/internal/revrec/financing"
	"github.com/odyssey-erp/revrec/internal/revrec/reconcile"
)

// Engine is the subset of the recognition service exposed over HTTP.
type Engine interface {
	RunEngine(ctx context.Context, tenantID, contractID, versionID string) (engine.RunResult, error)
	RunAll(ctx context.Context, tenantID string) (engine.BatchResult, error)
	ModifyContract(ctx context.Context, tenantID, contractID string, input engine.ModifyInput) (revrec.ContractVersion, error)
	UpdateProgress(ctx context.Context, tenantID, obligationID string, percent decimal.Decimal) (revrec.PerformanceObligation, error)
	SatisfyObligation(ctx context.Context, tenantID, obligationID string, at time.Time) (revrec.PerformanceObligation, error)
	RecordInvoice(ctx context.Context, tenantID, billingID string, at time.Time) (revrec.BillingScheduleEntry, error)
	RecordPayment(ctx context.Context, tenantID, billingID string, amount decimal.Decimal, at time.Time) (revrec.BillingScheduleEntry, error)
	MarkOverdue(ctx context.Context, tenantID, billingID string) (revrec.BillingScheduleEntry, error)
	CancelBilling(ctx context.Context, tenantID, billingID string) (revrec.BillingScheduleEntry, error)
	ReverseEntry(ctx context.Context, tenantID, entryID string, at time.Time) (revrec.LedgerEntry, error)
	ListUnposted(ctx context.Context, tenantID string) ([]revrec.LedgerEntry, error)
	PostPending(ctx context.Context, tenantID string) (int, error)
	Reconcile(ctx context.Context, tenantID string, opts reconcile.Options) (reconcile.Report, error)
	FinancingSchedule(ctx context.Context, tenantID, contractID string) (financing.Result, error)
}

// Handler exposes recognition operations as JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   Engine
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, eng Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: eng, validate: validator.New()}
}

// decode reads and validates an optional JSON body into dst.
func (h *Handler) decode(r *http.Request, dst any, required bool) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		if required {
			return httpx.ErrEmptyBody
		}
		return nil
	}
	if err := httpx.DecodeJSON(r, dst); err != nil {
		if !required && errors.Is(err, httpx.ErrEmptyBody) {
			return nil
		}
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("revrec request failed", slog.String("op", op), slog.String("path", r.URL.Path),
			slog.String("tenant_id", tenantFromContext(r.Context())), slog.Any("error", err))
	} else {
		h.logger.Debug("revrec request rejected", slog.String("op", op), slog.Int("status", status), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	contractID := chi.URLParam(r, "contractID")
	version := strings.TrimSpace(r.URL.Query().Get("version"))
	result, err := h.engine.RunEngine(r.Context(), tenant, contractID, version)
	if err != nil {
		h.fail(w, r, "run", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRunResponse(result))
}

func (h *Handler) handleRunAll(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	result, err := h.engine.RunAll(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, "run_all", err)
		return
	}
	if result.Errors == nil {
		result.Errors = []engine.ContractError{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleModify(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if err := h.decode(r, &req, true); err != nil {
		h.fail(w, r, "modify", err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.fail(w, r, "modify", err)
		return
	}
	version, err := h.engine.ModifyContract(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "contractID"), input)
	if err != nil {
		h.fail(w, r, "modify", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newVersionResponse(version))
}

func (h *Handler) handleFinancing(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.FinancingSchedule(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "contractID"))
	if err != nil {
		h.fail(w, r, "financing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newScheduleResponse(res))
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if err := h.decode(r, &req, true); err != nil {
		h.fail(w, r, "progress", err)
		return
	}
	pct, err := parseAmount("percent_complete", req.PercentComplete)
	if err != nil {
		h.fail(w, r, "progress", err)
		return
	}
	ob, err := h.engine.UpdateProgress(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "obligationID"), pct)
	if err != nil {
		h.fail(w, r, "progress", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newObligationResponse(ob))
}

func (h *Handler) handleSatisfy(w http.ResponseWriter, r *http.Request) {
	var req SatisfyRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, "satisfy", err)
		return
	}
	at, err := parseDate("satisfied_at", req.SatisfiedAt)
	if err != nil {
		h.fail(w, r, "satisfy", err)
		return
	}
	ob, err := h.engine.SatisfyObligation(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "obligationID"), at)
	if err != nil {
		h.fail(w, r, "satisfy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newObligationResponse(ob))
}

func (h *Handler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, "invoice", err)
		return
	}
	at, err := parseDate("invoiced_at", req.InvoicedAt)
	if err != nil {
		h.fail(w, r, "invoice", err)
		return
	}
	b, err := h.engine.RecordInvoice(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "billingID"), at)
	h.respondBilling(w, r, "invoice", b, err)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, "pay", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, r, "pay", err)
		return
	}
	at, err := parseDate("paid_at", req.PaidAt)
	if err != nil {
		h.fail(w, r, "pay", err)
		return
	}
	b, err := h.engine.RecordPayment(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "billingID"), amount, at)
	h.respondBilling(w, r, "pay", b, err)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.CancelBilling(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "billingID"))
	h.respondBilling(w, r, "cancel", b, err)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.MarkOverdue(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "billingID"))
	h.respondBilling(w, r, "overdue", b, err)
}

func (h *Handler) respondBilling(w http.ResponseWriter, r *http.Request, op string, b revrec.BillingScheduleEntry, err error) {
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBillingResponse(b))
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if err := h.decode(r, &req, false); err != nil {
		h.fail(w, r, "reverse", err)
		return
	}
	at, err := parseDate("at", req.At)
	if err != nil {
		h.fail(w, r, "reverse", err)
		return
	}
	entry, err := h.engine.ReverseEntry(r.Context(), tenantFromContext(r.Context()), chi.URLParam(r, "entryID"), at)
	if err != nil {
		h.fail(w, r, "reverse", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newEntryResponse(entry))
}

func (h *Handler) handleUnposted(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.ListUnposted(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "unposted", err)
		return
	}
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.PostPending(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "post", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"posted": n})
}

func (h *Handler) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFromContext(r.Context())
	q := r.URL.Query()
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		h.fail(w, r, "reconciliation", err)
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		h.fail(w, r, "reconciliation", err)
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		h.fail(w, r, "reconciliation", revrec.Invalid("end", "must not be before start"))
		return
	}
	opts := reconcile.Options{
		Start:         start,
		End:           end,
		ContractID:    strings.TrimSpace(q.Get("contract")),
		IncludeDrafts: q.Get("drafts") == "true",
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%t", tenant, q.Get("start"), q.Get("end"), opts.ContractID, opts.IncludeDrafts)
	val, err, shared := reconcileOnce(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.engine.Reconcile(ctx, tenant, opts)
	})
	if err != nil {
		h.fail(w, r, "reconciliation", err)
		return
	}
	if shared {
		h.logger.Debug("reconciliation shared", slog.String("tenant_id", tenant), slog.String("key", key))
	}
	httpx.JSON(w, http.StatusOK, newReconciliationResponse(val.(reconcile.Report)))
}
