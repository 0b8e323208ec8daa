package revrechttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/revrec/internal/platform/httpx"
	"github.com/odyssey-erp/revrec/internal/revrec"
)

const (
	// TenantHeader carries the tenant every request is scoped to.
	TenantHeader = "X-Tenant-ID"
	// RoleHeader carries the caller role set by the upstream gateway.
	RoleHeader = "X-Role"
)

const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

const runRateLimit = 30
const runRateWindow = time.Minute

type ctxKey int

const (
	tenantKey ctxKey = iota
	roleKey
)

// MountRoutes registers the recognition API under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(runRateLimit, runRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(requireTenant)

		api.Get("/reconciliation", h.handleReconciliation)
		api.Get("/ledger/unposted", h.handleUnposted)
		api.Get("/contracts/{contractID}/financing", h.handleFinancing)

		api.Group(func(wr chi.Router) {
			wr.Use(requireWriter)
			wr.Group(func(rl chi.Router) {
				rl.Use(limiter)
				rl.Post("/contracts/run", h.handleRunAll)
				rl.Post("/contracts/{contractID}/run", h.handleRun)
			})
			wr.Post("/contracts/{contractID}/versions", h.handleModify)
			wr.Post("/obligations/{obligationID}/progress", h.handleProgress)
			wr.Post("/obligations/{obligationID}/satisfy", h.handleSatisfy)
			wr.Post("/billing/{billingID}/invoice", h.handleInvoice)
			wr.Post("/billing/{billingID}/pay", h.handlePay)
			wr.Post("/billing/{billingID}/cancel", h.handleCancel)
			wr.Post("/billing/{billingID}/overdue", h.handleOverdue)
			wr.Post("/ledger/{entryID}/reverse", h.handleReverse)
			wr.Post("/ledger/post", h.handlePost)
		})
	})
}

func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			httpx.RespondError(w, revrec.Invalid("tenant_id", "%s header is required", TenantHeader))
			return
		}
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader)))
		if role == "" {
			role = RoleViewer
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		ctx = context.WithValue(ctx, roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch roleFromContext(r.Context()) {
		case RoleAdmin, RoleAccountant:
			next.ServeHTTP(w, r)
		default:
			httpx.RespondError(w, httpx.ErrForbidden)
		}
	})
}

func tenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

func roleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func rateLimitKey(r *http.Request) (string, error) {
	if tenant := tenantFromContext(r.Context()); tenant != "" {
		return "tenant:" + tenant, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

var reconcileGroup singleflight.Group

// reconcileOnce collapses identical concurrent reconciliation requests.
func reconcileOnce(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := reconcileGroup.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}
