package engine

import (
	"context"
	"time"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Repository abstracts transactional access to the document store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes tenant-scoped reads and writes inside one transaction.
// Every method takes the tenant explicitly; implementations return
// revrec.ErrNotFound for missing rows and wrap driver failures with
// revrec.ExternalIO.
type TxRepository interface {
	ListContracts(ctx context.Context, tenantID string) ([]revrec.Contract, error)
	GetContract(ctx context.Context, tenantID, id string) (revrec.Contract, error)
	UpdateContract(ctx context.Context, contract revrec.Contract) error

	GetVersion(ctx context.Context, tenantID, id string) (revrec.ContractVersion, error)
	ListVersions(ctx context.Context, tenantID, contractID string) ([]revrec.ContractVersion, error)
	CreateVersion(ctx context.Context, version revrec.ContractVersion) error

	ListLineItems(ctx context.Context, tenantID, versionID string) ([]revrec.LineItem, error)
	CreateLineItems(ctx context.Context, items []revrec.LineItem) error

	ListObligations(ctx context.Context, tenantID, contractID string) ([]revrec.PerformanceObligation, error)
	GetObligation(ctx context.Context, tenantID, id string) (revrec.PerformanceObligation, error)
	CreateObligation(ctx context.Context, ob revrec.PerformanceObligation) error
	UpdateObligation(ctx context.Context, ob revrec.PerformanceObligation) error

	ListBilling(ctx context.Context, tenantID, contractID string) ([]revrec.BillingScheduleEntry, error)
	GetBilling(ctx context.Context, tenantID, id string) (revrec.BillingScheduleEntry, error)
	UpdateBilling(ctx context.Context, entry revrec.BillingScheduleEntry) error

	// GetFinancing returns nil without error when the contract has no financing component.
	GetFinancing(ctx context.Context, tenantID, contractID string) (*revrec.FinancingComponent, error)
	UpdateFinancing(ctx context.Context, fc revrec.FinancingComponent) error

	ListVariableConsideration(ctx context.Context, tenantID, contractID string) ([]revrec.VariableConsideration, error)
	ListCommissions(ctx context.Context, tenantID, contractID string) ([]revrec.CommissionCost, error)

	// ListEntries returns the entries of one contract, or of the whole tenant when contractID is empty.
	ListEntries(ctx context.Context, tenantID, contractID string) ([]revrec.LedgerEntry, error)
	GetEntry(ctx context.Context, tenantID, id string) (revrec.LedgerEntry, error)
	ListUnposted(ctx context.Context, tenantID string) ([]revrec.LedgerEntry, error)
	InsertEntries(ctx context.Context, entries []revrec.LedgerEntry) error
	MarkPosted(ctx context.Context, tenantID string, ids []string, at time.Time) error
}

// Locker serialises recognition runs per contract. Acquire returns an error
// matching lock.ErrLocked when another holder owns the key, otherwise a
// release function.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// AuditEvent is one compliance record emitted by the engine.
type AuditEvent struct {
	TenantID string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditPort records engine events for compliance.
type AuditPort interface {
	Record(ctx context.Context, event AuditEvent) error
}
