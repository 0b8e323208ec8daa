package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// memRepo is a copy-on-write in-memory store; a failed transaction leaves no trace.
type memRepo struct {
	mu    sync.Mutex
	state *memState
	// failInsert makes InsertEntries fail, to exercise rollback.
	failInsert error
	// onTx runs inside every transaction before fn.
	onTx func()
}

type memState struct {
	contracts   map[string]revrec.Contract
	versions    map[string]revrec.ContractVersion
	items       map[string]revrec.LineItem
	obligations map[string]revrec.PerformanceObligation
	billing     map[string]revrec.BillingScheduleEntry
	financing   map[string]revrec.FinancingComponent
	variable    map[string]revrec.VariableConsideration
	commissions map[string]revrec.CommissionCost
	entries     []revrec.LedgerEntry
}

func newMemRepo() *memRepo {
	return &memRepo{state: &memState{
		contracts:   map[string]revrec.Contract{},
		versions:    map[string]revrec.ContractVersion{},
		items:       map[string]revrec.LineItem{},
		obligations: map[string]revrec.PerformanceObligation{},
		billing:     map[string]revrec.BillingScheduleEntry{},
		financing:   map[string]revrec.FinancingComponent{},
		variable:    map[string]revrec.VariableConsideration{},
		commissions: map[string]revrec.CommissionCost{},
	}}
}

func (s *memState) clone() *memState {
	out := &memState{
		contracts:   make(map[string]revrec.Contract, len(s.contracts)),
		versions:    make(map[string]revrec.ContractVersion, len(s.versions)),
		items:       make(map[string]revrec.LineItem, len(s.items)),
		obligations: make(map[string]revrec.PerformanceObligation, len(s.obligations)),
		billing:     make(map[string]revrec.BillingScheduleEntry, len(s.billing)),
		financing:   make(map[string]revrec.FinancingComponent, len(s.financing)),
		variable:    make(map[string]revrec.VariableConsideration, len(s.variable)),
		commissions: make(map[string]revrec.CommissionCost, len(s.commissions)),
		entries:     append([]revrec.LedgerEntry(nil), s.entries...),
	}
	for k, v := range s.contracts {
		out.contracts[k] = v
	}
	for k, v := range s.versions {
		out.versions[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.obligations {
		out.obligations[k] = v
	}
	for k, v := range s.billing {
		out.billing[k] = v
	}
	for k, v := range s.financing {
		out.financing[k] = v
	}
	for k, v := range s.variable {
		out.variable[k] = v
	}
	for k, v := range s.commissions {
		out.commissions[k] = v
	}
	return out
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	work := r.state.clone()
	onTx := r.onTx
	r.mu.Unlock()
	if onTx != nil {
		onTx()
	}
	tx := &memTx{repo: r, s: work}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.mu.Lock()
	r.state = work
	r.mu.Unlock()
	return nil
}

func (r *memRepo) snapshot() *memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

type memTx struct {
	repo *memRepo
	s    *memState
}

func notFound(kind, id string) error {
	return errors.Join(revrec.ErrNotFound, errors.New(kind+" "+id))
}

func (t *memTx) ListContracts(_ context.Context, tenantID string) ([]revrec.Contract, error) {
	var out []revrec.Contract
	for _, c := range t.s.contracts {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memTx) GetContract(_ context.Context, tenantID, id string) (revrec.Contract, error) {
	c, ok := t.s.contracts[id]
	if !ok || c.TenantID != tenantID {
		return revrec.Contract{}, notFound("contract", id)
	}
	return c, nil
}

func (t *memTx) UpdateContract(_ context.Context, c revrec.Contract) error {
	t.s.contracts[c.ID] = c
	return nil
}

func (t *memTx) GetVersion(_ context.Context, tenantID, id string) (revrec.ContractVersion, error) {
	v, ok := t.s.versions[id]
	if !ok || v.TenantID != tenantID {
		return revrec.ContractVersion{}, notFound("version", id)
	}
	return v, nil
}

func (t *memTx) ListVersions(_ context.Context, tenantID, contractID string) ([]revrec.ContractVersion, error) {
	var out []revrec.ContractVersion
	for _, v := range t.s.versions {
		if v.TenantID == tenantID && v.ContractID == contractID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *memTx) CreateVersion(_ context.Context, v revrec.ContractVersion) error {
	t.s.versions[v.ID] = v
	return nil
}

func (t *memTx) ListLineItems(_ context.Context, tenantID, versionID string) ([]revrec.LineItem, error) {
	var out []revrec.LineItem
	for _, li := range t.s.items {
		if li.TenantID == tenantID && li.VersionID == versionID {
			out = append(out, li)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateLineItems(_ context.Context, items []revrec.LineItem) error {
	for _, li := range items {
		t.s.items[li.ID] = li
	}
	return nil
}

func (t *memTx) ListObligations(_ context.Context, tenantID, contractID string) ([]revrec.PerformanceObligation, error) {
	var out []revrec.PerformanceObligation
	for _, ob := range t.s.obligations {
		if ob.TenantID == tenantID && ob.ContractID == contractID {
			out = append(out, ob)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetObligation(_ context.Context, tenantID, id string) (revrec.PerformanceObligation, error) {
	ob, ok := t.s.obligations[id]
	if !ok || ob.TenantID != tenantID {
		return revrec.PerformanceObligation{}, notFound("obligation", id)
	}
	return ob, nil
}

func (t *memTx) CreateObligation(_ context.Context, ob revrec.PerformanceObligation) error {
	t.s.obligations[ob.ID] = ob
	return nil
}

func (t *memTx) UpdateObligation(_ context.Context, ob revrec.PerformanceObligation) error {
	if _, ok := t.s.obligations[ob.ID]; !ok {
		return notFound("obligation", ob.ID)
	}
	t.s.obligations[ob.ID] = ob
	return nil
}

func (t *memTx) ListBilling(_ context.Context, tenantID, contractID string) ([]revrec.BillingScheduleEntry, error) {
	var out []revrec.BillingScheduleEntry
	for _, b := range t.s.billing {
		if b.TenantID == tenantID && b.ContractID == contractID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetBilling(_ context.Context, tenantID, id string) (revrec.BillingScheduleEntry, error) {
	b, ok := t.s.billing[id]
	if !ok || b.TenantID != tenantID {
		return revrec.BillingScheduleEntry{}, notFound("billing", id)
	}
	return b, nil
}

func (t *memTx) UpdateBilling(_ context.Context, b revrec.BillingScheduleEntry) error {
	t.s.billing[b.ID] = b
	return nil
}

func (t *memTx) GetFinancing(_ context.Context, tenantID, contractID string) (*revrec.FinancingComponent, error) {
	for _, fc := range t.s.financing {
		if fc.TenantID == tenantID && fc.ContractID == contractID {
			out := fc
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTx) UpdateFinancing(_ context.Context, fc revrec.FinancingComponent) error {
	t.s.financing[fc.ID] = fc
	return nil
}

func (t *memTx) ListVariableConsideration(_ context.Context, tenantID, contractID string) ([]revrec.VariableConsideration, error) {
	var out []revrec.VariableConsideration
	for _, vc := range t.s.variable {
		if vc.TenantID == tenantID && vc.ContractID == contractID {
			out = append(out, vc)
		}
	}
	return out, nil
}

func (t *memTx) ListCommissions(_ context.Context, tenantID, contractID string) ([]revrec.CommissionCost, error) {
	var out []revrec.CommissionCost
	for _, c := range t.s.commissions {
		if c.TenantID == tenantID && c.ContractID == contractID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *memTx) ListEntries(_ context.Context, tenantID, contractID string) ([]revrec.LedgerEntry, error) {
	var out []revrec.LedgerEntry
	for _, e := range t.s.entries {
		if e.TenantID == tenantID && (contractID == "" || e.ContractID == contractID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) GetEntry(_ context.Context, tenantID, id string) (revrec.LedgerEntry, error) {
	for _, e := range t.s.entries {
		if e.ID == id && e.TenantID == tenantID {
			return e, nil
		}
	}
	return revrec.LedgerEntry{}, notFound("entry", id)
}

func (t *memTx) ListUnposted(_ context.Context, tenantID string) ([]revrec.LedgerEntry, error) {
	var out []revrec.LedgerEntry
	for _, e := range t.s.entries {
		if e.TenantID == tenantID && !e.IsPosted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) InsertEntries(_ context.Context, entries []revrec.LedgerEntry) error {
	if t.repo.failInsert != nil {
		return t.repo.failInsert
	}
	t.s.entries = append(t.s.entries, entries...)
	return nil
}

func (t *memTx) MarkPosted(_ context.Context, tenantID string, ids []string, at time.Time) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i, e := range t.s.entries {
		if e.TenantID == tenantID && want[e.ID] && !e.IsPosted {
			ts := at
			t.s.entries[i].IsPosted = true
			t.s.entries[i].PostedAt = &ts
		}
	}
	return nil
}
