// Package firestore persists the revenue-recognition model in Cloud Firestore.
// Every document carries a tenantId field and every read filters on it.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/odyssey-erp/revrec/internal/revrec"
	"github.com/odyssey-erp/revrec/internal/revrec/engine"
)

// Collection names.
const (
	ContractsCollection   = "contracts"
	VersionsCollection    = "contract_versions"
	LineItemsCollection   = "line_items"
	ObligationsCollection = "performance_obligations"
	BillingCollection     = "billing_schedule"
	FinancingCollection   = "financing_components"
	VariableCollection    = "variable_consideration"
	CommissionsCollection = "commission_costs"
	EntriesCollection     = "ledger_entries"
	AuditCollection       = "audit_logs"
)

// Repository persists recognition entities in Firestore.
type Repository struct {
	client *firestore.Client
}

// NewRepository constructs Repository.
func NewRepository(client *firestore.Client) *Repository {
	return &Repository{client: client}
}

// WithTx runs fn inside a Firestore transaction. Writes are buffered and
// applied after fn returns, so every read sees the state at transaction start.
// Firestore may retry fn when the transaction contends.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, engine.TxRepository) error) error {
	if r == nil || r.client == nil {
		return revrec.ExternalIO("begin", errors.New("firestore repository not initialised"))
	}
	var fnErr error
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		t := &txRepository{client: r.client, tx: tx}
		if fnErr = fn(ctx, t); fnErr != nil {
			return fnErr
		}
		return t.flush()
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		return err
	case status.Code(err) == codes.AlreadyExists:
		return revrec.Invalid("id", "document already exists: %v", err)
	default:
		return revrec.ExternalIO("transaction", err)
	}
}

type write struct {
	ref     *firestore.DocumentRef
	data    map[string]any
	updates []firestore.Update
	create  bool
}

type txRepository struct {
	client *firestore.Client
	tx     *firestore.Transaction
	writes []write
}

var _ engine.TxRepository = (*txRepository)(nil)

func (t *txRepository) flush() error {
	for _, w := range t.writes {
		var err error
		switch {
		case w.create:
			err = t.tx.Create(w.ref, w.data)
		case w.updates != nil:
			err = t.tx.Update(w.ref, w.updates)
		default:
			err = t.tx.Set(w.ref, w.data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) ref(collection, id string) *firestore.DocumentRef {
	return t.client.Collection(collection).Doc(id)
}

func (t *txRepository) set(collection, id string, data map[string]any) {
	t.writes = append(t.writes, write{ref: t.ref(collection, id), data: data})
}

func (t *txRepository) create(collection, id string, data map[string]any) {
	t.writes = append(t.writes, write{ref: t.ref(collection, id), data: data, create: true})
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", revrec.ErrNotFound, kind, id)
}

func (t *txRepository) get(collection, kind, tenantID, id string) (*doc, error) {
	if id == "" {
		return nil, notFound(kind, id)
	}
	snap, err := t.tx.Get(t.ref(collection, id))
	if status.Code(err) == codes.NotFound {
		return nil, notFound(kind, id)
	}
	if err != nil {
		return nil, revrec.ExternalIO("get "+kind, err)
	}
	d := newDoc(snap.Ref.ID, snap.Data())
	if d.str("tenantId") != tenantID {
		return nil, notFound(kind, id)
	}
	return d, nil
}

// query reads a collection for one tenant, optionally narrowed by a field.
func (t *txRepository) query(kind, collection, tenantID, field, value string) ([]*doc, error) {
	q := t.client.Collection(collection).Where("tenantId", "==", tenantID)
	if field != "" {
		q = q.Where(field, "==", value)
	}
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, revrec.ExternalIO("query "+kind, err)
	}
	out := make([]*doc, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, newDoc(snap.Ref.ID, snap.Data()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func decodeAll[T any](docs []*doc, decode func(*doc) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode(d)
		if err != nil {
			return nil, revrec.ExternalIO("decode", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeOne[T any](d *doc, err error, decode func(*doc) (T, error)) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, err := decode(d)
	if err != nil {
		return zero, revrec.ExternalIO("decode", err)
	}
	return v, nil
}

func (t *txRepository) ListContracts(_ context.Context, tenantID string) ([]revrec.Contract, error) {
	docs, err := t.query("contracts", ContractsCollection, tenantID, "", "")
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, contractFromDoc)
}

func (t *txRepository) GetContract(_ context.Context, tenantID, id string) (revrec.Contract, error) {
	d, err := t.get(ContractsCollection, "contract", tenantID, id)
	return decodeOne(d, err, contractFromDoc)
}

func (t *txRepository) UpdateContract(_ context.Context, c revrec.Contract) error {
	t.set(ContractsCollection, c.ID, contractToDoc(c))
	return nil
}

func (t *txRepository) GetVersion(_ context.Context, tenantID, id string) (revrec.ContractVersion, error) {
	d, err := t.get(VersionsCollection, "version", tenantID, id)
	return decodeOne(d, err, versionFromDoc)
}

func (t *txRepository) ListVersions(_ context.Context, tenantID, contractID string) ([]revrec.ContractVersion, error) {
	docs, err := t.query("versions", VersionsCollection, tenantID, "contractId", contractID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll(docs, versionFromDoc)
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, err
}

func (t *txRepository) CreateVersion(_ context.Context, v revrec.ContractVersion) error {
	t.create(VersionsCollection, v.ID, versionToDoc(v))
	return nil
}

func (t *txRepository) ListLineItems(_ context.Context, tenantID, versionID string) ([]revrec.LineItem, error) {
	docs, err := t.query("line items", LineItemsCollection, tenantID, "versionId", versionID)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, lineItemFromDoc)
}

func (t *txRepository) CreateLineItems(_ context.Context, items []revrec.LineItem) error {
	for _, li := range items {
		t.create(LineItemsCollection, li.ID, lineItemToDoc(li))
	}
	return nil
}

func (t *txRepository) ListObligations(_ context.Context, tenantID, contractID string) ([]revrec.PerformanceObligation, error) {
	docs, err := t.query("obligations", ObligationsCollection, tenantID, "contractId", contractID)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, obligationFromDoc)
}

func (t *txRepository) GetObligation(_ context.Context, tenantID, id string) (revrec.PerformanceObligation, error) {
	d, err := t.get(ObligationsCollection, "obligation", tenantID, id)
	return decodeOne(d, err, obligationFromDoc)
}

func (t *txRepository) CreateObligation(_ context.Context, ob revrec.PerformanceObligation) error {
	t.create(ObligationsCollection, ob.ID, obligationToDoc(ob))
	return nil
}

func (t *txRepository) UpdateObligation(_ context.Context, ob revrec.PerformanceObligation) error {
	t.set(ObligationsCollection, ob.ID, obligationToDoc(ob))
	return nil
}

func (t *txRepository) ListBilling(_ context.Context, tenantID, contractID string) ([]revrec.BillingScheduleEntry, error) {
	docs, err := t.query("billing", BillingCollection, tenantID, "contractId", contractID)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, billingFromDoc)
}

func (t *txRepository) GetBilling(_ context.Context, tenantID, id string) (revrec.BillingScheduleEntry, error) {
	d, err := t.get(BillingCollection, "billing", tenantID, id)
	return decodeOne(d, err, billingFromDoc)
}

func (t *txRepository) UpdateBilling(_ context.Context, b revrec.BillingScheduleEntry) error {
	t.set(BillingCollection, b.ID, billingToDoc(b))
	return nil
}

func (t *txRepository) GetFinancing(_ context.Context, tenantID, contractID string) (*revrec.FinancingComponent, error) {
	docs, err := t.query("financing", FinancingCollection, tenantID, "contractId", contractID)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	fc, err := financingFromDoc(docs[0])
	if err != nil {
		return nil, revrec.ExternalIO("decode", err)
	}
	return &fc, nil
}

func (t *txRepository) UpdateFinancing(_ context.Context, fc revrec.FinancingComponent) error {
	t.set(FinancingCollection, fc.ID, financingToDoc(fc))
	return nil
}

func (t *txRepository) ListVariableConsideration(_ context.Context, tenantID, contractID string) ([]revrec.VariableConsideration, error) {
	docs, err := t.query("variable consideration", VariableCollection, tenantID, "contractId", contractID)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, variableFromDoc)
}

func (t *txRepository) ListCommissions(_ context.Context, tenantID, contractID string) ([]revrec.CommissionCost, error) {
	docs, err := t.query("commissions", CommissionsCollection, tenantID, "contractId", contractID)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, commissionFromDoc)
}

func sortEntries(entries []revrec.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (t *txRepository) ListEntries(_ context.Context, tenantID, contractID string) ([]revrec.LedgerEntry, error) {
	field := ""
	if contractID != "" {
		field = "contractId"
	}
	docs, err := t.query("entries", EntriesCollection, tenantID, field, contractID)
	if err != nil {
		return nil, err
	}
	out, err := decodeAll(docs, entryFromDoc)
	sortEntries(out)
	return out, err
}

func (t *txRepository) GetEntry(_ context.Context, tenantID, id string) (revrec.LedgerEntry, error) {
	d, err := t.get(EntriesCollection, "ledger entry", tenantID, id)
	return decodeOne(d, err, entryFromDoc)
}

func (t *txRepository) ListUnposted(_ context.Context, tenantID string) ([]revrec.LedgerEntry, error) {
	q := t.client.Collection(EntriesCollection).Where("tenantId", "==", tenantID).Where("isPosted", "==", false)
	snaps, err := t.tx.Documents(q).GetAll()
	if err != nil {
		return nil, revrec.ExternalIO("query unposted", err)
	}
	out := make([]revrec.LedgerEntry, 0, len(snaps))
	for _, snap := range snaps {
		e, err := entryFromDoc(newDoc(snap.Ref.ID, snap.Data()))
		if err != nil {
			return nil, revrec.ExternalIO("decode", err)
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (t *txRepository) InsertEntries(_ context.Context, entries []revrec.LedgerEntry) error {
	for _, e := range entries {
		t.create(EntriesCollection, e.ID, entryToDoc(e))
	}
	return nil
}

func (t *txRepository) MarkPosted(_ context.Context, _ string, ids []string, at time.Time) error {
	for _, id := range ids {
		t.writes = append(t.writes, write{
			ref: t.ref(EntriesCollection, id),
			updates: []firestore.Update{
				{Path: "isPosted", Value: true},
				{Path: "postedAt", Value: at.UTC()},
			},
		})
	}
	return nil
}
