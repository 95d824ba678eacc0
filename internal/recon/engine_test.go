package recon

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/catalog"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/orders"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/pharmacy"
	"github.com/AleksandrAndreew-Dev/Novamedika-LTS-sub000/internal/shared"
)

type memProduct struct {
	record    catalog.ProductRecord
	removed   bool
	removedAt *time.Time
}

type memOrder struct {
	id           int64
	status       string
	productUUID  *uuid.UUID
	snapshot     orders.Snapshot
	cancelReason string
}

// memStore is an in-memory stand-in for the catalog repository, shared by
// the provider and its transaction view.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*memProduct
	orders   map[int64]*memOrder
	uploads  []catalog.UploadSummary
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]*memProduct),
		orders:   make(map[int64]*memOrder),
	}
}

func (m *memStore) seedProduct(rec catalog.ProductRecord) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.products[id] = &memProduct{record: rec}
	return id
}

func (m *memStore) seedOrder(id int64, status string, productUUID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := productUUID
	m.orders[id] = &memOrder{id: id, status: status, productUUID: &ref}
}

func (m *memStore) FingerprintMap(ctx context.Context, pharmacyID int64) (map[string]catalog.ExistingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]catalog.ExistingEntry, len(m.products))
	for id, p := range m.products {
		out[p.record.Fingerprint] = catalog.ExistingEntry{UUID: id, Removed: p.removed}
	}
	return out, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return fn(ctx, (*memTx)(m))
}

func (m *memStore) RecordUpload(ctx context.Context, s catalog.UploadSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, s)
	return nil
}

type memTx memStore

func (t *memTx) SnapshotAndDetachOrders(ctx context.Context, productUUIDs []uuid.UUID) ([]catalog.DetachedOrder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	removing := make(map[uuid.UUID]struct{}, len(productUUIDs))
	for _, id := range productUUIDs {
		removing[id] = struct{}{}
	}
	var detached []catalog.DetachedOrder
	for _, o := range t.orders {
		if o.productUUID == nil {
			continue
		}
		if _, ok := removing[*o.productUUID]; !ok {
			continue
		}
		p := t.products[*o.productUUID]
		o.snapshot = orders.Snapshot{
			ProductName:  p.record.Name,
			ProductForm:  p.record.Form,
			Manufacturer: p.record.Manufacturer,
			Country:      p.record.Country,
			Price:        p.record.Price,
			Serial:       p.record.Serial,
		}
		o.productUUID = nil
		detached = append(detached, catalog.DetachedOrder{ID: o.id, Status: o.status})
	}
	return detached, nil
}

func (t *memTx) CancelOrders(ctx context.Context, orderIDs []int64, reason string, at time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancelled := 0
	for _, id := range orderIDs {
		o, ok := t.orders[id]
		if !ok || o.status == orders.StatusCancelled {
			continue
		}
		o.status = orders.StatusCancelled
		o.cancelReason = reason
		cancelled++
	}
	return cancelled, nil
}

func (t *memTx) SoftDeleteProducts(ctx context.Context, productUUIDs []uuid.UUID, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range productUUIDs {
		p := t.products[id]
		p.removed = true
		removedAt := at
		p.removedAt = &removedAt
		p.record.Quantity = 0
	}
	return nil
}

func (t *memTx) UpdateProducts(ctx context.Context, entries []catalog.UpdateEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		p := t.products[e.UUID]
		p.record = e.Record
		p.removed = false
		p.removedAt = nil
	}
	return nil
}

func (t *memTx) InsertProducts(ctx context.Context, pharmacyID int64, records []catalog.ProductRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		t.products[uuid.New()] = &memProduct{record: rec}
	}
	return nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, chain, number string) (pharmacy.Pharmacy, error) {
	name, err := pharmacy.CanonicalChainName(chain)
	if err != nil {
		return pharmacy.Pharmacy{}, err
	}
	return pharmacy.Pharmacy{ID: 1, Name: name, Number: number}, nil
}

type stubLocker struct {
	err      error
	acquired int
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, pharmacyID int64) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type stubAudit struct {
	logs []shared.AuditLog
}

func (a *stubAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestEngine(store *memStore, locker *stubLocker, audit *stubAudit) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, stubResolver{}, locker, audit, logger, EngineConfig{})
}

func payload(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

const (
	rowParacetamol = "Paracetamol;Acme;Poland;SN001;5.50;100;550.00;31.12.2025;Лексредства;;;5.00;6.00;DistCo;INT1"
	rowAnalgin     = "Анальгин таб 500мг;Борисов;Беларусь;SN002;1.20;50;60.00;01.06.2027;Лексредства;;;;;;"
)

func TestReconcileInitialLoad(t *testing.T) {
	store := newMemStore()
	locker := &stubLocker{}
	audit := &stubAudit{}
	engine := newTestEngine(store, locker, audit)

	result, err := engine.Reconcile(context.Background(), RunInput{
		Chain:          "Новамедика",
		PharmacyNumber: "12",
		Payload:        payload(rowParacetamol, rowAnalgin),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Added)
	require.Zero(t, result.Updated)
	require.Zero(t, result.Removed)
	require.Len(t, store.products, 2)

	require.Equal(t, 1, locker.acquired)
	require.Equal(t, 1, locker.released)

	require.Len(t, store.uploads, 1)
	require.Equal(t, catalog.UploadStatusCompleted, store.uploads[0].Status)
	require.Len(t, audit.logs, 1)
	require.Equal(t, AuditAction, audit.logs[0].Action)
	require.Equal(t, 2, audit.logs[0].Meta["added"])
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubLocker{}, &stubAudit{})
	input := RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowParacetamol, rowAnalgin)}

	first, err := engine.Reconcile(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 2, first.Added)

	second, err := engine.Reconcile(context.Background(), input)
	require.NoError(t, err)
	require.Zero(t, second.Added)
	require.Zero(t, second.Removed)
	require.Equal(t, 2, second.Updated)
	require.Len(t, store.products, 2)
}

func TestReconcileRemovalCascadesToOrders(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubLocker{}, &stubAudit{})

	first, err := engine.Reconcile(context.Background(), RunInput{
		Chain: "novamedika", PharmacyNumber: "1",
		Payload: payload(rowParacetamol, rowAnalgin),
	})
	require.NoError(t, err)
	require.Equal(t, 2, first.Added)

	var removedID uuid.UUID
	for id, p := range store.products {
		if p.record.Name == "Paracetamol" {
			removedID = id
		}
	}
	store.seedOrder(100, orders.StatusPending, removedID)
	store.seedOrder(101, orders.StatusCompleted, removedID)

	second, err := engine.Reconcile(context.Background(), RunInput{
		Chain: "novamedika", PharmacyNumber: "1",
		Payload: payload(rowAnalgin),
	})
	require.NoError(t, err)
	require.Equal(t, 1, second.Removed)
	require.Equal(t, 1, second.CancelledOrders, "only the active order is cancelled")

	p := store.products[removedID]
	require.True(t, p.removed)
	require.NotNil(t, p.removedAt)
	require.Zero(t, p.record.Quantity)

	pending := store.orders[100]
	require.Equal(t, orders.StatusCancelled, pending.status)
	require.Equal(t, orders.CancelReasonProductRemoved, pending.cancelReason)
	require.Nil(t, pending.productUUID)
	require.Equal(t, "Paracetamol", pending.snapshot.ProductName)

	completed := store.orders[101]
	require.Equal(t, orders.StatusCompleted, completed.status)
	require.Nil(t, completed.productUUID)
	require.Equal(t, "Paracetamol", completed.snapshot.ProductName)
}

func TestReconcileRestoresReappearingProduct(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubLocker{}, &stubAudit{})
	ctx := context.Background()

	_, err := engine.Reconcile(ctx, RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowParacetamol)})
	require.NoError(t, err)
	require.Len(t, store.products, 1)
	var originalID uuid.UUID
	for id := range store.products {
		originalID = id
	}

	removal, err := engine.Reconcile(ctx, RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowAnalgin)})
	require.NoError(t, err)
	require.Equal(t, 1, removal.Removed)
	require.True(t, store.products[originalID].removed)

	restore, err := engine.Reconcile(ctx, RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowParacetamol, rowAnalgin)})
	require.NoError(t, err)
	require.Zero(t, restore.Added, "reappearance restores the original row instead of inserting")
	require.Equal(t, 2, restore.Updated)

	p := store.products[originalID]
	require.False(t, p.removed)
	require.Nil(t, p.removedAt)
	require.Len(t, store.products, 2)
}

func TestReconcileUnknownChain(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubLocker{}, &stubAudit{})

	_, err := engine.Reconcile(context.Background(), RunInput{Chain: "аптека-х", PharmacyNumber: "1", Payload: payload(rowParacetamol)})
	require.ErrorIs(t, err, pharmacy.ErrUnknownChain)
	require.Empty(t, store.uploads, "nothing recorded before the pharmacy resolves")
	require.Empty(t, store.products)
}

func TestReconcileLockedPharmacy(t *testing.T) {
	store := newMemStore()
	locker := &stubLocker{err: shared.ErrRunInProgress}
	engine := newTestEngine(store, locker, &stubAudit{})

	_, err := engine.Reconcile(context.Background(), RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowParacetamol)})
	require.ErrorIs(t, err, shared.ErrRunInProgress)
	require.Empty(t, store.products)
}

func TestReconcileRecordsFailedRun(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubLocker{}, &stubAudit{})
	engine.repo = failingProvider{memStore: store}

	_, err := engine.Reconcile(context.Background(), RunInput{Chain: "novamedika", PharmacyNumber: "1", Payload: payload(rowParacetamol)})
	require.Error(t, err)
	require.Len(t, store.uploads, 1)
	require.Equal(t, catalog.UploadStatusFailed, store.uploads[0].Status)
	require.NotEmpty(t, store.uploads[0].Error)
}

type failingProvider struct {
	*memStore
}

func (f failingProvider) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	return context.DeadlineExceeded
}
