// Package ledgertest provides in-memory fakes for testing the
// reservation engine and its workflow controllers without a database.
package ledgertest

import (
	"context"
	"sync"

	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/core/tx"
	"retailcore/internal/domain/ledger"
)

type recordKey struct {
	storeID   id.ID
	variantID id.ID
}

// Store holds the shared in-memory state behind FakeRepo and FakeTxManager.
type Store struct {
	mu        sync.Mutex
	records   map[recordKey]entity.StockRecord
	movements []entity.StockMovement

	// Failure injection hooks, called before the write is applied.
	FailOnUpdate func(record *entity.StockRecord) error
	FailOnAppend func(movements []entity.StockMovement) error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: make(map[recordKey]entity.StockRecord)}
}

// Movements returns a copy of the recorded movement trail.
func (s *Store) Movements() []entity.StockMovement {
	out := make([]entity.StockMovement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Record returns the current record for a pair (zero value if absent).
func (s *Store) Record(storeID, variantID id.ID) (entity.StockRecord, bool) {
	rec, ok := s.records[recordKey{storeID, variantID}]
	return rec, ok
}

// Put seeds a record directly, bypassing the engine. For test setup only.
func (s *Store) Put(record entity.StockRecord) {
	s.records[recordKey{record.StoreID, record.VariantID}] = record
}

func (s *Store) snapshot() (map[recordKey]entity.StockRecord, []entity.StockMovement) {
	records := make(map[recordKey]entity.StockRecord, len(s.records))
	for k, v := range s.records {
		records[k] = v
	}
	movements := make([]entity.StockMovement, len(s.movements))
	copy(movements, s.movements)
	return records, movements
}

// FakeRepo implements ledger.Repository against the in-memory store.
// Locking is provided by FakeTxManager, which serializes transactions
// the way row locks serialize concurrent callers in Postgres.
type FakeRepo struct {
	store *Store
}

// NewFakeRepo creates a repository over the store.
func NewFakeRepo(store *Store) *FakeRepo {
	return &FakeRepo{store: store}
}

func (r *FakeRepo) GetRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error) {
	rec, ok := r.store.records[recordKey{storeID, variantID}]
	return rec, ok, nil
}

func (r *FakeRepo) GetRecordForUpdate(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error) {
	rec, ok := r.store.records[recordKey{storeID, variantID}]
	return rec, ok, nil
}

func (r *FakeRepo) CreateRecord(ctx context.Context, record *entity.StockRecord) error {
	if r.store.FailOnUpdate != nil {
		if err := r.store.FailOnUpdate(record); err != nil {
			return err
		}
	}
	r.store.records[recordKey{record.StoreID, record.VariantID}] = *record
	return nil
}

func (r *FakeRepo) UpdateRecord(ctx context.Context, record *entity.StockRecord) error {
	if r.store.FailOnUpdate != nil {
		if err := r.store.FailOnUpdate(record); err != nil {
			return err
		}
	}
	r.store.records[recordKey{record.StoreID, record.VariantID}] = *record
	return nil
}

func (r *FakeRepo) ListByStore(ctx context.Context, storeID id.ID, filter ledger.BalanceFilter) ([]entity.StockRecord, error) {
	var out []entity.StockRecord
	for k, rec := range r.store.records {
		if k.storeID != storeID {
			continue
		}
		if filter.ExcludeZero && rec.Quantity.IsZero() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *FakeRepo) AppendMovements(ctx context.Context, movements []entity.StockMovement) error {
	if r.store.FailOnAppend != nil {
		if err := r.store.FailOnAppend(movements); err != nil {
			return err
		}
	}
	r.store.movements = append(r.store.movements, movements...)
	return nil
}

func (r *FakeRepo) MovementHistory(ctx context.Context, variantID id.ID, filter ledger.MovementFilter) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.store.movements {
		if m.VariantID != variantID {
			continue
		}
		if filter.StoreID != nil && m.StoreID != *filter.StoreID {
			continue
		}
		if filter.MovementType != nil && m.MovementType != *filter.MovementType {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

var _ ledger.Repository = (*FakeRepo)(nil)

type txKey struct{}

// FakeTxManager implements tx.Manager with snapshot-rollback semantics:
// the outermost transaction takes the store lock (serializing concurrent
// callers), snapshots state, and restores it when fn fails. Nested calls
// join the outer transaction, matching the Postgres TxManager behavior.
type FakeTxManager struct {
	store *Store
}

// NewFakeTxManager creates a transaction manager over the store.
func NewFakeTxManager(store *Store) *FakeTxManager {
	return &FakeTxManager{store: store}
}

func (m *FakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	records, movements := m.store.snapshot()
	err := fn(context.WithValue(ctx, txKey{}, true))
	if err != nil {
		m.store.records = records
		m.store.movements = movements
	}
	return err
}

var _ tx.Manager = (*FakeTxManager)(nil)

// NewHarness wires a store, repo and tx manager for tests.
func NewHarness() (*Store, *FakeRepo, *FakeTxManager) {
	store := NewStore()
	return store, NewFakeRepo(store), NewFakeTxManager(store)
}
