// Package ledgertest provides a mutex-serialized in-memory ledger store for
// service tests. Transactions see committed state, mutate a scratch copy, and
// either commit atomically or leave the store untouched.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

type pairKey string

func key(productID, warehouseID int64) pairKey {
	return pairKey(fmt.Sprintf("%d:%d", productID, warehouseID))
}

// Store is an in-memory stand-in for the PostgreSQL ledger repository.
type Store struct {
	mu        sync.Mutex
	stock     map[pairKey]ledger.StockRecord
	movements []ledger.Movement
	nextID    int64
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{stock: make(map[pairKey]ledger.StockRecord)}
}

// Tx is the transactional view handed to callbacks.
type Tx struct {
	store     *Store
	stock     map[pairKey]ledger.StockRecord
	movements []ledger.Movement
	nextID    int64
}

// WithTx serializes transactions with a mutex, mirroring row-locked commits.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxLedger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.begin()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// RunTx exposes the same transaction mechanics for fakes composed by other
// packages (checkout, receiving, opening stock).
func (s *Store) RunTx(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.begin()
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) begin() *Tx {
	tx := &Tx{store: s, stock: make(map[pairKey]ledger.StockRecord, len(s.stock)), nextID: s.nextID}
	for k, v := range s.stock {
		tx.stock[k] = v
	}
	return tx
}

func (s *Store) commit(tx *Tx) {
	s.stock = tx.stock
	s.movements = append(s.movements, tx.movements...)
	s.nextID = tx.nextID
}

// GetQuantity implements ledger.RepositoryPort.
func (s *Store) GetQuantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[key(productID, warehouseID)].Quantity, nil
}

// GetMovement implements ledger.RepositoryPort.
func (s *Store) GetMovement(ctx context.Context, id int64) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return ledger.Movement{}, ledger.ErrMovementNotFound
}

// ListMovements implements ledger.RepositoryPort.
func (s *Store) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []ledger.Movement
	for _, m := range s.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if m.ID <= filter.AfterID {
			continue
		}
		result = append(result, m)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Quantity reads committed stock without error plumbing, for assertions.
func (s *Store) Quantity(productID, warehouseID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[key(productID, warehouseID)].Quantity
}

// MovementCount reports the number of committed movements.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movements)
}

// SumDeltas recomputes the signed movement sum for a pair, for invariant checks.
func (s *Store) SumDeltas(productID, warehouseID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, m := range s.movements {
		if m.ProductID == productID && m.WarehouseID == warehouseID {
			sum += m.QuantityDelta
		}
	}
	return sum
}

// GetStockForUpdate implements ledger.TxLedger.
func (t *Tx) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (ledger.StockRecord, error) {
	if rec, ok := t.stock[key(productID, warehouseID)]; ok {
		return rec, nil
	}
	return ledger.StockRecord{ProductID: productID, WarehouseID: warehouseID}, ledger.ErrStockNotFound
}

// UpsertStock implements ledger.TxLedger.
func (t *Tx) UpsertStock(ctx context.Context, record ledger.StockRecord) error {
	t.stock[key(record.ProductID, record.WarehouseID)] = record
	return nil
}

// InsertMovement implements ledger.TxLedger.
func (t *Tx) InsertMovement(ctx context.Context, m ledger.Movement) (int64, error) {
	if m.Kind == ledger.KindOpeningBalance {
		exists, _ := t.HasOpeningBalance(ctx, m.ProductID, m.WarehouseID)
		if exists {
			return 0, ledger.ErrDuplicateOpeningBalance
		}
	}
	t.nextID++
	m.ID = t.nextID
	t.movements = append(t.movements, m)
	return m.ID, nil
}

// HasOpeningBalance implements ledger.TxLedger.
func (t *Tx) HasOpeningBalance(ctx context.Context, productID, warehouseID int64) (bool, error) {
	for _, m := range t.store.movements {
		if m.ProductID == productID && m.WarehouseID == warehouseID && m.Kind == ledger.KindOpeningBalance {
			return true, nil
		}
	}
	for _, m := range t.movements {
		if m.ProductID == productID && m.WarehouseID == warehouseID && m.Kind == ledger.KindOpeningBalance {
			return true, nil
		}
	}
	return false, nil
}
