package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	GetQuantity(ctx context.Context, productID, warehouseID int64) (int64, error)
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after committed postings so cached stock
// snapshots can be dropped.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// MeterPort counts committed movements per kind.
type MeterPort interface {
	ObserveMovement(kind string)
}

// Service coordinates ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	meter       MeterPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, audit: audit, invalidator: invalidator}
}

// SetMeter attaches a movement counter. Nil meters are ignored.
func (s *Service) SetMeter(meter MeterPort) {
	s.meter = meter
}

// ObservePosted reports committed movements to the meter. Processors that
// commit through their own repositories call this from their post-commit
// hooks so every kind is counted at exactly one place per flow.
func ObservePosted(meter MeterPort, results []Posted) {
	if meter == nil {
		return
	}
	for _, posted := range results {
		meter.ObserveMovement(string(posted.Kind))
	}
}

// Apply validates and posts a single movement inside the supplied transaction:
// row lock, negative-stock guard, ledger append, store update. Processors that
// manage their own transaction boundary call this directly so the movement and
// their own rows commit or roll back as one unit.
func Apply(ctx context.Context, tx TxLedger, input PostInput) (Posted, error) {
	if input.ProductID <= 0 || input.WarehouseID <= 0 {
		return Posted{}, fmt.Errorf("%w: product and warehouse required", ErrInvalidQuantity)
	}
	if !input.Kind.Valid() {
		return Posted{}, fmt.Errorf("%w: %q", ErrInvalidKind, input.Kind)
	}
	switch input.Kind {
	case KindDamageWriteOff:
		if input.QuantityDelta != 0 {
			return Posted{}, fmt.Errorf("%w: damage write-off carries no store effect", ErrInvalidQuantity)
		}
	case KindOpeningBalance:
		if input.QuantityDelta <= 0 {
			return Posted{}, fmt.Errorf("%w: opening balance must be positive", ErrInvalidQuantity)
		}
		exists, err := tx.HasOpeningBalance(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			return Posted{}, err
		}
		if exists {
			return Posted{}, ErrDuplicateOpeningBalance
		}
	default:
		if input.QuantityDelta == 0 {
			return Posted{}, ErrInvalidQuantity
		}
	}
	if input.ReferenceID != "" {
		if _, err := uuid.Parse(input.ReferenceID); err != nil {
			return Posted{}, fmt.Errorf("ledger: invalid reference id: %w", err)
		}
	}

	record, err := tx.GetStockForUpdate(ctx, input.ProductID, input.WarehouseID)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			return Posted{}, err
		}
		record = StockRecord{ProductID: input.ProductID, WarehouseID: input.WarehouseID}
	}
	newQty := record.Quantity + input.QuantityDelta
	if newQty < 0 {
		return Posted{}, fmt.Errorf("%w: product %d warehouse %d has %d, delta %d",
			ErrNegativeStock, input.ProductID, input.WarehouseID, record.Quantity, input.QuantityDelta)
	}

	movementID, err := tx.InsertMovement(ctx, Movement{
		ProductID:     input.ProductID,
		WarehouseID:   input.WarehouseID,
		QuantityDelta: input.QuantityDelta,
		Kind:          input.Kind,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		BatchNumber:   input.BatchNumber,
		UnitCost:      input.UnitCost,
		ExpiryDate:    input.ExpiryDate,
		Note:          input.Note,
		CreatedBy:     input.ActorID,
	})
	if err != nil {
		return Posted{}, err
	}

	record.Quantity = newQty
	if err := tx.UpsertStock(ctx, record); err != nil {
		return Posted{}, err
	}
	return Posted{MovementID: movementID, ProductID: input.ProductID, WarehouseID: input.WarehouseID, Kind: input.Kind, NewQuantity: newQty}, nil
}

// ApplyBatch posts all inputs inside one transaction, locking stock rows in
// deterministic pair order so concurrent batches cannot deadlock. The first
// failure aborts every input.
func ApplyBatch(ctx context.Context, tx TxLedger, inputs []PostInput) ([]Posted, error) {
	ordered := make([]int, len(inputs))
	for i := range inputs {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ia, ib := inputs[ordered[a]], inputs[ordered[b]]
		if ia.ProductID != ib.ProductID {
			return ia.ProductID < ib.ProductID
		}
		return ia.WarehouseID < ib.WarehouseID
	})
	results := make([]Posted, len(inputs))
	for _, idx := range ordered {
		posted, err := Apply(ctx, tx, inputs[idx])
		if err != nil {
			return nil, err
		}
		results[idx] = posted
	}
	return results, nil
}

// Post commits a single movement as its own atomic unit.
func (s *Service) Post(ctx context.Context, input PostInput) (Posted, error) {
	var posted Posted
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		posted, err = Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return Posted{}, err
	}
	s.afterCommit(ctx, input.ActorID, []Posted{posted})
	return posted, nil
}

// PostBatch commits all movements or none.
func (s *Service) PostBatch(ctx context.Context, inputs []PostInput) ([]Posted, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrInvalidQuantity)
	}
	var results []Posted
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		results, err = ApplyBatch(ctx, tx, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, inputs[0].ActorID, results)
	return results, nil
}

// Correct posts a compensating adjustment with the opposite sign, referencing
// the movement being corrected. History is never mutated.
func (s *Service) Correct(ctx context.Context, movementID int64, actorID int64, note string) (Posted, error) {
	original, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return Posted{}, err
	}
	if original.QuantityDelta == 0 {
		return Posted{}, fmt.Errorf("%w: movement %d has no store effect", ErrInvalidQuantity, movementID)
	}
	refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("CORRECT:%d", movementID)))
	return s.Post(ctx, PostInput{
		ProductID:     original.ProductID,
		WarehouseID:   original.WarehouseID,
		QuantityDelta: -original.QuantityDelta,
		Kind:          KindAdjustment,
		ReferenceType: "MOVEMENT",
		ReferenceID:   refID.String(),
		Note:          note,
		ActorID:       actorID,
	})
}

// Quantity reads current stock for a pair.
func (s *Service) Quantity(ctx context.Context, productID, warehouseID int64) (int64, error) {
	if productID <= 0 || warehouseID <= 0 {
		return 0, fmt.Errorf("%w: product and warehouse required", ErrInvalidQuantity)
	}
	return s.repo.GetQuantity(ctx, productID, warehouseID)
}

// Movements lists ledger entries oldest first.
func (s *Service) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) afterCommit(ctx context.Context, actorID int64, results []Posted) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	ObservePosted(s.meter, results)
	if s.audit == nil {
		return
	}
	for _, posted := range results {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "ledger:post",
			Entity:   "movement",
			EntityID: fmt.Sprintf("%d", posted.MovementID),
			Meta: map[string]any{
				"product_id":   posted.ProductID,
				"warehouse_id": posted.WarehouseID,
				"new_quantity": posted.NewQuantity,
			},
		})
	}
}
