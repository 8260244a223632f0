package openingstock

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// RefChecker verifies that referenced products and warehouses exist.
type RefChecker interface {
	CheckRefs(ctx context.Context, productID, warehouseID int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// InvalidatorPort is notified after committed postings.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service initialises opening balances in manual and bulk modes. Both modes
// reduce to the same primitive: claim the (product, warehouse) pair, attach
// the entry to the warehouse's opening GRN, post one positive movement.
type Service struct {
	repo        RepositoryPort
	refs        RefChecker
	audit       AuditPort
	invalidator InvalidatorPort
	meter       ledger.MeterPort
}

// NewService constructs the initializer.
func NewService(repo RepositoryPort, refs RefChecker, audit AuditPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, refs: refs, audit: audit, invalidator: invalidator}
}

// SetMeter attaches a movement counter. Nil meters are ignored.
func (s *Service) SetMeter(meter ledger.MeterPort) {
	s.meter = meter
}

// SetOpeningBalance applies one opening row. Fails with
// ledger.ErrDuplicateOpeningBalance when the pair is already initialised and
// ledger.ErrInvalidQuantity when quantity is not positive; either way no
// partial write escapes.
func (s *Service) SetOpeningBalance(ctx context.Context, row Row, actorID int64) (string, error) {
	if row.Quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", ledger.ErrInvalidQuantity)
	}
	if s.refs != nil {
		if err := s.refs.CheckRefs(ctx, row.ProductID, row.WarehouseID); err != nil {
			return "", err
		}
	}
	var grn GRNRef
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.EnsureOpeningGRN(ctx, row.WarehouseID, "")
		if err != nil {
			return err
		}
		if _, err := ledger.Apply(ctx, tx, postInput(row, grn, actorID)); err != nil {
			return err
		}
		return tx.InsertOpeningLine(ctx, grn.ID, row)
	})
	if err != nil {
		return "", err
	}
	s.afterCommit(ctx, actorID, grn, 1)
	return grn.Number, nil
}

// SubmitManual posts all reviewed lines of one warehouse as a single batch.
// Any invalid line rejects the whole submission before a movement is written.
func (s *Service) SubmitManual(ctx context.Context, input ManualInput) (string, error) {
	if input.WarehouseID <= 0 || len(input.Items) == 0 {
		return "", fmt.Errorf("%w: warehouse and at least one item required", ErrValidation)
	}
	seen := make(map[int64]struct{}, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return "", fmt.Errorf("%w: product %d quantity must be positive", ledger.ErrInvalidQuantity, item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return "", fmt.Errorf("%w: product %d listed twice", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		if s.refs != nil {
			if err := s.refs.CheckRefs(ctx, item.ProductID, input.WarehouseID); err != nil {
				return "", err
			}
		}
	}

	var grn GRNRef
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		grn, err = tx.EnsureOpeningGRN(ctx, input.WarehouseID, input.Notes)
		if err != nil {
			return err
		}
		inputs := make([]ledger.PostInput, 0, len(input.Items))
		for _, item := range input.Items {
			inputs = append(inputs, postInput(manualRow(input.WarehouseID, item), grn, input.ActorID))
		}
		if _, err := ledger.ApplyBatch(ctx, tx, inputs); err != nil {
			return err
		}
		for _, item := range input.Items {
			if err := tx.InsertOpeningLine(ctx, grn.ID, manualRow(input.WarehouseID, item)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.afterCommit(ctx, input.ActorID, grn, len(input.Items))
	return grn.Number, nil
}

// ImportBulk processes rows independently: one row's failure is recorded in
// its result and does not abort the remaining rows. Rows arrive pre-filtered,
// so every row here counts toward the totals.
func (s *Service) ImportBulk(ctx context.Context, rows []Row, actorID int64) (BulkResult, error) {
	if len(rows) == 0 {
		return BulkResult{}, ErrEmptyFile
	}
	result := BulkResult{Total: len(rows), Results: make([]RowResult, 0, len(rows))}
	for i, row := range rows {
		index := row.SourceRow
		if index == 0 {
			index = i + 1
		}
		if _, err := s.SetOpeningBalance(ctx, row, actorID); err != nil {
			if ctx.Err() != nil {
				return BulkResult{}, ctx.Err()
			}
			result.Failed++
			result.Results = append(result.Results, RowResult{Row: index, Success: false, Message: rowMessage(err)})
			continue
		}
		result.Successful++
		result.Results = append(result.Results, RowResult{Row: index, Success: true})
	}
	return result, nil
}

func postInput(row Row, grn GRNRef, actorID int64) ledger.PostInput {
	return ledger.PostInput{
		ProductID:     row.ProductID,
		WarehouseID:   row.WarehouseID,
		QuantityDelta: row.Quantity,
		Kind:          ledger.KindOpeningBalance,
		ReferenceType: "GRN",
		ReferenceID:   grn.Ref.String(),
		BatchNumber:   row.BatchNumber,
		UnitCost:      row.UnitCost,
		ExpiryDate:    row.ExpiryDate,
		Note:          fmt.Sprintf("opening stock %s", grn.Number),
		ActorID:       actorID,
	}
}

func manualRow(warehouseID int64, item ManualLine) Row {
	return Row{
		ProductID:   item.ProductID,
		WarehouseID: warehouseID,
		Quantity:    item.Quantity,
		BatchNumber: item.BatchNumber,
		UnitCost:    item.UnitCost,
		ExpiryDate:  item.ExpiryDate,
	}
}

// rowMessage keeps bulk results human-readable without leaking storage noise.
func rowMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrDuplicateOpeningBalance):
		return "opening balance already set"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "quantity must be positive"
	default:
		return err.Error()
	}
}

func (s *Service) afterCommit(ctx context.Context, actorID int64, grn GRNRef, lines int) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	if s.meter != nil {
		for i := 0; i < lines; i++ {
			s.meter.ObserveMovement(string(ledger.KindOpeningBalance))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "openingstock:post",
			Entity:   "grn",
			EntityID: grn.Number,
			Meta:     map[string]any{"lines": lines},
		})
	}
}
