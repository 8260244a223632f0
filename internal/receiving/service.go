package receiving

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	GetGRN(ctx context.Context, id int64) (GRN, []GRNLine, error)
	ListOpenGRNs(ctx context.Context, warehouseID int64) ([]GRN, error)
}

// RefChecker verifies that referenced products and warehouses exist.
type RefChecker interface {
	CheckRefs(ctx context.Context, productID, warehouseID int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards finalize against double submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// InvalidatorPort is notified after committed postings.
type InvalidatorPort interface {
	Bump(ctx context.Context) error
}

// Service drives the goods-received workflow: open a note from a purchase
// order, record per-line quantities while RECEIVING, then finalize into
// ledger movements in a single transaction.
type Service struct {
	repo        RepositoryPort
	refs        RefChecker
	audit       AuditPort
	idempotency IdempotencyPort
	invalidator InvalidatorPort
	meter       ledger.MeterPort
}

// NewService constructs the receiving service.
func NewService(repo RepositoryPort, refs RefChecker, audit AuditPort, idem IdempotencyPort, invalidator InvalidatorPort) *Service {
	return &Service{repo: repo, refs: refs, audit: audit, idempotency: idem, invalidator: invalidator}
}

// SetMeter attaches a movement counter. Nil meters are ignored.
func (s *Service) SetMeter(meter ledger.MeterPort) {
	s.meter = meter
}

// CreatePOInput describes a purchase order with ordered lines.
type CreatePOInput struct {
	Number       string         `json:"number,omitempty"`
	SupplierID   int64          `json:"supplier_id" validate:"required,gt=0"`
	WarehouseID  int64          `json:"warehouse_id" validate:"required,gt=0"`
	ExpectedDate time.Time      `json:"expected_date,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Lines        []POLineInput  `json:"lines" validate:"required,min=1,dive"`
}

// POLineInput is one ordered item.
type POLineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Ordered   int64           `json:"ordered" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost,omitempty"`
}

// CreatePurchaseOrder persists PO header and lines.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.Ordered <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: product %d ordered must be positive", ErrValidation, line.ProductID)
		}
		if s.refs != nil {
			if err := s.refs.CheckRefs(ctx, line.ProductID, input.WarehouseID); err != nil {
				return PurchaseOrder{}, err
			}
		}
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		WarehouseID:  input.WarehouseID,
		Status:       POStatusOpen,
		ExpectedDate: defaultTime(input.ExpectedDate),
		Notes:        input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			if err := tx.InsertPOLine(ctx, POLine{POID: poID, ProductID: line.ProductID, Ordered: line.Ordered, UnitCost: line.UnitCost}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, 0, "receiving:po_create", "purchase_order", fmt.Sprintf("%d", po.ID), map[string]any{"number": po.Number})
	return po, nil
}

// GetPurchaseOrder returns a PO with its lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, id)
}

// GetGRN returns a note with its lines.
func (s *Service) GetGRN(ctx context.Context, id int64) (GRN, []GRNLine, error) {
	return s.repo.GetGRN(ctx, id)
}

// ListOpen returns notes still in DRAFT or RECEIVING, optionally scoped to
// one warehouse.
func (s *Service) ListOpen(ctx context.Context, warehouseID int64) ([]GRN, error) {
	return s.repo.ListOpenGRNs(ctx, warehouseID)
}

// Open creates a DRAFT note from a purchase order, copying the ordered
// quantities as the expectation each line is checked against.
func (s *Service) Open(ctx context.Context, poID int64, actorID int64) (GRN, error) {
	po, lines, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return GRN{}, err
	}
	if po.Status != POStatusOpen {
		return GRN{}, fmt.Errorf("%w: purchase order %s is %s", ErrInvalidState, po.Number, po.Status)
	}
	grn := GRN{
		Ref:         uuid.New(),
		Number:      generateNumber("GRN"),
		POID:        po.ID,
		SupplierID:  po.SupplierID,
		WarehouseID: po.WarehouseID,
		Status:      GRNStatusDraft,
		Source:      SourcePurchase,
		ReceivedAt:  time.Now(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for _, line := range lines {
			if err := tx.InsertGRNLine(ctx, GRNLine{GRNID: grnID, ProductID: line.ProductID, Ordered: line.Ordered, UnitCost: line.UnitCost}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GRN{}, err
	}
	s.recordAudit(ctx, actorID, "receiving:grn_open", "grn", grn.Number, map[string]any{"po": po.Number})
	return grn, nil
}

// Begin moves a DRAFT note into RECEIVING so lines can be entered.
func (s *Service) Begin(ctx context.Context, grnID int64) error {
	grn, _, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusDraft {
		return fmt.Errorf("%w: note %s is %s", ErrInvalidState, grn.Number, grn.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusDraft, GRNStatusReceiving)
	})
}

// Cancel discards a note that never started receiving.
func (s *Service) Cancel(ctx context.Context, grnID int64) error {
	grn, _, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusDraft {
		return fmt.Errorf("%w: note %s is %s", ErrInvalidState, grn.Number, grn.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusDraft, GRNStatusCancelled)
	})
}

// RecordLine re-validates and stores one line's received/damaged counts.
// Client-side clamps are not trusted: 0 <= damaged <= received <= ordered is
// enforced here again.
func (s *Service) RecordLine(ctx context.Context, grnID int64, input LineInput) error {
	grn, lines, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusReceiving {
		return fmt.Errorf("%w: note %s is %s", ErrInvalidState, grn.Number, grn.Status)
	}
	line, ok := findLine(lines, input.ProductID)
	if !ok {
		return fmt.Errorf("%w: product %d not on note %s", ErrNotFound, input.ProductID, grn.Number)
	}
	if err := validateLine(line.Ordered, input.Received, input.Damaged); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNLine(ctx, grnID, input.ProductID, input.Received, input.Damaged, input.Remarks)
	})
}

// ReportDamage adjusts a line's damaged count before finalize. It only
// changes the usable-quantity computation, never the ledger directly.
func (s *Service) ReportDamage(ctx context.Context, grnID, productID, damaged int64, remarks string) error {
	grn, lines, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusReceiving {
		return fmt.Errorf("%w: note %s is %s", ErrInvalidState, grn.Number, grn.Status)
	}
	line, ok := findLine(lines, productID)
	if !ok {
		return fmt.Errorf("%w: product %d not on note %s", ErrNotFound, productID, grn.Number)
	}
	if err := validateLine(line.Ordered, line.Received, damaged); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNLine(ctx, grnID, productID, line.Received, damaged, remarks)
	})
}

// Finalize closes the note and posts its movements in one transaction: every
// line with usable quantity gets a goods-received movement of
// +(received - damaged); every damaged count gets a zero-delta write-off
// record for reporting. PARTIAL when any line received short of ordered.
func (s *Service) Finalize(ctx context.Context, grnID int64, actorID int64) (FinalizeResult, error) {
	grn, lines, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if grn.Status != GRNStatusReceiving {
		return FinalizeResult{}, fmt.Errorf("%w: note %s is %s", ErrInvalidState, grn.Number, grn.Status)
	}
	for _, line := range lines {
		if err := validateLine(line.Ordered, line.Received, line.Damaged); err != nil {
			return FinalizeResult{}, err
		}
	}

	status := GRNStatusComplete
	variance := make([]LineVariance, 0, len(lines))
	inputs := make([]ledger.PostInput, 0, len(lines)*2)
	for _, line := range lines {
		if line.Received < line.Ordered {
			status = GRNStatusPartial
		}
		variance = append(variance, LineVariance{
			ProductID: line.ProductID,
			Ordered:   line.Ordered,
			Received:  line.Received,
			Variance:  line.Ordered - line.Received,
		})
		if usable := line.Received - line.Damaged; usable > 0 {
			inputs = append(inputs, ledger.PostInput{
				ProductID:     line.ProductID,
				WarehouseID:   grn.WarehouseID,
				QuantityDelta: usable,
				Kind:          ledger.KindGoodsReceived,
				ReferenceType: "GRN",
				ReferenceID:   grn.Ref.String(),
				UnitCost:      line.UnitCost,
				Note:          fmt.Sprintf("GRN %s", grn.Number),
				ActorID:       actorID,
			})
		}
		if line.Damaged > 0 {
			inputs = append(inputs, ledger.PostInput{
				ProductID:     line.ProductID,
				WarehouseID:   grn.WarehouseID,
				QuantityDelta: 0,
				Kind:          ledger.KindDamageWriteOff,
				ReferenceType: "GRN",
				ReferenceID:   grn.Ref.String(),
				Note:          fmt.Sprintf("GRN %s damaged %d", grn.Number, line.Damaged),
				ActorID:       actorID,
			})
		}
	}

	key := fmt.Sprintf("GRN:%s", grn.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "receiving.finalize"); err != nil {
			return FinalizeResult{}, err
		}
		inserted = true
	}
	var results []ledger.Posted
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateGRNStatus(ctx, grnID, GRNStatusReceiving, status); err != nil {
			return err
		}
		if grn.POID != 0 && status == GRNStatusComplete {
			if err := tx.UpdatePOStatus(ctx, grn.POID, POStatusReceived); err != nil {
				return err
			}
		}
		var err error
		results, err = ledger.ApplyBatch(ctx, tx, inputs)
		return err
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return FinalizeResult{}, err
	}
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
	ledger.ObservePosted(s.meter, results)
	s.recordAudit(ctx, actorID, "receiving:grn_finalize", "grn", grn.Number, map[string]any{"status": status, "movements": len(inputs)})
	return FinalizeResult{GRNID: grnID, Number: grn.Number, Status: status, Variance: variance}, nil
}

func validateLine(ordered, received, damaged int64) error {
	if received < 0 || damaged < 0 {
		return fmt.Errorf("%w: quantities must be non-negative", ErrInvalidLine)
	}
	if damaged > received {
		return fmt.Errorf("%w: damaged %d exceeds received %d", ErrInvalidLine, damaged, received)
	}
	if received > ordered {
		return fmt.Errorf("%w: received %d exceeds ordered %d", ErrInvalidLine, received, ordered)
	}
	return nil
}

func findLine(lines []GRNLine, productID int64) (GRNLine, bool) {
	for _, line := range lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return GRNLine{}, false
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
