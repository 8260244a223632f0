package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/checkout"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/ledgertest"
	"github.com/meridian-erp/meridian-erp/internal/openingstock"
	"github.com/meridian-erp/meridian-erp/internal/receiving"
)

// world wires the three stock processors over one shared in-memory store so
// a full opening -> receiving -> checkout flow runs against the same ledger.
type world struct {
	store *ledgertest.Store

	mu       sync.Mutex
	nextID   int64
	grns     map[int64]openingstock.GRNRef
	pos      map[int64]receiving.PurchaseOrder
	poLines  map[int64][]receiving.POLine
	rgrns    map[int64]receiving.GRN
	rgrnLns  map[int64][]receiving.GRNLine
	invoices map[int64]checkout.Invoice

	opening   *openingstock.Service
	receiving *receiving.Service
	checkout  *checkout.Service
}

func newWorld() *world {
	w := &world{
		store:    ledgertest.NewStore(),
		grns:     make(map[int64]openingstock.GRNRef),
		pos:      make(map[int64]receiving.PurchaseOrder),
		poLines:  make(map[int64][]receiving.POLine),
		rgrns:    make(map[int64]receiving.GRN),
		rgrnLns:  make(map[int64][]receiving.GRNLine),
		invoices: make(map[int64]checkout.Invoice),
	}
	w.opening = openingstock.NewService(openingRepo{w}, nil, nil, nil)
	w.receiving = receiving.NewService(receivingRepo{w}, nil, nil, nil, nil)
	w.checkout = checkout.NewService(checkoutRepo{w}, nil, nil, nil)
	return w
}

type openingRepo struct{ w *world }

func (r openingRepo) WithTx(ctx context.Context, fn func(context.Context, openingstock.TxRepository) error) error {
	return r.w.store.RunTx(ctx, func(tx *ledgertest.Tx) error {
		return fn(ctx, openingTx{Tx: tx, w: r.w})
	})
}

type openingTx struct {
	*ledgertest.Tx
	w *world
}

func (t openingTx) EnsureOpeningGRN(ctx context.Context, warehouseID int64, notes string) (openingstock.GRNRef, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	if grn, ok := t.w.grns[warehouseID]; ok {
		return grn, nil
	}
	t.w.nextID++
	grn := openingstock.GRNRef{ID: t.w.nextID, Ref: uuid.New(), Number: "GRN-OPEN-E2E"}
	t.w.grns[warehouseID] = grn
	return grn, nil
}

func (t openingTx) InsertOpeningLine(ctx context.Context, grnID int64, row openingstock.Row) error {
	return nil
}

type receivingRepo struct{ w *world }

func (r receivingRepo) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	return r.w.store.RunTx(ctx, func(tx *ledgertest.Tx) error {
		return fn(ctx, receivingTx{Tx: tx, w: r.w})
	})
}

func (r receivingRepo) GetPO(ctx context.Context, id int64) (receiving.PurchaseOrder, []receiving.POLine, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	po, ok := r.w.pos[id]
	if !ok {
		return receiving.PurchaseOrder{}, nil, receiving.ErrNotFound
	}
	return po, append([]receiving.POLine(nil), r.w.poLines[id]...), nil
}

func (r receivingRepo) GetGRN(ctx context.Context, id int64) (receiving.GRN, []receiving.GRNLine, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	grn, ok := r.w.rgrns[id]
	if !ok {
		return receiving.GRN{}, nil, receiving.ErrNotFound
	}
	return grn, append([]receiving.GRNLine(nil), r.w.rgrnLns[id]...), nil
}

func (r receivingRepo) ListOpenGRNs(ctx context.Context, warehouseID int64) ([]receiving.GRN, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var open []receiving.GRN
	for _, grn := range r.w.rgrns {
		if grn.Status != receiving.GRNStatusDraft && grn.Status != receiving.GRNStatusReceiving {
			continue
		}
		if warehouseID != 0 && grn.WarehouseID != warehouseID {
			continue
		}
		open = append(open, grn)
	}
	return open, nil
}

type receivingTx struct {
	*ledgertest.Tx
	w *world
}

func (t receivingTx) CreatePO(ctx context.Context, po receiving.PurchaseOrder) (int64, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.nextID++
	po.ID = t.w.nextID
	t.w.pos[po.ID] = po
	return po.ID, nil
}

func (t receivingTx) InsertPOLine(ctx context.Context, line receiving.POLine) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.poLines[line.POID] = append(t.w.poLines[line.POID], line)
	return nil
}

func (t receivingTx) UpdatePOStatus(ctx context.Context, id int64, status receiving.POStatus) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	po, ok := t.w.pos[id]
	if !ok {
		return receiving.ErrNotFound
	}
	po.Status = status
	t.w.pos[id] = po
	return nil
}

func (t receivingTx) CreateGRN(ctx context.Context, grn receiving.GRN) (int64, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.nextID++
	grn.ID = t.w.nextID
	t.w.rgrns[grn.ID] = grn
	return grn.ID, nil
}

func (t receivingTx) InsertGRNLine(ctx context.Context, line receiving.GRNLine) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.rgrnLns[line.GRNID] = append(t.w.rgrnLns[line.GRNID], line)
	return nil
}

func (t receivingTx) UpdateGRNLine(ctx context.Context, grnID, productID int64, received, damaged int64, remarks string) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	lines := t.w.rgrnLns[grnID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Received = received
			lines[i].Damaged = damaged
			return nil
		}
	}
	return receiving.ErrNotFound
}

func (t receivingTx) UpdateGRNStatus(ctx context.Context, id int64, from, to receiving.GRNStatus) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	grn, ok := t.w.rgrns[id]
	if !ok {
		return receiving.ErrNotFound
	}
	if grn.Status != from {
		return fmt.Errorf("%w: note %d is %s", receiving.ErrInvalidState, id, grn.Status)
	}
	grn.Status = to
	t.w.rgrns[id] = grn
	return nil
}

type checkoutRepo struct{ w *world }

func (r checkoutRepo) WithTx(ctx context.Context, fn func(context.Context, checkout.TxRepository) error) error {
	return r.w.store.RunTx(ctx, func(tx *ledgertest.Tx) error {
		return fn(ctx, checkoutTx{Tx: tx, w: r.w})
	})
}

func (r checkoutRepo) GetInvoice(ctx context.Context, id int64) (checkout.Invoice, []checkout.InvoiceLine, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	inv, ok := r.w.invoices[id]
	if !ok {
		return checkout.Invoice{}, nil, checkout.ErrNotFound
	}
	return inv, nil, nil
}

type checkoutTx struct {
	*ledgertest.Tx
	w *world
}

func (t checkoutTx) CreateInvoice(ctx context.Context, inv checkout.Invoice) (int64, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.nextID++
	inv.ID = t.w.nextID
	t.w.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t checkoutTx) InsertInvoiceLine(ctx context.Context, line checkout.InvoiceLine) error {
	return nil
}

// TestOpeningReceivingCheckoutFlow drives the full stock lifecycle: opening
// balance 100, a receipt of 45 with 5 damaged (usable 40), then a sale of
// 120 against the resulting 140, leaving 20 on hand.
func TestOpeningReceivingCheckoutFlow(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	_, err := w.opening.SetOpeningBalance(ctx, openingstock.Row{ProductID: 1, WarehouseID: 1, Quantity: 100}, 9)
	require.NoError(t, err)
	require.EqualValues(t, 100, w.store.Quantity(1, 1))

	po, err := w.receiving.CreatePurchaseOrder(ctx, receiving.CreatePOInput{
		SupplierID:  1,
		WarehouseID: 1,
		Lines:       []receiving.POLineInput{{ProductID: 1, Ordered: 50}},
	})
	require.NoError(t, err)
	grn, err := w.receiving.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, w.receiving.Begin(ctx, grn.ID))
	require.NoError(t, w.receiving.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 45, Damaged: 5}))

	result, err := w.receiving.Finalize(ctx, grn.ID, 9)
	require.NoError(t, err)
	require.Equal(t, receiving.GRNStatusPartial, result.Status)
	require.EqualValues(t, 140, w.store.Quantity(1, 1))

	receipt, err := w.checkout.Checkout(ctx, checkout.Input{
		CustomerID:  7,
		WarehouseID: 1,
		Items:       []checkout.Line{{ProductID: 1, Quantity: 120}},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)

	require.EqualValues(t, 20, w.store.Quantity(1, 1))
	require.EqualValues(t, w.store.SumDeltas(1, 1), w.store.Quantity(1, 1))

	// A second sale for more than the remainder is the stock-problem path,
	// not a system error.
	_, err = w.checkout.Checkout(ctx, checkout.Input{
		CustomerID:  7,
		WarehouseID: 1,
		Items:       []checkout.Line{{ProductID: 1, Quantity: 21}},
	})
	var short *checkout.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.EqualValues(t, 20, short.Items[0].Available)
	require.EqualValues(t, 20, w.store.Quantity(1, 1))

	movements, err := w.store.ListMovements(ctx, ledger.MovementFilter{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 4)
	require.Equal(t, ledger.KindOpeningBalance, movements[0].Kind)
	require.Equal(t, ledger.KindGoodsReceived, movements[1].Kind)
	require.Equal(t, ledger.KindDamageWriteOff, movements[2].Kind)
	require.Equal(t, ledger.KindSaleDeduction, movements[3].Kind)
}
