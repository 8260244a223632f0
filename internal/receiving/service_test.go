package receiving_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/ledgertest"
	"github.com/meridian-erp/meridian-erp/internal/receiving"
)

type fakeRepo struct {
	store *ledgertest.Store

	mu       sync.Mutex
	nextID   int64
	pos      map[int64]receiving.PurchaseOrder
	poLines  map[int64][]receiving.POLine
	grns     map[int64]receiving.GRN
	grnLines map[int64][]receiving.GRNLine

	// grnView overrides the status GetGRN reports without touching the
	// stored row, simulating a stale read under concurrent transitions.
	grnView map[int64]receiving.GRNStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		store:    ledgertest.NewStore(),
		pos:      make(map[int64]receiving.PurchaseOrder),
		poLines:  make(map[int64][]receiving.POLine),
		grns:     make(map[int64]receiving.GRN),
		grnLines: make(map[int64][]receiving.GRNLine),
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	return f.store.RunTx(ctx, func(tx *ledgertest.Tx) error {
		return fn(ctx, &fakeTx{Tx: tx, repo: f})
	})
}

func (f *fakeRepo) GetPO(ctx context.Context, id int64) (receiving.PurchaseOrder, []receiving.POLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	po, ok := f.pos[id]
	if !ok {
		return receiving.PurchaseOrder{}, nil, receiving.ErrNotFound
	}
	return po, append([]receiving.POLine(nil), f.poLines[id]...), nil
}

func (f *fakeRepo) GetGRN(ctx context.Context, id int64) (receiving.GRN, []receiving.GRNLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grn, ok := f.grns[id]
	if !ok {
		return receiving.GRN{}, nil, receiving.ErrNotFound
	}
	if view, ok := f.grnView[id]; ok {
		grn.Status = view
	}
	return grn, append([]receiving.GRNLine(nil), f.grnLines[id]...), nil
}

func (f *fakeRepo) ListOpenGRNs(ctx context.Context, warehouseID int64) ([]receiving.GRN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []receiving.GRN
	for _, grn := range f.grns {
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

type fakeTx struct {
	*ledgertest.Tx
	repo *fakeRepo
}

func (t *fakeTx) CreatePO(ctx context.Context, po receiving.PurchaseOrder) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	po.ID = t.repo.nextID
	t.repo.pos[po.ID] = po
	return po.ID, nil
}

func (t *fakeTx) InsertPOLine(ctx context.Context, line receiving.POLine) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.poLines[line.POID] = append(t.repo.poLines[line.POID], line)
	return nil
}

func (t *fakeTx) UpdatePOStatus(ctx context.Context, id int64, status receiving.POStatus) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	po, ok := t.repo.pos[id]
	if !ok {
		return receiving.ErrNotFound
	}
	po.Status = status
	t.repo.pos[id] = po
	return nil
}

func (t *fakeTx) CreateGRN(ctx context.Context, grn receiving.GRN) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	grn.ID = t.repo.nextID
	t.repo.grns[grn.ID] = grn
	return grn.ID, nil
}

func (t *fakeTx) InsertGRNLine(ctx context.Context, line receiving.GRNLine) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.grnLines[line.GRNID] = append(t.repo.grnLines[line.GRNID], line)
	return nil
}

func (t *fakeTx) UpdateGRNLine(ctx context.Context, grnID, productID int64, received, damaged int64, remarks string) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	lines := t.repo.grnLines[grnID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Received = received
			lines[i].Damaged = damaged
			if remarks != "" {
				lines[i].Remarks = remarks
			}
			return nil
		}
	}
	return receiving.ErrNotFound
}

func (t *fakeTx) UpdateGRNStatus(ctx context.Context, id int64, from, to receiving.GRNStatus) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	grn, ok := t.repo.grns[id]
	if !ok {
		return receiving.ErrNotFound
	}
	if grn.Status != from {
		return fmt.Errorf("%w: note %d is %s", receiving.ErrInvalidState, id, grn.Status)
	}
	grn.Status = to
	t.repo.grns[id] = grn
	return nil
}

func newPO(t *testing.T, svc *receiving.Service, ordered int64) receiving.PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), receiving.CreatePOInput{
		SupplierID:  1,
		WarehouseID: 1,
		Lines:       []receiving.POLineInput{{ProductID: 1, Ordered: ordered}},
	})
	require.NoError(t, err)
	return po
}

func TestReceiveFlowPartialWithDamage(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 50)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.Equal(t, receiving.GRNStatusDraft, grn.Status)

	require.NoError(t, svc.Begin(ctx, grn.ID))
	require.NoError(t, svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 45, Damaged: 5}))

	result, err := svc.Finalize(ctx, grn.ID, 9)
	require.NoError(t, err)
	require.Equal(t, receiving.GRNStatusPartial, result.Status)
	require.Len(t, result.Variance, 1)
	require.EqualValues(t, 5, result.Variance[0].Variance)

	// Usable stock rises by received minus damaged; the write-off record
	// contributes nothing to the store.
	require.EqualValues(t, 40, repo.store.Quantity(1, 1))
	movements, err := repo.store.ListMovements(ctx, ledger.MovementFilter{ProductID: 1, WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, ledger.KindGoodsReceived, movements[0].Kind)
	require.EqualValues(t, 40, movements[0].QuantityDelta)
	require.Equal(t, ledger.KindDamageWriteOff, movements[1].Kind)
	require.EqualValues(t, 0, movements[1].QuantityDelta)
}

func TestReceiveFlowCompleteMarksPOReceived(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 20)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Begin(ctx, grn.ID))
	require.NoError(t, svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 20}))

	result, err := svc.Finalize(ctx, grn.ID, 9)
	require.NoError(t, err)
	require.Equal(t, receiving.GRNStatusComplete, result.Status)
	require.EqualValues(t, 0, result.Variance[0].Variance)

	updated, _, err := repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.POStatusReceived, updated.Status)
}

func TestRecordLineRevalidatesQuantities(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 10)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)

	// Entry before RECEIVING is a workflow violation.
	err = svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 5})
	require.ErrorIs(t, err, receiving.ErrInvalidState)

	require.NoError(t, svc.Begin(ctx, grn.ID))

	err = svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 11})
	require.ErrorIs(t, err, receiving.ErrInvalidLine)

	err = svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 5, Damaged: 6})
	require.ErrorIs(t, err, receiving.ErrInvalidLine)

	err = svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 99, Received: 1})
	require.ErrorIs(t, err, receiving.ErrNotFound)

	require.NoError(t, svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 10, Damaged: 10}))
}

func TestFinalizeOnlyFromReceiving(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 10)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, grn.ID, 9)
	require.ErrorIs(t, err, receiving.ErrInvalidState)

	require.NoError(t, svc.Begin(ctx, grn.ID))
	require.NoError(t, svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 10}))
	_, err = svc.Finalize(ctx, grn.ID, 9)
	require.NoError(t, err)

	// Terminal states reject a second finalize.
	_, err = svc.Finalize(ctx, grn.ID, 9)
	require.ErrorIs(t, err, receiving.ErrInvalidState)
}

func TestFinalizeGuardsAgainstConcurrentTransition(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 10)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Begin(ctx, grn.ID))
	require.NoError(t, svc.RecordLine(ctx, grn.ID, receiving.LineInput{ProductID: 1, Received: 10}))

	// Another worker completes the note after our status read but before the
	// update; the transition inside the transaction must refuse.
	repo.mu.Lock()
	stored := repo.grns[grn.ID]
	stored.Status = receiving.GRNStatusComplete
	repo.grns[grn.ID] = stored
	repo.grnView = map[int64]receiving.GRNStatus{grn.ID: receiving.GRNStatusReceiving}
	repo.mu.Unlock()

	_, err = svc.Finalize(ctx, grn.ID, 9)
	require.ErrorIs(t, err, receiving.ErrInvalidState)
	require.EqualValues(t, 0, repo.store.Quantity(1, 1))
}

func TestListOpenTracksWorkflow(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 10)
	grn1, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, grn1.ID))

	grn2, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Begin(ctx, grn2.ID))

	open, err := svc.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, grn2.ID, open[0].ID)

	require.NoError(t, svc.RecordLine(ctx, grn2.ID, receiving.LineInput{ProductID: 1, Received: 10}))
	_, err = svc.Finalize(ctx, grn2.ID, 9)
	require.NoError(t, err)

	open, err = svc.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestCancelOnlyFromDraft(t *testing.T) {
	repo := newFakeRepo()
	svc := receiving.NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	po := newPO(t, svc, 10)
	grn, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, grn.ID))

	grn2, err := svc.Open(ctx, po.ID, 9)
	require.NoError(t, err)
	require.NoError(t, svc.Begin(ctx, grn2.ID))
	require.ErrorIs(t, svc.Cancel(ctx, grn2.ID), receiving.ErrInvalidState)
}
