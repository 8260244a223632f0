package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/ledgertest"
)

func TestPostKeepsStoreEqualToMovementSum(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostInput{ProductID: 1, WarehouseID: 1, QuantityDelta: 100, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)

	_, err = svc.Post(ctx, ledger.PostInput{ProductID: 1, WarehouseID: 1, QuantityDelta: 40, Kind: ledger.KindGoodsReceived})
	require.NoError(t, err)

	posted, err := svc.Post(ctx, ledger.PostInput{ProductID: 1, WarehouseID: 1, QuantityDelta: -30, Kind: ledger.KindSaleDeduction})
	require.NoError(t, err)
	require.EqualValues(t, 110, posted.NewQuantity)

	require.EqualValues(t, 110, store.Quantity(1, 1))
	require.EqualValues(t, store.SumDeltas(1, 1), store.Quantity(1, 1))
}

func TestNegativeStockRejectedWithoutSideEffect(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostInput{ProductID: 7, WarehouseID: 2, QuantityDelta: 5, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)
	before := store.MovementCount()

	_, err = svc.Post(ctx, ledger.PostInput{ProductID: 7, WarehouseID: 2, QuantityDelta: -6, Kind: ledger.KindSaleDeduction})
	require.ErrorIs(t, err, ledger.ErrNegativeStock)
	require.EqualValues(t, 5, store.Quantity(7, 2))
	require.Equal(t, before, store.MovementCount())
}

func TestDuplicateOpeningBalance(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostInput{ProductID: 3, WarehouseID: 1, QuantityDelta: 10, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)

	_, err = svc.Post(ctx, ledger.PostInput{ProductID: 3, WarehouseID: 1, QuantityDelta: 20, Kind: ledger.KindOpeningBalance})
	require.ErrorIs(t, err, ledger.ErrDuplicateOpeningBalance)
	require.EqualValues(t, 10, store.Quantity(3, 1))
}

func TestPostBatchAllOrNothing(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostInput{ProductID: 1, WarehouseID: 1, QuantityDelta: 10, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)
	_, err = svc.Post(ctx, ledger.PostInput{ProductID: 2, WarehouseID: 1, QuantityDelta: 10, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)
	before := store.MovementCount()

	_, err = svc.PostBatch(ctx, []ledger.PostInput{
		{ProductID: 1, WarehouseID: 1, QuantityDelta: -4, Kind: ledger.KindSaleDeduction},
		{ProductID: 2, WarehouseID: 1, QuantityDelta: -11, Kind: ledger.KindSaleDeduction},
	})
	require.ErrorIs(t, err, ledger.ErrNegativeStock)
	require.Equal(t, before, store.MovementCount())
	require.EqualValues(t, 10, store.Quantity(1, 1))
	require.EqualValues(t, 10, store.Quantity(2, 1))

	results, err := svc.PostBatch(ctx, []ledger.PostInput{
		{ProductID: 2, WarehouseID: 1, QuantityDelta: -3, Kind: ledger.KindSaleDeduction},
		{ProductID: 1, WarehouseID: 1, QuantityDelta: -4, Kind: ledger.KindSaleDeduction},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Results keep caller order even though locks are taken in pair order.
	require.EqualValues(t, 2, results[0].ProductID)
	require.EqualValues(t, 7, store.Quantity(2, 1))
	require.EqualValues(t, 6, store.Quantity(1, 1))
}

func TestCorrectPostsOffsettingAdjustment(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	posted, err := svc.Post(ctx, ledger.PostInput{ProductID: 5, WarehouseID: 1, QuantityDelta: 50, Kind: ledger.KindOpeningBalance})
	require.NoError(t, err)

	correction, err := svc.Correct(ctx, posted.MovementID, 9, "keyed in twice")
	require.NoError(t, err)
	require.EqualValues(t, 0, correction.NewQuantity)

	movements, err := svc.Movements(ctx, ledger.MovementFilter{ProductID: 5, WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, ledger.KindAdjustment, movements[1].Kind)
	require.EqualValues(t, -50, movements[1].QuantityDelta)
}

func TestDamageWriteOffCarriesNoStoreEffect(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.PostInput{ProductID: 4, WarehouseID: 1, QuantityDelta: -2, Kind: ledger.KindDamageWriteOff})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = svc.Post(ctx, ledger.PostInput{ProductID: 4, WarehouseID: 1, QuantityDelta: 0, Kind: ledger.KindDamageWriteOff, Note: "damaged 2 units"})
	require.NoError(t, err)
	require.EqualValues(t, 0, store.Quantity(4, 1))
}

func TestInvalidKindRejected(t *testing.T) {
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil, nil)

	_, err := svc.Post(context.Background(), ledger.PostInput{ProductID: 1, WarehouseID: 1, QuantityDelta: 1, Kind: "TRANSFER"})
	require.ErrorIs(t, err, ledger.ErrInvalidKind)
}
