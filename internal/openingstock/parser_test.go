package openingstock

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDelimitedHeaderAliases(t *testing.T) {
	input := "Product;Warehouse;Qty;Batch;Cost;Expiry\n" +
		"1;2;100;B-01;12.50;2027-01-31\n" +
		"3;2;40;;;\n"

	rows, err := ParseDelimited(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.EqualValues(t, 1, rows[0].ProductID)
	require.EqualValues(t, 2, rows[0].WarehouseID)
	require.EqualValues(t, 100, rows[0].Quantity)
	require.Equal(t, "B-01", rows[0].BatchNumber)
	require.Equal(t, "12.5", rows[0].UnitCost.String())
	require.NotNil(t, rows[0].ExpiryDate)
	require.Equal(t, 1, rows[0].SourceRow)
	require.Equal(t, 2, rows[1].SourceRow)
}

func TestParseDelimitedDropsIncompleteRows(t *testing.T) {
	input := "product_id,warehouse_id,quantity\n" +
		"1,1,50\n" +
		",1,30\n" + // missing product: dropped
		"2,,30\n" + // missing warehouse: dropped
		"3,1,\n" + // missing quantity: dropped
		"4,1,abc\n" + // unparsable quantity: dropped
		"5,1,0\n" // zero quantity: kept, fails later as a row result

	rows, err := ParseDelimited(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.EqualValues(t, 1, rows[0].ProductID)
	require.EqualValues(t, 5, rows[1].ProductID)
	require.EqualValues(t, 0, rows[1].Quantity)
	require.Equal(t, 6, rows[1].SourceRow)
}

func TestParseDelimitedRequiresKnownHeader(t *testing.T) {
	_, err := ParseDelimited(strings.NewReader("a,b,c\n1,2,3\n"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = ParseDelimited(strings.NewReader("product_id,warehouse_id,quantity\n"))
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseDelimitedBOMAndTabs(t *testing.T) {
	input := "\xEF\xBB\xBFproduct_id\twarehouse_id\tquantity\n7\t1\t12\n"
	rows, err := ParseDelimited(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 7, rows[0].ProductID)
	require.EqualValues(t, 12, rows[0].Quantity)
}
