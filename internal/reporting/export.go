package reporting

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

// WriteStockCSV serialises a snapshot to CSV.
func WriteStockCSV(w io.Writer, levels []StockLevel) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Product ID", "Warehouse ID", "Quantity"}); err != nil {
		return err
	}
	for _, level := range levels {
		if err := writer.Write([]string{
			strconv.FormatInt(level.ProductID, 10),
			strconv.FormatInt(level.WarehouseID, 10),
			strconv.FormatInt(level.Quantity, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMovementsCSV emits movement history as CSV, oldest first.
func WriteMovementsCSV(w io.Writer, movements []ledger.Movement) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"ID", "Product ID", "Warehouse ID", "Delta", "Kind", "Reference", "Created At"}); err != nil {
		return err
	}
	for _, m := range movements {
		if err := writer.Write([]string{
			strconv.FormatInt(m.ID, 10),
			strconv.FormatInt(m.ProductID, 10),
			strconv.FormatInt(m.WarehouseID, 10),
			strconv.FormatInt(m.QuantityDelta, 10),
			string(m.Kind),
			m.ReferenceID,
			m.CreatedAt.Format("2006-01-02 15:04:05"),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
