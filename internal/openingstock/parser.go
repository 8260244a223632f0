package openingstock

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Column aliases accepted in the header row. Spreadsheet exports are rarely
// consistent, so several spellings map to the same field.
var headerAliases = map[string]string{
	"product_id":   "product_id",
	"product":      "product_id",
	"sku_id":       "product_id",
	"item_id":      "product_id",
	"warehouse_id": "warehouse_id",
	"warehouse":    "warehouse_id",
	"location_id":  "warehouse_id",
	"quantity":     "quantity",
	"qty":          "quantity",
	"opening_qty":  "quantity",
	"stock":        "quantity",
	"batch_number": "batch_number",
	"batch":        "batch_number",
	"lot":          "batch_number",
	"unit_cost":    "unit_cost",
	"cost":         "unit_cost",
	"price":        "unit_cost",
	"expiry_date":  "expiry_date",
	"expiry":       "expiry_date",
	"expires":      "expiry_date",
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05"}

// ParseDelimited reads a delimited-text upload into opening-balance rows.
// The first row is a header mapping column names to fields; the delimiter
// (comma, semicolon, or tab) is sniffed from it. Rows missing product,
// warehouse, or quantity are dropped here, before processing, and are not
// counted as failures.
func ParseDelimited(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("openingstock: read upload: %w", err)
	}
	data = stripBOM(data)
	if !utf8.Valid(data) {
		// Legacy spreadsheet exports tend to be Windows-1252.
		data, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return nil, fmt.Errorf("openingstock: decode upload: %w", err)
		}
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("openingstock: parse upload: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyFile
	}

	columns := mapHeader(records[0])
	if columns["product_id"] < 0 || columns["warehouse_id"] < 0 || columns["quantity"] < 0 {
		return nil, fmt.Errorf("%w: header must name product, warehouse, and quantity columns", ErrValidation)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		row, ok := parseRecord(record, columns)
		if !ok {
			continue
		}
		row.SourceRow = i + 1
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func mapHeader(header []string) map[string]int {
	columns := map[string]int{
		"product_id":   -1,
		"warehouse_id": -1,
		"quantity":     -1,
		"batch_number": -1,
		"unit_cost":    -1,
		"expiry_date":  -1,
	}
	for i, name := range header {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
		if field, ok := headerAliases[key]; ok && columns[field] < 0 {
			columns[field] = i
		}
	}
	return columns
}

func parseRecord(record []string, columns map[string]int) (Row, bool) {
	productID, ok := parseID(field(record, columns["product_id"]))
	if !ok {
		return Row{}, false
	}
	warehouseID, ok := parseID(field(record, columns["warehouse_id"]))
	if !ok {
		return Row{}, false
	}
	qtyRaw := field(record, columns["quantity"])
	if qtyRaw == "" {
		return Row{}, false
	}
	quantity, err := strconv.ParseInt(qtyRaw, 10, 64)
	if err != nil {
		return Row{}, false
	}

	row := Row{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		BatchNumber: field(record, columns["batch_number"]),
	}
	if raw := field(record, columns["unit_cost"]); raw != "" {
		if cost, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ".")); err == nil {
			row.UnitCost = cost
		}
	}
	if raw := field(record, columns["expiry_date"]); raw != "" {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				row.ExpiryDate = &parsed
				break
			}
		}
	}
	return row, true
}

func parseID(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func sniffDelimiter(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	switch {
	case strings.Count(line, ";") > strings.Count(line, ","):
		return ';'
	case strings.Contains(line, "\t"):
		return '\t'
	default:
		return ','
	}
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
