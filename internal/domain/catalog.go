package domain

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RequiredColumns are the columns every accepted catalog must carry.
var RequiredColumns = []string{"barcode", "name", "price"}

// Row is a single product record, keyed by column name. Values are kept as
// strings; the CSV file is the source of truth and no numeric normalization
// is applied beyond what the operator typed.
type Row map[string]string

// Catalog is the full product table: an ordered column set plus ordered rows.
// Columns are not a fixed schema — whatever header the remote file carries is
// what the catalog has.
type Catalog struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ParseCSV decodes a UTF-8 CSV stream (header row + data rows) into a Catalog.
// Ragged data rows are padded or truncated to the header width.
func ParseCSV(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: file is empty", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	catalog := &Catalog{Columns: columns, Rows: []Row{}}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}

		row := make(Row, len(columns))
		for i, name := range columns {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		catalog.Rows = append(catalog.Rows, row)
	}

	return catalog, nil
}

// EncodeCSV serializes the catalog back to CSV text: header row first, data
// rows in order, columns in the catalog's current column order. Cells missing
// from a row are written as empty strings.
func (c *Catalog) EncodeCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(c.Columns); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(c.Columns))
	for _, row := range c.Rows {
		for i, name := range c.Columns {
			record[i] = row[name]
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}

	return buf.String(), nil
}

// Filter returns the rows whose string form matches the query: a row is kept
// iff any cell contains the query as a case-insensitive substring. An empty
// query returns all rows unchanged. Order is preserved.
func (c *Catalog) Filter(query string) []Row {
	if query == "" {
		return c.Rows
	}

	needle := strings.ToLower(query)
	matched := []Row{}
	for _, row := range c.Rows {
		if rowMatches(row, c.Columns, needle) {
			matched = append(matched, row)
		}
	}
	return matched
}

// FilterIndices returns the positions in Rows that Filter would keep, in order.
func (c *Catalog) FilterIndices(query string) []int {
	indices := make([]int, 0, len(c.Rows))
	if query == "" {
		for i := range c.Rows {
			indices = append(indices, i)
		}
		return indices
	}

	needle := strings.ToLower(query)
	for i, row := range c.Rows {
		if rowMatches(row, c.Columns, needle) {
			indices = append(indices, i)
		}
	}
	return indices
}

func rowMatches(row Row, columns []string, needle string) bool {
	for _, name := range columns {
		if strings.Contains(strings.ToLower(row[name]), needle) {
			return true
		}
	}
	return false
}

// MissingRequiredColumns returns the required columns absent from the given
// column set, in canonical order. Empty result means the column set is
// acceptable for upload.
func MissingRequiredColumns(columns []string) []string {
	present := make(map[string]bool, len(columns))
	for _, name := range columns {
		present[name] = true
	}

	missing := []string{}
	for _, name := range RequiredColumns {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Stats summarizes a catalog for display. Pointer fields are nil when the
// backing column is absent from the catalog.
type Stats struct {
	TotalProducts int      `json:"total_products"`
	AvgPrice      *float64 `json:"avg_price,omitempty"`
	TotalStock    *int     `json:"total_stock,omitempty"`
	Categories    *int     `json:"categories,omitempty"`
}

// ComputeStats derives display metrics from the catalog: row count, mean
// price, total stock, and distinct category count. Cells that fail numeric
// parsing are skipped; empty category cells are not counted as a category.
func (c *Catalog) ComputeStats() Stats {
	stats := Stats{TotalProducts: len(c.Rows)}

	if c.hasColumn("price") {
		var sum float64
		var n int
		for _, row := range c.Rows {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row["price"]), 64); err == nil {
				sum += v
				n++
			}
		}
		avg := 0.0
		if n > 0 {
			avg = sum / float64(n)
		}
		stats.AvgPrice = &avg
	}

	if c.hasColumn("stock_quantity") {
		var total float64
		for _, row := range c.Rows {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row["stock_quantity"]), 64); err == nil {
				total += v
			}
		}
		totalInt := int(total)
		stats.TotalStock = &totalInt
	}

	if c.hasColumn("category") {
		distinct := make(map[string]bool)
		for _, row := range c.Rows {
			if v := strings.TrimSpace(row["category"]); v != "" {
				distinct[v] = true
			}
		}
		n := len(distinct)
		stats.Categories = &n
	}

	return stats
}

func (c *Catalog) hasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the catalog. The editor flow keeps the pristine
// loaded rows for stats while the edited buffer diverges.
func (c *Catalog) Clone() *Catalog {
	clone := &Catalog{
		Columns: append([]string(nil), c.Columns...),
		Rows:    make([]Row, len(c.Rows)),
	}
	for i, row := range c.Rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		clone.Rows[i] = copied
	}
	return clone
}
