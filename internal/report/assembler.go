package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/sizes"
)

// ErrInvalidCollection is returned when input that should be a list of
// product records is not one.
var ErrInvalidCollection = errors.New("product collection must be a list of product records")

// Report is the complete set of tables for one run.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Tables      []Table       `json:"tables"`
	Details     []DetailSheet `json:"details,omitempty"`
}

// Table returns the table with the given name.
func (r *Report) Table(name string) (Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Assembler turns a product collection into a Report. The catalog is fixed
// for the lifetime of the Assembler.
type Assembler struct {
	catalog sizes.Catalog
	now     func() time.Time
}

func NewAssembler(catalog sizes.Catalog) *Assembler {
	return &Assembler{
		catalog: append(sizes.Catalog(nil), catalog...),
		now:     time.Now,
	}
}

// WithClock returns a copy of the assembler that stamps reports using now.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	clone := *a
	clone.now = now
	return &clone
}

// Build produces the five report tables in workbook order.
func (a *Assembler) Build(products []models.Product) *Report {
	generatedAt := a.now()

	return &Report{
		GeneratedAt: generatedAt,
		Tables: []Table{
			a.productTable(products),
			a.summaryTable(products, generatedAt),
			a.missingSizeTable(products),
			a.mockupTable(products),
			a.sizeCoverageTable(products),
		},
	}
}

// BuildDetailed is Build plus one detail sheet per product.
func (a *Assembler) BuildDetailed(products []models.Product) *Report {
	r := a.Build(products)
	r.Details = ProductDetails(products)
	return r
}

func (a *Assembler) productTable(products []models.Product) Table {
	t := Table{Name: SheetMain, Columns: productColumns, Rows: make([]Row, 0, len(products))}
	for _, row := range ProductRows(products) {
		t.Rows = append(t.Rows, row.Record())
	}
	return t
}

func (a *Assembler) summaryTable(products []models.Product, now time.Time) Table {
	t := Table{Name: SheetSummary, Columns: summaryColumns}
	for _, m := range Summary(products, now) {
		t.Rows = append(t.Rows, m.Record())
	}
	return t
}

func (a *Assembler) missingSizeTable(products []models.Product) Table {
	t := Table{Name: SheetMissingSizes, Columns: missingSizeColumns, Rows: make([]Row, 0, len(a.catalog))}
	for _, row := range MissingSizeBreakdown(products, a.catalog) {
		t.Rows = append(t.Rows, row.Record())
	}
	return t
}

func (a *Assembler) mockupTable(products []models.Product) Table {
	t := Table{Name: SheetMockups, Columns: mockupColumns, Rows: make([]Row, 0, len(products))}
	for _, row := range MockupBreakdown(products) {
		t.Rows = append(t.Rows, row.Record())
	}
	return t
}

func (a *Assembler) sizeCoverageTable(products []models.Product) Table {
	t := Table{Name: SheetSizeCoverage, Columns: sizeCoverageColumns, Rows: make([]Row, 0)}
	for _, row := range sizes.CoverageTable(products) {
		t.Rows = append(t.Rows, coverageRecord(row))
	}
	return t
}

// DecodeProducts parses a JSON dump into a product collection. Anything other
// than an array of JSON objects is rejected with ErrInvalidCollection.
func DecodeProducts(data []byte) ([]models.Product, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: got null", ErrInvalidCollection)
	}

	products := make([]models.Product, 0, len(raw))
	for i, item := range raw {
		if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrInvalidCollection, i)
		}

		var p models.Product
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidCollection, i, err)
		}
		products = append(products, p)
	}

	return products, nil
}
