// Package report shapes an annotated product collection into flat tables.
// It performs no I/O; see package export for the sinks.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/sizes"
)

// Placeholders used instead of blank cells.
const (
	TitleNotFound    = "Title Not Found"
	SKUNotFound      = "SKU Not Found"
	NoVariantsFound  = "No Variants Found"
	AllSizesPresent  = "All Sizes Present"
	NoMockupsFound   = "No Mockups Found"
	HasMockupLabel   = "Has Mockup"
	NoMockupLabel    = "No Mockup"
	SizePresentLabel = "Present"
	SizeMissingLabel = "Missing"

	TimestampLayout = "2006-01-02 15:04:05"
	titleMaxRunes   = 50
)

// Sheet names, in workbook order.
const (
	SheetMain         = "Main Report"
	SheetSummary      = "Summary"
	SheetMissingSizes = "Missing Sizes"
	SheetMockups      = "Mockup Analysis"
	SheetSizeCoverage = "Size Coverage"
)

// ProductRow is one line of the main report.
type ProductRow struct {
	Title          string
	SKU            string
	URL            string
	Variants       string
	MissingSizes   string
	MockupSummary  string
	ImageCount     int
	MockupCount    int
	VariationCount int
}

var productColumns = []string{
	"Product Name", "Product Code", "Product URL", "Available Sizes", "Missing Sizes",
	"Mockups", "Image Count", "Mockup Count", "Total Variations",
}

func (r ProductRow) Record() Row {
	return Row{
		"Product Name":     r.Title,
		"Product Code":     r.SKU,
		"Product URL":      r.URL,
		"Available Sizes":  r.Variants,
		"Missing Sizes":    r.MissingSizes,
		"Mockups":          r.MockupSummary,
		"Image Count":      r.ImageCount,
		"Mockup Count":     r.MockupCount,
		"Total Variations": r.VariationCount,
	}
}

// ProductRows builds one row per product, in collection order.
func ProductRows(products []models.Product) []ProductRow {
	rows := make([]ProductRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, ProductRow{
			Title:          orDefault(p.Title, TitleNotFound),
			SKU:            orDefault(p.SKU, SKUNotFound),
			URL:            p.URL,
			Variants:       joinOr(p.Variants, NoVariantsFound),
			MissingSizes:   joinOr(p.MissingSizes, AllSizesPresent),
			MockupSummary:  mockupSummary(p.MockupCount()),
			ImageCount:     p.ImageCount(),
			MockupCount:    p.MockupCount(),
			VariationCount: p.VariantCount(),
		})
	}
	return rows
}

// Metric is one line of the run summary.
type Metric struct {
	Name  string
	Value any
}

func (m Metric) Record() Row {
	return Row{"Metric": m.Name, "Value": m.Value}
}

var summaryColumns = []string{"Metric", "Value"}

// Summary metric names.
const (
	MetricTotalProducts     = "Total Products"
	MetricProductsWithSKU   = "Products With SKU"
	MetricProductsWithVar   = "Products With Variants"
	MetricProductsMissing   = "Products With Missing Sizes"
	MetricTotalImages       = "Total Images"
	MetricTotalMockups      = "Total Mockups"
	MetricAvgImagesPerProd  = "Average Images/Product"
	MetricMockupRatio       = "Mockup Ratio (%)"
	MetricReportGeneratedAt = "Report Generated At"
)

// Summary computes the run-level metrics. now stamps the report.
func Summary(products []models.Product, now time.Time) []Metric {
	var withSKU, withVariants, withMissing, totalImages, totalMockups int

	for _, p := range products {
		if !models.IsBlank(p.SKU) && p.SKU != SKUNotFound {
			withSKU++
		}
		if len(p.Variants) > 0 {
			withVariants++
		}
		if len(p.MissingSizes) > 0 {
			withMissing++
		}
		totalImages += p.ImageCount()
		totalMockups += p.MockupCount()
	}

	return []Metric{
		{MetricTotalProducts, len(products)},
		{MetricProductsWithSKU, withSKU},
		{MetricProductsWithVar, withVariants},
		{MetricProductsMissing, withMissing},
		{MetricTotalImages, totalImages},
		{MetricTotalMockups, totalMockups},
		{MetricAvgImagesPerProd, sizes.Round2(ratio(totalImages, len(products)))},
		{MetricMockupRatio, sizes.Round2(sizes.Percent(totalMockups, totalImages))},
		{MetricReportGeneratedAt, now.Format(TimestampLayout)},
	}
}

// MissingSizeRow counts, for one catalog size, the products offering it.
type MissingSizeRow struct {
	Size         string
	PresentCount int
	MissingCount int
	MissingRate  float64
}

var missingSizeColumns = []string{"Size", "Products With Size", "Products Missing Size", "Missing Rate (%)"}

func (r MissingSizeRow) Record() Row {
	return Row{
		"Size":                  r.Size,
		"Products With Size":    r.PresentCount,
		"Products Missing Size": r.MissingCount,
		"Missing Rate (%)":      r.MissingRate,
	}
}

// MissingSizeBreakdown builds one row per catalog entry, in catalog order,
// from each product's precomputed missing sizes.
func MissingSizeBreakdown(products []models.Product, catalog []string) []MissingSizeRow {
	rows := make([]MissingSizeRow, 0, len(catalog))
	for _, size := range catalog {
		missing := 0
		for _, p := range products {
			if contains(p.MissingSizes, size) {
				missing++
			}
		}

		rows = append(rows, MissingSizeRow{
			Size:         size,
			PresentCount: len(products) - missing,
			MissingCount: missing,
			MissingRate:  sizes.Round2(sizes.Percent(missing, len(products))),
		})
	}
	return rows
}

// MockupRow summarises one product's images.
type MockupRow struct {
	Title       string
	ImageCount  int
	MockupCount int
	MockupRatio float64
	Status      string
}

var mockupColumns = []string{"Product Name", "Total Images", "Mockup Count", "Mockup Ratio (%)", "Mockup Status"}

func (r MockupRow) Record() Row {
	return Row{
		"Product Name":     r.Title,
		"Total Images":     r.ImageCount,
		"Mockup Count":     r.MockupCount,
		"Mockup Ratio (%)": r.MockupRatio,
		"Mockup Status":    r.Status,
	}
}

func MockupBreakdown(products []models.Product) []MockupRow {
	rows := make([]MockupRow, 0, len(products))
	for _, p := range products {
		status := NoMockupLabel
		if p.MockupCount() > 0 {
			status = HasMockupLabel
		}

		rows = append(rows, MockupRow{
			Title:       TruncateTitle(orDefault(p.Title, TitleNotFound)),
			ImageCount:  p.ImageCount(),
			MockupCount: p.MockupCount(),
			MockupRatio: sizes.Round2(sizes.Percent(p.MockupCount(), p.ImageCount())),
			Status:      status,
		})
	}
	return rows
}

var sizeCoverageColumns = []string{
	"Size", "Products With Size", "Products Without Size", "Total Products", "Existence Rate (%)", "Status",
}

func coverageRecord(r sizes.CoverageRow) Row {
	status := SizeMissingLabel
	if r.WithCount > 0 {
		status = SizePresentLabel
	}
	return Row{
		"Size":                  r.Size,
		"Products With Size":    r.WithCount,
		"Products Without Size": r.WithoutCount,
		"Total Products":        r.TotalProducts,
		"Existence Rate (%)":    r.ExistenceRate,
		"Status":                status,
	}
}

// TruncateTitle keeps the first 50 characters and marks the cut with "...".
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes]) + "..."
}

func mockupSummary(count int) string {
	switch count {
	case 0:
		return NoMockupsFound
	case 1:
		return "1 mockup"
	default:
		return fmt.Sprintf("%d mockups", count)
	}
}

func orDefault(s, placeholder string) string {
	if models.IsBlank(s) {
		return placeholder
	}
	return s
}

func joinOr(values []string, placeholder string) string {
	if len(values) == 0 {
		return placeholder
	}
	return strings.Join(values, ", ")
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
