package sizes

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/maltedev/storefront-auditor/internal/models"
)

const unknownTitle = "Unknown"

// ProductRef identifies a listing that lacks a discovered size.
type ProductRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Coverage describes how many products of a run carry one discovered size.
type Coverage struct {
	Size            string       `json:"size"`
	TotalProducts   int          `json:"total_products"`
	ProductsWith    int          `json:"products_with_this_size"`
	ProductsWithout []ProductRef `json:"products_without_this_size"`
	ExistenceRate   float64      `json:"existence_rate"`
}

// WithoutCount is the number of products that do not offer the size.
func (c Coverage) WithoutCount() int {
	return len(c.ProductsWithout)
}

// CoverageRow is the flat, report-ready form of Coverage.
type CoverageRow struct {
	Size          string
	WithCount     int
	WithoutCount  int
	TotalProducts int
	ExistenceRate float64
}

// IsSizeLike reports whether a variant label looks like a size: it contains
// an "x" (as in "30x40"), contains "cm", or consists only of digits.
func IsSizeLike(variant string) bool {
	lower := strings.ToLower(variant)
	if strings.Contains(lower, "x") || strings.Contains(lower, "cm") {
		return true
	}
	return isDigits(variant)
}

// DiscoverSizes collects every size-like variant label across products.
// Membership is case-sensitive; the result is sorted.
func DiscoverSizes(products []models.Product) []string {
	seen := make(map[string]struct{})
	for _, p := range products {
		for _, v := range p.Variants {
			if IsSizeLike(v) {
				seen[v] = struct{}{}
			}
		}
	}

	discovered := make([]string, 0, len(seen))
	for size := range seen {
		discovered = append(discovered, size)
	}
	sort.Strings(discovered)

	return discovered
}

// HasSize reports whether any of the product's variants contains size,
// ignoring case.
func HasSize(p models.Product, size string) bool {
	needle := strings.ToLower(size)
	for _, v := range p.Variants {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// Aggregate computes, for every size discovered in products, how many
// products offer it and which do not.
func Aggregate(products []models.Product) map[string]Coverage {
	discovered := DiscoverSizes(products)
	result := make(map[string]Coverage, len(discovered))

	for _, size := range discovered {
		c := Coverage{
			Size:            size,
			ProductsWithout: make([]ProductRef, 0),
		}

		for _, p := range products {
			c.TotalProducts++
			if HasSize(p, size) {
				c.ProductsWith++
				continue
			}

			title := p.Title
			if models.IsBlank(title) {
				title = unknownTitle
			}
			c.ProductsWithout = append(c.ProductsWithout, ProductRef{Title: title, URL: p.URL})
		}

		c.ExistenceRate = Percent(c.ProductsWith, c.TotalProducts)
		result[size] = c
	}

	return result
}

// CoverageTable is Aggregate flattened into rows ordered by size label.
func CoverageTable(products []models.Product) []CoverageRow {
	coverage := Aggregate(products)

	labels := make([]string, 0, len(coverage))
	for size := range coverage {
		labels = append(labels, size)
	}
	sort.Strings(labels)

	rows := make([]CoverageRow, 0, len(labels))
	for _, size := range labels {
		c := coverage[size]
		rows = append(rows, CoverageRow{
			Size:          size,
			WithCount:     c.ProductsWith,
			WithoutCount:  c.WithoutCount(),
			TotalProducts: c.TotalProducts,
			ExistenceRate: Round2(c.ExistenceRate),
		})
	}

	return rows
}

// Percent returns part/total*100, or 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
