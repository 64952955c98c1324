package report

import (
	"fmt"
	"strings"

	"github.com/maltedev/storefront-auditor/internal/models"
)

// DetailSheet is the per-product drill-down: an attribute table followed by
// the product's images.
type DetailSheet struct {
	Name   string `json:"name"`
	Info   Table  `json:"info"`
	Images Table  `json:"images"`
}

const maxSheetName = 31

var (
	detailInfoColumns  = []string{"Attribute", "Value"}
	detailImageColumns = []string{"Image No", "URL", "Mockup"}
)

// ProductDetails builds one DetailSheet per product, named "Product_<n>".
func ProductDetails(products []models.Product) []DetailSheet {
	sheets := make([]DetailSheet, 0, len(products))
	for i, p := range products {
		sheets = append(sheets, productDetail(i+1, p))
	}
	return sheets
}

func productDetail(n int, p models.Product) DetailSheet {
	name := fmt.Sprintf("Product_%d", n)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	info := Table{Name: name, Columns: detailInfoColumns}
	for _, attr := range []struct {
		name  string
		value any
	}{
		{"Product Name", p.Title},
		{"SKU", p.SKU},
		{"URL", p.URL},
		{"Image Count", p.ImageCount()},
		{"Mockup Count", p.MockupCount()},
		{"Variation Count", p.VariantCount()},
		{"Missing Sizes", strings.Join(p.MissingSizes, ", ")},
	} {
		info.Rows = append(info.Rows, Row{"Attribute": attr.name, "Value": attr.value})
	}

	images := Table{Name: name, Columns: detailImageColumns, Rows: make([]Row, 0, len(p.Images))}
	for j, img := range p.Images {
		flag := "No"
		if p.IsMockup(img) {
			flag = "Yes"
		}
		images.Rows = append(images.Rows, Row{"Image No": j + 1, "URL": img, "Mockup": flag})
	}

	return DetailSheet{Name: name, Info: info, Images: images}
}
