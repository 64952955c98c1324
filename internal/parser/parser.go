package parser

import (
	"github.com/maltedev/storefront-auditor/internal/models"
)

type Parser interface {
	ParseProductPage(html string, url string) (*models.RawProduct, error)
	ExtractProductLinks(html string, baseURL string) ([]string, error)
}
