package parser

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/storefront-auditor/internal/models"
)

// Selectors lists the CSS selectors tried, in order, for each field.
type Selectors struct {
	ProductLinks []string
	Title        []string
	SKU          []string
	Images       []string
	Variants     []string
	// ImageAttrs are the attributes that may carry an image URL, lazy
	// loading attributes included.
	ImageAttrs []string
	// ProductPathMarker must occur in a link for it to count as a product.
	ProductPathMarker string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ProductLinks: []string{
			"a.p-card-chld",
			"a[href*='/p/']",
			".p-card a",
			"[data-testid='product-card'] a",
		},
		Title: []string{
			"h1.pr-new-br",
			"h1[data-testid='product-name']",
			".pr-new-br",
			"h1",
		},
		SKU: []string{
			"[data-testid='product-sku']",
			".product-sku",
			".sku",
			"[class*='sku']",
		},
		Images: []string{
			"img[src*='trendyol']",
			"img[data-src*='trendyol']",
			"img[data-lazy*='trendyol']",
			".product-image img",
			"[data-testid='product-image'] img",
		},
		Variants: []string{
			"ul li",
			".variation-item",
			"[data-testid='variation']",
			".size-option",
			".option-item",
		},
		ImageAttrs:        []string{"src", "data-src", "data-lazy", "data-original"},
		ProductPathMarker: "/p/",
	}
}

// maxVariantLength drops list items that are clearly prose, not options.
const maxVariantLength = 20

type StorefrontParser struct {
	selectors Selectors
}

func NewStorefrontParser() *StorefrontParser {
	return NewStorefrontParserWithSelectors(DefaultSelectors())
}

func NewStorefrontParserWithSelectors(s Selectors) *StorefrontParser {
	return &StorefrontParser{selectors: s}
}

// ExtractProductLinks returns the product links of a seller listing page,
// resolved against baseURL. Selectors are tried in order and the first one
// that yields links wins.
func (p *StorefrontParser) ExtractProductLinks(html string, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	for _, selector := range p.selectors.ProductLinks {
		var links []string
		seen := make(map[string]bool)

		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || href == "" {
				return
			}

			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			link := base.ResolveReference(ref).String()

			if !strings.Contains(link, p.selectors.ProductPathMarker) || seen[link] {
				return
			}
			seen[link] = true
			links = append(links, link)
		})

		if len(links) > 0 {
			return links, nil
		}
	}

	return []string{}, nil
}

// ParseProductPage extracts the raw listing facts from a product page.
// Missing fields are left empty rather than reported as errors.
func (p *StorefrontParser) ParseProductPage(html string, pageURL string) (*models.RawProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	product := models.NewRawProduct(pageURL)
	product.Title = p.firstText(doc, p.selectors.Title)
	product.SKU = p.firstText(doc, p.selectors.SKU)
	product.Images = p.extractImages(doc)
	product.Variants = p.extractVariants(doc)

	return product, nil
}

func (p *StorefrontParser) firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		text := cleanText(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func (p *StorefrontParser) extractImages(doc *goquery.Document) []string {
	images := make([]string, 0)
	seen := make(map[string]bool)

	for _, selector := range p.selectors.Images {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			for _, attr := range p.selectors.ImageAttrs {
				src := strings.TrimSpace(s.AttrOr(attr, ""))
				if src != "" && !seen[src] {
					seen[src] = true
					images = append(images, src)
					break
				}
			}
		})
	}

	return images
}

// extractVariants collects short option labels, deduplicated in page order.
func (p *StorefrontParser) extractVariants(doc *goquery.Document) []string {
	variants := make([]string, 0)
	seen := make(map[string]bool)

	for _, selector := range p.selectors.Variants {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := cleanText(s.Text())
			if text == "" || utf8.RuneCountInString(text) >= maxVariantLength || seen[text] {
				return
			}
			seen[text] = true
			variants = append(variants, text)
		})
	}

	return variants
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
