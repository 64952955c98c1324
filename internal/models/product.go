package models

import (
	"strings"
	"time"
)

// RawProduct holds the facts scraped from a single listing page before any
// classification or size analysis has run.
type RawProduct struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	SKU      string   `json:"sku"`
	Images   []string `json:"images"`
	Variants []string `json:"variations"`
}

// Product is a RawProduct annotated with its derived fields. The derived
// fields are filled once by pipeline.Annotate and never recomputed.
type Product struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	SKU          string    `json:"sku"`
	Images       []string  `json:"images"`
	Variants     []string  `json:"variations"`
	MockupImages []string  `json:"mockup_images"`
	MissingSizes []string  `json:"missing_sizes"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

type ScrapeResult struct {
	Product *RawProduct `json:"product,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Success bool        `json:"success"`
}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func NewError(code, message, url string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Time:    time.Now(),
		URL:     url,
	}
}

func NewRawProduct(url string) *RawProduct {
	return &RawProduct{
		URL:      url,
		Images:   make([]string, 0),
		Variants: make([]string, 0),
	}
}

// NewProduct copies the raw facts of r into a Product with empty derived fields.
func NewProduct(r RawProduct) Product {
	return Product{
		URL:          r.URL,
		Title:        r.Title,
		SKU:          r.SKU,
		Images:       append([]string(nil), r.Images...),
		Variants:     append([]string(nil), r.Variants...),
		MockupImages: make([]string, 0),
		MissingSizes: make([]string, 0),
		ScrapedAt:    time.Now(),
	}
}

// Raw returns the scraped facts of p without its derived fields.
func (p *Product) Raw() RawProduct {
	return RawProduct{
		URL:      p.URL,
		Title:    p.Title,
		SKU:      p.SKU,
		Images:   p.Images,
		Variants: p.Variants,
	}
}

func (p *Product) ImageCount() int {
	return len(p.Images)
}

func (p *Product) MockupCount() int {
	return len(p.MockupImages)
}

func (p *Product) VariantCount() int {
	return len(p.Variants)
}

// IsMockup reports whether image is one of the product's flagged images.
func (p *Product) IsMockup(image string) bool {
	for _, m := range p.MockupImages {
		if m == image {
			return true
		}
	}
	return false
}

// IsBlank reports whether a scraped text field carries no content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Validate lists the fields a scraped listing is expected to carry. Missing
// fields are reported, not fatal.
func (r *RawProduct) Validate() []string {
	var errors []string

	if r.URL == "" {
		errors = append(errors, "URL is required")
	}

	if IsBlank(r.Title) {
		errors = append(errors, "Title is missing")
	}

	if len(r.Images) == 0 {
		errors = append(errors, "No images found")
	}

	return errors
}
