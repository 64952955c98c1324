package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrNoProductLinks   = errors.New("no product links found")
	ErrInvalidSellerURL = errors.New("invalid seller URL")
)

// storefrontMarker is the path segment of a seller storefront on the
// marketplace.
const storefrontMarker = "trendyol.com/magaza/"

// pageParam is the query parameter the storefront paginates with.
const pageParam = "sayfa"

// Fetcher returns the rendered HTML for a URL. *browser.Browser satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Options struct {
	MaxPages    int
	MaxProducts int
	MaxRetries  int
	Workers     int
	// Progress, if set, is called after every product page attempt.
	Progress func(done, total int)
}

func DefaultOptions() Options {
	return Options{
		MaxPages:    30,
		MaxProducts: 10,
		MaxRetries:  3,
		Workers:     1,
	}
}

// LooksLikeStorefront reports whether raw points at a seller storefront.
// Other URLs may still work, so callers treat false as a warning.
func LooksLikeStorefront(raw string) bool {
	return strings.Contains(strings.ToLower(raw), storefrontMarker)
}

// PageURL returns the listing URL for the given 1-based page.
func PageURL(sellerURL string, page int) string {
	if page <= 1 {
		return sellerURL
	}

	u, err := url.Parse(sellerURL)
	if err != nil {
		return fmt.Sprintf("%s?%s=%d", sellerURL, pageParam, page)
	}

	q := u.Query()
	q.Set(pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func validateSellerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSellerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSellerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSellerURL)
	}
	return nil
}
