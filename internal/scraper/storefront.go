package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/parser"
	"github.com/maltedev/storefront-auditor/internal/queue"
	"github.com/maltedev/storefront-auditor/internal/ratelimit"
)

// feedback is implemented by limiters that adapt to failures.
type feedback interface {
	RecordSuccess()
	RecordError()
}

// StorefrontScraper collects product links from a seller storefront and
// scrapes each product page into a RawProduct.
type StorefrontScraper struct {
	fetcher Fetcher
	parser  parser.Parser
	limiter ratelimit.RateLimiter
	opts    Options
	logger  *slog.Logger
}

func NewStorefrontScraper(f Fetcher, p parser.Parser, l ratelimit.RateLimiter, opts Options) *StorefrontScraper {
	defaults := DefaultOptions()
	if opts.MaxPages < 1 {
		opts.MaxPages = defaults.MaxPages
	}
	if opts.MaxProducts < 1 {
		opts.MaxProducts = defaults.MaxProducts
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = defaults.MaxRetries
	}
	if opts.Workers < 1 {
		opts.Workers = defaults.Workers
	}
	if p == nil {
		p = parser.NewStorefrontParser()
	}
	if l == nil {
		l = ratelimit.NewHumanRateLimiter(0, 0)
	}

	return &StorefrontScraper{
		fetcher: f,
		parser:  p,
		limiter: l,
		opts:    opts,
		logger:  slog.Default().With("component", "storefront_scraper"),
	}
}

// WithProgress returns a copy of the scraper that reports product page
// progress to fn.
func (s *StorefrontScraper) WithProgress(fn func(done, total int)) *StorefrontScraper {
	clone := *s
	clone.opts.Progress = fn
	return &clone
}

// Collect runs the whole collection: links first, then every product page.
// Pages that fail after all retries are left out of the result.
func (s *StorefrontScraper) Collect(ctx context.Context, sellerURL string) ([]models.RawProduct, error) {
	links, err := s.CollectProductLinks(ctx, sellerURL)
	if err != nil {
		return nil, err
	}

	results, err := s.ScrapeAll(ctx, links)
	if err != nil {
		return nil, err
	}

	products := Successful(results)
	s.logger.Info("collection completed",
		"links", len(links),
		"products", len(products),
		"failed", len(links)-len(products))

	return products, nil
}

// CollectProductLinks walks the storefront pages until MaxProducts links are
// found, MaxPages pages were read, or a page yields nothing new.
func (s *StorefrontScraper) CollectProductLinks(ctx context.Context, sellerURL string) ([]string, error) {
	if err := validateSellerURL(sellerURL); err != nil {
		return nil, err
	}
	if !LooksLikeStorefront(sellerURL) {
		s.logger.Warn("url does not look like a seller storefront", "url", sellerURL)
	}

	var (
		links = make([]string, 0, s.opts.MaxProducts)
		seen  = make(map[string]bool)
	)

	for page := 1; page <= s.opts.MaxPages && len(links) < s.opts.MaxProducts; page++ {
		pageURL := PageURL(sellerURL, page)
		s.logger.Info("processing listing page", "page", page, "url", pageURL)

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		html, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if page == 1 {
				return nil, fmt.Errorf("failed to load storefront: %w", err)
			}
			s.logger.Warn("failed to load listing page", "page", page, "error", err)
			break
		}

		found, err := s.parser.ExtractProductLinks(html, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to extract product links: %w", err)
		}
		if len(found) == 0 {
			s.logger.Info("no product links on page", "page", page)
			break
		}

		added := 0
		for _, link := range found {
			if seen[link] || len(links) >= s.opts.MaxProducts {
				continue
			}
			seen[link] = true
			links = append(links, link)
			added++
		}

		s.logger.Info("found product links", "page", page, "new", added, "total", len(links))

		if added == 0 {
			break
		}
	}

	if len(links) == 0 {
		return nil, ErrNoProductLinks
	}

	return links, nil
}

// ScrapeProduct loads and parses one product page, retrying up to
// MaxRetries times.
func (s *StorefrontScraper) ScrapeProduct(ctx context.Context, productURL string) (*models.RawProduct, error) {
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		product, err := s.scrapeOnce(ctx, productURL)
		if err == nil {
			s.record(true)
			if missing := product.Validate(); len(missing) > 0 {
				s.logger.Debug("incomplete product page", "url", productURL, "missing", missing)
			}
			return product, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		s.record(false)
		s.logger.Warn("product page failed",
			"url", productURL,
			"attempt", attempt,
			"max_retries", s.opts.MaxRetries,
			"error", err)
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", s.opts.MaxRetries, lastErr)
}

func (s *StorefrontScraper) scrapeOnce(ctx context.Context, productURL string) (*models.RawProduct, error) {
	html, err := s.fetcher.Fetch(ctx, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load product page: %w", err)
	}

	product, err := s.parser.ParseProductPage(html, productURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product page: %w", err)
	}

	return product, nil
}

// ScrapeAll scrapes urls with Workers concurrent workers fed from a task
// queue. Results are returned in the order of urls.
func (s *StorefrontScraper) ScrapeAll(ctx context.Context, urls []string) ([]models.ScrapeResult, error) {
	results := make([]models.ScrapeResult, len(urls))
	if len(urls) == 0 {
		return results, nil
	}

	q := queue.NewInMemoryQueue()
	for i, u := range urls {
		if err := q.Push(&queue.Task{ID: uuid.NewString(), URL: u, Position: i}); err != nil {
			return nil, fmt.Errorf("failed to enqueue %s: %w", u, err)
		}
	}
	q.Close()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for w := 0; w < s.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Pop(ctx)
				if err != nil {
					return
				}

				results[task.Position] = s.scrapeTask(ctx, task)

				mu.Lock()
				done++
				if s.opts.Progress != nil {
					s.opts.Progress(done, len(urls))
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *StorefrontScraper) scrapeTask(ctx context.Context, task *queue.Task) models.ScrapeResult {
	s.logger.Info("scraping product", "position", task.Position+1, "url", task.URL)

	product, err := s.ScrapeProduct(ctx, task.URL)
	if err != nil {
		code := "SCRAPE_FAILED"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = "CANCELLED"
		}
		return models.ScrapeResult{
			Error: models.NewError(code, err.Error(), task.URL),
		}
	}

	return models.ScrapeResult{Product: product, Success: true}
}

func (s *StorefrontScraper) record(success bool) {
	fb, ok := s.limiter.(feedback)
	if !ok {
		return
	}
	if success {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}

// Successful returns the products of the successful results, in order.
func Successful(results []models.ScrapeResult) []models.RawProduct {
	products := make([]models.RawProduct, 0, len(results))
	for _, r := range results {
		if r.Success && r.Product != nil {
			products = append(products, *r.Product)
		}
	}
	return products
}
