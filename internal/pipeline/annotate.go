// Package pipeline turns raw scrape facts into annotated products.
package pipeline

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/storefront-auditor/internal/mockup"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/sizes"
)

// Classifier is the part of mockup.Detector the pipeline needs.
type Classifier interface {
	Classify(text string) bool
}

// Annotator derives a product's mockup images and missing sizes.
type Annotator struct {
	classifier Classifier
	catalog    sizes.Catalog
	workers    int
}

func NewAnnotator(classifier Classifier, catalog sizes.Catalog, workers int) *Annotator {
	if classifier == nil {
		classifier = mockup.NewDetector()
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Annotator{
		classifier: classifier,
		catalog:    append(sizes.Catalog(nil), catalog...),
		workers:    workers,
	}
}

// AnnotateOne computes the derived fields for a single raw product.
func (a *Annotator) AnnotateOne(raw models.RawProduct) models.Product {
	p := models.NewProduct(raw)
	for _, img := range p.Images {
		if a.classifier.Classify(img) {
			p.MockupImages = append(p.MockupImages, img)
		}
	}
	p.MissingSizes = sizes.MissingSizes(p.Variants, a.catalog)
	return p
}

// Annotate processes raws in parallel. The result has the same order as raws
// no matter which worker finishes first.
func (a *Annotator) Annotate(ctx context.Context, raws []models.RawProduct) ([]models.Product, error) {
	out := make([]models.Product, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := range raws {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = a.AnnotateOne(raws[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reannotate recomputes the derived fields of already annotated products,
// for instance after the size catalog changed. Scrape times are kept.
func (a *Annotator) Reannotate(ctx context.Context, products []models.Product) ([]models.Product, error) {
	raws := make([]models.RawProduct, len(products))
	for i := range products {
		raws[i] = products[i].Raw()
	}

	out, err := a.Annotate(ctx, raws)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if !products[i].ScrapedAt.IsZero() {
			out[i].ScrapedAt = products[i].ScrapedAt
		}
	}
	return out, nil
}
