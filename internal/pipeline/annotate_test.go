package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-auditor/internal/mockup"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/sizes"
)

func TestAnnotator_AnnotateOne(t *testing.T) {
	a := NewAnnotator(mockup.NewDetector(), sizes.Catalog{"30x40", "40x60", "50x70"}, 1)

	p := a.AnnotateOne(models.RawProduct{
		URL:      "https://shop.example/p/1",
		Title:    "Poster",
		Images:   []string{"https://x.com/images/mockup-frame-30x40.jpg", "https://x.com/images/product-photo.jpg"},
		Variants: []string{"30x40", "40x60"},
	})

	assert.Equal(t, []string{"https://x.com/images/mockup-frame-30x40.jpg"}, p.MockupImages)
	assert.Equal(t, []string{"50x70"}, p.MissingSizes)
	assert.Equal(t, 2, p.ImageCount())
	assert.False(t, p.ScrapedAt.IsZero())

	for _, m := range p.MockupImages {
		assert.Contains(t, p.Images, m)
	}
}

func TestAnnotator_AnnotateKeepsOrder(t *testing.T) {
	a := NewAnnotator(nil, sizes.DefaultCatalog(), 4)

	raws := make([]models.RawProduct, 50)
	for i := range raws {
		raws[i] = models.RawProduct{
			URL:    fmt.Sprintf("https://shop.example/p/%d", i),
			Images: []string{fmt.Sprintf("https://cdn.example/%d/mockup.jpg", i)},
		}
	}

	products, err := a.Annotate(context.Background(), raws)
	require.NoError(t, err)
	require.Len(t, products, len(raws))

	for i, p := range products {
		assert.Equal(t, raws[i].URL, p.URL)
		assert.Len(t, p.MockupImages, 1)
		assert.Equal(t, []string(sizes.DefaultCatalog()), p.MissingSizes)
	}
}

func TestAnnotator_AnnotateCancelled(t *testing.T) {
	a := NewAnnotator(nil, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Annotate(ctx, []models.RawProduct{{URL: "a"}, {URL: "b"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnnotator_AnnotateEmpty(t *testing.T) {
	products, err := NewAnnotator(nil, nil, 0).Annotate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestAnnotator_Reannotate(t *testing.T) {
	scrapedAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	stored := []models.Product{
		{
			URL:          "https://shop.example/p/1",
			Images:       []string{"poster-mockup.jpg", "poster.jpg"},
			Variants:     []string{"30x40", "A3"},
			MockupImages: []string{},
			MissingSizes: []string{"30x40"},
			ScrapedAt:    scrapedAt,
		},
		{URL: "https://shop.example/p/2"},
	}

	a := NewAnnotator(nil, sizes.Catalog{"30x40", "A3", "50x70"}, 2)
	out, err := a.Reannotate(context.Background(), stored)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"poster-mockup.jpg"}, out[0].MockupImages)
	assert.Equal(t, []string{"50x70"}, out[0].MissingSizes)
	assert.Equal(t, scrapedAt, out[0].ScrapedAt)

	assert.Equal(t, []string{"30x40", "A3", "50x70"}, out[1].MissingSizes)
	assert.False(t, out[1].ScrapedAt.IsZero())
}
