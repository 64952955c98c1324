package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-auditor/internal/database"
	"github.com/maltedev/storefront-auditor/internal/events"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/report"
)

const sellerURL = "https://www.trendyol.com/magaza/poster-shop-m-42"

var catalog = []string{"30x40", "50x70"}

type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) CreateRun(ctx context.Context, run *database.AuditRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunStore) CompleteRun(ctx context.Context, run *database.AuditRun, products []models.Product, event *database.OutboxEvent) error {
	return m.Called(ctx, run, products, event).Error(0)
}

func (m *MockRunStore) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAuditCompleted(ctx context.Context, payload *events.AuditCompletedPayload) error {
	return m.Called(ctx, payload).Error(0)
}

func rawProducts() []models.RawProduct {
	return []models.RawProduct{
		{
			URL:      "https://www.trendyol.com/a/p/1",
			Title:    "Ocean",
			Images:   []string{"https://cdn/ocean-mockup.jpg", "https://cdn/ocean.jpg"},
			Variants: []string{"30x40"},
		},
		{
			URL:      "https://www.trendyol.com/b/p/2",
			Title:    "Forest",
			Images:   []string{"https://cdn/forest.jpg"},
			Variants: []string{"30x40", "50x70"},
		},
	}
}

func fakeCollect(raws []models.RawProduct, err error) CollectFunc {
	return func(ctx context.Context, url string, progress func(done, total int)) ([]models.RawProduct, error) {
		if err != nil {
			return nil, err
		}
		total := len(raws) + 1
		for i := range raws {
			progress(i+1, total)
		}
		progress(total, total)
		return raws, nil
	}
}

func newTestManager(collect CollectFunc, opts ...Option) *Manager {
	return NewManager(
		collect,
		pipeline.NewAnnotator(nil, catalog, 2),
		report.NewAssembler(catalog),
		catalog,
		opts...,
	)
}

func waitForJob(t *testing.T, m *Manager, id string) Job {
	t.Helper()

	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Get(id)
		require.NoError(t, err)
		return job.Status == StatusCompleted || job.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	return job
}

func TestManager_SubmitCompletes(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishAuditCompleted", mock.Anything, mock.MatchedBy(func(p *events.AuditCompletedPayload) bool {
		return p.SellerURL == sellerURL &&
			p.ProductCount == 2 &&
			p.MockupCount == 1 &&
			p.FailedCount == 1 &&
			p.MissingSizes["50x70"] == 1
	})).Return(nil)

	m := newTestManager(fakeCollect(rawProducts(), nil), WithPublisher(publisher))

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 2, job.ProductsFound)
	assert.Equal(t, 1, job.MockupCount)
	assert.Equal(t, 3, job.LinksFound)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	products, err := m.Products(job.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, []string{"https://cdn/ocean-mockup.jpg"}, products[0].MockupImages)
	assert.Equal(t, []string{"50x70"}, products[0].MissingSizes)
	assert.Equal(t, []string{}, products[1].MissingSizes)

	rep, err := m.Report(job.ID)
	require.NoError(t, err)
	assert.Len(t, rep.Tables, 5)
	assert.Len(t, rep.Details, 2)

	require.NoError(t, m.Shutdown(context.Background()))
	publisher.AssertExpectations(t)
}

func TestManager_SubmitFails(t *testing.T) {
	m := newTestManager(fakeCollect(nil, errors.New("no product links found")))

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "no product links found", job.Error)

	_, err = m.Report(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFinished)
	_, err = m.Products(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFinished)
}

func TestManager_PersistsThroughStore(t *testing.T) {
	store := new(MockRunStore)
	publisher := new(MockPublisher)

	store.On("CreateRun", mock.Anything, mock.MatchedBy(func(run *database.AuditRun) bool {
		return run.SellerURL == sellerURL && run.ID != uuid.Nil
	})).Return(nil)
	store.On("CompleteRun", mock.Anything, mock.AnythingOfType("*database.AuditRun"), mock.MatchedBy(func(products []models.Product) bool {
		return len(products) == 2
	}), mock.MatchedBy(func(e *database.OutboxEvent) bool {
		return e.EventType == string(events.EventTypeAuditCompleted) &&
			e.AggregateType == events.AggregateTypeAuditRun &&
			e.TargetStream == events.DefaultStream &&
			len(e.Payload) > 0
	})).Return(nil)

	m := newTestManager(fakeCollect(rawProducts(), nil), WithStore(store), WithPublisher(publisher))

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, StatusCompleted, job.Status)

	store.AssertExpectations(t)
	publisher.AssertNotCalled(t, "PublishAuditCompleted", mock.Anything, mock.Anything)
}

func TestManager_FailureRecordedInStore(t *testing.T) {
	store := new(MockRunStore)
	store.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	store.On("FailRun", mock.Anything, mock.Anything, "storefront unreachable").Return(nil)

	m := newTestManager(fakeCollect(nil, errors.New("storefront unreachable")), WithStore(store))

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, StatusFailed, job.Status)
	store.AssertExpectations(t)
}

func TestManager_GetAndList(t *testing.T) {
	m := newTestManager(fakeCollect(rawProducts(), nil), WithMaxConcurrent(2))

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.Report("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = m.Submit("   ")
	assert.Error(t, err)

	first, err := m.Submit(sellerURL)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := m.Submit(sellerURL + "?sst=PRICE")
	require.NoError(t, err)

	waitForJob(t, m, first.ID)
	waitForJob(t, m, second.ID)

	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID, "newest first")
}

func TestManager_Shutdown(t *testing.T) {
	started := make(chan struct{})
	blocking := func(ctx context.Context, url string, progress func(done, total int)) ([]models.RawProduct, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m := newTestManager(blocking)

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	job, err = m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)

	_, err = m.Submit(sellerURL)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestManager_SubmitDuringShutdown(t *testing.T) {
	blocking := func(ctx context.Context, url string, progress func(done, total int)) ([]models.RawProduct, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m := newTestManager(blocking, WithMaxConcurrent(4))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := m.Submit(sellerURL)
			if err != nil {
				assert.ErrorIs(t, err, ErrShuttingDown)
				return
			}
			mu.Lock()
			accepted = append(accepted, job.ID)
			mu.Unlock()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, id := range accepted {
		job, err := m.Get(id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, job.Status, "accepted jobs finish before Shutdown returns")
	}
	assert.Len(t, m.List(), len(accepted))
}

func TestManager_TracksProductsProcessed(t *testing.T) {
	m := newTestManager(fakeCollect(rawProducts(), nil))

	job, err := m.Submit(sellerURL)
	require.NoError(t, err)

	job = waitForJob(t, m, job.ID)
	assert.Equal(t, len(rawProducts())+1, job.ProductsProcessed)
	assert.Equal(t, job.LinksFound, job.ProductsProcessed)
	require.NoError(t, m.Shutdown(context.Background()))
}
