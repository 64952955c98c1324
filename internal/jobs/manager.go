package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/storefront-auditor/internal/database"
	"github.com/maltedev/storefront-auditor/internal/events"
	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/pipeline"
	"github.com/maltedev/storefront-auditor/internal/report"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotFinished = errors.New("job has not completed")
	ErrShuttingDown   = errors.New("job manager is shutting down")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CollectFunc scrapes a seller storefront. progress is called after each
// product page.
type CollectFunc func(ctx context.Context, sellerURL string, progress func(done, total int)) ([]models.RawProduct, error)

// RunStore persists audit runs. *database.AuditRepository satisfies it.
type RunStore interface {
	CreateRun(ctx context.Context, run *database.AuditRun) error
	CompleteRun(ctx context.Context, run *database.AuditRun, products []models.Product, event *database.OutboxEvent) error
	FailRun(ctx context.Context, id uuid.UUID, message string) error
}

// Publisher sends audit events without a database. *events.StreamPublisher
// satisfies it.
type Publisher interface {
	PublishAuditCompleted(ctx context.Context, payload *events.AuditCompletedPayload) error
}

// Job represents one storefront audit
type Job struct {
	ID                string     `json:"id"`
	SellerURL         string     `json:"seller_url"`
	Status            Status     `json:"status"`
	LinksFound        int        `json:"links_found"`
	ProductsProcessed int        `json:"products_processed"`
	ProductsFound     int        `json:"products_found"`
	MockupCount       int        `json:"mockup_count"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Error             string     `json:"error,omitempty"`
}

type entry struct {
	job      Job
	products []models.Product
	report   *report.Report
}

type Manager struct {
	collect   CollectFunc
	annotator *pipeline.Annotator
	assembler *report.Assembler
	catalog   []string
	store     RunStore
	publisher Publisher
	stream    string
	logger    *slog.Logger

	// mu guards jobs and closed; wg.Add only happens under mu.
	mu     sync.RWMutex
	jobs   map[string]*entry
	closed bool

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Manager)

func WithStore(store RunStore) Option {
	return func(m *Manager) { m.store = store }
}

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithStream sets the Redis stream outbox events are addressed to.
func WithStream(stream string) Option {
	return func(m *Manager) {
		if stream != "" {
			m.stream = stream
		}
	}
}

// WithMaxConcurrent bounds how many audits run at once. Extra jobs stay
// pending until a slot frees up.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = make(chan struct{}, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger.With("component", "job_manager") }
}

func NewManager(collect CollectFunc, annotator *pipeline.Annotator, assembler *report.Assembler, catalog []string, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		collect:   collect,
		annotator: annotator,
		assembler: assembler,
		catalog:   append([]string(nil), catalog...),
		stream:    events.DefaultStream,
		logger:    slog.Default().With("component", "job_manager"),
		jobs:      make(map[string]*entry),
		sem:       make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit registers an audit for sellerURL and starts it in the background.
func (m *Manager) Submit(sellerURL string) (Job, error) {
	sellerURL = strings.TrimSpace(sellerURL)
	if sellerURL == "" {
		return Job{}, fmt.Errorf("seller URL is required")
	}

	e := &entry{job: Job{
		ID:        uuid.New().String(),
		SellerURL: sellerURL,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Job{}, ErrShuttingDown
	}
	m.jobs[e.job.ID] = e
	m.wg.Add(1)
	job := e.job
	m.mu.Unlock()

	m.logger.Info("job created", "id", job.ID, "seller_url", sellerURL)

	go func() {
		defer m.wg.Done()
		m.run(m.ctx, job.ID)
	}()

	return job, nil
}

func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// List returns all jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		jobs = append(jobs, e.job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Report returns the report of a completed job.
func (m *Manager) Report(id string) (*report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if e.job.Status != StatusCompleted {
		return nil, ErrJobNotFinished
	}
	return e.report, nil
}

// Products returns the annotated products of a completed job.
func (m *Manager) Products(id string) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if e.job.Status != StatusCompleted {
		return nil, ErrJobNotFinished
	}
	return e.products, nil
}

// Shutdown cancels running audits and waits for them to stop or for ctx to
// expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) update(id string, fn func(e *entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[id]; ok {
		fn(e)
	}
}

func (m *Manager) run(ctx context.Context, id string) {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.fail(ctx, id, nil, ctx.Err())
		return
	}

	job, _ := m.Get(id)
	now := time.Now()
	m.update(id, func(e *entry) {
		e.job.Status = StatusRunning
		e.job.StartedAt = &now
	})

	m.logger.Info("processing job", "id", id, "seller_url", job.SellerURL)

	var run *database.AuditRun
	if m.store != nil {
		runID, _ := uuid.Parse(id)
		run = &database.AuditRun{ID: runID, SellerURL: job.SellerURL, CreatedAt: job.CreatedAt}
		if err := m.store.CreateRun(ctx, run); err != nil {
			m.logger.Error("failed to persist audit run", "id", id, "error", err)
			run = nil
		}
	}

	raws, err := m.collect(ctx, job.SellerURL, func(done, total int) {
		m.update(id, func(e *entry) {
			e.job.LinksFound = total
			e.job.ProductsProcessed = done
		})
	})
	if err != nil {
		m.fail(ctx, id, run, err)
		return
	}

	products, err := m.annotator.Annotate(ctx, raws)
	if err != nil {
		m.fail(ctx, id, run, err)
		return
	}

	rep := m.assembler.BuildDetailed(products)

	m.finish(ctx, id, run, products)

	completed := time.Now()
	m.update(id, func(e *entry) {
		e.products = products
		e.report = rep
		e.job.Status = StatusCompleted
		e.job.ProductsFound = len(products)
		e.job.CompletedAt = &completed
		for _, p := range products {
			e.job.MockupCount += p.MockupCount()
		}
	})

	m.logger.Info("job completed", "id", id, "products", len(products))
}

// finish persists the run and emits AUDIT_COMPLETED. With a store the event
// goes through the outbox in the same transaction; otherwise it is published
// directly when a publisher is configured.
func (m *Manager) finish(ctx context.Context, id string, run *database.AuditRun, products []models.Product) {
	job, _ := m.Get(id)
	payload := events.NewAuditCompletedPayload(id, job.SellerURL, products, m.catalog)
	payload.FailedCount = max(job.LinksFound-len(products), 0)

	if run != nil {
		data, err := payload.Marshal()
		if err != nil {
			m.logger.Error("failed to encode audit event", "id", id, "error", err)
			return
		}

		run.FailedCount = payload.FailedCount
		event := &database.OutboxEvent{
			AggregateType: events.AggregateTypeAuditRun,
			AggregateID:   id,
			EventType:     string(events.EventTypeAuditCompleted),
			Payload:       data,
			TargetStream:  m.stream,
		}
		if err := m.store.CompleteRun(ctx, run, products, event); err != nil {
			m.logger.Error("failed to persist audit results", "id", id, "error", err)
		}
		return
	}

	if m.publisher != nil {
		if err := m.publisher.PublishAuditCompleted(ctx, payload); err != nil {
			m.logger.Error("failed to publish audit event", "id", id, "error", err)
		}
	}
}

func (m *Manager) fail(ctx context.Context, id string, run *database.AuditRun, err error) {
	m.logger.Error("job failed", "id", id, "error", err)

	if run != nil {
		// ctx may already be cancelled; the failure should still be recorded.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if storeErr := m.store.FailRun(storeCtx, run.ID, err.Error()); storeErr != nil {
			m.logger.Error("failed to persist audit failure", "id", id, "error", storeErr)
		}
	}

	now := time.Now()
	m.update(id, func(e *entry) {
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
		e.job.CompletedAt = &now
	})
}
