package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/storefront-auditor/internal/models"
)

var ErrRunNotFound = errors.New("audit run not found")

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AuditRun is one storefront audit as stored in audit_runs.
type AuditRun struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	SellerURL    string     `db:"seller_url" json:"seller_url"`
	Status       RunStatus  `db:"status" json:"status"`
	ProductCount int        `db:"product_count" json:"product_count"`
	MockupCount  int        `db:"mockup_count" json:"mockup_count"`
	FailedCount  int        `db:"failed_count" json:"failed_count"`
	ErrorMessage *string    `db:"error_message" json:"error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// AuditRepository handles audit run persistence
type AuditRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// CreateRun inserts a running audit. A zero ID is replaced by a new UUID.
func (r *AuditRepository) CreateRun(ctx context.Context, run *AuditRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = RunStatusRunning
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO audit_runs (id, seller_url, status, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.pool.Exec(ctx, query, run.ID, run.SellerURL, run.Status, run.CreatedAt); err != nil {
		return fmt.Errorf("failed to create audit run: %w", err)
	}

	return nil
}

// CompleteRun stores the annotated products, marks the run completed and,
// when event is non-nil, queues it in the outbox. All of it happens in one
// transaction.
func (r *AuditRepository) CompleteRun(ctx context.Context, run *AuditRun, products []models.Product, event *OutboxEvent) error {
	now := time.Now()
	run.Status = RunStatusCompleted
	run.ProductCount = len(products)
	run.MockupCount = 0
	for _, p := range products {
		run.MockupCount += p.MockupCount()
	}
	run.CompletedAt = &now

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM audit_products WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("failed to clear audit products: %w", err)
		}

		batch := &pgx.Batch{}
		for i, p := range products {
			batch.Queue(`
				INSERT INTO audit_products (
					run_id, position, url, title, sku,
					images, variations, mockup_images, missing_sizes, scraped_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				run.ID, i, p.URL, p.Title, p.SKU,
				nonNil(p.Images), nonNil(p.Variants), nonNil(p.MockupImages), nonNil(p.MissingSizes), p.ScrapedAt,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert audit products: %w", err)
			}
		}

		query := `
			UPDATE audit_runs SET
				status = $2,
				product_count = $3,
				mockup_count = $4,
				failed_count = $5,
				completed_at = $6
			WHERE id = $1`

		tag, err := tx.Exec(ctx, query,
			run.ID, run.Status, run.ProductCount, run.MockupCount, run.FailedCount, run.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to complete audit run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
		}

		if event != nil {
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *AuditRepository) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE audit_runs SET
			status = $2,
			error_message = $3,
			completed_at = $4
		WHERE id = $1`

	tag, err := r.db.pool.Exec(ctx, query, id, RunStatusFailed, message, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark audit run failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

const runColumns = `
	id, seller_url, status, product_count, mockup_count, failed_count,
	error_message, created_at, completed_at`

func scanRun(row pgx.Row) (*AuditRun, error) {
	run := &AuditRun{}
	err := row.Scan(
		&run.ID, &run.SellerURL, &run.Status, &run.ProductCount, &run.MockupCount, &run.FailedCount,
		&run.ErrorMessage, &run.CreatedAt, &run.CompletedAt,
	)
	return run, err
}

func (r *AuditRepository) GetRun(ctx context.Context, id uuid.UUID) (*AuditRun, error) {
	run, err := scanRun(r.db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM audit_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *AuditRepository) ListRuns(ctx context.Context, limit int) ([]*AuditRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM audit_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*AuditRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// GetRunProducts returns the stored products of a run in listing order.
func (r *AuditRepository) GetRunProducts(ctx context.Context, id uuid.UUID) ([]models.Product, error) {
	query := `
		SELECT url, title, sku, images, variations, mockup_images, missing_sizes, scraped_at
		FROM audit_products
		WHERE run_id = $1
		ORDER BY position`

	rows, err := r.db.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.URL, &p.Title, &p.SKU, &p.Images, &p.Variants, &p.MockupImages, &p.MissingSizes, &p.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
