package database

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	id            UUID PRIMARY KEY,
	seller_url    TEXT NOT NULL,
	status        TEXT NOT NULL,
	product_count INTEGER NOT NULL DEFAULT 0,
	mockup_count  INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_created_at ON audit_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS audit_products (
	run_id        UUID NOT NULL REFERENCES audit_runs (id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	sku           TEXT NOT NULL DEFAULT '',
	images        TEXT[] NOT NULL DEFAULT '{}',
	variations    TEXT[] NOT NULL DEFAULT '{}',
	mockup_images TEXT[] NOT NULL DEFAULT '{}',
	missing_sizes TEXT[] NOT NULL DEFAULT '{}',
	scraped_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	target_stream  TEXT NOT NULL,
	status         TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at);
`
