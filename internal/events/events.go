package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/report"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeAuditCompleted is published when a storefront audit finished
	EventTypeAuditCompleted EventType = "AUDIT_COMPLETED"

	// DefaultStream is the Redis stream audit events are appended to
	DefaultStream = "stream:storefront_audit"

	// AggregateTypeAuditRun identifies audit runs as event aggregates
	AggregateTypeAuditRun = "audit_run"

	source = "storefront-auditor"
)

// AuditCompletedPayload summarizes a finished audit for downstream consumers.
type AuditCompletedPayload struct {
	EventID                  string         `json:"event_id"`
	EventType                string         `json:"event_type"`
	Timestamp                time.Time      `json:"timestamp"`
	RunID                    string         `json:"run_id"`
	SellerURL                string         `json:"seller_url"`
	ProductCount             int            `json:"product_count"`
	FailedCount              int            `json:"failed_count"`
	ImageCount               int            `json:"image_count"`
	MockupCount              int            `json:"mockup_count"`
	ProductsWithMockups      int            `json:"products_with_mockups"`
	ProductsWithMissingSizes int            `json:"products_with_missing_sizes"`
	MissingSizes             map[string]int `json:"missing_sizes"`
	Source                   string         `json:"source"`
}

// NewAuditCompletedPayload aggregates products into an event payload. The
// event metadata fields are filled when the event is published.
func NewAuditCompletedPayload(runID, sellerURL string, products []models.Product, catalog []string) *AuditCompletedPayload {
	p := &AuditCompletedPayload{
		RunID:        runID,
		SellerURL:    sellerURL,
		ProductCount: len(products),
		MissingSizes: make(map[string]int, len(catalog)),
	}

	for _, product := range products {
		p.ImageCount += product.ImageCount()
		p.MockupCount += product.MockupCount()
		if product.MockupCount() > 0 {
			p.ProductsWithMockups++
		}
		if len(product.MissingSizes) > 0 {
			p.ProductsWithMissingSizes++
		}
	}

	for _, row := range report.MissingSizeBreakdown(products, catalog) {
		p.MissingSizes[row.Size] = row.MissingCount
	}

	return p
}

// StreamValues builds the field map appended to a Redis stream. The relay and
// the direct publisher both use it so consumers see one shape.
func StreamValues(id, eventType, aggregateType, aggregateID string, createdAt time.Time, retryCount int, payload json.RawMessage) (map[string]interface{}, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	streamData := map[string]interface{}{
		"id":             id,
		"type":           eventType,
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"timestamp":      createdAt.Format(time.RFC3339),
		"payload":        decoded,
		"metadata": map[string]interface{}{
			"source":      source,
			"retry_count": retryCount,
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream data: %w", err)
	}

	return map[string]interface{}{
		"data":           string(dataJSON),
		"type":           eventType,
		"timestamp":      fmt.Sprintf("%d", createdAt.UnixNano()),
		"original_id":    id,
		"aggregate_id":   aggregateID,
		"aggregate_type": aggregateType,
		"event_type":     eventType,
	}, nil
}
