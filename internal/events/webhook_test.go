package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifier_Notify(t *testing.T) {
	var calls atomic.Int32
	var received AuditCompletedPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, 3, discardLogger())
	n.backoff = time.Millisecond

	payload := NewAuditCompletedPayload("run-7", "https://www.trendyol.com/magaza/x-m-1", auditProducts(), []string{"60x90"})
	require.NoError(t, n.Notify(context.Background(), payload))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "run-7", received.RunID)
	assert.Equal(t, 1, received.MissingSizes["60x90"])
}

func TestWebhookNotifier_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, 2, discardLogger())
	n.backoff = time.Millisecond

	err := n.Notify(context.Background(), &AuditCompletedPayload{RunID: "run-8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookNotifier_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second, 5, discardLogger())
	n.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Notify(ctx, &AuditCompletedPayload{RunID: "run-9"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
