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

func webhookConfig(url string) WebhookConfig {
	cfg := DefaultWebhookConfig(url)
	cfg.EventsPerSec = 1000
	cfg.Burst = 1000
	cfg.Timeout = time.Second
	return cfg
}

func TestWebhookEmitter_Delivers(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookEmitter(webhookConfig(srv.URL))
	ev := sampleEvent(TypeCreated)
	require.NoError(t, w.Emit(context.Background(), ev))

	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, TypeCreated, got.Type)
	assert.Equal(t, "iv1", got.Intervention.ID)
}

func TestWebhookEmitter_ErrorStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookEmitter(webhookConfig(srv.URL))
	err := w.Emit(context.Background(), sampleEvent(TypeClosed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookEmitter_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := webhookConfig(srv.URL)
	cfg.BreakerMaxFail = 3
	w := NewWebhookEmitter(cfg)

	for i := 0; i < 5; i++ {
		assert.Error(t, w.Emit(context.Background(), sampleEvent(TypeCreated)))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits),
		"after the trip threshold the breaker stops hitting the receiver")
}
