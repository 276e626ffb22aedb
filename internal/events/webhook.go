package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// WebhookEmitter POSTs events as JSON to a single endpoint, behind a
// circuit breaker and a rate limiter so a dead or slow receiver cannot
// stall or hammer the engine.
type WebhookEmitter struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// WebhookConfig tunes the emitter.
type WebhookConfig struct {
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	EventsPerSec   float64       `yaml:"events_per_sec"`
	Burst          int           `yaml:"burst"`
	BreakerMaxFail uint32        `yaml:"breaker_max_failures"`
	BreakerCooloff time.Duration `yaml:"breaker_cooloff"`
}

// DefaultWebhookConfig returns conservative delivery settings.
func DefaultWebhookConfig(url string) WebhookConfig {
	return WebhookConfig{
		URL:            url,
		Timeout:        5 * time.Second,
		EventsPerSec:   10,
		Burst:          20,
		BreakerMaxFail: 5,
		BreakerCooloff: 30 * time.Second,
	}
}

// NewWebhookEmitter builds the emitter.
func NewWebhookEmitter(cfg WebhookConfig) *WebhookEmitter {
	settings := gobreaker.Settings{
		Name:    "intervention-webhook",
		Timeout: cfg.BreakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFail
		},
	}
	return &WebhookEmitter{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.EventsPerSec), cfg.Burst),
	}
}

func (w *WebhookEmitter) Emit(ctx context.Context, ev Event) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("deliver event %s: %w", ev.ID, err)
	}
	return nil
}
