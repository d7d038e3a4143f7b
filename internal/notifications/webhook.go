package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Slawatch-Signature"

// ErrInvalidWebhookURL is returned for a webhook URL that is not absolute http(s).
var ErrInvalidWebhookURL = errors.New("invalid webhook url")

// WebhookPayload is the JSON body posted to webhook endpoints.
type WebhookPayload struct {
	EventType  EventType   `json:"event_type"`
	Timestamp  time.Time   `json:"timestamp"`
	Recipients []uuid.UUID `json:"recipients"`
	Data       any         `json:"data"`
}

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// WebhookSink posts signed JSON notifications with retry. Consecutive
// failures open a circuit breaker so a dead endpoint does not stall scans.
type WebhookSink struct {
	url        string
	secret     string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
	logger     zerolog.Logger
}

// NewWebhookSink creates a new WebhookSink.
func NewWebhookSink(cfg WebhookConfig, logger zerolog.Logger) (*WebhookSink, error) {
	if err := ValidateWebhookURL(cfg.URL); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	log := logger.With().Str("component", "webhook_sink").Logger()
	return &WebhookSink{
		url:        cfg.URL,
		secret:     cfg.Secret,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "sla_webhook",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("webhook circuit breaker state changed")
			},
		}),
		now:    time.Now,
		logger: log,
	}, nil
}

// ValidateWebhookURL checks that raw is an absolute http or https URL.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidWebhookURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidWebhookURL)
	}
	return nil
}

// Notify implements Sink.
func (w *WebhookSink) Notify(ctx context.Context, recipientIDs []uuid.UUID, eventType EventType, payload any) error {
	body, err := json.Marshal(WebhookPayload{
		EventType:  eventType,
		Timestamp:  w.now().UTC(),
		Recipients: recipientIDs,
		Data:       payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	_, err = w.breaker.Execute(func() (interface{}, error) {
		return nil, w.sendWithRetry(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", eventType, err)
	}
	return nil
}

func (w *WebhookSink) sendWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * w.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			w.logger.Debug().Int("attempt", attempt+1).Msg("retrying webhook")
		}

		lastErr = w.send(ctx, body)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", w.maxRetries, lastErr)
}

func (w *WebhookSink) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	w.logger.Debug().Int("status", resp.StatusCode).Msg("webhook notification sent")
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
