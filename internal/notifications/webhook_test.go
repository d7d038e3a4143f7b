package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

func newTestSink(t *testing.T, url string, retries int) *WebhookSink {
	t.Helper()
	s, err := NewWebhookSink(WebhookConfig{URL: url, Secret: "s3cret", Timeout: time.Second, MaxRetries: retries}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWebhookSink() error = %v", err)
	}
	s.backoff = time.Millisecond
	s.now = func() time.Time { return time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestWebhookSink_Notify(t *testing.T) {
	var gotSig, gotType string
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		if gotSig != Sign(body, "s3cret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 3)
	recipient := uuid.New()
	err := s.Notify(context.Background(), []uuid.UUID{recipient}, EventSLAWarning, map[string]string{"level": "high"})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if gotType != "application/json" {
		t.Errorf("expected content type application/json, got %q", gotType)
	}
	if gotSig == "" {
		t.Error("expected signature header")
	}
	if got.EventType != EventSLAWarning {
		t.Errorf("expected event %q, got %q", EventSLAWarning, got.EventType)
	}
	if len(got.Recipients) != 1 || got.Recipients[0] != recipient {
		t.Errorf("expected recipient %s, got %v", recipient, got.Recipients)
	}
}

func TestWebhookSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 3)
	if err := s.Notify(context.Background(), nil, EventSLAExpired, nil); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWebhookSink_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 2)
	if err := s.Notify(context.Background(), nil, EventSLAExpired, nil); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestWebhookSink_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 1)
	for i := 0; i < 5; i++ {
		_ = s.Notify(context.Background(), nil, EventSLAWarning, nil)
	}

	err := s.Notify(context.Background(), nil, EventSLAWarning, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls.Load() != 5 {
		t.Errorf("expected 5 requests before the breaker opened, got %d", calls.Load())
	}
}

func TestWebhookSink_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestSink(t, srv.URL, 3)
	s.backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Notify(ctx, nil, EventSLAWarning, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://hooks.example.com/sla", true},
		{"http://localhost:9000", true},
		{"ftp://example.com", false},
		{"/relative/path", false},
		{"https://", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidWebhookURL) {
				t.Errorf("expected ErrInvalidWebhookURL, got %v", err)
			}
		})
	}
}

func TestSign(t *testing.T) {
	a := Sign([]byte(`{"a":1}`), "k")
	if a != Sign([]byte(`{"a":1}`), "k") {
		t.Error("expected deterministic signature")
	}
	if a == Sign([]byte(`{"a":1}`), "other") {
		t.Error("expected signature to depend on secret")
	}
	if len(a) != len("sha256=")+64 {
		t.Errorf("unexpected signature length %d", len(a))
	}
}

type recordingSink struct {
	events []EventType
	err    error
}

func (r *recordingSink) Notify(_ context.Context, _ []uuid.UUID, eventType EventType, _ any) error {
	r.events = append(r.events, eventType)
	return r.err
}

func TestMultiSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	ok := &recordingSink{}
	m := MultiSink{failing, ok, NewLogSink(zerolog.Nop())}

	err := m.Notify(context.Background(), nil, EventSLAExpired, nil)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.events) != 1 {
		t.Errorf("expected every sink attempted, got %d", len(ok.events))
	}
}
