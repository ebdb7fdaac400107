package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brqueue/internal/kernel"
	"brqueue/internal/logging"
	"brqueue/internal/networking"
)

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestReadinessHandlerReportsKernelOccupancy(t *testing.T) {
	started := time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	stats := func() kernel.Stats {
		return kernel.Stats{PendingHigh: 2, PendingLow: 5, InFlight: 1, Waiters: 3}
	}
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Stats:      stats,
		StartedAt:  started,
		TimeSource: func() time.Time { return now },
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	handlers.ReadinessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		PendingHigh   int     `json:"pending_high"`
		PendingLow    int     `json:"pending_low"`
		InFlight      int     `json:"in_flight"`
		Waiters       int     `json:"waiters"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.PendingHigh != 2 || payload.PendingLow != 5 || payload.InFlight != 1 || payload.Waiters != 3 {
		t.Fatalf("unexpected occupancy: %+v", payload)
	}
	if payload.UptimeSeconds != 90 {
		t.Fatalf("unexpected uptime: %f", payload.UptimeSeconds)
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	stats := func() kernel.Stats {
		return kernel.Stats{PendingHigh: 4, PendingLow: 1, InFlight: 2, Waiters: 1}
	}
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	bandwidth := networking.NewBandwidthRegulator(100, clock)
	if !bandwidth.Allow("session-1", 100) {
		t.Fatalf("initial bandwidth allowance failed")
	}
	if bandwidth.Allow("session-1", 10) {
		t.Fatalf("expected bandwidth request to be throttled")
	}
	current = current.Add(time.Second)

	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Stats:     stats,
		Bandwidth: bandwidth,
		StartedAt: time.Unix(0, 0).Add(-90 * time.Second),
		TimeSource: func() time.Time {
			return time.Unix(0, 0)
		},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"brqueue_uptime_seconds 90",
		"brqueue_pending_messages{priority=\"high\"} 4",
		"brqueue_pending_messages{priority=\"low\"} 1",
		"brqueue_in_flight_messages 2",
		"brqueue_waiters 1",
		"brqueue_delivery_bytes_per_second{session=\"session-1\"} 100.00",
		"brqueue_delivery_denied_total{session=\"session-1\"} 1",
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
}

func TestPendingHandlerAuthAndRateLimits(t *testing.T) {
	limiter := &stubLimiter{remaining: 1}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		AdminToken:  "topsecret",
		RateLimiter: limiter,
	})

	makeRequest := func(token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		handlers.PendingHandler().ServeHTTP(rr, req)
		return rr
	}

	if resp := makeRequest(""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for missing token, got %d", resp.Code)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for authorised request, got %d", resp.Code)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", resp.Code)
	}
}

func TestPendingHandlerReturnsSnapshotInDispatchOrder(t *testing.T) {
	k := kernel.New()
	lowID := k.Enqueue([]byte("low payload"), kernel.Low, nil)
	highID := k.Enqueue([]byte("hi"), kernel.High, []string{"gpu"})

	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		AdminToken: "topsecret",
		Pending:    k.GetAll,
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	handlers.PendingHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Messages []struct {
			ID                   string   `json:"id"`
			Priority             string   `json:"priority"`
			RequiredCapabilities []string `json:"requiredCapabilities"`
			PayloadBytes         int      `json:"payloadBytes"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("expected two pending messages, got %+v", payload.Messages)
	}
	if payload.Messages[0].ID != highID || payload.Messages[0].Priority != "high" {
		t.Fatalf("expected high-priority message first, got %+v", payload.Messages[0])
	}
	if payload.Messages[0].RequiredCapabilities[0] != "gpu" {
		t.Fatalf("expected capability preserved, got %+v", payload.Messages[0])
	}
	if payload.Messages[1].ID != lowID || payload.Messages[1].PayloadBytes != len("low payload") {
		t.Fatalf("unexpected low-priority entry: %+v", payload.Messages[1])
	}
}

func TestPendingHandlerDisabledWithoutAdminToken(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger()})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
	handlers.PendingHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when admin auth is disabled, got %d", rr.Code)
	}
}
