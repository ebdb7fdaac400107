// Package httpapi exposes the broker's operational surface: liveness,
// readiness and Prometheus-style metrics, plus an admin-token-gated
// endpoint for introspecting the full pending set.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"brqueue/internal/kernel"
	"brqueue/internal/logging"
	"brqueue/internal/networking"
)

// KernelStats reports current kernel occupancy for the metrics and admin
// surfaces, decoupling them from a concrete *kernel.Kernel so tests can
// supply a fixed snapshot.
type KernelStats func() kernel.Stats

// RateLimiter gates how frequently a sensitive operation may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Stats       KernelStats
	Pending     func() []kernel.Message
	Bandwidth   *networking.BandwidthRegulator
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
	StartedAt   time.Time
}

// HandlerSet bundles the broker's operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	stats       KernelStats
	pending     func() []kernel.Message
	bandwidth   *networking.BandwidthRegulator
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
	startedAt   time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	return &HandlerSet{
		logger:      logger,
		stats:       opts.Stats,
		pending:     opts.Pending,
		bandwidth:   opts.Bandwidth,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
		startedAt:   startedAt,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/admin/pending", h.PendingHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports kernel occupancy and process uptime. The broker
// is always ready once it is serving: there is no external dependency to
// wait on (the kernel is in-memory only).
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		PendingHigh   int     `json:"pending_high"`
		PendingLow    int     `json:"pending_low"`
		InFlight      int     `json:"in_flight"`
		Waiters       int     `json:"waiters"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok", UptimeSeconds: h.now().Sub(h.startedAt).Seconds()}
		if h.stats != nil {
			s := h.stats()
			resp.PendingHigh = s.PendingHigh
			resp.PendingLow = s.PendingLow
			resp.InFlight = s.InFlight
			resp.Waiters = s.Waiters
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(w, "# HELP brqueue_uptime_seconds Broker uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE brqueue_uptime_seconds gauge\n")
		fmt.Fprintf(w, "brqueue_uptime_seconds %.0f\n", h.now().Sub(h.startedAt).Seconds())

		if h.stats != nil {
			s := h.stats()
			fmt.Fprintf(w, "# HELP brqueue_pending_messages Pending messages per priority.\n")
			fmt.Fprintf(w, "# TYPE brqueue_pending_messages gauge\n")
			fmt.Fprintf(w, "brqueue_pending_messages{priority=\"high\"} %d\n", s.PendingHigh)
			fmt.Fprintf(w, "brqueue_pending_messages{priority=\"low\"} %d\n", s.PendingLow)

			fmt.Fprintf(w, "# HELP brqueue_in_flight_messages Delivered but unacknowledged messages.\n")
			fmt.Fprintf(w, "# TYPE brqueue_in_flight_messages gauge\n")
			fmt.Fprintf(w, "brqueue_in_flight_messages %d\n", s.InFlight)

			fmt.Fprintf(w, "# HELP brqueue_waiters Currently registered blocked pop/subscribe waiters.\n")
			fmt.Fprintf(w, "# TYPE brqueue_waiters gauge\n")
			fmt.Fprintf(w, "brqueue_waiters %d\n", s.Waiters)
		}

		if h.bandwidth != nil {
			usage := h.bandwidth.SnapshotUsage()
			if len(usage) > 0 {
				fmt.Fprintf(w, "# HELP brqueue_delivery_bytes_per_second Observed outbound delivery throughput per session.\n")
				fmt.Fprintf(w, "# TYPE brqueue_delivery_bytes_per_second gauge\n")
				for sessionID, sample := range usage {
					fmt.Fprintf(w, "brqueue_delivery_bytes_per_second{session=%q} %.2f\n", sessionID, sample.BytesPerSecond)
				}
				fmt.Fprintf(w, "# HELP brqueue_delivery_available_bytes Remaining delivery token-bucket capacity per session.\n")
				fmt.Fprintf(w, "# TYPE brqueue_delivery_available_bytes gauge\n")
				for sessionID, sample := range usage {
					fmt.Fprintf(w, "brqueue_delivery_available_bytes{session=%q} %.2f\n", sessionID, sample.AvailableBytes)
				}
				fmt.Fprintf(w, "# HELP brqueue_delivery_denied_total Total throttled deliveries per session.\n")
				fmt.Fprintf(w, "# TYPE brqueue_delivery_denied_total counter\n")
				for sessionID, sample := range usage {
					fmt.Fprintf(w, "brqueue_delivery_denied_total{session=%q} %d\n", sessionID, sample.DeniedDeliveries)
				}
			}
		}
	}
}

// PendingHandler is the admin-token-gated introspection endpoint backing
// get_all: it returns every pending message in dispatch order.
func (h *HandlerSet) PendingHandler() http.HandlerFunc {
	type message struct {
		ID                   string   `json:"id"`
		Priority             string   `json:"priority"`
		RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`
		PayloadBytes         int      `json:"payloadBytes"`
	}
	type response struct {
		Messages []message `json:"messages"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "pending"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if h.adminToken == "" {
			reqLogger.Warn("pending introspection denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("pending introspection denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("pending introspection denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		resp := response{Messages: []message{}}
		if h.pending != nil {
			snapshot := h.pending()
			resp.Messages = make([]message, 0, len(snapshot))
			for _, m := range snapshot {
				resp.Messages = append(resp.Messages, message{
					ID:                   m.ID,
					Priority:             m.Priority.String(),
					RequiredCapabilities: m.RequiredCapabilities.Slice(),
					PayloadBytes:         len(m.Payload),
				})
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
