package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// defaultRecentEvents is how many audit rows GetStatus includes.
const defaultRecentEvents = 10

// StatusSource reports scheduler progress.
type StatusSource interface {
	Status() domain.ScanStatus
}

// PriceSnapshotter exposes the cached prices.
type PriceSnapshotter interface {
	Snapshot() []domain.PriceEntry
}

// FeedStats reports the size of the in-memory feed and how many batches
// were dropped for slow subscribers.
type FeedStats interface {
	Len() int
	Dropped() uint64
}

// AuditReader lists the newest audit rows.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// StatusHandler serves runtime status and the price cache view.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	scanner   StatusSource     // nil on API-only replicas
	prices    PriceSnapshotter // nil on API-only replicas
	feed      FeedStats
	audit     AuditReader // nil without postgres
	recent    int
}

// NewStatusHandler creates a StatusHandler. scanner and prices may be nil.
func NewStatusHandler(mode string, startedAt time.Time, scanner StatusSource, prices PriceSnapshotter, feed FeedStats) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		scanner:   scanner,
		prices:    prices,
		feed:      feed,
		recent:    defaultRecentEvents,
	}
}

// WithAudit adds the newest audit rows to the status response.
func (h *StatusHandler) WithAudit(audit AuditReader) *StatusHandler {
	h.audit = audit
	return h
}

// GetStatus responds with the mode, uptime, feed counters, scanner progress
// and, when an audit reader is set, the newest audit rows.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.feed != nil {
		body["feed_size"] = h.feed.Len()
		body["feed_dropped"] = h.feed.Dropped()
	}
	if h.scanner != nil {
		body["scanner"] = h.scanner.Status()
	}
	if h.audit != nil {
		entries, err := h.audit.ListRecent(r.Context(), h.recent)
		if err != nil {
			body["recent_events_error"] = err.Error()
		} else {
			events := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				events = append(events, map[string]any{
					"event":      e.Event,
					"detail":     e.Detail,
					"created_at": e.CreatedAt,
				})
			}
			body["recent_events"] = events
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// GetPrices responds with the cached USD prices.
// GET /api/prices
func (h *StatusHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusNotFound, "price cache not available in this mode")
		return
	}
	entries := h.prices.Snapshot()
	if entries == nil {
		entries = []domain.PriceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
