package handler

import (
	"net/http"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// FeedReader is the pull side of the opportunity feed.
type FeedReader interface {
	List(limit int) []domain.Opportunity
	Capacity() int
}

// OpportunityHandler serves the recent-opportunities query.
type OpportunityHandler struct {
	feed         FeedReader
	defaultLimit int
}

// NewOpportunityHandler creates an OpportunityHandler. defaultLimit applies
// when the request has no limit parameter.
func NewOpportunityHandler(feed FeedReader, defaultLimit int) *OpportunityHandler {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &OpportunityHandler{feed: feed, defaultLimit: defaultLimit}
}

// List returns the most recent opportunities, newest first, as a JSON array.
// GET /opportunities?limit=20
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, h.defaultLimit, h.feed.Capacity())
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	opps := h.feed.List(limit)
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, opps)
}
