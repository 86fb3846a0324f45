package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/visor/internal/api/shared"
	"github.com/phrazzld/visor/internal/vectorindex"
)

// SearchRequest represents the request body for searching images.
type SearchRequest struct {
	Query string `json:"query" validate:"required,min=1"`
	Limit int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// SearchResponse wraps the ranked results.
type SearchResponse struct {
	Results []vectorindex.SearchResult `json:"results"`
}

// SearchHandler handles search HTTP requests.
type SearchHandler struct {
	service ProcessingService
	logger  *slog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(svc ProcessingService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger.With("component", "search_handler"),
	}
}

// Search handles POST /api/search requests.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	results, err := h.service.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Search failed", err)
		return
	}
	if results == nil {
		results = []vectorindex.SearchResult{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, SearchResponse{Results: results})
}
