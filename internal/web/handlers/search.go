package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-people/internal/search"
	"github.com/kozaktomas/photo-people/internal/web/middleware"
)

// SearchHandler serves asset and people search
type SearchHandler struct {
	executor *search.Executor
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(executor *search.Executor) *SearchHandler {
	return &SearchHandler{executor: executor}
}

// Assets searches assets by text, filters and optional embedding similarity
func (h *SearchHandler) Assets(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	plan, err := search.ParseSearch(r.URL.Query())
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	page, err := h.executor.Execute(r.Context(), owner, plan)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// People searches people by name
func (h *SearchHandler) People(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	plan, err := search.ParsePeopleSearch(r.URL.Query())
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	people, err := h.executor.ExecutePeople(r.Context(), owner, plan)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, people)
}
