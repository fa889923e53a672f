package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-people/internal/identity"
	"github.com/kozaktomas/photo-people/internal/search"
	"github.com/kozaktomas/photo-people/internal/web/middleware"
)

// PeopleHandler serves person CRUD, face reassignment, merge and statistics.
type PeopleHandler struct {
	service *identity.Service
}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler(service *identity.Service) *PeopleHandler {
	return &PeopleHandler{service: service}
}

// FaceIDsRequest is the body of reassign and unassign requests.
type FaceIDsRequest struct {
	FaceIDs []string `json:"faceIds"`
}

// MergeRequest lists the people merged into the path person, in priority order.
type MergeRequest struct {
	IDs []string `json:"ids"`
}

// PeopleUpdateRequest is the body of a bulk update.
type PeopleUpdateRequest struct {
	People []identity.PersonUpdate `json:"people"`
}

// List returns the owner's people with totals
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	withHidden := false
	if raw := r.URL.Query().Get("withHidden"); raw != "" {
		var ok bool
		if withHidden, ok = search.ParseBool(raw); !ok {
			respondError(w, http.StatusBadRequest, "withHidden must be a boolean")
			return
		}
	}

	list, err := h.service.ListPeople(r.Context(), owner, withHidden)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Create creates an empty person, optionally with initial fields
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var fields identity.PersonUpdate
	if r.ContentLength != 0 && !decodeJSON(w, r, &fields) {
		return
	}

	person, err := h.service.CreatePerson(r.Context(), owner, fields)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, person)
}

// UpdateMany applies several person updates, reporting the result per id
func (h *PeopleHandler) UpdateMany(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var req PeopleUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	results, err := h.service.UpdatePeople(r.Context(), owner, req.People)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// Get returns a single person
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	person, err := h.service.GetPerson(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// Update changes the name, hidden flag, birth date or feature face of a person
func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var upd identity.PersonUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	person, err := h.service.UpdatePerson(r.Context(), owner, chi.URLParam(r, "id"), upd)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// Reassign moves faces to the path person
func (h *PeopleHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var req FaceIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.ReassignFaces(r.Context(), owner, chi.URLParam(r, "id"), req.FaceIDs)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Unassign detaches faces from their people
func (h *PeopleHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var req FaceIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.UnassignFaces(r.Context(), owner, req.FaceIDs)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Merge merges the listed people into the path person
func (h *PeopleHandler) Merge(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	var req MergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Merge(r.Context(), owner, chi.URLParam(r, "id"), req.IDs)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Statistics returns the asset count and date range of a person
func (h *PeopleHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	stats, err := h.service.Statistics(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Assets returns the distinct assets a person appears in
func (h *PeopleHandler) Assets(w http.ResponseWriter, r *http.Request) {
	owner := middleware.MustGetOwner(r.Context(), w)
	if owner == "" {
		return
	}

	assets, err := h.service.GetPersonAssets(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, assets)
}
