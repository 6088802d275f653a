package http

import (
	"net/http"
	"strings"

	"tally/internal/core"
)

type createCategoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, ownerID int64) {
	categories, err := s.queries.ListCategories(r.Context(), ownerID)
	if err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, categoryResponse{ID: c.ID, Name: c.Name})
	}
	respondJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, ownerID int64) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, err.Error())
		return
	}

	category := core.Category{
		OwnerID: ownerID,
		Name:    strings.TrimSpace(req.Name),
	}
	if err := category.Validate(); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	if err := s.ledger.CreateCategory(r.Context(), &category); err != nil {
		respondDomainError(r.Context(), w, err)
		return
	}

	respondJSON(r.Context(), w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name})
}
