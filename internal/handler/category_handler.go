package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/middleware"
	"go-research-cms/internal/service"
)

// CategoryServicer captures the category operations the handlers need.
type CategoryServicer interface {
	List(ctx context.Context, primaryOnly bool, sortBy string) ([]*data.Category, error)
	Create(ctx context.Context, name string, isPrimary bool, parentID *int64) (*data.Category, error)
}

// CategoryHandler holds the dependencies for the category handlers.
type CategoryHandler struct {
	categories CategoryServicer
	log        logger.Logger
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(categories CategoryServicer, log logger.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, log: log}
}

// listHandler returns categories that have at least one published article,
// each annotated with its article count.
func (h *CategoryHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	primaryOnly := r.URL.Query().Get("primary_only") == "true"
	sortBy := r.URL.Query().Get("sort_by")

	categories, err := h.categories.List(r.Context(), primaryOnly, sortBy)
	if err != nil {
		if errors.Is(err, data.ErrInvalidSortField) {
			return &middleware.AppError{Error: err, Message: "Invalid sort field", Code: http.StatusBadRequest}
		}
		return &middleware.AppError{Error: err, Message: "Failed to list categories", Code: http.StatusInternalServerError}
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		out = append(out, toCategoryResponse(category, true))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
	return nil
}

type categoryRequest struct {
	Name      string `json:"name"`
	IsPrimary bool   `json:"is_primary"`
	ParentID  *int64 `json:"parent_id"`
}

// createHandler creates a new category.
func (h *CategoryHandler) createHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}

	category, err := h.categories.Create(r.Context(), req.Name, req.IsPrimary, req.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCategoryNameRequired),
			errors.Is(err, service.ErrPrimaryHasParent),
			errors.Is(err, service.ErrCategoryCycle):
			return &middleware.AppError{Error: err, Message: err.Error(), Code: http.StatusBadRequest}
		default:
			return &middleware.AppError{Error: err, Message: "Failed to create category", Code: http.StatusInternalServerError}
		}
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toCategoryResponse(category, false)})
	return nil
}
