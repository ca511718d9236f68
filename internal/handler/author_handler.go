package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/middleware"
	"go-research-cms/internal/service"

	"github.com/go-chi/chi/v5"
)

// AuthorServicer captures the author operations the handlers need.
type AuthorServicer interface {
	List(ctx context.Context) ([]*data.Author, error)
	Create(ctx context.Context, name, twitterUsername, bio string) (*data.Author, error)
}

// AuthorArticleLister lists an author's articles.
type AuthorArticleLister interface {
	ListByAuthor(ctx context.Context, authorID int64) ([]*data.Article, error)
}

// AuthorHandler holds the dependencies for the author handlers.
type AuthorHandler struct {
	authors  AuthorServicer
	articles AuthorArticleLister
	log      logger.Logger
}

// NewAuthorHandler creates a new AuthorHandler.
func NewAuthorHandler(authors AuthorServicer, articles AuthorArticleLister, log logger.Logger) *AuthorHandler {
	return &AuthorHandler{authors: authors, articles: articles, log: log}
}

// listHandler returns all authors.
func (h *AuthorHandler) listHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	authors, err := h.authors.List(r.Context())
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to list authors", Code: http.StatusInternalServerError}
	}
	out := make([]authorResponse, 0, len(authors))
	for _, author := range authors {
		out = append(out, toAuthorResponse(author))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
	return nil
}

// articlesHandler returns the articles written by one author.
func (h *AuthorHandler) articlesHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid author id", Code: http.StatusBadRequest}
	}
	articles, err := h.articles.ListByAuthor(r.Context(), id)
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to list author articles", Code: http.StatusInternalServerError}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toArticleListResponses(articles)})
	return nil
}

type authorRequest struct {
	Name            string `json:"name"`
	TwitterUsername string `json:"twitter_username"`
	Bio             string `json:"bio"`
}

// createHandler creates a new author.
func (h *AuthorHandler) createHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req authorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}

	author, err := h.authors.Create(r.Context(), req.Name, req.TwitterUsername, req.Bio)
	if err != nil {
		if errors.Is(err, service.ErrAuthorNameRequired) {
			return &middleware.AppError{Error: err, Message: err.Error(), Code: http.StatusBadRequest}
		}
		return &middleware.AppError{Error: err, Message: "Failed to create author", Code: http.StatusInternalServerError}
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toAuthorResponse(author)})
	return nil
}
