package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/middleware"
	"go-research-cms/internal/service"

	"github.com/go-chi/chi/v5"
)

// SubscriberServicer captures the subscriber operations the handlers need.
type SubscriberServicer interface {
	Subscribe(ctx context.Context, email string) (*data.Subscriber, error)
	Unsubscribe(ctx context.Context, email string) error
}

// NewsletterScheduler schedules newsletter issues for delivery.
type NewsletterScheduler interface {
	Schedule(ctx context.Context, subject, content string, sendTime *time.Time) (*data.Newsletter, error)
}

// NewsletterHandler holds the dependencies for subscription and issue
// endpoints.
type NewsletterHandler struct {
	subscribers SubscriberServicer
	newsletters NewsletterScheduler
	log         logger.Logger
}

// NewNewsletterHandler creates a new NewsletterHandler.
func NewNewsletterHandler(subscribers SubscriberServicer, newsletters NewsletterScheduler, log logger.Logger) *NewsletterHandler {
	return &NewsletterHandler{subscribers: subscribers, newsletters: newsletters, log: log}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

// subscribeHandler registers a new subscriber.
func (h *NewsletterHandler) subscribeHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}

	subscriber, err := h.subscribers.Subscribe(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			return &middleware.AppError{Error: err, Message: err.Error(), Code: http.StatusBadRequest}
		case errors.Is(err, data.ErrDuplicateEmail):
			return &middleware.AppError{Error: err, Message: "This email is already subscribed", Code: http.StatusBadRequest}
		default:
			return &middleware.AppError{Error: err, Message: "Failed to subscribe", Code: http.StatusInternalServerError}
		}
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: map[string]string{"email": subscriber.Email}})
	return nil
}

// unsubscribeHandler deactivates a subscriber. The email arrives
// URL-encoded in the path so unsubscribe links can be plain GETs.
func (h *NewsletterHandler) unsubscribeHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid email", Code: http.StatusBadRequest}
	}

	if err := h.subscribers.Unsubscribe(r.Context(), email); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return &middleware.AppError{Error: err, Message: "Subscriber not found", Code: http.StatusNotFound}
		}
		return &middleware.AppError{Error: err, Message: "Failed to unsubscribe", Code: http.StatusInternalServerError}
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"email": email, "status": "unsubscribed"}})
	return nil
}

type newsletterRequest struct {
	Subject           string     `json:"subject"`
	Content           string     `json:"content"`
	ScheduledSendTime *time.Time `json:"scheduled_send_time"`
}

// createIssueHandler schedules a newsletter issue.
func (h *NewsletterHandler) createIssueHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}

	newsletter, err := h.newsletters.Schedule(r.Context(), req.Subject, req.Content, req.ScheduledSendTime)
	if err != nil {
		if errors.Is(err, service.ErrSubjectRequired) {
			return &middleware.AppError{Error: err, Message: err.Error(), Code: http.StatusBadRequest}
		}
		return &middleware.AppError{Error: err, Message: "Failed to schedule newsletter", Code: http.StatusInternalServerError}
	}

	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: map[string]interface{}{
		"id":                  newsletter.ID,
		"subject":             newsletter.Subject,
		"scheduled_send_time": newsletter.ScheduledSendTime,
	}})
	return nil
}
