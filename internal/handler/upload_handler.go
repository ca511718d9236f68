package handler

import (
	"errors"
	"net/http"

	"go-research-cms/internal/images"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/middleware"
)

// UploadHandler proxies editor image uploads to the CDN.
type UploadHandler struct {
	uploader *images.Uploader
	log      logger.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uploader *images.Uploader, log logger.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, log: log}
}

// uploadHandler accepts a multipart image and returns the CDN URL in the
// shape the editor widget expects.
func (h *UploadHandler) uploadHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxUploadSize)
	if err := r.ParseMultipartForm(images.MaxUploadSize); err != nil {
		return &middleware.AppError{Error: err, Message: "Image exceeds the maximum upload size", Code: http.StatusBadRequest}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return &middleware.AppError{Error: err, Message: "No file provided", Code: http.StatusBadRequest}
	}
	defer file.Close()

	result, err := h.uploader.Upload(r.Context(), file, header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		switch {
		case errors.Is(err, images.ErrFileTooLarge), errors.Is(err, images.ErrUnsupportedType):
			return &middleware.AppError{Error: err, Message: err.Error(), Code: http.StatusBadRequest}
		default:
			return &middleware.AppError{Error: err, Message: "Image upload failed", Code: http.StatusInternalServerError}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"location": result.SecureURL})
	return nil
}
