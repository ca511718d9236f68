// Package images proxies editor uploads to the hosted image CDN so the
// CDN credentials never reach the browser.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go-research-cms/internal/config"
)

// Upload validation errors, surfaced to clients as 400s.
var (
	ErrFileTooLarge    = errors.New("image exceeds the maximum upload size")
	ErrUnsupportedType = errors.New("image type must be jpeg, png or gif")
)

// MaxUploadSize bounds a single image upload.
const MaxUploadSize = 5 << 20

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Everything outside this set is dropped from uploaded filenames before
// they are forwarded to the CDN.
var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Uploader forwards validated image files to the CDN upload endpoint.
type Uploader struct {
	uploadURL  string
	apiKey     string
	folder     string
	httpClient *http.Client
}

// NewUploader creates an uploader for the configured CDN account.
func NewUploader(cfg config.ImagesConfig) *Uploader {
	return &Uploader{
		uploadURL:  cfg.UploadURL,
		apiKey:     cfg.APIKey,
		folder:     cfg.Folder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResult carries the CDN's handle for a stored image.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// Upload validates the file and streams it to the CDN, returning the stored
// image's public id and URL.
func (u *Uploader) Upload(ctx context.Context, file io.Reader, filename, contentType string, size int64) (*UploadResult, error) {
	if size > MaxUploadSize {
		return nil, ErrFileTooLarge
	}
	if !allowedContentTypes[strings.ToLower(contentType)] {
		return nil, ErrUnsupportedType
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", SanitizeFilename(filename))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		if u.folder != "" {
			if err := writer.WriteField("folder", u.folder); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image cdn returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unexpected image cdn response: %w", err)
	}
	if result.SecureURL == "" {
		return nil, errors.New("image cdn response missing secure_url")
	}
	return &result, nil
}

// SanitizeFilename strips characters the CDN rejects. An emptied name falls
// back to a generic one so the upload still carries a valid part.
func SanitizeFilename(name string) string {
	cleaned := filenameSanitizer.ReplaceAllString(name, "")
	if cleaned == "" || strings.Trim(cleaned, "._-") == "" {
		return "upload"
	}
	return cleaned
}
