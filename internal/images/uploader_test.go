//go:build unit

package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-research-cms/internal/config"
)

func TestUploader_Upload(t *testing.T) {
	var gotFilename, gotFolder string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cdn-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			t.Fatalf("failed to parse multipart body: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotFolder = r.FormValue("folder")
		w.Write([]byte(`{"public_id":"research/diagram","secure_url":"https://cdn.example.com/research/diagram.png"}`))
	}))
	defer server.Close()

	uploader := NewUploader(config.ImagesConfig{
		UploadURL: server.URL,
		APIKey:    "cdn-key",
		Folder:    "research",
	})

	content := strings.NewReader("fake png bytes")
	result, err := uploader.Upload(context.Background(), content, "my diagram (v2).png", "image/png", content.Size())
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.SecureURL != "https://cdn.example.com/research/diagram.png" {
		t.Errorf("unexpected secure url %q", result.SecureURL)
	}
	if result.PublicID != "research/diagram" {
		t.Errorf("unexpected public id %q", result.PublicID)
	}
	if gotFilename != "mydiagramv2.png" {
		t.Errorf("expected sanitized filename, got %q", gotFilename)
	}
	if gotFolder != "research" {
		t.Errorf("expected folder field, got %q", gotFolder)
	}
}

func TestUploader_RejectsOversizedFile(t *testing.T) {
	uploader := NewUploader(config.ImagesConfig{UploadURL: "http://unused"})
	_, err := uploader.Upload(context.Background(), strings.NewReader(""), "big.png", "image/png", MaxUploadSize+1)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestUploader_RejectsUnsupportedType(t *testing.T) {
	uploader := NewUploader(config.ImagesConfig{UploadURL: "http://unused"})
	for _, contentType := range []string{"image/svg+xml", "application/pdf", "text/html", ""} {
		_, err := uploader.Upload(context.Background(), strings.NewReader("x"), "file", contentType, 10)
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType for %q, got %v", contentType, err)
		}
	}
}

func TestUploader_SurfacesCDNErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad credentials"))
	}))
	defer server.Close()

	uploader := NewUploader(config.ImagesConfig{UploadURL: server.URL, APIKey: "wrong"})
	_, err := uploader.Upload(context.Background(), strings.NewReader("x"), "a.png", "image/png", 1)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"photo.png", "photo.png"},
		{"my diagram (v2).png", "mydiagramv2.png"},
		{"../../etc/passwd", "....etcpasswd"},
		{"Ünïcödé.jpg", "ncd.jpg"},
		{"???", "upload"},
		{"", "upload"},
		{"._-", "upload"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
