package mailing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-research-cms/internal/config"
	"go-research-cms/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

// ErrInvalidAddress is returned when the platform rejects an email address
// as invalid. It is terminal: retrying cannot fix a bad address, so callers
// record it instead of raising it.
var ErrInvalidAddress = errors.New("email address rejected as invalid by the platform")

// maxSyncAttempts bounds retries for a single platform call.
const maxSyncAttempts = 3

// PlatformClient talks to the hosted email-marketing API that mirrors our
// subscriber list. All three operations are idempotent on the platform side,
// which is keyed by email address.
type PlatformClient struct {
	baseURL       string
	apiKey        string
	publicationID string
	httpClient    *http.Client
	log           logger.Logger
}

// NewPlatformClient creates a client for the configured publication.
func NewPlatformClient(cfg config.PlatformConfig, log logger.Logger) (*PlatformClient, error) {
	if cfg.APIKey == "" || cfg.PublicationID == "" {
		return nil, errors.New("mail platform api_key and publication_id must be configured")
	}
	return &PlatformClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		publicationID: cfg.PublicationID,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}, nil
}

type subscriptionResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateSubscriber registers an email address with the platform and returns
// the platform's subscriber id. Re-creating an existing address reactivates
// it, so the call is safe to repeat.
func (c *PlatformClient) CreateSubscriber(ctx context.Context, email string, active bool) (string, error) {
	endpoint := fmt.Sprintf("%s/publications/%s/subscriptions", c.baseURL, c.publicationID)
	payload := map[string]interface{}{
		"email":               email,
		"reactivate_existing": true,
		"send_welcome_email":  true,
		"utm_source":          "website",
		"status":              statusString(active),
	}

	var externalID string
	operation := func() error {
		body, err := c.do(ctx, http.MethodPost, endpoint, payload)
		if err != nil {
			return err
		}
		var parsed subscriptionResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("unexpected platform response: %w", err))
		}
		if parsed.Data.ID == "" {
			return backoff.Permanent(errors.New("platform response missing subscriber id"))
		}
		externalID = parsed.Data.ID
		return nil
	}
	if err := c.retry(ctx, operation); err != nil {
		return "", err
	}
	return externalID, nil
}

// UpdateSubscriberStatus flips a subscriber between active and inactive.
func (c *PlatformClient) UpdateSubscriberStatus(ctx context.Context, email string, active bool) error {
	endpoint := fmt.Sprintf("%s/publications/%s/subscriptions/email:%s", c.baseURL, c.publicationID, url.PathEscape(email))
	payload := map[string]interface{}{"status": statusString(active)}
	return c.retry(ctx, func() error {
		_, err := c.do(ctx, http.MethodPatch, endpoint, payload)
		return err
	})
}

// DeleteSubscriber removes a subscriber from the platform. A missing
// subscriber counts as success.
func (c *PlatformClient) DeleteSubscriber(ctx context.Context, email string) error {
	endpoint := fmt.Sprintf("%s/publications/%s/subscriptions/email:%s", c.baseURL, c.publicationID, url.PathEscape(email))
	return c.retry(ctx, func() error {
		_, err := c.do(ctx, http.MethodDelete, endpoint, nil)
		if errors.Is(err, errNotFound) {
			c.log.Warn(fmt.Sprintf("subscriber %s not found on platform, skipping deletion", email))
			return nil
		}
		return err
	})
}

// retry runs the operation with exponential backoff, up to maxSyncAttempts
// attempts. Permanent errors abort immediately.
func (c *PlatformClient) retry(ctx context.Context, operation func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSyncAttempts-1), ctx)
	err := backoff.Retry(operation, policy)
	if err != nil {
		return err
	}
	return nil
}

var errNotFound = errors.New("subscriber not found on platform")

// do performs one HTTP call and classifies the outcome: 2xx returns the
// body, 404 maps to a permanent errNotFound, 4xx responses naming an
// invalid address become the terminal ErrInvalidAddress, other 4xx are
// permanent, and network errors plus 5xx/429 are left retryable.
func (c *PlatformClient) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		// A missing subscriber will still be missing on the next attempt.
		return nil, backoff.Permanent(errNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("platform returned status %d", resp.StatusCode)
	case strings.Contains(strings.ToLower(string(body)), "invalid"):
		return nil, backoff.Permanent(ErrInvalidAddress)
	default:
		return nil, backoff.Permanent(fmt.Errorf("platform returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

func statusString(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
