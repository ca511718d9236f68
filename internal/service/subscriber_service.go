package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"
	"go-research-cms/internal/mailing"
)

// ErrInvalidEmail is returned when a subscription request carries a
// malformed address.
var ErrInvalidEmail = errors.New("a valid email address is required")

// SubscriberRepository defines the interface for database operations on
// subscribers.
type SubscriberRepository interface {
	Create(ctx context.Context, subscriber *data.Subscriber) (int64, error)
	GetByEmail(ctx context.Context, email string) (*data.Subscriber, error)
	SetActive(ctx context.Context, email string, active bool) error
	MarkSynced(ctx context.Context, email, externalID string) error
	MarkSyncError(ctx context.Context, email, syncError string, terminal bool) error
	ListUnsynced(ctx context.Context, limit int) ([]*data.Subscriber, error)
	ListFailed(ctx context.Context, limit int) ([]*data.Subscriber, error)
	Delete(ctx context.Context, email string) error
}

// SubscriberPlatform mirrors subscriber state into the hosted
// email-marketing platform.
type SubscriberPlatform interface {
	CreateSubscriber(ctx context.Context, email string, active bool) (string, error)
	UpdateSubscriberStatus(ctx context.Context, email string, active bool) error
	DeleteSubscriber(ctx context.Context, email string) error
}

// SubscriberService manages the local subscriber list and its one-way
// mirror into the platform. Mirroring is best-effort at mutation time; the
// background sweeps pick up whatever did not stick.
type SubscriberService struct {
	repo     SubscriberRepository
	platform SubscriberPlatform
	log      logger.Logger
}

// NewSubscriberService creates a new SubscriberService. platform may be nil
// to run without mirroring.
func NewSubscriberService(repo SubscriberRepository, platform SubscriberPlatform, log logger.Logger) *SubscriberService {
	return &SubscriberService{repo: repo, platform: platform, log: log}
}

// Subscribe registers a new active subscriber and attempts an immediate
// platform sync.
func (s *SubscriberService) Subscribe(ctx context.Context, email string) (*data.Subscriber, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	subscriber := &data.Subscriber{Email: email, IsActive: true}
	if _, err := s.repo.Create(ctx, subscriber); err != nil {
		return nil, err
	}

	s.syncQuietly(ctx, subscriber)
	return subscriber, nil
}

// Unsubscribe deactivates a subscriber. Deactivating an already inactive
// subscriber is a no-op apart from the sync flag.
func (s *SubscriberService) Unsubscribe(ctx context.Context, email string) error {
	if err := s.repo.SetActive(ctx, email, false); err != nil {
		return err
	}
	subscriber, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	s.syncQuietly(ctx, subscriber)
	return nil
}

// Remove deletes a subscriber locally and from the platform.
func (s *SubscriberService) Remove(ctx context.Context, email string) error {
	if s.platform != nil {
		if err := s.platform.DeleteSubscriber(ctx, email); err != nil {
			// The local delete proceeds regardless; the platform is keyed
			// by email and tolerates stale rows.
			s.log.Error(err, fmt.Sprintf("failed to delete subscriber %s from platform", email))
		}
	}
	return s.repo.Delete(ctx, email)
}

// SyncPending mirrors subscribers with un-pushed changes, returning how many
// synced cleanly.
func (s *SubscriberService) SyncPending(ctx context.Context, limit int) (int, error) {
	subscribers, err := s.repo.ListUnsynced(ctx, limit)
	if err != nil {
		return 0, err
	}
	return s.syncBatch(ctx, subscribers), nil
}

// RetryFailed re-attempts subscribers whose last sync recorded an error.
// Terminally rejected addresses are excluded by the repository query.
func (s *SubscriberService) RetryFailed(ctx context.Context, limit int) (int, error) {
	subscribers, err := s.repo.ListFailed(ctx, limit)
	if err != nil {
		return 0, err
	}
	return s.syncBatch(ctx, subscribers), nil
}

func (s *SubscriberService) syncBatch(ctx context.Context, subscribers []*data.Subscriber) int {
	synced := 0
	for _, subscriber := range subscribers {
		if err := s.Sync(ctx, subscriber); err != nil {
			s.log.Error(err, fmt.Sprintf("failed to sync subscriber %s", subscriber.Email))
			continue
		}
		synced++
	}
	return synced
}

// Sync pushes one subscriber's current state to the platform and records
// the outcome on the row. An address the platform rejects as invalid is
// recorded as a terminal sync error and not returned as a failure.
func (s *SubscriberService) Sync(ctx context.Context, subscriber *data.Subscriber) error {
	if s.platform == nil {
		return nil
	}

	var (
		externalID = subscriber.ExternalID
		err        error
	)
	if subscriber.ExternalID == "" {
		externalID, err = s.platform.CreateSubscriber(ctx, subscriber.Email, subscriber.IsActive)
	} else {
		err = s.platform.UpdateSubscriberStatus(ctx, subscriber.Email, subscriber.IsActive)
	}

	if err != nil {
		if errors.Is(err, mailing.ErrInvalidAddress) {
			s.log.Warn(fmt.Sprintf("platform rejected %s as invalid, not retrying", subscriber.Email))
			return s.repo.MarkSyncError(ctx, subscriber.Email, err.Error(), true)
		}
		if markErr := s.repo.MarkSyncError(ctx, subscriber.Email, err.Error(), false); markErr != nil {
			s.log.Error(markErr, "failed to record sync error")
		}
		return err
	}
	return s.repo.MarkSynced(ctx, subscriber.Email, externalID)
}

// syncQuietly runs a sync and downgrades failures to log lines; callers on
// the request path must not fail because the platform is down.
func (s *SubscriberService) syncQuietly(ctx context.Context, subscriber *data.Subscriber) {
	if err := s.Sync(ctx, subscriber); err != nil {
		s.log.Error(err, fmt.Sprintf("deferred platform sync for %s to background retry", subscriber.Email))
	}
}
