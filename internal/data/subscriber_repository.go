package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// SubscriberRepository handles database operations for newsletter subscribers.
type SubscriberRepository struct {
	db *sqlx.DB
}

// NewSubscriberRepository creates a new SubscriberRepository.
func NewSubscriberRepository(db *sqlx.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberColumns = `id, email, is_active, external_id, synced, sync_error, created_at, updated_at`

// Create inserts a new subscriber. A duplicate email maps to
// ErrDuplicateEmail so handlers can answer 400 instead of 500.
func (r *SubscriberRepository) Create(ctx context.Context, subscriber *Subscriber) (int64, error) {
	now := time.Now().UTC()
	subscriber.CreatedAt = now
	subscriber.UpdatedAt = now
	query := `INSERT INTO subscribers (email, is_active, external_id, synced, sync_error, created_at, updated_at)
		VALUES (:email, :is_active, :external_id, :synced, :sync_error, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, subscriber)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("failed to insert subscriber: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get subscriber id: %w", err)
	}
	subscriber.ID = id
	return id, nil
}

// GetByEmail finds a subscriber by email.
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*Subscriber, error) {
	var subscriber Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = ?`
	if err := r.db.GetContext(ctx, &subscriber, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &subscriber, nil
}

// SetActive flips the active flag and marks the row unsynced so the next
// sweep pushes the change to the platform.
func (r *SubscriberRepository) SetActive(ctx context.Context, email string, active bool) error {
	query := `UPDATE subscribers SET is_active = ?, synced = ?, updated_at = ? WHERE email = ?`
	result, err := r.db.ExecContext(ctx, query, active, false, time.Now().UTC(), email)
	if err != nil {
		return fmt.Errorf("failed to update subscriber: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSynced records a successful mirror into the platform, clearing any
// previous sync error.
func (r *SubscriberRepository) MarkSynced(ctx context.Context, email, externalID string) error {
	query := `UPDATE subscribers SET synced = ?, external_id = ?, sync_error = '', updated_at = ? WHERE email = ?`
	if _, err := r.db.ExecContext(ctx, query, true, externalID, time.Now().UTC(), email); err != nil {
		return fmt.Errorf("failed to mark subscriber synced: %w", err)
	}
	return nil
}

// MarkSyncError persists a sync failure on the row. terminal marks the row
// synced so the retry sweep stops picking it up (used for addresses the
// platform rejected as invalid).
func (r *SubscriberRepository) MarkSyncError(ctx context.Context, email, syncError string, terminal bool) error {
	query := `UPDATE subscribers SET synced = ?, sync_error = ?, updated_at = ? WHERE email = ?`
	if _, err := r.db.ExecContext(ctx, query, terminal, syncError, time.Now().UTC(), email); err != nil {
		return fmt.Errorf("failed to mark subscriber sync error: %w", err)
	}
	return nil
}

// ListUnsynced returns subscribers that have never been mirrored or have a
// pending change, oldest first, excluding rows with a recorded failure.
func (r *SubscriberRepository) ListUnsynced(ctx context.Context, limit int) ([]*Subscriber, error) {
	var subscribers []*Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
		WHERE synced = ? AND sync_error = '' ORDER BY updated_at LIMIT ?`
	if err := r.db.SelectContext(ctx, &subscribers, query, false, limit); err != nil {
		return nil, fmt.Errorf("failed to list unsynced subscribers: %w", err)
	}
	return subscribers, nil
}

// ListFailed returns subscribers whose last sync attempt recorded an error
// and which have not been terminally rejected.
func (r *SubscriberRepository) ListFailed(ctx context.Context, limit int) ([]*Subscriber, error) {
	var subscribers []*Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
		WHERE synced = ? AND sync_error <> '' ORDER BY updated_at LIMIT ?`
	if err := r.db.SelectContext(ctx, &subscribers, query, false, limit); err != nil {
		return nil, fmt.Errorf("failed to list failed subscribers: %w", err)
	}
	return subscribers, nil
}

// ListActive returns every active subscriber.
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]*Subscriber, error) {
	var subscribers []*Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE is_active = ? ORDER BY id`
	if err := r.db.SelectContext(ctx, &subscribers, query, true); err != nil {
		return nil, fmt.Errorf("failed to list active subscribers: %w", err)
	}
	return subscribers, nil
}

// CountActive returns the number of active subscribers.
func (r *SubscriberRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM subscribers WHERE is_active = ?`, true); err != nil {
		return 0, fmt.Errorf("failed to count active subscribers: %w", err)
	}
	return count, nil
}

// Delete removes a subscriber.
func (r *SubscriberRepository) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects duplicate-key errors across the MySQL driver and
// the SQLite driver used in tests.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}
