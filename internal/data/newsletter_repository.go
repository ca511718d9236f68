package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// NewsletterRepository handles database operations for newsletter issues.
type NewsletterRepository struct {
	db *sqlx.DB
}

// NewNewsletterRepository creates a new NewsletterRepository.
func NewNewsletterRepository(db *sqlx.DB) *NewsletterRepository {
	return &NewsletterRepository{db: db}
}

// Save creates a new newsletter issue and returns its ID.
func (r *NewsletterRepository) Save(ctx context.Context, newsletter *Newsletter) (int64, error) {
	now := time.Now().UTC()
	newsletter.CreatedAt = now
	newsletter.UpdatedAt = now
	query := `INSERT INTO newsletters (subject, content, is_sent, scheduled_send_time, last_sent, created_at, updated_at)
		VALUES (:subject, :content, :is_sent, :scheduled_send_time, :last_sent, :created_at, :updated_at)`
	res, err := r.db.NamedExecContext(ctx, query, newsletter)
	if err != nil {
		return 0, fmt.Errorf("failed to insert newsletter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get newsletter id: %w", err)
	}
	newsletter.ID = id
	return id, nil
}

// ListDue returns unsent newsletters whose scheduled send time has elapsed.
func (r *NewsletterRepository) ListDue(ctx context.Context, now time.Time) ([]*Newsletter, error) {
	var newsletters []*Newsletter
	query := `SELECT id, subject, content, is_sent, scheduled_send_time, last_sent, created_at, updated_at
		FROM newsletters
		WHERE is_sent = ? AND scheduled_send_time IS NOT NULL AND scheduled_send_time <= ?
		ORDER BY scheduled_send_time`
	if err := r.db.SelectContext(ctx, &newsletters, query, false, now); err != nil {
		return nil, fmt.Errorf("failed to list due newsletters: %w", err)
	}
	return newsletters, nil
}

// MarkSent records a completed send.
func (r *NewsletterRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE newsletters SET is_sent = ?, last_sent = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, true, sentAt, sentAt, id); err != nil {
		return fmt.Errorf("failed to mark newsletter sent: %w", err)
	}
	return nil
}
