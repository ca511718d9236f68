//go:build integration

package data

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func setupSubscriberTest(t *testing.T) (*SubscriberRepository, func()) {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", "file::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to sqlite test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE subscribers (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		external_id TEXT NOT NULL DEFAULT '',
		synced BOOLEAN NOT NULL DEFAULT 0,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	db.MustExec(schema)

	repo := NewSubscriberRepository(db)
	teardown := func() {
		db.Close()
	}
	return repo, teardown
}

func TestSubscriberRepository_CreateDuplicate(t *testing.T) {
	repo, teardown := setupSubscriberTest(t)
	defer teardown()
	ctx := context.Background()

	id, err := repo.Create(ctx, &Subscriber{Email: "reader@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	if _, err := repo.Create(ctx, &Subscriber{Email: "reader@example.com", IsActive: true}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSubscriberRepository_SyncStateTransitions(t *testing.T) {
	repo, teardown := setupSubscriberTest(t)
	defer teardown()
	ctx := context.Background()

	if _, err := repo.Create(ctx, &Subscriber{Email: "reader@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A fresh row is pending.
	pending, err := repo.ListUnsynced(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending subscriber, got %d", len(pending))
	}

	// A retryable failure moves it to the retry queue.
	if err := repo.MarkSyncError(ctx, "reader@example.com", "platform timeout", false); err != nil {
		t.Fatalf("MarkSyncError failed: %v", err)
	}
	if pending, _ = repo.ListUnsynced(ctx, 10); len(pending) != 0 {
		t.Errorf("failed row leaked into pending: %+v", pending)
	}
	failed, err := repo.ListFailed(ctx, 10)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 || failed[0].SyncError != "platform timeout" {
		t.Errorf("unexpected retry queue: %+v", failed)
	}

	// Success clears the error and records the platform id.
	if err := repo.MarkSynced(ctx, "reader@example.com", "ext-123"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	subscriber, err := repo.GetByEmail(ctx, "reader@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if !subscriber.Synced || subscriber.ExternalID != "ext-123" || subscriber.SyncError != "" {
		t.Errorf("unexpected state after sync: %+v", subscriber)
	}

	// Deactivation re-queues the row for a status push.
	if err := repo.SetActive(ctx, "reader@example.com", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if pending, _ = repo.ListUnsynced(ctx, 10); len(pending) != 1 {
		t.Errorf("expected deactivated row pending again, got %d", len(pending))
	}
}

func TestSubscriberRepository_TerminalErrorLeavesQueues(t *testing.T) {
	repo, teardown := setupSubscriberTest(t)
	defer teardown()
	ctx := context.Background()

	if _, err := repo.Create(ctx, &Subscriber{Email: "bounce@example.com", IsActive: true}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.MarkSyncError(ctx, "bounce@example.com", "invalid address", true); err != nil {
		t.Fatalf("MarkSyncError failed: %v", err)
	}

	if pending, _ := repo.ListUnsynced(ctx, 10); len(pending) != 0 {
		t.Errorf("terminal row leaked into pending: %+v", pending)
	}
	if failed, _ := repo.ListFailed(ctx, 10); len(failed) != 0 {
		t.Errorf("terminal row leaked into retry: %+v", failed)
	}

	// The error stays visible on the row itself.
	subscriber, err := repo.GetByEmail(ctx, "bounce@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if !subscriber.Synced || subscriber.SyncError != "invalid address" {
		t.Errorf("unexpected terminal state: %+v", subscriber)
	}
}

func TestSubscriberRepository_ActiveListing(t *testing.T) {
	repo, teardown := setupSubscriberTest(t)
	defer teardown()
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if _, err := repo.Create(ctx, &Subscriber{Email: email, IsActive: true}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := repo.SetActive(ctx, "b@example.com", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active subscribers, got %d", len(active))
	}
	count, err := repo.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	if err := repo.Delete(ctx, "a@example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat delete, got %v", err)
	}
}
