//go:build unit

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go-research-cms/internal/data"
)

// fakeNewsletterRepo is an in-memory NewsletterRepository.
type fakeNewsletterRepo struct {
	newsletters map[int64]*data.Newsletter
	nextID      int64
}

var _ NewsletterRepository = (*fakeNewsletterRepo)(nil)

func newFakeNewsletterRepo() *fakeNewsletterRepo {
	return &fakeNewsletterRepo{newsletters: map[int64]*data.Newsletter{}}
}

func (f *fakeNewsletterRepo) Save(ctx context.Context, newsletter *data.Newsletter) (int64, error) {
	f.nextID++
	newsletter.ID = f.nextID
	f.newsletters[newsletter.ID] = newsletter
	return newsletter.ID, nil
}

func (f *fakeNewsletterRepo) ListDue(ctx context.Context, now time.Time) ([]*data.Newsletter, error) {
	var due []*data.Newsletter
	for _, newsletter := range f.newsletters {
		if !newsletter.IsSent &&
			newsletter.ScheduledSendTime != nil &&
			!newsletter.ScheduledSendTime.After(now) {
			due = append(due, newsletter)
		}
	}
	return due, nil
}

func (f *fakeNewsletterRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	newsletter, ok := f.newsletters[id]
	if !ok {
		return data.ErrNotFound
	}
	newsletter.IsSent = true
	newsletter.LastSent = &sentAt
	return nil
}

type staticRecipients []*data.Subscriber

func (s staticRecipients) ListActive(ctx context.Context) ([]*data.Subscriber, error) {
	return s, nil
}

// mockSender records sent mail and can fail selected recipients.
type mockSender struct {
	failFor map[string]error
	sent    []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

var _ MailSender = (*mockSender)(nil)

func (m *mockSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err, ok := m.failFor[to]; ok {
		return err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func TestNewsletterService_Schedule_RequiresSubject(t *testing.T) {
	svc := NewNewsletterService(newFakeNewsletterRepo(), staticRecipients{}, &mockSender{}, "https://research.example.com", testLogger())
	if _, err := svc.Schedule(context.Background(), "  ", "content", nil); !errors.Is(err, ErrSubjectRequired) {
		t.Errorf("expected ErrSubjectRequired, got %v", err)
	}
}

func TestNewsletterService_SendDue(t *testing.T) {
	repo := newFakeNewsletterRepo()
	sender := &mockSender{}
	recipients := staticRecipients{
		{Email: "one@example.com", IsActive: true},
		{Email: "two@example.com", IsActive: true},
	}
	svc := NewNewsletterService(repo, recipients, sender, "https://research.example.com/", testLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	newsletter, err := svc.Schedule(ctx, "Weekly Digest", "# Hello\n\nUnsubscribe at {unsubscribe_link}", &past)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	sent, err := svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("SendDue failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 issue sent, got %d", sent)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(sender.sent))
	}

	first := sender.sent[0]
	if first.subject != "Weekly Digest" {
		t.Errorf("unexpected subject %q", first.subject)
	}
	if !strings.Contains(first.body, "<h1") {
		t.Errorf("expected markdown rendered to HTML, got %q", first.body)
	}
	wantLink := "https://research.example.com/newsletter/unsubscribe/" + first.to + "/"
	if !strings.Contains(first.body, wantLink) {
		t.Errorf("expected per-recipient unsubscribe link %q in body %q", wantLink, first.body)
	}
	if strings.Contains(first.body, "{unsubscribe_link}") {
		t.Error("placeholder left unsubstituted")
	}

	if !repo.newsletters[newsletter.ID].IsSent {
		t.Error("expected newsletter marked sent")
	}

	// A second sweep has nothing to do.
	sent, err = svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("SendDue failed: %v", err)
	}
	if sent != 0 {
		t.Errorf("second sweep must be a no-op, got %d", sent)
	}
}

func TestNewsletterService_SendDue_RecipientFailureDoesNotBlock(t *testing.T) {
	repo := newFakeNewsletterRepo()
	sender := &mockSender{failFor: map[string]error{"broken@example.com": errors.New("mailbox full")}}
	recipients := staticRecipients{
		{Email: "broken@example.com", IsActive: true},
		{Email: "fine@example.com", IsActive: true},
	}
	svc := NewNewsletterService(repo, recipients, sender, "https://research.example.com", testLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	newsletter, err := svc.Schedule(ctx, "Partial", "body", &past)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if _, err := svc.SendDue(ctx); err != nil {
		t.Fatalf("SendDue failed: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].to != "fine@example.com" {
		t.Errorf("expected the healthy recipient served, got %+v", sender.sent)
	}
	if !repo.newsletters[newsletter.ID].IsSent {
		t.Error("issue must be marked sent despite per-recipient failures")
	}
}

func TestNewsletterService_SendDue_SkipsUnscheduled(t *testing.T) {
	repo := newFakeNewsletterRepo()
	sender := &mockSender{}
	svc := NewNewsletterService(repo, staticRecipients{{Email: "a@example.com", IsActive: true}}, sender, "https://research.example.com", testLogger())
	ctx := context.Background()

	if _, err := svc.Schedule(ctx, "Parked", "body", nil); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour)
	if _, err := svc.Schedule(ctx, "Later", "body", &future); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	sent, err := svc.SendDue(ctx)
	if err != nil {
		t.Fatalf("SendDue failed: %v", err)
	}
	if sent != 0 || len(sender.sent) != 0 {
		t.Errorf("nothing was due, but %d issues / %d mails went out", sent, len(sender.sent))
	}
}
