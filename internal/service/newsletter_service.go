package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// unsubscribePlaceholder is substituted per recipient at send time.
const unsubscribePlaceholder = "{unsubscribe_link}"

// ErrSubjectRequired is returned when an issue is scheduled without a
// subject line.
var ErrSubjectRequired = errors.New("newsletter subject is required")

// NewsletterRepository defines the interface for database operations on
// newsletter issues.
type NewsletterRepository interface {
	Save(ctx context.Context, newsletter *data.Newsletter) (int64, error)
	ListDue(ctx context.Context, now time.Time) ([]*data.Newsletter, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}

// RecipientLister yields the active subscriber list for an issue.
type RecipientLister interface {
	ListActive(ctx context.Context) ([]*data.Subscriber, error)
}

// MailSender delivers a single rendered email.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewsletterService schedules and sends newsletter issues. Content is
// authored in markdown and rendered once per issue; the unsubscribe link is
// substituted per recipient.
type NewsletterService struct {
	repo        NewsletterRepository
	subscribers RecipientLister
	sender      MailSender
	markdown    goldmark.Markdown
	siteURL     string
	log         logger.Logger
	now         func() time.Time
}

// NewNewsletterService creates a new NewsletterService.
func NewNewsletterService(repo NewsletterRepository, subscribers RecipientLister, sender MailSender, siteURL string, log logger.Logger) *NewsletterService {
	return &NewsletterService{
		repo:        repo,
		subscribers: subscribers,
		sender:      sender,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		siteURL:     strings.TrimRight(siteURL, "/"),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Schedule persists a new issue for later delivery. A nil sendTime leaves
// the issue parked until one is set.
func (s *NewsletterService) Schedule(ctx context.Context, subject, content string, sendTime *time.Time) (*data.Newsletter, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrSubjectRequired
	}
	newsletter := &data.Newsletter{
		Subject:           subject,
		Content:           content,
		ScheduledSendTime: sendTime,
	}
	if _, err := s.repo.Save(ctx, newsletter); err != nil {
		return nil, err
	}
	return newsletter, nil
}

// SendDue delivers every issue whose scheduled time has elapsed and returns
// how many issues went out. Per-recipient failures are logged and do not
// block the rest of the list; the issue is marked sent either way so it is
// not re-delivered to everyone on the next sweep.
func (s *NewsletterService) SendDue(ctx context.Context) (int, error) {
	due, err := s.repo.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	recipients, err := s.subscribers.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, newsletter := range due {
		if err := s.sendIssue(ctx, newsletter, recipients); err != nil {
			s.log.Error(err, fmt.Sprintf("failed to send newsletter %d", newsletter.ID))
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *NewsletterService) sendIssue(ctx context.Context, newsletter *data.Newsletter, recipients []*data.Subscriber) error {
	var rendered bytes.Buffer
	if err := s.markdown.Convert([]byte(newsletter.Content), &rendered); err != nil {
		return fmt.Errorf("failed to render newsletter %d: %w", newsletter.ID, err)
	}
	html := rendered.String()

	delivered := 0
	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		body := strings.ReplaceAll(html, unsubscribePlaceholder, s.unsubscribeLink(recipient.Email))
		if err := s.sender.Send(ctx, recipient.Email, newsletter.Subject, body); err != nil {
			s.log.Error(err, fmt.Sprintf("failed to deliver newsletter %d to %s", newsletter.ID, recipient.Email))
			continue
		}
		delivered++
	}
	s.log.Info(fmt.Sprintf("newsletter %d delivered to %d of %d recipients", newsletter.ID, delivered, len(recipients)))

	return s.repo.MarkSent(ctx, newsletter.ID, s.now())
}

func (s *NewsletterService) unsubscribeLink(email string) string {
	return fmt.Sprintf("%s/newsletter/unsubscribe/%s/", s.siteURL, url.PathEscape(email))
}
