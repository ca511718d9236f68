package service

import (
	"context"
	"errors"
	"fmt"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/gosimple/slug"
)

// ErrAuthorNameRequired is returned when an author is created without a name.
var ErrAuthorNameRequired = errors.New("author name is required")

// AuthorRepository defines the interface for database operations on authors.
type AuthorRepository interface {
	GetAll(ctx context.Context) ([]*data.Author, error)
	GetByID(ctx context.Context, id int64) (*data.Author, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	Save(ctx context.Context, author *data.Author) (int64, error)
}

// AuthorSearchMirror mirrors authors into the hosted search index. A nil
// mirror disables search for authors; failures are logged, never surfaced
// to the caller.
type AuthorSearchMirror interface {
	IndexAuthor(ctx context.Context, author *data.Author) error
}

// AuthorService provides business logic for managing authors.
type AuthorService struct {
	repo   AuthorRepository
	search AuthorSearchMirror
	log    logger.Logger
}

// NewAuthorService creates a new AuthorService. search may be nil.
func NewAuthorService(repo AuthorRepository, search AuthorSearchMirror, log logger.Logger) *AuthorService {
	return &AuthorService{repo: repo, search: search, log: log}
}

// List returns all authors.
func (s *AuthorService) List(ctx context.Context) ([]*data.Author, error) {
	return s.repo.GetAll(ctx)
}

// Get returns one author by id.
func (s *AuthorService) Get(ctx context.Context, id int64) (*data.Author, error) {
	return s.repo.GetByID(ctx, id)
}

// Create persists a new author with a collision-numbered unique slug.
func (s *AuthorService) Create(ctx context.Context, name, twitterUsername, bio string) (*data.Author, error) {
	if name == "" {
		return nil, ErrAuthorNameRequired
	}

	base := slug.Make(name)
	if base == "" {
		base = randomSlugToken()
	}
	candidate := base
	for n := 1; ; n++ {
		exists, err := s.repo.SlugExists(ctx, candidate, 0)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}

	author := &data.Author{
		Name:            name,
		Slug:            candidate,
		TwitterUsername: twitterUsername,
		Bio:             bio,
	}
	if _, err := s.repo.Save(ctx, author); err != nil {
		return nil, err
	}

	s.mirrorToSearch(ctx, author)
	return author, nil
}

// mirrorToSearch pushes an author into the search index. Mirror failures
// are logged and swallowed; search lag must never fail a write.
func (s *AuthorService) mirrorToSearch(ctx context.Context, author *data.Author) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexAuthor(ctx, author); err != nil {
		s.log.Error(err, fmt.Sprintf("failed to mirror author %d to search", author.ID))
	}
}
