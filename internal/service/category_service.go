package service

import (
	"context"
	"errors"
	"fmt"

	"go-research-cms/internal/data"
	"go-research-cms/internal/logger"

	"github.com/gosimple/slug"
)

// Category validation errors, surfaced to clients as 400s.
var (
	ErrCategoryNameRequired = errors.New("category name is required")
	ErrPrimaryHasParent     = errors.New("a primary category cannot have a parent")
	ErrCategoryCycle        = errors.New("category parent chain would form a cycle")
)

// CategoryRepository defines the interface for database operations on
// categories.
type CategoryRepository interface {
	ListWithArticleCounts(ctx context.Context, primaryOnly bool, sortBy string) ([]*data.Category, error)
	GetAll(ctx context.Context) ([]*data.Category, error)
	GetByID(ctx context.Context, id int64) (*data.Category, error)
	FindBySlug(ctx context.Context, slug string) (*data.Category, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	Save(ctx context.Context, category *data.Category) (int64, error)
	Update(ctx context.Context, category *data.Category) error
}

// CategorySearchMirror mirrors categories into the hosted search index. A
// nil mirror disables search for categories; failures are logged, never
// surfaced to the caller.
type CategorySearchMirror interface {
	IndexCategory(ctx context.Context, category *data.Category) error
}

// CategoryService provides business logic for managing categories.
type CategoryService struct {
	repo   CategoryRepository
	search CategorySearchMirror
	log    logger.Logger
}

// NewCategoryService creates a new CategoryService. search may be nil.
func NewCategoryService(repo CategoryRepository, search CategorySearchMirror, log logger.Logger) *CategoryService {
	return &CategoryService{repo: repo, search: search, log: log}
}

// List returns categories with at least one ready article. sortBy must be
// one of the repository's whitelisted columns.
func (s *CategoryService) List(ctx context.Context, primaryOnly bool, sortBy string) ([]*data.Category, error) {
	if sortBy == "" {
		sortBy = "name"
	}
	return s.repo.ListWithArticleCounts(ctx, primaryOnly, sortBy)
}

// Create validates and persists a new category with a collision-numbered
// unique slug.
func (s *CategoryService) Create(ctx context.Context, name string, isPrimary bool, parentID *int64) (*data.Category, error) {
	category := &data.Category{Name: name, IsPrimary: isPrimary, ParentID: parentID}
	if err := s.validate(ctx, category); err != nil {
		return nil, err
	}

	uniqueSlug, err := s.generateUniqueSlug(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	category.Slug = uniqueSlug

	if _, err := s.repo.Save(ctx, category); err != nil {
		return nil, err
	}

	s.mirrorToSearch(ctx, category)
	return category, nil
}

// Update validates and persists changes to a category, recomputing the slug
// when the name changed.
func (s *CategoryService) Update(ctx context.Context, category *data.Category) error {
	if err := s.validate(ctx, category); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, category.ID)
	if err != nil {
		return err
	}
	if existing.Name != category.Name || category.Slug == "" {
		uniqueSlug, err := s.generateUniqueSlug(ctx, category.Name, category.ID)
		if err != nil {
			return err
		}
		category.Slug = uniqueSlug
	}
	if err := s.repo.Update(ctx, category); err != nil {
		return err
	}

	s.mirrorToSearch(ctx, category)
	return nil
}

// mirrorToSearch pushes a category into the search index. Mirror failures
// are logged and swallowed; search lag must never fail a write.
func (s *CategoryService) mirrorToSearch(ctx context.Context, category *data.Category) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexCategory(ctx, category); err != nil {
		s.log.Error(err, fmt.Sprintf("failed to mirror category %d to search", category.ID))
	}
}

// FindBySlug returns the category with the given slug.
func (s *CategoryService) FindBySlug(ctx context.Context, categorySlug string) (*data.Category, error) {
	return s.repo.FindBySlug(ctx, categorySlug)
}

// validate enforces the structural category constraints: a name is required,
// primaries are roots, and parent chains may not loop back.
func (s *CategoryService) validate(ctx context.Context, category *data.Category) error {
	if category.Name == "" {
		return ErrCategoryNameRequired
	}
	if category.IsPrimary && category.ParentID != nil {
		return ErrPrimaryHasParent
	}
	if category.ParentID != nil && category.ID != 0 {
		// Walk up the chain; hitting ourselves means a cycle.
		seen := map[int64]bool{category.ID: true}
		current := *category.ParentID
		for {
			if seen[current] {
				return ErrCategoryCycle
			}
			seen[current] = true
			parent, err := s.repo.GetByID(ctx, current)
			if err != nil {
				if errors.Is(err, data.ErrNotFound) {
					break
				}
				return err
			}
			if parent.ParentID == nil {
				break
			}
			current = *parent.ParentID
		}
	}
	return nil
}

func (s *CategoryService) generateUniqueSlug(ctx context.Context, name string, excludeID int64) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = randomSlugToken()
	}
	candidate := base
	for n := 1; ; n++ {
		exists, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
