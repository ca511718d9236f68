//go:build unit

package service

import (
	"context"
	"errors"
	"testing"

	"go-research-cms/internal/data"
)

// mockCategoryRepo is a function-backed CategoryRepository mock.
type mockCategoryRepo struct {
	listFunc       func(primaryOnly bool, sortBy string) ([]*data.Category, error)
	getByIDFunc    func(id int64) (*data.Category, error)
	slugExistsFunc func(slug string, excludeID int64) (bool, error)

	saved       []*data.Category
	updated     []*data.Category
	listCalled  int
	slugQueries []string
}

var _ CategoryRepository = (*mockCategoryRepo)(nil)

func (m *mockCategoryRepo) ListWithArticleCounts(ctx context.Context, primaryOnly bool, sortBy string) ([]*data.Category, error) {
	m.listCalled++
	if m.listFunc != nil {
		return m.listFunc(primaryOnly, sortBy)
	}
	return nil, nil
}

func (m *mockCategoryRepo) GetAll(ctx context.Context) ([]*data.Category, error) {
	return nil, nil
}

func (m *mockCategoryRepo) GetByID(ctx context.Context, id int64) (*data.Category, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(id)
	}
	return nil, data.ErrNotFound
}

func (m *mockCategoryRepo) FindBySlug(ctx context.Context, slug string) (*data.Category, error) {
	return nil, data.ErrNotFound
}

func (m *mockCategoryRepo) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	m.slugQueries = append(m.slugQueries, slug)
	if m.slugExistsFunc != nil {
		return m.slugExistsFunc(slug, excludeID)
	}
	return false, nil
}

func (m *mockCategoryRepo) Save(ctx context.Context, category *data.Category) (int64, error) {
	m.saved = append(m.saved, category)
	category.ID = int64(len(m.saved))
	return category.ID, nil
}

func (m *mockCategoryRepo) Update(ctx context.Context, category *data.Category) error {
	m.updated = append(m.updated, category)
	return nil
}

func TestCategoryService_Create(t *testing.T) {
	t.Run("assigns slug", func(t *testing.T) {
		repo := &mockCategoryRepo{}
		svc := NewCategoryService(repo, nil, testLogger())

		category, err := svc.Create(context.Background(), "Machine Learning", true, nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if category.Slug != "machine-learning" {
			t.Errorf("unexpected slug %q", category.Slug)
		}
	})

	t.Run("numbers slug collisions", func(t *testing.T) {
		repo := &mockCategoryRepo{
			slugExistsFunc: func(slug string, excludeID int64) (bool, error) {
				return slug == "security" || slug == "security-1", nil
			},
		}
		svc := NewCategoryService(repo, nil, testLogger())

		category, err := svc.Create(context.Background(), "Security", false, nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if category.Slug != "security-2" {
			t.Errorf("expected security-2, got %q", category.Slug)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		svc := NewCategoryService(&mockCategoryRepo{}, nil, testLogger())
		if _, err := svc.Create(context.Background(), "", false, nil); !errors.Is(err, ErrCategoryNameRequired) {
			t.Errorf("expected ErrCategoryNameRequired, got %v", err)
		}
	})

	t.Run("rejects primary with parent", func(t *testing.T) {
		svc := NewCategoryService(&mockCategoryRepo{}, nil, testLogger())
		parent := int64(4)
		if _, err := svc.Create(context.Background(), "Nested Primary", true, &parent); !errors.Is(err, ErrPrimaryHasParent) {
			t.Errorf("expected ErrPrimaryHasParent, got %v", err)
		}
	})
}

func TestCategoryService_Update_DetectsParentCycle(t *testing.T) {
	// 1 -> 2 -> 1 is a cycle once category 1 adopts 2 as its parent.
	two := int64(2)
	one := int64(1)
	repo := &mockCategoryRepo{
		getByIDFunc: func(id int64) (*data.Category, error) {
			switch id {
			case 1:
				return &data.Category{ID: 1, Name: "Alpha", ParentID: &two}, nil
			case 2:
				return &data.Category{ID: 2, Name: "Beta", ParentID: &one}, nil
			}
			return nil, data.ErrNotFound
		},
	}
	svc := NewCategoryService(repo, nil, testLogger())

	err := svc.Update(context.Background(), &data.Category{ID: 1, Name: "Alpha", ParentID: &two})
	if !errors.Is(err, ErrCategoryCycle) {
		t.Errorf("expected ErrCategoryCycle, got %v", err)
	}
}

// mockCategoryMirror records the categories pushed to the search index.
type mockCategoryMirror struct {
	indexed []*data.Category
	err     error
}

var _ CategorySearchMirror = (*mockCategoryMirror)(nil)

func (m *mockCategoryMirror) IndexCategory(ctx context.Context, category *data.Category) error {
	m.indexed = append(m.indexed, category)
	return m.err
}

func TestCategoryService_MirrorsToSearch(t *testing.T) {
	t.Run("create indexes the category", func(t *testing.T) {
		repo := &mockCategoryRepo{}
		mirror := &mockCategoryMirror{}
		svc := NewCategoryService(repo, mirror, testLogger())

		category, err := svc.Create(context.Background(), "Distributed Systems", true, nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if len(mirror.indexed) != 1 {
			t.Fatalf("expected 1 indexed category, got %d", len(mirror.indexed))
		}
		if mirror.indexed[0].Slug != category.Slug {
			t.Errorf("indexed slug %q, want %q", mirror.indexed[0].Slug, category.Slug)
		}
	})

	t.Run("update indexes the category", func(t *testing.T) {
		repo := &mockCategoryRepo{
			getByIDFunc: func(id int64) (*data.Category, error) {
				return &data.Category{ID: id, Name: "Cryptography", Slug: "cryptography"}, nil
			},
		}
		mirror := &mockCategoryMirror{}
		svc := NewCategoryService(repo, mirror, testLogger())

		if err := svc.Update(context.Background(), &data.Category{ID: 3, Name: "Cryptography", Slug: "cryptography"}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if len(mirror.indexed) != 1 {
			t.Fatalf("expected 1 indexed category, got %d", len(mirror.indexed))
		}
	})

	t.Run("mirror failure does not fail the write", func(t *testing.T) {
		repo := &mockCategoryRepo{}
		mirror := &mockCategoryMirror{err: errors.New("cluster unreachable")}
		svc := NewCategoryService(repo, mirror, testLogger())

		if _, err := svc.Create(context.Background(), "Networking", false, nil); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if len(repo.saved) != 1 {
			t.Errorf("expected category to be saved despite mirror failure")
		}
	})
}

func TestCategoryService_List_DefaultsSort(t *testing.T) {
	var gotSort string
	repo := &mockCategoryRepo{
		listFunc: func(primaryOnly bool, sortBy string) ([]*data.Category, error) {
			gotSort = sortBy
			return nil, nil
		},
	}
	svc := NewCategoryService(repo, nil, testLogger())

	if _, err := svc.List(context.Background(), false, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if gotSort != "name" {
		t.Errorf("expected default sort by name, got %q", gotSort)
	}
}
