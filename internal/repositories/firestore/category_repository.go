package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cuakstore/api/internal/domain"
	pfirestore "github.com/cuakstore/api/internal/platform/firestore"
	"github.com/cuakstore/api/internal/repositories"
)

const categoriesCollection = "categories"

// CategoryRepository persists catalog categories. The nameFold field carries the
// case-folded name used to enforce uniqueness and serve lookups.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

// Insert stores a new category document. The ID must be unique.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, categoryID)
	if err != nil {
		return err
	}
	doc := encodeCategoryDocument(category)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("categories.insert", err)
	}
	return nil
}

// Update replaces the persisted category state with the provided snapshot.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	if _, err := r.base.Set(ctx, categoryID, encodeCategoryDocument(category)); err != nil {
		return err
	}
	return nil
}

// Delete removes the category document.
func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	_, err := r.base.Delete(ctx, categoryID)
	return err
}

// FindByID fetches a single category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByNormalizedName resolves a category by its case-folded name.
func (r *CategoryRepository) FindByNormalizedName(ctx context.Context, normalized string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	if normalized == "" {
		return domain.Category{}, errors.New("category repository: normalized name is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("nameFold", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, pfirestore.WrapError("categories.find_by_name",
			status.Error(codes.NotFound, "category name not found"))
	}
	doc := docs[0]
	return decodeCategoryDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns categories ordered by folded name, optionally filtered by a
// case-insensitive name fragment.
func (r *CategoryRepository) List(ctx context.Context, filter repositories.CategoryListFilter) (domain.CursorPage[domain.Category], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Category]{}, errors.New("category repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}

	var cursorValue, cursorID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		value, id, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Category]{}, err
		}
		cursorValue, cursorID = value, id
	}

	needle := strings.ToLower(strings.TrimSpace(filter.NameContains))

	// Contains-search cannot be pushed into a Firestore query, so pages are
	// scanned in folded-name order and filtered client side until the page
	// fills up.
	const scanBatch = 200
	items := make([]domain.Category, 0, limit)

	for {
		hasCursor := cursorID != ""
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			q = q.OrderBy("nameFold", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
			if hasCursor {
				q = q.StartAfter(cursorValue, cursorID)
			}
			return q.Limit(scanBatch)
		})
		if err != nil {
			return domain.CursorPage[domain.Category]{}, err
		}

		for _, doc := range docs {
			if needle != "" && !strings.Contains(doc.Data.NameFold, needle) {
				continue
			}
			if limit > 0 && len(items) == limit {
				last := items[len(items)-1]
				next := encodeListToken(strings.ToLower(last.Name), last.ID)
				return domain.CursorPage[domain.Category]{Items: items, NextPageToken: next}, nil
			}
			items = append(items, decodeCategoryDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
		}

		if len(docs) < scanBatch {
			break
		}
		last := docs[len(docs)-1]
		cursorValue, cursorID = last.Data.NameFold, last.ID
	}

	return domain.CursorPage[domain.Category]{Items: items}, nil
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	NameFold    string    `firestore:"nameFold"`
	Description string    `firestore:"description"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func encodeCategoryDocument(category domain.Category) categoryDocument {
	name := strings.TrimSpace(category.Name)
	return categoryDocument{
		Name:        name,
		NameFold:    strings.ToLower(name),
		Description: strings.TrimSpace(category.Description),
		CreatedAt:   category.CreatedAt.UTC(),
		UpdatedAt:   category.UpdatedAt.UTC(),
	}
}

func decodeCategoryDocument(id string, doc categoryDocument, createdAt, updatedAt time.Time) domain.Category {
	return domain.Category{
		ID:          strings.TrimSpace(id),
		Name:        strings.TrimSpace(doc.Name),
		Description: strings.TrimSpace(doc.Description),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:   chooseTime(doc.UpdatedAt, updatedAt),
	}
}
