package firestore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/cuakstore/api/internal/domain"
	pfirestore "github.com/cuakstore/api/internal/platform/firestore"
	"github.com/cuakstore/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products and serves filtered listings.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// Insert stores a new product document. The ID must be unique.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	doc := encodeProductDocument(product)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the persisted product state with the provided snapshot.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Set(ctx, productID, encodeProductDocument(product)); err != nil {
		return err
	}
	return nil
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Delete(ctx, productID)
	return err
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns products matching the filter. Range constraints on price and
// equality on category are pushed into the query; the case-insensitive name
// fragment is applied client side over the folded name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}

	var cursorValue, cursorID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		value, id, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		cursorValue, cursorID = value, id
	}

	needle := strings.ToLower(strings.TrimSpace(filter.NameContains))
	categoryID := strings.TrimSpace(filter.CategoryID)

	direction := firestore.Asc
	if filter.SortOrder == domain.SortDesc {
		direction = firestore.Desc
	}

	// Firestore requires the inequality field to lead the ordering, so the
	// price range filter pins ordering to price regardless of SortBy.
	orderField := "nameFold"
	if filter.SortBy == "price" || filter.PriceRange.From != nil || filter.PriceRange.To != nil {
		orderField = "price"
	}

	orderValue := func(doc productDocument) string {
		if orderField == "price" {
			return strconv.FormatInt(doc.Price, 10)
		}
		return doc.NameFold
	}
	startValue := func(value string) (any, error) {
		if orderField == "price" {
			return strconv.ParseInt(value, 10, 64)
		}
		return value, nil
	}

	const scanBatch = 200
	items := make([]domain.Product, 0, limit)
	var lastValue, lastID string

	for {
		var startAfter any
		if cursorID != "" {
			value, err := startValue(cursorValue)
			if err != nil {
				return domain.CursorPage[domain.Product]{}, errors.New("invalid page token structure")
			}
			startAfter = value
		}

		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			if categoryID != "" {
				q = q.Where("categoryId", "==", categoryID)
			}
			if filter.PriceRange.From != nil {
				q = q.Where("price", ">=", *filter.PriceRange.From)
			}
			if filter.PriceRange.To != nil {
				q = q.Where("price", "<=", *filter.PriceRange.To)
			}
			q = q.OrderBy(orderField, direction).OrderBy(firestore.DocumentID, firestore.Asc)
			if startAfter != nil {
				q = q.StartAfter(startAfter, cursorID)
			}
			return q.Limit(scanBatch)
		})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}

		for _, doc := range docs {
			if needle != "" && !strings.Contains(doc.Data.NameFold, needle) {
				continue
			}
			if limit > 0 && len(items) == limit {
				next := encodeListToken(lastValue, lastID)
				return domain.CursorPage[domain.Product]{Items: items, NextPageToken: next}, nil
			}
			items = append(items, decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
			lastValue, lastID = orderValue(doc.Data), doc.ID
		}

		if len(docs) < scanBatch {
			break
		}
		last := docs[len(docs)-1]
		cursorValue = orderValue(last.Data)
		cursorID = last.ID
	}

	return domain.CursorPage[domain.Product]{Items: items}, nil
}

type productDocument struct {
	Name        string    `firestore:"name"`
	NameFold    string    `firestore:"nameFold"`
	Description string    `firestore:"description"`
	Price       int64     `firestore:"price"`
	Currency    string    `firestore:"currency"`
	ImageURL    string    `firestore:"imageUrl"`
	CategoryID  string    `firestore:"categoryId"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func encodeProductDocument(product domain.Product) productDocument {
	name := strings.TrimSpace(product.Name)
	return productDocument{
		Name:        name,
		NameFold:    strings.ToLower(name),
		Description: strings.TrimSpace(product.Description),
		Price:       product.Price,
		Currency:    strings.ToLower(strings.TrimSpace(product.Currency)),
		ImageURL:    strings.TrimSpace(product.ImageURL),
		CategoryID:  strings.TrimSpace(product.CategoryID),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func decodeProductDocument(id string, doc productDocument, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:          strings.TrimSpace(id),
		Name:        strings.TrimSpace(doc.Name),
		Description: strings.TrimSpace(doc.Description),
		Price:       doc.Price,
		Currency:    strings.TrimSpace(doc.Currency),
		ImageURL:    strings.TrimSpace(doc.ImageURL),
		CategoryID:  strings.TrimSpace(doc.CategoryID),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:   chooseTime(doc.UpdatedAt, updatedAt),
	}
}
