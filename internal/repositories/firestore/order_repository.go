package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/cuakstore/api/internal/domain"
	pfirestore "github.com/cuakstore/api/internal/platform/firestore"
	"github.com/cuakstore/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order aggregates including line items and the
// payment snapshot written back during reconciliation.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	doc := encodeOrderDocument(order)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(docRef, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Delete(ctx, orderID)
	return err
}

// FindByID fetches a single order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders ordered by most recent creation, optionally scoped to a
// user, a status set or a creation-time range.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)
	statusFilters := normaliseStatusFilters(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeTimeToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	UserID        string              `firestore:"userId"`
	Status        string              `firestore:"status"`
	Currency      string              `firestore:"currency"`
	Subtotal      int64               `firestore:"subtotal"`
	Total         int64               `firestore:"total"`
	Items         []orderItemDocument `firestore:"items"`
	PaymentID     *string             `firestore:"paymentId,omitempty"`
	PaymentStatus *string             `firestore:"paymentStatus,omitempty"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	PaidAt        *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt     *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt   *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt   *time.Time          `firestore:"cancelledAt,omitempty"`
	RefundedAt    *time.Time          `firestore:"refundedAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return orderDocument{
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        strings.TrimSpace(string(order.Status)),
		Currency:      strings.ToLower(strings.TrimSpace(order.Currency)),
		Subtotal:      order.Totals.Subtotal,
		Total:         order.Totals.Total,
		Items:         items,
		PaymentID:     normalizeStringPointer(order.PaymentID),
		PaymentStatus: normalizeStringPointer(order.PaymentStatus),
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
		PaidAt:        normalizeTimePointer(order.PaidAt),
		ShippedAt:     normalizeTimePointer(order.ShippedAt),
		DeliveredAt:   normalizeTimePointer(order.DeliveredAt),
		CancelledAt:   normalizeTimePointer(order.CancelledAt),
		RefundedAt:    normalizeTimePointer(order.RefundedAt),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return domain.Order{
		ID:            strings.TrimSpace(id),
		OrderNumber:   strings.TrimSpace(doc.OrderNumber),
		UserID:        strings.TrimSpace(doc.UserID),
		Status:        domain.OrderStatus(strings.TrimSpace(doc.Status)),
		Currency:      strings.TrimSpace(doc.Currency),
		Totals:        domain.OrderTotals{Subtotal: doc.Subtotal, Total: doc.Total},
		Items:         items,
		PaymentID:     normalizeStringPointer(doc.PaymentID),
		PaymentStatus: normalizeStringPointer(doc.PaymentStatus),
		CreatedAt:     chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:     chooseTime(doc.UpdatedAt, updatedAt),
		PaidAt:        normalizeTimePointer(doc.PaidAt),
		ShippedAt:     normalizeTimePointer(doc.ShippedAt),
		DeliveredAt:   normalizeTimePointer(doc.DeliveredAt),
		CancelledAt:   normalizeTimePointer(doc.CancelledAt),
		RefundedAt:    normalizeTimePointer(doc.RefundedAt),
	}
}

func normaliseStatusFilters(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
