package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cuakstore/api/internal/domain"
	pfirestore "github.com/cuakstore/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository persists account credentials and role assignments.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// Insert stores a new account document. The ID must be unique.
func (r *UserRepository) Insert(ctx context.Context, account domain.UserAccount) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(account.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}
	doc := encodeUserDocument(account)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

// Update replaces the persisted account state with the provided snapshot.
func (r *UserRepository) Update(ctx context.Context, account domain.UserAccount) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(account.ID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	if _, err := r.base.Set(ctx, userID, encodeUserDocument(account)); err != nil {
		return err
	}
	return nil
}

// FindByID loads the account by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserAccount{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindByUsername resolves an account by its case-folded username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (domain.UserAccount, error) {
	return r.findByField(ctx, "usernameFold", strings.ToLower(strings.TrimSpace(username)), "username")
}

// FindByEmail resolves an account by its lower-cased email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	return r.findByField(ctx, "email", strings.ToLower(strings.TrimSpace(email)), "email")
}

func (r *UserRepository) findByField(ctx context.Context, field, value, label string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	if value == "" {
		return domain.UserAccount{}, errors.New("user repository: " + label + " is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	if len(docs) == 0 {
		return domain.UserAccount{}, pfirestore.WrapError("users.find_by_"+label,
			status.Error(codes.NotFound, label+" not found"))
	}
	doc := docs[0]
	return decodeUserDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

type userDocument struct {
	Username     string    `firestore:"username"`
	UsernameFold string    `firestore:"usernameFold"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	Roles        []string  `firestore:"roles"`
	GoogleSub    *string   `firestore:"googleSub,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodeUserDocument(account domain.UserAccount) userDocument {
	username := strings.TrimSpace(account.Username)
	return userDocument{
		Username:     username,
		UsernameFold: strings.ToLower(username),
		Email:        strings.ToLower(strings.TrimSpace(account.Email)),
		PasswordHash: account.PasswordHash,
		Roles:        encodeRoles(account.Roles),
		GoogleSub:    normalizeStringPointer(account.GoogleSub),
		CreatedAt:    account.CreatedAt.UTC(),
		UpdatedAt:    account.UpdatedAt.UTC(),
	}
}

func decodeUserDocument(id string, doc userDocument, createdAt, updatedAt time.Time) domain.UserAccount {
	roles := make([]domain.Role, 0, len(doc.Roles))
	for _, role := range doc.Roles {
		if trimmed := strings.ToLower(strings.TrimSpace(role)); trimmed != "" {
			roles = append(roles, domain.Role(trimmed))
		}
	}
	return domain.UserAccount{
		ID:           strings.TrimSpace(id),
		Username:     strings.TrimSpace(doc.Username),
		Email:        strings.TrimSpace(doc.Email),
		PasswordHash: doc.PasswordHash,
		Roles:        roles,
		GoogleSub:    normalizeStringPointer(doc.GoogleSub),
		CreatedAt:    chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:    chooseTime(doc.UpdatedAt, updatedAt),
	}
}

func encodeRoles(roles []domain.Role) []string {
	uniq := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(string(role)))
		if trimmed == "" {
			continue
		}
		uniq[trimmed] = struct{}{}
	}
	out := make([]string, 0, len(uniq))
	for role := range uniq {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
