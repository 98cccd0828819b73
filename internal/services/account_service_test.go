package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/platform/auth"
)

type stubUserRepo struct {
	insertFn       func(context.Context, domain.UserAccount) error
	updateFn       func(context.Context, domain.UserAccount) error
	findFn         func(context.Context, string) (domain.UserAccount, error)
	findUsernameFn func(context.Context, string) (domain.UserAccount, error)
	findEmailFn    func(context.Context, string) (domain.UserAccount, error)
}

func (s *stubUserRepo) Insert(ctx context.Context, account domain.UserAccount) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, account)
	}
	return nil
}

func (s *stubUserRepo) Update(ctx context.Context, account domain.UserAccount) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, account)
	}
	return nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
}

func (s *stubUserRepo) FindByUsername(ctx context.Context, username string) (domain.UserAccount, error) {
	if s.findUsernameFn != nil {
		return s.findUsernameFn(ctx, username)
	}
	return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (domain.UserAccount, error) {
	if s.findEmailFn != nil {
		return s.findEmailFn(ctx, email)
	}
	return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
}

type stubTokenIssuer struct {
	issued []auth.Identity
}

func (s *stubTokenIssuer) Issue(identity auth.Identity) (string, time.Time, error) {
	s.issued = append(s.issued, identity)
	return "token-" + identity.UID, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), nil
}

type stubGoogleVerifier struct {
	verifyFn func(context.Context, string) (*auth.GoogleClaims, error)
}

func (s *stubGoogleVerifier) Verify(ctx context.Context, idToken string) (*auth.GoogleClaims, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, idToken)
	}
	return nil, errors.New("verify not implemented")
}

func newTestAccountService(t *testing.T, users *stubUserRepo, tokens *stubTokenIssuer, google googleTokenVerifier, bootstrap []BootstrapAccount) AccountService {
	t.Helper()
	svc, err := NewAccountService(AccountServiceDeps{
		Users:       users,
		Tokens:      tokens,
		Google:      google,
		Bootstrap:   bootstrap,
		Clock:       func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "TESTULID" },
	})
	if err != nil {
		t.Fatalf("new account service: %v", err)
	}
	return svc
}

func TestAccountServiceRegister(t *testing.T) {
	var inserted domain.UserAccount
	users := &stubUserRepo{
		insertFn: func(_ context.Context, account domain.UserAccount) error {
			inserted = account
			return nil
		},
	}
	tokens := &stubTokenIssuer{}
	svc := newTestAccountService(t, users, tokens, nil, nil)

	session, err := svc.Register(context.Background(), RegisterAccountCommand{
		Username: "quacker",
		Email:    "Quacker@Example.com",
		Password: "s3cret-pw",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if inserted.ID != "usr_TESTULID" {
		t.Fatalf("unexpected id %q", inserted.ID)
	}
	if inserted.Email != "quacker@example.com" {
		t.Fatalf("email not lowercased: %q", inserted.Email)
	}
	if inserted.PasswordHash == "" || inserted.PasswordHash == "s3cret-pw" {
		t.Fatalf("password stored without hashing")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(inserted.PasswordHash), []byte("s3cret-pw")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if len(inserted.Roles) != 1 || inserted.Roles[0] != domain.RoleUser {
		t.Fatalf("unexpected roles %v", inserted.Roles)
	}
	if session.Token != "token-usr_TESTULID" {
		t.Fatalf("unexpected token %q", session.Token)
	}
	if len(tokens.issued) != 1 || tokens.issued[0].Username != "quacker" {
		t.Fatalf("unexpected issued identity %+v", tokens.issued)
	}
}

func TestAccountServiceRegisterValidation(t *testing.T) {
	svc := newTestAccountService(t, &stubUserRepo{}, &stubTokenIssuer{}, nil, nil)

	cases := []struct {
		name string
		cmd  RegisterAccountCommand
	}{
		{name: "short username", cmd: RegisterAccountCommand{Username: "ab", Email: "a@b.co", Password: "longenough"}},
		{name: "bad email", cmd: RegisterAccountCommand{Username: "quacker", Email: "not-an-email", Password: "longenough"}},
		{name: "short password", cmd: RegisterAccountCommand{Username: "quacker", Email: "a@b.co", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.cmd)
			if !errors.Is(err, ErrAccountInvalidInput) {
				t.Fatalf("expected ErrAccountInvalidInput, got %v", err)
			}
		})
	}
}

func TestAccountServiceRegisterConflicts(t *testing.T) {
	taken := domain.UserAccount{ID: "usr_1", Username: "quacker", Email: "quacker@example.com"}

	t.Run("username taken", func(t *testing.T) {
		users := &stubUserRepo{
			findUsernameFn: func(_ context.Context, username string) (domain.UserAccount, error) {
				if username == "quacker" {
					return taken, nil
				}
				return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, nil)

		_, err := svc.Register(context.Background(), RegisterAccountCommand{
			Username: "quacker",
			Email:    "new@example.com",
			Password: "longenough",
		})
		if !errors.Is(err, ErrAccountConflict) {
			t.Fatalf("expected ErrAccountConflict, got %v", err)
		}
	})

	t.Run("email taken", func(t *testing.T) {
		users := &stubUserRepo{
			findEmailFn: func(_ context.Context, email string) (domain.UserAccount, error) {
				if email == "quacker@example.com" {
					return taken, nil
				}
				return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, nil)

		_, err := svc.Register(context.Background(), RegisterAccountCommand{
			Username: "someone",
			Email:    "QUACKER@example.com",
			Password: "longenough",
		})
		if !errors.Is(err, ErrAccountConflict) {
			t.Fatalf("expected ErrAccountConflict, got %v", err)
		}
	})
}

func TestAccountServiceLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash fixture: %v", err)
	}
	account := domain.UserAccount{
		ID:           "usr_1",
		Username:     "quacker",
		Email:        "quacker@example.com",
		PasswordHash: string(hash),
		Roles:        []domain.Role{domain.RoleUser},
	}
	users := &stubUserRepo{
		findUsernameFn: func(_ context.Context, username string) (domain.UserAccount, error) {
			if username == "quacker" {
				return account, nil
			}
			return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
		},
	}
	svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, nil)

	session, err := svc.Login(context.Background(), LoginCommand{Username: "quacker", Password: "s3cret-pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Account.ID != "usr_1" {
		t.Fatalf("unexpected account %+v", session.Account)
	}

	if _, err := svc.Login(context.Background(), LoginCommand{Username: "quacker", Password: "wrong"}); !errors.Is(err, ErrAccountInvalidCredentials) {
		t.Fatalf("expected ErrAccountInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginCommand{Username: "ghost", Password: "s3cret-pw"}); !errors.Is(err, ErrAccountInvalidCredentials) {
		t.Fatalf("expected ErrAccountInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAccountServiceLoginWithGoogle(t *testing.T) {
	claims := &auth.GoogleClaims{
		Subject:       "google-sub-1",
		Email:         "Quacker@Example.com",
		EmailVerified: true,
		Name:          "Quacker",
	}

	t.Run("creates account on first sign-in", func(t *testing.T) {
		var inserted domain.UserAccount
		users := &stubUserRepo{
			insertFn: func(_ context.Context, account domain.UserAccount) error {
				inserted = account
				return nil
			},
		}
		google := &stubGoogleVerifier{
			verifyFn: func(_ context.Context, idToken string) (*auth.GoogleClaims, error) {
				if idToken != "google-token" {
					t.Fatalf("unexpected token %q", idToken)
				}
				return claims, nil
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, google, nil)

		session, err := svc.LoginWithGoogle(context.Background(), GoogleLoginCommand{IDToken: "google-token"})
		if err != nil {
			t.Fatalf("google login: %v", err)
		}
		if inserted.Email != "quacker@example.com" {
			t.Fatalf("unexpected email %q", inserted.Email)
		}
		if inserted.GoogleSub == nil || *inserted.GoogleSub != "google-sub-1" {
			t.Fatalf("google sub not recorded: %+v", inserted.GoogleSub)
		}
		if inserted.PasswordHash != "" {
			t.Fatalf("google-only account must not carry a password hash")
		}
		if session.Account.ID != inserted.ID {
			t.Fatalf("session account mismatch")
		}
	})

	t.Run("links existing account by email", func(t *testing.T) {
		existing := domain.UserAccount{
			ID:       "usr_1",
			Username: "quacker",
			Email:    "quacker@example.com",
			Roles:    []domain.Role{domain.RoleUser},
		}
		var updated domain.UserAccount
		users := &stubUserRepo{
			findEmailFn: func(_ context.Context, email string) (domain.UserAccount, error) {
				if email == "quacker@example.com" {
					return existing, nil
				}
				return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
			},
			updateFn: func(_ context.Context, account domain.UserAccount) error {
				updated = account
				return nil
			},
		}
		google := &stubGoogleVerifier{
			verifyFn: func(_ context.Context, _ string) (*auth.GoogleClaims, error) {
				return claims, nil
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, google, nil)

		session, err := svc.LoginWithGoogle(context.Background(), GoogleLoginCommand{IDToken: "google-token"})
		if err != nil {
			t.Fatalf("google login: %v", err)
		}
		if session.Account.ID != "usr_1" {
			t.Fatalf("expected existing account, got %+v", session.Account)
		}
		if updated.GoogleSub == nil || *updated.GoogleSub != "google-sub-1" {
			t.Fatalf("existing account not linked: %+v", updated.GoogleSub)
		}
	})

	t.Run("rejects unverified email", func(t *testing.T) {
		google := &stubGoogleVerifier{
			verifyFn: func(_ context.Context, _ string) (*auth.GoogleClaims, error) {
				return &auth.GoogleClaims{Subject: "s", Email: "a@b.co", EmailVerified: false}, nil
			},
		}
		svc := newTestAccountService(t, &stubUserRepo{}, &stubTokenIssuer{}, google, nil)

		_, err := svc.LoginWithGoogle(context.Background(), GoogleLoginCommand{IDToken: "google-token"})
		if !errors.Is(err, ErrAccountGoogleUnverified) {
			t.Fatalf("expected ErrAccountGoogleUnverified, got %v", err)
		}
	})
}

func TestAccountServiceEnsureBootstrapAccounts(t *testing.T) {
	bootstrap := []BootstrapAccount{
		{Username: "admin", Email: "admin@example.com", Password: "admin-pw-123", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}},
		{Username: "owner", Email: "owner@example.com", Password: "owner-pw-123", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleOwner}},
	}

	t.Run("creates missing accounts", func(t *testing.T) {
		var inserted []domain.UserAccount
		users := &stubUserRepo{
			insertFn: func(_ context.Context, account domain.UserAccount) error {
				inserted = append(inserted, account)
				return nil
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, bootstrap)

		if err := svc.EnsureBootstrapAccounts(context.Background()); err != nil {
			t.Fatalf("ensure bootstrap: %v", err)
		}
		if len(inserted) != 2 {
			t.Fatalf("expected two accounts, got %d", len(inserted))
		}
		if len(inserted[1].Roles) != 3 {
			t.Fatalf("owner roles not seeded: %v", inserted[1].Roles)
		}
		if inserted[0].PasswordHash == "" {
			t.Fatalf("bootstrap password not hashed")
		}
	})

	t.Run("repairs missing roles on existing accounts", func(t *testing.T) {
		existing := map[string]domain.UserAccount{
			"admin": {ID: "usr_a", Username: "admin", Roles: []domain.Role{domain.RoleUser}},
			"owner": {ID: "usr_o", Username: "owner", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin, domain.RoleOwner}},
		}
		var updated []domain.UserAccount
		users := &stubUserRepo{
			findUsernameFn: func(_ context.Context, username string) (domain.UserAccount, error) {
				account, ok := existing[username]
				if !ok {
					return domain.UserAccount{}, repoNotFoundError{msg: "user not found"}
				}
				return account, nil
			},
			updateFn: func(_ context.Context, account domain.UserAccount) error {
				updated = append(updated, account)
				return nil
			},
		}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, bootstrap)

		if err := svc.EnsureBootstrapAccounts(context.Background()); err != nil {
			t.Fatalf("ensure bootstrap: %v", err)
		}
		if len(updated) != 1 {
			t.Fatalf("expected one repaired account, got %d", len(updated))
		}
		if updated[0].Username != "admin" || len(updated[0].Roles) != 2 {
			t.Fatalf("admin roles not repaired: %+v", updated[0])
		}
	})

	t.Run("generates a password when none is configured", func(t *testing.T) {
		var inserted []domain.UserAccount
		users := &stubUserRepo{
			insertFn: func(_ context.Context, account domain.UserAccount) error {
				inserted = append(inserted, account)
				return nil
			},
		}
		seed := []BootstrapAccount{{Username: "admin", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}}}
		svc := newTestAccountService(t, users, &stubTokenIssuer{}, nil, seed)

		if err := svc.EnsureBootstrapAccounts(context.Background()); err != nil {
			t.Fatalf("ensure bootstrap: %v", err)
		}
		if len(inserted) != 1 || inserted[0].PasswordHash == "" {
			t.Fatalf("generated password not hashed: %+v", inserted)
		}
	})
}

func TestGeneratePassword(t *testing.T) {
	password, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	if len(password) != 16 {
		t.Fatalf("expected 16 characters, got %d", len(password))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSymbol {
		t.Fatalf("password %q missing a character class", password)
	}

	short, err := generatePassword(4)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	if len(short) < 12 {
		t.Fatalf("expected minimum length 12, got %d", len(short))
	}
}
