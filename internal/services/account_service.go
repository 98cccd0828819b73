package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/cuakstore/api/internal/domain"
	"github.com/cuakstore/api/internal/platform/auth"
	"github.com/cuakstore/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 8
	minUsernameLength = 3
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var (
	// ErrAccountInvalidInput signals the caller provided invalid registration or login data.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the username or email is already taken.
	ErrAccountConflict = errors.New("account: conflict")
	// ErrAccountInvalidCredentials indicates the username/password pair does not match.
	ErrAccountInvalidCredentials = errors.New("account: invalid credentials")
	// ErrAccountGoogleUnverified indicates the Google identity has no verified email.
	ErrAccountGoogleUnverified = errors.New("account: google email not verified")
)

// tokenIssuer abstracts auth.TokenIssuer for easier testing.
type tokenIssuer interface {
	Issue(identity auth.Identity) (string, time.Time, error)
}

// googleTokenVerifier abstracts auth.GoogleVerifier for easier testing.
type googleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*auth.GoogleClaims, error)
}

// BootstrapAccount seeds a privileged account at startup.
type BootstrapAccount struct {
	Username string
	Email    string
	Password string
	Roles    []domain.Role
}

// AccountServiceDeps bundles constructor inputs for the account service.
type AccountServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      tokenIssuer
	Google      googleTokenVerifier
	Bootstrap   []BootstrapAccount
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	users     repositories.UserRepository
	tokens    tokenIssuer
	google    googleTokenVerifier
	bootstrap []BootstrapAccount
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewAccountService constructs the account service with the supplied dependencies.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Users == nil {
		return nil, errors.New("account service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("account service: token issuer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		google:    deps.Google,
		bootstrap: deps.Bootstrap,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *accountService) Register(ctx context.Context, cmd RegisterAccountCommand) (AuthSession, error) {
	username := strings.TrimSpace(cmd.Username)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if len(username) < minUsernameLength {
		return AuthSession{}, fmt.Errorf("%w: username must be at least %d characters", ErrAccountInvalidInput, minUsernameLength)
	}
	if !emailPattern.MatchString(email) {
		return AuthSession{}, fmt.Errorf("%w: email address is invalid", ErrAccountInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return AuthSession{}, fmt.Errorf("%w: password must be at least %d characters", ErrAccountInvalidInput, minPasswordLength)
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return AuthSession{}, fmt.Errorf("%w: username %q is taken", ErrAccountConflict, username)
	} else if !isRepositoryNotFound(err) {
		return AuthSession{}, mapAccountRepositoryError(err)
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthSession{}, fmt.Errorf("%w: email %q is already registered", ErrAccountConflict, email)
	} else if !isRepositoryNotFound(err) {
		return AuthSession{}, mapAccountRepositoryError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthSession{}, fmt.Errorf("account: hash password: %w", err)
	}

	now := s.clock()
	account := domain.UserAccount{
		ID:           userIDPrefix + s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Roles:        []domain.Role{domain.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, account); err != nil {
		return AuthSession{}, mapAccountRepositoryError(err)
	}

	s.logger(ctx, "account.registered", map[string]any{
		"userId":   account.ID,
		"username": account.Username,
	})
	return s.issueSession(account)
}

func (s *accountService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	username := strings.TrimSpace(cmd.Username)
	if username == "" || cmd.Password == "" {
		return AuthSession{}, fmt.Errorf("%w: username and password are required", ErrAccountInvalidInput)
	}

	account, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if isRepositoryNotFound(err) {
			return AuthSession{}, ErrAccountInvalidCredentials
		}
		return AuthSession{}, mapAccountRepositoryError(err)
	}
	if account.PasswordHash == "" {
		return AuthSession{}, ErrAccountInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(cmd.Password)); err != nil {
		return AuthSession{}, ErrAccountInvalidCredentials
	}

	s.logger(ctx, "account.login", map[string]any{"userId": account.ID})
	return s.issueSession(account)
}

func (s *accountService) LoginWithGoogle(ctx context.Context, cmd GoogleLoginCommand) (AuthSession, error) {
	if s.google == nil {
		return AuthSession{}, errors.New("account service: google sign-in is not configured")
	}
	idToken := strings.TrimSpace(cmd.IDToken)
	if idToken == "" {
		return AuthSession{}, fmt.Errorf("%w: google id token is required", ErrAccountInvalidInput)
	}

	claims, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return AuthSession{}, fmt.Errorf("%w: %v", ErrAccountInvalidCredentials, err)
	}
	if !claims.EmailVerified || strings.TrimSpace(claims.Email) == "" {
		return AuthSession{}, ErrAccountGoogleUnverified
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))

	account, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if account.GoogleSub == nil || *account.GoogleSub != claims.Subject {
			account.GoogleSub = valuePtr(claims.Subject)
			account.UpdatedAt = s.clock()
			if err := s.users.Update(ctx, account); err != nil {
				return AuthSession{}, mapAccountRepositoryError(err)
			}
		}
	case isRepositoryNotFound(err):
		account, err = s.createGoogleAccount(ctx, email, claims)
		if err != nil {
			return AuthSession{}, err
		}
	default:
		return AuthSession{}, mapAccountRepositoryError(err)
	}

	s.logger(ctx, "account.login.google", map[string]any{"userId": account.ID})
	return s.issueSession(account)
}

func (s *accountService) GetAccount(ctx context.Context, userID string) (UserAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserAccount{}, fmt.Errorf("%w: user id is required", ErrAccountInvalidInput)
	}
	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserAccount{}, mapAccountRepositoryError(err)
	}
	return account, nil
}

// EnsureBootstrapAccounts creates the configured admin and owner accounts when
// absent and guarantees their role assignments when they already exist.
func (s *accountService) EnsureBootstrapAccounts(ctx context.Context) error {
	for _, seed := range s.bootstrap {
		username := strings.TrimSpace(seed.Username)
		if username == "" {
			return fmt.Errorf("%w: bootstrap account requires a username", ErrAccountInvalidInput)
		}

		account, err := s.users.FindByUsername(ctx, username)
		if err != nil {
			if !isRepositoryNotFound(err) {
				return mapAccountRepositoryError(err)
			}
			if err := s.createBootstrapAccount(ctx, seed); err != nil {
				return err
			}
			continue
		}

		if missing := missingRoles(account.Roles, seed.Roles); len(missing) > 0 {
			account.Roles = append(account.Roles, missing...)
			account.UpdatedAt = s.clock()
			if err := s.users.Update(ctx, account); err != nil {
				return mapAccountRepositoryError(err)
			}
			s.logger(ctx, "account.bootstrap.roles_updated", map[string]any{
				"userId":   account.ID,
				"username": account.Username,
			})
		}
	}
	return nil
}

func (s *accountService) createBootstrapAccount(ctx context.Context, seed BootstrapAccount) error {
	password := seed.Password
	if password == "" {
		generated, err := generatePassword(16)
		if err != nil {
			return fmt.Errorf("account: generate bootstrap password: %w", err)
		}
		password = generated
		// Logged exactly once at creation; the hash is all that survives.
		s.logger(ctx, "account.bootstrap.password_generated", map[string]any{
			"username": strings.TrimSpace(seed.Username),
			"password": password,
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("account: hash bootstrap password: %w", err)
	}

	roles := seed.Roles
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleUser}
	}

	now := s.clock()
	account := domain.UserAccount{
		ID:           userIDPrefix + s.newID(),
		Username:     strings.TrimSpace(seed.Username),
		Email:        strings.ToLower(strings.TrimSpace(seed.Email)),
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, account); err != nil {
		return mapAccountRepositoryError(err)
	}
	s.logger(ctx, "account.bootstrap.created", map[string]any{
		"userId":   account.ID,
		"username": account.Username,
	})
	return nil
}

func (s *accountService) createGoogleAccount(ctx context.Context, email string, claims *auth.GoogleClaims) (domain.UserAccount, error) {
	now := s.clock()
	account := domain.UserAccount{
		ID:        userIDPrefix + s.newID(),
		Username:  googleUsername(email, s.newID()),
		Email:     email,
		Roles:     []domain.Role{domain.RoleUser},
		GoogleSub: valuePtr(claims.Subject),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Insert(ctx, account); err != nil {
		return domain.UserAccount{}, mapAccountRepositoryError(err)
	}
	s.logger(ctx, "account.created.google", map[string]any{
		"userId": account.ID,
	})
	return account, nil
}

func (s *accountService) issueSession(account domain.UserAccount) (AuthSession, error) {
	token, expiresAt, err := s.tokens.Issue(auth.Identity{
		UID:      account.ID,
		Username: account.Username,
		Email:    account.Email,
		Roles:    rolesToStrings(account.Roles),
	})
	if err != nil {
		return AuthSession{}, fmt.Errorf("account: issue token: %w", err)
	}
	return AuthSession{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account,
	}, nil
}

func mapAccountRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAccountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("account: repository unavailable: %w", err)
		}
	}
	return err
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func missingRoles(current, required []domain.Role) []domain.Role {
	var missing []domain.Role
	for _, role := range required {
		found := false
		for _, have := range current {
			if have == role {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, role)
		}
	}
	return missing
}

// generatePassword builds a random password of the requested length containing
// at least one lowercase, uppercase, digit, and symbol character.
func generatePassword(length int) (string, error) {
	const (
		lower   = "abcdefghijklmnopqrstuvwxyz"
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		digits  = "0123456789"
		symbols = "!@#$%&*+-_=?"
	)
	if length < 12 {
		length = 12
	}

	classes := []string{lower, upper, digits, symbols}
	all := lower + upper + digits + symbols

	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	out := make([]byte, 0, length)
	for _, class := range classes {
		ch, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	for len(out) < length {
		ch, err := pick(all)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		j := n.Int64()
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

// googleUsername derives a username from the email local part; the suffix
// keeps first-time Google sign-ins from colliding with existing usernames.
func googleUsername(email, suffix string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("%s-%s", local, strings.ToLower(suffix))
}
