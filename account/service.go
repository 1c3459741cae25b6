package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced on every password set through the service.
const MinPasswordLength = 8

// MaxPasswordLength is the bcrypt input limit in bytes.
const MaxPasswordLength = 72

// DefaultSessionTTL is used when Options.SessionTTL is zero.
const DefaultSessionTTL = 12 * time.Hour

// Options tunes a Service. Zero values select defaults.
type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Service implements account operations on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger
	ttl    time.Duration
	cost   int
	now    func() time.Time

	// compare is bcrypt.CompareHashAndPassword outside tests.
	compare func(hash, password []byte) error

	// dummyHash is compared on unknown usernames so both paths cost one bcrypt run.
	dummyOnce sync.Once
	dummyHash []byte
}

// NewService creates a Service.
func NewService(store Store, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   store,
		logger:  logger,
		ttl:     opts.SessionTTL,
		cost:    opts.BcryptCost,
		now:     opts.Now,
		compare: bcrypt.CompareHashAndPassword,
	}
}

// =============================================================================
// USERS
// =============================================================================

// EnsureAdmin creates the protected admin account if it does not exist yet.
// It returns true when the account was created.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	existing, err := s.store.GetUser(ctx, AdminUsername)
	if err != nil {
		return false, fmt.Errorf("failed to look up admin account: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, AdminUsername, password, RoleAdmin); err != nil {
		return false, err
	}
	s.logger.Info("created admin account", zap.String("op", "account.EnsureAdmin"))
	return true, nil
}

// CreateUser adds a new account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password string, role Role) (*User, error) {
	name := NormalizeUsername(username)
	if name == "" {
		return nil, ErrInvalidUsername
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetUser(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	u := User{Username: name, PasswordHash: hash, Role: role, CreatedAt: s.now().UTC()}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all accounts ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// DeleteUser removes an account and its sessions. The admin account is protected.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	name := NormalizeUsername(username)
	if name == AdminUsername {
		return ErrProtectedAccount
	}
	u, err := s.store.GetUser(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}
	if err := s.store.DeleteUserSessions(ctx, name); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return s.store.DeleteUser(ctx, name)
}

// ChangePassword replaces a user's password and revokes their sessions.
func (s *Service) ChangePassword(ctx context.Context, username, password string) error {
	name := NormalizeUsername(username)
	u, err := s.store.GetUser(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		return ErrUserNotFound
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, name, hash); err != nil {
		return err
	}
	return s.store.DeleteUserSessions(ctx, name)
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: minimum %d characters", ErrWeakPassword, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("%w: maximum %d bytes", ErrPasswordTooLong, MaxPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// Authenticate checks credentials and opens a session.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	name := NormalizeUsername(username)
	u, err := s.store.GetUser(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if u == nil {
		_ = s.compare(s.dummy(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := s.compare([]byte(u.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("unreadable password hash",
				zap.String("op", "account.Authenticate"),
				zap.String("username", name),
				zap.Error(err),
			)
		}
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := Session{
		Token:     uuid.New().String(),
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &sess, nil
}

// dummy returns a hash of a random secret at the service's cost.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), s.cost)
		if err != nil {
			s.logger.Error("failed to build dummy hash", zap.String("op", "account.dummy"), zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// Session resolves a token to a live session.
func (s *Service) Session(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		_ = s.store.DeleteSession(ctx, token)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}
