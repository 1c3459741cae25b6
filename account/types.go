/*
Package account manages the users allowed to edit the coefficient table.

PURPOSE:
  Users, roles, credentials and sessions. Passwords are stored as salted
  bcrypt hashes and compared with bcrypt; no plaintext is ever persisted.

KEY CONCEPTS:
  - User:    Unique (case-insensitive) username, password hash, role
  - Role:    "admin" may edit the table and manage users, "user" may not
  - Session: Opaque uuid token with an expiry, the "current session"

PROTECTED ACCOUNT:
  The account named "admin" is created on first run (EnsureAdmin) and can
  never be deleted.

SEE ALSO:
  - service.go: Operations
  - store/sqlite/sqlite.go: Persistence
  - api/auth.go: HTTP login flow and role middleware
*/
package account

import (
	"context"
	"strings"
	"time"
)

// Role controls what a user may do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// AdminUsername is the distinguished account protected from deletion.
const AdminUsername = "admin"

// User is a stored account.
type User struct {
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Session is an authenticated login.
type Session struct {
	Token     string
	Username  string
	Role      Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NormalizeUsername folds case and trims spaces; usernames are unique on this form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// =============================================================================
// STORE
// =============================================================================

// Store persists users and sessions. Lookups return (nil, nil) when the
// record does not exist. Usernames passed in are already normalized.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) error
	DeleteUser(ctx context.Context, username string) error

	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, username string) error
}
