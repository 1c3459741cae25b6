/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists the coefficient table, user accounts and sessions so they
  survive restarts. Key names and table names are stable across versions.

INTERFACES IMPLEMENTED:
  valuation.TableStore: Coefficient table (whole-table replace)
  account.Store:        Users and sessions

KEY TABLES:
  coefficients: age -> percentage (decimal stored as TEXT)
  settings:     Small key/value flags (e.g. table_seeded)
  users:        Accounts with bcrypt password hashes
  sessions:     Login tokens with expiry

LAST WRITER WINS:
  SaveTable deletes and re-inserts every row inside one SQL transaction.
  Two administrators saving at once do not merge; the later commit wins.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, like the rest of the store layer.

USAGE:
  store, err := sqlite.New("./data/nuda.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - valuation/store.go: TableStore interface and LoadOrSeed
  - account/types.go:   account.Store interface
  - store/memory:       In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/valuation"
)

const settingTableSeeded = "table_seeded"

// sessionTimeLayout is fixed-width so expiry strings compare in time order.
const sessionTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS coefficients (
		age INTEGER PRIMARY KEY,
		percentage TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('admin', 'user')),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_username ON sessions(username);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// COEFFICIENT TABLE (valuation.TableStore interface)
// =============================================================================

// LoadTable returns the stored rows ordered by age and whether a table was ever saved.
func (s *Store) LoadTable(ctx context.Context) ([]valuation.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seeded string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", settingTableSeeded).Scan(&seeded)
	if errors.Is(err, sql.ErrNoRows) {
		return []valuation.Entry{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT age, percentage FROM coefficients ORDER BY age")
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := []valuation.Entry{}
	for rows.Next() {
		var e valuation.Entry
		var pct string
		if err := rows.Scan(&e.Age, &pct); err != nil {
			return nil, false, err
		}
		e.Percentage, err = decimal.NewFromString(pct)
		if err != nil {
			return nil, false, fmt.Errorf("invalid percentage %q for age %d: %w", pct, e.Age, err)
		}
		entries = append(entries, e)
	}
	return entries, true, rows.Err()
}

// SaveTable replaces the whole table atomically.
func (s *Store) SaveTable(ctx context.Context, entries []valuation.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM coefficients"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO coefficients (age, percentage) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Age, e.Percentage.String()); err != nil {
			if isUniqueConstraintError(err) {
				return &valuation.EntryError{Age: e.Age, Err: valuation.ErrDuplicateAge}
			}
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingTableSeeded, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// =============================================================================
// USER STORE (account.Store interface)
// =============================================================================

// CreateUser inserts a new account. Returns account.ErrUserExists on conflict.
func (s *Store) CreateUser(ctx context.Context, u account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		u.Username, u.PasswordHash, string(u.Role), u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return account.ErrUserExists
	}
	return err
}

// GetUser retrieves an account by normalized username.
func (s *Store) GetUser(ctx context.Context, username string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u account.User
	var role, createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT username, password_hash, role, created_at FROM users WHERE username = ?",
		username,
	).Scan(&u.Username, &u.PasswordHash, &role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Role = account.Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// ListUsers returns all accounts.
func (s *Store) ListUsers(ctx context.Context) ([]account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT username, password_hash, role, created_at FROM users ORDER BY username",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []account.User{}
	for rows.Next() {
		var u account.User
		var role, createdAt string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role, &createdAt); err != nil {
			return nil, err
		}
		u.Role = account.Role(role)
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdatePasswordHash replaces a user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE username = ?", hash, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes an account.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	return err
}

// =============================================================================
// SESSION STORE (account.Store interface)
// =============================================================================

// SaveSession stores a session.
func (s *Store) SaveSession(ctx context.Context, sess account.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, username, role, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET expires_at = excluded.expires_at
	`,
		sess.Token, sess.Username, string(sess.Role),
		sess.CreatedAt.UTC().Format(sessionTimeLayout),
		sess.ExpiresAt.UTC().Format(sessionTimeLayout),
	)
	return err
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (*account.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess account.Session
	var role, createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT token, username, role, created_at, expires_at FROM sessions WHERE token = ?",
		token,
	).Scan(&sess.Token, &sess.Username, &role, &createdAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.Role = account.Role(role)
	sess.CreatedAt, _ = time.Parse(sessionTimeLayout, createdAt)
	sess.ExpiresAt, err = time.Parse(sessionTimeLayout, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("invalid session expiry: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// DeleteUserSessions removes every session of a user.
func (s *Store) DeleteUserSessions(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE username = ?", username)
	return err
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?",
		now.UTC().Format(sessionTimeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
