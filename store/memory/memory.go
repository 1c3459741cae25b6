// Package memory provides in-memory store implementations for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/valuation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements valuation.TableStore and account.Store.
type Memory struct {
	mu         sync.RWMutex
	table      []valuation.Entry
	tableSaved bool
	users      map[string]account.User
	sessions   map[string]account.Session
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]account.User),
		sessions: make(map[string]account.Session),
	}
}

// =============================================================================
// COEFFICIENT TABLE
// =============================================================================

func (m *Memory) LoadTable(_ context.Context) ([]valuation.Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]valuation.Entry, len(m.table))
	copy(out, m.table)
	return out, m.tableSaved, nil
}

// SaveTable replaces the whole table.
func (m *Memory) SaveTable(_ context.Context, entries []valuation.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table = make([]valuation.Entry, len(entries))
	copy(m.table, entries)
	m.tableSaved = true
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u account.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; ok {
		return account.ErrUserExists
	}
	m.users[u.Username] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, username string) (*account.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]account.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]account.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) UpdatePasswordHash(_ context.Context, username, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return account.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[username] = u
	return nil
}

func (m *Memory) DeleteUser(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, username)
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) SaveSession(_ context.Context, s account.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.Token] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (*account.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

func (m *Memory) DeleteUserSessions(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, s := range m.sessions {
		if s.Username == username {
			delete(m.sessions, token)
		}
	}
	return nil
}
