package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/nuda-engine/account"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// LOGIN THROTTLING
// =============================================================================

const (
	maxLoginClients    = 10000
	loginSweepInterval = time.Minute
)

// loginLimiter keeps one token bucket per client IP. Buckets that have
// refilled are dropped on sweep; at most max are tracked, and clients beyond
// that share the overflow bucket.
type loginLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	max       int
	now       func() time.Time
	lastSweep time.Time
	limiters  map[string]*rate.Limiter
	overflow  *rate.Limiter
}

func newLoginLimiter(perMinute float64, burst int, now func() time.Time) *loginLimiter {
	limit := rate.Limit(perMinute / 60)
	return &loginLimiter{
		limit:     limit,
		burst:     burst,
		max:       maxLoginClients,
		now:       now,
		lastSweep: now(),
		limiters:  make(map[string]*rate.Limiter),
		overflow:  rate.NewLimiter(limit, burst),
	}
}

func (l *loginLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	since := now.Sub(l.lastSweep)
	if since >= loginSweepInterval || (len(l.limiters) >= l.max && since >= time.Second) {
		l.sweep(now)
	}

	lim, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= l.max {
			return l.overflow.AllowN(now, 1)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	return lim.AllowN(now, 1)
}

// sweep drops full buckets; a full bucket behaves exactly like a new one.
func (l *loginLimiter) sweep(now time.Time) {
	for ip, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

func (l *loginLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// clientIP is the socket peer address. X-Forwarded-For is only honored when
// the router runs middleware.RealIP (RouterOptions.TrustProxy).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// SESSION CONTEXT
// =============================================================================

type sessionKey struct{}

func withSession(ctx context.Context, s *account.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// sessionFrom returns the session attached by requireAdmin, or a zero session.
func sessionFrom(ctx context.Context) account.Session {
	if s, ok := ctx.Value(sessionKey{}).(*account.Session); ok && s != nil {
		return *s
	}
	return account.Session{}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// requireAdmin rejects requests without a live admin session.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.accounts.Session(r.Context(), bearerToken(r))
		if err != nil {
			h.writeServiceError(w, "Authentication required", err)
			return
		}
		if sess.Role != account.RoleAdmin {
			h.writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login checks credentials and returns a session token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.logins.allow(ip) {
		h.logger.Warn("login throttled", zap.String("op", "api.Login"), zap.String("ip", ip))
		h.writeError(w, http.StatusTooManyRequests, "Too many login attempts, try again later", nil)
		return
	}

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login failed",
			zap.String("op", "api.Login"),
			zap.String("username", account.NormalizeUsername(req.Username)),
			zap.String("ip", ip),
		)
		h.writeServiceError(w, "Invalid username or password", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionDTO(sess, true))
}

// Logout ends the caller's session. It succeeds without a token.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		if err := h.accounts.Logout(r.Context(), token); err != nil {
			h.writeServiceError(w, "Failed to log out", err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// GetSession describes the caller's session.
// GET /api/auth/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.accounts.Session(r.Context(), bearerToken(r))
	if err != nil {
		h.writeServiceError(w, "Authentication required", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSessionDTO(sess, false))
}

// =============================================================================
// USER ADMINISTRATION
// =============================================================================

// ListUsers returns all accounts.
// GET /api/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"users": dtos})
}

// CreateUser adds an account. Role defaults to "user".
// POST /api/admin/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	role := account.Role(req.Role)
	if role == "" {
		role = account.RoleUser
	}

	u, err := h.accounts.CreateUser(r.Context(), req.Username, req.Password, role)
	if err != nil {
		h.writeServiceError(w, "Failed to create user", err)
		return
	}
	h.logger.Info("user created",
		zap.String("op", "api.CreateUser"),
		zap.String("username", u.Username),
		zap.String("role", string(u.Role)),
		zap.String("by", sessionFrom(r.Context()).Username),
	)
	h.writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

// DeleteUser removes an account and its sessions.
// DELETE /api/admin/users/{username}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := h.accounts.DeleteUser(r.Context(), username); err != nil {
		h.writeServiceError(w, "Failed to delete user", err)
		return
	}
	h.logger.Info("user deleted",
		zap.String("op", "api.DeleteUser"),
		zap.String("username", account.NormalizeUsername(username)),
		zap.String("by", sessionFrom(r.Context()).Username),
	)
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "User deleted"})
}

// ChangePassword sets a new password and revokes the user's sessions.
// PUT /api/admin/users/{username}/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), chi.URLParam(r, "username"), req.Password); err != nil {
		h.writeServiceError(w, "Failed to change password", err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Password changed"})
}
