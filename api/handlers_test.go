/*
handlers_test.go - HTTP tests for the API

Tests for:
- Valuation endpoints (JSON, query, lenient coercion, text report)
- Coefficient table administration (replace, patch, reset, export/import)
- Authentication, authorization and user administration
*/
package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/report"
	"github.com/warp/nuda-engine/store/memory"
	"github.com/warp/nuda-engine/store/sqlite"
	"github.com/warp/nuda-engine/valuation"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testAdminPassword = "admin-password"

type testServer struct {
	router   http.Handler
	handler  *Handler
	store    *sqlite.Store
	accounts *account.Service
}

func newTestServer(t *testing.T, opts HandlerOptions) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	accounts := account.NewService(store, nil, account.Options{BcryptCost: bcrypt.MinCost})
	_, err = accounts.EnsureAdmin(ctx, testAdminPassword)
	require.NoError(t, err)

	f, err := report.NewFormatter("es-ES")
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC) }
	}
	h := NewHandler(store, accounts, report.NewRenderer(f, nil), opts)
	_, err = h.LoadTable(ctx)
	require.NoError(t, err)

	return &testServer{
		router:   NewRouter(h, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}}),
		handler:  h,
		store:    store,
		accounts: accounts,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	sess, err := ts.accounts.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return sess.Token
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// VALUATION
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodGet, "/api/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListCoefficients_DefaultTable(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodGet, "/api/coefficients", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	table := decodeBody[CoefficientTableDTO](t, rec)
	assert.Equal(t, len(valuation.DefaultEntries()), table.Count)
	assert.Equal(t, 65, table.Coefficients[0].Age)
	assert.Equal(t, 44.0, table.Coefficients[0].Percentage)
}

func TestCreateValuation_SinglePersonWithUpfrontPayment(t *testing.T) {
	// GIVEN: A single 70-year-old owner of a 250,000 property
	ts := newTestServer(t, HandlerOptions{})
	body := `{"market_value": 250000, "age1": 70, "is_single_person": true, "initial_payment": 30000}`

	// WHEN: Requesting a valuation
	rec := ts.do(t, http.MethodPost, "/api/valuations", body, "")

	// THEN: Engine values are returned rounded to cents plus display strings
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeBody[ValuationDTO](t, rec)
	assert.Equal(t, 70, dto.Result.RelevantAge)
	assert.Equal(t, 49.0, dto.Result.AppliedPercentage)
	assert.Equal(t, 122500.0, dto.Result.BarePropertyValue)
	assert.Equal(t, 127500.0, dto.Result.UsufructValue)
	assert.Equal(t, 240, dto.Result.MonthsDivisor)
	assert.Equal(t, 561.46, dto.Result.PureAnnuityMonthly)
	assert.Equal(t, 0.05, dto.Result.AppliedBonusRate)
	assert.Equal(t, 92500.0, dto.Result.RemainingCapital)
	assert.Equal(t, 404.69, dto.Result.MixedAnnuityMonthly)
	assert.Equal(t, "250.000 €", dto.Display.MarketValue)
	assert.Equal(t, 1, dto.Input.BeneficiaryCount)
}

func TestCreateValuation_LenientCoercion(t *testing.T) {
	// GIVEN: Numbers sent as strings and a garbage market value
	ts := newTestServer(t, HandlerOptions{})

	// WHEN: Valuing
	rec := ts.do(t, http.MethodPost, "/api/valuations", `{"market_value": "abc", "age1": "70", "age2": null}`, "")

	// THEN: The request succeeds with zero money instead of failing
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeBody[ValuationDTO](t, rec)
	assert.Equal(t, 70, dto.Input.Age1)
	assert.Nil(t, dto.Input.Age2)
	assert.Equal(t, 0.0, dto.Result.BarePropertyValue)
	assert.Equal(t, 49.0, dto.Result.AppliedPercentage)
}

func TestCreateValuation_MalformedJSON(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodPost, "/api/valuations", `{"market_value": `, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetValuation_CoupleUsesYoungerAge(t *testing.T) {
	// GIVEN: A couple aged 80 and 75
	ts := newTestServer(t, HandlerOptions{})

	// WHEN: Valuing through query parameters
	rec := ts.do(t, http.MethodGet, "/api/valuations?market_value=250000&age1=80&age2=75&is_single_person=false", "", "")

	// THEN: The younger age drives the percentage
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeBody[ValuationDTO](t, rec)
	assert.Equal(t, 75, dto.Result.RelevantAge)
	assert.Equal(t, 55.0, dto.Result.AppliedPercentage)
	assert.Equal(t, 137500.0, dto.Result.BarePropertyValue)
	assert.Equal(t, 2, dto.Input.BeneficiaryCount)
	require.NotNil(t, dto.Input.Age2)
	assert.Equal(t, 75, *dto.Input.Age2)
}

func TestCreateReport_PlainText(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodPost, "/api/valuations/report", `{"market_value": 250000, "age1": 70, "initial_payment": 30000}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "19/10/2026")
	assert.Contains(t, rec.Body.String(), "Pago único:           122.500 €")
	assert.Contains(t, rec.Body.String(), "Renta mixta:          405 € / mes")
}

func TestGetReport_QueryInput(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodGet, "/api/valuations/report?market_value=250000&age1=70", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Valor de mercado:      250.000 €")
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestAdminRoutes_RequireAdminSession(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	ctx := context.Background()
	_, err := ts.accounts.CreateUser(ctx, "agent", "agent-password", account.RoleUser)
	require.NoError(t, err)
	userToken := ts.login(t, "agent", "agent-password")

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"unknown token", "not-a-session", http.StatusUnauthorized},
		{"user role", userToken, http.StatusForbidden},
		{"admin", ts.login(t, account.AdminUsername, testAdminPassword), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/admin/users", "", tt.token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestLogin_SuccessAndFailure(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	rec := ts.do(t, http.MethodPost, "/api/auth/login", `{"username": "ADMIN", "password": "`+testAdminPassword+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decodeBody[SessionDTO](t, rec)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "admin", sess.Username)
	assert.Equal(t, "admin", sess.Role)

	rec = ts.do(t, http.MethodGet, "/api/auth/session", "", sess.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[SessionDTO](t, rec).Token)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", `{"username": "admin", "password": "wrong-password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")
}

func TestLogout_RevokesSession(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	rec := ts.do(t, http.MethodPost, "/api/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/auth/session", "", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_Throttled(t *testing.T) {
	// GIVEN: A burst of two attempts and a negligible refill rate
	ts := newTestServer(t, HandlerOptions{LoginRatePerMinute: 0.001, LoginBurst: 2})
	body := `{"username": "admin", "password": "wrong-password"}`

	// WHEN: Trying three times from one address
	first := ts.do(t, http.MethodPost, "/api/auth/login", body, "")
	second := ts.do(t, http.MethodPost, "/api/auth/login", body, "")
	third := ts.do(t, http.MethodPost, "/api/auth/login", body, "")

	// THEN: The third attempt is rejected before checking credentials
	assert.Equal(t, http.StatusUnauthorized, first.Code)
	assert.Equal(t, http.StatusUnauthorized, second.Code)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
}

// =============================================================================
// COEFFICIENT ADMINISTRATION
// =============================================================================

func TestUpdateCoefficient_ChangesValuationAndPersists(t *testing.T) {
	// GIVEN: An admin session
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	// WHEN: Setting age 70 to 60%
	rec := ts.do(t, http.MethodPatch, "/api/admin/coefficients/70", `{"percentage": 60}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: New valuations use it
	rec = ts.do(t, http.MethodGet, "/api/valuations?market_value=250000&age1=70", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 150000.0, decodeBody[ValuationDTO](t, rec).Result.BarePropertyValue)

	// AND: The store holds the change
	entries, saved, err := ts.store.LoadTable(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)
	table, err := valuation.NewTable(entries)
	require.NoError(t, err)
	assert.Equal(t, "60", table.Percentage(70).String())
}

func TestUpdateCoefficient_Errors(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown age", "/api/admin/coefficients/120", `{"percentage": 50}`, http.StatusNotFound},
		{"bad age", "/api/admin/coefficients/abc", `{"percentage": 50}`, http.StatusBadRequest},
		{"out of range", "/api/admin/coefficients/70", `{"percentage": 150}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPatch, tt.path, tt.body, token)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestUpdateCoefficient_NonNumericCoercesToZero(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	rec := ts.do(t, http.MethodPatch, "/api/admin/coefficients/70", `{"percentage": "abc"}`, token)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.handler.currentTable().Percentage(70).IsZero())
}

func TestReplaceCoefficients_DuplicateAgeRejected(t *testing.T) {
	// GIVEN: A table with age 70 twice
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)
	body := `{"coefficients": [{"age": 70, "percentage": 50}, {"age": 70, "percentage": 55}]}`

	// WHEN: Replacing
	rec := ts.do(t, http.MethodPut, "/api/admin/coefficients", body, token)

	// THEN: Rejected and the current table is untouched
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "age 70")
	assert.Equal(t, len(valuation.DefaultEntries()), ts.handler.currentTable().Len())
}

func TestReplaceThenReset(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	// Unsorted input is accepted and stored sorted
	rec := ts.do(t, http.MethodPut, "/api/admin/coefficients", `{"coefficients": [{"age": 80, "percentage": 70}, {"age": 60, "percentage": 40}]}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	table := decodeBody[CoefficientTableDTO](t, rec)
	require.Equal(t, 2, table.Count)
	assert.Equal(t, 60, table.Coefficients[0].Age)

	rec = ts.do(t, http.MethodGet, "/api/valuations?market_value=100000&age1=70", "", "")
	assert.Equal(t, 40000.0, decodeBody[ValuationDTO](t, rec).Result.BarePropertyValue)

	rec = ts.do(t, http.MethodPost, "/api/admin/coefficients/reset", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(valuation.DefaultEntries()), decodeBody[CoefficientTableDTO](t, rec).Count)
}

func TestExportImportCoefficients(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	// Export
	rec := ts.do(t, http.MethodGet, "/api/admin/coefficients/export", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "coefficients:")
	assert.Contains(t, rec.Body.String(), "59.21")

	// Import a smaller table
	yamlDoc := "coefficients:\n  - age: 65\n    percentage: 40\n  - age: 75\n    percentage: 50.5\n"
	rec = ts.do(t, http.MethodPost, "/api/admin/coefficients/import", yamlDoc, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ts.handler.currentTable().Len())
	assert.Equal(t, "50.5", ts.handler.currentTable().Percentage(80).String())

	// Malformed import leaves the table alone
	rec = ts.do(t, http.MethodPost, "/api/admin/coefficients/import", "coefficients: [", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, ts.handler.currentTable().Len())
}

// =============================================================================
// USER ADMINISTRATION
// =============================================================================

func TestUserAdministration(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	// Create
	rec := ts.do(t, http.MethodPost, "/api/admin/users", `{"username": "Agent", "password": "agent-password"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decodeBody[UserDTO](t, rec)
	assert.Equal(t, "agent", user.Username)
	assert.Equal(t, "user", user.Role)
	assert.False(t, user.Protected)
	assert.NotContains(t, rec.Body.String(), "password")

	// Duplicate in another case
	rec = ts.do(t, http.MethodPost, "/api/admin/users", `{"username": "AGENT", "password": "agent-password"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Weak password, bad role
	rec = ts.do(t, http.MethodPost, "/api/admin/users", `{"username": "other", "password": "short"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/admin/users", `{"username": "other", "password": "long-enough", "role": "root"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// List
	rec = ts.do(t, http.MethodGet, "/api/admin/users", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Users []UserDTO `json:"users"`
	}](t, rec)
	require.Len(t, list.Users, 2)
	assert.Equal(t, "admin", list.Users[0].Username)
	assert.True(t, list.Users[0].Protected)

	// Password change revokes the agent's sessions
	agentToken := ts.login(t, "agent", "agent-password")
	rec = ts.do(t, http.MethodPut, "/api/admin/users/agent/password", `{"password": "new-agent-password"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/auth/session", "", agentToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	ts.login(t, "agent", "new-agent-password")

	// Delete
	rec = ts.do(t, http.MethodDelete, "/api/admin/users/agent", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/admin/users/agent", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUser_AdminProtected(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)

	rec := ts.do(t, http.MethodDelete, "/api/admin/users/admin", "", token)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// INPUT BOUNDS AND ENCODING
// =============================================================================

func TestGetValuation_HugeExponentsCoerceToZero(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})

	for _, value := range []string{"1e309", "1e5000000", "1e-5000000"} {
		t.Run(value, func(t *testing.T) {
			// WHEN: Valuing an absurd market value
			rec := ts.do(t, http.MethodGet, "/api/valuations?age1=70&market_value="+value, "", "")

			// THEN: It is treated like non-numeric input, with a full JSON body
			require.Equal(t, http.StatusOK, rec.Code)
			dto := decodeBody[ValuationDTO](t, rec)
			assert.Equal(t, 0.0, dto.Input.MarketValue)
			assert.Equal(t, 0.0, dto.Result.BarePropertyValue)
		})
	}
}

func TestWriteJSON_UnencodableValueIs500(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	rec := httptest.NewRecorder()

	ts.handler.writeJSON(rec, http.StatusOK, map[string]float64{"value": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to encode response")
}

func TestCreateUser_PasswordOverBcryptLimitIs400(t *testing.T) {
	ts := newTestServer(t, HandlerOptions{})
	token := ts.login(t, account.AdminUsername, testAdminPassword)
	body := `{"username": "agent", "password": "` + strings.Repeat("x", 80) + `"}`

	rec := ts.do(t, http.MethodPost, "/api/admin/users", body, token)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password too long")
}

// =============================================================================
// LOGIN THROTTLING BY CLIENT ADDRESS
// =============================================================================

func loginFrom(router http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username": "admin", "password": "wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestLogin_ThrottleIgnoresForwardedForByDefault(t *testing.T) {
	// GIVEN: A burst of two and no trusted proxy
	ts := newTestServer(t, HandlerOptions{LoginRatePerMinute: 0.001, LoginBurst: 2})

	// WHEN: Sending twenty attempts, each claiming a different address
	counts := map[int]int{}
	for i := 0; i < 20; i++ {
		counts[loginFrom(ts.router, fmt.Sprintf("203.0.113.%d", i))]++
	}

	// THEN: All share the socket address's bucket
	assert.Equal(t, map[int]int{http.StatusUnauthorized: 2, http.StatusTooManyRequests: 18}, counts)
	assert.Equal(t, 1, ts.handler.logins.tracked())
}

func TestLogin_TrustedProxyUsesForwardedFor(t *testing.T) {
	// GIVEN: A router that trusts the proxy headers
	ts := newTestServer(t, HandlerOptions{LoginRatePerMinute: 0.001, LoginBurst: 1})
	router := NewRouter(ts.handler, RouterOptions{TrustProxy: true})

	// WHEN/THEN: Each forwarded client gets its own bucket
	assert.Equal(t, http.StatusUnauthorized, loginFrom(router, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(router, "203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, loginFrom(router, "203.0.113.2"))
}

// =============================================================================
// CONCURRENT TABLE SAVES
// =============================================================================

// gatedTableStore blocks the first SaveTable until release is closed and
// records the order in which saves reach the store.
type gatedTableStore struct {
	*memory.Memory
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
	order []int
}

func (s *gatedTableStore) SaveTable(ctx context.Context, entries []valuation.Entry) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	s.order = append(s.order, len(entries))
	s.mu.Unlock()
	return s.Memory.SaveTable(ctx, entries)
}

func TestSaveTable_CacheMatchesLastCommittedTable(t *testing.T) {
	// GIVEN: A store whose first save stalls
	store := &gatedTableStore{Memory: memory.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	f, err := report.NewFormatter("es-ES")
	require.NoError(t, err)
	h := NewHandler(store, account.NewService(store.Memory, nil, account.Options{}), report.NewRenderer(f, nil), HandlerOptions{})

	one, err := valuation.NewTable([]valuation.Entry{valuation.NewEntry(65, 40)})
	require.NoError(t, err)
	two, err := valuation.NewTable([]valuation.Entry{valuation.NewEntry(65, 40), valuation.NewEntry(75, 50)})
	require.NoError(t, err)

	// WHEN: A second save starts while the first is inside the store
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.saveTable(ctx, one))
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		assert.NoError(t, h.saveTable(ctx, two))
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	// THEN: Saves commit in order and the cache holds the last one
	assert.Equal(t, []int{1, 2}, store.order)
	entries, _, err := store.LoadTable(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, h.currentTable().Len())
}
