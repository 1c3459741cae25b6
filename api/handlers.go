/*
handlers.go - HTTP API handlers for the valuation engine

PURPOSE:
  Exposes the valuation engine and the coefficient table via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  valuation, account and report packages.

ENDPOINTS:
  Public:
    GET    /api/health                        Liveness + store ping
    GET    /api/coefficients                  Current coefficient table
    POST   /api/valuations                    JSON input -> result
    GET    /api/valuations?market_value=...   Query input -> result
    POST   /api/valuations/report             JSON input -> text report
    GET    /api/valuations/report?...         Query input -> text report

  Admin (see auth.go for login and users):
    PUT    /api/admin/coefficients            Replace table
    PATCH  /api/admin/coefficients/{age}      Set one percentage
    POST   /api/admin/coefficients/reset      Restore the seed table
    GET    /api/admin/coefficients/export     Table as YAML
    POST   /api/admin/coefficients/import     YAML body replaces table

ARCHITECTURE:
  Handler struct holds all dependencies:
  - tables:   Coefficient table persistence
  - accounts: Users and sessions
  - renderer: Text report + currency formatting
  - table:    Cached current table, swapped whole on every save

  Tables are immutable, so a valuation grabs the current pointer under a
  read lock and computes without holding it.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid table rows, malformed bodies, weak passwords
  - 401: Missing/expired session, bad credentials
  - 403: Not an admin, protected account
  - 404: Unknown age or user
  - 409: Username taken
  - 429: Too many login attempts
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Login, sessions and user administration
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/warp/nuda-engine/account"
	"github.com/warp/nuda-engine/report"
	"github.com/warp/nuda-engine/valuation"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies, YAML imports included.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HandlerOptions configures a Handler. Zero values select defaults.
type HandlerOptions struct {
	// Seed is the table written on first run and restored by reset.
	Seed *valuation.Table

	Logger *zap.Logger
	Now    func() time.Time

	LoginRatePerMinute float64
	LoginBurst         int
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	tables   valuation.TableStore
	accounts *account.Service
	renderer *report.Renderer
	seed     *valuation.Table
	logger   *zap.Logger
	now      func() time.Time
	logins   *loginLimiter

	mu    sync.RWMutex
	table *valuation.Table

	// saveMu orders store writes and cache swaps together.
	saveMu sync.Mutex
}

// NewHandler creates a new handler. Call LoadTable before serving.
func NewHandler(tables valuation.TableStore, accounts *account.Service, renderer *report.Renderer, opts HandlerOptions) *Handler {
	if opts.Seed == nil {
		opts.Seed = valuation.DefaultTable()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 10
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	return &Handler{
		tables:   tables,
		accounts: accounts,
		renderer: renderer,
		seed:     opts.Seed,
		logger:   opts.Logger,
		now:      opts.Now,
		logins:   newLoginLimiter(opts.LoginRatePerMinute, opts.LoginBurst, opts.Now),
		table:    opts.Seed,
	}
}

// LoadTable loads the stored table into the cache, seeding the store on
// first run. It returns true when the seed was written.
func (h *Handler) LoadTable(ctx context.Context) (bool, error) {
	table, seeded, err := valuation.LoadOrSeed(ctx, h.tables, h.seed)
	if err != nil {
		return false, err
	}
	h.setTable(table)
	return seeded, nil
}

func (h *Handler) currentTable() *valuation.Table {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.table
}

func (h *Handler) setTable(t *valuation.Table) {
	h.mu.Lock()
	h.table = t
	h.mu.Unlock()
}

// saveTable persists t and then makes it current. Saves are serialized so the
// cache always holds the last table committed to the store.
func (h *Handler) saveTable(ctx context.Context, t *valuation.Table) error {
	h.saveMu.Lock()
	defer h.saveMu.Unlock()
	if err := h.tables.SaveTable(ctx, t.Entries()); err != nil {
		return err
	}
	h.setTable(t)
	return nil
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness and, when the store supports it, database reachability.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.tables.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"coefficients": h.currentTable().Len(),
	})
}

// =============================================================================
// VALUATION HANDLERS
// =============================================================================

// CreateValuation values the property described by a JSON body.
// POST /api/valuations
func (h *Handler) CreateValuation(w http.ResponseWriter, r *http.Request) {
	values, err := decodeLooseJSON(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	h.respondValuation(w, valuation.ParseInput(values))
}

// GetValuation values the property described by query parameters.
// GET /api/valuations?market_value=250000&age1=70
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	h.respondValuation(w, valuation.ParseInput(r.URL.Query()))
}

func (h *Handler) respondValuation(w http.ResponseWriter, in valuation.Input) {
	res := valuation.Compute(in, h.currentTable())
	h.writeJSON(w, http.StatusOK, toValuationDTO(in, res, h.renderer.Formatter()))
}

// CreateReport renders the valuation of a JSON body as a text report.
// POST /api/valuations/report
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	values, err := decodeLooseJSON(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	h.respondReport(w, valuation.ParseInput(values))
}

// GetReport renders the valuation of query parameters as a text report.
// GET /api/valuations/report?market_value=250000&age1=70
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	h.respondReport(w, valuation.ParseInput(r.URL.Query()))
}

func (h *Handler) respondReport(w http.ResponseWriter, in valuation.Input) {
	res := valuation.Compute(in, h.currentTable())
	doc := h.renderer.NewDocument(h.now(), in, res)

	var b strings.Builder
	if err := h.renderer.Render(&b, doc); err != nil {
		h.writeServiceError(w, "Failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="valoracion.txt"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, b.String())
}

// =============================================================================
// COEFFICIENT TABLE HANDLERS
// =============================================================================

// ListCoefficients returns the current table.
// GET /api/coefficients
func (h *Handler) ListCoefficients(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, toCoefficientTableDTO(h.currentTable()))
}

// ReplaceCoefficients replaces the whole table.
// PUT /api/admin/coefficients
func (h *Handler) ReplaceCoefficients(w http.ResponseWriter, r *http.Request) {
	var req CoefficientTableDTO
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	table, err := valuation.NewTable(fromCoefficientDTOs(req.Coefficients))
	if err != nil {
		h.writeServiceError(w, "Invalid coefficient table", err)
		return
	}
	if err := h.saveTable(r.Context(), table); err != nil {
		h.writeServiceError(w, "Failed to save coefficient table", err)
		return
	}
	h.logger.Info("coefficient table replaced",
		zap.String("op", "api.ReplaceCoefficients"),
		zap.Int("rows", table.Len()),
		zap.String("by", sessionFrom(r.Context()).Username),
	)
	h.writeJSON(w, http.StatusOK, toCoefficientTableDTO(table))
}

// UpdateCoefficient sets the percentage of one existing age. The body is
// read leniently: {"percentage": "abc"} sets 0.
// PATCH /api/admin/coefficients/{age}
func (h *Handler) UpdateCoefficient(w http.ResponseWriter, r *http.Request) {
	age, err := strconv.Atoi(chi.URLParam(r, "age"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid age", err)
		return
	}
	values, err := decodeLooseJSON(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	table, err := h.currentTable().WithPercentage(age, valuation.CoerceDecimal(values.Get("percentage")))
	if err != nil {
		h.writeServiceError(w, "Failed to update coefficient", err)
		return
	}
	if err := h.saveTable(r.Context(), table); err != nil {
		h.writeServiceError(w, "Failed to save coefficient table", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCoefficientTableDTO(table))
}

// ResetCoefficients restores the seed table.
// POST /api/admin/coefficients/reset
func (h *Handler) ResetCoefficients(w http.ResponseWriter, r *http.Request) {
	if err := h.saveTable(r.Context(), h.seed); err != nil {
		h.writeServiceError(w, "Failed to reset coefficient table", err)
		return
	}
	h.logger.Info("coefficient table reset",
		zap.String("op", "api.ResetCoefficients"),
		zap.String("by", sessionFrom(r.Context()).Username),
	)
	h.writeJSON(w, http.StatusOK, toCoefficientTableDTO(h.seed))
}

// ExportCoefficients downloads the table as YAML.
// GET /api/admin/coefficients/export
func (h *Handler) ExportCoefficients(w http.ResponseWriter, r *http.Request) {
	data, err := valuation.MarshalYAML(h.currentTable())
	if err != nil {
		h.writeServiceError(w, "Failed to export coefficient table", err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="coefficients.yaml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportCoefficients replaces the table with a YAML document.
// POST /api/admin/coefficients/import
func (h *Handler) ImportCoefficients(w http.ResponseWriter, r *http.Request) {
	table, err := valuation.ReadYAML(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid coefficient table", err)
		return
	}
	if err := h.saveTable(r.Context(), table); err != nil {
		h.writeServiceError(w, "Failed to save coefficient table", err)
		return
	}
	h.logger.Info("coefficient table imported",
		zap.String("op", "api.ImportCoefficients"),
		zap.Int("rows", table.Len()),
		zap.String("by", sessionFrom(r.Context()).Username),
	)
	h.writeJSON(w, http.StatusOK, toCoefficientTableDTO(table))
}

// =============================================================================
// HELPERS
// =============================================================================

// writeJSON encodes before writing the header, so an unencodable value
// becomes a logged 500 instead of an empty 200.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Int("status", status), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	h.writeJSON(w, status, resp)
}

// writeServiceError maps domain errors to HTTP statuses. Anything unmapped
// is logged and reported as 500 without details.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case valuation.IsClientError(err), account.IsClientError(err):
		h.writeError(w, http.StatusBadRequest, message, err)
	case account.IsUnauthenticated(err):
		h.writeError(w, http.StatusUnauthorized, message, err)
	case errors.Is(err, account.ErrProtectedAccount):
		h.writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, valuation.ErrAgeNotFound), errors.Is(err, account.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, account.ErrUserExists):
		h.writeError(w, http.StatusConflict, message, err)
	default:
		h.logger.Error(message, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, message, nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// looseValues adapts a decoded JSON object to valuation.Values.
type looseValues map[string]string

func (v looseValues) Get(key string) string {
	return v[key]
}

// decodeLooseJSON reads a JSON object whose fields may be numbers, strings
// or booleans. Nulls are dropped; nested values read as "" and coerce to 0.
func decodeLooseJSON(w http.ResponseWriter, r *http.Request) (looseValues, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	values := make(looseValues, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case json.Number:
			values[k] = val.String()
		case string:
			values[k] = val
		case bool:
			values[k] = strconv.FormatBool(val)
		default:
			values[k] = ""
		}
	}
	return values, nil
}
