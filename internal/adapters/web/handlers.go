package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"enrollment-reconciler/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	log       *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewHandler creates and wires the chi router with all routes.
// Day-based query windows are read in loc.
func NewHandler(svc app.ApplicationService, log *zap.Logger, loc *time.Location, allowedOrigins, jwtSecret string) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{svc: svc, jwtSecret: jwtSecret, log: log, loc: loc, now: time.Now}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20))

	// ── Public ───────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// ── Protected API routes (401 JSON if unauthenticated) ───────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/api/auth/me", h.me)
		r.Get("/api/tenants", h.listTenants)

		// Read-only diagnostics
		r.Get("/api/tenants/{tenant}/orders/{orderID}", h.inspectOrder)
		r.Get("/api/tenants/{tenant}/transfers", h.listTenantTransfers)
		r.Get("/api/transfers", h.listTransfers)
		r.Get("/api/gateway/transactions", h.listGatewayTransactions)
		r.Get("/api/ledger/entries", h.listLedgerEntries)

		// Writes
		r.Post("/api/tenants/{tenant}/orders/{orderID}/reconcile", h.reconcileOrder)
		r.Post("/api/runs", h.triggerRun)
	})

	h.router = r
	return r
}

// health returns service status and the number of configured tenants.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status  string `json:"status"`
		Tenants int    `json:"tenants"`
	}
	writeJSON(w, response{Status: "ok", Tenants: len(h.svc.ListTenants(r.Context()))})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
