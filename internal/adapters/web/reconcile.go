package web

import (
	"net/http"
	"strconv"
	"time"

	"enrollment-reconciler/internal/app"
	"enrollment-reconciler/internal/tenant"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.ListTenants(r.Context()))
}

// orderRequest reads {tenant}, {orderID} and the optional ?source= override.
func orderRequest(w http.ResponseWriter, r *http.Request) (app.OrderRequest, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return app.OrderRequest{}, false
	}
	req := app.OrderRequest{TenantKey: chi.URLParam(r, "tenant"), OrderID: id}
	switch s := tenant.SourceKind(r.URL.Query().Get("source")); s {
	case "":
	case tenant.SourceGateway, tenant.SourceBankTransfer:
		req.Source = s
	default:
		writeError(w, r, "source must be gateway or bank_transfer", "BAD_REQUEST", http.StatusBadRequest)
		return app.OrderRequest{}, false
	}
	return req, true
}

// inspectOrder handles GET /api/tenants/{tenant}/orders/{orderID}. Never writes.
func (h *Handler) inspectOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := orderRequest(w, r)
	if !ok {
		return
	}
	out, err := h.svc.InspectOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// reconcileOrder handles POST /api/tenants/{tenant}/orders/{orderID}/reconcile.
func (h *Handler) reconcileOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := orderRequest(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ReconcileOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if claims := authFromContext(r.Context()); claims != nil {
		h.log.Info("order reconciled by operator",
			zap.String("operator", claims.Username),
			zap.String("tenant", req.TenantKey),
			zap.Int64("order_id", req.OrderID),
			zap.Bool("skipped", out.Skipped),
			zap.Bool("success", out.Result.Success),
		)
	}
	writeJSON(w, out)
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunReconciliation(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// window reads ?from=&to= as days; to is inclusive.
func window(w http.ResponseWriter, r *http.Request, defFrom, defTo time.Time) (time.Time, time.Time, bool) {
	from, to := defFrom, defTo
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := time.ParseInLocation(dayLayout, v, defFrom.Location())
		if err != nil {
			writeError(w, r, "from must be YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
			return from, to, false
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := time.ParseInLocation(dayLayout, v, defTo.Location())
		if err != nil {
			writeError(w, r, "to must be YYYY-MM-DD", "BAD_REQUEST", http.StatusBadRequest)
			return from, to, false
		}
		to = d.Add(24*time.Hour - time.Second)
	}
	if to.Before(from) {
		writeError(w, r, "to is before from", "BAD_REQUEST", http.StatusBadRequest)
		return from, to, false
	}
	return from, to, true
}

func (h *Handler) transferWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := h.now().In(h.loc)
	return window(w, r, time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, h.loc), now)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	h.writeTransfers(w, r, "")
}

func (h *Handler) listTenantTransfers(w http.ResponseWriter, r *http.Request) {
	h.writeTransfers(w, r, chi.URLParam(r, "tenant"))
}

func (h *Handler) writeTransfers(w http.ResponseWriter, r *http.Request, tenantKey string) {
	from, to, ok := h.transferWindow(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ListBankTransfers(r.Context(), tenantKey, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (h *Handler) listGatewayTransactions(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc)
	from, to, ok := window(w, r, now.Add(-48*time.Hour), now)
	if !ok {
		return
	}
	out, err := h.svc.ListGatewayTransactions(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// listLedgerEntries handles GET /api/ledger/entries?payment_id=&ledger_db=.
func (h *Handler) listLedgerEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.ListLedgerEntries(r.Context(), q.Get("payment_id"), q.Get("ledger_db"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, out)
}
