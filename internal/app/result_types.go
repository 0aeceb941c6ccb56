package app

import (
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/store"
)

// RunSummary is returned by RunReconciliation.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	GatewayTransactions int    `json:"gateway_transactions"`
	GatewayError        string `json:"gateway_error,omitempty"`
	Receipts            int    `json:"receipts"`
	NewReceipts         int    `json:"new_receipts"`

	Skipped    int `json:"skipped"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`

	// TenantErrors holds tenants skipped in the bank transfer phase.
	TenantErrors map[string]string `json:"tenant_errors,omitempty"`
	Results      []core.Result     `json:"results"`
}

func (s *RunSummary) add(res core.Result) {
	if res.Success {
		s.Reconciled++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, res)
}

func (s *RunSummary) tenantError(key string, err error) {
	if s.TenantErrors == nil {
		s.TenantErrors = map[string]string{}
	}
	s.TenantErrors[key] = err.Error()
}

// OrderResult is returned by ReconcileOrder. Skipped is set when the payment
// was already in the ledger and nothing ran; Result.State is then ALREADY_QUEUED.
type OrderResult struct {
	Result  core.Result `json:"result"`
	Skipped bool        `json:"skipped"`
}

// InspectResult is returned by InspectOrder.
type InspectResult struct {
	Trace      core.Trace       `json:"trace"`
	Meta       []core.MetaEntry `json:"meta"`
	MetaSchema store.Schema     `json:"meta_schema"`
	MetaError  string           `json:"meta_error,omitempty"`
}

// TenantTransfers is the bank transfer listing of one tenant.
type TenantTransfers struct {
	Tenant    string               `json:"tenant"`
	Schema    store.Schema         `json:"schema"`
	Transfers []store.BankTransfer `json:"transfers"`
	Error     string               `json:"error,omitempty"`
}

// TransfersResult is returned by ListBankTransfers.
type TransfersResult struct {
	From    time.Time         `json:"from"`
	To      time.Time         `json:"to"`
	Tenants []TenantTransfers `json:"tenants"`
}

// GatewayRow is a gateway transaction with its tenant match.
type GatewayRow struct {
	gateway.Transaction
	Tenant  string `json:"tenant,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

// GatewayResult is returned by ListGatewayTransactions.
type GatewayResult struct {
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	Transactions []GatewayRow `json:"transactions"`
}

// LedgerEntriesResult is returned by ListLedgerEntries.
type LedgerEntriesResult struct {
	Entries []store.StoredEntry `json:"entries"`
}

// OperatorSession is returned by AuthenticateOperator.
type OperatorSession struct {
	OperatorID int64
	Username   string
}

// OperatorResult is returned by GetOperator.
type OperatorResult struct {
	OperatorID int64  `json:"operator_id"`
	Username   string `json:"username"`
}
