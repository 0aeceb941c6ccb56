package app

import (
	"context"
	"time"

	"enrollment-reconciler/internal/tenant"
)

// ApplicationService is the single interface all operator adapters (CLI, Web) call.
// It decouples presentation from reconciliation logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// RunReconciliation executes one full batch: gateway phase then bank transfer phase.
	// Returns lock.ErrHeld when another run owns the run lock.
	RunReconciliation(ctx context.Context) (*RunSummary, error)

	// ReconcileOrder reconciles a single order of a tenant. req.Source overrides the
	// tenant's configured payment rail when non-empty.
	ReconcileOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// InspectOrder traces every resolution step for an order. It never writes.
	InspectOrder(ctx context.Context, req OrderRequest) (*InspectResult, error)

	// ListBankTransfers lists bank transfer orders by manual value date.
	// An empty tenant key scans every tenant.
	ListBankTransfers(ctx context.Context, tenantKey string, from, to time.Time) (*TransfersResult, error)

	// ListGatewayTransactions lists settled gateway payments and the tenant order each one maps to.
	ListGatewayTransactions(ctx context.Context, from, to time.Time) (*GatewayResult, error)

	// ListTenants returns the registry in key order.
	ListTenants(ctx context.Context) []tenant.Config

	// ListLedgerEntries returns ledger rows, optionally filtered by payment id and ledger database.
	ListLedgerEntries(ctx context.Context, paymentID, ledgerDB string) (*LedgerEntriesResult, error)

	// AuthenticateOperator verifies credentials and returns a session on success.
	AuthenticateOperator(ctx context.Context, username, password string) (*OperatorSession, error)

	// GetOperator returns an operator profile by ID.
	GetOperator(ctx context.Context, operatorID int64) (*OperatorResult, error)
}
