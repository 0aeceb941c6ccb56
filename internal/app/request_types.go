package app

import "enrollment-reconciler/internal/tenant"

// OrderRequest addresses one order of one tenant.
type OrderRequest struct {
	TenantKey string
	OrderID   int64
	// Source overrides the tenant's configured payment rail when set.
	Source tenant.SourceKind
}
