package core

import (
	"enrollment-reconciler/internal/tenant"

	"go.uber.org/zap"
)

// RunMode selects the ledger sink.
type RunMode string

const (
	RunModeTest       RunMode = "TEST"
	RunModeProduction RunMode = "PRODUCTION"
)

// RunContext is passed through every call boundary of one reconciliation.
type RunContext struct {
	Log    *zap.Logger
	Tenant tenant.Config
	Mode   RunMode
}

func (rc RunContext) logger() *zap.Logger {
	if rc.Log == nil {
		return zap.NewNop()
	}
	return rc.Log
}

func (rc RunContext) storefront() StorefrontRef {
	return StorefrontRef{DBName: rc.Tenant.StorefrontDB, TablePrefix: rc.Tenant.TablePrefix}
}

// ForOrder returns a copy whose logger carries the tenant and order id.
func (rc RunContext) ForOrder(orderID int64) RunContext {
	rc.Log = rc.logger().With(zap.String("tenant", rc.Tenant.Key), zap.Int64("order_id", orderID))
	return rc
}
