package app

import (
	"context"
	"fmt"

	"enrollment-reconciler/internal/config"
	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/db"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/notify"
	"enrollment-reconciler/internal/store"
	"enrollment-reconciler/internal/tenant"

	"go.uber.org/zap"
)

// Bootstrap connects every store named in cfg and returns the service plus a
// cleanup func that closes them. Used by both entry points.
func Bootstrap(ctx context.Context, cfg *config.Config, log *zap.Logger) (ApplicationService, func(), error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, nil, err
	}
	registry, err := tenant.NewRegistry(cfg.Tenants)
	if err != nil {
		return nil, nil, fmt.Errorf("tenants: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Ledger.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger database: %w", err)
	}
	storefronts := db.NewMySQLProvider(cfg.Storefront, log.Named("storefront_db"))
	lmsConns := db.NewMySQLProvider(cfg.LMS.MySQLConfig, log.Named("lms_db"))
	locker, closeLock := lock.FromConfig(ctx, cfg.Redis, log)

	cleanup := func() {
		if err := closeLock(); err != nil {
			log.Warn("closing redis", zap.Error(err))
		}
		if err := storefronts.Close(); err != nil {
			log.Warn("closing storefront connections", zap.Error(err))
		}
		if err := lmsConns.Close(); err != nil {
			log.Warn("closing lms connections", zap.Error(err))
		}
		pool.Close()
	}

	sf := store.NewStorefront(storefronts)
	ledger := store.NewLedger(pool)
	mode := core.RunMode(cfg.App.Mode)

	rec := core.NewReconciler(core.Deps{
		Orders:          sf,
		Catalog:         sf,
		Users:           store.NewLMS(lmsConns, cfg.LMS.TablePrefix),
		Ledger:          ledger,
		TestSink:        core.NewCSVSink(cfg.App.TestOutputFile, loc),
		FiscalCodeField: cfg.LMS.FiscalCodeField,
		Dates:           core.NewDatePolicy(loc),
	})

	d := Deps{
		Log:                  log,
		Mode:                 mode,
		Location:             loc,
		Registry:             registry,
		Reconciler:           rec,
		Storefronts:          sf,
		Receipts:             store.NewReceipts(pool),
		Notifier:             notify.New(cfg.SMTP, cfg.App.Mode, log),
		Entries:              ledger,
		Operators:            store.NewOperators(pool),
		Locker:               locker,
		LockTTL:              cfg.Redis.LockTTL,
		GatewayLookback:      cfg.Gateway.Lookback,
		BankTransferStatuses: cfg.App.BankTransferStatuses,
	}

	if cfg.Gateway.Enabled() {
		client, err := gateway.NewClient(cfg.Gateway, log.Named("gateway"))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("gateway: %w", err)
		}
		d.Gateway = client
	} else {
		log.Warn("gateway credentials not set, gateway phase disabled")
	}

	return NewAppService(d), cleanup, nil
}
