package app

import (
	"context"
	"strconv"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/tenant"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunReconciliation holds the run lock for the whole batch. A gateway failure
// is recorded and the bank transfer phase still runs.
func (s *appService) RunReconciliation(ctx context.Context) (*RunSummary, error) {
	release, err := s.Locker.Obtain(ctx, lock.RunKey, s.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Mode:      string(s.Mode),
		StartedAt: s.Now(),
	}
	log := s.Log.With(zap.String("run_id", summary.RunID))
	log.Info("reconciliation run started", zap.String("mode", summary.Mode))

	s.gatewayPhase(ctx, log, summary)
	s.bankTransferPhase(ctx, log, summary)

	summary.FinishedAt = s.Now()
	log.Info("reconciliation run finished",
		zap.Int("reconciled", summary.Reconciled),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("receipts", summary.Receipts),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// gatewayWindow spans the lookback up to the end of the current UTC day.
func (s *appService) gatewayWindow() (time.Time, time.Time) {
	now := s.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
	return now.Add(-s.GatewayLookback), end
}

func (s *appService) gatewayPhase(ctx context.Context, log *zap.Logger, summary *RunSummary) {
	if s.Gateway == nil {
		log.Info("gateway phase skipped, no credentials configured")
		return
	}
	from, to := s.gatewayWindow()
	txs, err := s.Gateway.Transactions(ctx, from, to)
	if err != nil {
		summary.GatewayError = err.Error()
		log.Error("gateway fetch failed, continuing with bank transfers", zap.Error(err))
		return
	}
	summary.GatewayTransactions = len(txs)
	log.Info("gateway transactions fetched", zap.Int("count", len(txs)), zap.Time("from", from), zap.Time("to", to))

	for _, tx := range txs {
		if ctx.Err() != nil {
			return
		}
		cfg, orderRef, ok := s.Registry.MatchInvoice(tx.InvoiceID)
		if !ok {
			summary.Receipts++
			s.recordReceipt(ctx, log, summary, tx)
			continue
		}

		orderID, err := strconv.ParseInt(orderRef, 10, 64)
		if err != nil {
			log.Warn("invoice order id out of range", zap.String("invoice_id", tx.InvoiceID))
			continue
		}
		rc := s.runContext(log, cfg.WithSource(tenant.SourceGateway))
		s.reconcileOnce(ctx, rc, orderID, summary)
	}
}

// recordReceipt stores a non-tenant payment in PRODUCTION and notifies on first sighting.
func (s *appService) recordReceipt(ctx context.Context, log *zap.Logger, summary *RunSummary, tx gateway.Transaction) {
	if s.Mode != core.RunModeProduction || s.Receipts == nil {
		log.Debug("receipt not recorded outside production", zap.String("transaction_id", tx.ID))
		return
	}
	isNew, err := s.Receipts.RecordReceipt(ctx, tx)
	if err != nil {
		log.Error("failed to record receipt", zap.String("transaction_id", tx.ID), zap.Error(err))
		return
	}
	if !isNew {
		return
	}
	summary.NewReceipts++
	if err := s.Notifier.PaymentReceived(ctx, tx); err != nil {
		log.Error("payment notification failed", zap.String("transaction_id", tx.ID), zap.Error(err))
	}
}

// bankTransferWindowStart is midnight on the first day of last month.
func (s *appService) bankTransferWindowStart() time.Time {
	now := s.Now().In(s.Location)
	return time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, s.Location)
}

func (s *appService) bankTransferPhase(ctx context.Context, log *zap.Logger, summary *RunSummary) {
	from, to := s.bankTransferWindowStart(), s.Now()

	for _, base := range s.Registry.All() {
		if ctx.Err() != nil {
			return
		}
		cfg := base.WithSource(tenant.SourceBankTransfer)
		tlog := log.With(zap.String("tenant", cfg.Key))

		if err := cfg.Validate(); err != nil {
			summary.tenantError(cfg.Key, err)
			tlog.Error("tenant skipped, invalid configuration", zap.Error(err))
			continue
		}
		ref := core.StorefrontRef{DBName: cfg.StorefrontDB, TablePrefix: cfg.TablePrefix}
		if err := s.Storefronts.Ping(ctx, ref); err != nil {
			summary.tenantError(cfg.Key, err)
			tlog.Error("tenant skipped, storefront unreachable", zap.Error(err))
			continue
		}

		ids, err := s.Storefronts.BankTransferOrderIDs(ctx, ref, from, to, s.BankTransferStatuses)
		if err != nil {
			summary.tenantError(cfg.Key, err)
			tlog.Error("bank transfer scan failed", zap.Error(err))
			continue
		}
		tlog.Info("bank transfer orders found", zap.Int("count", len(ids)))

		rc := s.runContext(log, cfg)
		for _, id := range ids {
			s.reconcileOnce(ctx, rc, id, summary)
		}
	}
}

func (s *appService) reconcileOnce(ctx context.Context, rc core.RunContext, orderID int64, summary *RunSummary) {
	if s.Reconciler.AlreadyQueued(ctx, rc, orderID) {
		summary.Skipped++
		rc.Log.Debug("order already in ledger, skipped", zap.String("tenant", rc.Tenant.Key), zap.Int64("order_id", orderID))
		return
	}
	summary.add(s.Reconciler.Reconcile(ctx, rc, orderID))
}
