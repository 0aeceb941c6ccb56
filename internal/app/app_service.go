package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/notify"
	"enrollment-reconciler/internal/store"
	"enrollment-reconciler/internal/tenant"

	"go.uber.org/zap"
)

// ErrUnknownTenant is returned for a tenant key missing from the registry.
var ErrUnknownTenant = errors.New("unknown tenant")

// ErrGatewayDisabled is returned by gateway listings when no credentials are configured.
var ErrGatewayDisabled = errors.New("gateway not configured")

// Storefronts is the storefront access the batch and diagnostics need beyond the reconciler.
type Storefronts interface {
	Ping(ctx context.Context, ref core.StorefrontRef) error
	BankTransferOrderIDs(ctx context.Context, ref core.StorefrontRef, from, to time.Time, statuses []string) ([]int64, error)
	OrderMetaDump(ctx context.Context, ref core.StorefrontRef, orderID int64) ([]core.MetaEntry, store.Schema, error)
	BankTransfersByValueDate(ctx context.Context, ref core.StorefrontRef, from, to time.Time) ([]store.BankTransfer, store.Schema, error)
}

// TransactionSource lists settled gateway payments.
type TransactionSource interface {
	Transactions(ctx context.Context, from, to time.Time) ([]gateway.Transaction, error)
}

type ReceiptRecorder interface {
	RecordReceipt(ctx context.Context, tx gateway.Transaction) (bool, error)
}

type EntryLister interface {
	ListEntries(ctx context.Context, f store.EntryFilter) ([]store.StoredEntry, error)
}

type OperatorDirectory interface {
	Authenticate(ctx context.Context, username, password string) (*store.Operator, error)
	GetByID(ctx context.Context, id int64) (*store.Operator, error)
}

// Deps wires the service. Gateway, Receipts, Entries and Operators may be nil;
// the operations needing them then report an error.
type Deps struct {
	Log         *zap.Logger
	Mode        core.RunMode
	Location    *time.Location
	Registry    *tenant.Registry
	Reconciler  *core.Reconciler
	Storefronts Storefronts
	Gateway     TransactionSource
	Receipts    ReceiptRecorder
	Notifier    notify.Notifier
	Entries     EntryLister
	Operators   OperatorDirectory
	Locker      lock.Locker

	LockTTL              time.Duration
	GatewayLookback      time.Duration
	BankTransferStatuses []string

	Now func() time.Time
}

type appService struct {
	Deps
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(d Deps) ApplicationService {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Locker == nil {
		d.Locker = lock.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Minute
	}
	if d.GatewayLookback <= 0 {
		d.GatewayLookback = 48 * time.Hour
	}
	if len(d.BankTransferStatuses) == 0 {
		d.BankTransferStatuses = []string{"wc-processing", "wc-completed"}
	}
	return &appService{Deps: d}
}

func (s *appService) runContext(log *zap.Logger, cfg tenant.Config) core.RunContext {
	return core.RunContext{Log: log, Tenant: cfg, Mode: s.Mode}
}

func (s *appService) tenantFor(req OrderRequest) (tenant.Config, error) {
	cfg, ok := s.Registry.Lookup(req.TenantKey)
	if !ok {
		return tenant.Config{}, fmt.Errorf("%w: %s", ErrUnknownTenant, req.TenantKey)
	}
	if req.Source != "" {
		cfg = cfg.WithSource(req.Source)
	}
	return cfg, nil
}

// ReconcileOrder runs the idempotency check and then the orchestrator.
func (s *appService) ReconcileOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	cfg, err := s.tenantFor(req)
	if err != nil {
		return nil, err
	}
	rc := s.runContext(s.Log, cfg)
	if s.Reconciler.AlreadyQueued(ctx, rc, req.OrderID) {
		return &OrderResult{
			Result:  core.Result{OrderID: req.OrderID, Tenant: cfg.Key, Success: true, State: core.StateAlreadyQueued},
			Skipped: true,
		}, nil
	}
	return &OrderResult{Result: s.Reconciler.Reconcile(ctx, rc, req.OrderID)}, nil
}

func (s *appService) InspectOrder(ctx context.Context, req OrderRequest) (*InspectResult, error) {
	cfg, err := s.tenantFor(req)
	if err != nil {
		return nil, err
	}
	out := &InspectResult{Trace: s.Reconciler.Inspect(ctx, s.runContext(s.Log, cfg), req.OrderID)}

	ref := core.StorefrontRef{DBName: cfg.StorefrontDB, TablePrefix: cfg.TablePrefix}
	meta, schema, err := s.Storefronts.OrderMetaDump(ctx, ref, req.OrderID)
	if err != nil {
		out.MetaError = err.Error()
	}
	out.Meta, out.MetaSchema = meta, schema
	return out, nil
}

func (s *appService) ListBankTransfers(ctx context.Context, tenantKey string, from, to time.Time) (*TransfersResult, error) {
	tenants := s.Registry.All()
	if tenantKey != "" {
		cfg, ok := s.Registry.Lookup(tenantKey)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantKey)
		}
		tenants = []tenant.Config{cfg}
	}

	out := &TransfersResult{From: from, To: to}
	for _, cfg := range tenants {
		tt := TenantTransfers{Tenant: cfg.Key, Schema: store.SchemaNone}
		ref := core.StorefrontRef{DBName: cfg.StorefrontDB, TablePrefix: cfg.TablePrefix}
		transfers, schema, err := s.Storefronts.BankTransfersByValueDate(ctx, ref, from, to)
		if err != nil {
			tt.Error = err.Error()
			s.Log.Warn("bank transfer listing failed", zap.String("tenant", cfg.Key), zap.Error(err))
		} else {
			tt.Transfers, tt.Schema = transfers, schema
		}
		out.Tenants = append(out.Tenants, tt)
	}
	return out, nil
}

func (s *appService) ListGatewayTransactions(ctx context.Context, from, to time.Time) (*GatewayResult, error) {
	if s.Gateway == nil {
		return nil, ErrGatewayDisabled
	}
	txs, err := s.Gateway.Transactions(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := &GatewayResult{From: from, To: to}
	for _, tx := range txs {
		row := GatewayRow{Transaction: tx}
		if cfg, orderID, ok := s.Registry.MatchInvoice(tx.InvoiceID); ok {
			row.Tenant, row.OrderID = cfg.Key, orderID
		}
		out.Transactions = append(out.Transactions, row)
	}
	return out, nil
}

func (s *appService) ListTenants(_ context.Context) []tenant.Config {
	return s.Registry.All()
}

func (s *appService) ListLedgerEntries(ctx context.Context, paymentID, ledgerDB string) (*LedgerEntriesResult, error) {
	if s.Entries == nil {
		return nil, errors.New("ledger store not configured")
	}
	entries, err := s.Entries.ListEntries(ctx, store.EntryFilter{PaymentID: paymentID, LedgerDB: ledgerDB})
	if err != nil {
		return nil, err
	}
	return &LedgerEntriesResult{Entries: entries}, nil
}

func (s *appService) AuthenticateOperator(ctx context.Context, username, password string) (*OperatorSession, error) {
	if s.Operators == nil {
		return nil, store.ErrInvalidCredentials
	}
	op, err := s.Operators.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &OperatorSession{OperatorID: op.ID, Username: op.Username}, nil
}

func (s *appService) GetOperator(ctx context.Context, operatorID int64) (*OperatorResult, error) {
	if s.Operators == nil {
		return nil, errors.New("operator store not configured")
	}
	op, err := s.Operators.GetByID(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return &OperatorResult{OperatorID: op.ID, Username: op.Username}, nil
}
