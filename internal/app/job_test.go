package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/tenant"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cet = time.FixedZone("CET", 3600)

var now = time.Date(2025, time.December, 10, 10, 0, 0, 0, cet)

type fixture struct {
	shop     *fakeShop
	ledger   *fakeLedger
	sink     *memSink
	gw       *fakeGateway
	receipts *fakeReceipts
	notifier *fakeNotifier
	deps     Deps
}

func newFixture(t *testing.T, mode core.RunMode) *fixture {
	t.Helper()
	reg, err := tenant.NewRegistry([]tenant.Config{
		{Key: "PF", StorefrontDB: "wp_pf", TablePrefix: "wp_", LedgerDB: "moodle_pf"},
		{Key: "EX", StorefrontDB: "wp_ex", TablePrefix: "ex_", LedgerDB: "moodle_ex", Source: tenant.SourceBankTransfer},
	})
	require.NoError(t, err)

	f := &fixture{
		shop:     newFakeShop(),
		ledger:   &fakeLedger{},
		sink:     &memSink{},
		gw:       &fakeGateway{},
		receipts: &fakeReceipts{},
		notifier: &fakeNotifier{},
	}
	rec := core.NewReconciler(core.Deps{
		Orders:   f.shop,
		Catalog:  f.shop,
		Users:    fakeUsers{"RSSMRA80A01H501U": 55},
		Ledger:   f.ledger,
		TestSink: f.sink,
		Dates:    core.DatePolicy{Location: cet, Now: func() time.Time { return now }},
	})
	f.deps = Deps{
		Mode:        mode,
		Location:    cet,
		Registry:    reg,
		Reconciler:  rec,
		Storefronts: f.shop,
		Gateway:     f.gw,
		Receipts:    f.receipts,
		Notifier:    f.notifier,
		Now:         func() time.Time { return now },
	}
	return f
}

func (f *fixture) seedOrder(id int64, bacsDate string) {
	f.shop.headers[id] = core.OrderHeader{ID: id, Status: "wc-completed", UpdatedAt: ts("2025-12-02T09:15:00Z")}
	f.shop.meta[id] = []core.MetaEntry{{Key: "billing_cf", Value: "RSSMRA80A01H501U"}}
	if bacsDate != "" {
		f.shop.meta[id] = append(f.shop.meta[id], core.MetaEntry{Key: "bacs_date", Value: bacsDate})
	}
	f.shop.lines[id] = []core.OrderLine{{ItemID: id * 10, ProductID: 42, Quantity: 1, NetRevenue: dec("100.00")}}
	f.shop.courses[42] = "10"
}

func TestRunReconciliation_BothPhases(t *testing.T) {
	f := newFixture(t, core.RunModeProduction)
	f.seedOrder(7199, "")
	f.seedOrder(300, "01/12/2025")
	f.shop.transferIDs["wp_ex"] = []int64{300}
	f.gw.txs = []gateway.Transaction{
		{ID: "TX-1", InvoiceID: "PF7199", Amount: decimal.NewFromInt(100)},
		{ID: "TX-2", InvoiceID: "DONATION-9", Amount: decimal.NewFromInt(20)},
	}

	svc := NewAppService(f.deps)
	summary, err := svc.RunReconciliation(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.GatewayTransactions)
	assert.Equal(t, 2, summary.Reconciled)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 1, summary.Receipts)
	assert.Equal(t, 1, summary.NewReceipts)
	assert.Equal(t, []string{"TX-2"}, f.notifier.sent)

	require.Len(t, f.ledger.rows, 2)
	assert.Equal(t, core.MethodGateway, f.ledger.rows[0].Method)
	assert.Equal(t, "moodle_pf", f.ledger.rows[0].LedgerDB)
	assert.Equal(t, core.MethodBankTransfer, f.ledger.rows[1].Method)
	assert.Equal(t, "moodle_ex", f.ledger.rows[1].LedgerDB)

	assert.Equal(t, time.Date(2025, time.November, 1, 0, 0, 0, 0, cet), f.shop.scanFrom)
}

func TestRunReconciliation_SecondRunSkipsQueuedOrders(t *testing.T) {
	f := newFixture(t, core.RunModeProduction)
	f.seedOrder(7199, "")
	f.gw.txs = []gateway.Transaction{
		{ID: "TX-1", InvoiceID: "PF7199", Amount: decimal.NewFromInt(100)},
		{ID: "TX-2", InvoiceID: "", Amount: decimal.NewFromInt(20)},
	}
	svc := NewAppService(f.deps)

	_, err := svc.RunReconciliation(context.Background())
	require.NoError(t, err)
	second, err := svc.RunReconciliation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.Reconciled)
	assert.Zero(t, second.NewReceipts)
	assert.Len(t, f.ledger.rows, 1)
	assert.Len(t, f.notifier.sent, 1)
}

func TestRunReconciliation_GatewayFailureStillScansTransfers(t *testing.T) {
	f := newFixture(t, core.RunModeProduction)
	f.seedOrder(300, "01/12/2025")
	f.shop.transferIDs["wp_ex"] = []int64{300}
	f.gw.err = errors.New("gateway: timeout")

	summary, err := NewAppService(f.deps).RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gateway: timeout", summary.GatewayError)
	assert.Equal(t, 1, summary.Reconciled)
}

func TestRunReconciliation_UnreachableTenantIsSkipped(t *testing.T) {
	f := newFixture(t, core.RunModeProduction)
	f.deps.Gateway = nil
	f.seedOrder(300, "01/12/2025")
	f.shop.transferIDs["wp_ex"] = []int64{300}
	f.shop.transferIDs["wp_pf"] = []int64{300}
	f.shop.unreachable["wp_pf"] = true

	summary, err := NewAppService(f.deps).RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Contains(t, summary.TenantErrors, "PF")
	assert.NotContains(t, summary.TenantErrors, "EX")
	assert.Equal(t, 1, summary.Reconciled)
}

func TestRunReconciliation_TestModeWritesSinkOnly(t *testing.T) {
	f := newFixture(t, core.RunModeTest)
	f.seedOrder(7199, "")
	f.gw.txs = []gateway.Transaction{
		{ID: "TX-1", InvoiceID: "PF7199", Amount: decimal.NewFromInt(100)},
		{ID: "TX-2", InvoiceID: "OTHER", Amount: decimal.NewFromInt(20)},
	}

	summary, err := NewAppService(f.deps).RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reconciled)
	assert.Empty(t, f.ledger.rows)
	assert.Len(t, f.sink.entries, 1)
	assert.Empty(t, f.receipts.seen)
	assert.Empty(t, f.notifier.sent)
}

func TestRunReconciliation_LockHeld(t *testing.T) {
	f := newFixture(t, core.RunModeProduction)
	f.deps.Locker = heldLocker{}

	_, err := NewAppService(f.deps).RunReconciliation(context.Background())
	assert.ErrorIs(t, err, lock.ErrHeld)
}
