package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/lock"
	"enrollment-reconciler/internal/store"

	"github.com/shopspring/decimal"
)

// fakeShop serves every storefront read the service and the reconciler make.
type fakeShop struct {
	headers     map[int64]core.OrderHeader
	meta        map[int64][]core.MetaEntry
	lines       map[int64][]core.OrderLine
	courses     map[int64]string
	transferIDs map[string][]int64 // by storefront db
	unreachable map[string]bool
	scanFrom    time.Time
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		headers:     map[int64]core.OrderHeader{},
		meta:        map[int64][]core.MetaEntry{},
		lines:       map[int64][]core.OrderLine{},
		courses:     map[int64]string{},
		transferIDs: map[string][]int64{},
		unreachable: map[string]bool{},
	}
}

func (f *fakeShop) OrderHeader(_ context.Context, _ core.StorefrontRef, id int64) (core.OrderHeader, error) {
	h, ok := f.headers[id]
	if !ok {
		return core.OrderHeader{}, core.ErrNotFound
	}
	return h, nil
}

func (f *fakeShop) OrderMeta(_ context.Context, _ core.StorefrontRef, id int64) ([]core.MetaEntry, error) {
	return f.meta[id], nil
}

func (f *fakeShop) OrderLines(_ context.Context, _ core.StorefrontRef, id int64) ([]core.OrderLine, error) {
	return f.lines[id], nil
}

func (f *fakeShop) ProductMeta(_ context.Context, _ core.StorefrontRef, productID int64, _ string) (string, error) {
	v, ok := f.courses[productID]
	if !ok {
		return "", core.ErrNotFound
	}
	return v, nil
}

func (f *fakeShop) Ping(_ context.Context, ref core.StorefrontRef) error {
	if f.unreachable[ref.DBName] {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func (f *fakeShop) BankTransferOrderIDs(_ context.Context, ref core.StorefrontRef, from, _ time.Time, _ []string) ([]int64, error) {
	f.scanFrom = from
	return f.transferIDs[ref.DBName], nil
}

func (f *fakeShop) OrderMetaDump(_ context.Context, _ core.StorefrontRef, id int64) ([]core.MetaEntry, store.Schema, error) {
	if m := f.meta[id]; len(m) > 0 {
		return m, store.SchemaModern, nil
	}
	return nil, store.SchemaNone, nil
}

func (f *fakeShop) BankTransfersByValueDate(_ context.Context, ref core.StorefrontRef, _, _ time.Time) ([]store.BankTransfer, store.Schema, error) {
	if f.unreachable[ref.DBName] {
		return nil, store.SchemaNone, errors.New("unreachable")
	}
	return []store.BankTransfer{{OrderID: 1, ValueDate: "05/03/2024"}}, store.SchemaModern, nil
}

type fakeUsers map[string]int64

func (fakeUsers) FieldID(context.Context, string, string) (int64, error) { return 1, nil }

func (u fakeUsers) UserByField(_ context.Context, _ string, _ int64, v string) (int64, error) {
	id, ok := u[strings.ToUpper(v)]
	if !ok {
		return 0, core.ErrNotFound
	}
	return id, nil
}

type fakeLedger struct {
	rows []core.LedgerEntry
}

func (l *fakeLedger) HasPayment(_ context.Context, paymentID, ledgerDB string) (bool, error) {
	for _, r := range l.rows {
		if r.PaymentID == paymentID && r.LedgerDB == ledgerDB {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) Insert(_ context.Context, e core.LedgerEntry) (core.Outcome, error) {
	l.rows = append(l.rows, e)
	return core.OutcomeInserted, nil
}

type fakeGateway struct {
	txs []gateway.Transaction
	err error
}

func (g *fakeGateway) Transactions(context.Context, time.Time, time.Time) ([]gateway.Transaction, error) {
	return g.txs, g.err
}

type fakeReceipts struct {
	seen map[string]bool
}

func (r *fakeReceipts) RecordReceipt(_ context.Context, tx gateway.Transaction) (bool, error) {
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	if r.seen[tx.ID] {
		return false, nil
	}
	r.seen[tx.ID] = true
	return true, nil
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) PaymentReceived(_ context.Context, tx gateway.Transaction) error {
	n.sent = append(n.sent, tx.ID)
	return nil
}

type heldLocker struct{}

func (heldLocker) Obtain(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, lock.ErrHeld
}

type memSink struct {
	entries []core.LedgerEntry
}

func (m *memSink) Write(_ context.Context, e core.LedgerEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
