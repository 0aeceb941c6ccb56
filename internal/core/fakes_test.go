package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"enrollment-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

type fakeStorefront struct {
	headers  map[int64]core.OrderHeader
	meta     map[int64][]core.MetaEntry
	lines    map[int64][]core.OrderLine
	products map[int64]string

	headerErr error
	calls     int
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{
		headers:  map[int64]core.OrderHeader{},
		meta:     map[int64][]core.MetaEntry{},
		lines:    map[int64][]core.OrderLine{},
		products: map[int64]string{},
	}
}

func (f *fakeStorefront) OrderHeader(_ context.Context, _ core.StorefrontRef, orderID int64) (core.OrderHeader, error) {
	f.calls++
	if f.headerErr != nil {
		return core.OrderHeader{}, f.headerErr
	}
	h, ok := f.headers[orderID]
	if !ok {
		return core.OrderHeader{}, core.ErrNotFound
	}
	return h, nil
}

func (f *fakeStorefront) OrderMeta(_ context.Context, _ core.StorefrontRef, orderID int64) ([]core.MetaEntry, error) {
	f.calls++
	return f.meta[orderID], nil
}

func (f *fakeStorefront) OrderLines(_ context.Context, _ core.StorefrontRef, orderID int64) ([]core.OrderLine, error) {
	f.calls++
	return f.lines[orderID], nil
}

func (f *fakeStorefront) ProductMeta(_ context.Context, _ core.StorefrontRef, productID int64, key string) (string, error) {
	f.calls++
	if key != core.CourseAttribute {
		return "", core.ErrNotFound
	}
	v, ok := f.products[productID]
	if !ok {
		return "", core.ErrNotFound
	}
	return v, nil
}

type fakeDirectory struct {
	fieldID  int64
	fieldErr error
	users    map[string]int64 // keyed by upper-cased fiscal code
	calls    int
}

func (f *fakeDirectory) FieldID(_ context.Context, _ string, shortname string) (int64, error) {
	f.calls++
	if f.fieldErr != nil {
		return 0, f.fieldErr
	}
	if shortname != core.DefaultFiscalCodeField {
		return 0, core.ErrNotFound
	}
	return f.fieldID, nil
}

func (f *fakeDirectory) UserByField(_ context.Context, _ string, fieldID int64, value string) (int64, error) {
	f.calls++
	if fieldID != f.fieldID {
		return 0, core.ErrNotFound
	}
	id, ok := f.users[strings.ToUpper(value)]
	if !ok {
		return 0, core.ErrNotFound
	}
	return id, nil
}

type fakeLedger struct {
	rows       map[string]core.LedgerEntry
	hasErr     error
	insertErr  error
	inserts    int
	duplicates int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]core.LedgerEntry{}}
}

func ledgerKey(e core.LedgerEntry) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d", e.LedgerDB, e.PaymentID, e.CourseID, e.LearningUserID, e.OrderItemID, e.UnitIndex)
}

func (f *fakeLedger) HasPayment(_ context.Context, paymentID, ledgerDB string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	for _, r := range f.rows {
		if r.PaymentID == paymentID && r.LedgerDB == ledgerDB {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) Insert(_ context.Context, e core.LedgerEntry) (core.Outcome, error) {
	f.inserts++
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	k := ledgerKey(e)
	if _, ok := f.rows[k]; ok {
		f.duplicates++
		return core.OutcomeAlreadyExists, nil
	}
	f.rows[k] = e
	return core.OutcomeInserted, nil
}

type memorySink struct {
	entries []core.LedgerEntry
	err     error
}

func (m *memorySink) Write(_ context.Context, e core.LedgerEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

var errStorage = errors.New("connection reset by peer")

var rome = time.FixedZone("CET", 3600)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
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
