package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StorefrontRef addresses one tenant's storefront tables.
type StorefrontRef struct {
	DBName      string
	TablePrefix string
}

// OrderHeader is the raw order row from the modern order table.
type OrderHeader struct {
	ID          int64
	Status      string
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	TotalAmount decimal.Decimal
}

// MetaEntry is one order metadata row.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderLine is one raw row of the order/product lookup table.
type OrderLine struct {
	ItemID     int64
	ProductID  int64
	Quantity   int
	NetRevenue decimal.NullDecimal
	Tax        decimal.NullDecimal
}

// OrderSource reads storefront orders. OrderHeader returns ErrNotFound for a missing order.
type OrderSource interface {
	OrderHeader(ctx context.Context, ref StorefrontRef, orderID int64) (OrderHeader, error)
	OrderMeta(ctx context.Context, ref StorefrontRef, orderID int64) ([]MetaEntry, error)
	OrderLines(ctx context.Context, ref StorefrontRef, orderID int64) ([]OrderLine, error)
}

// CourseCatalog reads product metadata. A missing row is ErrNotFound.
type CourseCatalog interface {
	ProductMeta(ctx context.Context, ref StorefrontRef, productID int64, key string) (string, error)
}

// UserDirectory reads learning platform profile fields. Missing rows are ErrNotFound.
type UserDirectory interface {
	FieldID(ctx context.Context, lmsDB, shortname string) (int64, error)
	UserByField(ctx context.Context, lmsDB string, fieldID int64, value string) (int64, error)
}

// LedgerStore is the production ledger. Insert reports an existing row as
// OutcomeAlreadyExists rather than an error.
type LedgerStore interface {
	HasPayment(ctx context.Context, paymentID, ledgerDB string) (bool, error)
	Insert(ctx context.Context, entry LedgerEntry) (Outcome, error)
}
