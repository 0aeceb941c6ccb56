package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/db"

	"github.com/shopspring/decimal"
)

// Schema names which storefront layout answered a query.
type Schema string

const (
	SchemaModern Schema = "modern"
	SchemaLegacy Schema = "legacy"
	SchemaNone   Schema = "none"
)

var safeIdent = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// table builds a quoted, prefixed table name. Prefixes come from static
// tenant configuration and are re-checked before they reach SQL.
func table(prefix, name string) (string, error) {
	if !safeIdent.MatchString(prefix) {
		return "", fmt.Errorf("invalid table prefix %q", prefix)
	}
	return "`" + prefix + name + "`", nil
}

// Storefront reads orders and product metadata from tenant storefront databases.
type Storefront struct {
	conns db.Provider
}

func NewStorefront(conns db.Provider) *Storefront {
	return &Storefront{conns: conns}
}

func (s *Storefront) conn(ctx context.Context, ref core.StorefrontRef) (*sql.DB, error) {
	return s.conns.Acquire(ctx, ref.DBName)
}

// Ping checks that the tenant's storefront database is reachable.
func (s *Storefront) Ping(ctx context.Context, ref core.StorefrontRef) error {
	_, err := s.conn(ctx, ref)
	return err
}

func (s *Storefront) OrderHeader(ctx context.Context, ref core.StorefrontRef, orderID int64) (core.OrderHeader, error) {
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return core.OrderHeader{}, err
	}
	orders, err := table(ref.TablePrefix, "wc_orders")
	if err != nil {
		return core.OrderHeader{}, err
	}

	var (
		h       core.OrderHeader
		status  sql.NullString
		created sql.NullTime
		updated sql.NullTime
		total   decimal.NullDecimal
	)
	err = conn.QueryRowContext(ctx,
		"SELECT id, status, date_created_gmt, date_updated_gmt, total_amount FROM "+orders+" WHERE id = ? LIMIT 1",
		orderID,
	).Scan(&h.ID, &status, &created, &updated, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.OrderHeader{}, fmt.Errorf("order %d: %w", orderID, core.ErrNotFound)
		}
		return core.OrderHeader{}, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	h.Status = status.String
	if created.Valid {
		h.CreatedAt = &created.Time
	}
	if updated.Valid {
		h.UpdatedAt = &updated.Time
	}
	h.TotalAmount = total.Decimal
	return h, nil
}

func (s *Storefront) OrderMeta(ctx context.Context, ref core.StorefrontRef, orderID int64) ([]core.MetaEntry, error) {
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return nil, err
	}
	meta, err := table(ref.TablePrefix, "wc_orders_meta")
	if err != nil {
		return nil, err
	}
	return queryMeta(ctx, conn, "SELECT meta_key, meta_value FROM "+meta+" WHERE order_id = ?", orderID)
}

func (s *Storefront) OrderLines(ctx context.Context, ref core.StorefrontRef, orderID int64) ([]core.OrderLine, error) {
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return nil, err
	}
	lookup, err := table(ref.TablePrefix, "wc_order_product_lookup")
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		"SELECT order_item_id, product_id, product_qty, product_net_revenue, tax_amount FROM "+lookup+
			" WHERE order_id = ? ORDER BY order_item_id",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []core.OrderLine
	for rows.Next() {
		var (
			l   core.OrderLine
			qty sql.NullInt64
		)
		if err := rows.Scan(&l.ItemID, &l.ProductID, &qty, &l.NetRevenue, &l.Tax); err != nil {
			return nil, fmt.Errorf("failed to scan line of order %d: %w", orderID, err)
		}
		l.Quantity = int(qty.Int64)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Storefront) ProductMeta(ctx context.Context, ref core.StorefrontRef, productID int64, key string) (string, error) {
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return "", err
	}
	postmeta, err := table(ref.TablePrefix, "postmeta")
	if err != nil {
		return "", err
	}

	var value sql.NullString
	err = conn.QueryRowContext(ctx,
		"SELECT meta_value FROM "+postmeta+" WHERE post_id = ? AND meta_key = ? LIMIT 1",
		productID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("product %d meta %s: %w", productID, key, core.ErrNotFound)
		}
		return "", fmt.Errorf("failed to fetch product %d meta %s: %w", productID, key, err)
	}
	if !value.Valid {
		return "", fmt.Errorf("product %d meta %s is null: %w", productID, key, core.ErrNotFound)
	}
	return value.String, nil
}

// BankTransferOrderIDs lists bank transfer orders in the given statuses whose
// last update falls in [from, to].
func (s *Storefront) BankTransferOrderIDs(ctx context.Context, ref core.StorefrontRef, from, to time.Time, statuses []string) ([]int64, error) {
	if len(statuses) == 0 {
		return nil, errors.New("at least one order status is required")
	}
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return nil, err
	}
	orders, err := table(ref.TablePrefix, "wc_orders")
	if err != nil {
		return nil, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses)+2)
	for _, st := range statuses {
		args = append(args, st)
	}
	args = append(args, from.UTC(), to.UTC())

	rows, err := conn.QueryContext(ctx,
		"SELECT id FROM "+orders+" WHERE payment_method = 'bacs' AND status IN ("+placeholders+
			") AND date_updated_gmt BETWEEN ? AND ? ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan bank transfer orders in %s: %w", ref.DBName, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OrderMetaDump returns every metadata row of an order, falling back to the
// legacy post meta table when the modern table has none.
func (s *Storefront) OrderMetaDump(ctx context.Context, ref core.StorefrontRef, orderID int64) ([]core.MetaEntry, Schema, error) {
	modern, err := s.OrderMeta(ctx, ref, orderID)
	if err == nil && len(modern) > 0 {
		return modern, SchemaModern, nil
	}

	conn, cerr := s.conn(ctx, ref)
	if cerr != nil {
		return nil, SchemaNone, cerr
	}
	postmeta, terr := table(ref.TablePrefix, "postmeta")
	if terr != nil {
		return nil, SchemaNone, terr
	}
	legacy, lerr := queryMeta(ctx, conn, "SELECT meta_key, meta_value FROM "+postmeta+" WHERE post_id = ?", orderID)
	if lerr != nil {
		if err != nil {
			return nil, SchemaNone, errors.Join(err, lerr)
		}
		return nil, SchemaNone, lerr
	}
	if len(legacy) == 0 {
		return nil, SchemaNone, nil
	}
	return legacy, SchemaLegacy, nil
}

// BankTransfer is a bank transfer order listed by its value date.
type BankTransfer struct {
	OrderID   int64           `json:"order_id"`
	Status    string          `json:"status"`
	OrderedAt *time.Time      `json:"ordered_at,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Email     string          `json:"email,omitempty"`
	ValueDate string          `json:"value_date"`
}

const valueDateFilter = "meta_bacs.meta_key IN ('bacs_date', '_bacs_date') " +
	"AND STR_TO_DATE(meta_bacs.meta_value, '%d/%m/%Y') BETWEEN ? AND ?"

// BankTransfersByValueDate lists bank transfer orders whose manual value date
// lies in [from, to]. The legacy schema is consulted when the modern one is
// missing or yields nothing.
func (s *Storefront) BankTransfersByValueDate(ctx context.Context, ref core.StorefrontRef, from, to time.Time) ([]BankTransfer, Schema, error) {
	conn, err := s.conn(ctx, ref)
	if err != nil {
		return nil, SchemaNone, err
	}
	orders, err := table(ref.TablePrefix, "wc_orders")
	if err != nil {
		return nil, SchemaNone, err
	}
	ordersMeta, _ := table(ref.TablePrefix, "wc_orders_meta")
	posts, _ := table(ref.TablePrefix, "posts")
	postmeta, _ := table(ref.TablePrefix, "postmeta")

	fromDay, toDay := from.Format("2006-01-02"), to.Format("2006-01-02")

	hasModern, err := tableExists(ctx, conn, ref.TablePrefix+"wc_orders")
	if err != nil {
		return nil, SchemaNone, fmt.Errorf("failed to detect order schema in %s: %w", ref.DBName, err)
	}

	if hasModern {
		transfers, err := queryTransfers(ctx, conn,
			"SELECT o.id, o.status, o.date_created_gmt, o.total_amount, o.billing_email, meta_bacs.meta_value"+
				" FROM "+orders+" o JOIN "+ordersMeta+" meta_bacs ON o.id = meta_bacs.order_id"+
				" WHERE "+valueDateFilter+" AND o.payment_method = 'bacs'"+
				" ORDER BY STR_TO_DATE(meta_bacs.meta_value, '%d/%m/%Y') DESC",
			fromDay, toDay)
		if err != nil {
			return nil, SchemaNone, err
		}
		if len(transfers) > 0 {
			return transfers, SchemaModern, nil
		}
	}

	transfers, err := queryTransfers(ctx, conn,
		"SELECT p.ID, p.post_status, p.post_date, pm_total.meta_value, pm_email.meta_value, meta_bacs.meta_value"+
			" FROM "+posts+" p"+
			" JOIN "+postmeta+" meta_bacs ON p.ID = meta_bacs.post_id"+
			" JOIN "+postmeta+" pm_method ON p.ID = pm_method.post_id AND pm_method.meta_key = '_payment_method'"+
			" LEFT JOIN "+postmeta+" pm_total ON p.ID = pm_total.post_id AND pm_total.meta_key = '_order_total'"+
			" LEFT JOIN "+postmeta+" pm_email ON p.ID = pm_email.post_id AND pm_email.meta_key = '_billing_email'"+
			" WHERE p.post_type = 'shop_order' AND pm_method.meta_value = 'bacs' AND "+valueDateFilter+
			" ORDER BY STR_TO_DATE(meta_bacs.meta_value, '%d/%m/%Y') DESC",
		fromDay, toDay)
	if err != nil {
		return nil, SchemaNone, err
	}
	if len(transfers) == 0 {
		return nil, SchemaNone, nil
	}
	return transfers, SchemaLegacy, nil
}

// tableExists matches the exact table name in the connection's database.
func tableExists(ctx context.Context, conn *sql.DB, name string) (bool, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func queryTransfers(ctx context.Context, conn *sql.DB, query string, args ...any) ([]BankTransfer, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transfers: %w", err)
	}
	defer rows.Close()

	var out []BankTransfer
	for rows.Next() {
		var (
			bt      BankTransfer
			status  sql.NullString
			ordered sql.NullTime
			total   decimal.NullDecimal
			email   sql.NullString
			value   sql.NullString
		)
		if err := rows.Scan(&bt.OrderID, &status, &ordered, &total, &email, &value); err != nil {
			return nil, fmt.Errorf("failed to scan bank transfer: %w", err)
		}
		bt.Status = core.NormalizeStatus(status.String)
		if ordered.Valid {
			bt.OrderedAt = &ordered.Time
		}
		bt.Total = total.Decimal
		bt.Email = email.String
		bt.ValueDate = value.String
		out = append(out, bt)
	}
	return out, rows.Err()
}

func queryMeta(ctx context.Context, conn *sql.DB, query string, id int64) ([]core.MetaEntry, error) {
	rows, err := conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meta for %d: %w", id, err)
	}
	defer rows.Close()

	var out []core.MetaEntry
	for rows.Next() {
		var key, value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan meta for %d: %w", id, err)
		}
		out = append(out, core.MetaEntry{Key: key.String, Value: value.String})
	}
	return out, rows.Err()
}
