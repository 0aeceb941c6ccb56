package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"enrollment-reconciler/internal/core"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	conn *sql.DB
	err  error
	seen []string
}

func (p *mockProvider) Acquire(_ context.Context, name string) (*sql.DB, error) {
	p.seen = append(p.seen, name)
	if p.err != nil {
		return nil, p.err
	}
	return p.conn, nil
}

func newMock(t *testing.T) (*mockProvider, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &mockProvider{conn: conn}, mock
}

var acme = core.StorefrontRef{DBName: "shop_acme", TablePrefix: "wp_"}

func TestStorefront_OrderHeader(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)
	updated := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `wp_wc_orders` WHERE id = ?")).
		WithArgs(int64(7199)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "date_created_gmt", "date_updated_gmt", "total_amount"}).
			AddRow(int64(7199), "wc-completed", nil, updated, "240.00"))

	h, err := s.OrderHeader(context.Background(), acme, 7199)
	require.NoError(t, err)
	assert.Equal(t, int64(7199), h.ID)
	assert.Equal(t, "wc-completed", h.Status)
	assert.Nil(t, h.CreatedAt)
	require.NotNil(t, h.UpdatedAt)
	assert.Equal(t, updated, *h.UpdatedAt)
	assert.Equal(t, "240", h.TotalAmount.String())
	assert.Equal(t, []string{"shop_acme"}, p.seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorefront_OrderHeaderMissing(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	mock.ExpectQuery("FROM `wp_wc_orders`").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.OrderHeader(context.Background(), acme, 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStorefront_RejectsUnsafePrefix(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	_, err := s.OrderHeader(context.Background(), core.StorefrontRef{DBName: "x", TablePrefix: "wp`; DROP"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table prefix")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorefront_UnreachableDatabase(t *testing.T) {
	s := NewStorefront(&mockProvider{err: errors.New("down")})
	_, err := s.OrderLines(context.Background(), acme, 1)
	assert.EqualError(t, err, "down")
}

func TestStorefront_OrderLines(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `wp_wc_order_product_lookup` WHERE order_id = ? ORDER BY order_item_id")).
		WithArgs(int64(7199)).
		WillReturnRows(sqlmock.NewRows([]string{"order_item_id", "product_id", "product_qty", "product_net_revenue", "tax_amount"}).
			AddRow(int64(11), int64(501), int64(2), "180.00", "39.60").
			AddRow(int64(12), int64(502), nil, "20.00", nil))

	lines, err := s.OrderLines(context.Background(), acme, 7199)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(11), lines[0].ItemID)
	assert.Equal(t, int64(501), lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "180", lines[0].NetRevenue.Decimal.String())
	assert.True(t, lines[0].Tax.Valid)
	assert.Equal(t, 0, lines[1].Quantity)
	assert.False(t, lines[1].Tax.Valid)
}

func TestStorefront_ProductMeta(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `wp_postmeta` WHERE post_id = ? AND meta_key = ?")).
		WithArgs(int64(501), "moodle_course_id").
		WillReturnRows(sqlmock.NewRows([]string{"meta_value"}).AddRow("42"))
	mock.ExpectQuery("FROM `wp_postmeta`").
		WithArgs(int64(502), "moodle_course_id").
		WillReturnRows(sqlmock.NewRows([]string{"meta_value"}))

	v, err := s.ProductMeta(context.Background(), acme, 501, "moodle_course_id")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	_, err = s.ProductMeta(context.Background(), acme, 502, "moodle_course_id")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStorefront_BankTransferOrderIDs(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)
	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("payment_method = 'bacs' AND status IN (?,?) AND date_updated_gmt BETWEEN ? AND ?")).
		WithArgs("wc-processing", "wc-completed", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))

	ids, err := s.BankTransferOrderIDs(context.Background(), acme, from, to, []string{"wc-processing", "wc-completed"})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids)

	_, err = s.BankTransferOrderIDs(context.Background(), acme, from, to, nil)
	assert.Error(t, err)
}

func TestStorefront_OrderMetaDumpFallsBackToLegacy(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	mock.ExpectQuery("FROM `wp_wc_orders_meta`").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"meta_key", "meta_value"}))
	mock.ExpectQuery("FROM `wp_postmeta` WHERE post_id").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"meta_key", "meta_value"}).AddRow("_billing_cf", "RSSMRA80A01H501U"))

	meta, schema, err := s.OrderMetaDump(context.Background(), acme, 5)
	require.NoError(t, err)
	assert.Equal(t, SchemaLegacy, schema)
	assert.Equal(t, []core.MetaEntry{{Key: "_billing_cf", Value: "RSSMRA80A01H501U"}}, meta)
}

func TestStorefront_OrderMetaDumpModern(t *testing.T) {
	p, mock := newMock(t)
	s := NewStorefront(p)

	mock.ExpectQuery("FROM `wp_wc_orders_meta`").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"meta_key", "meta_value"}).AddRow("billing_cf", "X"))

	_, schema, err := s.OrderMetaDump(context.Background(), acme, 5)
	require.NoError(t, err)
	assert.Equal(t, SchemaModern, schema)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorefront_BankTransfersByValueDate(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "status", "date_created_gmt", "total_amount", "billing_email", "meta_value"}

	t.Run("modern", func(t *testing.T) {
		p, mock := newMock(t)
		s := NewStorefront(p)
		mock.ExpectQuery(regexp.QuoteMeta(tableExistsQuery)).WithArgs("wp_wc_orders").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
		mock.ExpectQuery("JOIN `wp_wc_orders_meta` meta_bacs").WithArgs("2024-03-01", "2024-03-31").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(9), "wc-completed", nil, "100.00", "a@b.c", "05/03/2024"))

		out, schema, err := s.BankTransfersByValueDate(context.Background(), acme, from, to)
		require.NoError(t, err)
		assert.Equal(t, SchemaModern, schema)
		require.Len(t, out, 1)
		assert.Equal(t, "completed", out[0].Status)
		assert.Equal(t, "05/03/2024", out[0].ValueDate)
	})

	t.Run("legacy when modern table missing", func(t *testing.T) {
		p, mock := newMock(t)
		s := NewStorefront(p)
		mock.ExpectQuery(regexp.QuoteMeta(tableExistsQuery)).WithArgs("wp_wc_orders").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
		mock.ExpectQuery("FROM `wp_posts` p").WithArgs("2024-03-01", "2024-03-31").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), "wc-processing", nil, "50", "", "10/03/2024"))

		out, schema, err := s.BankTransfersByValueDate(context.Background(), acme, from, to)
		require.NoError(t, err)
		assert.Equal(t, SchemaLegacy, schema)
		assert.Len(t, out, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("legacy when modern table is empty", func(t *testing.T) {
		p, mock := newMock(t)
		s := NewStorefront(p)
		mock.ExpectQuery(regexp.QuoteMeta(tableExistsQuery)).WithArgs("wp_wc_orders").
			WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
		mock.ExpectQuery("JOIN `wp_wc_orders_meta` meta_bacs").
			WillReturnRows(sqlmock.NewRows(cols))
		mock.ExpectQuery("FROM `wp_posts` p").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(3), "wc-processing", nil, "50", "", "10/03/2024"))

		out, schema, err := s.BankTransfersByValueDate(context.Background(), acme, from, to)
		require.NoError(t, err)
		assert.Equal(t, SchemaLegacy, schema)
		assert.Len(t, out, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("schema detection failure", func(t *testing.T) {
		p, mock := newMock(t)
		s := NewStorefront(p)
		mock.ExpectQuery(regexp.QuoteMeta(tableExistsQuery)).WillReturnError(errors.New("access denied"))

		_, schema, err := s.BankTransfersByValueDate(context.Background(), acme, from, to)
		assert.ErrorContains(t, err, "failed to detect order schema")
		assert.Equal(t, SchemaNone, schema)
	})
}

const tableExistsQuery = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"

func TestLMS_Lookup(t *testing.T) {
	p, mock := newMock(t)
	l := NewLMS(p, "mdl_")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM `mdl_user_info_field` WHERE shortname = ?")).
		WithArgs("CF").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE fieldid = ? AND UPPER(data) = UPPER(?)")).
		WithArgs(int64(3), "rssmra80a01h501u").
		WillReturnRows(sqlmock.NewRows([]string{"userid"}).AddRow(int64(77)))
	mock.ExpectQuery("FROM `mdl_user_info_data`").
		WithArgs(int64(3), "UNKNOWN").
		WillReturnRows(sqlmock.NewRows([]string{"userid"}))

	ctx := context.Background()
	fieldID, err := l.FieldID(ctx, "lms_acme", "CF")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fieldID)

	uid, err := l.UserByField(ctx, "lms_acme", fieldID, "rssmra80a01h501u")
	require.NoError(t, err)
	assert.Equal(t, int64(77), uid)

	_, err = l.UserByField(ctx, "lms_acme", fieldID, "UNKNOWN")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, []string{"lms_acme", "lms_acme", "lms_acme"}, p.seen)
}
