package store_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"enrollment-reconciler/internal/core"
	"enrollment-reconciler/internal/gateway"
	"enrollment-reconciler/internal/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	files, err := filepath.Glob("../../migrations/*.sql")
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, f)
	}

	_, err = pool.Exec(ctx, "TRUNCATE TABLE ledger_entries, gateway_receipts, operators RESTART IDENTITY")
	require.NoError(t, err)
	return pool
}

func TestLedger_InsertIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ledger := store.NewLedger(pool)
	ctx := context.Background()

	entry := core.LedgerEntry{
		LearningUserID: 77,
		CourseID:       42,
		LedgerDB:       "lms_acme",
		PaymentID:      "7199",
		OrderItemID:    11,
		UnitIndex:      0,
		UnitCost:       decimal.RequireFromString("100.00"),
		Method:         core.MethodGateway,
		EffectiveDate:  time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
	}

	has, err := ledger.HasPayment(ctx, "7199", "lms_acme")
	require.NoError(t, err)
	assert.False(t, has)

	out, err := ledger.Insert(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeInserted, out)

	out, err = ledger.Insert(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAlreadyExists, out)

	second := entry
	second.UnitIndex = 1
	out, err = ledger.Insert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeInserted, out)

	has, err = ledger.HasPayment(ctx, "7199", "lms_acme")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = ledger.HasPayment(ctx, "7199", "lms_other")
	require.NoError(t, err)
	assert.False(t, has, "payment ids are scoped by ledger database")

	rows, err := ledger.ListEntries(ctx, store.EntryFilter{PaymentID: "7199"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100", rows[0].UnitCost.String())
	assert.False(t, rows[0].Processed)
}

func TestReceipts_FirstSightingOnly(t *testing.T) {
	pool := setupTestDB(t)
	receipts := store.NewReceipts(pool)
	ctx := context.Background()

	tx := gateway.Transaction{
		ID:     "TX-1",
		Date:   time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("35.50"),
		Fee:    decimal.RequireFromString("-1.20"),
	}

	first, err := receipts.RecordReceipt(ctx, tx)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := receipts.RecordReceipt(ctx, tx)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestOperators_UpsertAndAuthenticate(t *testing.T) {
	pool := setupTestDB(t)
	ops := store.NewOperators(pool)
	ctx := context.Background()

	id, err := ops.Upsert(ctx, "admin", "correct-horse")
	require.NoError(t, err)

	op, err := ops.Authenticate(ctx, "admin", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, id, op.ID)

	_, err = ops.Authenticate(ctx, "admin", "wrong-password")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	_, err = ops.Authenticate(ctx, "nobody", "whatever1")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	again, err := ops.Upsert(ctx, "admin", "new-password")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	_, err = ops.Authenticate(ctx, "admin", "new-password")
	assert.NoError(t, err)
}
