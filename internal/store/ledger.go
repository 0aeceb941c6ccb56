package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enrollment-reconciler/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Ledger is the production ledger table in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) HasPayment(ctx context.Context, paymentID, ledgerDB string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE payment_id = $1 AND ledger_db_name = $2)",
		paymentID, ledgerDB,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment %s: %w", paymentID, err)
	}
	return exists, nil
}

// Insert adds one entry. A row already present under the uniqueness key
// yields OutcomeAlreadyExists.
func (l *Ledger) Insert(ctx context.Context, e core.LedgerEntry) (core.Outcome, error) {
	var id int64
	err := l.pool.QueryRow(ctx, `
		INSERT INTO ledger_entries
			(learning_user_id, course_id, ledger_db_name, payment_id, order_item_id, unit_index, cost, method, effective_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ledger_db_name, payment_id, course_id, learning_user_id, order_item_id, unit_index) DO NOTHING
		RETURNING id`,
		e.LearningUserID, e.CourseID, e.LedgerDB, e.PaymentID, e.OrderItemID, e.UnitIndex,
		e.UnitCost, e.Method, e.EffectiveDate,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.OutcomeAlreadyExists, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.OutcomeAlreadyExists, nil
		}
		return 0, fmt.Errorf("failed to insert ledger entry for payment %s: %w", e.PaymentID, err)
	}
	return core.OutcomeInserted, nil
}

// StoredEntry is a ledger row as persisted.
type StoredEntry struct {
	ID        int64     `json:"id"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
	core.LedgerEntry
}

// EntryFilter narrows ListEntries. Zero values match everything.
type EntryFilter struct {
	LedgerDB  string
	PaymentID string
	Limit     int
}

func (l *Ledger) ListEntries(ctx context.Context, f EntryFilter) ([]StoredEntry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, learning_user_id, course_id, ledger_db_name, payment_id, order_item_id, unit_index,
		       cost, method, effective_at, processed, created_at
		FROM ledger_entries
		WHERE ($1::text = '' OR ledger_db_name = $1) AND ($2::text = '' OR payment_id = $2)
		ORDER BY id DESC
		LIMIT $3`,
		f.LedgerDB, f.PaymentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []StoredEntry
	for rows.Next() {
		var (
			se   StoredEntry
			cost decimal.Decimal
		)
		if err := rows.Scan(&se.ID, &se.LearningUserID, &se.CourseID, &se.LedgerDB, &se.PaymentID,
			&se.OrderItemID, &se.UnitIndex, &cost, &se.Method, &se.EffectiveDate, &se.Processed, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		se.UnitCost = cost
		out = append(out, se)
	}
	return out, rows.Err()
}
