package store

import (
	"context"
	"errors"
	"fmt"

	"enrollment-reconciler/internal/gateway"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Receipts records gateway payments that belong to no tenant.
type Receipts struct {
	pool *pgxpool.Pool
}

func NewReceipts(pool *pgxpool.Pool) *Receipts {
	return &Receipts{pool: pool}
}

// RecordReceipt stores tx once. It reports true only on the first sighting.
func (r *Receipts) RecordReceipt(ctx context.Context, tx gateway.Transaction) (bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gateway_receipts
			(transaction_id, transaction_date, invoice_id, payer_name, payer_email, payer_phone, payer_country,
			 payer_account, billing_address, billing_city, billing_state, billing_postal_code,
			 amount, fee_amount, currency, item_name, item_code, item_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING id`,
		tx.ID, tx.Date, tx.InvoiceID, tx.PayerName, tx.PayerEmail, tx.PayerPhone, tx.PayerCountry,
		tx.PayerAccountID, tx.BillingAddress, tx.BillingCity, tx.BillingState, tx.BillingPostal,
		tx.Amount, tx.Fee, tx.Currency, tx.ItemName, tx.ItemCode, tx.ItemDescription,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record receipt %s: %w", tx.ID, err)
	}
	return true, nil
}
