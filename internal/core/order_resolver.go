package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Standard fiscal code meta keys consulted when the tenant attribute is absent.
var fallbackFiscalCodeAttributes = []string{"billing_cf", "_billing_cf"}

// Manual transfer value date meta keys, in order of preference.
var manualTransferDateAttributes = []string{"bacs_date", "_bacs_date"}

// OrderResolver builds Order snapshots from the modern storefront schema.
type OrderResolver struct {
	source OrderSource
}

func NewOrderResolver(source OrderSource) *OrderResolver {
	return &OrderResolver{source: source}
}

// Resolve loads the order header, metadata and lines. Any read failure is
// reported as ErrNotFound; the underlying cause is logged.
func (r *OrderResolver) Resolve(ctx context.Context, rc RunContext, orderID int64) (*Order, error) {
	log := rc.logger()
	ref := rc.storefront()

	header, err := r.source.OrderHeader(ctx, ref, orderID)
	if err != nil {
		log.Warn("order header unavailable", zap.String("db", ref.DBName), zap.Error(err))
		return nil, fmt.Errorf("order %d in %s: %w", orderID, ref.DBName, ErrNotFound)
	}

	meta, err := r.source.OrderMeta(ctx, ref, orderID)
	if err != nil {
		log.Warn("order meta unavailable", zap.String("db", ref.DBName), zap.Error(err))
		return nil, fmt.Errorf("order %d meta in %s: %w", orderID, ref.DBName, ErrNotFound)
	}

	lines, err := r.source.OrderLines(ctx, ref, orderID)
	if err != nil {
		log.Warn("order lines unavailable", zap.String("db", ref.DBName), zap.Error(err))
		return nil, fmt.Errorf("order %d lines in %s: %w", orderID, ref.DBName, ErrNotFound)
	}

	order := &Order{
		ID:                 header.ID,
		Status:             NormalizeStatus(header.Status),
		CreatedAt:          header.CreatedAt,
		UpdatedAt:          header.UpdatedAt,
		TotalAmount:        header.TotalAmount,
		FiscalCode:         fiscalCodeFromMeta(meta, rc.Tenant.FiscalCodeAttr()),
		ManualTransferDate: firstMeta(meta, manualTransferDateAttributes...),
		LineItems:          make([]LineItem, 0, len(lines)),
	}

	for _, l := range lines {
		order.LineItems = append(order.LineItems, lineItemFromRow(l))
	}

	log.Debug("order loaded",
		zap.String("status", order.Status),
		zap.Int("line_items", len(order.LineItems)),
		zap.Bool("has_fiscal_code", order.FiscalCode != ""),
		zap.String("manual_transfer_date", order.ManualTransferDate),
	)
	return order, nil
}

// NormalizeStatus strips the storefront lifecycle prefix, e.g. "wc-completed" becomes "completed".
func NormalizeStatus(status string) string {
	return strings.TrimPrefix(strings.TrimSpace(status), "wc-")
}

func fiscalCodeFromMeta(meta []MetaEntry, attribute string) string {
	if v := firstMeta(meta, attribute); v != "" {
		return v
	}
	for _, fallback := range fallbackFiscalCodeAttributes {
		if fallback == attribute {
			continue
		}
		if v := firstMeta(meta, fallback); v != "" {
			return v
		}
	}
	return ""
}

// firstMeta returns the first non-blank value among keys, checked in key order.
func firstMeta(meta []MetaEntry, keys ...string) string {
	for _, key := range keys {
		for _, m := range meta {
			if m.Key == key && strings.TrimSpace(m.Value) != "" {
				return m.Value
			}
		}
	}
	return ""
}

func lineItemFromRow(l OrderLine) LineItem {
	qty := l.Quantity
	if qty < 1 {
		qty = 1
	}
	total := l.NetRevenue.Decimal.Add(l.Tax.Decimal)
	return LineItem{
		ItemID:    l.ItemID,
		ProductID: l.ProductID,
		Quantity:  qty,
		LineTotal: total,
	}
}
