package core

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineTrace is the course mapping outcome of one line item.
type LineTrace struct {
	ItemID      int64           `json:"item_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	CourseID    *int64          `json:"course_id,omitempty"`
	CourseError string          `json:"course_error,omitempty"`
}

// Trace reports every resolution step for an order without writing anything.
type Trace struct {
	OrderID        int64       `json:"order_id"`
	Tenant         string      `json:"tenant"`
	Method         string      `json:"method"`
	Order          *Order      `json:"order,omitempty"`
	OrderError     string      `json:"order_error,omitempty"`
	FiscalCodeAttr string      `json:"fiscal_code_attribute"`
	FiscalCode     string      `json:"fiscal_code,omitempty"`
	LearningUserID *int64      `json:"learning_user_id,omitempty"`
	IdentityError  string      `json:"identity_error,omitempty"`
	Lines          []LineTrace `json:"lines,omitempty"`
	Threshold      time.Time   `json:"stale_threshold"`
	EffectiveDate  *time.Time  `json:"effective_date,omitempty"`
	DateError      string      `json:"date_error,omitempty"`
	AlreadyQueued  bool        `json:"already_queued"`
	// Units is the number of ledger rows a reconcile would attempt.
	Units int `json:"units"`
}

// Inspect runs the read side of Reconcile and records each outcome.
func (r *Reconciler) Inspect(ctx context.Context, rc RunContext, orderID int64) Trace {
	rc = rc.ForOrder(orderID)
	tr := Trace{
		OrderID:        orderID,
		Tenant:         rc.Tenant.Key,
		Method:         MethodFor(rc),
		FiscalCodeAttr: rc.Tenant.FiscalCodeAttr(),
		Threshold:      r.dates.Threshold(),
	}

	if err := rc.Tenant.Validate(); err != nil {
		tr.OrderError = (&ConfigError{Tenant: rc.Tenant.Key, Err: err}).Error()
		return tr
	}
	tr.AlreadyQueued = r.AlreadyQueued(ctx, rc, orderID)

	order, err := r.orders.Resolve(ctx, rc, orderID)
	if err != nil {
		tr.OrderError = err.Error()
		return tr
	}
	tr.Order = order
	tr.FiscalCode = strings.TrimSpace(order.FiscalCode)

	var mapped bool
	for _, item := range order.LineItems {
		lt := LineTrace{ItemID: item.ItemID, ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: item.UnitCost()}
		if courseID, err := r.courses.Resolve(ctx, rc, item.ProductID); err != nil {
			lt.CourseError = err.Error()
		} else {
			lt.CourseID = &courseID
			tr.Units += item.Quantity
			mapped = true
		}
		tr.Lines = append(tr.Lines, lt)
	}

	switch {
	case tr.FiscalCode == "":
		tr.IdentityError = "fiscal code missing"
	case !mapped:
		tr.IdentityError = "no line item maps to a course"
	default:
		if userID, err := r.identity.Resolve(ctx, rc, tr.FiscalCode, rc.Tenant.LedgerDB); err != nil {
			tr.IdentityError = err.Error()
		} else {
			tr.LearningUserID = &userID
		}
	}

	if eff, err := r.dates.Compute(order, rc.Tenant.IsGateway()); err != nil {
		tr.DateError = err.Error()
	} else if !eff.IsZero() {
		tr.EffectiveDate = &eff
	}
	return tr
}
