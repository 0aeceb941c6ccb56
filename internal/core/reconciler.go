package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Deps wires the reconciler to its stores.
type Deps struct {
	Orders          OrderSource
	Catalog         CourseCatalog
	Users           UserDirectory
	Ledger          LedgerStore
	TestSink        Sink
	FiscalCodeField string
	Dates           DatePolicy
}

// Reconciler drives one order from tenant validation to ledger writes.
type Reconciler struct {
	orders   *OrderResolver
	identity *IdentityResolver
	courses  *CourseResolver
	dates    DatePolicy
	writer   *LedgerWriter
}

func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{
		orders:   NewOrderResolver(d.Orders),
		identity: NewIdentityResolver(d.Users, d.FiscalCodeField),
		courses:  NewCourseResolver(d.Catalog),
		dates:    d.Dates,
		writer:   NewLedgerWriter(d.Ledger, d.TestSink),
	}
}

// Writer exposes the ledger writer so batch callers can run the idempotency
// check before reconciling.
func (r *Reconciler) Writer() *LedgerWriter { return r.writer }

// AlreadyQueued checks the ledger for orderID under the tenant's ledger database.
func (r *Reconciler) AlreadyQueued(ctx context.Context, rc RunContext, orderID int64) bool {
	return r.writer.AlreadyQueued(ctx, rc, PaymentID(orderID), rc.Tenant.LedgerDB)
}

// PaymentID is the idempotency key written for a storefront order.
func PaymentID(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// MethodFor returns the ledger method label for the tenant's payment rail.
func MethodFor(rc RunContext) string {
	if rc.Tenant.IsGateway() {
		return MethodGateway
	}
	return MethodBankTransfer
}

// Reconcile never returns an error; every failure is captured in the Result.
func (r *Reconciler) Reconcile(ctx context.Context, rc RunContext, orderID int64) Result {
	rc = rc.ForOrder(orderID)
	log := rc.logger()
	res := Result{OrderID: orderID, Tenant: rc.Tenant.Key}

	fail := func(state State, err error) Result {
		res.State = state
		res.Success = false
		res.Error = err.Error()
		log.Error("order reconciliation aborted", zap.String("state", string(state)), zap.Error(err))
		return res
	}

	if err := rc.Tenant.Validate(); err != nil {
		return fail(StateConfigInvalid, &ConfigError{Tenant: rc.Tenant.Key, Err: err})
	}
	res.State = StateConfigValidated

	order, err := r.orders.Resolve(ctx, rc, orderID)
	if err != nil {
		return fail(StateOrderNotFound, err)
	}
	res.State = StateOrderLoaded

	fiscalCode := strings.TrimSpace(order.FiscalCode)
	if fiscalCode == "" {
		return fail(StateFiscalCodeMissing,
			fmt.Errorf("fiscal code (%s) missing on order %d in %s", rc.Tenant.FiscalCodeAttr(), orderID, rc.Tenant.StorefrontDB))
	}
	if fiscalCode != order.FiscalCode {
		log.Warn("fiscal code had surrounding whitespace", zap.String("raw", order.FiscalCode))
	}
	if len(order.LineItems) == 0 {
		return fail(StateNoLineItems, fmt.Errorf("order %d has no line items", orderID))
	}

	userID, err := r.findIdentity(ctx, rc, order, fiscalCode)
	if err != nil {
		return fail(StateIdentityNotFound, err)
	}
	res.LearningUserID = &userID
	res.State = StateIdentityResolved

	effective, err := r.dates.Compute(order, rc.Tenant.IsGateway())
	if err != nil {
		return fail(StateDateRejected, err)
	}

	method := MethodFor(rc)
	paymentID := PaymentID(orderID)
	res.Success = true

	for _, item := range order.LineItems {
		courseID, err := r.courses.Resolve(ctx, rc, item.ProductID)
		if err != nil {
			res.Success = false
			res.Error = err.Error()
			continue
		}
		lastCourse := courseID
		res.LastCourseID = &lastCourse

		cost := item.UnitCost()
		for unit := 0; unit < item.Quantity; unit++ {
			entry := LedgerEntry{
				LearningUserID: userID,
				CourseID:       courseID,
				LedgerDB:       rc.Tenant.LedgerDB,
				PaymentID:      paymentID,
				OrderItemID:    item.ItemID,
				UnitIndex:      unit,
				UnitCost:       cost,
				Method:         method,
				EffectiveDate:  effective,
			}
			if err := r.writer.Write(ctx, rc, entry); err != nil {
				res.Success = false
				res.Error = fmt.Sprintf("write failed for order %d product %d (unit %d/%d): %v",
					orderID, item.ProductID, unit+1, item.Quantity, err)
				continue
			}
			res.Entries = append(res.Entries, entry)
		}
	}

	res.State = StateCompleted
	log.Info("order reconciled",
		zap.Bool("success", res.Success),
		zap.Int64("user_id", userID),
		zap.Int("entries", len(res.Entries)),
		zap.String("error", res.Error),
	)
	return res
}

// findIdentity walks line items in order until one yields both a course and
// a learning user. That user owns the whole order.
func (r *Reconciler) findIdentity(ctx context.Context, rc RunContext, order *Order, fiscalCode string) (int64, error) {
	for _, item := range order.LineItems {
		if _, err := r.courses.Resolve(ctx, rc, item.ProductID); err != nil {
			continue
		}
		if userID, err := r.identity.Resolve(ctx, rc, fiscalCode, rc.Tenant.LedgerDB); err == nil {
			return userID, nil
		}
	}
	return 0, fmt.Errorf("no learning user for fiscal code %s in %s via any line of order %d: %w",
		fiscalCode, rc.Tenant.LedgerDB, order.ID, ErrNotFound)
}
