package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method labels written to the ledger. They tell downstream accounting which
// rail the money came through.
const (
	MethodGateway      = "woocommerce"
	MethodBankTransfer = "woocommerce-bacs"
)

// Order is a transient snapshot of a storefront order, rebuilt on every resolution.
type Order struct {
	ID                 int64           `json:"id"`
	Status             string          `json:"status"`
	CreatedAt          *time.Time      `json:"created_at,omitempty"`
	UpdatedAt          *time.Time      `json:"updated_at,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	FiscalCode         string          `json:"fiscal_code,omitempty"`
	ManualTransferDate string          `json:"manual_transfer_date,omitempty"`
	LineItems          []LineItem      `json:"line_items"`
}

// LineItem is one product line. Quantity is at least 1.
type LineItem struct {
	ItemID    int64           `json:"item_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// UnitCost is the per-unit share of the line total, rounded to cents.
func (li LineItem) UnitCost() decimal.Decimal {
	return li.LineTotal.DivRound(decimal.NewFromInt(int64(li.Quantity)), 2)
}

// LedgerEntry is one reconciled unit of purchase. OrderItemID and UnitIndex
// keep the rows of a multi-unit line distinct under the uniqueness key.
type LedgerEntry struct {
	LearningUserID int64           `json:"learning_user_id"`
	CourseID       int64           `json:"course_id"`
	LedgerDB       string          `json:"ledger_db"`
	PaymentID      string          `json:"payment_id"`
	OrderItemID    int64           `json:"order_item_id"`
	UnitIndex      int             `json:"unit_index"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Method         string          `json:"method"`
	EffectiveDate  time.Time       `json:"effective_date"`
}

// State is the last state the reconciler reached for an order.
type State string

const (
	StateConfigValidated  State = "CONFIG_VALIDATED"
	StateOrderLoaded      State = "ORDER_LOADED"
	StateIdentityResolved State = "IDENTITY_RESOLVED"
	StateCompleted        State = "COMPLETED"

	// StateAlreadyQueued means the payment was in the ledger and nothing ran.
	StateAlreadyQueued State = "ALREADY_QUEUED"

	StateConfigInvalid     State = "CONFIG_INVALID"
	StateOrderNotFound     State = "ORDER_NOT_FOUND"
	StateFiscalCodeMissing State = "FISCAL_CODE_MISSING"
	StateNoLineItems       State = "NO_LINE_ITEMS"
	StateIdentityNotFound  State = "IDENTITY_NOT_FOUND"
	StateDateRejected      State = "DATE_REJECTED"
)

// Result is the isolated outcome of reconciling one order. Error holds the
// last failure only; Success is false as soon as any line or unit failed.
type Result struct {
	OrderID        int64         `json:"order_id"`
	Tenant         string        `json:"tenant"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	LearningUserID *int64        `json:"learning_user_id,omitempty"`
	LastCourseID   *int64        `json:"last_course_id,omitempty"`
	State          State         `json:"state"`
	Entries        []LedgerEntry `json:"entries,omitempty"`
}
