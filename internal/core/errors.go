package core

import (
	"errors"
	"fmt"
)

// ErrNotFound covers a missing order, identity or course mapping. Lookups
// also degrade storage failures to it.
var ErrNotFound = errors.New("not found")

// RejectReason classifies a date policy refusal.
type RejectReason string

const (
	RejectBadFormat   RejectReason = "bad_format"
	RejectStale       RejectReason = "stale"
	RejectMissingDate RejectReason = "missing_date"
)

// RejectedError is a business rule refusal, not a system fault.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("date rejected (%s): %s", e.Reason, e.Detail)
}

// IsRejected reports whether err is a date policy refusal and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ConfigError marks missing tenant wiring.
type ConfigError struct {
	Tenant string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for tenant %s: %v", e.Tenant, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Outcome is the result of a ledger insert that did not fail.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeAlreadyExists
)

func (o Outcome) String() string {
	if o == OutcomeAlreadyExists {
		return "already_exists"
	}
	return "inserted"
}
