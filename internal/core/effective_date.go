package core

import (
	"fmt"
	"strings"
	"time"
)

// ManualDateLayout is the day/month/year layout of manual transfer dates.
const ManualDateLayout = "2/1/2006"

// DatePolicy computes ledger timestamps. Now and Location are injected so the
// freshness cutoff can be pinned in tests.
type DatePolicy struct {
	Location *time.Location
	Now      func() time.Time
}

func NewDatePolicy(loc *time.Location) DatePolicy {
	return DatePolicy{Location: loc, Now: time.Now}
}

func (p DatePolicy) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p DatePolicy) now() time.Time {
	if p.Now == nil {
		return time.Now().In(p.loc())
	}
	return p.Now().In(p.loc())
}

// Threshold is midnight on the first day of the previous month.
func (p DatePolicy) Threshold() time.Time {
	now := p.now()
	return time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, p.loc())
}

// Compute returns the effective date for order. A zero time means unset and
// the writer substitutes the write time.
func (p DatePolicy) Compute(order *Order, gatewaySourced bool) (time.Time, error) {
	raw := strings.TrimSpace(order.ManualTransferDate)
	if raw != "" {
		return p.fromManualDate(raw, order.UpdatedAt)
	}

	if !gatewaySourced {
		return time.Time{}, &RejectedError{
			Reason: RejectMissingDate,
			Detail: fmt.Sprintf("bank transfer order %d has no manual transfer date", order.ID),
		}
	}
	if order.UpdatedAt == nil {
		return time.Time{}, nil
	}
	return *order.UpdatedAt, nil
}

func (p DatePolicy) fromManualDate(raw string, updatedAt *time.Time) (time.Time, error) {
	day, err := time.ParseInLocation(ManualDateLayout, raw, p.loc())
	if err != nil {
		return time.Time{}, &RejectedError{
			Reason: RejectBadFormat,
			Detail: fmt.Sprintf("manual transfer date %q is not dd/mm/yyyy", raw),
		}
	}

	threshold := p.Threshold()
	if day.Before(threshold) {
		return time.Time{}, &RejectedError{
			Reason: RejectStale,
			Detail: fmt.Sprintf("manual transfer date %s is before %s", day.Format("2006-01-02"), threshold.Format("2006-01-02")),
		}
	}

	hour, minute, second := 12, 0, 0
	if updatedAt != nil {
		hour, minute, second = updatedAt.Clock()
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, p.loc()), nil
}
