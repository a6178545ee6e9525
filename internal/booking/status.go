package booking

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions is the booking state machine. Terminal states map to nothing.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// ActiveStatuses hold a hall for their event date.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsActive reports whether s contends for hall/date exclusivity.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
)

// PaymentMethod is the closed set of ways a customer can pay.
type PaymentMethod string

const (
	MethodOnline PaymentMethod = "online"
	MethodCash   PaymentMethod = "cash"
	MethodUPI    PaymentMethod = "upi"
	MethodCard   PaymentMethod = "card"
)

// ParsePaymentMethod converts s to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodOnline, MethodCash, MethodUPI, MethodCard:
		return m, nil
	default:
		return "", ErrInvalidMethod.WithCause(fmt.Errorf("unknown payment method %q", s))
	}
}

// UsesGateway reports whether the method is collected through the payment
// gateway. Other methods are settled with the owner and confirmed by them.
func (m PaymentMethod) UsesGateway() bool {
	switch m {
	case MethodOnline:
		return true
	case MethodCash, MethodUPI, MethodCard:
		return false
	default:
		panic(fmt.Sprintf("booking: unhandled payment method %q", string(m)))
	}
}

// CancelDeadline is the last instant a cancellation is accepted: window
// before midnight of the event date in loc. The start time does not move it.
func (b *Booking) CancelDeadline(loc *time.Location, window time.Duration) time.Time {
	y, m, d := b.EventDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(-window)
}

func (b *Booking) transition(to Status, now time.Time) error {
	if !b.Status.CanTransitionTo(to) {
		return ErrInvalidState.WithMessage(
			fmt.Sprintf("cannot move booking from %s to %s", b.Status, to),
		)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// Confirm moves a pending booking to confirmed.
func (b *Booking) Confirm(now time.Time) error {
	return b.transition(StatusConfirmed, now)
}

// MarkPaid confirms a pending booking after a verified payment of amount.
func (b *Booking) MarkPaid(amount int64, now time.Time) error {
	if b.Status != StatusPending {
		return ErrInvalidState.WithMessage(
			fmt.Sprintf("cannot accept payment for a %s booking", b.Status),
		)
	}
	if err := b.transition(StatusConfirmed, now); err != nil {
		return err
	}
	b.PaymentStatus = PaymentPaid
	b.PaidAmount += amount
	return nil
}

// Cancel moves an active booking to cancelled. A collected online payment
// becomes a refund owed.
func (b *Booking) Cancel(reason string, now time.Time) error {
	if err := b.transition(StatusCancelled, now); err != nil {
		return err
	}
	// cancelled_at must never precede created_at.
	at := now
	if at.Before(b.CreatedAt) {
		at = b.CreatedAt
	}
	b.CancelledAt = &at
	if reason != "" {
		b.CancellationReason = &reason
	}
	if b.PaymentStatus == PaymentPaid && b.PaymentMethod.UsesGateway() {
		b.PaymentStatus = PaymentRefundPending
	}
	return nil
}

// Complete moves a confirmed booking to completed.
func (b *Booking) Complete(now time.Time) error {
	return b.transition(StatusCompleted, now)
}
