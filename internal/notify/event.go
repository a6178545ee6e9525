// Package notify emits booking and payment events to the messaging layer.
// Rendering and delivering email or SMS is the consumer's job.
package notify

import "time"

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingReceived  Type = "booking.received"
	BookingConfirmed Type = "booking.confirmed"
	BookingCancelled Type = "booking.cancelled"
	BookingCompleted Type = "booking.completed"
	BalanceDue       Type = "booking.balance_due"
	RefundDue        Type = "booking.refund_due"
	PaymentConfirmed Type = "payment.confirmed"
	PaymentFailed    Type = "payment.failed"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
)

type Recipient struct {
	Role   Role  `json:"role"`
	UserID int64 `json:"user_id"`
}

// Event is one notify(event, recipient, context) request.
type Event struct {
	Type       Type           `json:"event"`
	Recipient  Recipient      `json:"recipient"`
	Context    map[string]any `json:"context"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// RoutingKey is the topic the event is published under, e.g. "owner.booking.received".
func (e Event) RoutingKey() string {
	return string(e.Recipient.Role) + "." + string(e.Type)
}

func NewEvent(t Type, role Role, userID int64, ctx map[string]any) Event {
	return Event{
		Type:       t,
		Recipient:  Recipient{Role: role, UserID: userID},
		Context:    ctx,
		OccurredAt: time.Now().UTC(),
	}
}
