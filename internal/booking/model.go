package booking

import (
	"net/http"
	"time"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.New(http.StatusNotFound, apperror.KindNotFound, "booking not found")
	ErrPermissionDenied   = apperror.New(http.StatusForbidden, apperror.KindAuthorization, "permission denied")
	ErrConflict           = apperror.New(http.StatusConflict, apperror.KindConflict, "hall is already booked for this date")
	ErrInvalidState       = apperror.New(http.StatusConflict, apperror.KindInvalidState, "operation not allowed in the booking's current state")
	ErrCancellationWindow = apperror.New(http.StatusUnprocessableEntity, apperror.KindCancellationWindow, "cancellation window has closed")
	ErrEventNotPassed     = apperror.New(http.StatusConflict, apperror.KindInvalidState, "booking cannot be completed before the event date")
	ErrInvalidInput       = apperror.New(http.StatusBadRequest, apperror.KindValidation, "invalid input parameters")
	ErrEventDatePast      = apperror.New(http.StatusBadRequest, apperror.KindValidation, "event date must be in the future")
	ErrInvalidTimeWindow  = apperror.New(http.StatusBadRequest, apperror.KindValidation, "event start time must be before end time")
	ErrGuestsOverCapacity = apperror.New(http.StatusBadRequest, apperror.KindValidation, "guest count exceeds hall capacity")
	ErrInvalidAmount      = apperror.New(http.StatusBadRequest, apperror.KindValidation, "invalid booking amount")
	ErrInvalidMethod      = apperror.New(http.StatusBadRequest, apperror.KindValidation, "invalid payment method")
)

// DateLayout is the wire and storage format of an event date.
const DateLayout = "2006-01-02"

// Booking is the reservation of one hall for one event date.
// Amounts are in minor currency units.
type Booking struct {
	ID                 int64
	Reference          string
	HallID             int64
	HallName           string
	CustomerID         int64
	OwnerID            *int64
	EventDate          time.Time // calendar date, midnight UTC
	StartTime          *string   // "HH:MM", optional
	EndTime            *string   // "HH:MM", optional
	EventType          string
	GuestsCount        int
	BasePrice          int64
	AdditionalCharges  int64
	Discount           int64
	TotalAmount        int64
	AdvanceAmount      int64
	PaidAmount         int64
	PaymentMethod      PaymentMethod
	Status             Status
	PaymentStatus      PaymentStatus
	SpecialRequests    *string
	CancellationReason *string
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BalanceDue is what remains unpaid against the total.
func (b *Booking) BalanceDue() int64 {
	if b.PaidAmount >= b.TotalAmount {
		return 0
	}
	return b.TotalAmount - b.PaidAmount
}

// IsOwnedBy reports whether userID is the hall owner recorded on the booking.
func (b *Booking) IsOwnedBy(userID int64) bool {
	return b.OwnerID != nil && *b.OwnerID == userID
}

type Filter struct {
	CustomerID int64
	OwnerID    int64
	HallID     int64
	Status     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// OwnerStats summarizes an owner's bookings for the dashboard.
type OwnerStats struct {
	Counts           map[Status]int
	TotalRevenue     int64 // total amount of confirmed and completed bookings
	AdvanceCollected int64 // paid amount across confirmed and completed bookings
}

// DateOf truncates t to its calendar date in loc, expressed as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
