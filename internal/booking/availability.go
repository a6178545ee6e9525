package booking

import (
	"context"
	"time"
)

// AvailabilityChecker answers whether a hall is free on a date. The whole
// calendar day is the unit of contention and only pending or confirmed
// bookings block it.
//
// The answer is advisory: Service.Create repeats the check inside the insert
// transaction, where the active-slot constraint makes it binding.
type AvailabilityChecker struct {
	repo Repository
}

func NewAvailabilityChecker(repo Repository) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo}
}

func (a *AvailabilityChecker) IsAvailable(ctx context.Context, hallID int64, eventDate time.Time) (bool, error) {
	b, err := a.ConflictingBooking(ctx, hallID, eventDate)
	if err != nil {
		return false, err
	}
	return b == nil, nil
}

// ConflictingBooking returns the active booking occupying the slot, or nil.
func (a *AvailabilityChecker) ConflictingBooking(ctx context.Context, hallID int64, eventDate time.Time) (*Booking, error) {
	return a.repo.FindActive(ctx, hallID, DateOf(eventDate, time.UTC))
}
