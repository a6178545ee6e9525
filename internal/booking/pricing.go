package booking

import (
	"fmt"

	"github.com/Malathy2002/hall-booking-website/internal/hall"
)

// Quote is the price breakdown of a booking.
type Quote struct {
	BasePrice         int64
	AdditionalCharges int64
	Discount          int64
	Total             int64
}

// PriceFor computes total = base price + per-guest surcharge - discount.
func PriceFor(h *hall.Hall, guests int, discount int64) (Quote, error) {
	if guests <= 0 {
		return Quote{}, ErrInvalidInput.WithMessage("guest count must be positive")
	}
	if discount < 0 {
		return Quote{}, ErrInvalidAmount.WithMessage("discount cannot be negative")
	}

	q := Quote{
		BasePrice:         h.BasePrice,
		AdditionalCharges: h.PerGuestCharge * int64(guests),
		Discount:          discount,
	}
	q.Total = q.BasePrice + q.AdditionalCharges - q.Discount
	if q.Total < 0 {
		return Quote{}, ErrInvalidAmount.WithMessage(
			fmt.Sprintf("discount %d exceeds booking price %d", discount, q.BasePrice+q.AdditionalCharges),
		)
	}
	return q, nil
}

// Apply copies the quote onto b.
func (q Quote) Apply(b *Booking) {
	b.BasePrice = q.BasePrice
	b.AdditionalCharges = q.AdditionalCharges
	b.Discount = q.Discount
	b.TotalAmount = q.Total
}
