package http

import (
	"time"

	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/request"
)

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	request.ListParams
	HallID    int64  `form:"hall_id" binding:"omitempty,min=1"`
	Status    string `form:"status" binding:"omitempty,oneof=pending confirmed cancelled completed"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=event_date created_at status total"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

type CreateBookingBody struct {
	HallID          int64   `json:"hall_id" binding:"required,min=1"`
	EventDate       string  `json:"event_date" binding:"required"`
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	EventType       string  `json:"event_type" binding:"required"`
	GuestsCount     int     `json:"guests_count" binding:"required,min=1"`
	PaymentMethod   string  `json:"payment_method" binding:"required,oneof=online cash upi card"`
	AdvanceAmount   int64   `json:"advance_amount" binding:"min=0"`
	Discount        int64   `json:"discount" binding:"min=0"`
	SpecialRequests *string `json:"special_requests"`
}

// ToRequest converts the body for the service. Dates are YYYY-MM-DD.
func (b *CreateBookingBody) ToRequest(customerID int64) (booking.CreateRequest, error) {
	date, err := booking.ParseDate(b.EventDate)
	if err != nil {
		return booking.CreateRequest{}, booking.ErrInvalidInput.WithMessage("event_date must be YYYY-MM-DD")
	}
	return booking.CreateRequest{
		CustomerID:      customerID,
		HallID:          b.HallID,
		EventDate:       date,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		EventType:       b.EventType,
		GuestsCount:     b.GuestsCount,
		PaymentMethod:   booking.PaymentMethod(b.PaymentMethod),
		AdvanceAmount:   b.AdvanceAmount,
		Discount:        b.Discount,
		SpecialRequests: b.SpecialRequests,
	}, nil
}

type CancelBookingBody struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AvailabilityQuery struct {
	Date string `form:"date" binding:"required"`
}

type BookingResponse struct {
	ID                 int64      `json:"id"`
	Reference          string     `json:"booking_reference"`
	HallID             int64      `json:"hall_id"`
	HallName           string     `json:"hall_name,omitempty"`
	CustomerID         int64      `json:"customer_id"`
	OwnerID            *int64     `json:"owner_id,omitempty"`
	EventDate          string     `json:"event_date"`
	StartTime          *string    `json:"start_time,omitempty"`
	EndTime            *string    `json:"end_time,omitempty"`
	EventType          string     `json:"event_type"`
	GuestsCount        int        `json:"guests_count"`
	BasePrice          int64      `json:"base_price"`
	AdditionalCharges  int64      `json:"additional_charges"`
	Discount           int64      `json:"discount"`
	TotalAmount        int64      `json:"total_amount"`
	AdvanceAmount      int64      `json:"advance_amount"`
	PaidAmount         int64      `json:"paid_amount"`
	PaymentMethod      string     `json:"payment_method"`
	Status             string     `json:"booking_status"`
	PaymentStatus      string     `json:"payment_status"`
	SpecialRequests    *string    `json:"special_requests,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                 b.ID,
		Reference:          b.Reference,
		HallID:             b.HallID,
		HallName:           b.HallName,
		CustomerID:         b.CustomerID,
		OwnerID:            b.OwnerID,
		EventDate:          b.EventDate.Format(booking.DateLayout),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		EventType:          b.EventType,
		GuestsCount:        b.GuestsCount,
		BasePrice:          b.BasePrice,
		AdditionalCharges:  b.AdditionalCharges,
		Discount:           b.Discount,
		TotalAmount:        b.TotalAmount,
		AdvanceAmount:      b.AdvanceAmount,
		PaidAmount:         b.PaidAmount,
		PaymentMethod:      string(b.PaymentMethod),
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		SpecialRequests:    b.SpecialRequests,
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

// CheckoutResponse is what the client needs to open the gateway checkout.
type CheckoutResponse struct {
	ID             int64  `json:"id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

func NewCheckoutResponse(o *booking.CheckoutOrder) *CheckoutResponse {
	if o == nil {
		return nil
	}
	return &CheckoutResponse{
		ID:             o.ID,
		GatewayOrderID: o.GatewayOrderID,
		Amount:         o.Amount,
		Currency:       o.Currency,
		KeyID:          o.KeyID,
	}
}

type CreateBookingResponse struct {
	Booking      BookingResponse   `json:"booking"`
	Reference    string            `json:"booking_reference"`
	PaymentOrder *CheckoutResponse `json:"payment_order,omitempty"`
	PaymentError string            `json:"payment_error,omitempty"`
}

type AvailabilityResponse struct {
	Available       bool   `json:"available"`
	ConflictingDate string `json:"conflicting_date,omitempty"`
}

type OwnerStatsResponse struct {
	TotalBookings    int            `json:"total_bookings"`
	StatusCounts     map[string]int `json:"status_counts"`
	TotalRevenue     int64          `json:"total_revenue"`
	AdvanceCollected int64          `json:"advance_collected"`
}

func NewOwnerStatsResponse(s *booking.OwnerStats) OwnerStatsResponse {
	resp := OwnerStatsResponse{
		StatusCounts:     make(map[string]int, len(s.Counts)),
		TotalRevenue:     s.TotalRevenue,
		AdvanceCollected: s.AdvanceCollected,
	}
	for status, n := range s.Counts {
		resp.StatusCounts[string(status)] = n
		resp.TotalBookings += n
	}
	return resp
}
