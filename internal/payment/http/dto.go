package http

import (
	"time"

	"github.com/Malathy2002/hall-booking-website/internal/payment"
)

type CreateOrderBody struct {
	BookingID int64 `json:"booking_id" binding:"required,min=1"`
	Amount    int64 `json:"amount" binding:"required,min=1"`
}

// VerifyBody carries the fields the gateway checkout hands back to the client.
type VerifyBody struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

type HistoryQuery struct {
	BookingID int64 `form:"booking_id" binding:"omitempty,min=1"`
}

type CheckoutResponse struct {
	ID             int64  `json:"id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type VerifyResponse struct {
	Success       bool   `json:"success"`
	BookingID     int64  `json:"booking_id"`
	BookingStatus string `json:"booking_status"`
	PaymentStatus string `json:"payment_status"`
	Replayed      bool   `json:"replayed,omitempty"`
}

type OrderResponse struct {
	ID               int64      `json:"id"`
	BookingID        int64      `json:"booking_id"`
	BookingReference string     `json:"booking_reference,omitempty"`
	HallName         string     `json:"hall_name,omitempty"`
	GatewayOrderID   string     `json:"gateway_order_id"`
	GatewayPaymentID *string    `json:"gateway_payment_id,omitempty"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	PaymentMethod    string     `json:"payment_method"`
	Status           string     `json:"status"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewOrderResponse(o *payment.Order) OrderResponse {
	return OrderResponse{
		ID:               o.ID,
		BookingID:        o.BookingID,
		BookingReference: o.BookingReference,
		HallName:         o.HallName,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		Amount:           o.Amount,
		Currency:         o.Currency,
		PaymentMethod:    o.PaymentMethod,
		Status:           string(o.Status),
		FailureReason:    o.FailureReason,
		PaidAt:           o.PaidAt,
		CreatedAt:        o.CreatedAt,
	}
}
