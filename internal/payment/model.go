package payment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
)

var (
	ErrOrderNotFound    = apperror.New(http.StatusNotFound, apperror.KindNotFound, "payment order not found")
	ErrSignature        = apperror.New(http.StatusBadRequest, apperror.KindSignature, "payment verification failed")
	ErrGateway          = apperror.New(http.StatusBadGateway, apperror.KindGateway, "payment gateway unavailable, please retry")
	ErrInvalidState     = apperror.New(http.StatusConflict, apperror.KindInvalidState, "payment order is no longer payable")
	ErrInvalidAmount    = apperror.New(http.StatusBadRequest, apperror.KindValidation, "amount must be positive and not exceed the booking total")
	ErrNotOnline        = apperror.New(http.StatusBadRequest, apperror.KindValidation, "booking does not use online payment")
	ErrOrderInProgress  = apperror.New(http.StatusConflict, apperror.KindConflict, "another payment order was opened for this booking")
	ErrInvalidWebhook   = apperror.New(http.StatusBadRequest, apperror.KindValidation, "malformed webhook payload")
	ErrPermissionDenied = apperror.New(http.StatusForbidden, apperror.KindAuthorization, "permission denied")
	ErrInvalidCallback  = apperror.New(http.StatusBadRequest, apperror.KindValidation, "order id, payment id and signature are required")
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// Failure reasons recorded on orders the core fails itself.
const (
	ReasonSuperseded        = "superseded"
	ReasonBookingCancelled  = "booking_cancelled"
	ReasonBookingNotPayable = "booking_not_payable"
)

// Order is one gateway payment attempt for a booking. Amounts are in minor
// currency units.
type Order struct {
	ID               int64
	BookingID        int64
	GatewayOrderID   string
	Amount           int64
	Currency         string
	PaymentMethod    string
	Status           OrderStatus
	GatewayPaymentID *string
	GatewayResponse  json.RawMessage
	FailureReason    *string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Read-only, populated by history queries.
	BookingReference string
	HallName         string
}

// Complete records a verified payment. Only pending orders complete.
func (o *Order) Complete(paymentID string, raw json.RawMessage, now time.Time) error {
	if o.Status != OrderPending {
		return ErrInvalidState
	}
	o.Status = OrderCompleted
	o.GatewayPaymentID = &paymentID
	o.GatewayResponse = raw
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// Fail closes a pending order without payment.
func (o *Order) Fail(reason string, raw json.RawMessage, now time.Time) error {
	if o.Status != OrderPending {
		return ErrInvalidState
	}
	o.Status = OrderFailed
	o.FailureReason = &reason
	if raw != nil {
		o.GatewayResponse = raw
	}
	o.UpdatedAt = now
	return nil
}

// RecordCapture notes a verified payment that arrived after the order was
// failed, so the refund can be traced to it. It reports false when a payment
// is already recorded or the order is not failed.
func (o *Order) RecordCapture(paymentID string, raw json.RawMessage, now time.Time) bool {
	if o.Status != OrderFailed || o.GatewayPaymentID != nil {
		return false
	}
	o.GatewayPaymentID = &paymentID
	o.GatewayResponse = raw
	o.UpdatedAt = now
	return true
}

// HistoryFilter narrows a customer's payment history.
type HistoryFilter struct {
	CustomerID int64
	BookingID  int64
}
