package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/hall"
	"github.com/Malathy2002/hall-booking-website/internal/memstore"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
)

const (
	ownerID    int64 = 100
	customerID int64 = 200
	strangerID int64 = 300
)

type fakeGateway struct {
	mu sync.Mutex
	n  int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	id := fmt.Sprintf("order_%03d", g.n)
	return &payment.GatewayOrder{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Raw:      json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
	}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

type fixture struct {
	store    *memstore.Store
	signer   *payment.Signer
	events   *notify.Recorder
	bookings booking.Service
	payments payment.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := func() time.Time { return time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC) }
	f := &fixture{
		store:  memstore.New(),
		signer: payment.NewSigner("key_secret", "webhook_secret"),
		events: &notify.Recorder{},
	}
	f.store.AddHall(hall.Hall{
		ID:        7,
		OwnerID:   ownerID,
		Name:      "Lotus Banquet Hall",
		BasePrice: 20000,
		Capacity:  500,
		IsActive:  true,
	})

	logger := zap.NewNop()
	f.payments = payment.NewService(
		f.store, f.store.Payments(), f.store.Bookings(), &fakeGateway{}, f.signer, f.events, logger,
		payment.Config{Currency: "INR", GatewayTimeout: time.Second, Now: now},
	)
	f.bookings = booking.NewService(
		f.store, f.store.Bookings(), f.store.Halls(), f.payments, f.events, logger,
		booking.Policy{Now: now},
	)
	return f
}

// book creates a pending online booking and returns it with its open order.
func (f *fixture) book(t *testing.T, method booking.PaymentMethod) *booking.CreateResult {
	t.Helper()
	res, err := f.bookings.Create(context.Background(), booking.CreateRequest{
		CustomerID:    customerID,
		HallID:        7,
		EventDate:     time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
		EventType:     "wedding",
		GuestsCount:   150,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) callback(orderID, paymentID string) payment.Callback {
	return payment.Callback{
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		Signature:        f.signer.CallbackSignature(orderID, paymentID),
		Raw:              json.RawMessage(fmt.Sprintf(`{"razorpay_payment_id":%q}`, paymentID)),
	}
}

func (f *fixture) webhook(t *testing.T, event, orderID, description string) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":                "pay_failed_1",
					"order_id":          orderID,
					"error_code":        "BAD_REQUEST_ERROR",
					"error_description": description,
				},
			},
		},
	})
	require.NoError(t, err)
	return body, f.signer.WebhookSignature(body)
}

func TestVerifyCallback_Success(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	orderID := res.PaymentOrder.GatewayOrderID

	v, err := f.payments.VerifyCallback(context.Background(), f.callback(orderID, "pay_001"))
	require.NoError(t, err)
	assert.False(t, v.Replayed)
	assert.Equal(t, booking.StatusConfirmed, v.Booking.Status)
	assert.Equal(t, booking.PaymentPaid, v.Booking.PaymentStatus)

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, int64(20000), b.PaidAmount)

	orders := f.store.Orders(res.Booking.ID)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, payment.OrderCompleted, o.Status)
	require.NotNil(t, o.GatewayPaymentID)
	assert.Equal(t, "pay_001", *o.GatewayPaymentID)
	assert.NotNil(t, o.PaidAt)
	assert.JSONEq(t, `{"razorpay_payment_id":"pay_001"}`, string(o.GatewayResponse))

	assert.Len(t, f.events.OfType(notify.PaymentConfirmed), 1)
	ownerEvents := f.events.OfType(notify.BookingConfirmed)
	require.Len(t, ownerEvents, 1)
	assert.Equal(t, notify.RoleOwner, ownerEvents[0].Recipient.Role)
}

func TestVerifyCallback_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	cb := f.callback(res.PaymentOrder.GatewayOrderID, "pay_001")

	_, err := f.payments.VerifyCallback(context.Background(), cb)
	require.NoError(t, err)

	v, err := f.payments.VerifyCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.True(t, v.Replayed)

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, int64(20000), b.PaidAmount, "amount is not collected twice")
	assert.Len(t, f.events.OfType(notify.PaymentConfirmed), 1)

	// A different payment against the completed order is rejected.
	_, err = f.payments.VerifyCallback(context.Background(), f.callback(res.PaymentOrder.GatewayOrderID, "pay_002"))
	assert.True(t, errors.Is(err, payment.ErrInvalidState), "got %v", err)
}

func TestVerifyCallback_Rejected(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	orderID := res.PaymentOrder.GatewayOrderID

	tampered := f.callback(orderID, "pay_001")
	tampered.GatewayPaymentID = "pay_999"

	tests := []struct {
		name    string
		cb      payment.Callback
		wantErr error
	}{
		{"tampered payment id", tampered, payment.ErrSignature},
		{"missing signature", payment.Callback{GatewayOrderID: orderID, GatewayPaymentID: "pay_001"}, payment.ErrInvalidCallback},
		{"missing order id", payment.Callback{GatewayPaymentID: "pay_001", Signature: "abc"}, payment.ErrInvalidCallback},
		{"unknown order", f.callback("order_999", "pay_001"), payment.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.VerifyCallback(context.Background(), tt.cb)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
	assert.Equal(t, payment.OrderPending, f.store.Orders(res.Booking.ID)[0].Status)
	assert.Empty(t, f.events.OfType(notify.PaymentConfirmed))
}

func TestVerifyCallback_AfterCancelFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)

	_, err := f.bookings.Cancel(ctx, res.Booking.ID, customerID, "")
	require.NoError(t, err)

	cb := f.callback(res.PaymentOrder.GatewayOrderID, "pay_001")
	_, err = f.payments.VerifyCallback(ctx, cb)
	require.True(t, errors.Is(err, payment.ErrInvalidState), "got %v", err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, payment.ReasonBookingCancelled, appErr.Details["failure_reason"])

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.StatusCancelled, b.Status)
	assert.NotEqual(t, booking.PaymentPaid, b.PaymentStatus)

	// The captured payment is kept on the failed order for the refund.
	o := f.store.Orders(res.Booking.ID)[0]
	assert.Equal(t, payment.OrderFailed, o.Status)
	require.NotNil(t, o.GatewayPaymentID)
	assert.Equal(t, "pay_001", *o.GatewayPaymentID)
	assert.JSONEq(t, string(cb.Raw), string(o.GatewayResponse))
	assert.Nil(t, o.PaidAt)

	refunds := f.events.OfType(notify.RefundDue)
	require.Len(t, refunds, 1)
	assert.Equal(t, notify.Recipient{Role: notify.RoleOwner, UserID: ownerID}, refunds[0].Recipient)
	assert.Equal(t, "pay_001", refunds[0].Context["gateway_payment_id"])

	// A replayed callback is still rejected and not reported twice.
	_, err = f.payments.VerifyCallback(ctx, cb)
	assert.True(t, errors.Is(err, payment.ErrInvalidState))
	assert.Len(t, f.events.OfType(notify.RefundDue), 1)
}

func TestVerifyCallback_BookingNoLongerPayable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)

	// Cancelled by another writer that left the order open.
	b, _ := f.store.Booking(res.Booking.ID)
	cancelledAt := b.CreatedAt
	b.Status = booking.StatusCancelled
	b.CancelledAt = &cancelledAt
	require.NoError(t, f.store.Bookings().Update(ctx, &b))

	_, err := f.payments.VerifyCallback(ctx, f.callback(res.PaymentOrder.GatewayOrderID, "pay_001"))
	require.True(t, errors.Is(err, booking.ErrInvalidState), "got %v", err)

	o := f.store.Orders(res.Booking.ID)[0]
	assert.Equal(t, payment.OrderFailed, o.Status)
	require.NotNil(t, o.FailureReason)
	assert.Equal(t, payment.ReasonBookingNotPayable, *o.FailureReason)
	require.NotNil(t, o.GatewayPaymentID)
	assert.Equal(t, "pay_001", *o.GatewayPaymentID)
	assert.Len(t, f.events.OfType(notify.RefundDue), 1)
	assert.Empty(t, f.events.OfType(notify.PaymentConfirmed))
}

func TestVerifyCallback_RollsBackAsUnit(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	cb := f.callback(res.PaymentOrder.GatewayOrderID, "pay_001")

	f.store.FailNextBookingUpdate = errors.New("connection lost")
	_, err := f.payments.VerifyCallback(context.Background(), cb)
	require.Error(t, err)

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
	o := f.store.Orders(res.Booking.ID)[0]
	assert.Equal(t, payment.OrderPending, o.Status, "order update is rolled back with the booking")
	assert.Nil(t, o.GatewayPaymentID)

	// The client retries and succeeds.
	v, err := f.payments.VerifyCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.False(t, v.Replayed)
}

func TestVerifyCallback_RacesCancel(t *testing.T) {
	for i := range 20 {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			f := newFixture(t)
			res := f.book(t, booking.MethodOnline)
			cb := f.callback(res.PaymentOrder.GatewayOrderID, "pay_001")

			var (
				wg                   sync.WaitGroup
				verifyErr, cancelErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, verifyErr = f.payments.VerifyCallback(context.Background(), cb)
			}()
			go func() {
				defer wg.Done()
				_, cancelErr = f.bookings.Cancel(context.Background(), res.Booking.ID, customerID, "")
			}()
			wg.Wait()

			require.NoError(t, cancelErr)
			b, _ := f.store.Booking(res.Booking.ID)
			o := f.store.Orders(res.Booking.ID)[0]
			assert.Equal(t, booking.StatusCancelled, b.Status)

			if verifyErr == nil {
				// Paid first, then cancelled: the payment is owed back.
				assert.Equal(t, booking.PaymentRefundPending, b.PaymentStatus)
				assert.Equal(t, payment.OrderCompleted, o.Status)
			} else {
				assert.True(t, errors.Is(verifyErr, payment.ErrInvalidState), "got %v", verifyErr)
				assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
				assert.Equal(t, payment.OrderFailed, o.Status)
				require.NotNil(t, o.GatewayPaymentID)
				assert.Equal(t, "pay_001", *o.GatewayPaymentID)
			}
		})
	}
}

func TestOpenOrder_SupersedesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	first := res.PaymentOrder.GatewayOrderID

	second, err := f.payments.OpenOrder(ctx, res.Booking.ID, customerID, 5000)
	require.NoError(t, err)
	assert.NotEqual(t, first, second.GatewayOrderID)
	assert.Equal(t, "rzp_test_key", second.KeyID)

	orders := f.store.Orders(res.Booking.ID)
	require.Len(t, orders, 2)
	assert.Equal(t, payment.OrderFailed, orders[0].Status)
	assert.Equal(t, payment.ReasonSuperseded, *orders[0].FailureReason)
	assert.Equal(t, payment.OrderPending, orders[1].Status)

	_, err = f.payments.VerifyCallback(ctx, f.callback(first, "pay_old"))
	assert.True(t, errors.Is(err, payment.ErrInvalidState))

	_, err = f.payments.VerifyCallback(ctx, f.callback(second.GatewayOrderID, "pay_new"))
	require.NoError(t, err)
	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, int64(5000), b.PaidAmount)
	assert.Equal(t, int64(15000), b.BalanceDue())

	_, err = f.payments.OpenOrder(ctx, res.Booking.ID, customerID, 5000)
	assert.True(t, errors.Is(err, booking.ErrInvalidState), "confirmed bookings take no new orders")
}

func TestOpenOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	online := f.book(t, booking.MethodOnline)

	_, err := f.payments.OpenOrder(ctx, online.Booking.ID, strangerID, 1000)
	assert.True(t, errors.Is(err, payment.ErrPermissionDenied))

	_, err = f.payments.OpenOrder(ctx, online.Booking.ID, customerID, 0)
	assert.True(t, errors.Is(err, payment.ErrInvalidAmount))

	_, err = f.payments.OpenOrder(ctx, online.Booking.ID, customerID, 20001)
	assert.True(t, errors.Is(err, payment.ErrInvalidAmount))

	_, err = f.payments.OpenOrder(ctx, 9999, customerID, 1000)
	assert.True(t, errors.Is(err, booking.ErrNotFound))

	// Only the first order survives the failed attempts.
	assert.Len(t, f.store.Orders(online.Booking.ID), 1)
}

func TestOpenOrder_RejectsOfflineBooking(t *testing.T) {
	f := newFixture(t)
	res, err := f.bookings.Create(context.Background(), booking.CreateRequest{
		CustomerID:    customerID,
		HallID:        7,
		EventDate:     time.Date(2025, 12, 21, 0, 0, 0, 0, time.UTC),
		EventType:     "reception",
		GuestsCount:   80,
		PaymentMethod: booking.MethodCash,
	})
	require.NoError(t, err)

	_, err = f.payments.OpenOrder(context.Background(), res.Booking.ID, customerID, 1000)
	assert.True(t, errors.Is(err, payment.ErrNotOnline))
}

func TestHandleWebhook_PaymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	orderID := res.PaymentOrder.GatewayOrderID

	body, sig := f.webhook(t, "payment.failed", orderID, "Payment was declined by the bank")
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	o := f.store.Orders(res.Booking.ID)[0]
	assert.Equal(t, payment.OrderFailed, o.Status)
	require.NotNil(t, o.FailureReason)
	assert.Equal(t, "Payment was declined by the bank", *o.FailureReason)

	b, _ := f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, booking.PaymentFailed, b.PaymentStatus)

	failed := f.events.OfType(notify.PaymentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, customerID, failed[0].Recipient.UserID)

	// Redelivery is a no-op.
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	assert.Len(t, f.events.OfType(notify.PaymentFailed), 1)

	// The customer can retry with a fresh order.
	order, err := f.payments.OpenOrder(ctx, res.Booking.ID, customerID, 20000)
	require.NoError(t, err)
	b, _ = f.store.Booking(res.Booking.ID)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)

	_, err = f.payments.VerifyCallback(ctx, f.callback(order.GatewayOrderID, "pay_retry"))
	require.NoError(t, err)
}

func TestHandleWebhook_Ignored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	orderID := res.PaymentOrder.GatewayOrderID

	t.Run("bad signature", func(t *testing.T) {
		body, _ := f.webhook(t, "payment.failed", orderID, "declined")
		err := f.payments.HandleWebhook(ctx, body, "deadbeef")
		assert.True(t, errors.Is(err, payment.ErrSignature))
	})

	t.Run("malformed body", func(t *testing.T) {
		body := []byte(`{"event":`)
		err := f.payments.HandleWebhook(ctx, body, f.signer.WebhookSignature(body))
		assert.True(t, errors.Is(err, payment.ErrInvalidWebhook))
	})

	t.Run("other event", func(t *testing.T) {
		body, sig := f.webhook(t, "payment.authorized", orderID, "")
		assert.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	})

	t.Run("unknown order", func(t *testing.T) {
		body, sig := f.webhook(t, "payment.failed", "order_999", "declined")
		assert.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	})

	assert.Equal(t, payment.OrderPending, f.store.Orders(res.Booking.ID)[0].Status)

	t.Run("late failure after payment", func(t *testing.T) {
		_, err := f.payments.VerifyCallback(ctx, f.callback(orderID, "pay_001"))
		require.NoError(t, err)

		body, sig := f.webhook(t, "payment.failed", orderID, "declined")
		require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

		assert.Equal(t, payment.OrderCompleted, f.store.Orders(res.Booking.ID)[0].Status)
		b, _ := f.store.Booking(res.Booking.ID)
		assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	})

	assert.Empty(t, f.events.OfType(notify.PaymentFailed))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.book(t, booking.MethodOnline)
	_, err := f.payments.OpenOrder(ctx, res.Booking.ID, customerID, 10000)
	require.NoError(t, err)

	orders, err := f.payments.History(ctx, payment.HistoryFilter{CustomerID: customerID})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Greater(t, orders[0].ID, orders[1].ID, "newest first")
	assert.Equal(t, res.Booking.Reference, orders[0].BookingReference)
	assert.Equal(t, "Lotus Banquet Hall", orders[0].HallName)

	orders, err = f.payments.History(ctx, payment.HistoryFilter{CustomerID: strangerID})
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = f.payments.History(ctx, payment.HistoryFilter{})
	assert.True(t, errors.Is(err, payment.ErrPermissionDenied))
}
