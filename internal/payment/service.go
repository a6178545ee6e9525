package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/db"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
)

// webhookPaymentFailed is the only gateway webhook event acted upon.
const webhookPaymentFailed = "payment.failed"

type Config struct {
	Currency       string
	GatewayTimeout time.Duration
	Now            func() time.Time
}

// Callback is the client-relayed result of a gateway checkout.
type Callback struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Raw              json.RawMessage
}

// Verification is the outcome of an accepted callback.
type Verification struct {
	Booking *booking.Booking
	Order   *Order
	// Replayed is true when the callback had already been applied.
	Replayed bool
}

type Service interface {
	// OpenOrder opens a new gateway order for the requester's pending booking,
	// superseding any earlier pending order.
	OpenOrder(ctx context.Context, bookingID, requesterID, amount int64) (*booking.CheckoutOrder, error)
	OpenForBooking(ctx context.Context, b *booking.Booking, amount int64) (*booking.CheckoutOrder, error)
	VoidPending(ctx context.Context, bookingID int64, reason string) error
	VerifyCallback(ctx context.Context, cb Callback) (*Verification, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	History(ctx context.Context, filter HistoryFilter) ([]*Order, error)
}

type service struct {
	tx       db.Transactor
	orders   Repository
	bookings booking.Repository
	gateway  Gateway
	signer   *Signer
	notifier notify.Dispatcher
	logger   *zap.Logger
	cfg      Config
}

func NewService(
	tx db.Transactor,
	orders Repository,
	bookings booking.Repository,
	gateway Gateway,
	signer *Signer,
	notifier notify.Dispatcher,
	logger *zap.Logger,
	cfg Config,
) Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{
		tx:       tx,
		orders:   orders,
		bookings: bookings,
		gateway:  gateway,
		signer:   signer,
		notifier: notifier,
		logger:   logger.Named("payment"),
		cfg:      cfg,
	}
}

func (s *service) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *service) OpenOrder(ctx context.Context, bookingID, requesterID, amount int64) (*booking.CheckoutOrder, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != requesterID {
		return nil, ErrPermissionDenied
	}
	return s.openOrder(ctx, b, amount)
}

func (s *service) OpenForBooking(ctx context.Context, b *booking.Booking, amount int64) (*booking.CheckoutOrder, error) {
	return s.openOrder(ctx, b, amount)
}

func checkPayable(b *booking.Booking) error {
	if !b.PaymentMethod.UsesGateway() {
		return ErrNotOnline
	}
	if b.Status != booking.StatusPending {
		return booking.ErrInvalidState.WithMessage("only pending bookings can be paid")
	}
	return nil
}

func (s *service) openOrder(ctx context.Context, b *booking.Booking, amount int64) (*booking.CheckoutOrder, error) {
	if err := checkPayable(b); err != nil {
		return nil, err
	}
	if amount <= 0 || amount > b.TotalAmount {
		return nil, ErrInvalidAmount
	}

	// 1. Open the order at the gateway. No lock is held during the call.
	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	gwOrder, err := s.gateway.CreateOrder(gwCtx, OrderRequest{
		Amount:   amount,
		Currency: s.cfg.Currency,
		Receipt:  b.Reference,
		Notes: map[string]string{
			"booking_id":  strconv.FormatInt(b.ID, 10),
			"hall_id":     strconv.FormatInt(b.HallID, 10),
			"customer_id": strconv.FormatInt(b.CustomerID, 10),
		},
	})
	if err != nil {
		s.logger.Warn("gateway create order failed", zap.Int64("booking_id", b.ID), zap.Error(err))
		return nil, ErrGateway.WithCause(err)
	}

	// 2. Record it against a still-pending booking.
	order := &Order{
		BookingID:       b.ID,
		GatewayOrderID:  gwOrder.ID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		PaymentMethod:   string(booking.MethodOnline),
		Status:          OrderPending,
		GatewayResponse: gwOrder.Raw,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.bookings.GetByIDForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := checkPayable(locked); err != nil {
			return err
		}

		now := s.now()
		superseded, err := s.orders.FailPending(ctx, locked.ID, ReasonSuperseded, now)
		if err != nil {
			return err
		}
		if superseded > 0 {
			s.logger.Info("superseded pending payment orders",
				zap.Int64("booking_id", locked.ID), zap.Int("count", superseded))
		}

		order.CreatedAt, order.UpdatedAt = now, now
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}

		locked.PaymentStatus = booking.PaymentPending
		locked.UpdatedAt = now
		return s.bookings.Update(ctx, locked)
	})
	if err != nil {
		// The gateway order is left unpaid and expires on the gateway side.
		s.logger.Warn("payment order not recorded",
			zap.Int64("booking_id", b.ID), zap.String("gateway_order_id", gwOrder.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("payment order opened",
		zap.Int64("booking_id", b.ID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.Int64("amount", amount),
	)
	return &booking.CheckoutOrder{
		ID:             order.ID,
		GatewayOrderID: order.GatewayOrderID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

func (s *service) VoidPending(ctx context.Context, bookingID int64, reason string) error {
	_, err := s.orders.FailPending(ctx, bookingID, reason, s.now())
	return err
}

func (s *service) VerifyCallback(ctx context.Context, cb Callback) (*Verification, error) {
	if cb.GatewayOrderID == "" || cb.GatewayPaymentID == "" || cb.Signature == "" {
		return nil, ErrInvalidCallback
	}
	if !s.signer.VerifyCallback(cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature) {
		s.logger.Warn("payment signature mismatch",
			zap.String("gateway_order_id", cb.GatewayOrderID),
			zap.String("gateway_payment_id", cb.GatewayPaymentID),
		)
		return nil, ErrSignature
	}

	// Unlocked read to learn the booking; locks are taken booking first, then
	// order, the same order cancel and OpenOrder use.
	peek, err := s.orders.GetByGatewayOrderID(ctx, cb.GatewayOrderID)
	if err != nil {
		return nil, err
	}

	res := &Verification{}
	// rejected is returned after commit so an orphaned capture stays recorded.
	var rejected error
	var captured bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByIDForUpdate(ctx, peek.BookingID)
		if err != nil {
			return err
		}
		o, err := s.orders.GetByGatewayOrderIDForUpdate(ctx, cb.GatewayOrderID)
		if err != nil {
			return err
		}
		res.Booking, res.Order = b, o
		now := s.now()

		switch o.Status {
		case OrderCompleted:
			if o.GatewayPaymentID != nil && *o.GatewayPaymentID == cb.GatewayPaymentID {
				res.Replayed = true
				return nil
			}
			return ErrInvalidState.WithMessage("payment order was completed by another payment")
		case OrderFailed:
			details := map[string]any{}
			if o.FailureReason != nil {
				details["failure_reason"] = *o.FailureReason
			}
			rejected = ErrInvalidState.WithDetails(details)
			if captured = o.RecordCapture(cb.GatewayPaymentID, cb.Raw, now); captured {
				return s.orders.Update(ctx, o)
			}
			return nil
		}

		if b.Status != booking.StatusPending {
			rejected = booking.ErrInvalidState.WithMessage("booking is no longer awaiting payment")
			if err := o.Fail(ReasonBookingNotPayable, nil, now); err != nil {
				return err
			}
			captured = o.RecordCapture(cb.GatewayPaymentID, cb.Raw, now)
			return s.orders.Update(ctx, o)
		}

		if err := o.Complete(cb.GatewayPaymentID, cb.Raw, now); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		if err := b.MarkPaid(o.Amount, now); err != nil {
			return err
		}
		return s.bookings.Update(ctx, b)
	})
	if err == nil {
		err = rejected
	}
	if err != nil {
		if captured {
			b := res.Booking
			s.logger.Error("captured payment on closed order, refund required",
				zap.Int64("booking_id", b.ID),
				zap.String("gateway_order_id", cb.GatewayOrderID),
				zap.String("gateway_payment_id", cb.GatewayPaymentID),
				zap.Int64("amount", res.Order.Amount),
				zap.Error(err),
			)
			if b.OwnerID != nil {
				s.notifier.Notify(ctx, notify.NewEvent(notify.RefundDue, notify.RoleOwner, *b.OwnerID, map[string]any{
					"booking_id":         b.ID,
					"booking_reference":  b.Reference,
					"gateway_order_id":   cb.GatewayOrderID,
					"gateway_payment_id": cb.GatewayPaymentID,
					"amount":             res.Order.Amount,
					"currency":           res.Order.Currency,
				}))
			}
		} else if errors.Is(err, ErrInvalidState) || errors.Is(err, booking.ErrInvalidState) {
			s.logger.Warn("verified payment rejected",
				zap.String("gateway_order_id", cb.GatewayOrderID),
				zap.String("gateway_payment_id", cb.GatewayPaymentID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if res.Replayed {
		s.logger.Info("payment callback replayed", zap.String("gateway_order_id", cb.GatewayOrderID))
		return res, nil
	}

	b := res.Booking
	s.logger.Info("payment verified",
		zap.Int64("booking_id", b.ID),
		zap.String("gateway_order_id", cb.GatewayOrderID),
		zap.Int64("amount", res.Order.Amount),
	)
	evCtx := map[string]any{
		"booking_id":         b.ID,
		"booking_reference":  b.Reference,
		"hall_name":          b.HallName,
		"event_date":         b.EventDate.Format(booking.DateLayout),
		"amount":             res.Order.Amount,
		"currency":           res.Order.Currency,
		"gateway_payment_id": cb.GatewayPaymentID,
	}
	s.notifier.Notify(ctx, notify.NewEvent(notify.PaymentConfirmed, notify.RoleCustomer, b.CustomerID, evCtx))
	if b.OwnerID != nil {
		s.notifier.Notify(ctx, notify.NewEvent(notify.BookingConfirmed, notify.RoleOwner, *b.OwnerID, evCtx))
	}
	return res, nil
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				ErrorCode        string `json:"error_code"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.signer.VerifyWebhook(body, signature) {
		s.logger.Warn("webhook signature mismatch", zap.Int("body_bytes", len(body)))
		return ErrSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ErrInvalidWebhook.WithCause(err)
	}
	if env.Event != webhookPaymentFailed {
		s.logger.Debug("webhook event ignored", zap.String("event", env.Event))
		return nil
	}
	entity := env.Payload.Payment.Entity
	if entity.OrderID == "" {
		return ErrInvalidWebhook
	}

	peek, err := s.orders.GetByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger.Warn("webhook for unknown order", zap.String("gateway_order_id", entity.OrderID))
			return nil
		}
		return err
	}

	reason := entity.ErrorDescription
	if reason == "" {
		reason = entity.ErrorCode
	}
	if reason == "" {
		reason = webhookPaymentFailed
	}

	var failed *booking.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.bookings.GetByIDForUpdate(ctx, peek.BookingID)
		if err != nil {
			return err
		}
		o, err := s.orders.GetByGatewayOrderIDForUpdate(ctx, entity.OrderID)
		if err != nil {
			return err
		}
		if o.Status != OrderPending {
			// Already failed, or completed before this late notice.
			return nil
		}

		now := s.now()
		if err := o.Fail(reason, body, now); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}
		if b.Status == booking.StatusPending {
			b.PaymentStatus = booking.PaymentFailed
			b.UpdatedAt = now
			if err := s.bookings.Update(ctx, b); err != nil {
				return err
			}
		}
		failed = b
		return nil
	})
	if err != nil {
		return err
	}

	if failed != nil {
		s.logger.Info("payment failed at gateway",
			zap.Int64("booking_id", failed.ID),
			zap.String("gateway_order_id", entity.OrderID),
			zap.String("reason", reason),
		)
		s.notifier.Notify(ctx, notify.NewEvent(notify.PaymentFailed, notify.RoleCustomer, failed.CustomerID, map[string]any{
			"booking_id":        failed.ID,
			"booking_reference": failed.Reference,
			"gateway_order_id":  entity.OrderID,
			"reason":            reason,
		}))
	}
	return nil
}

func (s *service) History(ctx context.Context, filter HistoryFilter) ([]*Order, error) {
	if filter.CustomerID <= 0 {
		return nil, ErrPermissionDenied
	}
	return s.orders.List(ctx, filter)
}
