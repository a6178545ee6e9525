package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/db"
	"github.com/Malathy2002/hall-booking-website/internal/hall"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
)

// maxReferenceAttempts bounds retries when a generated reference collides.
const maxReferenceAttempts = 3

// completionBatchSize bounds a single CompleteDue sweep.
const completionBatchSize = 500

type CreateRequest struct {
	CustomerID      int64
	HallID          int64
	EventDate       time.Time
	StartTime       *string
	EndTime         *string
	EventType       string
	GuestsCount     int
	PaymentMethod   PaymentMethod
	AdvanceAmount   int64
	Discount        int64
	SpecialRequests *string
}

// CheckoutOrder is the gateway order a customer pays against.
type CheckoutOrder struct {
	ID             int64
	GatewayOrderID string
	Amount         int64
	Currency       string
	KeyID          string
}

// CreateResult carries the new booking and, for online payment, the opened
// order. PaymentError is set when the booking was created but the gateway
// order could not be opened; the customer retries payment separately.
type CreateResult struct {
	Booking      *Booking
	PaymentOrder *CheckoutOrder
	PaymentError error
}

// Payments is the booking lifecycle's view of the payment reconciler.
type Payments interface {
	// OpenForBooking opens a gateway order for a freshly created booking.
	OpenForBooking(ctx context.Context, b *Booking, amount int64) (*CheckoutOrder, error)
	// VoidPending fails every pending order of the booking. It joins the
	// transaction carried by ctx.
	VoidPending(ctx context.Context, bookingID int64, reason string) error
}

// Policy holds the booking rules that vary by deployment.
type Policy struct {
	CancellationWindow time.Duration
	Location           *time.Location
	// ReportBalanceOnSite emits a balance-due notification when a booking
	// completes with an unpaid remainder.
	ReportBalanceOnSite bool
	Now                 func() time.Time
}

func (p Policy) withDefaults() Policy {
	if p.CancellationWindow == 0 {
		p.CancellationWindow = 48 * time.Hour
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// GetByID returns the booking if the requester is its customer or hall owner.
	GetByID(ctx context.Context, id int64, requesterID int64) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Confirm(ctx context.Context, id int64, actorID int64) (*Booking, error)
	Cancel(ctx context.Context, id int64, requesterID int64, reason string) (*Booking, error)
	Complete(ctx context.Context, id int64, actorID int64) (*Booking, error)
	// CompleteDue completes every confirmed booking whose event date has passed.
	CompleteDue(ctx context.Context) (int, error)
	OwnerStats(ctx context.Context, ownerID int64) (*OwnerStats, error)
}

type service struct {
	tx       db.Transactor
	repo     Repository
	halls    hall.Repository
	payments Payments
	notifier notify.Dispatcher
	logger   *zap.Logger
	policy   Policy
}

func NewService(
	tx db.Transactor,
	repo Repository,
	halls hall.Repository,
	payments Payments,
	notifier notify.Dispatcher,
	logger *zap.Logger,
	policy Policy,
) Service {
	return &service{
		tx:       tx,
		repo:     repo,
		halls:    halls,
		payments: payments,
		notifier: notifier,
		logger:   logger.Named("booking"),
		policy:   policy.withDefaults(),
	}
}

func (s *service) now() time.Time {
	return s.policy.Now().UTC()
}

func (s *service) today() time.Time {
	return DateOf(s.policy.Now(), s.policy.Location)
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	// 1. Validate input
	if req.CustomerID <= 0 || req.HallID <= 0 {
		return nil, ErrInvalidInput
	}
	req.EventType = strings.TrimSpace(req.EventType)
	if req.EventType == "" {
		return nil, ErrInvalidInput.WithMessage("event type is required")
	}
	if req.GuestsCount <= 0 {
		return nil, ErrInvalidInput.WithMessage("guest count must be positive")
	}
	if _, err := ParsePaymentMethod(string(req.PaymentMethod)); err != nil {
		return nil, err
	}
	eventDate := DateOf(req.EventDate, time.UTC)
	if eventDate.Before(s.today()) {
		return nil, ErrEventDatePast
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	// 2. Load hall pricing and ownership
	h, err := s.halls.GetByID(ctx, req.HallID)
	if err != nil {
		return nil, err
	}
	if !h.IsActive {
		return nil, hall.ErrInactive
	}
	if h.Capacity > 0 && req.GuestsCount > h.Capacity {
		return nil, ErrGuestsOverCapacity.WithDetails(map[string]any{"capacity": h.Capacity})
	}

	// 3. Price the booking
	quote, err := PriceFor(h, req.GuestsCount, req.Discount)
	if err != nil {
		return nil, err
	}
	advance := req.AdvanceAmount
	if advance < 0 || advance > quote.Total {
		return nil, ErrInvalidAmount.WithMessage("advance amount must be between 0 and the total amount")
	}
	if req.PaymentMethod.UsesGateway() {
		if quote.Total == 0 {
			return nil, ErrInvalidAmount.WithMessage("online payment requires a positive total")
		}
		if advance == 0 {
			advance = quote.Total
		}
	}

	now := s.now()
	ownerID := h.OwnerID
	b := &Booking{
		HallID:          h.ID,
		HallName:        h.Name,
		CustomerID:      req.CustomerID,
		OwnerID:         &ownerID,
		EventDate:       eventDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		EventType:       req.EventType,
		GuestsCount:     req.GuestsCount,
		AdvanceAmount:   advance,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		SpecialRequests: req.SpecialRequests,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	quote.Apply(b)

	// 4. Check and insert atomically
	if err := s.insert(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking created",
		zap.Int64("booking_id", b.ID),
		zap.String("reference", b.Reference),
		zap.Int64("hall_id", b.HallID),
		zap.String("event_date", b.EventDate.Format(DateLayout)),
	)

	// 5. Side effects after commit
	s.notifyCreated(ctx, b)

	result := &CreateResult{Booking: b}
	if b.PaymentMethod.UsesGateway() {
		order, err := s.payments.OpenForBooking(ctx, b, b.AdvanceAmount)
		if err != nil {
			s.logger.Warn("payment order not opened; booking left pending",
				zap.Int64("booking_id", b.ID), zap.Error(err))
			result.PaymentError = err
		} else {
			result.PaymentOrder = order
		}
	}
	return result, nil
}

// insert runs the availability check and the insert in one transaction.
// The active-slot constraint turns a lost race into ErrConflict.
func (s *service) insert(ctx context.Context, b *Booking) error {
	for attempt := 1; ; attempt++ {
		b.Reference = NewReference(b.EventDate)

		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			existing, err := s.repo.FindActive(ctx, b.HallID, b.EventDate)
			if err != nil {
				return err
			}
			if existing != nil {
				return conflictFor(b.EventDate)
			}
			return s.repo.Create(ctx, b)
		})
		if errors.Is(err, ErrDuplicateReference) && attempt < maxReferenceAttempts {
			continue
		}
		return err
	}
}

func conflictFor(date time.Time) error {
	return ErrConflict.WithDetails(map[string]any{
		"conflicting_date": date.Format(DateLayout),
	})
}

func validateWindow(start, end *string) error {
	var st, et time.Time
	var err error
	if start != nil {
		if st, err = time.Parse(TimeLayout, *start); err != nil {
			return ErrInvalidInput.WithMessage("start time must be HH:MM")
		}
	}
	if end != nil {
		if et, err = time.Parse(TimeLayout, *end); err != nil {
			return ErrInvalidInput.WithMessage("end time must be HH:MM")
		}
	}
	if start != nil && end != nil && !st.Before(et) {
		return ErrInvalidTimeWindow
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id int64, requesterID int64) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != requesterID && !b.IsOwnedBy(requesterID) {
		return nil, ErrPermissionDenied
	}
	return b, nil
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	if filter.Status != "" && !Status(filter.Status).IsValid() {
		return nil, 0, ErrInvalidInput.WithMessage("invalid booking status filter")
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Confirm(ctx context.Context, id int64, actorID int64) (*Booking, error) {
	var b *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsOwnedBy(actorID) {
			return ErrPermissionDenied
		}
		// Online bookings are confirmed only by a verified payment.
		if b.PaymentMethod.UsesGateway() {
			return ErrInvalidState.WithMessage("online bookings are confirmed by payment verification")
		}
		if err := b.Confirm(s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking confirmed by owner", zap.Int64("booking_id", b.ID), zap.Int64("owner_id", actorID))
	s.notifier.Notify(ctx, notify.NewEvent(notify.BookingConfirmed, notify.RoleCustomer, b.CustomerID, bookingContext(b)))
	return b, nil
}

func (s *service) Cancel(ctx context.Context, id int64, requesterID int64, reason string) (*Booking, error) {
	var b *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		// The row lock serializes cancel against a concurrent payment verification.
		b, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.CustomerID != requesterID {
			return ErrPermissionDenied
		}
		if !b.Status.IsActive() {
			return ErrInvalidState.WithMessage(fmt.Sprintf("booking is already %s", b.Status))
		}

		now := s.now()
		deadline := b.CancelDeadline(s.policy.Location, s.policy.CancellationWindow)
		if !now.Before(deadline) {
			hours := int(s.policy.CancellationWindow.Hours())
			return ErrCancellationWindow.
				WithMessage(fmt.Sprintf("cancellation is not allowed within %d hours of the event", hours)).
				WithDetails(map[string]any{
					"window_hours":  hours,
					"cancel_before": deadline.UTC().Format(time.RFC3339),
				})
		}

		if err := b.Cancel(strings.TrimSpace(reason), now); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, b); err != nil {
			return err
		}
		return s.payments.VoidPending(ctx, b.ID, "booking_cancelled")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		zap.Int64("booking_id", b.ID),
		zap.String("payment_status", string(b.PaymentStatus)),
	)
	evCtx := bookingContext(b)
	s.notifier.Notify(ctx, notify.NewEvent(notify.BookingCancelled, notify.RoleCustomer, b.CustomerID, evCtx))
	if b.OwnerID != nil {
		s.notifier.Notify(ctx, notify.NewEvent(notify.BookingCancelled, notify.RoleOwner, *b.OwnerID, evCtx))
		if b.PaymentStatus == PaymentRefundPending {
			s.notifier.Notify(ctx, notify.NewEvent(notify.RefundDue, notify.RoleOwner, *b.OwnerID, evCtx))
		}
	}
	return b, nil
}

func (s *service) Complete(ctx context.Context, id int64, actorID int64) (*Booking, error) {
	return s.complete(ctx, id, func(b *Booking) error {
		if !b.IsOwnedBy(actorID) {
			return ErrPermissionDenied
		}
		return nil
	})
}

func (s *service) complete(ctx context.Context, id int64, authorize func(*Booking) error) (*Booking, error) {
	var b *Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(b); err != nil {
			return err
		}
		if b.Status == StatusConfirmed && !s.today().After(b.EventDate) {
			return ErrEventNotPassed
		}
		if err := b.Complete(s.now()); err != nil {
			return err
		}
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking completed", zap.Int64("booking_id", b.ID))
	s.notifier.Notify(ctx, notify.NewEvent(notify.BookingCompleted, notify.RoleCustomer, b.CustomerID, bookingContext(b)))
	if s.policy.ReportBalanceOnSite && b.BalanceDue() > 0 && b.OwnerID != nil {
		evCtx := bookingContext(b)
		evCtx["balance_due"] = b.BalanceDue()
		s.notifier.Notify(ctx, notify.NewEvent(notify.BalanceDue, notify.RoleOwner, *b.OwnerID, evCtx))
	}
	return b, nil
}

func (s *service) CompleteDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListCompletable(ctx, s.today(), completionBatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		_, err := s.complete(ctx, id, func(*Booking) error { return nil })
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrInvalidState):
			// Cancelled between listing and locking.
			continue
		default:
			return done, fmt.Errorf("complete booking %d: %w", id, err)
		}
	}
	return done, nil
}

func (s *service) OwnerStats(ctx context.Context, ownerID int64) (*OwnerStats, error) {
	return s.repo.OwnerStats(ctx, ownerID)
}

func (s *service) notifyCreated(ctx context.Context, b *Booking) {
	evCtx := bookingContext(b)
	s.notifier.Notify(ctx, notify.NewEvent(notify.BookingCreated, notify.RoleCustomer, b.CustomerID, evCtx))
	if b.OwnerID != nil {
		s.notifier.Notify(ctx, notify.NewEvent(notify.BookingReceived, notify.RoleOwner, *b.OwnerID, evCtx))
	}
}

func bookingContext(b *Booking) map[string]any {
	return map[string]any{
		"booking_id":        b.ID,
		"booking_reference": b.Reference,
		"hall_id":           b.HallID,
		"hall_name":         b.HallName,
		"event_date":        b.EventDate.Format(DateLayout),
		"event_type":        b.EventType,
		"total_amount":      b.TotalAmount,
		"status":            string(b.Status),
		"payment_status":    string(b.PaymentStatus),
	}
}
