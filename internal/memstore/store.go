// Package memstore is an in-memory ledger used by tests and local demos.
// Transactions are serialized by a store-wide lock and write to a private
// copy of the ledger that replaces the committed one only when the
// transaction succeeds. Readers outside a transaction never see its
// partial or rolled-back writes.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/hall"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
)

type txKey struct{}

var errNoTx = errors.New("row lock requested outside a transaction")

type state struct {
	halls         map[int64]hall.Hall
	bookings      map[int64]booking.Booking
	orders        map[int64]payment.Order
	nextBookingID int64
	nextOrderID   int64
}

func (s *state) clone() *state {
	cp := &state{
		halls:         make(map[int64]hall.Hall, len(s.halls)),
		bookings:      make(map[int64]booking.Booking, len(s.bookings)),
		orders:        make(map[int64]payment.Order, len(s.orders)),
		nextBookingID: s.nextBookingID,
		nextOrderID:   s.nextOrderID,
	}
	for k, v := range s.halls {
		cp.halls[k] = v
	}
	for k, v := range s.bookings {
		cp.bookings[k] = v
	}
	for k, v := range s.orders {
		cp.orders[k] = v
	}
	return cp
}

// Store holds halls, bookings and payment orders. It implements
// db.Transactor; the repositories are reached through Halls, Bookings and
// Payments.
type Store struct {
	txMu sync.Mutex // held for a whole transaction and by writes outside one
	mu   sync.Mutex // guards the st pointer and reads of committed state
	st   *state

	// FailNextBookingUpdate, when set, makes the next booking update fail.
	// Tests use it to prove a transaction rolls back as a unit.
	FailNextBookingUpdate error
}

func New() *Store {
	return &Store{st: (&state{}).clone()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*state)
	return ok
}

// read returns the state a query should see: the transaction's working
// copy, or the committed state.
func (s *Store) read(ctx context.Context) (*state, func()) {
	if work, ok := ctx.Value(txKey{}).(*state); ok {
		return work, func() {}
	}
	s.mu.Lock()
	return s.st, s.mu.Unlock
}

// write is read for mutations. Outside a transaction it also takes txMu so
// an autocommit write is not lost when a running transaction commits.
func (s *Store) write(ctx context.Context) (*state, func()) {
	if work, ok := ctx.Value(txKey{}).(*state); ok {
		return work, func() {}
	}
	s.txMu.Lock()
	s.mu.Lock()
	return s.st, func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// AddHall inserts a hall, assigning an ID when h.ID is zero.
func (s *Store) AddHall(h hall.Hall) hall.Hall {
	st, done := s.write(context.Background())
	defer done()
	if h.ID == 0 {
		for id := range st.halls {
			h.ID = max(h.ID, id)
		}
		h.ID++
	}
	st.halls[h.ID] = h
	return h
}

// Booking returns the stored booking with the given id.
func (s *Store) Booking(id int64) (booking.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bookings[id]
	return b, ok
}

// Orders returns the stored payment orders of a booking, oldest first.
func (s *Store) Orders(bookingID int64) []payment.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payment.Order
	for _, o := range s.st.orders {
		if o.BookingID == bookingID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) takeFailure() error {
	err := s.FailNextBookingUpdate
	s.FailNextBookingUpdate = nil
	return err
}

func (s *Store) Halls() hall.Repository { return hallRepo{s} }

func (s *Store) Bookings() booking.Repository { return bookingRepo{s} }

func (s *Store) Payments() payment.Repository { return orderRepo{s} }

// Halls

type hallRepo struct{ s *Store }

func (r hallRepo) GetByID(ctx context.Context, id int64) (*hall.Hall, error) {
	st, done := r.s.read(ctx)
	defer done()
	h, ok := st.halls[id]
	if !ok {
		return nil, hall.ErrNotFound
	}
	return &h, nil
}

// Bookings

type bookingRepo struct{ s *Store }

func withHall(st *state, b booking.Booking) *booking.Booking {
	if h, ok := st.halls[b.HallID]; ok {
		b.HallName = h.Name
	}
	return &b
}

func (r bookingRepo) Create(ctx context.Context, b *booking.Booking) error {
	st, done := r.s.write(ctx)
	defer done()

	if _, ok := st.halls[b.HallID]; !ok {
		return fmt.Errorf("create booking failed: hall %d does not exist", b.HallID)
	}
	for _, other := range st.bookings {
		if other.Reference == b.Reference {
			return booking.ErrDuplicateReference
		}
		if b.Status.IsActive() && other.Status.IsActive() &&
			other.HallID == b.HallID && other.EventDate.Equal(b.EventDate) {
			return booking.ErrConflict.WithDetails(map[string]any{
				"conflicting_date": b.EventDate.Format(booking.DateLayout),
			})
		}
	}
	if b.TotalAmount != b.BasePrice+b.AdditionalCharges-b.Discount || b.TotalAmount < 0 {
		return fmt.Errorf("create booking failed: total amount does not add up")
	}

	st.nextBookingID++
	b.ID = st.nextBookingID
	st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) GetByID(ctx context.Context, id int64) (*booking.Booking, error) {
	st, done := r.s.read(ctx)
	defer done()
	b, ok := st.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return withHall(st, b), nil
}

func (r bookingRepo) GetByIDForUpdate(ctx context.Context, id int64) (*booking.Booking, error) {
	if !inTx(ctx) {
		return nil, errNoTx
	}
	return r.GetByID(ctx, id)
}

func (r bookingRepo) FindActive(ctx context.Context, hallID int64, date time.Time) (*booking.Booking, error) {
	st, done := r.s.read(ctx)
	defer done()
	for _, b := range st.bookings {
		if b.HallID == hallID && b.EventDate.Equal(date) && b.Status.IsActive() {
			return withHall(st, b), nil
		}
	}
	return nil, nil
}

func (r bookingRepo) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	st, done := r.s.read(ctx)
	defer done()

	var matched []booking.Booking
	for _, b := range st.bookings {
		if filter.CustomerID != 0 && b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.OwnerID != 0 && (b.OwnerID == nil || *b.OwnerID != filter.OwnerID) {
			continue
		}
		if filter.HallID != 0 && b.HallID != filter.HallID {
			continue
		}
		if filter.Status != "" && string(b.Status) != filter.Status {
			continue
		}
		matched = append(matched, b)
	}

	asc := filter.SortOrder == "asc"
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch filter.SortBy {
		case "event_date":
			less, equal = a.EventDate.Before(b.EventDate), a.EventDate.Equal(b.EventDate)
		case "total":
			less, equal = a.TotalAmount < b.TotalAmount, a.TotalAmount == b.TotalAmount
		case "status":
			less, equal = a.Status < b.Status, a.Status == b.Status
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			return a.ID > b.ID
		}
		if asc {
			return less
		}
		return !less
	})

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]*booking.Booking, 0, end-start)
	for _, b := range matched[start:end] {
		out = append(out, withHall(st, b))
	}
	return out, total, nil
}

func (r bookingRepo) Update(ctx context.Context, b *booking.Booking) error {
	st, done := r.s.write(ctx)
	defer done()

	if err := r.s.takeFailure(); err != nil {
		return err
	}
	cur, ok := st.bookings[b.ID]
	if !ok {
		return booking.ErrNotFound
	}
	if b.PaymentStatus == booking.PaymentPaid &&
		b.Status != booking.StatusConfirmed && b.Status != booking.StatusCompleted {
		return booking.ErrInvalidState.WithCause(errors.New("paid booking must be confirmed or completed"))
	}
	if b.Status == booking.StatusCancelled && (b.CancelledAt == nil || b.CancelledAt.Before(cur.CreatedAt)) {
		return booking.ErrInvalidState.WithCause(errors.New("cancelled booking needs a valid cancelled_at"))
	}

	cur.Status = b.Status
	cur.PaymentStatus = b.PaymentStatus
	cur.PaidAmount = b.PaidAmount
	cur.CancellationReason = b.CancellationReason
	cur.CancelledAt = b.CancelledAt
	cur.UpdatedAt = b.UpdatedAt
	st.bookings[b.ID] = cur
	return nil
}

func (r bookingRepo) ListCompletable(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	st, done := r.s.read(ctx)
	defer done()

	var due []booking.Booking
	for _, b := range st.bookings {
		if b.Status == booking.StatusConfirmed && b.EventDate.Before(before) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].EventDate.Equal(due[j].EventDate) {
			return due[i].ID < due[j].ID
		}
		return due[i].EventDate.Before(due[j].EventDate)
	})

	ids := make([]int64, 0, len(due))
	for _, b := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (r bookingRepo) OwnerStats(ctx context.Context, ownerID int64) (*booking.OwnerStats, error) {
	st, done := r.s.read(ctx)
	defer done()

	stats := &booking.OwnerStats{Counts: make(map[booking.Status]int)}
	for _, b := range st.bookings {
		if b.OwnerID == nil || *b.OwnerID != ownerID {
			continue
		}
		stats.Counts[b.Status]++
		if b.Status == booking.StatusConfirmed || b.Status == booking.StatusCompleted {
			stats.TotalRevenue += b.TotalAmount
			stats.AdvanceCollected += b.PaidAmount
		}
	}
	return stats, nil
}

// Payment orders

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, o *payment.Order) error {
	st, done := r.s.write(ctx)
	defer done()

	if _, ok := st.bookings[o.BookingID]; !ok {
		return fmt.Errorf("create payment order failed: booking %d does not exist", o.BookingID)
	}
	if o.Amount <= 0 {
		return fmt.Errorf("create payment order failed: amount must be positive")
	}
	for _, other := range st.orders {
		if other.GatewayOrderID == o.GatewayOrderID {
			return fmt.Errorf("create payment order failed: duplicate gateway order id %q", o.GatewayOrderID)
		}
		if o.Status == payment.OrderPending && other.Status == payment.OrderPending && other.BookingID == o.BookingID {
			return payment.ErrOrderInProgress
		}
	}

	st.nextOrderID++
	o.ID = st.nextOrderID
	st.orders[o.ID] = *o
	return nil
}

func (r orderRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Order, error) {
	st, done := r.s.read(ctx)
	defer done()
	for _, o := range st.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return &o, nil
		}
	}
	return nil, payment.ErrOrderNotFound
}

func (r orderRepo) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*payment.Order, error) {
	if !inTx(ctx) {
		return nil, errNoTx
	}
	return r.GetByGatewayOrderID(ctx, gatewayOrderID)
}

func (r orderRepo) FailPending(ctx context.Context, bookingID int64, reason string, now time.Time) (int, error) {
	st, done := r.s.write(ctx)
	defer done()

	n := 0
	for id, o := range st.orders {
		if o.BookingID != bookingID || o.Status != payment.OrderPending {
			continue
		}
		reason := reason
		o.Status = payment.OrderFailed
		o.FailureReason = &reason
		o.UpdatedAt = now
		st.orders[id] = o
		n++
	}
	return n, nil
}

func (r orderRepo) Update(ctx context.Context, o *payment.Order) error {
	st, done := r.s.write(ctx)
	defer done()

	cur, ok := st.orders[o.ID]
	if !ok {
		return payment.ErrOrderNotFound
	}
	cur.Status = o.Status
	cur.GatewayPaymentID = o.GatewayPaymentID
	cur.GatewayResponse = o.GatewayResponse
	cur.FailureReason = o.FailureReason
	cur.PaidAt = o.PaidAt
	cur.UpdatedAt = o.UpdatedAt
	st.orders[o.ID] = cur
	return nil
}

func (r orderRepo) List(ctx context.Context, filter payment.HistoryFilter) ([]*payment.Order, error) {
	st, done := r.s.read(ctx)
	defer done()

	var out []*payment.Order
	for _, o := range st.orders {
		b, ok := st.bookings[o.BookingID]
		if !ok || b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.BookingID != 0 && o.BookingID != filter.BookingID {
			continue
		}
		o.BookingReference = b.Reference
		if h, ok := st.halls[b.HallID]; ok {
			o.HallName = h.Name
		}
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
