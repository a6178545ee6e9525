package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Malathy2002/hall-booking-website/internal/db"
)

// ErrDuplicateReference is returned by Create when the generated booking
// reference collides with an existing one. Callers regenerate and retry.
var ErrDuplicateReference = errors.New("booking reference already exists")

const (
	activeSlotConstraint = "bookings_active_slot_uniq"
	referenceConstraint  = "bookings_reference_key"
)

type Repository interface {
	// Create inserts b and fills its ID. It returns ErrConflict when another
	// active booking already holds the hall for the date.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	// GetByIDForUpdate reads and row-locks the booking until the surrounding
	// transaction ends. It must be called inside Transactor.WithinTx.
	GetByIDForUpdate(ctx context.Context, id int64) (*Booking, error)
	// FindActive returns the pending or confirmed booking for the hall and
	// date, or nil when the slot is free.
	FindActive(ctx context.Context, hallID int64, date time.Time) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Update(ctx context.Context, b *Booking) error
	// ListCompletable returns confirmed bookings whose event date is before the given date.
	ListCompletable(ctx context.Context, before time.Time, limit int) ([]int64, error)
	OwnerStats(ctx context.Context, ownerID int64) (*OwnerStats, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var selectColumns = []string{
	"b.id", "b.booking_reference", "b.hall_id", "COALESCE(h.name, '')", "b.customer_id", "b.owner_id",
	"b.event_date", "to_char(b.start_time, 'HH24:MI')", "to_char(b.end_time, 'HH24:MI')",
	"b.event_type", "b.guests_count",
	"b.base_price", "b.additional_charges", "b.discount", "b.total_amount", "b.advance_amount", "b.paid_amount",
	"b.payment_method", "b.booking_status", "b.payment_status",
	"b.special_requests", "b.cancellation_reason", "b.cancelled_at", "b.created_at", "b.updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner, extra ...any) (*Booking, error) {
	var b Booking
	dest := []any{
		&b.ID, &b.Reference, &b.HallID, &b.HallName, &b.CustomerID, &b.OwnerID,
		&b.EventDate, &b.StartTime, &b.EndTime,
		&b.EventType, &b.GuestsCount,
		&b.BasePrice, &b.AdditionalCharges, &b.Discount, &b.TotalAmount, &b.AdvanceAmount, &b.PaidAmount,
		&b.PaymentMethod, &b.Status, &b.PaymentStatus,
		&b.SpecialRequests, &b.CancellationReason, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &b, nil
}

func baseSelect() squirrel.SelectBuilder {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(selectColumns...).
		From("public.bookings b").
		LeftJoin("public.halls h ON b.hall_id = h.id")
}

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.bookings").
		Columns(
			"booking_reference", "hall_id", "customer_id", "owner_id",
			"event_date", "start_time", "end_time", "event_type", "guests_count",
			"base_price", "additional_charges", "discount", "total_amount", "advance_amount", "paid_amount",
			"payment_method", "booking_status", "payment_status", "special_requests",
			"created_at", "updated_at",
		).
		Values(
			b.Reference, b.HallID, b.CustomerID, b.OwnerID,
			b.EventDate, b.StartTime, b.EndTime, b.EventType, b.GuestsCount,
			b.BasePrice, b.AdditionalCharges, b.Discount, b.TotalAmount, b.AdvanceAmount, b.PaidAmount,
			b.PaymentMethod, b.Status, b.PaymentStatus, b.SpecialRequests,
			b.CreatedAt, b.UpdatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&b.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case activeSlotConstraint:
				return ErrConflict.WithDetails(map[string]any{
					"conflicting_date": b.EventDate.Format(DateLayout),
				})
			case referenceConstraint:
				return ErrDuplicateReference
			}
		}
		return fmt.Errorf("create booking failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id int64) (*Booking, error) {
	return r.getByID(ctx, id, false)
}

func (r *pgxRepository) GetByIDForUpdate(ctx context.Context, id int64) (*Booking, error) {
	if !db.InTx(ctx) {
		return nil, errors.New("GetByIDForUpdate called outside a transaction")
	}
	return r.getByID(ctx, id, true)
}

func (r *pgxRepository) getByID(ctx context.Context, id int64, lock bool) (*Booking, error) {
	q := baseSelect().Where(squirrel.Eq{"b.id": id})
	if lock {
		q = q.Suffix("FOR UPDATE OF b")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) FindActive(ctx context.Context, hallID int64, date time.Time) (*Booking, error) {
	query, args, err := baseSelect().
		Where(squirrel.Eq{"b.hall_id": hallID}).
		Where(squirrel.Eq{"b.event_date": date}).
		Where(squirrel.Eq{"b.booking_status": ActiveStatuses}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find active booking query failed: %w", err)
	}

	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active booking failed: %w", err)
	}
	return b, nil
}

var sortColumns = map[string]string{
	"event_date": "b.event_date",
	"created_at": "b.created_at",
	"status":     "b.booking_status",
	"total":      "b.total_amount",
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	query := baseSelect().Column("count(*) OVER() as total_count")

	if filter.CustomerID != 0 {
		query = query.Where(squirrel.Eq{"b.customer_id": filter.CustomerID})
	}
	if filter.OwnerID != 0 {
		query = query.Where(squirrel.Eq{"b.owner_id": filter.OwnerID})
	}
	if filter.HallID != 0 {
		query = query.Where(squirrel.Eq{"b.hall_id": filter.HallID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"b.booking_status": filter.Status})
	}

	// Sorting
	orderBy := "b.created_at"
	if col, ok := sortColumns[filter.SortBy]; ok {
		orderBy = col
	}
	orderDir := "DESC"
	if filter.SortOrder == "asc" {
		orderDir = "ASC"
	}
	query = query.OrderBy(orderBy+" "+orderDir, "b.id DESC")

	// Pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		b, err := scanBooking(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate bookings failed: %w", err)
	}

	return bookings, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("booking_status", b.Status).
		Set("payment_status", b.PaymentStatus).
		Set("paid_amount", b.PaidAmount).
		Set("cancellation_reason", b.CancellationReason).
		Set("cancelled_at", b.CancelledAt).
		Set("updated_at", b.UpdatedAt).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}

	ct, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return ErrInvalidState.WithCause(err)
		}
		return fmt.Errorf("update booking failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ListCompletable(ctx context.Context, before time.Time, limit int) ([]int64, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("id").
		From("public.bookings").
		Where(squirrel.Eq{"booking_status": StatusConfirmed}).
		Where(squirrel.Lt{"event_date": before}).
		OrderBy("event_date ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list completable query failed: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completable bookings failed: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan completable bookings failed: %w", err)
	}
	return ids, nil
}

func (r *pgxRepository) OwnerStats(ctx context.Context, ownerID int64) (*OwnerStats, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"booking_status", "count(*)", "COALESCE(SUM(total_amount), 0)", "COALESCE(SUM(paid_amount), 0)",
	).
		From("public.bookings").
		Where(squirrel.Eq{"owner_id": ownerID}).
		GroupBy("booking_status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build owner stats query failed: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("owner stats failed: %w", err)
	}
	defer rows.Close()

	stats := &OwnerStats{Counts: make(map[Status]int)}
	for rows.Next() {
		var (
			status      Status
			count       int
			total, paid int64
		)
		if err := rows.Scan(&status, &count, &total, &paid); err != nil {
			return nil, fmt.Errorf("scan owner stats failed: %w", err)
		}
		stats.Counts[status] = count
		if status == StatusConfirmed || status == StatusCompleted {
			stats.TotalRevenue += total
			stats.AdvanceCollected += paid
		}
	}
	return stats, rows.Err()
}
