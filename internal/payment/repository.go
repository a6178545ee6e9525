package payment

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

const onePendingConstraint = "payment_orders_one_pending_uniq"

type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetByGatewayOrderID reads an order without locking it.
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	// GetByGatewayOrderIDForUpdate row-locks the order until the surrounding
	// transaction ends.
	GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*Order, error)
	// FailPending marks every pending order of the booking failed and returns
	// how many changed.
	FailPending(ctx context.Context, bookingID int64, reason string, now time.Time) (int, error)
	Update(ctx context.Context, o *Order) error
	List(ctx context.Context, filter HistoryFilter) ([]*Order, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var orderColumns = []string{
	"p.id", "p.booking_id", "p.gateway_order_id", "p.amount", "p.currency", "p.payment_method",
	"p.status", "p.gateway_payment_id", "p.gateway_response", "p.failure_reason", "p.paid_at",
	"p.created_at", "p.updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, extra ...any) (*Order, error) {
	var o Order
	var raw []byte
	dest := []any{
		&o.ID, &o.BookingID, &o.GatewayOrderID, &o.Amount, &o.Currency, &o.PaymentMethod,
		&o.Status, &o.GatewayPaymentID, &raw, &o.FailureReason, &o.PaidAt,
		&o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		o.GatewayResponse = raw
	}
	return &o, nil
}

// jsonb returns nil for an empty payload so the column stays NULL.
func jsonb(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *pgxRepository) Create(ctx context.Context, o *Order) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.payment_orders").
		Columns(
			"booking_id", "gateway_order_id", "amount", "currency", "payment_method",
			"status", "gateway_response", "created_at", "updated_at",
		).
		Values(
			o.BookingID, o.GatewayOrderID, o.Amount, o.Currency, o.PaymentMethod,
			o.Status, jsonb(o.GatewayResponse), o.CreatedAt, o.UpdatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create payment order query failed: %w", err)
	}

	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&o.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation &&
			pgErr.ConstraintName == onePendingConstraint {
			return ErrOrderInProgress
		}
		return fmt.Errorf("create payment order failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	return r.getByGatewayOrderID(ctx, gatewayOrderID, false)
}

func (r *pgxRepository) GetByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*Order, error) {
	if !db.InTx(ctx) {
		return nil, errors.New("GetByGatewayOrderIDForUpdate called outside a transaction")
	}
	return r.getByGatewayOrderID(ctx, gatewayOrderID, true)
}

func (r *pgxRepository) getByGatewayOrderID(ctx context.Context, gatewayOrderID string, lock bool) (*Order, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	q := psql.Select(orderColumns...).
		From("public.payment_orders p").
		Where(squirrel.Eq{"p.gateway_order_id": gatewayOrderID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get payment order query failed: %w", err)
	}

	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get payment order failed: %w", err)
	}
	return o, nil
}

func (r *pgxRepository) FailPending(ctx context.Context, bookingID int64, reason string, now time.Time) (int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.payment_orders").
		Set("status", OrderFailed).
		Set("failure_reason", reason).
		Set("updated_at", now).
		Where(squirrel.Eq{"booking_id": bookingID, "status": OrderPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build fail pending orders query failed: %w", err)
	}

	ct, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("fail pending orders failed: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (r *pgxRepository) Update(ctx context.Context, o *Order) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.payment_orders").
		Set("status", o.Status).
		Set("gateway_payment_id", o.GatewayPaymentID).
		Set("gateway_response", jsonb(o.GatewayResponse)).
		Set("failure_reason", o.FailureReason).
		Set("paid_at", o.PaidAt).
		Set("updated_at", o.UpdatedAt).
		Where(squirrel.Eq{"id": o.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update payment order query failed: %w", err)
	}

	ct, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update payment order failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *pgxRepository) List(ctx context.Context, filter HistoryFilter) ([]*Order, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	q := psql.Select(orderColumns...).
		Columns("b.booking_reference", "COALESCE(h.name, '')").
		From("public.payment_orders p").
		Join("public.bookings b ON p.booking_id = b.id").
		LeftJoin("public.halls h ON b.hall_id = h.id").
		Where(squirrel.Eq{"b.customer_id": filter.CustomerID})
	if filter.BookingID != 0 {
		q = q.Where(squirrel.Eq{"p.booking_id": filter.BookingID})
	}
	query, args, err := q.OrderBy("COALESCE(p.paid_at, p.created_at) DESC", "p.id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payment history query failed: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payment history failed: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var ref, hallName string
		o, err := scanOrder(rows, &ref, &hallName)
		if err != nil {
			return nil, fmt.Errorf("scan payment order failed: %w", err)
		}
		o.BookingReference = ref
		o.HallName = hallName
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment orders failed: %w", err)
	}
	return orders, nil
}
