package hall

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Malathy2002/hall-booking-website/internal/db"
)

// Repository is a read-only view of the hall catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Hall, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) GetByID(ctx context.Context, id int64) (*Hall, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "owner_id", "name", "base_price", "per_guest_charge", "capacity", "is_active",
	).
		From("public.halls").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get hall query failed: %w", err)
	}

	var h Hall
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&h.ID, &h.OwnerID, &h.Name, &h.BasePrice, &h.PerGuestCharge, &h.Capacity, &h.IsActive,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get hall failed: %w", err)
	}
	return &h, nil
}
