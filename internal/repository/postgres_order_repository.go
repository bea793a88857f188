package repository

import (
	"context"
	"fmt"

	"badger/bakery-api/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxExecutor is an interface that matches both *pgx.Conn/Pool and pgx.Tx
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresOrderRepository struct {
	db PgxExecutor
}

func NewPostgresOrderRepository(db PgxExecutor) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// ApplySchema runs the init script statement by statement.
func (r *PostgresOrderRepository) ApplySchema(ctx context.Context, script string) error {
	return applyStatements(ctx, script, func(ctx context.Context, stmt string) error {
		_, err := r.db.Exec(ctx, stmt)
		return err
	})
}

// Insert stores a new order; id and placedOn come from the database
func (r *PostgresOrderRepository) Insert(ctx context.Context, order model.ValidatedOrder) (model.Receipt, error) {
	q := order.Quantities
	var receipt model.Receipt
	err := r.db.QueryRow(ctx, insertQuery(dollarPlaceholder)+returningSQL,
		order.Username, q[0], q[1], q[2], q[3], q[4],
	).Scan(&receipt.ID, &receipt.PlacedOn)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to create order: %w", err)
	}
	return receipt, nil
}

// ListRecent returns up to limit orders, newest first
func (r *PostgresOrderRepository) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.db.Query(ctx, listQuery(dollarPlaceholder), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Order])
	if err != nil {
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return orders, nil
}
