package repository

import (
	"context"
	"database/sql"
	"fmt"

	"badger/bakery-api/internal/model"
)

// Dialect describes the differences between database/sql backends.
type Dialect struct {
	Name      string
	Returning bool
}

var (
	SQLite = Dialect{Name: "sqlite", Returning: true}
	MySQL  = Dialect{Name: "mysql", Returning: false}
)

// SQLOrderRepository stores orders through database/sql (SQLite or MySQL).
type SQLOrderRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLOrderRepository(db *sql.DB, dialect Dialect) *SQLOrderRepository {
	return &SQLOrderRepository{db: db, dialect: dialect}
}

func (r *SQLOrderRepository) ApplySchema(ctx context.Context, script string) error {
	return applyStatements(ctx, script, func(ctx context.Context, stmt string) error {
		_, err := r.db.ExecContext(ctx, stmt)
		return err
	})
}

func (r *SQLOrderRepository) Insert(ctx context.Context, order model.ValidatedOrder) (model.Receipt, error) {
	q := order.Quantities
	args := []any{order.Username, q[0], q[1], q[2], q[3], q[4]}

	if r.dialect.Returning {
		var receipt model.Receipt
		var placedOn dbTime
		err := r.db.QueryRowContext(ctx, insertQuery(questionPlaceholder)+returningSQL, args...).Scan(&receipt.ID, &placedOn)
		if err != nil {
			return model.Receipt{}, fmt.Errorf("failed to create order: %w", err)
		}
		receipt.PlacedOn = placedOn.Time
		return receipt, nil
	}

	return r.insertThenSelect(ctx, args)
}

// insertThenSelect covers backends without RETURNING: the generated id and
// the default timestamp are read back inside one transaction.
func (r *SQLOrderRepository) insertThenSelect(ctx context.Context, args []any) (model.Receipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertQuery(questionPlaceholder), args...)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to create order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to read order id: %w", err)
	}

	var placedOn dbTime
	if err := tx.QueryRowContext(ctx, placedOnSQL, id).Scan(&placedOn); err != nil {
		return model.Receipt{}, fmt.Errorf("failed to read order timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return model.Receipt{ID: id, PlacedOn: placedOn.Time}, nil
}

func (r *SQLOrderRepository) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, listQuery(questionPlaceholder), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var placedOn dbTime
		if err := rows.Scan(&o.ID, &o.Username, &o.NumMuffin, &o.NumDonut, &o.NumPie, &o.NumCupcake, &o.NumCroissant, &placedOn); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.PlacedOn = placedOn.Time
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
