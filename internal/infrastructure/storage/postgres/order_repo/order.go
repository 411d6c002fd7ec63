// Package order_repo provides the PostgreSQL order ledger.
package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/domain/orders"
	"recordshop/internal/infrastructure/storage/postgres"
)

const tableName = "orders"

// OrderRepo is the append-only orders table.
type OrderRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

var _ orders.Ledger = (*OrderRepo)(nil)

// NewOrderRepo creates a new order repository.
func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[orders.Order](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *OrderRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Insert implements orders.Ledger.
func (r *OrderRepo) Insert(ctx context.Context, o *orders.Order) error {
	sql, args, err := r.Builder().
		Insert(tableName).
		SetMap(postgres.StructToMap(o)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("record", o.RecordID.String()).WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

// GetByID implements orders.Ledger.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	sql, args, err := r.Builder().
		Select(r.selectCols...).
		From(tableName).
		Where(squirrel.Eq{"id": orderID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o orders.Order
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// ListByRecord implements orders.Ledger. Oldest first.
func (r *OrderRepo) ListByRecord(ctx context.Context, recordID id.ID) ([]*orders.Order, error) {
	sql, args, err := r.Builder().
		Select(r.selectCols...).
		From(tableName).
		Where(squirrel.Eq{"record_id": recordID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out := []*orders.Order{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}
