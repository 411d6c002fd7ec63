package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recordshop/internal/core/tx"
	"recordshop/pkg/logger"
)

var tracer = otel.Tracer("recordshop/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures a top-level transaction. Nested calls join the
// outer transaction and ignore their options.
type TxOptions struct {
	IsolationLevel   pgx.TxIsoLevel
	AccessMode       pgx.TxAccessMode
	StatementTimeout time.Duration // 0 keeps the server default
}

// DefaultTxOptions returns production-safe defaults.
//
// READ COMMITTED is enough for order placement: the stock guard lives in
// the UPDATE's WHERE clause, which Postgres re-evaluates against the latest
// committed row after waiting on a concurrent writer.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// SnapshotTxOptions runs several reads against one snapshot.
func SnapshotTxOptions() TxOptions {
	opts := DefaultTxOptions()
	opts.IsolationLevel = pgx.RepeatableRead
	opts.AccessMode = pgx.ReadOnly
	return opts
}

// TxManager runs functions inside a transaction carried by the context.
// Repositories reach it through GetQuerier, so the same code runs inside
// and outside a transaction.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx is the transaction stored in the context.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a transaction, joining the one in ctx
// if there is one.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, DefaultTxOptions(), fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
			attribute.String("tx.access", string(opts.AccessMode)),
		))
	defer span.End()

	span.SetAttributes(attribute.Bool("tx.joined", m.GetTx(ctx) != nil))

	var err error
	if m.GetTx(ctx) != nil {
		err = fn(ctx)
	} else {
		err = m.begin(ctx, opts, fn)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction aborted")
	}
	return err
}

func (m *TxManager) begin(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(context.Background())
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: tx})
	if err := m.run(txCtx, tx, fn); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		// pgx rolls back on a failed commit; the rollback below only covers
		// a cancelled ctx that never reached the server.
		_ = tx.Rollback(context.Background())
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// run calls fn and rolls tx back when fn fails or panics.
func (m *TxManager) run(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.Background())
			panic(p)
		}
	}()

	err = fn(ctx)
	if err != nil {
		// Background context: the rollback must complete even if ctx was cancelled.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return nil
}

// Querier is implemented by both the pool and a transaction, so
// repositories work inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns appropriate querier for context.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx.Tx
	}
	return m.pool
}

// Snapshot executes fn in a read-only repeatable-read transaction.
func (m *TxManager) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, SnapshotTxOptions(), fn)
}
