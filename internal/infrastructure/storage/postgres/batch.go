package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// BatchInserter bulk loads rows with the COPY protocol.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice copies rows into table. Must run inside a transaction.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// MergeFromSlice copies rows into a temporary clone of table and inserts
// them into table, skipping rows that hit conflictTarget. COPY alone cannot
// skip duplicates. Returns the number of rows actually inserted.
func (b *BatchInserter) MergeFromSlice(
	ctx context.Context,
	table string,
	columns []string,
	conflictTarget []string,
	rows [][]any,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := b.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := b.txManager.GetQuerier(ctx)
		staging := "staging_" + table
		if _, err := q.Exec(ctx, fmt.Sprintf(
			"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pgx.Identifier{staging}.Sanitize(), pgx.Identifier{table}.Sanitize(),
		)); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		if _, err := b.CopyFromSlice(ctx, staging, columns, rows); err != nil {
			return fmt.Errorf("copy into %s: %w", staging, err)
		}

		cols := identifierList(columns)
		tag, err := q.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO NOTHING",
			pgx.Identifier{table}.Sanitize(), cols, cols,
			pgx.Identifier{staging}.Sanitize(), identifierList(conflictTarget),
		))
		if err != nil {
			return fmt.Errorf("merge into %s: %w", table, err)
		}
		inserted = tag.RowsAffected()
		return nil
	})
	return inserted, err
}

func identifierList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgx.Identifier{n}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
