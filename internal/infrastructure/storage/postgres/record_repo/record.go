// Package record_repo provides the PostgreSQL implementation of the record
// catalog.
package record_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/domain/filter"
	"recordshop/internal/domain/records"
	"recordshop/internal/infrastructure/storage/postgres"
)

const tableName = "records"

// updatableColumns are the columns a patch may touch.
var updatableColumns = map[string]bool{
	records.FieldArtist:    true,
	records.FieldAlbum:     true,
	records.FieldPrice:     true,
	records.FieldQty:       true,
	records.FieldFormat:    true,
	records.FieldCategory:  true,
	records.FieldMBID:      true,
	records.FieldTrackList: true,
}

// RecordRepo stores records in the records table.
type RecordRepo struct {
	txManager  *postgres.TxManager
	selectCols []string
}

var _ records.Repository = (*RecordRepo)(nil)

// NewRecordRepo creates a new record repository.
func NewRecordRepo(txManager *postgres.TxManager) *RecordRepo {
	return &RecordRepo{
		txManager:  txManager,
		selectCols: postgres.ExtractDBColumns[records.Record](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *RecordRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *RecordRepo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(tableName)
}

// Create inserts a new record using its "db" tags.
func (r *RecordRepo) Create(ctx context.Context, rec *records.Record) error {
	data := postgres.StructToMap(rec)

	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	sql, args, err := r.Builder().
		Insert(tableName).
		SetMap(filteredData).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if appErr := postgres.ConstraintError(err, "record", rec.Key().Details()); appErr != nil {
			return appErr
		}
		return fmt.Errorf("insert %s: %w", tableName, err)
	}
	return nil
}

// GetByID retrieves a record by id.
func (r *RecordRepo) GetByID(ctx context.Context, recordID id.ID) (*records.Record, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"id": recordID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec records.Record
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("record", recordID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	normalizeScanned(&rec)
	return &rec, nil
}

// ExistsByKey checks whether a record with the same artist, album and
// format exists.
func (r *RecordRepo) ExistsByKey(ctx context.Context, key records.Key) (bool, error) {
	sql, args, err := r.Builder().
		Select("1").
		From(tableName).
		Where(squirrel.Eq{
			records.FieldArtist: key.Artist,
			records.FieldAlbum:  key.Album,
			records.FieldFormat: string(key.Format),
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists by key: %w", err)
	}
	return true, nil
}

// Update writes the given columns of rec with optimistic locking on
// rec.Version. Zero affected rows is UpdateFailed.
func (r *RecordRepo) Update(ctx context.Context, rec *records.Record, columns []string) error {
	q, err := r.buildUpdate(rec, columns, time.Now().UTC())
	if err != nil {
		return err
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if appErr := postgres.ConstraintError(err, "record", rec.Key().Details()); appErr != nil {
			return appErr
		}
		return fmt.Errorf("update %s: %w", tableName, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewUpdateFailed("record", rec.ID.String()).
			WithDetail("expected_version", rec.Version)
	}
	return nil
}

func (r *RecordRepo) buildUpdate(rec *records.Record, columns []string, now time.Time) (squirrel.UpdateBuilder, error) {
	data := postgres.StructToMap(rec)

	q := r.Builder().Update(tableName)
	for _, col := range columns {
		if !updatableColumns[col] {
			return q, fmt.Errorf("column %q is not updatable", col)
		}
		q = q.Set(col, data[col])
	}

	return q.
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": rec.ID}).
		Where(squirrel.Eq{"version": rec.Version}), nil
}

// Search returns one page of records matching pred and the total number of
// matches, both read from the same snapshot.
func (r *RecordRepo) Search(ctx context.Context, pred filter.Predicate, order filter.Sort, limit, skip int) ([]*records.Record, int64, error) {
	countQ, pageQ, err := r.buildSearch(pred, order, limit, skip)
	if err != nil {
		return nil, 0, err
	}

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	pageSQL, pageArgs, err := pageQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var (
		total int64
		items []*records.Record
	)
	err = r.txManager.Snapshot(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)
		if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if total == 0 || int64(skip) >= total {
			return nil
		}
		if err := pgxscan.Select(ctx, querier, &items, pageSQL, pageArgs...); err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if items == nil {
		items = []*records.Record{}
	}
	for _, rec := range items {
		normalizeScanned(rec)
	}
	return items, total, nil
}

func (r *RecordRepo) buildSearch(pred filter.Predicate, order filter.Sort, limit, skip int) (squirrel.SelectBuilder, squirrel.SelectBuilder, error) {
	q, err := applyPredicate(r.baseSelect(), pred)
	if err != nil {
		return q, q, err
	}

	countQ := r.Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	pageQ, err := applySort(q, order)
	if err != nil {
		return countQ, q, err
	}
	if limit > 0 {
		pageQ = pageQ.Limit(uint64(limit))
	}
	if skip > 0 {
		pageQ = pageQ.Offset(uint64(skip))
	}
	return countQ, pageQ, nil
}

// DecrementStock subtracts qty from the record's stock if, at write time,
// at least qty is on hand. ok is false when the guard did not match.
// The version moves too, so a catalog update that read the old stock fails
// its version check instead of overwriting the decrement.
func (r *RecordRepo) DecrementStock(ctx context.Context, recordID id.ID, qty int64) (int64, bool, error) {
	sql, args, err := r.Builder().
		Update(tableName).
		Set(records.FieldQty, squirrel.Expr("qty - ?", qty)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": recordID}).
		Where(squirrel.GtOrEq{records.FieldQty: qty}).
		Suffix("RETURNING qty").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build decrement: %w", err)
	}

	var remaining int64
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, true, nil
}

// normalizeScanned maps SQL NULL arrays to an empty track list.
func normalizeScanned(rec *records.Record) {
	if rec.TrackList == nil {
		rec.TrackList = []string{}
	}
}
