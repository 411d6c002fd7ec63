package records

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/core/tx"
	"recordshop/internal/domain/audit"
	"recordshop/internal/domain/events"
	"recordshop/internal/domain/pagination"
	"recordshop/pkg/logger"
)

const entityName = "record"

var tracer = otel.Tracer("recordshop/records")

// Metrics receives search observations. A nil Metrics is allowed.
type Metrics interface {
	ObserveSearch(cached bool, d time.Duration)
}

// Service provides catalog operations.
type Service struct {
	repo      Repository
	txManager tx.Manager
	fetcher   TrackListFetcher
	cache     SearchCache
	events    events.Publisher
	audit     audit.Log
	metrics   Metrics
}

// ServiceConfig configures the catalog service. Fetcher, Cache, Events,
// Audit and Metrics are optional.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	Fetcher   TrackListFetcher
	Cache     SearchCache
	Events    events.Publisher
	Audit     audit.Log
	Metrics   Metrics
}

// NewService creates a new catalog service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		events:    cfg.Events,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
	}
	if s.fetcher == nil {
		s.fetcher = noopFetcher{}
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	return s
}

// Create validates, enriches and stores a new record.
func (s *Service) Create(ctx context.Context, r *Record) (*Record, error) {
	r.Normalize()
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByKey(ctx, r.Key())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("check record key: %w", err))
	}
	if exists {
		return nil, apperror.NewAlreadyExists(entityName, r.Key().Details())
	}

	// Enrichment talks to a remote service; keep it out of the transaction.
	r.TrackList = s.fetcher.FetchTrackList(ctx, r.MBID)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}
		if err := s.logChange(ctx, r.ID, audit.ActionCreate, audit.Diff(nil, r.Snapshot())); err != nil {
			return err
		}
		return s.publish(ctx, events.RecordCreated, r)
	})
	if err != nil {
		return nil, s.normalizeWriteErr(err, r.ID)
	}

	s.cache.Invalidate(ctx)
	logger.Info(ctx, "record created", "record_id", r.ID, "artist", r.Artist, "album", r.Album, "format", r.Format)
	return r, nil
}

// Get returns one record by its textual id.
func (s *Service) Get(ctx context.Context, rawID string) (*Record, error) {
	recordID, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	r, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.normalizeGetErr(err, rawID)
	}
	return r, nil
}

// Update applies a partial update to the record identified by rawID.
// A changed external id triggers a new track list lookup.
func (s *Service) Update(ctx context.Context, rawID string, patch Patch) (*Record, error) {
	recordID, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, s.normalizeGetErr(err, rawID)
	}

	if patch.IsEmpty() {
		return nil, apperror.NewUpdateFailed(entityName, rawID).WithDetail("reason", "no changes")
	}

	updated := current.Clone()
	mbidChanged := patch.MBIDChanged(current)
	columns := patch.Apply(updated)
	if err := updated.Validate(ctx); err != nil {
		return nil, err
	}

	if updated.Key() != current.Key() {
		exists, err := s.repo.ExistsByKey(ctx, updated.Key())
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("check record key: %w", err))
		}
		if exists {
			return nil, apperror.NewAlreadyExists(entityName, updated.Key().Details())
		}
	}

	if mbidChanged {
		updated.TrackList = s.fetcher.FetchTrackList(ctx, updated.MBID)
		columns = append(columns, FieldTrackList)
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, updated, columns); err != nil {
			return err
		}
		updated.Touch()
		changes := audit.Diff(current.Snapshot(), updated.Snapshot())
		if err := s.logChange(ctx, updated.ID, audit.ActionUpdate, changes); err != nil {
			return err
		}
		return s.publish(ctx, events.RecordUpdated, updated)
	})
	if err != nil {
		return nil, s.normalizeWriteErr(err, updated.ID)
	}

	s.cache.Invalidate(ctx)
	logger.Info(ctx, "record updated", "record_id", updated.ID, "columns", columns, "version", updated.Version)
	return updated, nil
}

// Search returns one page of records matching f.
func (s *Service) Search(ctx context.Context, f SearchFilter) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "records.Search")
	defer span.End()

	started := time.Now()
	req := pagination.NewRequest(f.Page, f.Limit)
	f.Page, f.Limit = req.Page, req.Limit

	if cached, ok := s.cache.Get(ctx, f); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		s.observe(true, started)
		return cached, nil
	}

	pred, sort := BuildQuery(f)
	items, total, err := s.repo.Search(ctx, pred, sort, req.Limit, req.Skip())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, apperror.NewInternal(fmt.Errorf("search records: %w", err))
	}
	if items == nil {
		items = []*Record{}
	}

	res := &SearchResult{
		Page:    pagination.Calculate(total, req),
		Records: items,
	}
	span.SetAttributes(attribute.Int64("search.total", total), attribute.Int("search.page", req.Page))

	s.cache.Set(ctx, f, res)
	s.observe(false, started)
	return res, nil
}

// History returns the most recent audit entries of a record.
func (s *Service) History(ctx context.Context, rawID string, limit int) ([]audit.Entry, error) {
	recordID, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.audit.GetEntityHistory(ctx, entityName, recordID, limit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("record history: %w", err))
	}
	return entries, nil
}

func (s *Service) logChange(ctx context.Context, recordID id.ID, action audit.Action, changes map[string]any) error {
	if s.audit == nil || len(changes) == 0 {
		return nil
	}
	if err := s.audit.LogChange(ctx, entityName, recordID, action, changes); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, r *Record) error {
	if s.events == nil {
		return nil
	}
	err := s.events.Publish(ctx, events.Event{
		AggregateType: events.AggregateRecord,
		AggregateID:   r.ID,
		EventType:     eventType,
		Payload: events.RecordChangedPayload{
			RecordID: r.ID,
			Version:  r.Version,
			Artist:   r.Artist,
			Album:    r.Album,
			Format:   string(r.Format),
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) observe(cached bool, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSearch(cached, time.Since(started))
	}
}

func (s *Service) normalizeGetErr(err error, rawID string) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(entityName, rawID)
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", entityName).WithDetail("id", rawID)
}

func (s *Service) normalizeWriteErr(err error, recordID id.ID) error {
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", entityName).WithDetail("id", recordID.String())
}

func parseID(raw string) (id.ID, error) {
	recordID, err := id.Parse(raw)
	if err != nil || id.IsNil(recordID) {
		return id.ID{}, apperror.NewInvalidIdentifier(entityName, raw)
	}
	return recordID, nil
}
