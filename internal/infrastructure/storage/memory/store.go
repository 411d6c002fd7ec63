// Package memory is an in-process implementation of the catalog store, the
// order ledger, the outbox and the audit log, behind the same contracts as
// the Postgres store.
//
// Transactions keep an undo log and roll back by replaying it in reverse.
// Writes are visible to other transactions before commit; the guarded stock
// decrement is still atomic, which is all the order path relies on.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/domain/audit"
	"recordshop/internal/domain/events"
	"recordshop/internal/domain/filter"
	"recordshop/internal/domain/orders"
	"recordshop/internal/domain/records"
)

// Operation names accepted by FailOn.
const (
	OpDecrement   = "decrement"
	OpInsertOrder = "insert_order"
	OpPublish     = "publish"
	OpCommit      = "commit"
	OpSearch      = "search"
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	records   map[id.ID]*records.Record
	recordSeq []id.ID

	orders   map[id.ID]*orders.Order
	orderSeq []id.ID

	events   []storedEvent
	eventSeq uint64
	audit    []audit.Entry

	failures map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:  make(map[id.ID]*records.Record),
		orders:   make(map[id.ID]*orders.Order),
		failures: make(map[string]error),
	}
}

var (
	_ records.Repository = (*Store)(nil)
	_ events.Publisher   = (*Store)(nil)
	_ audit.Log          = (*Store)(nil)
)

// FailOn makes the next call of op return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// takeFailure must be called with s.mu held.
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// --- transactions ---

type txKey struct{}

type txState struct {
	undo []func()
}

// RunInTransaction implements tx.Manager.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	st := &txState{}
	ctx = context.WithValue(ctx, txKey{}, st)

	defer func() {
		if p := recover(); p != nil {
			s.rollback(st)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		s.rollback(st)
		return err
	}

	s.mu.Lock()
	commitErr := s.takeFailure(OpCommit)
	s.mu.Unlock()
	if commitErr == nil {
		commitErr = ctx.Err()
	}
	if commitErr != nil {
		s.rollback(st)
		return commitErr
	}
	return nil
}

func (s *Store) rollback(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	st.undo = nil
}

// onRollback must be called with s.mu held.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		st.undo = append(st.undo, undo)
	}
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// --- records.Repository ---

// Create implements records.Repository.
func (s *Store) Create(ctx context.Context, r *records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyTaken(r.Key(), r.ID) {
		return apperror.NewAlreadyExists("record", r.Key().Details())
	}

	s.records[r.ID] = r.Clone()
	s.recordSeq = append(s.recordSeq, r.ID)

	recordID := r.ID
	s.onRollback(ctx, func() {
		delete(s.records, recordID)
		s.recordSeq = removeID(s.recordSeq, recordID)
	})
	return nil
}

// GetByID implements records.Repository.
func (s *Store) GetByID(_ context.Context, recordID id.ID) (*records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordID]
	if !ok {
		return nil, apperror.NewNotFound("record", recordID.String())
	}
	return r.Clone(), nil
}

// ExistsByKey implements records.Repository.
func (s *Store) ExistsByKey(_ context.Context, key records.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyTaken(key, id.ID{}), nil
}

func (s *Store) keyTaken(key records.Key, except id.ID) bool {
	for recordID, r := range s.records {
		if recordID != except && r.Key() == key {
			return true
		}
	}
	return false
}

// Update implements records.Repository.
func (s *Store) Update(ctx context.Context, r *records.Record, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[r.ID]
	if !ok || stored.Version != r.Version {
		return apperror.NewUpdateFailed("record", r.ID.String())
	}
	if s.keyTaken(r.Key(), r.ID) {
		return apperror.NewAlreadyExists("record", r.Key().Details())
	}

	before := stored.Clone()
	next := stored.Clone()
	copyColumns(next, r, columns)
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	s.records[r.ID] = next

	s.onRollback(ctx, func() {
		if cur, ok := s.records[before.ID]; ok {
			copyColumns(cur, before, columns)
			cur.Version = before.Version
			cur.UpdatedAt = before.UpdatedAt
		}
	})
	return nil
}

func copyColumns(dst, src *records.Record, columns []string) {
	for _, col := range columns {
		switch col {
		case records.FieldArtist:
			dst.Artist = src.Artist
		case records.FieldAlbum:
			dst.Album = src.Album
		case records.FieldPrice:
			dst.Price = src.Price
		case records.FieldQty:
			dst.Qty = src.Qty
		case records.FieldFormat:
			dst.Format = src.Format
		case records.FieldCategory:
			dst.Category = src.Category
		case records.FieldMBID:
			dst.MBID = src.Clone().MBID
		case records.FieldTrackList:
			dst.TrackList = append([]string{}, src.TrackList...)
		}
	}
}

// Search implements records.Repository.
func (s *Store) Search(_ context.Context, pred filter.Predicate, order filter.Sort, limit, skip int) ([]*records.Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpSearch); err != nil {
		return nil, 0, err
	}

	type hit struct {
		r     *records.Record
		score int
	}
	var hits []hit
	for _, recordID := range s.recordSeq {
		r := s.records[recordID]
		if matches(r, pred) {
			hits = append(hits, hit{r: r, score: relevance(r, order)})
		}
	}

	if order.Kind == filter.SortRelevanceDesc {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	}

	total := int64(len(hits))
	if skip >= len(hits) {
		return []*records.Record{}, total, nil
	}
	end := len(hits)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}

	page := make([]*records.Record, 0, end-skip)
	for _, h := range hits[skip:end] {
		page = append(page, h.r.Clone())
	}
	return page, total, nil
}

// DecrementStock implements records.Repository.
func (s *Store) DecrementStock(ctx context.Context, recordID id.ID, qty int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpDecrement); err != nil {
		return 0, false, err
	}

	r, ok := s.records[recordID]
	if !ok || r.Qty < qty {
		return 0, false, nil
	}
	prevVersion, prevUpdated := r.Version, r.UpdatedAt
	r.Qty -= qty
	r.Version++
	r.UpdatedAt = time.Now().UTC()

	s.onRollback(ctx, func() {
		if r, ok := s.records[recordID]; ok {
			r.Qty += qty
			r.Version = prevVersion
			r.UpdatedAt = prevUpdated
		}
	})
	return r.Qty, true, nil
}

// --- events.Publisher ---

// Publish implements events.Publisher.
func (s *Store) Publish(ctx context.Context, event events.Event) error {
	if !inTx(ctx) {
		return errOutsideTx
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpPublish); err != nil {
		return err
	}
	s.eventSeq++
	seq := s.eventSeq
	s.events = append(s.events, storedEvent{seq: seq, event: event})
	s.onRollback(ctx, func() {
		for i, e := range s.events {
			if e.seq == seq {
				s.events = append(s.events[:i:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

type storedEvent struct {
	seq   uint64
	event events.Event
}

// --- audit.Log ---

// LogChange implements audit.Log.
func (s *Store) LogChange(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := audit.Entry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	s.audit = append(s.audit, entry)
	s.onRollback(ctx, func() {
		for i, e := range s.audit {
			if e.ID == entry.ID {
				s.audit = append(s.audit[:i:i], s.audit[i+1:]...)
				return
			}
		}
	})
	return nil
}

// GetEntityHistory implements audit.Log. Newest first.
func (s *Store) GetEntityHistory(_ context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []audit.Entry{}
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.audit[i]; e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- test helpers ---

// Events returns a copy of the published events.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.event)
	}
	return out
}

// OrderCount returns the number of committed or in-flight orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// --- predicate evaluation ---

func matches(r *records.Record, pred filter.Predicate) bool {
	for _, group := range pred.Terms {
		if !matchesAny(r, group.AnyOf) {
			return false
		}
	}
	return true
}

func matchesAny(r *records.Record, items []filter.Item) bool {
	for _, item := range items {
		if matchesItem(r, item) {
			return true
		}
	}
	return false
}

func matchesItem(r *records.Record, item filter.Item) bool {
	switch item.Operator {
	case filter.Equal:
		return fieldValue(r, item.Field) == item.Value
	case filter.Prefix:
		return strings.HasPrefix(strings.ToLower(fieldValue(r, item.Field)), strings.ToLower(item.Value))
	case filter.TextMatch:
		return textScore(r, item.Fields, item.Value) > 0
	}
	return false
}

func relevance(r *records.Record, order filter.Sort) int {
	if order.Kind != filter.SortRelevanceDesc {
		return 0
	}
	return textScore(r, order.Fields, order.Query)
}

// textScore counts field tokens equal to a query token; it is zero unless
// every query token occurs somewhere, like an AND of lexemes.
func textScore(r *records.Record, fields []string, query string) int {
	terms := tokenize(query)
	if len(terms) == 0 {
		return 0
	}

	counts := make(map[string]int)
	for _, field := range fields {
		for _, tok := range tokenize(fieldValue(r, field)) {
			counts[tok]++
		}
	}

	score := 0
	for _, term := range terms {
		if counts[term] == 0 {
			return 0
		}
		score += counts[term]
	}
	return score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
}

func fieldValue(r *records.Record, field string) string {
	switch field {
	case records.FieldArtist:
		return r.Artist
	case records.FieldAlbum:
		return r.Album
	case records.FieldFormat:
		return string(r.Format)
	case records.FieldCategory:
		return string(r.Category)
	}
	return ""
}

func removeID(ids []id.ID, target id.ID) []id.ID {
	for i, v := range ids {
		if v == target {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
