package memory

import (
	"context"
	"errors"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/domain/orders"
)

var errOutsideTx = errors.New("outbox publish requires transaction context")

// OrderLedger is the order ledger view of a Store.
type OrderLedger struct {
	s *Store
}

var _ orders.Ledger = (*OrderLedger)(nil)

// Orders returns the order ledger backed by s.
func (s *Store) Orders() *OrderLedger {
	return &OrderLedger{s: s}
}

// Insert implements orders.Ledger.
func (l *OrderLedger) Insert(ctx context.Context, o *orders.Order) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpInsertOrder); err != nil {
		return err
	}
	if _, ok := s.records[o.RecordID]; !ok {
		return apperror.NewNotFound("record", o.RecordID.String())
	}

	cp := *o
	s.orders[o.ID] = &cp
	s.orderSeq = append(s.orderSeq, o.ID)

	orderID := o.ID
	s.onRollback(ctx, func() {
		delete(s.orders, orderID)
		s.orderSeq = removeID(s.orderSeq, orderID)
	})
	return nil
}

// GetByID implements orders.Ledger.
func (l *OrderLedger) GetByID(_ context.Context, orderID id.ID) (*orders.Order, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID.String())
	}
	cp := *o
	return &cp, nil
}

// ListByRecord implements orders.Ledger.
func (l *OrderLedger) ListByRecord(_ context.Context, recordID id.ID) ([]*orders.Order, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*orders.Order{}
	for _, orderID := range s.orderSeq {
		if o := s.orders[orderID]; o.RecordID == recordID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}
