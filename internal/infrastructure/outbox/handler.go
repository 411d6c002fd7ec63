// Package outbox delivers committed domain events from sys_outbox.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"recordshop/internal/domain/events"
	"recordshop/internal/infrastructure/storage/postgres"
	"recordshop/pkg/logger"
)

// Invalidator drops cached search pages.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Metrics receives one observation per delivered message.
type Metrics interface {
	ObserveOutbox(eventType string, ok bool)
}

// Handler applies catalog and order events to the read side. Every event
// invalidates the shared search cache so instances that did not perform the
// write stop serving stale pages.
type Handler struct {
	cache   Invalidator
	metrics Metrics
	log     *logger.Logger
}

var _ postgres.OutboxHandler = (*Handler)(nil)

// NewHandler creates an outbox handler. cache and metrics may be nil.
func NewHandler(cache Invalidator, metrics Metrics, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{cache: cache, metrics: metrics, log: log.WithComponent("outbox")}
}

// Handle implements postgres.OutboxHandler. A payload that does not decode
// is an error, so the relay retries it and eventually dead-letters it.
func (h *Handler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	err := h.handle(ctx, msg)
	if h.metrics != nil {
		h.metrics.ObserveOutbox(msg.EventType, err == nil)
	}
	return err
}

func (h *Handler) handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	log := h.log.WithContext(ctx).With("message_id", msg.ID, "event_type", msg.EventType)

	switch msg.EventType {
	case events.OrderPlaced:
		var p events.OrderPlacedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		log.Infow("order placed",
			"order_id", p.OrderID,
			"number", p.Number,
			"record_id", p.RecordID,
			"qty", p.Qty,
			"remaining_stock", p.RemainingStock,
		)
		if p.RemainingStock == 0 {
			log.Warnw("record sold out", "record_id", p.RecordID)
		}

	case events.RecordCreated, events.RecordUpdated:
		var p events.RecordChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
		log.Infow("record changed",
			"record_id", p.RecordID,
			"version", p.Version,
			"artist", p.Artist,
			"album", p.Album,
		)

	default:
		log.Warnw("skipping unknown event type")
		return nil
	}

	if h.cache != nil {
		h.cache.Invalidate(ctx)
	}
	return nil
}
