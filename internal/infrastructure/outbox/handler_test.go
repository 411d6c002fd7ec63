package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordshop/internal/core/id"
	"recordshop/internal/domain/events"
	"recordshop/internal/infrastructure/storage/postgres"
	"recordshop/pkg/logger"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

type outcome struct {
	eventType string
	ok        bool
}

type recordingMetrics struct{ seen []outcome }

func (m *recordingMetrics) ObserveOutbox(eventType string, ok bool) {
	m.seen = append(m.seen, outcome{eventType, ok})
}

func message(t *testing.T, eventType string, payload any) *postgres.OutboxMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &postgres.OutboxMessage{ID: id.New(), EventType: eventType, Payload: raw}
}

func TestHandle(t *testing.T) {
	recordID := id.New()

	tests := []struct {
		name        string
		msg         func(t *testing.T) *postgres.OutboxMessage
		wantErr     bool
		invalidated int
	}{
		{
			name: "order placed",
			msg: func(t *testing.T) *postgres.OutboxMessage {
				return message(t, events.OrderPlaced, events.OrderPlacedPayload{
					OrderID: id.New(), RecordID: recordID, Qty: 2, RemainingStock: 0,
				})
			},
			invalidated: 1,
		},
		{
			name: "record updated",
			msg: func(t *testing.T) *postgres.OutboxMessage {
				return message(t, events.RecordUpdated, events.RecordChangedPayload{RecordID: recordID, Version: 3})
			},
			invalidated: 1,
		},
		{
			name: "unknown event is acknowledged",
			msg: func(t *testing.T) *postgres.OutboxMessage {
				return message(t, "record.deleted", map[string]string{})
			},
		},
		{
			name: "corrupt payload",
			msg: func(*testing.T) *postgres.OutboxMessage {
				return &postgres.OutboxMessage{ID: id.New(), EventType: events.OrderPlaced, Payload: []byte("{")}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &countingInvalidator{}
			metrics := &recordingMetrics{}
			h := NewHandler(cache, metrics, logger.NewNop())

			msg := tt.msg(t)
			err := h.Handle(context.Background(), msg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.invalidated, cache.calls)
			require.Len(t, metrics.seen, 1)
			assert.Equal(t, outcome{msg.EventType, !tt.wantErr}, metrics.seen[0])
		})
	}
}

func TestHandle_NilCollaborators(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	msg := message(t, events.RecordCreated, events.RecordChangedPayload{RecordID: id.New()})
	assert.NoError(t, h.Handle(context.Background(), msg))
}
