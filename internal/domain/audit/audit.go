// Package audit defines the change log written alongside catalog writes.
package audit

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"recordshop/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Entry is one row of an entity's history.
type Entry struct {
	ID         id.ID           `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   id.ID           `db:"entity_id" json:"entityId"`
	Action     Action          `db:"action" json:"action"`
	Changes    json.RawMessage `db:"changes" json:"changes"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Log records entity changes. LogChange must run inside the transaction
// of the write it describes.
type Log interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}

// Diff calculates the difference between old and new entity states.
// Each changed key maps to {"old": ..., "new": ...}.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
