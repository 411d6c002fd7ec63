// Package entity provides the fields shared by persisted entities.
package entity

import (
	"context"
	"time"

	"recordshop/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity contains identity and bookkeeping columns.
type BaseEntity struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Version is incremented on every catalog update
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch increments version and refreshes UpdatedAt.
func (b *BaseEntity) Touch() {
	b.Version++
	b.UpdatedAt = time.Now().UTC()
}

// GetID returns the entity ID.
func (b *BaseEntity) GetID() id.ID {
	return b.ID
}
