package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"recordshop/internal/core/id"
	"recordshop/internal/domain/events"
	"recordshop/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of failed deliveries after which a message
// is marked failed and becomes eligible for the dead letter table.
const MaxOutboxRetries = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // "record", "order"
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"` // "order.placed", "record.updated"
	Payload       []byte       `db:"payload"`    // JSON payload
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	txManager *TxManager
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Publish writes an event to the outbox within the current transaction.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, event events.Event) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, insertOutboxSQL,
		id.New(), event.AggregateType, event.AggregateID, event.EventType, payloadBytes, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	return nil
}

// PublishBatch writes multiple events to the outbox in one round trip.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, evs []events.Event) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for _, event := range evs {
		payloadBytes, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		batch.Queue(insertOutboxSQL,
			id.New(), event.AggregateType, event.AggregateID, event.EventType, payloadBytes, OutboxStatusPending, now)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range evs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert outbox message: %w", err)
		}
	}

	return nil
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle processes a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to a handler.
// Several relays may run at once: rows are claimed with SKIP LOCKED.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager: txManager,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch claims up to batchSize pending messages and processes them
// inside one transaction, so the row locks hold until the status updates
// commit. Returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, q, msg)
			if err != nil {
				return err
			}
			if ok {
				processed++
			}
		}
		return nil
	})

	return processed, err
}

// processMessage handles a single outbox message. It reports whether the
// handler succeeded; the error is reserved for bookkeeping failures.
func (r *OutboxRelay) processMessage(ctx context.Context, q Querier, msg *OutboxMessage) (bool, error) {
	if err := r.handler.Handle(ctx, msg); err != nil {
		logger.Warn(ctx, "outbox delivery failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"retry_count", msg.RetryCount,
			"error", err,
		)

		status := OutboxStatusPending
		if msg.RetryCount+1 >= MaxOutboxRetries {
			status = OutboxStatusFailed
		}
		_, updateErr := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = $3
			WHERE id = $4
		`, err.Error(), NextRetryAt(time.Now().UTC(), msg.RetryCount), status, msg.ID)
		if updateErr != nil {
			return false, fmt.Errorf("update failed message: %w", updateErr)
		}
		return false, nil
	}

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	if err != nil {
		return false, fmt.Errorf("mark message published: %w", err)
	}
	return true, nil
}

// NextRetryAt returns when a message that has already failed retryCount
// times may be retried: one minute per attempt.
func NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(time.Duration(retryCount+1) * time.Minute)
}

// MoveToDLQ moves failed messages to the dead letter table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() AS failed_at, last_error AS failure_reason FROM moved
	`, OutboxStatusFailed, MaxOutboxRetries)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}

	return result.RowsAffected(), nil
}
