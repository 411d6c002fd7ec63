package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/core/numerator"
	"recordshop/internal/core/tx"
	"recordshop/internal/domain/events"
	"recordshop/pkg/logger"
)

// Outcome labels reported to Metrics.
const (
	OutcomePlaced                 = "placed"
	OutcomeRejected               = "rejected"
	OutcomeNotFound               = "not_found"
	OutcomeInsufficientStock      = "insufficient_stock"
	OutcomeConcurrentModification = "concurrent_modification"
	OutcomeTimeout                = "timeout"
	OutcomeStorage                = "storage"
)

var tracer = otel.Tracer("recordshop/orders")

// Metrics receives one outcome per order attempt. A nil Metrics is allowed.
type Metrics interface {
	ObserveOrder(outcome string, qty int64, d time.Duration)
}

// CacheInvalidator drops cached search pages after stock changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Coordinator places orders. Each attempt runs
//
//	started -> stock_verified -> stock_decremented -> order_inserted -> committed
//
// inside one transaction; any failure moves it to aborted and rolls back
// every write of the attempt.
type Coordinator struct {
	stock     Stock
	ledger    Ledger
	txManager tx.Manager
	events    events.Publisher
	numbers   numerator.Generator
	policy    *Policy
	cache     CacheInvalidator
	metrics   Metrics
	txTimeout time.Duration
}

// CoordinatorConfig configures the coordinator. Only Stock, Ledger and
// TxManager are required.
type CoordinatorConfig struct {
	Stock     Stock
	Ledger    Ledger
	TxManager tx.Manager
	Events    events.Publisher
	Numbers   numerator.Generator
	Policy    *Policy
	Cache     CacheInvalidator
	Metrics   Metrics

	// TxTimeout bounds the whole transaction, commit included. Zero means
	// the caller's context decides.
	TxTimeout time.Duration
}

// NewCoordinator creates a new order coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		stock:     cfg.Stock,
		ledger:    cfg.Ledger,
		txManager: cfg.TxManager,
		events:    cfg.Events,
		numbers:   cfg.Numbers,
		policy:    cfg.Policy,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		txTimeout: cfg.TxTimeout,
	}
}

// numberConfig is the order numbering scheme.
var numberConfig = numerator.DefaultConfig("ORD")

// PlaceOrder decrements the stock of recordID by qty and records an order,
// atomically. Errors are NotFound, InsufficientStock, Validation (policy) or
// OrderPlacementFailed.
func (c *Coordinator) PlaceOrder(ctx context.Context, recordID id.ID, qty int64) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.PlaceOrder", trace.WithAttributes(
		attribute.String("record.id", recordID.String()),
		attribute.Int64("order.qty", qty),
	))
	defer span.End()

	started := time.Now()

	if err := c.admit(recordID, qty); err != nil {
		c.observe(OutcomeRejected, qty, started)
		return nil, err
	}

	number, err := c.nextNumber(ctx)
	if err != nil {
		c.observe(OutcomeStorage, qty, started)
		logger.Error(ctx, "order numbering failed", "record_id", recordID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "numbering failed")
		return nil, apperror.NewOrderPlacementFailed(OutcomeStorage, err)
	}

	txCtx := ctx
	if c.txTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, c.txTimeout)
		defer cancel()
	}

	var (
		order     *Order
		remaining int64
		state     = StateStarted
	)

	err = c.txManager.RunInTransaction(txCtx, func(ctx context.Context) error {
		record, err := c.stock.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		state = StateStockVerified

		if record.Qty < qty {
			return apperror.NewInsufficientStock(recordID.String(), qty, record.Qty)
		}

		// The guard re-checks qty >= requested at write time; a concurrent
		// order that won the race between the read and here makes it miss.
		left, ok, err := c.stock.DecrementStock(ctx, recordID, qty)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if !ok {
			return apperror.NewConcurrentModification("record", recordID.String())
		}
		remaining = left
		state = StateStockDecremented

		order = NewOrder(recordID, qty, number)
		if err := c.ledger.Insert(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		state = StateOrderInserted

		return c.publish(ctx, order, remaining)
	})
	if err != nil {
		outcome, normalized := c.abort(ctx, state, recordID, qty, err)
		c.observe(outcome, qty, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, normalized
	}

	state = StateCommitted
	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.Int64("record.remaining", remaining))
	c.observe(OutcomePlaced, qty, started)
	if c.cache != nil {
		c.cache.Invalidate(ctx)
	}

	logger.Info(ctx, "order placed",
		"order_id", order.ID,
		"number", order.Number,
		"record_id", recordID,
		"qty", qty,
		"remaining", remaining,
		"state", state,
	)
	return order, nil
}

// Get returns a committed order.
func (c *Coordinator) Get(ctx context.Context, rawID string) (*Order, error) {
	orderID, err := id.Parse(rawID)
	if err != nil {
		return nil, apperror.NewInvalidIdentifier("order", rawID)
	}
	o, err := c.ledger.GetByID(ctx, orderID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("order", rawID)
		}
		if _, ok := apperror.AsAppError(err); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("get order: %w", err))
	}
	return o, nil
}

func (c *Coordinator) admit(recordID id.ID, qty int64) error {
	if qty < 1 {
		return apperror.NewValidation("qty must be a positive integer").
			WithDetail("field", "qty").
			WithDetail("value", qty)
	}
	if c.policy != nil {
		return c.policy.Admit(recordID.String(), qty)
	}
	return nil
}

func (c *Coordinator) nextNumber(ctx context.Context) (string, error) {
	if c.numbers == nil {
		return "", nil
	}
	return c.numbers.GetNextNumber(ctx, numberConfig, &numerator.Options{
		Strategy: numerator.StrategyCached,
	}, time.Now().UTC())
}

func (c *Coordinator) publish(ctx context.Context, o *Order, remaining int64) error {
	if c.events == nil {
		return nil
	}
	err := c.events.Publish(ctx, events.Event{
		AggregateType: events.AggregateOrder,
		AggregateID:   o.ID,
		EventType:     events.OrderPlaced,
		Payload: events.OrderPlacedPayload{
			OrderID:        o.ID,
			Number:         o.Number,
			RecordID:       o.RecordID,
			Qty:            o.Qty,
			RemainingStock: remaining,
		},
	})
	if err != nil {
		return fmt.Errorf("publish order placed: %w", err)
	}
	return nil
}

// abort maps the cause of an aborted attempt to the error returned to the
// caller. NotFound and InsufficientStock pass through; everything else
// becomes OrderPlacementFailed and only the log keeps the cause.
func (c *Coordinator) abort(ctx context.Context, state State, recordID id.ID, qty int64, err error) (string, error) {
	log := logger.FromContext(ctx).With(
		"record_id", recordID,
		"qty", qty,
		"failed_after", state,
		"state", StateAborted,
		"error", err,
	)

	switch {
	case apperror.IsNotFound(err):
		log.Infow("order aborted: record not found")
		return OutcomeNotFound, apperror.NewNotFound("record", recordID.String())

	case apperror.HasCode(err, apperror.CodeInsufficientStock):
		log.Infow("order aborted: insufficient stock")
		return OutcomeInsufficientStock, err

	case apperror.IsConcurrentModification(err):
		log.Warnw("order aborted: stock changed concurrently")
		return OutcomeConcurrentModification, apperror.NewOrderPlacementFailed(OutcomeConcurrentModification, err)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warnw("order aborted: transaction timed out")
		return OutcomeTimeout, apperror.NewOrderPlacementFailed(OutcomeTimeout, err)

	default:
		log.Errorw("order aborted: storage failure")
		return OutcomeStorage, apperror.NewOrderPlacementFailed(OutcomeStorage, err)
	}
}

func (c *Coordinator) observe(outcome string, qty int64, started time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveOrder(outcome, qty, time.Since(started))
	}
}
