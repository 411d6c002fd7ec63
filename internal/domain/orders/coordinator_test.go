package orders_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/core/numerator"
	"recordshop/internal/core/types"
	"recordshop/internal/domain/events"
	"recordshop/internal/domain/orders"
	"recordshop/internal/domain/records"
	"recordshop/internal/infrastructure/storage/memory"
)

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *fakeMetrics) ObserveOrder(outcome string, _ int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func seedRecord(t testing.TB, store *memory.Store, qty int64) *records.Record {
	r := records.NewRecord("Pink Floyd", "The Wall", records.FormatVinyl, records.CategoryRock)
	r.Price = types.MustMoney("24.99")
	r.Qty = qty
	require.NoError(t, store.Create(context.Background(), r))
	return r
}

func newCoordinator(store *memory.Store, m orders.Metrics) *orders.Coordinator {
	policy, _ := orders.NewPolicy("")
	return orders.NewCoordinator(orders.CoordinatorConfig{
		Stock:     store,
		Ledger:    store.Orders(),
		TxManager: store,
		Events:    store,
		Numbers:   &numerator.MockGenerator{},
		Policy:    policy,
		Metrics:   m,
	})
}

func stockOf(t testing.TB, store *memory.Store, recordID id.ID) int64 {
	r, err := store.GetByID(context.Background(), recordID)
	require.NoError(t, err)
	return r.Qty
}

func TestPlaceOrder_DecrementsStockAndRecordsOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	metrics := &fakeMetrics{}
	c := newCoordinator(store, metrics)
	rec := seedRecord(t, store, 10)

	order, err := c.PlaceOrder(ctx, rec.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, order.RecordID)
	assert.Equal(t, int64(4), order.Qty)
	assert.Equal(t, fmt.Sprintf("ORD-%d-00001", time.Now().UTC().Year()), order.Number)
	assert.Equal(t, int64(6), stockOf(t, store, rec.ID))

	placed, err := store.Orders().ListByRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, placed, 1)

	// Second order exceeds the remaining stock.
	_, err = c.PlaceOrder(ctx, rec.ID, 7)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, int64(6), stockOf(t, store, rec.ID))
	assert.Equal(t, 1, store.OrderCount())

	assert.Equal(t, []string{orders.OutcomePlaced, orders.OutcomeInsufficientStock}, metrics.outcomes)
}

func TestPlaceOrder_PublishesOrderPlaced(t *testing.T) {
	store := memory.New()
	c := newCoordinator(store, nil)
	rec := seedRecord(t, store, 3)

	order, err := c.PlaceOrder(context.Background(), rec.ID, 3)
	require.NoError(t, err)

	evs := store.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.OrderPlaced, evs[0].EventType)
	assert.Equal(t, events.OrderPlacedPayload{
		OrderID:        order.ID,
		Number:         order.Number,
		RecordID:       rec.ID,
		Qty:            3,
		RemainingStock: 0,
	}, evs[0].Payload)
}

func TestPlaceOrder_UnknownRecord(t *testing.T) {
	store := memory.New()
	c := newCoordinator(store, nil)

	_, err := c.PlaceOrder(context.Background(), id.New(), 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Zero(t, store.OrderCount())
}

func TestPlaceOrder_RejectedBeforeTransaction(t *testing.T) {
	store := memory.New()
	c := newCoordinator(store, nil)
	rec := seedRecord(t, store, 20_000)

	tests := []struct {
		name string
		qty  int64
	}{
		{"zero", 0},
		{"negative", -3},
		{"above policy ceiling", 10_001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.PlaceOrder(context.Background(), rec.ID, tt.qty)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, int64(20_000), stockOf(t, store, rec.ID))
		})
	}
}

func TestPlaceOrder_FailureLeavesNoTrace(t *testing.T) {
	storageErr := errors.New("connection reset by peer")

	tests := []struct {
		name       string
		op         string
		wantReason string
	}{
		{"decrement fails", memory.OpDecrement, orders.OutcomeStorage},
		{"order insert fails", memory.OpInsertOrder, orders.OutcomeStorage},
		{"outbox write fails", memory.OpPublish, orders.OutcomeStorage},
		{"commit fails", memory.OpCommit, orders.OutcomeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			c := newCoordinator(store, nil)
			rec := seedRecord(t, store, 10)
			before, err := store.GetByID(context.Background(), rec.ID)
			require.NoError(t, err)

			store.FailOn(tt.op, storageErr)
			_, err = c.PlaceOrder(context.Background(), rec.ID, 4)

			require.ErrorIs(t, err, apperror.ErrOrderPlacementFailed)
			appErr, _ := apperror.AsAppError(err)
			assert.Equal(t, tt.wantReason, appErr.Details["reason"])
			assert.NotContains(t, appErr.Message, "connection reset")

			after, err := store.GetByID(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Zero(t, store.OrderCount())
			assert.Empty(t, store.Events())
		})
	}
}

// racingStock lets a competing order commit between the read and the
// guarded decrement.
type racingStock struct {
	*memory.Store
	competitor int64
}

func (r *racingStock) GetByID(ctx context.Context, recordID id.ID) (*records.Record, error) {
	rec, err := r.Store.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if r.competitor > 0 {
		_, _, _ = r.Store.DecrementStock(context.Background(), recordID, r.competitor)
		r.competitor = 0
	}
	return rec, nil
}

func TestPlaceOrder_LostGuardRace(t *testing.T) {
	store := memory.New()
	rec := seedRecord(t, store, 5)
	metrics := &fakeMetrics{}

	c := orders.NewCoordinator(orders.CoordinatorConfig{
		Stock:     &racingStock{Store: store, competitor: 3},
		Ledger:    store.Orders(),
		TxManager: store,
		Metrics:   metrics,
	})

	_, err := c.PlaceOrder(context.Background(), rec.ID, 4)
	require.ErrorIs(t, err, apperror.ErrOrderPlacementFailed)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, orders.OutcomeConcurrentModification, appErr.Details["reason"])

	assert.Equal(t, int64(2), stockOf(t, store, rec.ID))
	assert.Zero(t, store.OrderCount())
	assert.Equal(t, []string{orders.OutcomeConcurrentModification}, metrics.outcomes)
}

func TestPlaceOrder_CancelledContextAborts(t *testing.T) {
	store := memory.New()
	c := newCoordinator(store, nil)
	rec := seedRecord(t, store, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PlaceOrder(ctx, rec.ID, 1)
	require.ErrorIs(t, err, apperror.ErrOrderPlacementFailed)
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, orders.OutcomeTimeout, appErr.Details["reason"])
	assert.Equal(t, int64(5), stockOf(t, store, rec.ID))
}

func TestGet(t *testing.T) {
	store := memory.New()
	c := newCoordinator(store, nil)
	rec := seedRecord(t, store, 5)

	placed, err := c.PlaceOrder(context.Background(), rec.ID, 2)
	require.NoError(t, err)

	got, err := c.Get(context.Background(), placed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	_, err = c.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperror.ErrInvalidIdentifier)

	_, err = c.Get(context.Background(), id.New().String())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPlaceOrder_ConcurrentOrdersNeverOverdraw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		initial := rapid.Int64Range(0, 40).Draw(rt, "stock")
		qtys := rapid.SliceOfN(rapid.Int64Range(1, 15), 2, 12).Draw(rt, "qtys")

		store := memory.New()
		c := newCoordinator(store, nil)
		rec := seedRecord(t, store, initial)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int64
			placed  int
			odd     []error
		)
		for _, q := range qtys {
			wg.Add(1)
			go func(q int64) {
				defer wg.Done()
				_, err := c.PlaceOrder(context.Background(), rec.ID, q)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					granted += q
					placed++
				case errors.Is(err, apperror.ErrInsufficientStock),
					errors.Is(err, apperror.ErrOrderPlacementFailed):
				default:
					odd = append(odd, err)
				}
			}(q)
		}
		wg.Wait()

		if len(odd) > 0 {
			rt.Fatalf("unexpected errors: %v", odd)
		}
		final := stockOf(t, store, rec.ID)
		if granted > initial {
			rt.Fatalf("granted %d units from a stock of %d", granted, initial)
		}
		if final != initial-granted {
			rt.Fatalf("stock %d, want %d (initial %d granted %d)", final, initial-granted, initial, granted)
		}
		if final < 0 {
			rt.Fatalf("negative stock %d", final)
		}
		if store.OrderCount() != placed {
			rt.Fatalf("ledger has %d orders, %d succeeded", store.OrderCount(), placed)
		}
	})
}
