package sales

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// recordingStorage wraps LocalStorage and records every write it receives.
type recordingStorage struct {
	*LocalStorage

	mu           sync.Mutex
	increments   []Increment
	batches      []int
	incrementErr error
	resetErrAt   int
}

func newRecordingStorage() *recordingStorage {
	return &recordingStorage{LocalStorage: NewLocalStorage(), resetErrAt: -1}
}

func (r *recordingStorage) Increment(ctx context.Context, userID string, inc Increment) error {
	r.mu.Lock()
	r.increments = append(r.increments, inc)
	err := r.incrementErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.LocalStorage.Increment(ctx, userID, inc)
}

func (r *recordingStorage) ResetToday(ctx context.Context, userIDs []string) error {
	r.mu.Lock()
	idx := len(r.batches)
	r.batches = append(r.batches, len(userIDs))
	r.mu.Unlock()
	if idx == r.resetErrAt {
		return errors.New("batch commit unavailable")
	}
	return r.LocalStorage.ResetToday(ctx, userIDs)
}

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

// TestNewService verifies service initialization.
func TestNewService(t *testing.T) {
	svc := NewService(NewLocalStorage(), zaptest.NewLogger(t))
	require.NotNil(t, svc)
	assert.NotNil(t, svc.storage)
	assert.NotNil(t, svc.logger)

	assert.NotNil(t, NewService(NewLocalStorage(), nil).logger, "nil logger falls back to a no-op logger")
}

func TestOnSaleCreated_IncrementsAllCounters(t *testing.T) {
	store := NewLocalStorage().WithClock(func() time.Time { return fixedNow })
	svc := NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	res := svc.OnSaleCreated(ctx, "user-1", SaleRecord{"amount": 12.5})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, ReactorCreate, res.Reactor)
	assert.NoError(t, res.Err)

	res = svc.OnSaleCreated(ctx, "user-1", SaleRecord{"amount": "7.5"})
	assert.Equal(t, OutcomeApplied, res.Outcome)

	agg, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.TotalSalesCount)
	assert.Equal(t, 20.0, agg.TotalAmount)
	assert.Equal(t, int64(2), agg.TodaySalesCount)
	require.NotNil(t, agg.LastSaleAt)
	assert.True(t, agg.LastSaleAt.Equal(fixedNow))
}

func TestOnSaleCreated_MissingAmountCountsAsZero(t *testing.T) {
	store := NewLocalStorage()
	svc := NewService(store, zaptest.NewLogger(t))

	res := svc.OnSaleCreated(context.Background(), "user-1", nil)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	agg, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.TotalSalesCount)
	assert.Equal(t, 0.0, agg.TotalAmount)
}

func TestOnSaleCreated_MergeKeepsUnrelatedFields(t *testing.T) {
	store := NewLocalStorage()
	require.NoError(t, store.Put("user-1", map[string]any{"displayName": "Ana", "plan": "pro"}))
	svc := NewService(store, zaptest.NewLogger(t))

	svc.OnSaleCreated(context.Background(), "user-1", SaleRecord{"amount": 3})

	doc, ok := store.Document("user-1")
	require.True(t, ok)
	assert.Equal(t, "Ana", doc["displayName"])
	assert.Equal(t, "pro", doc["plan"])
	assert.Equal(t, int64(1), doc[FieldTotalSalesCount])
}

func TestOnSaleDeleted_LeavesDailyCounterAndTimestamp(t *testing.T) {
	store := NewLocalStorage().WithClock(func() time.Time { return fixedNow })
	svc := NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	svc.OnSaleCreated(ctx, "user-1", SaleRecord{"amount": 7})
	store.WithClock(func() time.Time { return fixedNow.Add(time.Hour) })

	res := svc.OnSaleDeleted(ctx, "user-1", SaleRecord{"amount": 7})
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, -7.0, res.Delta)

	agg, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.TotalSalesCount)
	assert.Equal(t, 0.0, agg.TotalAmount)
	assert.Equal(t, int64(1), agg.TodaySalesCount)
	require.NotNil(t, agg.LastSaleAt)
	assert.True(t, agg.LastSaleAt.Equal(fixedNow))
}

func TestOnSaleDeleted_IssuesSingleDecrement(t *testing.T) {
	store := newRecordingStorage()
	svc := NewService(store, zaptest.NewLogger(t))

	svc.OnSaleDeleted(context.Background(), "user-1", SaleRecord{"amount": 7})

	require.Len(t, store.increments, 1)
	assert.Equal(t, Increment{TotalSalesCount: -1, TotalAmount: -7}, store.increments[0])

	doc, ok := store.Document("user-1")
	require.True(t, ok)
	assert.NotContains(t, doc, FieldTodaySalesCount)
	assert.NotContains(t, doc, FieldLastSaleAt)
}

func TestOnSaleUpdated_SameAmountSkipsWrite(t *testing.T) {
	store := newRecordingStorage()
	svc := NewService(store, zaptest.NewLogger(t))

	res := svc.OnSaleUpdated(context.Background(), "user-1", SaleRecord{"amount": 10}, SaleRecord{"amount": "10"})

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, store.increments)
	_, exists := store.Document("user-1")
	assert.False(t, exists)
}

func TestOnSaleUpdated_AppliesDeltaOnly(t *testing.T) {
	store := newRecordingStorage()
	svc := NewService(store, zaptest.NewLogger(t))

	res := svc.OnSaleUpdated(context.Background(), "user-1", SaleRecord{"amount": 10}, SaleRecord{"amount": 25})

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 15.0, res.Delta)
	require.Len(t, store.increments, 1)
	assert.Equal(t, Increment{TotalAmount: 15}, store.increments[0])

	doc, _ := store.Document("user-1")
	assert.Equal(t, 15.0, doc[FieldTotalAmount])
	assert.NotContains(t, doc, FieldTotalSalesCount)
	assert.NotContains(t, doc, FieldTodaySalesCount)
	assert.NotContains(t, doc, FieldLastSaleAt)
}

func TestReactors_StoreFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := newRecordingStorage()
	store.incrementErr = errors.New("store unavailable")
	svc := NewService(store, zap.New(core))

	var res Result
	assert.NotPanics(t, func() {
		res = svc.OnSaleCreated(context.Background(), "user-1", SaleRecord{"amount": 5})
	})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.EqualError(t, res.Err, "store unavailable")

	entries := logs.FilterField(zap.String("reactor", ReactorCreate)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "onSaleCreate error", entries[0].Message)
	assert.Equal(t, "user-1", entries[0].ContextMap()["user_id"])
	assert.Equal(t, "store unavailable", entries[0].ContextMap()["error"])

	res = svc.OnSaleDeleted(context.Background(), "user-1", SaleRecord{"amount": 5})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	res = svc.OnSaleUpdated(context.Background(), "user-1", SaleRecord{"amount": 1}, SaleRecord{"amount": 2})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 3, logs.Len())
}

type saleEvent struct {
	kind          string
	before, after SaleRecord
}

// TestReactors_TotalsIndependentOfOrder applies the same event set in several
// shuffled orders and checks the net totals.
func TestReactors_TotalsIndependentOfOrder(t *testing.T) {
	events := []saleEvent{
		{kind: "create", after: SaleRecord{"amount": 10}},
		{kind: "create", after: SaleRecord{"amount": "2.5"}},
		{kind: "create", after: SaleRecord{"amount": 40.25}},
		{kind: "create", after: SaleRecord{}},
		{kind: "delete", before: SaleRecord{"amount": 10}},
		{kind: "update", before: SaleRecord{"amount": "2.5"}, after: SaleRecord{"amount": 6}},
		{kind: "update", before: SaleRecord{"amount": 40.25}, after: SaleRecord{"amount": 40.25}},
		{kind: "create", after: SaleRecord{"amount": "abc"}},
		{kind: "delete", before: SaleRecord{"amount": 0.5}},
	}
	// creates 5, deletes 2; amounts 10+2.5+40.25-10+3.5-0.5
	wantCount, wantAmount := int64(3), 45.75

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 10; round++ {
		shuffled := append([]saleEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		store := NewLocalStorage()
		svc := NewService(store, zaptest.NewLogger(t))
		ctx := context.Background()
		for _, ev := range shuffled {
			switch ev.kind {
			case "create":
				svc.OnSaleCreated(ctx, "user-1", ev.after)
			case "delete":
				svc.OnSaleDeleted(ctx, "user-1", ev.before)
			case "update":
				svc.OnSaleUpdated(ctx, "user-1", ev.before, ev.after)
			}
		}

		agg, err := store.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, wantCount, agg.TotalSalesCount, "round %d", round)
		assert.Equal(t, wantAmount, agg.TotalAmount, "round %d", round)
		assert.Equal(t, int64(5), agg.TodaySalesCount, "round %d", round)
	}
}

func TestReactors_ConcurrentCreatesForSameUser(t *testing.T) {
	store := NewLocalStorage()
	svc := NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			svc.OnSaleCreated(ctx, "user-1", SaleRecord{"amount": 2})
		}()
	}
	wg.Wait()

	agg, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), agg.TotalSalesCount)
	assert.Equal(t, float64(2*n), agg.TotalAmount)
	assert.Equal(t, int64(n), agg.TodaySalesCount)
}
