package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MaxBatchOps is the largest number of writes a store commits in one atomic batch.
const MaxBatchOps = 500

// ErrNotFound is returned when no aggregate record exists for a user.
var ErrNotFound = errors.New("user aggregate not found")

// ErrEmptyUserID is returned when a write targets an empty user ID.
var ErrEmptyUserID = errors.New("empty user ID")

// ErrBatchTooLarge is returned when a batch exceeds MaxBatchOps.
var ErrBatchTooLarge = errors.New("batch exceeds max operations")

// Storage is the aggregate store shared by the reactors and the reset job.
type Storage interface {
	// Increment atomically adds inc to the user's aggregate, creating the
	// record if needed and leaving unrelated fields untouched.
	Increment(ctx context.Context, userID string, inc Increment) error
	Get(ctx context.Context, userID string) (*UserAggregate, error)
	// ListUserIDs returns the IDs of every existing aggregate record.
	ListUserIDs(ctx context.Context) ([]string, error)
	// ResetToday sets todaySalesCount to 0 on the given records as one atomic batch.
	ResetToday(ctx context.Context, userIDs []string) error
}

// LocalStorage provides an in-memory document store for user aggregates.
type LocalStorage struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	now  func() time.Time
}

// NewLocalStorage instantiates a new LocalStorage with an empty document map.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		docs: map[string]map[string]any{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for server-assigned timestamps.
func (l *LocalStorage) WithClock(now func() time.Time) *LocalStorage {
	l.now = now
	return l
}

// Put merges raw fields into a user document, creating it if needed.
func (l *LocalStorage) Put(userID string, fields map[string]any) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	doc := l.doc(userID)
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Document returns a copy of the raw user document.
func (l *LocalStorage) Document(userID string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[userID]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

func (l *LocalStorage) Increment(ctx context.Context, userID string, inc Increment) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.doc(userID)
	if inc.TotalSalesCount != 0 {
		doc[FieldTotalSalesCount] = asInt(doc[FieldTotalSalesCount]) + inc.TotalSalesCount
	}
	doc[FieldTotalAmount] = asFloat(doc[FieldTotalAmount]) + inc.TotalAmount
	if inc.TodaySalesCount != 0 {
		doc[FieldTodaySalesCount] = asInt(doc[FieldTodaySalesCount]) + inc.TodaySalesCount
	}
	if inc.StampLastSale {
		doc[FieldLastSaleAt] = l.now()
	}
	return nil
}

// Get retrieves a user aggregate by user ID.
// Returns ErrNotFound if no record exists.
func (l *LocalStorage) Get(ctx context.Context, userID string) (*UserAggregate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	agg := &UserAggregate{
		UserID:          userID,
		TotalSalesCount: asInt(doc[FieldTotalSalesCount]),
		TotalAmount:     asFloat(doc[FieldTotalAmount]),
		TodaySalesCount: asInt(doc[FieldTodaySalesCount]),
	}
	if ts, ok := doc[FieldLastSaleAt].(time.Time); ok {
		agg.LastSaleAt = &ts
	}
	return agg, nil
}

func (l *LocalStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.docs))
	for id := range l.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetToday validates the whole batch before writing so a rejected batch
// leaves every document unchanged.
func (l *LocalStorage) ResetToday(ctx context.Context, userIDs []string) error {
	if len(userIDs) > MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(userIDs), MaxBatchOps)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range userIDs {
		if _, ok := l.docs[id]; !ok {
			return fmt.Errorf("reset %q: %w", id, ErrNotFound)
		}
	}
	for _, id := range userIDs {
		l.docs[id][FieldTodaySalesCount] = int64(0)
	}
	return nil
}

func (l *LocalStorage) doc(userID string) map[string]any {
	doc, ok := l.docs[userID]
	if !ok {
		doc = map[string]any{}
		l.docs[userID] = doc
	}
	return doc
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
