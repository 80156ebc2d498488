package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sales_aggregator/internal/sales"

	"github.com/redis/go-redis/v9"
)

// incrementScript applies an Increment to one user hash atomically and stamps
// lastSaleAt (unix millis) from the server clock.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local count = tonumber(ARGV[1])
local today = tonumber(ARGV[3])
if count ~= 0 then
  redis.call('HINCRBY', key, 'totalSalesCount', count)
end
redis.call('HINCRBYFLOAT', key, 'totalAmount', ARGV[2])
if today ~= 0 then
  redis.call('HINCRBY', key, 'todaySalesCount', today)
end
if ARGV[4] == '1' then
  local t = redis.call('TIME')
  redis.call('HSET', key, 'lastSaleAt', t[1] .. string.format('%03d', math.floor(tonumber(t[2]) / 1000)))
end
return 1
`)

// resetScript zeroes todaySalesCount on every key, or on none if any key is
// missing or not a hash. Returns 0, or the 1-based index of the first bad key.
var resetScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
  if redis.call('TYPE', key).ok ~= 'hash' then
    return i
  end
end
for _, key in ipairs(KEYS) do
  redis.call('HSET', key, 'todaySalesCount', 0)
end
return 0
`)

// ErrNestedUserID rejects ids that would collide with keys nested under a user.
var ErrNestedUserID = errors.New("user id must not contain ':'")

// Store keeps one hash per user aggregate.
type Store struct {
	Client *redis.Client
	prefix string
}

// New connects a Store to the Redis server at addr.
func New(addr, pass string, db int, prefix string) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return NewWithClient(rdb, prefix)
}

// NewWithClient wraps an existing client; keys are namespaced under prefix.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{Client: client, prefix: prefix}
}

func (s *Store) key(userID string) string {
	return s.prefix + "users:" + userID
}

// Increment applies inc to the user's hash, creating it if needed.
func (s *Store) Increment(ctx context.Context, userID string, inc sales.Increment) error {
	if userID == "" {
		return sales.ErrEmptyUserID
	}
	if strings.Contains(userID, ":") {
		return fmt.Errorf("%w: %q", ErrNestedUserID, userID)
	}
	stamp := "0"
	if inc.StampLastSale {
		stamp = "1"
	}
	err := incrementScript.Run(ctx, s.Client, []string{s.key(userID)},
		inc.TotalSalesCount,
		strconv.FormatFloat(inc.TotalAmount, 'f', -1, 64),
		inc.TodaySalesCount,
		stamp,
	).Err()
	if err != nil {
		return fmt.Errorf("increment aggregate: %w", err)
	}
	return nil
}

// Get reads the aggregate counters of one user.
func (s *Store) Get(ctx context.Context, userID string) (*sales.UserAggregate, error) {
	fields, err := s.Client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	if len(fields) == 0 {
		return nil, sales.ErrNotFound
	}

	agg := &sales.UserAggregate{UserID: userID}
	agg.TotalSalesCount, _ = strconv.ParseInt(fields[sales.FieldTotalSalesCount], 10, 64)
	agg.TotalAmount, _ = strconv.ParseFloat(fields[sales.FieldTotalAmount], 64)
	agg.TodaySalesCount, _ = strconv.ParseInt(fields[sales.FieldTodaySalesCount], 10, 64)
	if raw, ok := fields[sales.FieldLastSaleAt]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts := time.UnixMilli(ms).UTC()
			agg.LastSaleAt = &ts
		}
	}
	return agg, nil
}

// ListUserIDs returns the ids of all aggregate hashes, sorted and without
// duplicates. Keys nested below a user (users:<id>:...) are skipped.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	prefix := s.key("")
	var (
		seen   = make(map[string]struct{})
		cursor uint64
	)
	for {
		keys, next, err := s.Client.ScanType(ctx, cursor, prefix+"*", 1000, "hash").Result()
		if err != nil {
			return nil, fmt.Errorf("scan aggregates: %w", err)
		}
		for _, k := range keys {
			id := strings.TrimPrefix(k, prefix)
			if id == "" || strings.Contains(id, ":") {
				continue
			}
			seen[id] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetToday zeroes todaySalesCount for the batch in one script run.
func (s *Store) ResetToday(ctx context.Context, userIDs []string) error {
	if len(userIDs) > sales.MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", sales.ErrBatchTooLarge, len(userIDs), sales.MaxBatchOps)
	}
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = s.key(id)
	}
	missing, err := resetScript.Run(ctx, s.Client, keys).Int()
	if err != nil {
		return fmt.Errorf("reset batch: %w", err)
	}
	if missing > 0 {
		return fmt.Errorf("reset %q: %w", userIDs[missing-1], sales.ErrNotFound)
	}
	return nil
}
