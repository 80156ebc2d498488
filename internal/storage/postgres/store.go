package postgres

import (
	"context"
	"errors"
	"fmt"

	"sales_aggregator/internal/sales"

	"github.com/jackc/pgx/v5"
)

// Store keeps user aggregates in the user_aggregates table.
type Store struct {
	db *DB
}

// NewStore creates a Store on db.
func NewStore(db *DB) *Store { return &Store{db: db} }

// Row-level locking in ON CONFLICT DO UPDATE makes concurrent increments add up.
const incrementSQL = `
INSERT INTO user_aggregates (user_id, total_sales_count, total_amount, today_sales_count, last_sale_at)
VALUES ($1, $2, $3, $4, CASE WHEN $5::boolean THEN now() END)
ON CONFLICT (user_id) DO UPDATE SET
    total_sales_count = user_aggregates.total_sales_count + EXCLUDED.total_sales_count,
    total_amount      = user_aggregates.total_amount + EXCLUDED.total_amount,
    today_sales_count = user_aggregates.today_sales_count + EXCLUDED.today_sales_count,
    last_sale_at      = COALESCE(EXCLUDED.last_sale_at, user_aggregates.last_sale_at),
    updated_at        = now()`

// Increment upserts the user row and adds inc to its counters.
func (s *Store) Increment(ctx context.Context, userID string, inc sales.Increment) error {
	if userID == "" {
		return sales.ErrEmptyUserID
	}
	_, err := s.db.Pool.Exec(ctx, incrementSQL,
		userID, inc.TotalSalesCount, inc.TotalAmount, inc.TodaySalesCount, inc.StampLastSale)
	if err != nil {
		return fmt.Errorf("increment aggregate: %w", err)
	}
	return nil
}

// Get reads one user aggregate.
func (s *Store) Get(ctx context.Context, userID string) (*sales.UserAggregate, error) {
	agg := &sales.UserAggregate{UserID: userID}
	err := s.db.Pool.QueryRow(ctx, `
		SELECT total_sales_count, total_amount, today_sales_count, last_sale_at
		FROM user_aggregates
		WHERE user_id = $1`, userID).
		Scan(&agg.TotalSalesCount, &agg.TotalAmount, &agg.TodaySalesCount, &agg.LastSaleAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	return agg, nil
}

// ListUserIDs returns every aggregate id, sorted.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT user_id FROM user_aggregates ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user ids: %w", err)
	}
	return ids, nil
}

// ResetToday sends one UPDATE per user in a single transaction. A user whose
// row has disappeared rolls back the whole batch.
func (s *Store) ResetToday(ctx context.Context, userIDs []string) error {
	if len(userIDs) > sales.MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", sales.ErrBatchTooLarge, len(userIDs), sales.MaxBatchOps)
	}
	if len(userIDs) == 0 {
		return nil
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, id := range userIDs {
		batch.Queue(`UPDATE user_aggregates SET today_sales_count = 0, updated_at = now() WHERE user_id = $1`, id)
	}

	br := tx.SendBatch(ctx, batch)
	for _, id := range userIDs {
		ct, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("reset %q: %w", id, err)
		}
		if ct.RowsAffected() == 0 {
			_ = br.Close()
			return fmt.Errorf("reset %q: %w", id, sales.ErrNotFound)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close reset batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset batch: %w", err)
	}
	return nil
}
