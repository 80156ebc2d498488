package sales

import (
	"context"
	"fmt"
	"time"

	"sales_aggregator/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResetReport summarizes a daily reset run.
type ResetReport struct {
	RunID    string        `json:"run_id"`
	Users    int           `json:"users"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// ResetJob zeroes todaySalesCount on every existing user aggregate.
type ResetJob struct {
	storage   Storage
	logger    *zap.Logger
	batchSize int
}

// NewResetJob creates a ResetJob. Batch sizes outside 1..MaxBatchOps fall back to MaxBatchOps.
func NewResetJob(storage Storage, logger *zap.Logger, batchSize int) *ResetJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 || batchSize > MaxBatchOps {
		batchSize = MaxBatchOps
	}
	return &ResetJob{storage: storage, logger: logger, batchSize: batchSize}
}

// Run scans all aggregates and commits the resets batch by batch, in order.
// The first failing batch aborts the run; running again is safe.
func (j *ResetJob) Run(ctx context.Context) (ResetReport, error) {
	start := time.Now()
	report := ResetReport{RunID: uuid.NewString()}
	log := j.logger.With(zap.String("run_id", report.RunID))

	log.Info("Resetting todaySalesCount for all users")

	ids, err := j.storage.ListUserIDs(ctx)
	if err != nil {
		return j.fail(log, report, start, fmt.Errorf("list user aggregates: %w", err))
	}

	for i, batch := range Chunk(ids, j.batchSize) {
		if err := j.storage.ResetToday(ctx, batch); err != nil {
			return j.fail(log, report, start, fmt.Errorf("commit reset batch %d (%d users): %w", i, len(batch), err))
		}
		report.Batches++
		report.Users += len(batch)
		metrics.RecordResetBatch(len(batch))
		log.Debug("reset batch committed", zap.Int("batch", i), zap.Int("size", len(batch)))
	}

	report.Duration = time.Since(start)
	metrics.RecordResetRun("ok", report.Duration)
	log.Info("Reset complete",
		zap.Int("users", report.Users),
		zap.Int("batches", report.Batches),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (j *ResetJob) fail(log *zap.Logger, report ResetReport, start time.Time, err error) (ResetReport, error) {
	report.Duration = time.Since(start)
	metrics.RecordResetRun("error", report.Duration)
	log.Error("reset failed",
		zap.Int("users_reset", report.Users),
		zap.Int("batches_committed", report.Batches),
		zap.Error(err),
	)
	return report, err
}

// Chunk splits items into consecutive groups of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
