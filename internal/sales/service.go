package sales

import (
	"context"

	"sales_aggregator/internal/metrics"

	"go.uber.org/zap"
)

// Reactor names, used in logs, metrics and results.
const (
	ReactorCreate = "onSaleCreate"
	ReactorDelete = "onSaleDelete"
	ReactorUpdate = "onSaleUpdate"
)

// Outcome is what a reactor did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result reports a single reactor invocation. A failed write is carried in Err
// after being logged; reactors never return it as an error.
type Result struct {
	Reactor string
	UserID  string
	Outcome Outcome
	Delta   float64
	Err     error
}

// Service keeps user aggregates in step with sale create/update/delete events.
type Service struct {
	storage Storage
	logger  *zap.Logger
}

// NewService creates a new Service.
func NewService(storage Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// OnSaleCreated counts a new sale and stamps lastSaleAt with the store's time.
func (s *Service) OnSaleCreated(ctx context.Context, userID string, after SaleRecord) Result {
	amount := after.Amount()
	return s.apply(ctx, ReactorCreate, userID, amount, Increment{
		TotalSalesCount: 1,
		TotalAmount:     amount,
		TodaySalesCount: 1,
		StampLastSale:   true,
	})
}

// OnSaleDeleted removes a sale's contribution using its last known snapshot.
func (s *Service) OnSaleDeleted(ctx context.Context, userID string, before SaleRecord) Result {
	amount := before.Amount()
	return s.apply(ctx, ReactorDelete, userID, -amount, Increment{
		TotalSalesCount: -1,
		TotalAmount:     -amount,
	})
}

// OnSaleUpdated moves totalAmount by the change in amount. Equal amounts are
// not written at all.
func (s *Service) OnSaleUpdated(ctx context.Context, userID string, before, after SaleRecord) Result {
	delta := after.Amount() - before.Amount()
	if delta == 0 {
		metrics.RecordReactorEvent(ReactorUpdate, string(OutcomeSkipped))
		return Result{Reactor: ReactorUpdate, UserID: userID, Outcome: OutcomeSkipped}
	}
	return s.apply(ctx, ReactorUpdate, userID, delta, Increment{TotalAmount: delta})
}

func (s *Service) apply(ctx context.Context, reactor, userID string, delta float64, inc Increment) Result {
	res := Result{Reactor: reactor, UserID: userID, Delta: delta, Outcome: OutcomeApplied}
	if err := s.storage.Increment(ctx, userID, inc); err != nil {
		s.logger.Error(reactor+" error",
			zap.String("reactor", reactor),
			zap.String("user_id", userID),
			zap.Float64("delta", delta),
			zap.Error(err),
		)
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	metrics.RecordReactorEvent(reactor, string(res.Outcome))
	return res
}
