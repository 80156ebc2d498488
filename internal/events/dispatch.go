package events

import (
	"context"

	"sales_aggregator/internal/sales"

	"go.uber.org/zap"
)

// Ack tells the event source what to do with a delivery.
type Ack string

const (
	// AckDone marks the event handled.
	AckDone Ack = "ack"
	// AckRequeue asks the source to deliver the event again.
	AckRequeue Ack = "requeue"
	// AckDrop discards an event that can never be handled.
	AckDrop Ack = "drop"
)

// Reactors is the set of sale event handlers a Dispatcher routes to.
type Reactors interface {
	OnSaleCreated(ctx context.Context, userID string, after sales.SaleRecord) sales.Result
	OnSaleDeleted(ctx context.Context, userID string, before sales.SaleRecord) sales.Result
	OnSaleUpdated(ctx context.Context, userID string, before, after sales.SaleRecord) sales.Result
}

// Dispatcher routes sale events to reactors and decides acknowledgement.
type Dispatcher struct {
	reactors     Reactors
	logger       *zap.Logger
	ackOnFailure bool
}

// NewDispatcher creates a Dispatcher. With ackOnFailure set, an event whose
// aggregate write failed is still acknowledged.
func NewDispatcher(reactors Reactors, logger *zap.Logger, ackOnFailure bool) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{reactors: reactors, logger: logger, ackOnFailure: ackOnFailure}
}

// Dispatch runs the reactor for kind. The error is non-nil only for events
// that cannot be routed, which come back as AckDrop.
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, env SaleEnvelope) (sales.Result, Ack, error) {
	kind, err := ParseKind(kind)
	if err != nil {
		return sales.Result{}, AckDrop, err
	}
	if env.UserID == "" {
		return sales.Result{}, AckDrop, ErrMissingUserID
	}

	var res sales.Result
	switch kind {
	case KindCreated:
		res = d.reactors.OnSaleCreated(ctx, env.UserID, env.After)
	case KindDeleted:
		res = d.reactors.OnSaleDeleted(ctx, env.UserID, env.Before)
	case KindUpdated:
		res = d.reactors.OnSaleUpdated(ctx, env.UserID, env.Before, env.After)
	}

	if res.Outcome == sales.OutcomeFailed && !d.ackOnFailure {
		d.logger.Warn("aggregate write failed; requesting redelivery",
			zap.String("kind", kind),
			zap.String("user_id", env.UserID),
			zap.String("message_id", env.MessageID),
		)
		return res, AckRequeue, nil
	}
	return res, AckDone, nil
}
