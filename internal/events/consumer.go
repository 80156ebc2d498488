package events

import (
	"context"
	"strings"
	"time"

	"sales_aggregator/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	reconnectDelay = 5 * time.Second
	consumerTag    = "sales-aggregator"
)

// ConsumerConfig names the broker topology the consumer binds to.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// Consumer feeds sale events from RabbitMQ into a Dispatcher.
type Consumer struct {
	cfg        ConsumerConfig
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewConsumer creates a Consumer; nothing connects until Start.
func NewConsumer(cfg ConsumerConfig, dispatcher *Dispatcher, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Exchange = strings.TrimSpace(cfg.Exchange)
	return &Consumer{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "rabbitmq_consumer")),
	}
}

// Start consumes until ctx is done, reconnecting after broker failures.
func (c *Consumer) Start(ctx context.Context) {
	for {
		if err := c.connectAndConsume(ctx); err != nil {
			c.logger.Warn("consumer error, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) connectAndConsume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	for _, rk := range []string{KindCreated, KindUpdated, KindDeleted} {
		if err := ch.QueueBind(q.Name, rk, c.cfg.Exchange, false, nil); err != nil {
			return err
		}
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("consumer started", zap.String("queue", q.Name), zap.String("exchange", c.cfg.Exchange))

	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(consumerTag, false); err != nil {
				c.logger.Warn("cancel consumer", zap.Error(err))
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			switch ack := c.handleDelivery(ctx, d); ack {
			case AckRequeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Ack(false)
			}
		}
	}
}

// handleDelivery decides the fate of one delivery. The write is detached from
// ctx: shutdown lets it finish before the delivery is acknowledged.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) Ack {
	log := c.logger.With(zap.String("routing_key", d.RoutingKey))

	env, err := Decode(d.Body)
	if err != nil {
		log.Warn("invalid sale event; dropping", zap.Error(err))
		metrics.RecordDelivery("rabbitmq", string(AckDrop))
		return AckDrop
	}
	if env.MessageID == "" {
		env.MessageID = strings.TrimSpace(d.MessageId)
	}

	res, ack, err := c.dispatcher.Dispatch(context.WithoutCancel(ctx), d.RoutingKey, env)
	if err != nil {
		log.Warn("unroutable sale event; dropping", zap.String("message_id", env.MessageID), zap.Error(err))
	} else {
		log.Debug("sale event handled",
			zap.String("message_id", env.MessageID),
			zap.String("user_id", env.UserID),
			zap.String("outcome", string(res.Outcome)),
		)
	}
	metrics.RecordDelivery("rabbitmq", string(ack))
	return ack
}
