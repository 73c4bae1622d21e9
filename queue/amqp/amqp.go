// Package amqp publishes relay messages to RabbitMQ with amqp091-go.
package amqp

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/velmie/ecsync"
)

const (
	// HeaderGroupID carries the group id.
	HeaderGroupID = "x-group-id"
	// HeaderTaskKind carries the task kind.
	HeaderTaskKind = "x-task-kind"
)

var (
	// ErrChannelRequired is returned when a nil channel is provided.
	ErrChannelRequired = errors.New("ecsync amqp: channel is required")
	// ErrDestinationRequired is returned when neither exchange nor queue is configured.
	ErrDestinationRequired = errors.New("ecsync amqp: exchange or queue is required")
	// ErrNacked is returned when the broker rejected a confirmed publish.
	ErrNacked = errors.New("ecsync amqp: publish was nacked")
)

// Channel is the subset of *amqp.Channel used by Queue.
type Channel interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
}

// Config selects where messages go. With an Exchange the group id is the routing key,
// so a consistent-hash exchange pins each group to one queue. Without it messages go to
// Queue through the default exchange.
type Config struct {
	Exchange string
	Queue    string
}

// Queue publishes persistent messages and, when the channel is in confirm mode, waits for
// the broker ack.
type Queue struct {
	channel Channel
	cfg     Config
}

var _ ecsync.Queue = (*Queue)(nil)

// New constructs a RabbitMQ queue adapter.
func New(channel Channel, cfg Config) (*Queue, error) {
	if channel == nil {
		return nil, ErrChannelRequired
	}
	if cfg.Exchange == "" && cfg.Queue == "" {
		return nil, ErrDestinationRequired
	}

	return &Queue{channel: channel, cfg: cfg}, nil
}

// Send publishes msg.
func (q *Queue) Send(ctx context.Context, msg ecsync.Message) error {
	key := q.cfg.Queue
	if q.cfg.Exchange != "" {
		key = msg.GroupID
	}

	confirm, err := q.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		q.cfg.Exchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.DeduplicationID,
			Type:         msg.TaskKind,
			Headers: amqp.Table{
				HeaderGroupID:  msg.GroupID,
				HeaderTaskKind: msg.TaskKind,
			},
			Body: msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("ecsync amqp: publish failed: %w", err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("ecsync amqp: confirm failed: %w", err)
	}
	if !acked {
		return ErrNacked
	}

	return nil
}
