// Package kafka publishes relay messages to a Kafka topic with kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/velmie/ecsync"
)

const (
	// HeaderTaskKind carries the task kind.
	HeaderTaskKind = "task-kind"
	// HeaderDeduplicationID carries the deduplication id for consumer side dedup.
	HeaderDeduplicationID = "dedup-id"

	writerBatchTimeout = 10 * time.Millisecond
)

// ErrWriterRequired is returned when a nil writer is provided.
var ErrWriterRequired = errors.New("ecsync kafka: writer is required")

// Writer is the subset of *kafka.Writer used by Queue.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Queue writes each message keyed by its group id, so one group always lands on one
// partition and keeps its order.
type Queue struct {
	writer Writer
}

var _ ecsync.Queue = (*Queue)(nil)

// New constructs a Kafka queue adapter.
func New(writer Writer) (*Queue, error) {
	if writer == nil {
		return nil, ErrWriterRequired
	}

	return &Queue{writer: writer}, nil
}

// NewWriter returns a synchronous writer that hashes keys to partitions and waits for
// every in-sync replica.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: writerBatchTimeout,
	}
}

// Send writes msg and returns once the broker acknowledged it.
func (q *Queue) Send(ctx context.Context, msg ecsync.Message) error {
	err := q.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(msg.GroupID),
		Value: msg.Body,
		Headers: []kafkago.Header{
			{Key: HeaderTaskKind, Value: []byte(msg.TaskKind)},
			{Key: HeaderDeduplicationID, Value: []byte(msg.DeduplicationID)},
		},
	})
	if err != nil {
		return fmt.Errorf("ecsync kafka: write failed: %w", err)
	}

	return nil
}
