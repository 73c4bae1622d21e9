package ecsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DefaultTargetWorker is the downstream worker that applies storefront updates.
const DefaultTargetWorker = "external-ec"

// DefaultMaxMessageBytes caps an encoded message body. SQS accepts 256 KiB including
// message attributes, the cap leaves 1 KiB for those.
const DefaultMaxMessageBytes = 255 * 1024

// Message is a single queue submission.
type Message struct {
	// GroupID scopes FIFO delivery. Messages sharing a GroupID are consumed in send order.
	GroupID string
	// DeduplicationID is derived from GroupID, the chunk's record ids and its items.
	// Resending the same records yields the same id, the process id does not take part.
	DeduplicationID string
	// TaskKind names the downstream task, e.g. "shopifyUpdatePrice".
	TaskKind string
	// Body is the JSON encoded Envelope.
	Body []byte
}

// Queue is the downstream ordered task queue.
//
// Implementations must preserve send order for messages sharing a GroupID. Consumers on
// the other side must apply payloads as absolute values, in order per GroupID, and must
// tolerate receiving an already applied message again.
type Queue interface {
	// Send submits a message and returns once the queue accepted it.
	Send(ctx context.Context, msg Message) error
}

// QueueFunc adapts a function to Queue.
type QueueFunc func(ctx context.Context, msg Message) error

// Send implements Queue.
func (fn QueueFunc) Send(ctx context.Context, msg Message) error {
	return fn(ctx, msg)
}

// EnvelopeIDs identifies the tenant a task belongs to.
type EnvelopeIDs struct {
	StoreID int64 `json:"storeId"`
}

// TaskItem wraps a payload with its position in the batch.
type TaskItem struct {
	TaskItemID int     `json:"task_item_id"`
	Data       Payload `json:"data"`
}

// Envelope is the message body understood by downstream workers.
type Envelope struct {
	TargetWorker  string      `json:"targetWorker"`
	Kind          string      `json:"kind"`
	FromProcessID string      `json:"fromProcessId"`
	ChunkID       int         `json:"chunkId"`
	IDs           EnvelopeIDs `json:"ids"`
	// FromSystem marks the task as system originated, it is not tracked as a user task.
	FromSystem bool       `json:"fromSystem"`
	Body       []TaskItem `json:"body"`
}

// Publisher turns TaskBatches into queue messages.
type Publisher struct {
	queue          Queue
	targetWorker   string
	chunkSize      int
	maxBodyBytes   int
	publishTimeout time.Duration
}

// NewPublisher constructs a Publisher. A chunkSize of zero sends each batch as one message
// unless its body exceeds DefaultMaxMessageBytes, see SetMaxMessageBytes.
func NewPublisher(queue Queue, targetWorker string, chunkSize int, publishTimeout time.Duration) *Publisher {
	if queue == nil {
		panic("ecsync: nil Queue")
	}
	if targetWorker == "" {
		targetWorker = DefaultTargetWorker
	}

	return &Publisher{
		queue:          queue,
		targetWorker:   targetWorker,
		chunkSize:      chunkSize,
		maxBodyBytes:   DefaultMaxMessageBytes,
		publishTimeout: publishTimeout,
	}
}

// SetMaxMessageBytes changes the body size cap. Chunks whose encoded body exceeds it are
// halved until they fit. A negative value disables the cap, zero restores the default.
func (p *Publisher) SetMaxMessageBytes(limit int) {
	switch {
	case limit == 0:
		p.maxBodyBytes = DefaultMaxMessageBytes
	case limit < 0:
		p.maxBodyBytes = 0
	default:
		p.maxBodyBytes = limit
	}
}

// Publish sends the batch under its partition group id. Chunks are sent sequentially and
// the first failing send aborts the rest.
func (p *Publisher) Publish(ctx context.Context, processID string, batch TaskBatch) (int, error) {
	msgs, err := p.Messages(processID, batch)
	if err != nil {
		return 0, err
	}

	for i, msg := range msgs {
		if err := p.send(ctx, msg); err != nil {
			return i, fmt.Errorf("send chunk %d/%d: %w", i+1, len(msgs), err)
		}
	}

	return len(msgs), nil
}

// Messages encodes the batch into the messages Publish would send.
func (p *Publisher) Messages(processID string, batch TaskBatch) ([]Message, error) {
	if len(batch.Payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(batch.RecordIDs) != len(batch.Payloads) {
		return nil, ErrBatchMismatch
	}

	items := make([]TaskItem, len(batch.Payloads))
	for i, payload := range batch.Payloads {
		items[i] = TaskItem{TaskItemID: i + 1, Data: payload}
	}

	var msgs []Message
	for _, b := range chunkBounds(len(items), p.chunkSize) {
		var err error
		msgs, err = p.appendChunk(msgs, processID, batch, items, b[0], b[1])
		if err != nil {
			return nil, err
		}
	}

	return msgs, nil
}

// appendChunk encodes items[start:end] as the next message of the batch. A body over the
// size cap is split in two halves, keeping item order and consecutive chunk ids.
func (p *Publisher) appendChunk(msgs []Message, processID string, batch TaskBatch, items []TaskItem, start, end int) ([]Message, error) {
	chunk := items[start:end]
	body, err := json.Marshal(Envelope{
		TargetWorker:  p.targetWorker,
		Kind:          batch.TaskKind,
		FromProcessID: processID,
		ChunkID:       len(msgs) + 1,
		IDs:           EnvelopeIDs{StoreID: batch.Key.StoreID},
		FromSystem:    true,
		Body:          chunk,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	if p.maxBodyBytes > 0 && len(body) > p.maxBodyBytes {
		if len(chunk) == 1 {
			return nil, fmt.Errorf("%w: %d bytes for a single item", ErrMessageTooLarge, len(body))
		}
		mid := start + len(chunk)/2
		if msgs, err = p.appendChunk(msgs, processID, batch, items, start, mid); err != nil {
			return nil, err
		}

		return p.appendChunk(msgs, processID, batch, items, mid, end)
	}

	groupID := batch.Key.GroupID()

	return append(msgs, Message{
		GroupID:         groupID,
		DeduplicationID: deduplicationID(groupID, batch.RecordIDs[start:end], chunk),
		TaskKind:        batch.TaskKind,
		Body:            body,
	}), nil
}

func (p *Publisher) send(ctx context.Context, msg Message) error {
	if p.publishTimeout <= 0 {
		return p.queue.Send(ctx, msg)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	return p.queue.Send(sendCtx, msg)
}

// chunkBounds returns [start, end) pairs covering n items.
func chunkBounds(n, size int) [][2]int {
	if size <= 0 || n <= size {
		return [][2]int{{0, n}}
	}

	bounds := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		bounds = append(bounds, [2]int{start, min(start+size, n)})
	}

	return bounds
}

// deduplicationID is stable across retries of the same records and differs for new
// records carrying equal values. The process id is left out since it changes every cycle.
func deduplicationID(groupID string, recordIDs []int64, items []TaskItem) string {
	h := sha256.New()
	h.Write([]byte(groupID))
	for _, id := range recordIDs {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(id, 10)))
	}
	h.Write([]byte{0})
	// Payloads are plain structs, encoding cannot fail.
	data, _ := json.Marshal(items)
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}
