// Package nats publishes relay messages to a NATS JetStream stream.
package nats

import (
	"context"
	"errors"
	"fmt"

	natsgo "github.com/nats-io/nats.go"

	"github.com/velmie/ecsync"
)

// HeaderTaskKind carries the task kind.
const HeaderTaskKind = "Ecsync-Task-Kind"

var (
	// ErrJetStreamRequired is returned when a nil JetStream context is provided.
	ErrJetStreamRequired = errors.New("ecsync nats: jetstream is required")
	// ErrSubjectPrefixRequired is returned when the subject prefix is empty.
	ErrSubjectPrefixRequired = errors.New("ecsync nats: subject prefix is required")
)

// JetStream is the subset of nats.JetStreamContext used by Queue.
type JetStream interface {
	PublishMsg(m *natsgo.Msg, opts ...natsgo.PubOpt) (*natsgo.PubAck, error)
}

// Queue publishes each message on "<prefix>.<group id>" with the deduplication id as
// Nats-Msg-Id, so the stream drops duplicates inside its dedup window.
type Queue struct {
	js     JetStream
	prefix string
}

var _ ecsync.Queue = (*Queue)(nil)

// New constructs a JetStream queue adapter.
func New(js JetStream, subjectPrefix string) (*Queue, error) {
	if js == nil {
		return nil, ErrJetStreamRequired
	}
	if subjectPrefix == "" {
		return nil, ErrSubjectPrefixRequired
	}

	return &Queue{js: js, prefix: subjectPrefix}, nil
}

// Subject returns the subject a group is published on.
func (q *Queue) Subject(groupID string) string {
	return q.prefix + "." + groupID
}

// Send publishes msg and waits for the stream ack.
func (q *Queue) Send(ctx context.Context, msg ecsync.Message) error {
	natsMsg := &natsgo.Msg{
		Subject: q.Subject(msg.GroupID),
		Data:    msg.Body,
		Header:  make(natsgo.Header),
	}
	natsMsg.Header.Set(natsgo.MsgIdHdr, msg.DeduplicationID)
	natsMsg.Header.Set(HeaderTaskKind, msg.TaskKind)

	if _, err := q.js.PublishMsg(natsMsg, natsgo.Context(ctx)); err != nil {
		return fmt.Errorf("ecsync nats: publish failed: %w", err)
	}

	return nil
}
