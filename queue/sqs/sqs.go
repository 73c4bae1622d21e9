// Package sqs publishes relay messages to an SQS FIFO queue.
package sqs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/velmie/ecsync"
)

// TaskKindAttribute is the message attribute carrying the task kind.
const TaskKindAttribute = "taskKind"

var (
	// ErrClientRequired is returned when a nil client is provided.
	ErrClientRequired = errors.New("ecsync sqs: client is required")
	// ErrQueueURLRequired is returned when the queue url is empty.
	ErrQueueURLRequired = errors.New("ecsync sqs: queue url is required")
)

// Client is the subset of *sqs.Client used by Queue.
type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// Queue sends each message to a FIFO queue with the group id as MessageGroupId and the
// deduplication id as MessageDeduplicationId.
type Queue struct {
	client Client
	url    string
}

var _ ecsync.Queue = (*Queue)(nil)

// New constructs an SQS queue adapter.
func New(client Client, queueURL string) (*Queue, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}

	return &Queue{client: client, url: queueURL}, nil
}

// Send publishes msg and returns once SQS accepted it.
func (q *Queue) Send(ctx context.Context, msg ecsync.Message) error {
	_, err := q.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:               aws.String(q.url),
		MessageGroupId:         aws.String(msg.GroupID),
		MessageDeduplicationId: aws.String(msg.DeduplicationID),
		MessageBody:            aws.String(string(msg.Body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			TaskKindAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.TaskKind),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ecsync sqs: send failed: %w", err)
	}

	return nil
}
