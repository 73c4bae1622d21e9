// Package queue groups the downstream queue adapters of the relay. Each subpackage
// implements ecsync.Queue on one broker and keeps per group ordering:
//   - sqs: SQS FIFO, MessageGroupId is the group id
//   - kafka: the group id is the record key, hashed to a single partition
//   - amqp: RabbitMQ, the group id is the routing key of a consistent-hash exchange
//   - nats: JetStream, the group id is the last subject token
package queue
