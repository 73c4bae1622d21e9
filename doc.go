// Package ecsync relays stock and price changes from transactional outbox tables to
// external storefront platforms through an ordered task queue.
//
// Typical flow:
//  1. Within a business transaction, enqueue an Entry using a storage-specific store.
//  2. Run a Poller with a Source (the same store) and a Queue adapter.
//  3. Each cycle the Poller fetches every kind's backlog, groups records into TaskBatches
//     per store, platform and field, publishes them under a deterministic group id and
//     deletes the consumed rows once the whole kind was published.
//
// Delivery is at-least-once. Payloads carry absolute values and order is preserved per
// group id, so queue consumers must apply them idempotently, in order, per group.
//
// For the MySQL implementation see the mysql package, for PostgreSQL the postgres package.
package ecsync
