// Package mysql provides the MySQL 8.0+ outbox store for the ecsync relay.
//
// Each kind lives in its own table with an AUTO_INCREMENT id that defines FIFO order:
//   - Enqueue inserts a row inside the caller's business transaction
//   - FetchPending reads the whole backlog (or the oldest FetchLimit rows) ORDER BY id ASC
//   - DeleteByIDs removes relayed rows in a single transaction
//
// The DSN must set parseTime=true. See Schema for the table DDL and InstanceLock for the
// GET_LOCK guard that keeps a single relay running per deployment.
package mysql
