// Package postgres provides the PostgreSQL outbox store for the ecsync relay on pgx/v5.
//
// It mirrors the MySQL store: one table per kind with a BIGSERIAL id, FetchPending
// ordered by id, DeleteByIDs with a single "id = ANY($1)" statement, and an
// InstanceLock built on session advisory locks.
package postgres
