package mysql

import (
	"errors"

	"github.com/velmie/ecsync/internal/sqlname"
)

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("ecsync mysql: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("ecsync mysql: executor is required")
	// ErrTableNameRequired is returned when a table name is empty.
	ErrTableNameRequired = sqlname.ErrRequired
	// ErrInvalidTableName is returned when a table name has disallowed characters.
	ErrInvalidTableName = sqlname.ErrInvalid
	// ErrFetchLimitInvalid is returned when the fetch limit is negative.
	ErrFetchLimitInvalid = errors.New("ecsync mysql: fetch limit must be non-negative")
	// ErrLockNameRequired is returned when the instance lock has no name.
	ErrLockNameRequired = errors.New("ecsync mysql: lock name is required")
	// ErrLockHeld is returned by InstanceLock.Hold when another session owns the lock.
	ErrLockHeld = errors.New("ecsync mysql: instance lock held by another session")
	// ErrLockLost is returned by InstanceLock.Hold when the lock connection stops answering.
	ErrLockLost = errors.New("ecsync mysql: instance lock connection lost")
)
