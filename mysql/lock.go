package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/velmie/ecsync"
)

const (
	defaultLockCheckEvery = 15 * time.Second
	lockReleaseTimeout    = 5 * time.Second
)

// InstanceLockConfig controls the single-instance guard.
type InstanceLockConfig struct {
	// Name is the GET_LOCK name (required).
	Name string
	// CheckEvery is the interval between ownership checks on the lock connection.
	CheckEvery time.Duration
	// Logger receives lock lifecycle messages.
	Logger ecsync.Logger
}

// InstanceLock is a MySQL named lock held on a dedicated connection for as long as the
// guarded function runs.
type InstanceLock struct {
	db  *sql.DB
	cfg InstanceLockConfig
}

// NewInstanceLock creates an instance lock with defaults applied.
func NewInstanceLock(db *sql.DB, cfg InstanceLockConfig) (*InstanceLock, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Name == "" {
		return nil, ErrLockNameRequired
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultLockCheckEvery
	}
	if cfg.Logger == nil {
		cfg.Logger = ecsync.NopLogger{}
	}

	return &InstanceLock{db: db, cfg: cfg}, nil
}

// Hold acquires the lock without waiting and runs fn while it is held. It returns
// ErrLockHeld when another session owns the lock. The context passed to fn is canceled
// if the lock connection is lost, in which case Hold returns ErrLockLost.
func (l *InstanceLock) Hold(ctx context.Context, fn func(context.Context) error) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("ecsync mysql: lock conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := l.tryLock(ctx, conn)
	if err != nil {
		return err
	}
	if !locked {
		return ErrLockHeld
	}
	l.cfg.Logger.Info("ecsync instance lock acquired", "lock", l.cfg.Name)

	runCtx, cancel := context.WithCancelCause(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		l.watch(runCtx, conn, cancel)
	}()

	err = fn(runCtx)
	lost := errors.Is(context.Cause(runCtx), ErrLockLost)
	cancel(nil)
	<-watchDone

	if lost {
		return errors.Join(ErrLockLost, err)
	}
	l.releaseLock(ctx, conn)

	return err
}

func (l *InstanceLock) watch(ctx context.Context, conn *sql.Conn, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.cfg.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			owned, err := l.owned(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			if err != nil || !owned {
				l.cfg.Logger.Error("ecsync instance lock lost", "lock", l.cfg.Name, ecsync.LogKeyErr, err)
				cancel(ErrLockLost)

				return
			}
		}
	}
}

func (l *InstanceLock) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", l.cfg.Name).Scan(&got); err != nil {
		return false, fmt.Errorf("ecsync mysql: acquire instance lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

func (l *InstanceLock) owned(ctx context.Context, conn *sql.Conn) (bool, error) {
	var owner sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT IS_USED_LOCK(?) = CONNECTION_ID()", l.cfg.Name).Scan(&owner); err != nil {
		return false, fmt.Errorf("ecsync mysql: check instance lock failed: %w", err)
	}

	return owner.Valid && owner.Int64 == 1, nil
}

func (l *InstanceLock) releaseLock(ctx context.Context, conn *sql.Conn) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
	defer cancel()

	var released sql.NullInt64
	if err := conn.QueryRowContext(releaseCtx, "SELECT RELEASE_LOCK(?)", l.cfg.Name).Scan(&released); err != nil {
		l.cfg.Logger.Warn("ecsync instance lock release failed", "lock", l.cfg.Name, ecsync.LogKeyErr, err)

		return
	}
	l.cfg.Logger.Info("ecsync instance lock released", "lock", l.cfg.Name)
}
