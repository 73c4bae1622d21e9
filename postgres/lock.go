package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmie/ecsync"
)

const (
	defaultLockCheckEvery = 15 * time.Second
	lockReleaseTimeout    = 5 * time.Second
)

// InstanceLockConfig controls the single-instance guard.
type InstanceLockConfig struct {
	// Name is hashed into the advisory lock key (required).
	Name string
	// CheckEvery is the interval between pings on the lock connection.
	CheckEvery time.Duration
	// Logger receives lock lifecycle messages.
	Logger ecsync.Logger
}

// InstanceLock is a session advisory lock held on a dedicated pool connection for as
// long as the guarded function runs.
type InstanceLock struct {
	pool *pgxpool.Pool
	cfg  InstanceLockConfig
}

// NewInstanceLock creates an instance lock with defaults applied.
func NewInstanceLock(pool *pgxpool.Pool, cfg InstanceLockConfig) (*InstanceLock, error) {
	if pool == nil {
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

	return &InstanceLock{pool: pool, cfg: cfg}, nil
}

// Hold acquires the lock without waiting and runs fn while it is held. It returns
// ErrLockHeld when another session owns the lock and ErrLockLost when the lock
// connection stops answering, after canceling the context passed to fn.
func (l *InstanceLock) Hold(ctx context.Context, fn func(context.Context) error) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("ecsync postgres: lock conn failed: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", l.cfg.Name).Scan(&locked); err != nil {
		conn.Release()

		return fmt.Errorf("ecsync postgres: acquire instance lock failed: %w", err)
	}
	if !locked {
		conn.Release()

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
		// the session may still be alive, closing it drops the advisory lock
		_ = conn.Hijack().Close(context.WithoutCancel(ctx))

		return errors.Join(ErrLockLost, err)
	}
	l.release(ctx, conn)

	return err
}

func (l *InstanceLock) watch(ctx context.Context, conn *pgxpool.Conn, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.cfg.CheckEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.Ping(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				l.cfg.Logger.Error("ecsync instance lock lost", "lock", l.cfg.Name, ecsync.LogKeyErr, err)
				cancel(ErrLockLost)

				return
			}
		}
	}
}

func (l *InstanceLock) release(ctx context.Context, conn *pgxpool.Conn) {
	defer conn.Release()

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
	defer cancel()

	var released bool
	if err := conn.QueryRow(releaseCtx, "SELECT pg_advisory_unlock(hashtext($1))", l.cfg.Name).Scan(&released); err != nil {
		l.cfg.Logger.Warn("ecsync instance lock release failed", "lock", l.cfg.Name, ecsync.LogKeyErr, err)
		_ = conn.Hijack().Close(releaseCtx)

		return
	}
	l.cfg.Logger.Info("ecsync instance lock released", "lock", l.cfg.Name)
}
