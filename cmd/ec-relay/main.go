// Command ec-relay relays stock and price outbox rows to the external storefront queue.
//
// It is configured from the environment (see internal/config) and runs as a single
// active instance: a second process waits in standby until the instance lock frees up.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/config"
	"github.com/velmie/ecsync/internal/logging"
	"github.com/velmie/ecsync/internal/reporting"
	"github.com/velmie/ecsync/mysql"
	"github.com/velmie/ecsync/postgres"
	amqpqueue "github.com/velmie/ecsync/queue/amqp"
	kafkaqueue "github.com/velmie/ecsync/queue/kafka"
	natsqueue "github.com/velmie/ecsync/queue/nats"
	sqsqueue "github.com/velmie/ecsync/queue/sqs"
)

const flushTimeout = 2 * time.Second

var errShutdownTimeout = errors.New("ec-relay: relay did not stop within the shutdown timeout")

// instanceLock runs fn while holding the deployment wide relay lock.
type instanceLock interface {
	Hold(ctx context.Context, fn func(context.Context) error) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.AppName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := reporting.Init(reporting.Options{
		Dsn:         cfg.SentryDsn,
		Release:     cfg.Release,
		Environment: cfg.Environment,
	}); err != nil {
		logger.Error("Sentry init error", zap.Error(err))
	}
	defer reporting.Flush(flushTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ec-relay stopped with error", zap.Error(err))
		reporting.Flush(flushTimeout)
		os.Exit(1)
	}
	logger.Info("Stopped application")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	relayLogger := logging.NewAdapter(logger)

	source, lock, closeDB, err := openSource(ctx, cfg, relayLogger)
	if err != nil {
		return err
	}
	defer closeDB()

	queue, closeQueue, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer closeQueue()

	poller := ecsync.NewPoller(source, queue,
		ecsync.WithPollInterval(cfg.Relay.PollInterval),
		ecsync.WithPendingInterval(cfg.Relay.PendingInterval),
		ecsync.WithPublishTimeout(cfg.Relay.PublishTimeout),
		ecsync.WithChunkSize(cfg.Relay.ChunkSize),
		ecsync.WithMaxMessageBytes(cfg.Relay.MaxMessageBytes),
		ecsync.WithTargetWorker(cfg.Relay.TargetWorker),
		ecsync.WithLogger(relayLogger),
		ecsync.WithErrorHandler(reporting.ErrorHandler(nil)),
	)

	logger.Info("Starting relay",
		zap.String("db", cfg.DB.Driver),
		zap.String("queue", cfg.Queue.Driver),
		zap.Duration("pollInterval", cfg.Relay.PollInterval),
	)

	return runWithShutdownTimeout(ctx, cfg.Relay.ShutdownTimeout, func(ctx context.Context) error {
		return holdAndRun(ctx, lock, cfg.Relay.StandbyInterval, relayLogger, poller.Run)
	})
}

// runWithShutdownTimeout runs fn and, once ctx is canceled, waits at most timeout for it
// to return. A publish stuck on the queue would otherwise block the process exit.
func runWithShutdownTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	if timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errShutdownTimeout
	}
}

// holdAndRun runs fn under lock. While another instance holds the lock, or after the
// lock was lost, it waits standby and tries again until ctx is canceled.
func holdAndRun(ctx context.Context, lock instanceLock, standby time.Duration, logger ecsync.Logger, fn func(context.Context) error) error {
	for {
		err := lock.Hold(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}

		switch {
		case isLockHeld(err):
			logger.Debug("ecsync relay in standby, lock held elsewhere", "retry", standby)
		case isLockLost(err):
			logger.Warn("ecsync relay lost its lock, returning to standby", ecsync.LogKeyErr, err)
		default:
			return err
		}

		timer := time.NewTimer(standby)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func isLockHeld(err error) bool {
	return errors.Is(err, mysql.ErrLockHeld) || errors.Is(err, postgres.ErrLockHeld)
}

func isLockLost(err error) bool {
	return errors.Is(err, mysql.ErrLockLost) || errors.Is(err, postgres.ErrLockLost)
}

func openSource(ctx context.Context, cfg config.Config, logger ecsync.Logger) (ecsync.Source, instanceLock, func(), error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DB.Dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := postgres.NewStore(pool,
			postgres.WithStockTable(cfg.DB.StockTable),
			postgres.WithPriceTable(cfg.DB.PriceTable),
			postgres.WithFetchLimit(cfg.DB.FetchLimit),
		)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		lock, err := postgres.NewInstanceLock(pool, postgres.InstanceLockConfig{Name: cfg.Relay.LockName, Logger: logger})
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		return store, lock, pool.Close, nil
	default:
		db, err := sql.Open("mysql", cfg.DB.Dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		closeDB := func() { _ = db.Close() }
		if err := db.PingContext(ctx); err != nil {
			closeDB()
			return nil, nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		store, err := mysql.NewStore(db,
			mysql.WithStockTable(cfg.DB.StockTable),
			mysql.WithPriceTable(cfg.DB.PriceTable),
			mysql.WithFetchLimit(cfg.DB.FetchLimit),
		)
		if err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		lock, err := mysql.NewInstanceLock(db, mysql.InstanceLockConfig{Name: cfg.Relay.LockName, Logger: logger})
		if err != nil {
			closeDB()
			return nil, nil, nil, err
		}

		return store, lock, closeDB, nil
	}
}

func openQueue(ctx context.Context, cfg config.QueueConfig) (ecsync.Queue, func(), error) {
	switch cfg.Driver {
	case config.QueueKafka:
		writer := kafkaqueue.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		queue, err := kafkaqueue.New(writer)
		if err != nil {
			return nil, nil, err
		}

		return queue, func() { _ = writer.Close() }, nil
	case config.QueueAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial amqp: %w", err)
		}
		channel, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open amqp channel: %w", err)
		}
		closeAll := func() {
			_ = channel.Close()
			_ = conn.Close()
		}
		if cfg.AMQPConfirm {
			if err := channel.Confirm(false); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("enable amqp confirms: %w", err)
			}
		}
		queue, err := amqpqueue.New(channel, amqpqueue.Config{Exchange: cfg.AMQPExchange, Queue: cfg.AMQPQueue})
		if err != nil {
			closeAll()
			return nil, nil, err
		}

		return queue, closeAll, nil
	case config.QueueNATS:
		nc, err := natsgo.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("open jetstream: %w", err)
		}
		queue, err := natsqueue.New(js, cfg.NATSSubjectPrefix)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}

		return queue, func() { _ = nc.Drain() }, nil
	default:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		queue, err := sqsqueue.New(awssqs.NewFromConfig(awsCfg), cfg.SQSURL)
		if err != nil {
			return nil, nil, err
		}

		return queue, func() {}, nil
	}
}
