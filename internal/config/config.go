// Package config loads the relay configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Queue drivers.
const (
	QueueSQS   = "sqs"
	QueueKafka = "kafka"
	QueueAMQP  = "amqp"
	QueueNATS  = "nats"
)

// Config is the relay configuration. Fields without a default are required.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"ec-relay"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Release     string `env:"RELEASE" envDefault:""`
	SentryDsn   string `env:"SENTRY_DSN" envDefault:""`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DB    DBConfig    `envPrefix:"DB_"`
	Relay RelayConfig `envPrefix:"RELAY_"`
	Queue QueueConfig `envPrefix:"QUEUE_"`
}

// DBConfig selects the outbox database.
type DBConfig struct {
	Driver     string `env:"DRIVER" envDefault:"mysql"`
	Dsn        string `env:"DSN"`
	StockTable string `env:"STOCK_TABLE" envDefault:"outbox_ec_product_stock_history"`
	PriceTable string `env:"PRICE_TABLE" envDefault:"outbox_product"`
	FetchLimit int    `env:"FETCH_LIMIT" envDefault:"0"`
}

// RelayConfig tunes the poller and its instance lock.
type RelayConfig struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PendingInterval time.Duration `env:"PENDING_INTERVAL" envDefault:"0s"`
	PublishTimeout  time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"0s"`
	ChunkSize       int           `env:"CHUNK_SIZE" envDefault:"500"`
	MaxMessageBytes int           `env:"MAX_MESSAGE_BYTES" envDefault:"261120"`
	TargetWorker    string        `env:"TARGET_WORKER" envDefault:"external-ec"`
	LockName        string        `env:"LOCK_NAME" envDefault:"ecsync:relay"`
	StandbyInterval time.Duration `env:"STANDBY_INTERVAL" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// QueueConfig selects and configures the downstream queue.
type QueueConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqs"`

	SQSURL string `env:"SQS_URL" envDefault:""`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:""`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"external-ec"`

	AMQPURL      string `env:"AMQP_URL" envDefault:""`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:""`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:""`
	AMQPConfirm  bool   `env:"AMQP_CONFIRM" envDefault:"true"`

	NATSURL           string `env:"NATS_URL" envDefault:""`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"ec.tasks"`
}

var (
	// ErrUnknownDBDriver is returned for an unsupported DB_DRIVER.
	ErrUnknownDBDriver = errors.New("config: unknown db driver")
	// ErrUnknownQueueDriver is returned for an unsupported QUEUE_DRIVER.
	ErrUnknownQueueDriver = errors.New("config: unknown queue driver")
	// ErrQueueSettingRequired is returned when the selected queue misses its address.
	ErrQueueSettingRequired = errors.New("config: queue setting required")
)

// Load reads the given dotenv files (".env" when none), ignoring missing ones, then
// parses the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	return Parse(env.Options{})
}

// Parse parses the configuration with opts. RequiredIfNoDef is always set.
func Parse(opts env.Options) (Config, error) {
	opts.RequiredIfNoDef = true

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the driver choices and the settings they need.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDBDriver, c.DB.Driver)
	}

	q := c.Queue
	switch q.Driver {
	case QueueSQS:
		if q.SQSURL == "" {
			return fmt.Errorf("%w: QUEUE_SQS_URL", ErrQueueSettingRequired)
		}
	case QueueKafka:
		if len(q.KafkaBrokers) == 0 {
			return fmt.Errorf("%w: QUEUE_KAFKA_BROKERS", ErrQueueSettingRequired)
		}
	case QueueAMQP:
		if q.AMQPURL == "" {
			return fmt.Errorf("%w: QUEUE_AMQP_URL", ErrQueueSettingRequired)
		}
		if q.AMQPExchange == "" && q.AMQPQueue == "" {
			return fmt.Errorf("%w: QUEUE_AMQP_EXCHANGE or QUEUE_AMQP_QUEUE", ErrQueueSettingRequired)
		}
	case QueueNATS:
		if q.NATSURL == "" {
			return fmt.Errorf("%w: QUEUE_NATS_URL", ErrQueueSettingRequired)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQueueDriver, q.Driver)
	}

	return nil
}
