package ecsync

import (
	"context"
	"time"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPendingCheck = 0
)

// ErrorHandler is called for every failed cycle step. err is a *FetchError or a
// *PipelineError.
type ErrorHandler func(ctx context.Context, err error)

// PollerConfig defines how the Poller fetches, publishes and waits.
type PollerConfig struct {
	Kinds           []Kind
	Platforms       []Platform
	PollInterval    time.Duration
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
	ErrorHandler    ErrorHandler
	TargetWorker    string
	ChunkSize       int
	MaxMessageBytes int
	PublishTimeout  time.Duration
	PendingInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if len(c.Kinds) == 0 {
		c.Kinds = Kinds
	}
	if c.Platforms == nil {
		c.Platforms = DefaultPlatforms
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.TargetWorker == "" {
		c.TargetWorker = DefaultTargetWorker
	}
	if c.PendingInterval <= 0 {
		c.PendingInterval = defaultPendingCheck
	}

	return c
}

// PollerOption configures Poller behavior.
type PollerOption func(*PollerConfig)

// WithKinds sets the outbox kinds polled each cycle. Defaults to Kinds.
func WithKinds(kinds ...Kind) PollerOption {
	return func(c *PollerConfig) {
		c.Kinds = kinds
	}
}

// WithPlatforms replaces the platform table. Defaults to DefaultPlatforms.
func WithPlatforms(platforms []Platform) PollerOption {
	return func(c *PollerConfig) {
		c.Platforms = platforms
	}
}

// WithPollInterval sets the sleep after an idle cycle or a fetch failure. Default is 5s.
func WithPollInterval(interval time.Duration) PollerOption {
	return func(c *PollerConfig) {
		c.PollInterval = interval
	}
}

// WithClock sets the poller clock.
func WithClock(clock Clock) PollerOption {
	return func(c *PollerConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the poller logger.
func WithLogger(logger Logger) PollerOption {
	return func(c *PollerConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) PollerOption {
	return func(c *PollerConfig) {
		c.Metrics = metrics
	}
}

// WithErrorHandler registers a callback for fetch and pipeline failures.
func WithErrorHandler(handler ErrorHandler) PollerOption {
	return func(c *PollerConfig) {
		c.ErrorHandler = handler
	}
}

// WithTargetWorker sets the envelope targetWorker. Default is "external-ec".
func WithTargetWorker(worker string) PollerOption {
	return func(c *PollerConfig) {
		c.TargetWorker = worker
	}
}

// WithChunkSize splits batches larger than size into several messages of the same group.
// Zero, the default, sends every batch as a single message.
func WithChunkSize(size int) PollerOption {
	return func(c *PollerConfig) {
		c.ChunkSize = size
	}
}

// WithMaxMessageBytes caps the encoded body of a message. Larger chunks are split into
// more messages of the same group. Default is DefaultMaxMessageBytes, negative disables.
func WithMaxMessageBytes(limit int) PollerOption {
	return func(c *PollerConfig) {
		c.MaxMessageBytes = limit
	}
}

// WithPublishTimeout bounds each queue send. Zero, the default, waits for the queue
// indefinitely and a hung queue stalls the whole loop.
func WithPublishTimeout(timeout time.Duration) PollerOption {
	return func(c *PollerConfig) {
		c.PublishTimeout = timeout
	}
}

// WithPendingInterval sets the minimum interval between pending count samples taken on
// idle cycles. The Source must implement PendingCounter. Disabled by default.
func WithPendingInterval(interval time.Duration) PollerOption {
	return func(c *PollerConfig) {
		c.PendingInterval = interval
	}
}
