package ecsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Poller drives the relay: fetch every kind, publish each kind's batches, delete what
// was published, and sleep when there is nothing to do.
//
// Exactly one Poller may run per deployment. Two instances would publish the same rows
// twice and race on delete, see the InstanceLock of the storage packages.
type Poller struct {
	source    Source
	publisher *Publisher
	cfg       PollerConfig

	pendingMu sync.Mutex
	pendingAt time.Time

	lifeMu  sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller constructs a Poller with defaults and optional settings.
func NewPoller(source Source, queue Queue, opts ...PollerOption) *Poller {
	if source == nil {
		panic("ecsync: nil Source")
	}
	if queue == nil {
		panic("ecsync: nil Queue")
	}

	var cfg PollerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	publisher := NewPublisher(queue, cfg.TargetWorker, cfg.ChunkSize, cfg.PublishTimeout)
	publisher.SetMaxMessageBytes(cfg.MaxMessageBytes)

	return &Poller{
		source:    source,
		publisher: publisher,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
}

// Run polls until ctx is canceled. It sleeps the poll interval after an idle cycle or a
// fetch failure and starts the next cycle immediately after a cycle that had work.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return ignoreCanceled(err)
		}

		worked, err := p.ProcessOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ignoreCanceled(ctx.Err())
			}
			p.cfg.Logger.Error("ecsync fetch failed, backing off", LogKeyErr, err, "backoff", p.cfg.PollInterval)
			p.handleError(ctx, err)
		}
		if err != nil || !worked {
			if sleepErr := sleep(ctx, p.cfg.PollInterval); sleepErr != nil {
				return ignoreCanceled(sleepErr)
			}
		}
	}
}

// ProcessOnce runs a single cycle. It reports whether any kind had pending records.
// A fetch failure is returned and nothing is published. Pipeline failures are logged and
// reported to the error handler but not returned, so one kind never blocks another.
func (p *Poller) ProcessOnce(ctx context.Context) (bool, error) {
	start := p.cfg.Clock.Now()

	fetched, err := p.fetchAll(ctx)
	if err != nil {
		return false, err
	}

	total := 0
	for _, records := range fetched {
		total += len(records)
	}
	if total == 0 {
		p.maybeRecordPending(ctx)

		return false, nil
	}
	defer func() {
		p.cfg.Metrics.ObserveCycleDuration(p.cfg.Clock.Now().Sub(start))
	}()

	processID := newProcessID()
	for i, kind := range p.cfg.Kinds {
		records := fetched[i]
		if len(records) == 0 {
			continue
		}

		if err := p.runPipeline(ctx, processID, kind, records); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			p.cfg.Metrics.AddPipelineErrors(kind, 1)
			p.cfg.Logger.Error("ecsync pipeline failed, records stay pending",
				LogKeyKind, kind, LogKeyCount, len(records), LogKeyProcessID, processID, LogKeyErr, err)
			p.handleError(ctx, err)
		}
	}

	return true, nil
}

// fetchAll reads every kind concurrently. Results are indexed like cfg.Kinds.
func (p *Poller) fetchAll(ctx context.Context) ([][]Record, error) {
	results := make([][]Record, len(p.cfg.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range p.cfg.Kinds {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = &FetchError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrWorkerPanic, rec)}
				}
			}()

			records, err := p.source.FetchPending(gctx, kind)
			if err != nil {
				return &FetchError{Kind: kind, Err: err}
			}
			results[i] = records

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// runPipeline publishes every batch of one kind and deletes the kind's records only when
// all batches were accepted. Any failure leaves every record of the kind pending.
func (p *Poller) runPipeline(ctx context.Context, processID string, kind Kind, records []Record) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PipelineError{Kind: kind, Err: fmt.Errorf("%w: %v", ErrWorkerPanic, rec)}
		}
	}()

	batches := BuildBatches(kind, records, p.cfg.Platforms)

	published := 0
	for _, batch := range batches {
		sent, err := p.publisher.Publish(ctx, processID, batch)
		if err != nil {
			return &PipelineError{Kind: kind, GroupID: batch.Key.GroupID(), Err: err}
		}
		published += len(batch.Payloads)
		p.cfg.Logger.Debug("ecsync batch published",
			LogKeyKind, kind,
			LogKeyGroupID, batch.Key.GroupID(),
			LogKeyStoreID, batch.Key.StoreID,
			LogKeyCount, len(batch.Payloads),
			"messages", sent,
		)
	}
	p.cfg.Metrics.AddPublished(kind, published)

	ids := RecordIDs(records)
	if err := p.source.DeleteByIDs(ctx, kind, ids); err != nil {
		return &PipelineError{Kind: kind, Err: fmt.Errorf("delete relayed records: %w", err)}
	}
	p.cfg.Metrics.AddDeleted(kind, len(ids))

	p.cfg.Logger.Info("ecsync outbox relayed",
		LogKeyKind, kind,
		LogKeyCount, len(ids),
		"batches", len(batches),
		"payloads", published,
		LogKeyProcessID, processID,
	)

	return nil
}

// Start runs the poller in the background. Only the first call has an effect.
func (p *Poller) Start() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		defer close(p.done)
		if err := p.Run(ctx); err != nil {
			p.cfg.Logger.Error("ecsync poller stopped", LogKeyErr, err)
		}
	}()
}

// Stop cancels the background poller and waits for the running cycle to return or for
// ctx to expire, in which case ctx's error is returned. Calling Stop more than once, or
// before Start, is a no-op.
func (p *Poller) Stop(ctx context.Context) error {
	p.lifeMu.Lock()
	if !p.started || p.stopped {
		p.lifeMu.Unlock()

		return nil
	}
	p.stopped = true
	p.cancel()
	p.lifeMu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) handleError(ctx context.Context, err error) {
	if p.cfg.ErrorHandler != nil {
		p.cfg.ErrorHandler(ctx, err)
	}
}

func (p *Poller) maybeRecordPending(ctx context.Context) {
	counter, ok := p.source.(PendingCounter)
	if !ok {
		return
	}
	if p.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := p.cfg.Clock.Now()
	p.pendingMu.Lock()
	nextAllowed := p.pendingAt.Add(p.cfg.PendingInterval)
	if !p.pendingAt.IsZero() && now.Before(nextAllowed) {
		p.pendingMu.Unlock()

		return
	}
	p.pendingAt = now
	p.pendingMu.Unlock()

	for _, kind := range p.cfg.Kinds {
		count, err := counter.PendingCount(ctx, kind)
		if err != nil {
			p.cfg.Logger.Warn("ecsync pending count failed", LogKeyKind, kind, LogKeyErr, err)

			continue
		}
		p.cfg.Metrics.SetPending(kind, count)
	}
}

func newProcessID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
