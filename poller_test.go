package ecsync

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	records   map[Kind][]Record
	fetchErr  map[Kind]error
	deleteErr map[Kind]error
	deleted   map[Kind][][]int64
	fetches   int
	panicOn   Kind
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:   make(map[Kind][]Record),
		fetchErr:  make(map[Kind]error),
		deleteErr: make(map[Kind]error),
		deleted:   make(map[Kind][][]int64),
	}
}

func (s *fakeSource) add(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Kind] = append(s.records[r.Kind], r)
	}
}

func (s *fakeSource) FetchPending(_ context.Context, kind Kind) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if kind == s.panicOn {
		panic("driver exploded")
	}
	if err := s.fetchErr[kind]; err != nil {
		return nil, err
	}

	return append([]Record(nil), s.records[kind]...), nil
}

func (s *fakeSource) DeleteByIDs(_ context.Context, kind Kind, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[kind]; err != nil {
		return err
	}
	s.deleted[kind] = append(s.deleted[kind], ids)

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.records[kind][:0]
	for _, r := range s.records[kind] {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	s.records[kind] = kept

	return nil
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fetches
}

func (s *fakeSource) pending(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records[kind])
}

type recordingQueue struct {
	mu        sync.Mutex
	sent      []Message
	failGroup map[string]error
	panicOn   string
}

func (q *recordingQueue) Send(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg.GroupID == q.panicOn {
		panic("queue exploded")
	}
	if err := q.failGroup[msg.GroupID]; err != nil {
		return err
	}
	q.sent = append(q.sent, msg)

	return nil
}

func (q *recordingQueue) groups() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.sent))
	for _, msg := range q.sent {
		out = append(out, msg.GroupID)
	}

	return out
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.sent)
}

type captureMetrics struct {
	mu        sync.Mutex
	published map[Kind]int
	deleted   map[Kind]int
	errors    map[Kind]int
	pending   map[Kind]int
	cycles    int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		published: make(map[Kind]int),
		deleted:   make(map[Kind]int),
		errors:    make(map[Kind]int),
		pending:   make(map[Kind]int),
	}
}

func (m *captureMetrics) ObserveCycleDuration(time.Duration) {
	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

func (m *captureMetrics) AddPublished(kind Kind, count int) {
	m.mu.Lock()
	m.published[kind] += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddDeleted(kind Kind, count int) {
	m.mu.Lock()
	m.deleted[kind] += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddPipelineErrors(kind Kind, count int) {
	m.mu.Lock()
	m.errors[kind] += count
	m.mu.Unlock()
}

func (m *captureMetrics) SetPending(kind Kind, count int) {
	m.mu.Lock()
	m.pending[kind] = count
	m.mu.Unlock()
}

type pendingSource struct {
	*fakeSource
	counts map[Kind]int
	calls  int
}

func (s *pendingSource) PendingCount(_ context.Context, kind Kind) (int, error) {
	s.calls++
	return s.counts[kind], nil
}

type sequenceClock struct {
	mu    sync.Mutex
	times []time.Time
	idx   int
}

func (c *sequenceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	now := c.times[c.idx]
	c.idx++

	return now
}

func exampleRecords() []Record {
	return []Record{
		{ID: 1001, Kind: KindStock, StoreID: 1, Refs: Refs{OchanokoProductID: 100}, Value: 5},
		{ID: 1002, Kind: KindStock, StoreID: 1, Refs: Refs{ShopifyInventoryItemID: "200"}, Value: 5},
		{ID: 1003, Kind: KindStock, StoreID: 1, Refs: Refs{OchanokoProductID: 100}, Value: 3},
	}
}

func TestPollerProcessOnceExampleScenario(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	queue := &recordingQueue{}
	metrics := newCaptureMetrics()

	poller := NewPoller(source, queue, WithMetrics(metrics))
	worked, err := poller.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once: %v", err)
	}
	if !worked {
		t.Fatalf("expected work")
	}

	if got := queue.groups(); !reflect.DeepEqual(got, []string{"ochanoko-1-stock-number", "shopify-1-stock-number"}) {
		t.Fatalf("unexpected groups: %v", got)
	}
	if len(source.deleted[KindStock]) != 1 {
		t.Fatalf("expected a single delete call, got %d", len(source.deleted[KindStock]))
	}
	if got := source.deleted[KindStock][0]; !reflect.DeepEqual(got, []int64{1001, 1002, 1003}) {
		t.Fatalf("unexpected deleted ids: %v", got)
	}
	if len(source.deleted[KindPrice]) != 0 {
		t.Fatalf("expected no price delete")
	}
	if metrics.published[KindStock] != 3 || metrics.deleted[KindStock] != 3 || metrics.cycles != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestPollerAllOrNothingDelete(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	boom := errors.New("queue unavailable")
	queue := &recordingQueue{failGroup: map[string]error{"shopify-1-stock-number": boom}}

	var handled []error
	poller := NewPoller(source, queue, WithErrorHandler(func(_ context.Context, err error) {
		handled = append(handled, err)
	}))

	worked, err := poller.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once: %v", err)
	}
	if !worked {
		t.Fatalf("expected work")
	}
	if queue.count() != 1 {
		t.Fatalf("expected ochanoko batch to be sent before the failure, got %d", queue.count())
	}
	if len(source.deleted[KindStock]) != 0 {
		t.Fatalf("expected no rows deleted after a partial failure")
	}
	if source.pending(KindStock) != 3 {
		t.Fatalf("expected all rows pending, got %d", source.pending(KindStock))
	}

	if len(handled) != 1 {
		t.Fatalf("expected one handled error, got %d", len(handled))
	}
	var pipeErr *PipelineError
	if !errors.As(handled[0], &pipeErr) {
		t.Fatalf("expected PipelineError, got %T", handled[0])
	}
	if pipeErr.Kind != KindStock || pipeErr.GroupID != "shopify-1-stock-number" || !errors.Is(pipeErr, boom) {
		t.Fatalf("unexpected pipeline error: %v", pipeErr)
	}

	// the next cycle reproduces the already sent batch byte for byte
	firstBody := append([]byte(nil), queue.sent[0].Body...)
	firstDedup := queue.sent[0].DeduplicationID
	delete(queue.failGroup, "shopify-1-stock-number")

	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if queue.count() != 3 {
		t.Fatalf("expected republish of both partitions, got %d sends", queue.count())
	}
	resent := queue.sent[1]
	if resent.DeduplicationID != firstDedup {
		t.Fatalf("expected identical dedup id on retry")
	}
	if !reflect.DeepEqual(decodeEnvelope(t, resent.Body).Body, decodeEnvelope(t, firstBody).Body) {
		t.Fatalf("expected identical payloads on retry")
	}
	if source.pending(KindStock) != 0 {
		t.Fatalf("expected rows deleted after successful retry")
	}
}

func TestPollerKindsDoNotInterfere(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	source.add(Record{ID: 1, Kind: KindPrice, StoreID: 1, Refs: Refs{OchanokoProductID: 100}, Value: 1500})
	queue := &recordingQueue{failGroup: map[string]error{"ochanoko-1-stock-number": errors.New("boom")}}
	metrics := newCaptureMetrics()

	poller := NewPoller(source, queue, WithMetrics(metrics))
	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	if source.pending(KindStock) != 3 {
		t.Fatalf("expected stock rows pending")
	}
	if source.pending(KindPrice) != 0 {
		t.Fatalf("expected price rows deleted")
	}
	if got := queue.groups(); !reflect.DeepEqual(got, []string{"ochanoko-1-price"}) {
		t.Fatalf("unexpected groups: %v", got)
	}
	if metrics.errors[KindStock] != 1 || metrics.errors[KindPrice] != 0 {
		t.Fatalf("unexpected pipeline errors: %v", metrics.errors)
	}
}

func TestPollerDeleteFailureKeepsRows(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	source.deleteErr[KindStock] = errors.New("lock wait timeout")

	var handled error
	poller := NewPoller(source, &recordingQueue{}, WithErrorHandler(func(_ context.Context, err error) {
		handled = err
	}))
	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}

	var pipeErr *PipelineError
	if !errors.As(handled, &pipeErr) || pipeErr.GroupID != "" {
		t.Fatalf("expected delete PipelineError, got %v", handled)
	}
	if source.pending(KindStock) != 3 {
		t.Fatalf("expected rows pending")
	}
}

func TestPollerPipelinePanicIsolated(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	source.add(Record{ID: 1, Kind: KindPrice, StoreID: 1, Refs: Refs{OchanokoProductID: 100}, Value: 1500})
	queue := &recordingQueue{panicOn: "ochanoko-1-stock-number"}

	var handled error
	poller := NewPoller(source, queue, WithErrorHandler(func(_ context.Context, err error) {
		handled = err
	}))
	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if !errors.Is(handled, ErrWorkerPanic) {
		t.Fatalf("expected ErrWorkerPanic, got %v", handled)
	}
	if source.pending(KindPrice) != 0 {
		t.Fatalf("expected price kind to complete")
	}
}

func TestPollerRecordsWithoutRefsAreDeleted(t *testing.T) {
	source := newFakeSource()
	source.add(Record{ID: 5, Kind: KindPrice, StoreID: 1, Refs: Refs{ShopifyProductID: "p"}, Value: 100})
	queue := &recordingQueue{}

	poller := NewPoller(source, queue)
	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if queue.count() != 0 {
		t.Fatalf("expected nothing published")
	}
	if got := source.deleted[KindPrice]; len(got) != 1 || !reflect.DeepEqual(got[0], []int64{5}) {
		t.Fatalf("expected record to be consumed, got %v", got)
	}
}

func TestPollerIdleCycle(t *testing.T) {
	source := newFakeSource()
	queue := &recordingQueue{}
	metrics := newCaptureMetrics()

	poller := NewPoller(source, queue, WithMetrics(metrics))
	worked, err := poller.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once: %v", err)
	}
	if worked {
		t.Fatalf("expected idle cycle")
	}
	if queue.count() != 0 || len(source.deleted) != 0 {
		t.Fatalf("expected no publish or delete on idle cycle")
	}
	if source.fetchCount() != len(Kinds) {
		t.Fatalf("expected one fetch per kind, got %d", source.fetchCount())
	}
	if metrics.cycles != 0 {
		t.Fatalf("expected idle cycles not to be timed")
	}
}

func TestPollerFetchErrorSkipsCycle(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	source.fetchErr[KindPrice] = errors.New("connection refused")
	queue := &recordingQueue{}

	poller := NewPoller(source, queue)
	worked, err := poller.ProcessOnce(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindPrice {
		t.Fatalf("expected price FetchError, got %v", err)
	}
	if worked {
		t.Fatalf("expected no work on fetch failure")
	}
	if queue.count() != 0 {
		t.Fatalf("expected nothing published when fetch fails")
	}
}

func TestPollerFetchPanicBecomesFetchError(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	source.panicOn = KindPrice
	queue := &recordingQueue{}

	poller := NewPoller(source, queue)
	worked, err := poller.ProcessOnce(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindPrice {
		t.Fatalf("expected price FetchError, got %v", err)
	}
	if !errors.Is(err, ErrWorkerPanic) {
		t.Fatalf("expected ErrWorkerPanic, got %v", err)
	}
	if worked || queue.count() != 0 {
		t.Fatalf("expected the cycle to be skipped")
	}
	if source.pending(KindStock) != 3 {
		t.Fatalf("expected stock rows to stay pending")
	}
}

func TestPollerDrainsBacklogLargerThanQueueMessageLimit(t *testing.T) {
	const sqsLimit = 256 * 1024

	source := newFakeSource()
	for i := range 5000 {
		source.add(Record{ID: int64(i + 1), Kind: KindStock, StoreID: 1, Refs: Refs{OchanokoProductID: int64(100000 + i)}, Value: int64(i)})
	}
	var largest int
	queue := QueueFunc(func(_ context.Context, msg Message) error {
		largest = max(largest, len(msg.Body))
		if len(msg.Body) > sqsLimit {
			return errors.New("message body too long")
		}
		return nil
	})

	var handled error
	poller := NewPoller(source, queue, WithErrorHandler(func(_ context.Context, err error) {
		handled = err
	}))
	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if handled != nil {
		t.Fatalf("unexpected pipeline error: %v", handled)
	}
	if source.pending(KindStock) != 0 {
		t.Fatalf("expected backlog to drain, %d pending", source.pending(KindStock))
	}
	if largest == 0 || largest > DefaultMaxMessageBytes {
		t.Fatalf("unexpected largest body: %d", largest)
	}
}

func TestPollerRunSleepsWhenIdle(t *testing.T) {
	source := newFakeSource()
	poller := NewPoller(source, &recordingQueue{}, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- poller.Run(ctx) }()

	require.Eventually(t, func() bool { return source.fetchCount() == len(Kinds) }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, len(Kinds), source.fetchCount(), "expected no fetch while sleeping")

	cancel()
	require.NoError(t, <-errCh)
}

func TestPollerRunBacksOffOnFetchError(t *testing.T) {
	source := newFakeSource()
	source.fetchErr[KindStock] = errors.New("down")

	var mu sync.Mutex
	var handled []error
	poller := NewPoller(source, &recordingQueue{}, WithPollInterval(time.Hour), WithErrorHandler(func(_ context.Context, err error) {
		mu.Lock()
		handled = append(handled, err)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- poller.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, len(Kinds), source.fetchCount(), "expected backoff instead of busy loop")

	cancel()
	require.NoError(t, <-errCh)

	var fetchErr *FetchError
	require.ErrorAs(t, handled[0], &fetchErr)
}

func TestPollerRunDrainsBacklogWithoutSleeping(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	queue := &recordingQueue{}
	poller := NewPoller(source, queue, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- poller.Run(ctx) }()

	// the cycle after a busy one starts immediately and finds nothing
	require.Eventually(t, func() bool { return source.fetchCount() == 2*len(Kinds) }, time.Second, 5*time.Millisecond)
	require.Equal(t, 0, source.pending(KindStock))

	cancel()
	require.NoError(t, <-errCh)
}

func TestPollerStartStop(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	queue := &recordingQueue{}
	poller := NewPoller(source, queue, WithPollInterval(time.Hour))

	require.NoError(t, poller.Stop(context.Background()), "stop before start is a no-op")

	poller.Start()
	poller.Start()
	require.Eventually(t, func() bool { return source.pending(KindStock) == 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, poller.Stop(ctx))
	require.NoError(t, poller.Stop(ctx))
}

func TestPollerStopTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	source := newFakeSource()
	source.add(exampleRecords()...)
	queue := QueueFunc(func(context.Context, Message) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	poller := NewPoller(source, queue)
	poller.Start()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("publish never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, poller.Stop(ctx), context.DeadlineExceeded)
}

func TestPollerContextCanceledDuringPublish(t *testing.T) {
	source := newFakeSource()
	source.add(exampleRecords()...)
	ctx, cancel := context.WithCancel(context.Background())

	var handled int
	queue := QueueFunc(func(ctx context.Context, _ Message) error {
		cancel()
		return ctx.Err()
	})
	poller := NewPoller(source, queue, WithErrorHandler(func(context.Context, error) { handled++ }))

	_, err := poller.ProcessOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if handled != 0 {
		t.Fatalf("expected cancellation not to be reported, got %d", handled)
	}
	if source.pending(KindStock) != 3 {
		t.Fatalf("expected rows pending")
	}
}

func TestPollerPendingCountDisabledByDefault(t *testing.T) {
	source := &pendingSource{fakeSource: newFakeSource(), counts: map[Kind]int{KindStock: 4}}
	metrics := newCaptureMetrics()
	poller := NewPoller(source, &recordingQueue{}, WithMetrics(metrics))

	if _, err := poller.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("process once: %v", err)
	}
	if source.calls != 0 {
		t.Fatalf("expected no pending count calls, got %d", source.calls)
	}
}

func TestPollerPendingCountEnabled(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	// each idle cycle reads the clock twice: cycle start and pending sampling
	clock := &sequenceClock{times: []time.Time{now, now, now, now, now.Add(time.Second), now.Add(time.Second)}}
	source := &pendingSource{fakeSource: newFakeSource(), counts: map[Kind]int{KindStock: 4, KindPrice: 2}}
	metrics := newCaptureMetrics()
	poller := NewPoller(source, &recordingQueue{},
		WithMetrics(metrics),
		WithClock(clock),
		WithPendingInterval(time.Second),
	)

	for i := 0; i < 3; i++ {
		if _, err := poller.ProcessOnce(context.Background()); err != nil {
			t.Fatalf("process once: %v", err)
		}
	}

	if source.calls != 2*len(Kinds) {
		t.Fatalf("expected 2 samples per kind, got %d calls", source.calls)
	}
	if metrics.pending[KindStock] != 4 || metrics.pending[KindPrice] != 2 {
		t.Fatalf("unexpected pending gauges: %v", metrics.pending)
	}
}
