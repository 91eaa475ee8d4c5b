package persist

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/kv"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// QueueSize bounds the number of distinct keys with a pending write.
	// Writes for further keys are dropped with a warning.
	QueueSize int
	// MaxTries is the number of attempts per write, including the first.
	MaxTries uint
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *WriterOptions) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.MaxTries == 0 {
		o.MaxTries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// slot identifies a pending write. Stores are compared by identity, so
// every kv.Store passed to Dispatch must be comparable (pointer stores are).
type slot struct {
	store kv.Store
	key   string
}

// entry is a queued write or, when flushed is set, a flush marker.
type entry struct {
	slot    slot
	value   []byte
	flushed chan struct{}
}

var _ Dispatcher = (*Writer)(nil)

// Writer drains dispatched writes on a single background goroutine.
//
// At most one write per (store, key) is pending: a newer snapshot replaces
// the queued one in place, so the value written is always the latest
// dispatched. Distinct keys are written in FIFO order. Transient failures
// are retried with exponential backoff up to MaxTries.
type Writer struct {
	opts   WriterOptions
	lg     *zap.Logger
	tracer trace.Tracer
	wake   chan struct{}

	writes    metric.Int64Counter
	failures  metric.Int64Counter
	dropped   metric.Int64Counter
	coalesced metric.Int64Counter

	qmu     sync.Mutex
	pending map[slot]*entry
	queue   []*entry
	stopped bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a Writer. Call Start to begin draining the queue.
func NewWriter(opts WriterOptions) (*Writer, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("github.com/xenking/kart-storefront/internal/persist")
	writes, err := meter.Int64Counter("kart.persist.writes",
		metric.WithDescription("Completed persistence writes"))
	if err != nil {
		return nil, errors.Wrap(err, "writes counter")
	}
	failures, err := meter.Int64Counter("kart.persist.failures",
		metric.WithDescription("Persistence writes that failed after all retries"))
	if err != nil {
		return nil, errors.Wrap(err, "failures counter")
	}
	dropped, err := meter.Int64Counter("kart.persist.dropped",
		metric.WithDescription("Persistence writes dropped because the queue was full or the writer stopped"))
	if err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}
	coalesced, err := meter.Int64Counter("kart.persist.coalesced",
		metric.WithDescription("Pending writes replaced by a newer snapshot of the same key"))
	if err != nil {
		return nil, errors.Wrap(err, "coalesced counter")
	}

	return &Writer{
		opts:      opts,
		lg:        opts.Logger,
		tracer:    opts.TracerProvider.Tracer("github.com/xenking/kart-storefront/internal/persist"),
		wake:      make(chan struct{}, 1),
		writes:    writes,
		failures:  failures,
		dropped:   dropped,
		coalesced: coalesced,
		pending:   make(map[slot]*entry),
	}, nil
}

// Dispatch enqueues a write without blocking. A write for a key that is
// already pending replaces the pending value. A write for a new key is
// dropped with a warning when QueueSize keys are pending, and so is any
// write dispatched after Stop.
func (w *Writer) Dispatch(store kv.Store, key string, value []byte) {
	ctx := context.Background()
	sl := slot{store: store, key: key}

	w.qmu.Lock()
	if w.stopped {
		w.qmu.Unlock()
		w.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "stopped")))
		w.lg.Warn("Persist writer stopped, dropping write", zap.String("key", key))
		return
	}
	if e, ok := w.pending[sl]; ok {
		e.value = value
		w.qmu.Unlock()
		w.coalesced.Add(ctx, 1)
		return
	}
	if len(w.pending) >= w.opts.QueueSize {
		w.qmu.Unlock()
		w.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "full")))
		w.lg.Warn("Persist queue full, dropping write", zap.String("key", key))
		return
	}
	e := &entry{slot: sl, value: value}
	w.pending[sl] = e
	w.queue = append(w.queue, e)
	w.qmu.Unlock()

	w.signal()
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// pop removes the head of the queue. When the queue is empty and stop is
// set, the writer is marked stopped under the same lock, so no Dispatch can
// slip in between the last pop and the stop.
func (w *Writer) pop(stop bool) (entry, bool) {
	w.qmu.Lock()
	defer w.qmu.Unlock()

	if len(w.queue) == 0 {
		if stop {
			w.stopped = true
		}
		return entry{}, false
	}
	e := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	if e.flushed == nil {
		delete(w.pending, e.slot)
	}
	return *e, true
}

// Start launches the drain loop. It stops when ctx is cancelled or Stop is
// called; writes still queued at that point are attempted once more.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}
	w.qmu.Lock()
	w.stopped = false
	w.qmu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop cancels the drain loop and waits for it to exit. Writes dispatched
// afterwards are dropped and logged. It is safe to call Stop multiple times.
func (w *Writer) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		w.qmu.Lock()
		w.stopped = true
		w.qmu.Unlock()
		return
	}
	cancel()
	<-done
}

// Pending returns the number of keys waiting to be written.
func (w *Writer) Pending() int {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	return len(w.pending)
}

// Flush waits until every write dispatched before the call has been handled.
func (w *Writer) Flush(ctx context.Context) error {
	ch := make(chan struct{})

	w.qmu.Lock()
	if w.stopped {
		w.qmu.Unlock()
		return nil
	}
	w.queue = append(w.queue, &entry{flushed: ch})
	w.qmu.Unlock()
	w.signal()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		default:
		}

		e, ok := w.pop(false)
		if !ok {
			select {
			case <-ctx.Done():
			case <-w.wake:
			}
			continue
		}
		w.handle(ctx, e)
	}
}

// drain handles whatever is still queued, detached from the cancelled loop
// context, and marks the writer stopped once the queue is empty.
func (w *Writer) drain() {
	ctx := context.Background()
	for {
		e, ok := w.pop(true)
		if !ok {
			return
		}
		w.handle(ctx, e)
	}
}

func (w *Writer) handle(ctx context.Context, e entry) {
	if e.flushed != nil {
		close(e.flushed)
		return
	}
	w.write(ctx, e.slot, e.value)
}

func (w *Writer) write(ctx context.Context, sl slot, value []byte) {
	ctx, span := w.tracer.Start(ctx, "persist.Write",
		trace.WithAttributes(attribute.String("kv.key", sl.key)),
	)
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.InitialBackoff
	b.MaxInterval = time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
		return struct{}{}, sl.store.Set(attemptCtx, sl.key, value)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(w.opts.MaxTries),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		w.failures.Add(ctx, 1)
		w.lg.Warn("Persist write failed",
			zap.String("key", sl.key),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return
	}
	w.writes.Add(ctx, 1)
	if attempt > 1 {
		w.lg.Debug("Persist write succeeded after retry",
			zap.String("key", sl.key),
			zap.Int("attempts", attempt),
		)
	}
}
