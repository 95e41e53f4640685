package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// Transformer converts a usage event into an output event.
type Transformer interface {
	Transform(ctx context.Context, event domain.UsageEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultFlushTimeout   = 5 * time.Second
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock replaces the clock driving the flush ticker.
func WithClock(c clockwork.Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

// WithBackoff sets the initial and maximum delay between failed loads.
func WithBackoff(initial, maxBackoff time.Duration) Option {
	return func(p *Publisher) {
		p.initialBackoff = initial
		p.maxBackoff = maxBackoff
	}
}

// WithFlushTimeout bounds the final flush after the run context ends.
func WithFlushTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.flushTimeout = d }
}

// Publisher buffers usage events recorded by request handlers and loads them
// in batches. Record never blocks; when the buffer is full, or Run has
// already returned, the event is dropped and counted.
type Publisher struct {
	transformer    Transformer
	loader         BatchLoader
	logger         *slog.Logger
	metrics        *observability.Metrics
	events         chan domain.UsageEvent
	batchSize      int
	flushInterval  time.Duration
	clock          clockwork.Clock
	initialBackoff time.Duration
	maxBackoff     time.Duration
	flushTimeout   time.Duration
	running        atomic.Bool

	// closing guards stopped so no event is queued after the final drain.
	closing sync.RWMutex
	stopped bool
}

// New creates a Publisher. The buffer holds four batches.
func New(t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, flushInterval time.Duration, opts ...Option) *Publisher {
	if batchSize < 1 {
		batchSize = 1
	}
	p := &Publisher{
		transformer:    t,
		loader:         l,
		logger:         logger,
		metrics:        metrics,
		events:         make(chan domain.UsageEvent, batchSize*4),
		batchSize:      batchSize,
		flushInterval:  flushInterval,
		clock:          clockwork.NewRealClock(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		flushTimeout:   defaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record queues an event for publishing.
func (p *Publisher) Record(event domain.UsageEvent) {
	p.closing.RLock()
	defer p.closing.RUnlock()
	if p.stopped {
		p.metrics.UsageEventsDropped.Inc()
		return
	}
	select {
	case p.events <- event:
		p.metrics.UsageEventsRecorded.Inc()
	default:
		p.metrics.UsageEventsDropped.Inc()
	}
}

// CheckReadiness returns nil while Run is active.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("usage publisher is not running")
	}
	return nil
}

// Run drains the buffer until the context is cancelled, then flushes what is
// left within the flush timeout. Cancel ctx only once nothing else will call
// Record; later events are dropped.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("usage publisher started",
		"batch_size", p.batchSize,
		"flush_interval", p.flushInterval,
	)
	p.running.Store(true)
	p.metrics.PublisherRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PublisherRunning.Set(0)
	}()

	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.UsageEvent, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("usage publisher stopping", "reason", ctx.Err())
			p.shutdown(ctx, batch)
			return nil
		case event := <-p.events:
			batch = append(batch, event)
			if len(batch) >= p.batchSize && p.flush(ctx, batch) {
				batch = batch[:0]
			}
		case <-ticker.Chan():
			if len(batch) > 0 && p.flush(ctx, batch) {
				batch = batch[:0]
			}
		}
	}
}

// flush transforms and loads one batch, retrying failed loads with
// exponential backoff. It returns false only if ctx ended before the batch
// was delivered.
func (p *Publisher) flush(ctx context.Context, batch []domain.UsageEvent) bool {
	out := make([]domain.OutputEvent, 0, len(batch))
	for _, event := range batch {
		o, err := p.transformer.Transform(ctx, event)
		if err != nil {
			p.logger.Warn("transform failed, skipping usage event",
				"error", err,
				"event_id", event.ID,
				"type", event.Type,
			)
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return true
	}

	backoff := p.initialBackoff
	for {
		err := p.loader.LoadBatch(ctx, out)
		if err == nil {
			p.metrics.UsageEventsPublished.Add(float64(len(out)))
			p.metrics.PublishBatchSize.Observe(float64(len(out)))
			return true
		}
		p.metrics.PublishErrors.Inc()
		p.logger.Error("load batch failed", "error", err, "batch_size", len(out))
		if !p.backoffOrStop(ctx, &backoff) {
			return false
		}
	}
}

// shutdown stops accepting events, drains whatever is still buffered and
// flushes it on a context that outlives the cancelled run context.
func (p *Publisher) shutdown(ctx context.Context, batch []domain.UsageEvent) {
	p.closing.Lock()
	p.stopped = true
	p.closing.Unlock()

drain:
	for {
		select {
		case event := <-p.events:
			batch = append(batch, event)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flushTimeout)
	defer cancel()

	for start := 0; start < len(batch); start += p.batchSize {
		end := min(start+p.batchSize, len(batch))
		if !p.flush(flushCtx, batch[start:end]) {
			lost := len(batch) - start
			p.metrics.UsageEventsDropped.Add(float64(lost))
			p.logger.Error("final flush timed out, dropping usage events", "count", lost)
			return
		}
	}
	p.logger.Info("usage events flushed on shutdown", "count", len(batch))
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the publisher should stop.
func (p *Publisher) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, p.maxBackoff)
	return true
}
