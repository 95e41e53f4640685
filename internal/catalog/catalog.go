// Package catalog keeps the in-memory registry of boundary datasets that the
// API accepts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// ErrUnknownBoundary is returned for a boundary table that is not registered.
var ErrUnknownBoundary = errors.New("unknown boundary")

// DetailsSource reads every boundary_details row.
type DetailsSource interface {
	BoundaryDetails(ctx context.Context) ([]domain.BoundaryDetails, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetry overrides the load retry policy.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(r *Registry) {
		r.attempts = attempts
		r.delay = delay
	}
}

// Registry maps boundary table names to their details. Lookups are served
// from an immutable snapshot that Load replaces as a whole.
type Registry struct {
	source  DetailsSource
	logger  *slog.Logger
	metrics *observability.Metrics

	attempts uint
	delay    time.Duration

	mu      sync.RWMutex
	byTable map[string]domain.BoundaryDetails
	loaded  bool

	reload singleflight.Group
}

// New creates an empty registry. Call Load before serving traffic.
func New(source DetailsSource, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Registry {
	r := &Registry{
		source:   source,
		logger:   logger,
		metrics:  metrics,
		attempts: 5,
		delay:    200 * time.Millisecond,
		byTable:  map[string]domain.BoundaryDetails{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches boundary details, retrying with exponential backoff, and
// replaces the registry contents.
func (r *Registry) Load(ctx context.Context) error {
	var rows []domain.BoundaryDetails
	err := retry.Do(
		func() error {
			var err error
			rows, err = r.source.BoundaryDetails(ctx)
			return err
		},
		retry.Attempts(r.attempts),
		retry.LastErrorOnly(true),
		retry.Delay(r.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("boundary details load failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("load boundary details: %w", err)
	}
	r.install(rows)
	return nil
}

// install replaces the registry contents. Rows with unsafe identifiers are
// skipped.
func (r *Registry) install(rows []domain.BoundaryDetails) {
	byTable := make(map[string]domain.BoundaryDetails, len(rows))
	for _, b := range rows {
		b = b.Normalize()
		if err := b.Validate(); err != nil {
			r.logger.Warn("skipping boundary", "identifier", b.Identifier, "error", err)
			continue
		}
		byTable[b.TableName] = b
	}

	r.mu.Lock()
	r.byTable = byTable
	r.loaded = true
	r.mu.Unlock()

	r.metrics.BoundariesKnown.Set(float64(len(byTable)))
	r.logger.Info("boundary registry loaded", "count", len(byTable))
}

// Lookup returns the details for a boundary table. An empty registry is
// refreshed with a single fetch first; if that fetch fails the error is
// returned as is, not as ErrUnknownBoundary.
func (r *Registry) Lookup(ctx context.Context, table string) (domain.BoundaryDetails, error) {
	if r.Len() == 0 {
		if err := r.refresh(ctx); err != nil {
			return domain.BoundaryDetails{}, err
		}
	}

	r.mu.RLock()
	b, ok := r.byTable[table]
	r.mu.RUnlock()
	if !ok {
		return domain.BoundaryDetails{}, fmt.Errorf("%w: %s", ErrUnknownBoundary, table)
	}
	return b, nil
}

// refresh fetches boundary details once, without retrying. Concurrent callers
// share one fetch.
func (r *Registry) refresh(ctx context.Context) error {
	_, err, _ := r.reload.Do("boundary_details", func() (any, error) {
		if r.Len() > 0 {
			return nil, nil
		}
		rows, err := r.source.BoundaryDetails(ctx)
		if err != nil {
			return nil, err
		}
		r.install(rows)
		return nil, nil
	})
	if err != nil {
		r.logger.Error("lazy boundary reload failed", "error", err)
		return fmt.Errorf("reload boundary details: %w", err)
	}
	return nil
}

// All returns every registered boundary sorted by table name.
func (r *Registry) All() []domain.BoundaryDetails {
	r.mu.RLock()
	out := make([]domain.BoundaryDetails, 0, len(r.byTable))
	for _, b := range r.byTable {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out
}

// Len reports the number of registered boundaries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTable)
}

// CheckReadiness reports an error until the first successful load.
func (r *Registry) CheckReadiness(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return errors.New("boundary registry not loaded")
	}
	return nil
}
