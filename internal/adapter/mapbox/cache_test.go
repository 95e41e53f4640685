package mapbox

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

type countingGeocoder struct {
	forwardCalls int
	reverseCalls int
	result       domain.GeocodingResult
	err          error
}

func (m *countingGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	m.forwardCalls++
	return m.result, m.err
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.reverseCalls++
	return m.result, m.err
}

func newCached(t *testing.T, inner domain.Geocoder, size int) *CachedGeocoder {
	t.Helper()
	cached, err := NewCachedGeocoder(inner, size, testMetrics())
	require.NoError(t, err)
	return cached
}

func TestCachedGeocoder_ForwardCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{Lat: 50.1, Lon: -5.5, PlaceName: "Penzance", FormattedAddress: "Penzance, Cornwall"},
	}
	cached := newCached(t, inner, 10)

	r1, err := cached.ForwardGeocode(context.Background(), "Penzance")
	require.NoError(t, err)
	assert.Equal(t, "Penzance", r1.PlaceName)

	r2, err := cached.ForwardGeocode(context.Background(), "  penzance ")
	require.NoError(t, err)
	assert.Equal(t, "Penzance", r2.PlaceName)

	assert.Equal(t, 1, inner.forwardCalls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("forward", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cached.metrics.GeocodeCache.WithLabelValues("forward", "miss")))
}

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "Truro, Cornwall"},
	}
	cached := newCached(t, inner, 10)

	_, err := cached.ReverseGeocode(context.Background(), 50.2632, -5.051)
	require.NoError(t, err)

	_, err = cached.ReverseGeocode(context.Background(), 50.2632, -5.051)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reverseCalls, "should only call inner once")
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{PlaceName: "Place", FormattedAddress: "Place, UK"},
	}
	cached := newCached(t, inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Penzance")
	_, _ = cached.ForwardGeocode(context.Background(), "Truro")

	assert.Equal(t, 2, inner.forwardCalls)
	assert.Equal(t, 2, cached.Len())
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := newCached(t, inner, 10)

	_, _ = cached.ForwardGeocode(context.Background(), "Nowhere")
	_, _ = cached.ForwardGeocode(context.Background(), "Nowhere")

	assert.Equal(t, 2, inner.forwardCalls)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedGeocoder_ErrorNotCached(t *testing.T) {
	inner := &countingGeocoder{err: assert.AnError}
	cached := newCached(t, inner, 10)

	_, err := cached.ReverseGeocode(context.Background(), 51.5, -0.1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodingResult{FormattedAddress: "Somewhere, UK"},
	}
	cached := newCached(t, inner, 2)
	ctx := context.Background()

	_, _ = cached.ForwardGeocode(ctx, "a")
	_, _ = cached.ForwardGeocode(ctx, "b")
	_, _ = cached.ForwardGeocode(ctx, "a") // promote "a"
	_, _ = cached.ForwardGeocode(ctx, "c") // evicts "b"
	assert.Equal(t, 3, inner.forwardCalls)

	_, _ = cached.ForwardGeocode(ctx, "a")
	assert.Equal(t, 3, inner.forwardCalls, "a was used recently and stays cached")

	_, _ = cached.ForwardGeocode(ctx, "b")
	assert.Equal(t, 4, inner.forwardCalls, "b should have been evicted")
}

func TestNewCachedGeocoder_InvalidSize(t *testing.T) {
	_, err := NewCachedGeocoder(&countingGeocoder{}, 0, testMetrics())
	assert.Error(t, err)
}
