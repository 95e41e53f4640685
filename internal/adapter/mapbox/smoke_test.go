//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// Live checks against api.mapbox.com. Needs MAPBOX_TOKEN:
//
//	go test -tags=mapbox ./internal/adapter/mapbox/ -count=1
func liveClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Skip("MAPBOX_TOKEN not set")
	}
	return NewClient(token, 10*time.Second, 5, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLive_ForwardGeocodeUKTowns(t *testing.T) {
	c := liveClient(t)

	towns := []struct {
		query    string
		lat, lon float64
	}{
		{"Penzance", 50.12, -5.54},
		{"Falmouth", 50.15, -5.07},
		{"Inverness", 57.48, -4.22},
	}
	for _, town := range towns {
		t.Run(town.query, func(t *testing.T) {
			res, err := c.ForwardGeocode(context.Background(), town.query)
			require.NoError(t, err)
			assert.InDelta(t, town.lat, res.Lat, 0.1)
			assert.InDelta(t, town.lon, res.Lon, 0.1)
			assert.Contains(t, res.FormattedAddress, town.query)
		})
	}
}

func TestLive_ReverseGeocodeNamesPlace(t *testing.T) {
	res, err := liveClient(t).ReverseGeocode(context.Background(), 55.9533, -3.1883)
	require.NoError(t, err)
	assert.NotEmpty(t, res.PlaceName)
}

func TestLive_ForeignQueryDoesNotError(t *testing.T) {
	// Results are limited to gb: a foreign city matches nothing or a UK namesake.
	_, err := liveClient(t).ForwardGeocode(context.Background(), "Ouagadougou")
	require.NoError(t, err)
}

func TestLive_CacheServesRepeatQuery(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	cached, err := NewCachedGeocoder(liveClient(t), 10, metrics)
	require.NoError(t, err)

	first, err := cached.ForwardGeocode(context.Background(), "Truro")
	require.NoError(t, err)
	second, err := cached.ForwardGeocode(context.Background(), "Truro")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
