package domain

import (
	"context"
	"log/slog"
)

// LabelCentre attaches a place name to a region centre by reverse geocoding.
// If geocoder is nil or the lookup fails, the centre is returned unchanged.
func LabelCentre(ctx context.Context, centre Centre, geocoder Geocoder, logger *slog.Logger) Centre {
	if geocoder == nil {
		return centre
	}

	result, err := geocoder.ReverseGeocode(ctx, centre.Lat, centre.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", centre.Lat,
			"lon", centre.Lon,
			"error", err,
		)
		return centre
	}
	if result.PlaceName != "" {
		centre.PlaceName = result.PlaceName
	}
	return centre
}
