package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/couchcryptid/lcat-climate-service/internal/catalog"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// Client-facing error messages. The map application matches on some of them.
const (
	msgMissingBoundary   = "Missing 'boundary' parameter"
	msgInvalidGids       = "Missing or invalid 'gids' array"
	msgInvalidBoundaryTb = "Invalid boundary table"
	msgInvalidInput      = "Invalid input parameters"
	msgInvalidTable      = "Invalid table"
	msgInvalidParameters = "Invalid parameters"
	msgInvalidBoundary   = "Invalid boundary"
	msgInvalidBody       = "Invalid request body"
	msgMissingHazard     = "Missing 'hazard' parameter"
	msgMissingQuery      = "Missing 'q' parameter"
	msgNoData            = "No data found"
	msgPlaceNotFound     = "Place not found"
	msgRegionNotFound    = "No region contains that place"
	msgGeocodingDisabled = "Place search is not available"
	msgTimeout           = "Request timed out"
	msgInternal          = "Internal Server Error"
	msgNotFound          = "Not found"
)

// ErrResponse is the JSON error body returned by every API route.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errBadRequest(msg string) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, ErrorText: msg}
}

func errNotFound(msg string) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusNotFound, ErrorText: msg}
}

func errUnavailable(msg string) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, ErrorText: msg}
}

var (
	errTimeout  = &ErrResponse{HTTPStatusCode: http.StatusGatewayTimeout, ErrorText: msgTimeout}
	errInternal = &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, ErrorText: msgInternal}
)

// writeError renders v, logging if the response itself cannot be written.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, v render.Renderer) {
	if err := render.Render(w, r, v); err != nil {
		h.logger.Error("render error response", "error", err, "path", r.URL.Path)
	}
}

// fail maps an error from a store or the catalog onto a response. Anything
// unclassified is logged and reported as a bare 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, unknownBoundaryMsg string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownBoundary):
		h.writeError(w, r, errBadRequest(unknownBoundaryMsg))
	case errors.Is(err, domain.ErrInvalidParameter):
		h.writeError(w, r, errBadRequest(msgInvalidParameters))
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, r, errNotFound(msgNoData))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request deadline exceeded", "path", r.URL.Path, "error", err)
		h.writeError(w, r, errTimeout)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, r, errInternal)
	}
}
