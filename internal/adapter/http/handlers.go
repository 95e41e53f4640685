package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// BoundaryCatalog resolves boundary table names to their details.
type BoundaryCatalog interface {
	Lookup(ctx context.Context, table string) (domain.BoundaryDetails, error)
	All() []domain.BoundaryDetails
}

// BoundaryStore reads boundary geometry.
type BoundaryStore interface {
	AllRegions(ctx context.Context, b domain.BoundaryDetails) ([]domain.Region, error)
	AnyCoastal(ctx context.Context, b domain.BoundaryDetails, gids []int) (bool, error)
	RegionsGeoJSON(ctx context.Context, b domain.BoundaryDetails, tolerance float64, bbox domain.BoundingBox) (json.RawMessage, error)
	Centre(ctx context.Context, b domain.BoundaryDetails, gids []int) (domain.Centre, error)
	RegionAt(ctx context.Context, b domain.BoundaryDetails, lat, lon float64) (domain.Region, error)
}

// ClimateStore reads climate projections.
type ClimateStore interface {
	Prediction(ctx context.Context, q domain.ClimateQuery) (domain.ClimatePrediction, error)
	UKAverages(ctx context.Context, biasCorrected bool, rcp domain.Scenario, season domain.Season, variable domain.Variable) ([]domain.UKAverage, error)
}

// ContentStore reads curated reference content.
type ContentStore interface {
	References(ctx context.Context, refType string) ([]domain.Reference, error)
	Adaptations(ctx context.Context) ([]domain.Adaptation, error)
}

// UsageRecorder accepts usage events. Record must not block.
type UsageRecorder interface {
	Record(event domain.UsageEvent)
}

// Handler serves the /api routes.
type Handler struct {
	catalog    BoundaryCatalog
	boundaries BoundaryStore
	climate    ClimateStore
	content    ContentStore
	geocoder   domain.Geocoder
	usage      UsageRecorder
	validate   *validator.Validate
	logger     *slog.Logger
}

func (h *Handler) ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) listBoundaries(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.catalog.All())
}

func (h *Handler) allRegions(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("boundary")
	if table == "" {
		h.writeError(w, r, errBadRequest(msgMissingBoundary))
		return
	}

	b, err := h.catalog.Lookup(r.Context(), table)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}

	regions, err := h.boundaries.AllRegions(r.Context(), b)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}
	render.JSON(w, r, regions)
}

// bindGids decodes and validates a gids request and resolves its boundary.
// It writes the error response itself and reports whether to continue.
func (h *Handler) bindGids(w http.ResponseWriter, r *http.Request) (domain.BoundaryDetails, []int, bool) {
	req, msg := decodeGidsRequest(r, h.validate)
	if msg != "" {
		h.writeError(w, r, errBadRequest(msg))
		return domain.BoundaryDetails{}, nil, false
	}

	b, err := h.catalog.Lookup(r.Context(), req.Boundary)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return domain.BoundaryDetails{}, nil, false
	}
	return b, req.Gids, true
}

func (h *Handler) areGidsCoastal(w http.ResponseWriter, r *http.Request) {
	b, gids, ok := h.bindGids(w, r)
	if !ok {
		return
	}

	coastal, err := h.boundaries.AnyCoastal(r.Context(), b, gids)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}
	render.JSON(w, r, coastal)
}

func (h *Handler) gidsCentre(w http.ResponseWriter, r *http.Request) {
	b, gids, ok := h.bindGids(w, r)
	if !ok {
		return
	}

	centre, err := h.boundaries.Centre(r.Context(), b, gids)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}
	centre = domain.LabelCentre(r.Context(), centre, h.geocoder, h.logger)

	h.usage.Record(domain.NewUsageEvent(domain.UsageRegionCentre, b.TableName, len(gids), "", ""))
	render.JSON(w, r, centre)
}

func (h *Handler) region(w http.ResponseWriter, r *http.Request) {
	p, ok := parseRegionParams(r.URL.Query())
	if !ok {
		h.writeError(w, r, errBadRequest(msgInvalidInput))
		return
	}

	b, err := h.catalog.Lookup(r.Context(), p.Table)
	if err != nil {
		h.fail(w, r, err, msgInvalidTable)
		return
	}

	fc, err := h.boundaries.RegionsGeoJSON(r.Context(), b, p.Tolerance, p.BBox)
	if err != nil {
		h.fail(w, r, err, msgInvalidTable)
		return
	}
	render.JSON(w, r, fc)
}

// climateQuery validates the shared chess_scape parameters and resolves the
// boundary. It writes the error response itself and reports whether to
// continue.
func (h *Handler) climateQuery(w http.ResponseWriter, r *http.Request) (domain.ClimateQuery, bool) {
	p, err := parseClimateParams(h.validate, r.URL.Query())
	if err != nil {
		h.writeError(w, r, errBadRequest(msgInvalidParameters))
		return domain.ClimateQuery{}, false
	}

	b, err := h.catalog.Lookup(r.Context(), p.Boundary)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundary)
		return domain.ClimateQuery{}, false
	}

	return domain.ClimateQuery{
		Boundary: b,
		Gids:     p.Locations,
		Scenario: domain.Scenario(p.Scenario),
		Season:   domain.Season(p.Season),
	}, true
}

func (h *Handler) chessScape(w http.ResponseWriter, r *http.Request) {
	q, ok := h.climateQuery(w, r)
	if !ok {
		return
	}

	prediction, err := h.climate.Prediction(r.Context(), q)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundary)
		return
	}

	h.usage.Record(domain.NewUsageEvent(domain.UsageClimatePrediction, q.Boundary.TableName, len(q.Gids), q.Scenario, q.Season))
	render.JSON(w, r, []domain.ClimatePrediction{prediction})
}

func (h *Handler) climateSummary(w http.ResponseWriter, r *http.Request) {
	year := domain.LastDecade
	if raw := r.URL.Query().Get("year"); raw != "" {
		d, err := domain.ParseDecade(raw)
		if err != nil || d == domain.BaselineDecade {
			h.writeError(w, r, errBadRequest(msgInvalidParameters))
			return
		}
		year = d
	}

	q, ok := h.climateQuery(w, r)
	if !ok {
		return
	}

	prediction, err := h.climate.Prediction(r.Context(), q)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundary)
		return
	}

	summary, err := domain.Summarize(prediction, year)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundary)
		return
	}

	h.usage.Record(domain.NewUsageEvent(domain.UsageClimateSummary, q.Boundary.TableName, len(q.Gids), q.Scenario, q.Season))
	render.JSON(w, r, summary)
}

func (h *Handler) ukAverages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ukAverageParams{
		BiasCorrected: q.Get("is_bias_corrected"),
		Scenario:      q.Get("rcp"),
		Season:        q.Get("season"),
		Variable:      q.Get("variable"),
	}
	if err := h.validate.Struct(p); err != nil {
		h.writeError(w, r, errBadRequest(msgInvalidParameters))
		return
	}
	biasCorrected, _ := strconv.ParseBool(p.BiasCorrected)

	rows, err := h.climate.UKAverages(r.Context(), biasCorrected,
		domain.Scenario(p.Scenario), domain.Season(p.Season), domain.Variable(p.Variable))
	if err != nil {
		h.fail(w, r, err, msgInvalidParameters)
		return
	}
	render.JSON(w, r, rows)
}

func (h *Handler) references(w http.ResponseWriter, r *http.Request) {
	refs, err := h.content.References(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, r, err, msgInvalidParameters)
		return
	}
	render.JSON(w, r, refs)
}

func (h *Handler) adaptations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var hazards []string
	for _, v := range q["hazard"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hazards = append(hazards, part)
			}
		}
	}
	if len(hazards) == 0 {
		h.writeError(w, r, errBadRequest(msgMissingHazard))
		return
	}

	category, ok := adaptationCategories[strings.ToLower(q.Get("category"))]
	if !ok {
		h.writeError(w, r, errBadRequest(msgInvalidParameters))
		return
	}

	all, err := h.content.Adaptations(r.Context())
	if err != nil {
		h.fail(w, r, err, msgInvalidParameters)
		return
	}
	render.JSON(w, r, domain.FilterAdaptations(all, hazards, category, q.Get("filter")))
}

// locateResponse is the region found for a place search.
type locateResponse struct {
	Gid       int     `json:"gid"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	PlaceName string  `json:"placeName"`
}

func (h *Handler) locate(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		h.writeError(w, r, errUnavailable(msgGeocodingDisabled))
		return
	}

	place := strings.TrimSpace(r.URL.Query().Get("q"))
	if place == "" {
		h.writeError(w, r, errBadRequest(msgMissingQuery))
		return
	}
	table := r.URL.Query().Get("boundary")
	if table == "" {
		h.writeError(w, r, errBadRequest(msgMissingBoundary))
		return
	}

	b, err := h.catalog.Lookup(r.Context(), table)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}

	result, err := h.geocoder.ForwardGeocode(r.Context(), place)
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}
	if result.FormattedAddress == "" {
		h.writeError(w, r, errNotFound(msgPlaceNotFound))
		return
	}

	region, err := h.boundaries.RegionAt(r.Context(), b, result.Lat, result.Lon)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, r, errNotFound(msgRegionNotFound))
		return
	}
	if err != nil {
		h.fail(w, r, err, msgInvalidBoundaryTb)
		return
	}

	h.usage.Record(domain.NewUsageEvent(domain.UsageLocate, b.TableName, 1, "", ""))
	render.JSON(w, r, locateResponse{
		Gid:       region.Gid,
		Name:      region.Name,
		Lat:       result.Lat,
		Lon:       result.Lon,
		PlaceName: result.FormattedAddress,
	})
}
