package http

import (
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// Deps are the collaborators the router serves from.
type Deps struct {
	Catalog    BoundaryCatalog
	Boundaries BoundaryStore
	Climate    ClimateStore
	Content    ContentStore
	Geocoder   domain.Geocoder // nil disables place search and centre labels
	Usage      UsageRecorder   // nil records nothing
	Ready      sharedobs.ReadinessChecker
	Metrics    *observability.Metrics
	Logger     *slog.Logger

	RequestTimeout time.Duration
	CORSOrigin     string
	StaticDir      string // serve the map application from here when set
}

type discardUsage struct{}

func (discardUsage) Record(domain.UsageEvent) {}

// NewRouter builds the service's route tree.
func NewRouter(d Deps) chi.Router {
	usage := d.Usage
	if usage == nil {
		usage = discardUsage{}
	}
	h := &Handler{
		catalog:    d.Catalog,
		boundaries: d.Boundaries,
		climate:    d.Climate,
		content:    d.Content,
		geocoder:   d.Geocoder,
		usage:      usage,
		validate:   validator.New(),
		logger:     d.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument(d.Metrics))
	r.Use(allowCORS(d.CORSOrigin))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(d.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/ping", h.ping)
		r.Get("/boundaries", h.listBoundaries)
		r.Get("/all_regions", h.allRegions)
		r.Post("/are_gids_coastal", h.areGidsCoastal)
		r.Post("/gids_centre", h.gidsCentre)
		r.Get("/region", h.region)
		r.Get("/chess_scape", h.chessScape)
		r.Get("/climate_summary", h.climateSummary)
		r.Get("/chess_scape_uk_averages", h.ukAverages)
		r.Get("/references", h.references)
		r.Get("/adaptations", h.adaptations)
		r.Get("/locate", h.locate)

		r.NotFound(h.notFound)
	})

	if d.StaticDir != "" {
		r.NotFound(spaHandler(d.StaticDir, h.notFound))
	} else {
		r.NotFound(h.notFound)
	}
	return r
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, errNotFound(msgNotFound))
}
