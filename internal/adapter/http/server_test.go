package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/lcat-climate-service/internal/adapter/http"
	"github.com/couchcryptid/lcat-climate-service/internal/catalog"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
)

// --- fakes ---

type fakeCatalog struct {
	byTable map[string]domain.BoundaryDetails
	err     error
}

func newFakeCatalog(boundaries ...domain.BoundaryDetails) *fakeCatalog {
	c := &fakeCatalog{byTable: map[string]domain.BoundaryDetails{}}
	for _, b := range boundaries {
		c.byTable[b.TableName] = b
	}
	return c
}

func (c *fakeCatalog) Lookup(_ context.Context, table string) (domain.BoundaryDetails, error) {
	if c.err != nil {
		return domain.BoundaryDetails{}, c.err
	}
	b, ok := c.byTable[table]
	if !ok {
		return domain.BoundaryDetails{}, fmt.Errorf("%w: %s", catalog.ErrUnknownBoundary, table)
	}
	return b, nil
}

func (c *fakeCatalog) All() []domain.BoundaryDetails {
	out := make([]domain.BoundaryDetails, 0, len(c.byTable))
	for _, b := range c.byTable {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out
}

type fakeBoundaries struct {
	regions  []domain.Region
	coastal  bool
	geoJSON  json.RawMessage
	centre   domain.Centre
	regionAt domain.Region
	err      error

	gotGids      []int
	gotTolerance float64
	gotBBox      domain.BoundingBox
	gotPoint     [2]float64
}

func (f *fakeBoundaries) AllRegions(_ context.Context, _ domain.BoundaryDetails) ([]domain.Region, error) {
	return f.regions, f.err
}

func (f *fakeBoundaries) AnyCoastal(_ context.Context, _ domain.BoundaryDetails, gids []int) (bool, error) {
	f.gotGids = gids
	return f.coastal, f.err
}

func (f *fakeBoundaries) RegionsGeoJSON(_ context.Context, _ domain.BoundaryDetails, tolerance float64, bbox domain.BoundingBox) (json.RawMessage, error) {
	f.gotTolerance = tolerance
	f.gotBBox = bbox
	return f.geoJSON, f.err
}

func (f *fakeBoundaries) Centre(_ context.Context, _ domain.BoundaryDetails, gids []int) (domain.Centre, error) {
	f.gotGids = gids
	return f.centre, f.err
}

func (f *fakeBoundaries) RegionAt(_ context.Context, _ domain.BoundaryDetails, lat, lon float64) (domain.Region, error) {
	f.gotPoint = [2]float64{lat, lon}
	return f.regionAt, f.err
}

type fakeClimate struct {
	prediction domain.ClimatePrediction
	averages   []domain.UKAverage
	err        error

	gotQuery domain.ClimateQuery
	gotBias  bool
	gotVar   domain.Variable
}

func (f *fakeClimate) Prediction(_ context.Context, q domain.ClimateQuery) (domain.ClimatePrediction, error) {
	f.gotQuery = q
	return f.prediction, f.err
}

func (f *fakeClimate) UKAverages(_ context.Context, biasCorrected bool, _ domain.Scenario, _ domain.Season, variable domain.Variable) ([]domain.UKAverage, error) {
	f.gotBias = biasCorrected
	f.gotVar = variable
	return f.averages, f.err
}

type fakeContent struct {
	refs        []domain.Reference
	adaptations []domain.Adaptation
	err         error
	gotType     string
}

func (f *fakeContent) References(_ context.Context, refType string) ([]domain.Reference, error) {
	f.gotType = refType
	return f.refs, f.err
}

func (f *fakeContent) Adaptations(_ context.Context) ([]domain.Adaptation, error) {
	return f.adaptations, f.err
}

type fakeGeocoder struct {
	forward domain.GeocodingResult
	reverse domain.GeocodingResult
	err     error
}

func (f *fakeGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	return f.forward, f.err
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return f.reverse, f.err
}

type fakeUsage struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (f *fakeUsage) Record(e domain.UsageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

// --- harness ---

var (
	counties = domain.NewBoundaryDetails("uk_counties", "UK Counties", "ctyua23nm", domain.DefaultSRID)
	lsoa     = func() domain.BoundaryDetails {
		b := domain.NewBoundaryDetails("lsoa", "LSOA", "lsoa21nm", domain.DefaultSRID)
		b.Method = domain.MethodCache
		return b
	}()
)

type testEnv struct {
	deps       httpadapter.Deps
	boundaries *fakeBoundaries
	climate    *fakeClimate
	content    *fakeContent
	usage      *fakeUsage
	metrics    *observability.Metrics
	handler    http.Handler
}

func newEnv(t *testing.T, mutate ...func(*httpadapter.Deps)) *testEnv {
	t.Helper()
	e := &testEnv{
		boundaries: &fakeBoundaries{},
		climate:    &fakeClimate{},
		content:    &fakeContent{},
		usage:      &fakeUsage{},
		metrics:    observability.NewMetricsForTesting(),
	}
	e.deps = httpadapter.Deps{
		Catalog:        newFakeCatalog(counties, lsoa),
		Boundaries:     e.boundaries,
		Climate:        e.climate,
		Content:        e.content,
		Usage:          e.usage,
		Ready:          &mockReadiness{},
		Metrics:        e.metrics,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RequestTimeout: 5 * time.Second,
		CORSOrigin:     "http://localhost:3001",
	}
	for _, m := range mutate {
		m(&e.deps)
	}
	e.handler = httpadapter.NewRouter(e.deps)
	return e
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (e *testEnv) post(t *testing.T, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, msg, body["error"])
}

func ptr(v float64) *float64 { return &v }

// --- health, readiness, metrics ---

func TestHealthzReturns200(t *testing.T) {
	rec := newEnv(t).get(t, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newEnv(t).get(t, "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newEnv(t, func(d *httpadapter.Deps) {
		d.Ready = &mockReadiness{err: fmt.Errorf("boundary registry not loaded")}
	})
	rec := env.get(t, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "boundary registry not loaded", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newEnv(t).get(t, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestsAreInstrumentedByRoutePattern(t *testing.T) {
	env := newEnv(t)
	env.get(t, "/api/ping")
	env.get(t, "/api/ping?x=1")

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/api/ping", "GET", "200")))
}

// --- api ---

func TestPing(t *testing.T) {
	rec := newEnv(t).get(t, "/api/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestListBoundaries(t *testing.T) {
	rec := newEnv(t).get(t, "/api/boundaries")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "boundary_lsoa", got[0]["table"])
	assert.Equal(t, "cache", got[0]["method"])
	assert.Equal(t, "UK Counties", got[1]["printName"])
	assert.NotContains(t, got[1], "NameColumn")
}

func TestAllRegions(t *testing.T) {
	env := newEnv(t)
	env.boundaries.regions = []domain.Region{{Gid: 1, Name: "Cornwall"}, {Gid: 2, Name: "Devon"}}

	assertError(t, env.get(t, "/api/all_regions"), http.StatusBadRequest, "Missing 'boundary' parameter")
	assertError(t, env.get(t, "/api/all_regions?boundary=boundary_wards"), http.StatusBadRequest, "Invalid boundary table")

	rec := env.get(t, "/api/all_regions?boundary=boundary_uk_counties")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"gid":1,"name":"Cornwall"},{"gid":2,"name":"Devon"}]`, rec.Body.String())
}

func TestAllRegions_InternalErrorHidesDetail(t *testing.T) {
	env := newEnv(t)
	env.boundaries.err = fmt.Errorf("query regions: connection refused")

	rec := env.get(t, "/api/all_regions?boundary=boundary_uk_counties")
	assertError(t, rec, http.StatusInternalServerError, "Internal Server Error")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestCatalogOutageIsInternalError(t *testing.T) {
	cat := newFakeCatalog(counties)
	cat.err = fmt.Errorf("reload boundary details: connection refused")
	env := newEnv(t, func(d *httpadapter.Deps) { d.Catalog = cat })

	assertError(t, env.get(t, "/api/all_regions?boundary=boundary_uk_counties"),
		http.StatusInternalServerError, "Internal Server Error")
	assertError(t, env.post(t, "/api/are_gids_coastal", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{1}}),
		http.StatusInternalServerError, "Internal Server Error")
}

func TestAreGidsCoastal(t *testing.T) {
	env := newEnv(t)
	env.boundaries.coastal = true

	assertError(t, env.post(t, "/api/are_gids_coastal", map[string]any{"gids": []int{1}}),
		http.StatusBadRequest, "Missing 'boundary' parameter")
	assertError(t, env.post(t, "/api/are_gids_coastal", map[string]any{"boundary": "boundary_uk_counties"}),
		http.StatusBadRequest, "Missing or invalid 'gids' array")
	assertError(t, env.post(t, "/api/are_gids_coastal", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{}}),
		http.StatusBadRequest, "Missing or invalid 'gids' array")
	assertError(t, env.post(t, "/api/are_gids_coastal", map[string]any{"boundary": "boundary_wards", "gids": []int{1}}),
		http.StatusBadRequest, "Invalid boundary table")

	rec := env.post(t, "/api/are_gids_coastal", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{4, 7}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", strings.TrimSpace(rec.Body.String()))
	assert.Equal(t, []int{4, 7}, env.boundaries.gotGids)
}

func TestAreGidsCoastal_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"truncated json", `{"gids":"1,2"`, "Invalid request body"},
		{"empty body", ``, "Missing 'boundary' parameter"},
		{"whitespace body", "  \n", "Missing 'boundary' parameter"},
		{"empty object", `{}`, "Missing 'boundary' parameter"},
		{"gids string", `{"boundary":"boundary_uk_counties","gids":"abc"}`, "Missing or invalid 'gids' array"},
		{"gids of strings", `{"boundary":"boundary_uk_counties","gids":["1"]}`, "Missing or invalid 'gids' array"},
		{"gids object", `{"boundary":"boundary_uk_counties","gids":{"a":1}}`, "Missing or invalid 'gids' array"},
		{"gids null", `{"boundary":"boundary_uk_counties","gids":null}`, "Missing or invalid 'gids' array"},
		{"bad gids without boundary", `{"gids":"abc"}`, "Missing 'boundary' parameter"},
		{"boundary not a string", `{"boundary":7,"gids":[1]}`, "Invalid boundary table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			req := httptest.NewRequest(http.MethodPost, "/api/are_gids_coastal", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assertError(t, rec, http.StatusBadRequest, tt.want)
		})
	}
}

func TestGidsCentre(t *testing.T) {
	env := newEnv(t, func(d *httpadapter.Deps) {
		d.Geocoder = &fakeGeocoder{reverse: domain.GeocodingResult{PlaceName: "Truro", FormattedAddress: "Truro, Cornwall"}}
	})
	env.boundaries.centre = domain.Centre{Lat: 50.26, Lon: -5.05}

	rec := env.post(t, "/api/gids_centre", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{3}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat":50.26,"lon":-5.05,"placeName":"Truro"}`, rec.Body.String())

	require.Len(t, env.usage.events, 1)
	assert.Equal(t, domain.UsageRegionCentre, env.usage.events[0].Type)
	assert.Equal(t, "boundary_uk_counties", env.usage.events[0].Boundary)
}

func TestGidsCentre_GeocoderFailureStillAnswers(t *testing.T) {
	env := newEnv(t, func(d *httpadapter.Deps) {
		d.Geocoder = &fakeGeocoder{err: fmt.Errorf("mapbox down")}
	})
	env.boundaries.centre = domain.Centre{Lat: 50.26, Lon: -5.05}

	rec := env.post(t, "/api/gids_centre", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{3}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat":50.26,"lon":-5.05}`, rec.Body.String())
}

func TestGidsCentre_NoMatchingRegions(t *testing.T) {
	env := newEnv(t)
	env.boundaries.err = fmt.Errorf("centre of boundary_uk_counties: %w", domain.ErrNotFound)

	rec := env.post(t, "/api/gids_centre", map[string]any{"boundary": "boundary_uk_counties", "gids": []int{999}})
	assertError(t, rec, http.StatusNotFound, "No data found")
	assert.Empty(t, env.usage.events)
}

func TestRegion(t *testing.T) {
	env := newEnv(t)
	env.boundaries.geoJSON = json.RawMessage(`{"type":"FeatureCollection","features":[]}`)

	for _, target := range []string{
		"/api/region?table=boundary_uk_counties&tolerance=abc&left=-6&bottom=49&right=2&top=56",
		"/api/region?table=boundary_uk_counties&tolerance=100&left=-6&bottom=49&right=2",
		"/api/region?table=boundary_uk_counties&tolerance=100&left=2&bottom=49&right=-6&top=56",
		"/api/region?table=boundary_uk_counties&tolerance=-1&left=-6&bottom=49&right=2&top=56",
		"/api/region?table=boundary_uk_counties&tolerance=100&left=-6&bottom=49&right=2&top=NaN",
	} {
		assertError(t, env.get(t, target), http.StatusBadRequest, "Invalid input parameters")
	}

	assertError(t, env.get(t, "/api/region?table=boundary_wards&tolerance=100&left=-6&bottom=49&right=2&top=56"),
		http.StatusBadRequest, "Invalid table")

	rec := env.get(t, "/api/region?table=boundary_uk_counties&tolerance=100&left=-6&bottom=49.5&right=2&top=56")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, rec.Body.String())
	assert.Equal(t, 100.0, env.boundaries.gotTolerance)
	assert.Equal(t, domain.BoundingBox{Left: -6, Bottom: 49.5, Right: 2, Top: 56}, env.boundaries.gotBBox)
}

func TestChessScape_Validation(t *testing.T) {
	env := newEnv(t)

	for _, target := range []string{
		"/api/chess_scape?rcp=rcp60&season=summer&boundary=boundary_uk_counties",
		"/api/chess_scape?locations=a&rcp=rcp60&season=summer&boundary=boundary_uk_counties",
		"/api/chess_scape?locations=1&rcp=rcp45&season=summer&boundary=boundary_uk_counties",
		"/api/chess_scape?locations=1&rcp=rcp60&season=spring&boundary=boundary_uk_counties",
		"/api/chess_scape?locations=1&rcp=rcp60&season=summer",
		"/api/chess_scape?locations=1&rcp=rcp60&season=summer&boundary=uk_counties",
		"/api/chess_scape?locations=-1&rcp=rcp60&season=summer&boundary=boundary_uk_counties",
	} {
		assertError(t, env.get(t, target), http.StatusBadRequest, "Invalid parameters")
	}

	assertError(t, env.get(t, "/api/chess_scape?locations=1&rcp=rcp60&season=summer&boundary=boundary_wards"),
		http.StatusBadRequest, "Invalid boundary")
}

func TestChessScape(t *testing.T) {
	env := newEnv(t)
	env.climate.prediction = domain.ClimatePrediction{
		"tas_1980_mean": ptr(9.5),
		"tas_2070_mean": nil,
	}

	rec := env.get(t, "/api/chess_scape?locations=12&locations=15&rcp=rcp85&season=winter&boundary=boundary_lsoa")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"tas_1980_mean":9.5,"tas_2070_mean":null}]`, rec.Body.String())

	want := domain.ClimateQuery{Boundary: lsoa, Gids: []int{12, 15}, Scenario: domain.RCP85, Season: domain.Winter}
	if diff := cmp.Diff(want, env.climate.gotQuery); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, env.usage.events, 1)
	ev := env.usage.events[0]
	assert.Equal(t, domain.UsageClimatePrediction, ev.Type)
	assert.Equal(t, 2, ev.RegionCount)
	assert.Equal(t, domain.RCP85, ev.Scenario)
}

func TestClimateSummary(t *testing.T) {
	env := newEnv(t)
	env.climate.prediction = domain.ClimatePrediction{
		"tas_1980_mean":  ptr(9.5),
		"tas_2070_mean":  ptr(12),
		"tas_2030_mean":  ptr(10.25),
		"rsds_1980_mean": ptr(110),
		"rsds_2070_mean": ptr(115),
	}

	rec := env.get(t, "/api/climate_summary?locations=1&rcp=rcp60&season=summer&boundary=boundary_uk_counties")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.VariableSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, domain.Temperature, got[0].Variable)
	require.NotNil(t, got[0].Change)
	assert.InDelta(t, 2.5, *got[0].Change, 1e-9)
	assert.Equal(t, domain.DirectionIncreases, *got[0].Direction)
	assert.Nil(t, got[1].Change, "rainfall has no data")
	assert.Equal(t, domain.Radiation, got[2].Variable)
	assert.InDelta(t, -5, *got[2].Change, 1e-9)

	rec = env.get(t, "/api/climate_summary?year=2030&locations=1&rcp=rcp60&season=summer&boundary=boundary_uk_counties")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.InDelta(t, 0.75, *got[0].Change, 1e-9)

	assertError(t, env.get(t, "/api/climate_summary?year=1980&locations=1&rcp=rcp60&season=summer&boundary=boundary_uk_counties"),
		http.StatusBadRequest, "Invalid parameters")
	assertError(t, env.get(t, "/api/climate_summary?year=2035&locations=1&rcp=rcp60&season=summer&boundary=boundary_uk_counties"),
		http.StatusBadRequest, "Invalid parameters")
}

func TestUKAverages(t *testing.T) {
	env := newEnv(t)
	env.climate.averages = []domain.UKAverage{{Decade: 1980, Min: ptr(1), Mean: ptr(2), Max: ptr(3)}}

	assertError(t, env.get(t, "/api/chess_scape_uk_averages?rcp=rcp60&season=summer&variable=humidity"),
		http.StatusBadRequest, "Invalid parameters")
	assertError(t, env.get(t, "/api/chess_scape_uk_averages?is_bias_corrected=maybe&rcp=rcp60&season=summer&variable=tas"),
		http.StatusBadRequest, "Invalid parameters")

	rec := env.get(t, "/api/chess_scape_uk_averages?is_bias_corrected=true&rcp=rcp60&season=summer&variable=sfcWind")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.climate.gotBias)
	assert.Equal(t, domain.WindSpeed, env.climate.gotVar)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, float64(1980), got[0]["decade"])
}

func TestReferences(t *testing.T) {
	env := newEnv(t)
	env.content.refs = []domain.Reference{{ArticleID: "7", Type: "Journal Article", Title: "Heat and health"}}

	rec := env.get(t, "/api/references?type=journal+article")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "journal article", env.content.gotType)
	assert.Contains(t, rec.Body.String(), `"article_id":"7"`)
}

func TestAdaptations(t *testing.T) {
	env := newEnv(t)
	env.content.adaptations = []domain.Adaptation{
		{ID: "a1", Label: "Shade trees", Attributes: map[string]any{
			"layer":                      []any{"Extreme Heat in full"},
			domain.CCCThemeAttribute:     []any{"Nature"},
			domain.IPCCCategoryAttribute: []any{"Ecosystem-based"},
		}},
		{ID: "a2", Label: "Flood barriers", Attributes: map[string]any{
			"layer":                  []any{"Flooding in full"},
			domain.CCCThemeAttribute: []any{"Infrastructure"},
		}},
	}

	assertError(t, env.get(t, "/api/adaptations"), http.StatusBadRequest, "Missing 'hazard' parameter")
	assertError(t, env.get(t, "/api/adaptations?hazard=flooding&category=unknown"), http.StatusBadRequest, "Invalid parameters")

	decode := func(rec *httptest.ResponseRecorder) []string {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code)
		var got []domain.Adaptation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		ids := make([]string, len(got))
		for i, a := range got {
			ids[i] = a.ID
		}
		return ids
	}

	assert.Equal(t, []string{"a1", "a2"}, decode(env.get(t, "/api/adaptations?hazard=extreme+heat&hazard=flooding")))
	assert.Equal(t, []string{"a2"}, decode(env.get(t, "/api/adaptations?hazard=Flooding")))
	assert.Equal(t, []string{"a1"}, decode(env.get(t, "/api/adaptations?hazard=extreme+heat,flooding&category=ccc&filter=Nature")))
	assert.Equal(t, []string{"a1", "a2"}, decode(env.get(t, "/api/adaptations?hazard=extreme+heat,flooding&category=ccc&filter=All")))
	assert.Empty(t, decode(env.get(t, "/api/adaptations?hazard=drought")))
}

func TestLocate(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		assertError(t, newEnv(t).get(t, "/api/locate?q=Truro&boundary=boundary_uk_counties"),
			http.StatusServiceUnavailable, "Place search is not available")
	})

	geo := &fakeGeocoder{}
	env := newEnv(t, func(d *httpadapter.Deps) { d.Geocoder = geo })

	assertError(t, env.get(t, "/api/locate?boundary=boundary_uk_counties"), http.StatusBadRequest, "Missing 'q' parameter")
	assertError(t, env.get(t, "/api/locate?q=Truro"), http.StatusBadRequest, "Missing 'boundary' parameter")
	assertError(t, env.get(t, "/api/locate?q=Truro&boundary=boundary_wards"), http.StatusBadRequest, "Invalid boundary table")
	assertError(t, env.get(t, "/api/locate?q=Atlantis&boundary=boundary_uk_counties"), http.StatusNotFound, "Place not found")

	geo.forward = domain.GeocodingResult{Lat: 50.26, Lon: -5.05, PlaceName: "Truro", FormattedAddress: "Truro, Cornwall, England"}
	env.boundaries.regionAt = domain.Region{Gid: 6, Name: "Cornwall"}

	rec := env.get(t, "/api/locate?q=Truro&boundary=boundary_uk_counties")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"gid":6,"name":"Cornwall","lat":50.26,"lon":-5.05,"placeName":"Truro, Cornwall, England"}`, rec.Body.String())
	assert.Equal(t, [2]float64{50.26, -5.05}, env.boundaries.gotPoint)

	env.boundaries.err = fmt.Errorf("region at point: %w", domain.ErrNotFound)
	assertError(t, env.get(t, "/api/locate?q=Truro&boundary=boundary_uk_counties"), http.StatusNotFound, "No region contains that place")
}

func TestUnknownAPIRouteReturnsJSON404(t *testing.T) {
	assertError(t, newEnv(t).get(t, "/api/nope"), http.StatusNotFound, "Not found")
}

// --- cors ---

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/are_gids_coastal", nil)
	req.Header.Set("Origin", "http://localhost:3001")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "http://localhost:3001", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSActualRequest(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "http://localhost:3001")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3001", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisabled(t *testing.T) {
	env := newEnv(t, func(d *httpadapter.Deps) { d.CORSOrigin = "" })
	rec := env.get(t, "/api/ping")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- static bundle ---

func TestStaticBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>lcat</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600))

	env := newEnv(t, func(d *httpadapter.Deps) { d.StaticDir = dir })

	rec := env.get(t, "/assets/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = env.get(t, "/climate-map")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lcat")

	assertError(t, env.get(t, "/api/nope"), http.StatusNotFound, "Not found")
}

func TestNoStaticBundle(t *testing.T) {
	assertError(t, newEnv(t).get(t, "/climate-map"), http.StatusNotFound, "Not found")
}
