package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// gidsRequest is the body of the are_gids_coastal and gids_centre routes.
type gidsRequest struct {
	Boundary string `json:"boundary" validate:"required"`
	Gids     []int  `json:"gids" validate:"required,min=1"`
}

func (g *gidsRequest) Bind(*http.Request) error {
	g.Boundary = strings.TrimSpace(g.Boundary)
	return nil
}

// decodeGidsRequest reads and validates a gids request body. An empty body
// reads as {}. On failure it returns the client message to send; a missing
// boundary is reported before a bad gids list.
func decodeGidsRequest(r *http.Request, v *validator.Validate) (gidsRequest, string) {
	var body struct {
		Boundary json.RawMessage `json:"boundary"`
		Gids     json.RawMessage `json:"gids"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
		return gidsRequest{}, msgInvalidBody
	}

	var req gidsRequest
	if !isNull(body.Boundary) && json.Unmarshal(body.Boundary, &req.Boundary) != nil {
		return req, msgInvalidBoundaryTb
	}
	gidsOK := isNull(body.Gids) || json.Unmarshal(body.Gids, &req.Gids) == nil
	_ = req.Bind(r)

	if req.Boundary == "" {
		return req, msgMissingBoundary
	}
	if !gidsOK {
		return req, msgInvalidGids
	}
	if err := v.Struct(req); err != nil {
		return req, gidsMessage(err)
	}
	return req, ""
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// gidsMessage picks the client message for a gidsRequest validation failure.
// A missing boundary is reported before a bad gids list.
func gidsMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Boundary" {
				return msgMissingBoundary
			}
		}
	}
	return msgInvalidGids
}

// climateParams are the shared query parameters of the chess_scape and
// climate_summary routes.
type climateParams struct {
	Locations []int  `validate:"required,min=1,dive,gte=0"`
	Boundary  string `validate:"required,startswith=boundary_"`
	Scenario  string `validate:"oneof=rcp60 rcp85"`
	Season    string `validate:"oneof=annual summer winter"`
}

func parseClimateParams(v *validator.Validate, q url.Values) (climateParams, error) {
	p := climateParams{
		Boundary: q.Get("boundary"),
		Scenario: q.Get("rcp"),
		Season:   q.Get("season"),
	}
	for _, raw := range q["locations"] {
		gid, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return p, domain.ErrInvalidParameter
		}
		p.Locations = append(p.Locations, gid)
	}
	if err := v.Struct(p); err != nil {
		return p, err
	}
	return p, nil
}

// ukAverageParams are the query parameters of chess_scape_uk_averages.
type ukAverageParams struct {
	BiasCorrected string `validate:"omitempty,oneof=true false"`
	Scenario      string `validate:"oneof=rcp60 rcp85"`
	Season        string `validate:"oneof=annual summer winter"`
	Variable      string `validate:"oneof=tas pr sfcWind rsds"`
}

// adaptationCategories maps the category query value onto the Kumu attribute
// holding that classification.
var adaptationCategories = map[string]string{
	"":     "",
	"ccc":  domain.CCCThemeAttribute,
	"ipcc": domain.IPCCCategoryAttribute,
}

// regionParams holds the parsed region query. Any value that fails to parse
// makes the whole request invalid.
type regionParams struct {
	Table     string
	Tolerance float64
	BBox      domain.BoundingBox
}

func parseRegionParams(q url.Values) (regionParams, bool) {
	p := regionParams{Table: q.Get("table")}
	targets := []struct {
		name string
		dest *float64
	}{
		{"tolerance", &p.Tolerance},
		{"left", &p.BBox.Left},
		{"bottom", &p.BBox.Bottom},
		{"right", &p.BBox.Right},
		{"top", &p.BBox.Top},
	}
	for _, t := range targets {
		v, err := strconv.ParseFloat(strings.TrimSpace(q.Get(t.name)), 64)
		if err != nil {
			return p, false
		}
		*t.dest = v
	}
	if domain.ValidateTolerance(p.Tolerance) != nil || p.BBox.Validate() != nil {
		return p, false
	}
	return p, true
}
