package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Scenario is an RCP emissions pathway.
type Scenario string

const (
	RCP60 Scenario = "rcp60"
	RCP85 Scenario = "rcp85"
)

// Season selects the seasonal slice of the projections.
type Season string

const (
	Annual Season = "annual"
	Summer Season = "summer"
	Winter Season = "winter"
)

// Variable is a CHESS-SCAPE climate variable.
type Variable string

const (
	Temperature   Variable = "tas"
	Precipitation Variable = "pr"
	WindSpeed     Variable = "sfcWind"
	Radiation     Variable = "rsds"
)

// Stat is the decadal statistic stored per variable.
type Stat string

const (
	StatMin  Stat = "min"
	StatMean Stat = "mean"
	StatMax  Stat = "max"
)

const (
	FirstDecade    = 1980
	LastDecade     = 2070
	BaselineDecade = FirstDecade
)

// Scenarios, Seasons, Variables and Stats list the vocabulary in the order the
// dataset uses.
var (
	Scenarios = []Scenario{RCP60, RCP85}
	Seasons   = []Season{Annual, Summer, Winter}
	Variables = []Variable{Temperature, WindSpeed, Precipitation, Radiation}
	Stats     = []Stat{StatMin, StatMean, StatMax}
)

// ParseScenario validates an RCP scenario name.
func ParseScenario(s string) (Scenario, error) {
	for _, v := range Scenarios {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: rcp %q", ErrInvalidParameter, s)
}

// ParseSeason validates a season name.
func ParseSeason(s string) (Season, error) {
	for _, v := range Seasons {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: season %q", ErrInvalidParameter, s)
}

// ParseVariable validates a climate variable name. Matching is exact because
// column names are case sensitive.
func ParseVariable(s string) (Variable, error) {
	for _, v := range Variables {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: variable %q", ErrInvalidParameter, s)
}

// ParseDecade validates a decade start year between 1980 and 2070.
func ParseDecade(s string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !validDecade(d) {
		return 0, fmt.Errorf("%w: decade %q", ErrInvalidParameter, s)
	}
	return d, nil
}

func validDecade(d int) bool {
	return d >= FirstDecade && d <= LastDecade && d%10 == 0
}

// Decades returns every decade start year in ascending order.
func Decades() []int {
	out := make([]int, 0, (LastDecade-FirstDecade)/10+1)
	for d := FirstDecade; d <= LastDecade; d += 10 {
		out = append(out, d)
	}
	return out
}

// ClimateColumn names one column of a grid or cache table.
func ClimateColumn(v Variable, decade int, stat Stat) string {
	return fmt.Sprintf("%s_%d_%s", v, decade, stat)
}

// ClimateColumns returns all variable × decade × stat column names in a
// stable order.
func ClimateColumns() []string {
	decades := Decades()
	out := make([]string, 0, len(Variables)*len(decades)*len(Stats))
	for _, v := range Variables {
		for _, d := range decades {
			for _, s := range Stats {
				out = append(out, ClimateColumn(v, d, s))
			}
		}
	}
	return out
}

// IsClimateColumn reports whether name follows the <var>_<decade>_<stat> form
// with known parts.
func IsClimateColumn(name string) bool {
	parts := strings.Split(name, "_")
	if len(parts) != 3 {
		return false
	}
	if _, err := ParseVariable(parts[0]); err != nil {
		return false
	}
	if _, err := ParseDecade(parts[1]); err != nil {
		return false
	}
	_, ok := aggregates[Stat(parts[2])]
	return ok
}

var aggregates = map[Stat]string{
	StatMin:  "MIN",
	StatMean: "AVG",
	StatMax:  "MAX",
}

// AggregateFor returns the SQL aggregate used to combine a climate column
// across grid cells: MIN for _min, AVG for _mean, MAX for _max.
func AggregateFor(column string) (string, error) {
	i := strings.LastIndexByte(column, '_')
	if i < 0 {
		return "", fmt.Errorf("%w: column %q", ErrInvalidParameter, column)
	}
	agg, ok := aggregates[Stat(column[i+1:])]
	if !ok {
		return "", fmt.Errorf("%w: column %q", ErrInvalidParameter, column)
	}
	return agg, nil
}

// ClimateTable is the CHESS-SCAPE grid table for a scenario and season.
func ClimateTable(rcp Scenario, season Season) string {
	return fmt.Sprintf("chess_scape_%s_%s", rcp, season)
}

// CacheTable is the per-region pre-aggregated table for a boundary.
func CacheTable(identifier string, rcp Scenario, season Season) string {
	return fmt.Sprintf("cache_%s_to_%s_%s", identifier, rcp, season)
}

// ClimatePrediction maps climate column names to aggregated values. A nil
// value means the source had no data for that column.
type ClimatePrediction map[string]*float64

// Value returns the column value and whether it was present and non-null.
func (p ClimatePrediction) Value(column string) (float64, bool) {
	v, ok := p[column]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// UKAverage is one decade row of the whole-UK averages table.
type UKAverage struct {
	Decade int      `json:"decade"`
	Min    *float64 `json:"min"`
	Mean   *float64 `json:"mean"`
	Max    *float64 `json:"max"`
}

// ClimateQuery is a validated request for a region's climate prediction.
type ClimateQuery struct {
	Boundary BoundaryDetails
	Gids     []int
	Scenario Scenario
	Season   Season
}
