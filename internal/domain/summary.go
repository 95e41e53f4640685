package domain

import (
	"fmt"
	"math"
)

// Direction words used in climate summaries.
const (
	DirectionIncreases = "increases"
	DirectionDecreases = "decreases"
	DirectionNoChange  = "no change"
)

// VariableSummary describes how one variable changes between the baseline
// decade and the requested one.
type VariableSummary struct {
	Variable  Variable `json:"variable"`
	Name      string   `json:"name"`
	Units     string   `json:"units"`
	Change    *float64 `json:"change"`
	Direction *string  `json:"direction"`
}

type variableLabel struct {
	name  string
	units string
}

var variableLabels = map[Variable]variableLabel{
	Temperature:   {name: "Temperature", units: "°C"},
	Precipitation: {name: "Rainfall", units: "mm/day"},
	Radiation:     {name: "Cloudiness", units: "Watts/m2"},
	WindSpeed:     {name: "Windiness", units: "m/sec"},
}

// summaryOrder matches the order the site presents variables in.
var summaryOrder = []Variable{Temperature, Precipitation, Radiation, WindSpeed}

// Summarize compares each variable's decade mean in year against the 1980
// mean. rsds is negated so the summary reads as cloudiness. A variable with
// either mean missing has nil Change and Direction.
func Summarize(p ClimatePrediction, year int) ([]VariableSummary, error) {
	if !validDecade(year) {
		return nil, fmt.Errorf("%w: decade %d", ErrInvalidParameter, year)
	}

	out := make([]VariableSummary, 0, len(summaryOrder))
	for _, v := range summaryOrder {
		label := variableLabels[v]
		s := VariableSummary{Variable: v, Name: label.name, Units: label.units}

		baseline, okBase := p.Value(ClimateColumn(v, BaselineDecade, StatMean))
		predicted, okPred := p.Value(ClimateColumn(v, year, StatMean))
		if okBase && okPred {
			change := predicted - baseline
			if v == Radiation {
				change = -change
			}
			dir := direction(change)
			change = roundTo(change, 2)
			s.Change = &change
			s.Direction = &dir
		}
		out = append(out, s)
	}
	return out, nil
}

func direction(change float64) string {
	switch {
	case change > 0:
		return DirectionIncreases
	case change < 0:
		return DirectionDecreases
	default:
		return DirectionNoChange
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	r := math.Round(v*p) / p
	if r == 0 {
		return 0 // normalise -0
	}
	return r
}
