package domain

import (
	"slices"
	"strings"
)

// Attribute keys used to filter adaptations by theme.
const (
	CCCThemeAttribute     = "ccc adaptation theme"
	IPCCCategoryAttribute = "ipcc adaptation category"
)

// DefaultAdaptationFilter disables theme filtering.
const DefaultAdaptationFilter = "All"

// Adaptation is a Kumu "Action" element describing one adaptation measure.
type Adaptation struct {
	ID          string         `json:"_id"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes"`
}

// Layers returns the adaptation's impact pathway layers.
func (a Adaptation) Layers() []string {
	return a.stringList("layer")
}

func (a Adaptation) stringList(key string) []string {
	switch v := a.Attributes[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// FilterAdaptations keeps adaptations with a layer naming any of the hazards
// ("<hazard> in full", case-insensitive). When filter is set and is not the
// default, the adaptation's category attribute must also list it.
func FilterAdaptations(adaptations []Adaptation, hazards []string, category, filter string) []Adaptation {
	needles := make([]string, 0, len(hazards))
	for _, h := range hazards {
		if h = strings.TrimSpace(h); h != "" {
			needles = append(needles, strings.ToLower(h)+" in full")
		}
	}

	filterByCategory := category != "" && filter != "" && filter != DefaultAdaptationFilter

	out := make([]Adaptation, 0)
	for _, a := range adaptations {
		if !matchesHazard(a.Layers(), needles) {
			continue
		}
		if filterByCategory && !slices.Contains(a.stringList(category), filter) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func matchesHazard(layers, needles []string) bool {
	for _, layer := range layers {
		l := strings.ToLower(layer)
		for _, n := range needles {
			if strings.Contains(l, n) {
				return true
			}
		}
	}
	return false
}
