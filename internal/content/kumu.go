package content

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

const (
	elementTypeKey = "element type"
	actionType     = "Action"
)

// droppedAttributes are Kumu attributes the site never reads.
var droppedAttributes = map[string]bool{
	elementTypeKey:   true,
	"climate_hazard": true,
	"un_sdg":         true,
	"vulnerability":  true,
}

// ProcessKumu extracts adaptation actions from a Kumu map export. Elements
// that are not actions, or that have no layer, are skipped.
func ProcessKumu(data []byte) ([]domain.Adaptation, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: kumu export is not valid JSON", ErrMalformedSource)
	}

	elements := gjson.GetBytes(data, "elements")
	if !elements.IsArray() {
		return nil, fmt.Errorf("%w: kumu export has no elements array", ErrMalformedSource)
	}

	out := make([]domain.Adaptation, 0)
	var err error
	elements.ForEach(func(_, element gjson.Result) bool {
		attrs := element.Get("attributes")
		if !attrs.IsObject() {
			return true
		}

		var isAction, hasLayer bool
		kept := make(map[string]any)
		attrs.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			switch k {
			case elementTypeKey:
				isAction = value.String() == actionType
			case "layer":
				hasLayer = true
			}
			if !droppedAttributes[k] {
				kept[k] = value.Value()
			}
			return true
		})
		if !isAction || !hasLayer {
			return true
		}

		id := element.Get("_id").String()
		if id == "" {
			err = fmt.Errorf("%w: action %q has no _id", ErrMalformedSource, attrs.Get("label").String())
			return false
		}
		out = append(out, domain.Adaptation{
			ID:          id,
			Label:       attrs.Get("label").String(),
			Description: attrs.Get("description").String(),
			Attributes:  kept,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
