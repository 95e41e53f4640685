package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Usage event types.
const (
	UsageClimatePrediction = "climate_prediction"
	UsageClimateSummary    = "climate_summary"
	UsageRegionCentre      = "region_centre"
	UsageLocate            = "locate"
)

// UsageEvent records one climate query for the analytics stream. It carries
// no user-identifying data.
type UsageEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Boundary    string    `json:"boundary"`
	RegionCount int       `json:"region_count"`
	Scenario    Scenario  `json:"rcp,omitempty"`
	Season      Season    `json:"season,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewUsageEvent stamps an event with a random id and the package clock.
func NewUsageEvent(eventType, boundary string, regionCount int, rcp Scenario, season Season) UsageEvent {
	return UsageEvent{
		ID:          newEventID(),
		Type:        eventType,
		Boundary:    boundary,
		RegionCount: regionCount,
		Scenario:    rcp,
		Season:      season,
		OccurredAt:  clock.Now().UTC(),
	}
}

func newEventID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// OutputEvent is the serialized form destined for the usage topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
