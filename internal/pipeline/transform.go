package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

// UsageTransformer implements Transformer. Events are keyed by boundary so
// queries against one boundary land on one partition.
type UsageTransformer struct{}

// NewTransformer creates a UsageTransformer.
func NewTransformer() *UsageTransformer {
	return &UsageTransformer{}
}

func (t *UsageTransformer) Transform(_ context.Context, event domain.UsageEvent) (domain.OutputEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("serialize usage event: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(event.Boundary),
		Value: data,
		Headers: map[string]string{
			"event_type":  event.Type,
			"occurred_at": event.OccurredAt.Format(time.RFC3339),
		},
	}, nil
}

// Recorder accepts usage events from request handlers.
type Recorder interface {
	Record(event domain.UsageEvent)
}

// NopRecorder discards every event. It stands in for the Publisher when usage
// events are disabled.
type NopRecorder struct{}

func (NopRecorder) Record(domain.UsageEvent) {}
