package commands

import (
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/northstar/services/custops/internal/domain"
)

// maxAppendAttempts bounds the optimistic-concurrency retry loop. Each
// attempt re-reads the aggregate and rebuilds the event against fresh
// state, so a retry is a full re-decision, not a blind re-insert.
const maxAppendAttempts = 3

var validate = validator.New()

// validateInput checks a command input's structural constraints before
// any state is read. Nothing downstream rechecks aggregate identity, so
// an empty ID must be stopped here.
func validateInput(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		return domain.NewValidationError(domain.CodeInvalidInput, "invalid command input: %v", err)
	}
	return nil
}

// Result reports what a handled command recorded. A command that decides
// nothing needs to change (an already-present tag, say) succeeds with an
// empty EventIDs slice.
type Result struct {
	AggregateID string   `json:"aggregate_id"`
	EventIDs    []string `json:"event_ids"`
}

// SLAPolicy carries the service-level targets the command layer stamps
// into events at creation time. Events carry the hours they were opened
// under, so later policy changes never rewrite history.
type SLAPolicy struct {
	FirstResponseHours float64
	ResolutionHours    float64
	StageHours         float64
}

func newEvent(aggregateType, aggregateID string, sequence int64, actor domain.Actor, at time.Time, payload domain.Payload) domain.Event {
	return domain.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Sequence:      sequence,
		Type:          payload.EventType(),
		Payload:       payload,
		Actor:         actor,
		OccurredAt:    at,
	}
}

func eventIDs(events []domain.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
