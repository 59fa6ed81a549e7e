package domain

import (
	"fmt"
	"time"
)

// Aggregate type identifiers
const (
	AggregateSupportCase    = "support_case"
	AggregateCompanyProduct = "company_product"
)

// ActorType identifies who caused an event
type ActorType string

// Actor types
const (
	ActorUser   ActorType = "user"
	ActorAI     ActorType = "ai"
	ActorSystem ActorType = "system"
)

// Actor describes the originator of a command or event
type Actor struct {
	Type ActorType `json:"type" validate:"required,oneof=user ai system"`
	ID   string    `json:"id" validate:"required"`
}

// EventType constants
const (
	// Support case events
	CaseCreated           = "V1_CASE_CREATED"
	CaseAssigned          = "V1_CASE_ASSIGNED"
	CaseStatusChanged     = "V1_CASE_STATUS_CHANGED"
	CaseSeverityChanged   = "V1_CASE_SEVERITY_CHANGED"
	CaseImpactAssessed    = "V1_CASE_IMPACT_ASSESSED"
	CaseResolved          = "V1_CASE_RESOLVED"
	CaseClosed            = "V1_CASE_CLOSED"
	CaseReopened          = "V1_CASE_REOPENED"
	CustomerMessageLogged = "V1_CUSTOMER_MESSAGE_LOGGED"
	AgentResponseSent     = "V1_AGENT_RESPONSE_SENT"
	CaseTagAdded          = "V1_CASE_TAG_ADDED"
	CaseTagRemoved        = "V1_CASE_TAG_REMOVED"
	CaseSLABreached       = "V1_CASE_SLA_BREACHED"

	// Company-product lifecycle events
	LifecycleStarted     = "V1_LIFECYCLE_STARTED"
	StageAdvanced        = "V1_LIFECYCLE_STAGE_ADVANCED"
	OwnerSet             = "V1_LIFECYCLE_OWNER_SET"
	TierSet              = "V1_LIFECYCLE_TIER_SET"
	SuggestionCreated    = "V1_SUGGESTION_CREATED"
	SuggestionAccepted   = "V1_SUGGESTION_ACCEPTED"
	SuggestionDismissed  = "V1_SUGGESTION_DISMISSED"
	LifecycleSLABreached = "V1_LIFECYCLE_SLA_BREACHED"
)

// Event represents a recorded domain event. Events are immutable facts:
// once stored they are never mutated or deleted.
type Event struct {
	ID            string    `json:"id"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Sequence      int64     `json:"sequence"`
	GlobalSeq     int64     `json:"global_seq"`
	Type          string    `json:"type"`
	Payload       Payload   `json:"payload"`
	Actor         Actor     `json:"actor"`
	OccurredAt    time.Time `json:"occurred_at"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// validateOrder checks that the supplied events carry strictly increasing
// per-aggregate sequence numbers. A duplicate or lower-than-previous
// sequence is a corruption of the history, not a business condition, so
// the caller must abort rather than skip or reorder.
func validateOrder(events []Event) error {
	var prev int64
	for i, ev := range events {
		if ev.Sequence <= prev {
			return fmt.Errorf("%w: event %d (%s) has sequence %d after %d",
				ErrSequenceDisorder, i, ev.Type, ev.Sequence, prev)
		}
		prev = ev.Sequence
	}
	return nil
}
