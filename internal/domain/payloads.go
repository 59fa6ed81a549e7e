package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the typed body of an event. Each event type has exactly one
// payload struct, decoded once at the event store boundary. Unrecognized
// event types decode to UnknownPayload so replays of histories written by
// newer versions still work (bookkeeping only, no business effect).
type Payload interface {
	EventType() string
}

// Support case payloads

// CaseCreatedPayload opens a new support case
type CaseCreatedPayload struct {
	CompanyID             string  `json:"company_id" validate:"required"`
	ProductID             string  `json:"product_id"`
	Title                 string  `json:"title" validate:"required"`
	Description           string  `json:"description"`
	Severity              string  `json:"severity" validate:"required,oneof=low medium high urgent critical"`
	Category              string  `json:"category"`
	Source                string  `json:"source"`
	ContactEmail          string  `json:"contact_email" validate:"omitempty,email"`
	FirstResponseSLAHours float64 `json:"first_response_sla_hours" validate:"gte=0"`
	ResolutionSLAHours    float64 `json:"resolution_sla_hours" validate:"gte=0"`
}

func (CaseCreatedPayload) EventType() string { return CaseCreated }

// CaseAssignedPayload sets the case owner
type CaseAssignedPayload struct {
	OwnerID         string `json:"owner_id" validate:"required"`
	OwnerName       string `json:"owner_name"`
	PreviousOwnerID string `json:"previous_owner_id"`
}

func (CaseAssignedPayload) EventType() string { return CaseAssigned }

// CaseStatusChangedPayload moves a case between workflow statuses
type CaseStatusChangedPayload struct {
	FromStatus string `json:"from_status" validate:"required"`
	ToStatus   string `json:"to_status" validate:"required"`
}

func (CaseStatusChangedPayload) EventType() string { return CaseStatusChanged }

// CaseSeverityChangedPayload reclassifies a case's severity
type CaseSeverityChangedPayload struct {
	FromSeverity string `json:"from_severity"`
	ToSeverity   string `json:"to_severity" validate:"required,oneof=low medium high urgent critical"`
}

func (CaseSeverityChangedPayload) EventType() string { return CaseSeverityChanged }

// CaseImpactAssessedPayload records the assessed business impact
type CaseImpactAssessedPayload struct {
	Impact string `json:"impact" validate:"required,oneof=neutral negative critical"`
	Notes  string `json:"notes"`
}

func (CaseImpactAssessedPayload) EventType() string { return CaseImpactAssessed }

// CaseResolvedPayload marks a case resolved
type CaseResolvedPayload struct {
	ResolutionSummary   string  `json:"resolution_summary" validate:"required"`
	RootCause           string  `json:"root_cause"`
	ResolutionTimeHours float64 `json:"resolution_time_hours" validate:"gte=0"`
	SLAHours            float64 `json:"sla_hours" validate:"gte=0"`
	SLAMet              bool    `json:"sla_met"`
}

func (CaseResolvedPayload) EventType() string { return CaseResolved }

// CaseClosedPayload closes a case
type CaseClosedPayload struct {
	CloseReason string `json:"close_reason" validate:"required"`
	ForcedClose bool   `json:"forced_close"`
}

func (CaseClosedPayload) EventType() string { return CaseClosed }

// CaseReopenedPayload reopens a resolved or closed case
type CaseReopenedPayload struct {
	Reason              string `json:"reason" validate:"required"`
	PreviousCloseReason string `json:"previous_close_reason"`
	ReopenedFromStatus  string `json:"reopened_from_status" validate:"required"`
}

func (CaseReopenedPayload) EventType() string { return CaseReopened }

// CustomerMessageLoggedPayload records an inbound customer message
type CustomerMessageLoggedPayload struct {
	Channel    string    `json:"channel" validate:"required"`
	ReceivedAt time.Time `json:"received_at" validate:"required"`
}

func (CustomerMessageLoggedPayload) EventType() string { return CustomerMessageLogged }

// AgentResponseSentPayload records an outbound agent response
type AgentResponseSentPayload struct {
	Channel         string `json:"channel" validate:"required"`
	IsFirstResponse bool   `json:"is_first_response"`
}

func (AgentResponseSentPayload) EventType() string { return AgentResponseSent }

// CaseTagAddedPayload adds a display tag to a case
type CaseTagAddedPayload struct {
	Tag string `json:"tag" validate:"required"`
}

func (CaseTagAddedPayload) EventType() string { return CaseTagAdded }

// CaseTagRemovedPayload removes a display tag from a case
type CaseTagRemovedPayload struct {
	Tag string `json:"tag" validate:"required"`
}

func (CaseTagRemovedPayload) EventType() string { return CaseTagRemoved }

// SLA categories on a support case
const (
	SLAFirstResponse = "first_response"
	SLAResolution    = "resolution"
)

// CaseSLABreachedPayload is emitted by the breach scanner when a due-by
// timestamp has passed without the corresponding completion
type CaseSLABreachedPayload struct {
	SLAType     string    `json:"sla_type" validate:"required,oneof=first_response resolution"`
	DueAt       time.Time `json:"due_at" validate:"required"`
	HoursOver   float64   `json:"hours_over" validate:"gte=0"`
	ActualHours float64   `json:"actual_hours" validate:"gte=0"`
}

func (CaseSLABreachedPayload) EventType() string { return CaseSLABreached }

// Lifecycle payloads

// LifecycleStartedPayload begins tracking a company-product lifecycle
type LifecycleStartedPayload struct {
	CompanyID     string  `json:"company_id" validate:"required"`
	ProductID     string  `json:"product_id" validate:"required"`
	Stage         string  `json:"stage" validate:"required"`
	StageSLAHours float64 `json:"stage_sla_hours" validate:"gte=0"`
}

func (LifecycleStartedPayload) EventType() string { return LifecycleStarted }

// StageAdvancedPayload moves a lifecycle to another stage
type StageAdvancedPayload struct {
	FromStage     string  `json:"from_stage" validate:"required"`
	ToStage       string  `json:"to_stage" validate:"required"`
	Reason        string  `json:"reason"`
	StageSLAHours float64 `json:"stage_sla_hours" validate:"gte=0"`
}

func (StageAdvancedPayload) EventType() string { return StageAdvanced }

// OwnerSetPayload assigns the lifecycle owner
type OwnerSetPayload struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	OwnerName string `json:"owner_name"`
}

func (OwnerSetPayload) EventType() string { return OwnerSet }

// TierSetPayload sets the customer's value tier
type TierSetPayload struct {
	Tier int `json:"tier" validate:"required"`
}

func (TierSetPayload) EventType() string { return TierSet }

// SuggestionCreatedPayload records a follow-up suggestion
type SuggestionCreatedPayload struct {
	SuggestionID  string    `json:"suggestion_id" validate:"required"`
	Kind          string    `json:"kind" validate:"required"`
	Summary       string    `json:"summary"`
	CreatedByType ActorType `json:"created_by_type" validate:"required,oneof=user ai system"`
}

func (SuggestionCreatedPayload) EventType() string { return SuggestionCreated }

// SuggestionAcceptedPayload accepts a pending suggestion
type SuggestionAcceptedPayload struct {
	SuggestionID string `json:"suggestion_id" validate:"required"`
}

func (SuggestionAcceptedPayload) EventType() string { return SuggestionAccepted }

// SuggestionDismissedPayload dismisses a pending suggestion
type SuggestionDismissedPayload struct {
	SuggestionID string `json:"suggestion_id" validate:"required"`
	Reason       string `json:"reason"`
}

func (SuggestionDismissedPayload) EventType() string { return SuggestionDismissed }

// LifecycleSLABreachedPayload is emitted by the breach scanner when a
// lifecycle stage overstays its due-by timestamp
type LifecycleSLABreachedPayload struct {
	Stage     string    `json:"stage" validate:"required"`
	DueAt     time.Time `json:"due_at" validate:"required"`
	HoursOver float64   `json:"hours_over" validate:"gte=0"`
}

func (LifecycleSLABreachedPayload) EventType() string { return LifecycleSLABreached }

// UnknownPayload carries the raw body of an event type this version does
// not recognize. Replay applies bookkeeping only.
type UnknownPayload struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"raw"`
}

func (p UnknownPayload) EventType() string { return p.Type }

// DecodePayload decodes raw event data into the typed payload for the
// given event type. Unrecognized types are not an error; they decode to
// UnknownPayload for forward compatibility.
func DecodePayload(eventType string, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)

	switch eventType {
	case CaseCreated:
		p, err = decodeAs[CaseCreatedPayload](data)
	case CaseAssigned:
		p, err = decodeAs[CaseAssignedPayload](data)
	case CaseStatusChanged:
		p, err = decodeAs[CaseStatusChangedPayload](data)
	case CaseSeverityChanged:
		p, err = decodeAs[CaseSeverityChangedPayload](data)
	case CaseImpactAssessed:
		p, err = decodeAs[CaseImpactAssessedPayload](data)
	case CaseResolved:
		p, err = decodeAs[CaseResolvedPayload](data)
	case CaseClosed:
		p, err = decodeAs[CaseClosedPayload](data)
	case CaseReopened:
		p, err = decodeAs[CaseReopenedPayload](data)
	case CustomerMessageLogged:
		p, err = decodeAs[CustomerMessageLoggedPayload](data)
	case AgentResponseSent:
		p, err = decodeAs[AgentResponseSentPayload](data)
	case CaseTagAdded:
		p, err = decodeAs[CaseTagAddedPayload](data)
	case CaseTagRemoved:
		p, err = decodeAs[CaseTagRemovedPayload](data)
	case CaseSLABreached:
		p, err = decodeAs[CaseSLABreachedPayload](data)
	case LifecycleStarted:
		p, err = decodeAs[LifecycleStartedPayload](data)
	case StageAdvanced:
		p, err = decodeAs[StageAdvancedPayload](data)
	case OwnerSet:
		p, err = decodeAs[OwnerSetPayload](data)
	case TierSet:
		p, err = decodeAs[TierSetPayload](data)
	case SuggestionCreated:
		p, err = decodeAs[SuggestionCreatedPayload](data)
	case SuggestionAccepted:
		p, err = decodeAs[SuggestionAcceptedPayload](data)
	case SuggestionDismissed:
		p, err = decodeAs[SuggestionDismissedPayload](data)
	case LifecycleSLABreached:
		p, err = decodeAs[LifecycleSLABreachedPayload](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownPayload{Type: eventType, Raw: raw}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}
	return p, nil
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
