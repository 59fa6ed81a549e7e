package domain

import (
	"time"
)

// Company-product lifecycle stages
const (
	StageProspect   = "prospect"
	StageQualified  = "qualified"
	StageOnboarding = "onboarding"
	StageLive       = "live"
	StageRenewal    = "renewal"
	StageChurned    = "churned"
)

// LifecycleStages lists every valid lifecycle stage
var LifecycleStages = []string{
	StageProspect,
	StageQualified,
	StageOnboarding,
	StageLive,
	StageRenewal,
	StageChurned,
}

// Customer value tier bounds
const (
	TierMin = 1
	TierMax = 4
)

// Suggestion statuses
const (
	SuggestionStatusPending   = "pending"
	SuggestionStatusAccepted  = "accepted"
	SuggestionStatusDismissed = "dismissed"
)

// IsLifecycleStage reports whether s is a known stage
func IsLifecycleStage(s string) bool {
	for _, st := range LifecycleStages {
		if st == s {
			return true
		}
	}
	return false
}

// CanAdvance validates a stage move. Any stage may move to any other
// distinct stage, except that churned may only move back to prospect
// (re-engagement). A stage never advances to itself.
func CanAdvance(from, to string) error {
	if !IsLifecycleStage(to) {
		return NewValidationError(CodeUnknownStage, "unknown stage %q", to)
	}
	if from == to {
		return NewValidationError(CodeInvalidTransition, "lifecycle is already in stage %s", to)
	}
	if from == StageChurned && to != StageProspect {
		return NewValidationError(CodeInvalidTransition, "churned lifecycle may only re-engage as prospect, not %s", to)
	}
	return nil
}

// ValidateTier checks the fixed numeric tier range
func ValidateTier(tier int) error {
	if tier < TierMin || tier > TierMax {
		return NewValidationError(CodeTierOutOfRange, "tier %d outside range %d-%d", tier, TierMin, TierMax)
	}
	return nil
}

// Suggestion is a follow-up proposal attached to a lifecycle, typically
// AI-generated and awaiting human review.
type Suggestion struct {
	ID            string
	Kind          string
	Summary       string
	Status        string
	CreatedByType ActorType
}

// LifecycleState is the replayed state of one company-product lifecycle
// aggregate.
type LifecycleState struct {
	// Identity, set once by the started event
	AggregateID string
	CompanyID   string
	ProductID   string

	// Business fields
	Started          bool
	Stage            string
	OwnerID          string
	OwnerName        string
	Tier             int
	Suggestions      map[string]Suggestion
	StageEnteredAt   time.Time
	StageDueAt       *time.Time
	StageSLABreached bool

	// Bookkeeping
	Version           int
	LastEventSequence int64
}

// NewLifecycleState returns the initial state for an aggregate identity.
func NewLifecycleState(aggregateID string) LifecycleState {
	return LifecycleState{
		AggregateID: aggregateID,
		Suggestions: map[string]Suggestion{},
	}
}

// ReplayLifecycle folds an ordered event history into lifecycle state.
// Disorder in the supplied sequence numbers aborts with
// ErrSequenceDisorder.
func ReplayLifecycle(aggregateID string, events []Event) (LifecycleState, error) {
	state := NewLifecycleState(aggregateID)
	if err := validateOrder(events); err != nil {
		return state, err
	}
	for _, ev := range events {
		if err := state.Apply(ev); err != nil {
			return state, err
		}
	}
	return state, nil
}

// Apply folds a single event into the state. Every event, including ones
// with unrecognized payloads, increments Version by exactly 1 and records
// the event's sequence number.
func (s *LifecycleState) Apply(ev Event) error {
	switch p := ev.Payload.(type) {
	case LifecycleStartedPayload:
		s.CompanyID = p.CompanyID
		s.ProductID = p.ProductID
		s.Started = true
		s.enterStage(p.Stage, ev.OccurredAt, p.StageSLAHours)

	case StageAdvancedPayload:
		if err := CanAdvance(s.Stage, p.ToStage); err != nil {
			return err
		}
		s.enterStage(p.ToStage, ev.OccurredAt, p.StageSLAHours)

	case OwnerSetPayload:
		s.OwnerID = p.OwnerID
		s.OwnerName = p.OwnerName

	case TierSetPayload:
		if err := ValidateTier(p.Tier); err != nil {
			return err
		}
		s.Tier = p.Tier

	case SuggestionCreatedPayload:
		s.Suggestions[p.SuggestionID] = Suggestion{
			ID:            p.SuggestionID,
			Kind:          p.Kind,
			Summary:       p.Summary,
			Status:        SuggestionStatusPending,
			CreatedByType: p.CreatedByType,
		}

	case SuggestionAcceptedPayload:
		sug, ok := s.Suggestions[p.SuggestionID]
		if !ok {
			return NewValidationError(CodeSuggestionState, "suggestion %s not found", p.SuggestionID)
		}
		sug.Status = SuggestionStatusAccepted
		s.Suggestions[p.SuggestionID] = sug

	case SuggestionDismissedPayload:
		sug, ok := s.Suggestions[p.SuggestionID]
		if !ok {
			return NewValidationError(CodeSuggestionState, "suggestion %s not found", p.SuggestionID)
		}
		sug.Status = SuggestionStatusDismissed
		s.Suggestions[p.SuggestionID] = sug

	case LifecycleSLABreachedPayload:
		s.StageSLABreached = true

	case UnknownPayload:
		// Forward compatibility: bookkeeping only
	}

	s.Version++
	s.LastEventSequence = ev.Sequence
	return nil
}

// PendingSuggestion returns a suggestion if it exists and is still pending.
func (s *LifecycleState) PendingSuggestion(id string) (Suggestion, error) {
	sug, ok := s.Suggestions[id]
	if !ok {
		return Suggestion{}, NewValidationError(CodeSuggestionState, "suggestion %s not found", id)
	}
	if sug.Status != SuggestionStatusPending {
		return Suggestion{}, NewValidationError(CodeSuggestionState, "suggestion %s is already %s", id, sug.Status)
	}
	return sug, nil
}

// enterStage records a stage entry and computes the stage SLA due time.
// Entering a new stage clears any previous breach flag.
func (s *LifecycleState) enterStage(stage string, at time.Time, slaHours float64) {
	s.Stage = stage
	s.StageEnteredAt = at
	s.StageSLABreached = false
	if slaHours > 0 {
		due := at.Add(hoursToDuration(slaHours))
		s.StageDueAt = &due
	} else {
		s.StageDueAt = nil
	}
}
