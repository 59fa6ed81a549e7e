package domain

import (
	"time"
)

// Support case workflow statuses
const (
	StatusOpen              = "open"
	StatusInProgress        = "in_progress"
	StatusWaitingOnCustomer = "waiting_on_customer"
	StatusWaitingOnInternal = "waiting_on_internal"
	StatusEscalated         = "escalated"
	StatusResolved          = "resolved"
	StatusClosed            = "closed"
)

// CaseStatuses lists every valid support case status
var CaseStatuses = []string{
	StatusOpen,
	StatusInProgress,
	StatusWaitingOnCustomer,
	StatusWaitingOnInternal,
	StatusEscalated,
	StatusResolved,
	StatusClosed,
}

// Case severities
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityUrgent   = "urgent"
	SeverityCritical = "critical"
)

// Case business impact classifications
const (
	ImpactNeutral  = "neutral"
	ImpactNegative = "negative"
	ImpactCritical = "critical"
)

// IsCaseStatus reports whether s is a known case status
func IsCaseStatus(s string) bool {
	for _, st := range CaseStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsSeverity reports whether s is a known severity
func IsSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityUrgent, SeverityCritical:
		return true
	}
	return false
}

// CanTransition validates a status move. Any status may move to any other
// distinct status, except that closed may only move back to open (reopen).
// A status never transitions to itself.
func CanTransition(from, to string) error {
	if !IsCaseStatus(to) {
		return NewValidationError(CodeInvalidTransition, "unknown status %q", to)
	}
	if from == to {
		return NewValidationError(CodeInvalidTransition, "case is already %s", to)
	}
	if from == StatusClosed && to != StatusOpen {
		return NewValidationError(CodeInvalidTransition, "closed case may only be reopened, not moved to %s", to)
	}
	return nil
}

// SupportCaseState is the replayed state of one support case aggregate.
// It is never persisted directly; the canonical representation is the
// fold of the case's event history.
type SupportCaseState struct {
	// Identity, set once by the created event
	AggregateID  string
	CompanyID    string
	ProductID    string
	Title        string
	Description  string
	Category     string
	Source       string
	ContactEmail string

	// Business fields
	Status        string
	Severity      string
	Impact        string
	OwnerID       string
	OwnerName     string
	Tags          []string
	MessageCount  int
	ResponseCount int
	ReopenCount   int

	OpenedAt              time.Time
	LastCustomerMessageAt *time.Time
	FirstResponseAt       *time.Time
	FirstResponseDueAt    *time.Time
	ResolutionDueAt       *time.Time
	ResolvedAt            *time.Time
	ClosedAt              *time.Time
	CloseReason           string

	IsResolved            bool
	IsClosed              bool
	FirstResponseBreached bool
	ResolutionBreached    bool

	// Bookkeeping
	Version           int
	LastEventSequence int64
}

// NewSupportCaseState returns the initial state for an aggregate identity.
// Pure: the same identity always yields the same initial state.
func NewSupportCaseState(aggregateID string) SupportCaseState {
	return SupportCaseState{AggregateID: aggregateID}
}

// ReplayCase folds an ordered event history into case state. The supplied
// events must carry strictly increasing sequence numbers; disorder aborts
// with ErrSequenceDisorder.
func ReplayCase(aggregateID string, events []Event) (SupportCaseState, error) {
	state := NewSupportCaseState(aggregateID)
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
func (s *SupportCaseState) Apply(ev Event) error {
	switch p := ev.Payload.(type) {
	case CaseCreatedPayload:
		s.CompanyID = p.CompanyID
		s.ProductID = p.ProductID
		s.Title = p.Title
		s.Description = p.Description
		s.Category = p.Category
		s.Source = p.Source
		s.ContactEmail = p.ContactEmail
		s.Severity = p.Severity
		s.Impact = ImpactNeutral
		s.Status = StatusOpen
		s.OpenedAt = ev.OccurredAt
		if p.FirstResponseSLAHours > 0 {
			due := ev.OccurredAt.Add(hoursToDuration(p.FirstResponseSLAHours))
			s.FirstResponseDueAt = &due
		}
		if p.ResolutionSLAHours > 0 {
			due := ev.OccurredAt.Add(hoursToDuration(p.ResolutionSLAHours))
			s.ResolutionDueAt = &due
		}

	case CaseAssignedPayload:
		s.OwnerID = p.OwnerID
		s.OwnerName = p.OwnerName

	case CaseStatusChangedPayload:
		if err := CanTransition(s.Status, p.ToStatus); err != nil {
			return err
		}
		s.Status = p.ToStatus

	case CaseSeverityChangedPayload:
		s.Severity = p.ToSeverity

	case CaseImpactAssessedPayload:
		s.Impact = p.Impact

	case CaseResolvedPayload:
		if err := CanTransition(s.Status, StatusResolved); err != nil {
			return err
		}
		s.Status = StatusResolved
		s.IsResolved = true
		resolvedAt := ev.OccurredAt
		s.ResolvedAt = &resolvedAt

	case CaseClosedPayload:
		if err := s.CanClose(p.ForcedClose); err != nil {
			return err
		}
		s.Status = StatusClosed
		s.IsClosed = true
		closedAt := ev.OccurredAt
		s.ClosedAt = &closedAt
		s.CloseReason = p.CloseReason

	case CaseReopenedPayload:
		if err := s.CanReopen(); err != nil {
			return err
		}
		s.Status = StatusOpen
		s.IsResolved = false
		s.IsClosed = false
		s.ResolvedAt = nil
		s.ClosedAt = nil
		s.CloseReason = ""
		s.ReopenCount++

	case CustomerMessageLoggedPayload:
		s.MessageCount++
		receivedAt := p.ReceivedAt
		s.LastCustomerMessageAt = &receivedAt

	case AgentResponseSentPayload:
		s.ResponseCount++
		if p.IsFirstResponse && s.FirstResponseAt == nil {
			respondedAt := ev.OccurredAt
			s.FirstResponseAt = &respondedAt
		}

	case CaseTagAddedPayload:
		// Set semantics with insertion order preserved for display
		if !s.HasTag(p.Tag) {
			s.Tags = append(s.Tags, p.Tag)
		}

	case CaseTagRemovedPayload:
		for i, tag := range s.Tags {
			if tag == p.Tag {
				s.Tags = append(s.Tags[:i], s.Tags[i+1:]...)
				break
			}
		}

	case CaseSLABreachedPayload:
		switch p.SLAType {
		case SLAFirstResponse:
			s.FirstResponseBreached = true
		case SLAResolution:
			s.ResolutionBreached = true
		}

	case UnknownPayload:
		// Forward compatibility: bookkeeping only
	}

	s.Version++
	s.LastEventSequence = ev.Sequence
	return nil
}

// CanClose validates the closing rules: the case must already be resolved
// unless forced, and an already-closed case cannot be closed again.
func (s *SupportCaseState) CanClose(forced bool) error {
	if s.IsClosed {
		return NewValidationError(CodeAlreadyClosed, "case is already closed")
	}
	if !s.IsResolved && !forced {
		return NewValidationError(CodeNotResolved, "case must be resolved before closing (or use the force flag)")
	}
	return nil
}

// CanReopen validates reopening: only a resolved or closed case may be
// reopened.
func (s *SupportCaseState) CanReopen() error {
	if !s.IsResolved && !s.IsClosed {
		return NewValidationError(CodeNotReopenable, "case is neither resolved nor closed")
	}
	return nil
}

// HasTag reports whether the tag is present
func (s *SupportCaseState) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
