package commands

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
)

// CaseCommands handles all support case commands. Every handler replays
// the case's history, decides against current state, and appends at the
// next sequence; a sequence conflict with a concurrent writer triggers a
// bounded re-replay and retry.
type CaseCommands struct {
	store eventstore.EventStore
	sla   SLAPolicy
	now   func() time.Time
}

// NewCaseCommands creates a new case command handler
func NewCaseCommands(store eventstore.EventStore, sla SLAPolicy) *CaseCommands {
	return &CaseCommands{
		store: store,
		sla:   sla,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateCaseInput opens a new support case
type CreateCaseInput struct {
	CaseID       string `json:"case_id" validate:"required"`
	CompanyID    string `json:"company_id" validate:"required"`
	ProductID    string `json:"product_id"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	Severity     string `json:"severity" validate:"required"`
	Category     string `json:"category"`
	Source       string `json:"source"`
	ContactEmail string `json:"contact_email"`
}

// AssignCaseInput sets the case owner
type AssignCaseInput struct {
	CaseID    string `json:"case_id" validate:"required"`
	OwnerID   string `json:"owner_id" validate:"required"`
	OwnerName string `json:"owner_name"`
}

// ChangeStatusInput moves a case between workflow statuses
type ChangeStatusInput struct {
	CaseID   string `json:"case_id" validate:"required"`
	ToStatus string `json:"to_status" validate:"required"`
}

// ChangeSeverityInput reclassifies a case's severity
type ChangeSeverityInput struct {
	CaseID     string `json:"case_id" validate:"required"`
	ToSeverity string `json:"to_severity" validate:"required"`
}

// AssessImpactInput records the assessed business impact
type AssessImpactInput struct {
	CaseID string `json:"case_id" validate:"required"`
	Impact string `json:"impact" validate:"required"`
	Notes  string `json:"notes"`
}

// ResolveCaseInput marks a case resolved
type ResolveCaseInput struct {
	CaseID            string `json:"case_id" validate:"required"`
	ResolutionSummary string `json:"resolution_summary" validate:"required"`
	RootCause         string `json:"root_cause"`
}

// CloseCaseInput closes a case
type CloseCaseInput struct {
	CaseID      string `json:"case_id" validate:"required"`
	CloseReason string `json:"close_reason" validate:"required"`
	Force       bool   `json:"force"`
}

// ReopenCaseInput reopens a resolved or closed case
type ReopenCaseInput struct {
	CaseID string `json:"case_id" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// LogCustomerMessageInput records an inbound customer message
type LogCustomerMessageInput struct {
	CaseID     string    `json:"case_id" validate:"required"`
	Channel    string    `json:"channel" validate:"required"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecordAgentResponseInput records an outbound agent response
type RecordAgentResponseInput struct {
	CaseID  string `json:"case_id" validate:"required"`
	Channel string `json:"channel" validate:"required"`
}

// TagInput adds or removes a display tag
type TagInput struct {
	CaseID string `json:"case_id" validate:"required"`
	Tag    string `json:"tag" validate:"required"`
}

// RecordCaseBreachInput flags a missed SLA on a case. Only the system
// actor (the breach scanner) may issue it.
type RecordCaseBreachInput struct {
	CaseID  string    `json:"case_id" validate:"required"`
	SLAType string    `json:"sla_type" validate:"required"`
	DueAt   time.Time `json:"due_at" validate:"required"`
}

// CreateCase opens a new case. The SLA targets in force at creation time
// are stamped into the event so the case keeps the deadlines it was
// opened under.
func (c *CaseCommands) CreateCase(ctx context.Context, actor domain.Actor, input CreateCaseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if !domain.IsSeverity(input.Severity) {
		return Result{}, domain.NewValidationError(domain.CodeUnknownSeverity, "unknown severity %q", input.Severity)
	}

	history, err := c.store.ReadByAggregate(ctx, domain.AggregateSupportCase, input.CaseID)
	if err != nil {
		return Result{}, err
	}
	if len(history) > 0 {
		return Result{}, domain.NewValidationError(domain.CodeAlreadyExists, "case %s already exists", input.CaseID)
	}

	ev := newEvent(domain.AggregateSupportCase, input.CaseID, 1, actor, c.now(), domain.CaseCreatedPayload{
		CompanyID:             input.CompanyID,
		ProductID:             input.ProductID,
		Title:                 input.Title,
		Description:           input.Description,
		Severity:              input.Severity,
		Category:              input.Category,
		Source:                input.Source,
		ContactEmail:          input.ContactEmail,
		FirstResponseSLAHours: c.sla.FirstResponseHours,
		ResolutionSLAHours:    c.sla.ResolutionHours,
	})

	events := []domain.Event{ev}
	if err := c.store.Append(ctx, events); err != nil {
		if errors.Is(err, eventstore.ErrSequenceConflict) {
			return Result{}, domain.NewValidationError(domain.CodeAlreadyExists, "case %s already exists", input.CaseID)
		}
		return Result{}, err
	}

	return Result{AggregateID: input.CaseID, EventIDs: eventIDs(events)}, nil
}

// AssignCase sets the case owner
func (c *CaseCommands) AssignCase(ctx context.Context, actor domain.Actor, input AssignCaseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if state.OwnerID == input.OwnerID {
			return nil, nil
		}
		return domain.CaseAssignedPayload{
			OwnerID:         input.OwnerID,
			OwnerName:       input.OwnerName,
			PreviousOwnerID: state.OwnerID,
		}, nil
	})
}

// ChangeStatus moves a case between workflow statuses. Resolution,
// closing, and reopening have their own commands because they carry
// extra facts; routing them through here would lose those, in either
// direction: a resolved or closed case leaves its terminal state only
// through the reopen command, which clears the resolution facts.
func (c *CaseCommands) ChangeStatus(ctx context.Context, actor domain.Actor, input ChangeStatusInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	switch input.ToStatus {
	case domain.StatusResolved:
		return Result{}, domain.NewValidationError(domain.CodeInvalidTransition, "use the resolve command to resolve a case")
	case domain.StatusClosed:
		return Result{}, domain.NewValidationError(domain.CodeInvalidTransition, "use the close command to close a case")
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if state.IsClosed {
			return nil, domain.NewValidationError(domain.CodeInvalidTransition, "closed case may only be reopened")
		}
		if state.IsResolved {
			return nil, domain.NewValidationError(domain.CodeInvalidTransition, "resolved case may only be closed or reopened")
		}
		if err := domain.CanTransition(state.Status, input.ToStatus); err != nil {
			return nil, err
		}
		return domain.CaseStatusChangedPayload{
			FromStatus: state.Status,
			ToStatus:   input.ToStatus,
		}, nil
	})
}

// ChangeSeverity reclassifies a case's severity
func (c *CaseCommands) ChangeSeverity(ctx context.Context, actor domain.Actor, input ChangeSeverityInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if !domain.IsSeverity(input.ToSeverity) {
		return Result{}, domain.NewValidationError(domain.CodeUnknownSeverity, "unknown severity %q", input.ToSeverity)
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if state.Severity == input.ToSeverity {
			return nil, nil
		}
		return domain.CaseSeverityChangedPayload{
			FromSeverity: state.Severity,
			ToSeverity:   input.ToSeverity,
		}, nil
	})
}

// AssessImpact records the assessed business impact
func (c *CaseCommands) AssessImpact(ctx context.Context, actor domain.Actor, input AssessImpactInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if state.Impact == input.Impact {
			return nil, nil
		}
		return domain.CaseImpactAssessedPayload{
			Impact: input.Impact,
			Notes:  input.Notes,
		}, nil
	})
}

// ResolveCase marks a case resolved, recording the time-to-resolution
// against the resolution SLA the case was opened under.
func (c *CaseCommands) ResolveCase(ctx context.Context, actor domain.Actor, input ResolveCaseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if err := domain.CanTransition(state.Status, domain.StatusResolved); err != nil {
			return nil, err
		}
		now := c.now()
		slaMet := state.ResolutionDueAt == nil || !now.After(*state.ResolutionDueAt)
		return domain.CaseResolvedPayload{
			ResolutionSummary:   input.ResolutionSummary,
			RootCause:           input.RootCause,
			ResolutionTimeHours: now.Sub(state.OpenedAt).Hours(),
			SLAHours:            c.sla.ResolutionHours,
			SLAMet:              slaMet,
		}, nil
	})
}

// CloseCase closes a case. An unresolved case only closes with the force
// flag set.
func (c *CaseCommands) CloseCase(ctx context.Context, actor domain.Actor, input CloseCaseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if err := state.CanClose(input.Force); err != nil {
			return nil, err
		}
		return domain.CaseClosedPayload{
			CloseReason: input.CloseReason,
			ForcedClose: input.Force,
		}, nil
	})
}

// ReopenCase reopens a resolved or closed case
func (c *CaseCommands) ReopenCase(ctx context.Context, actor domain.Actor, input ReopenCaseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if err := state.CanReopen(); err != nil {
			return nil, err
		}
		return domain.CaseReopenedPayload{
			Reason:              input.Reason,
			PreviousCloseReason: state.CloseReason,
			ReopenedFromStatus:  state.Status,
		}, nil
	})
}

// LogCustomerMessage records an inbound customer message
func (c *CaseCommands) LogCustomerMessage(ctx context.Context, actor domain.Actor, input LogCustomerMessageInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = c.now()
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		return domain.CustomerMessageLoggedPayload{
			Channel:    input.Channel,
			ReceivedAt: receivedAt,
		}, nil
	})
}

// RecordAgentResponse records an outbound agent response. The first
// response on a case is marked as such for SLA tracking.
func (c *CaseCommands) RecordAgentResponse(ctx context.Context, actor domain.Actor, input RecordAgentResponseInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		return domain.AgentResponseSentPayload{
			Channel:         input.Channel,
			IsFirstResponse: state.FirstResponseAt == nil,
		}, nil
	})
}

// AddTag adds a display tag. Adding an already-present tag succeeds
// without recording anything.
func (c *CaseCommands) AddTag(ctx context.Context, actor domain.Actor, input TagInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if state.HasTag(input.Tag) {
			return nil, nil
		}
		return domain.CaseTagAddedPayload{Tag: input.Tag}, nil
	})
}

// RemoveTag removes a display tag. Removing an absent tag succeeds
// without recording anything.
func (c *CaseCommands) RemoveTag(ctx context.Context, actor domain.Actor, input TagInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		if !state.HasTag(input.Tag) {
			return nil, nil
		}
		return domain.CaseTagRemovedPayload{Tag: input.Tag}, nil
	})
}

// RecordCaseBreach flags a missed case SLA. Only the system actor may
// record breaches, and a breach already on the case is not recorded
// twice.
func (c *CaseCommands) RecordCaseBreach(ctx context.Context, actor domain.Actor, input RecordCaseBreachInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if actor.Type != domain.ActorSystem {
		return Result{}, domain.NewGuardrailError(domain.CodeActorForbidden, "only the system actor may record SLA breaches")
	}

	return c.run(ctx, actor, input.CaseID, func(state domain.SupportCaseState) (domain.Payload, error) {
		switch input.SLAType {
		case domain.SLAFirstResponse:
			if state.FirstResponseBreached {
				return nil, nil
			}
		case domain.SLAResolution:
			if state.ResolutionBreached {
				return nil, nil
			}
		default:
			return nil, domain.NewValidationError(domain.CodeInvalidInput, "unknown SLA type %q", input.SLAType)
		}

		now := c.now()
		return domain.CaseSLABreachedPayload{
			SLAType:     input.SLAType,
			DueAt:       input.DueAt,
			HoursOver:   now.Sub(input.DueAt).Hours(),
			ActualHours: now.Sub(state.OpenedAt).Hours(),
		}, nil
	})
}

// run replays the case, builds the next event against current state, and
// appends it. A nil payload from build means the command is a no-op
// against current state. Sequence conflicts retry with fresh state.
func (c *CaseCommands) run(ctx context.Context, actor domain.Actor, caseID string, build func(state domain.SupportCaseState) (domain.Payload, error)) (Result, error) {
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		history, err := c.store.ReadByAggregate(ctx, domain.AggregateSupportCase, caseID)
		if err != nil {
			return Result{}, err
		}
		if len(history) == 0 {
			return Result{}, errors.Wrapf(domain.ErrNotFound, "case %s", caseID)
		}

		state, err := domain.ReplayCase(caseID, history)
		if err != nil {
			return Result{}, err
		}

		payload, err := build(state)
		if err != nil {
			return Result{}, err
		}
		if payload == nil {
			return Result{AggregateID: caseID, EventIDs: []string{}}, nil
		}

		events := []domain.Event{
			newEvent(domain.AggregateSupportCase, caseID, state.LastEventSequence+1, actor, c.now(), payload),
		}
		err = c.store.Append(ctx, events)
		if err == nil {
			return Result{AggregateID: caseID, EventIDs: eventIDs(events)}, nil
		}
		if !errors.Is(err, eventstore.ErrSequenceConflict) {
			return Result{}, err
		}

		log.Warn().
			Str("caseID", caseID).
			Str("eventType", payload.EventType()).
			Int("attempt", attempt).
			Msg("Sequence conflict, retrying with fresh state")
	}

	return Result{}, errors.Wrapf(eventstore.ErrSequenceConflict, "case %s: gave up after %d attempts", caseID, maxAppendAttempts)
}
