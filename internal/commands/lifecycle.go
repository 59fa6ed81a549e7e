package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
)

// LifecycleCommands handles all company-product lifecycle commands,
// with the same replay-decide-append loop as the case handlers.
type LifecycleCommands struct {
	store eventstore.EventStore
	sla   SLAPolicy
	now   func() time.Time
}

// NewLifecycleCommands creates a new lifecycle command handler
func NewLifecycleCommands(store eventstore.EventStore, sla SLAPolicy) *LifecycleCommands {
	return &LifecycleCommands{
		store: store,
		sla:   sla,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// StartLifecycleInput begins tracking a company-product pair
type StartLifecycleInput struct {
	LifecycleID string `json:"lifecycle_id" validate:"required"`
	CompanyID   string `json:"company_id" validate:"required"`
	ProductID   string `json:"product_id" validate:"required"`
	Stage       string `json:"stage"`
}

// AdvanceStageInput moves a lifecycle to another stage
type AdvanceStageInput struct {
	LifecycleID string `json:"lifecycle_id" validate:"required"`
	ToStage     string `json:"to_stage" validate:"required"`
	Reason      string `json:"reason"`
}

// SetOwnerInput assigns the lifecycle owner
type SetOwnerInput struct {
	LifecycleID string `json:"lifecycle_id" validate:"required"`
	OwnerID     string `json:"owner_id" validate:"required"`
	OwnerName   string `json:"owner_name"`
}

// SetTierInput sets the customer's value tier
type SetTierInput struct {
	LifecycleID string `json:"lifecycle_id" validate:"required"`
	Tier        int    `json:"tier" validate:"required"`
}

// CreateSuggestionInput records a follow-up suggestion
type CreateSuggestionInput struct {
	LifecycleID  string `json:"lifecycle_id" validate:"required"`
	SuggestionID string `json:"suggestion_id"`
	Kind         string `json:"kind" validate:"required"`
	Summary      string `json:"summary"`
}

// SuggestionDecisionInput accepts or dismisses a pending suggestion
type SuggestionDecisionInput struct {
	LifecycleID  string `json:"lifecycle_id" validate:"required"`
	SuggestionID string `json:"suggestion_id" validate:"required"`
	Reason       string `json:"reason"`
}

// RecordStageBreachInput flags an overstayed lifecycle stage. Only the
// system actor (the breach scanner) may issue it.
type RecordStageBreachInput struct {
	LifecycleID string    `json:"lifecycle_id" validate:"required"`
	DueAt       time.Time `json:"due_at" validate:"required"`
}

// StartLifecycle begins tracking a company-product pair. The initial
// stage defaults to prospect.
func (c *LifecycleCommands) StartLifecycle(ctx context.Context, actor domain.Actor, input StartLifecycleInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	stage := input.Stage
	if stage == "" {
		stage = domain.StageProspect
	}
	if !domain.IsLifecycleStage(stage) {
		return Result{}, domain.NewValidationError(domain.CodeUnknownStage, "unknown stage %q", stage)
	}

	history, err := c.store.ReadByAggregate(ctx, domain.AggregateCompanyProduct, input.LifecycleID)
	if err != nil {
		return Result{}, err
	}
	if len(history) > 0 {
		return Result{}, domain.NewValidationError(domain.CodeAlreadyExists, "lifecycle %s already exists", input.LifecycleID)
	}

	ev := newEvent(domain.AggregateCompanyProduct, input.LifecycleID, 1, actor, c.now(), domain.LifecycleStartedPayload{
		CompanyID:     input.CompanyID,
		ProductID:     input.ProductID,
		Stage:         stage,
		StageSLAHours: c.sla.StageHours,
	})

	events := []domain.Event{ev}
	if err := c.store.Append(ctx, events); err != nil {
		if errors.Is(err, eventstore.ErrSequenceConflict) {
			return Result{}, domain.NewValidationError(domain.CodeAlreadyExists, "lifecycle %s already exists", input.LifecycleID)
		}
		return Result{}, err
	}

	return Result{AggregateID: input.LifecycleID, EventIDs: eventIDs(events)}, nil
}

// AdvanceStage moves a lifecycle to another stage
func (c *LifecycleCommands) AdvanceStage(ctx context.Context, actor domain.Actor, input AdvanceStageInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if err := domain.CanAdvance(state.Stage, input.ToStage); err != nil {
			return nil, err
		}
		return domain.StageAdvancedPayload{
			FromStage:     state.Stage,
			ToStage:       input.ToStage,
			Reason:        input.Reason,
			StageSLAHours: c.sla.StageHours,
		}, nil
	})
}

// SetOwner assigns the lifecycle owner
func (c *LifecycleCommands) SetOwner(ctx context.Context, actor domain.Actor, input SetOwnerInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if state.OwnerID == input.OwnerID {
			return nil, nil
		}
		return domain.OwnerSetPayload{
			OwnerID:   input.OwnerID,
			OwnerName: input.OwnerName,
		}, nil
	})
}

// SetTier sets the customer's value tier
func (c *LifecycleCommands) SetTier(ctx context.Context, actor domain.Actor, input SetTierInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if err := domain.ValidateTier(input.Tier); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if state.Tier == input.Tier {
			return nil, nil
		}
		return domain.TierSetPayload{Tier: input.Tier}, nil
	})
}

// CreateSuggestion records a follow-up suggestion, generating an ID when
// the caller did not supply one
func (c *LifecycleCommands) CreateSuggestion(ctx context.Context, actor domain.Actor, input CreateSuggestionInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	suggestionID := input.SuggestionID
	if suggestionID == "" {
		suggestionID = uuid.New().String()
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if _, exists := state.Suggestions[suggestionID]; exists {
			return nil, domain.NewValidationError(domain.CodeAlreadyExists, "suggestion %s already exists", suggestionID)
		}
		return domain.SuggestionCreatedPayload{
			SuggestionID:  suggestionID,
			Kind:          input.Kind,
			Summary:       input.Summary,
			CreatedByType: actor.Type,
		}, nil
	})
}

// AcceptSuggestion accepts a pending suggestion. An AI actor may propose
// but never accept; acceptance is a human (or system) decision.
func (c *LifecycleCommands) AcceptSuggestion(ctx context.Context, actor domain.Actor, input SuggestionDecisionInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if actor.Type == domain.ActorAI {
		return Result{}, domain.NewGuardrailError(domain.CodeActorForbidden, "an AI actor may not accept suggestions")
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if _, err := state.PendingSuggestion(input.SuggestionID); err != nil {
			return nil, err
		}
		return domain.SuggestionAcceptedPayload{SuggestionID: input.SuggestionID}, nil
	})
}

// DismissSuggestion dismisses a pending suggestion
func (c *LifecycleCommands) DismissSuggestion(ctx context.Context, actor domain.Actor, input SuggestionDecisionInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if _, err := state.PendingSuggestion(input.SuggestionID); err != nil {
			return nil, err
		}
		return domain.SuggestionDismissedPayload{
			SuggestionID: input.SuggestionID,
			Reason:       input.Reason,
		}, nil
	})
}

// RecordStageBreach flags an overstayed lifecycle stage. Only the system
// actor may record breaches, and a stage already flagged is not recorded
// twice.
func (c *LifecycleCommands) RecordStageBreach(ctx context.Context, actor domain.Actor, input RecordStageBreachInput) (Result, error) {
	if err := validateInput(input); err != nil {
		return Result{}, err
	}
	if actor.Type != domain.ActorSystem {
		return Result{}, domain.NewGuardrailError(domain.CodeActorForbidden, "only the system actor may record SLA breaches")
	}

	return c.run(ctx, actor, input.LifecycleID, func(state domain.LifecycleState) (domain.Payload, error) {
		if state.StageSLABreached {
			return nil, nil
		}
		return domain.LifecycleSLABreachedPayload{
			Stage:     state.Stage,
			DueAt:     input.DueAt,
			HoursOver: c.now().Sub(input.DueAt).Hours(),
		}, nil
	})
}

// run replays the lifecycle, builds the next event against current
// state, and appends it. A nil payload from build means the command is a
// no-op against current state. Sequence conflicts retry with fresh state.
func (c *LifecycleCommands) run(ctx context.Context, actor domain.Actor, lifecycleID string, build func(state domain.LifecycleState) (domain.Payload, error)) (Result, error) {
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		history, err := c.store.ReadByAggregate(ctx, domain.AggregateCompanyProduct, lifecycleID)
		if err != nil {
			return Result{}, err
		}
		if len(history) == 0 {
			return Result{}, errors.Wrapf(domain.ErrNotFound, "lifecycle %s", lifecycleID)
		}

		state, err := domain.ReplayLifecycle(lifecycleID, history)
		if err != nil {
			return Result{}, err
		}

		payload, err := build(state)
		if err != nil {
			return Result{}, err
		}
		if payload == nil {
			return Result{AggregateID: lifecycleID, EventIDs: []string{}}, nil
		}

		events := []domain.Event{
			newEvent(domain.AggregateCompanyProduct, lifecycleID, state.LastEventSequence+1, actor, c.now(), payload),
		}
		err = c.store.Append(ctx, events)
		if err == nil {
			return Result{AggregateID: lifecycleID, EventIDs: eventIDs(events)}, nil
		}
		if !errors.Is(err, eventstore.ErrSequenceConflict) {
			return Result{}, err
		}

		log.Warn().
			Str("lifecycleID", lifecycleID).
			Str("eventType", payload.EventType()).
			Int("attempt", attempt).
			Msg("Sequence conflict, retrying with fresh state")
	}

	return Result{}, errors.Wrapf(eventstore.ErrSequenceConflict, "lifecycle %s: gave up after %d attempts", lifecycleID, maxAppendAttempts)
}
