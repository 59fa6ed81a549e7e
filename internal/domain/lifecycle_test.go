package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lifecycleEvent(seq int64, at time.Time, payload Payload) Event {
	return Event{
		ID:            "evt-lc",
		AggregateType: AggregateCompanyProduct,
		AggregateID:   "lc-1",
		Sequence:      seq,
		Type:          payload.EventType(),
		Payload:       payload,
		Actor:         testActor,
		OccurredAt:    at,
	}
}

func startedPayload() LifecycleStartedPayload {
	return LifecycleStartedPayload{
		CompanyID:     "company-1",
		ProductID:     "product-1",
		Stage:         StageProspect,
		StageSLAHours: 336,
	}
}

func TestReplayLifecycleBasicHistory(t *testing.T) {
	startedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	advancedAt := startedAt.Add(48 * time.Hour)

	state, err := ReplayLifecycle("lc-1", []Event{
		lifecycleEvent(1, startedAt, startedPayload()),
		lifecycleEvent(2, startedAt, OwnerSetPayload{OwnerID: "csm-1", OwnerName: "CSM One"}),
		lifecycleEvent(3, startedAt, TierSetPayload{Tier: 2}),
		lifecycleEvent(4, advancedAt, StageAdvancedPayload{FromStage: StageProspect, ToStage: StageQualified, StageSLAHours: 168}),
	})
	require.NoError(t, err)

	require.True(t, state.Started)
	require.Equal(t, "company-1", state.CompanyID)
	require.Equal(t, StageQualified, state.Stage)
	require.Equal(t, "csm-1", state.OwnerID)
	require.Equal(t, 2, state.Tier)
	require.Equal(t, advancedAt, state.StageEnteredAt)
	require.NotNil(t, state.StageDueAt)
	require.Equal(t, advancedAt.Add(168*time.Hour), *state.StageDueAt)
	require.Equal(t, 4, state.Version)
	require.Equal(t, int64(4), state.LastEventSequence)
}

func TestCanAdvance(t *testing.T) {
	require.NoError(t, CanAdvance(StageProspect, StageLive))
	require.NoError(t, CanAdvance(StageLive, StageChurned))
	require.NoError(t, CanAdvance(StageChurned, StageProspect))

	require.Error(t, CanAdvance(StageLive, StageLive))
	require.Error(t, CanAdvance(StageChurned, StageLive))
	require.Error(t, CanAdvance(StageProspect, "dormant"))
}

func TestValidateTier(t *testing.T) {
	require.NoError(t, ValidateTier(TierMin))
	require.NoError(t, ValidateTier(TierMax))
	require.Error(t, ValidateTier(0))
	require.Error(t, ValidateTier(5))
}

func TestStageAdvanceClearsBreachFlag(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayLifecycle("lc-1", []Event{
		lifecycleEvent(1, at, startedPayload()),
		lifecycleEvent(2, at, LifecycleSLABreachedPayload{Stage: StageProspect, DueAt: at, HoursOver: 12}),
	})
	require.NoError(t, err)
	require.True(t, state.StageSLABreached)

	err = state.Apply(lifecycleEvent(3, at, StageAdvancedPayload{FromStage: StageProspect, ToStage: StageQualified}))
	require.NoError(t, err)
	require.False(t, state.StageSLABreached)
	require.Nil(t, state.StageDueAt)
}

func TestSuggestionLifecycle(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayLifecycle("lc-1", []Event{
		lifecycleEvent(1, at, startedPayload()),
		lifecycleEvent(2, at, SuggestionCreatedPayload{SuggestionID: "sug-1", Kind: "upsell", CreatedByType: ActorAI}),
	})
	require.NoError(t, err)

	sug, err := state.PendingSuggestion("sug-1")
	require.NoError(t, err)
	require.Equal(t, SuggestionStatusPending, sug.Status)
	require.Equal(t, ActorAI, sug.CreatedByType)

	err = state.Apply(lifecycleEvent(3, at, SuggestionAcceptedPayload{SuggestionID: "sug-1"}))
	require.NoError(t, err)
	require.Equal(t, SuggestionStatusAccepted, state.Suggestions["sug-1"].Status)

	// Not pending any more
	_, err = state.PendingSuggestion("sug-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeSuggestionState, ve.Code)

	// Unknown suggestion
	_, err = state.PendingSuggestion("sug-404")
	require.ErrorAs(t, err, &ve)
}

func TestSuggestionDecisionOnMissingSuggestionFails(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayLifecycle("lc-1", []Event{lifecycleEvent(1, at, startedPayload())})
	require.NoError(t, err)

	err = state.Apply(lifecycleEvent(2, at, SuggestionDismissedPayload{SuggestionID: "missing"}))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeSuggestionState, ve.Code)
}
