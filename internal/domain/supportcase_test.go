package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testActor = Actor{Type: ActorUser, ID: "agent-1"}

func caseEvent(seq int64, at time.Time, payload Payload) Event {
	return Event{
		ID:            "evt-" + payload.EventType(),
		AggregateType: AggregateSupportCase,
		AggregateID:   "case-1",
		Sequence:      seq,
		Type:          payload.EventType(),
		Payload:       payload,
		Actor:         testActor,
		OccurredAt:    at,
	}
}

func createdPayload() CaseCreatedPayload {
	return CaseCreatedPayload{
		CompanyID:             "company-1",
		Title:                 "Cannot log in",
		Severity:              SeverityHigh,
		FirstResponseSLAHours: 4,
		ResolutionSLAHours:    48,
	}
}

func TestReplayCaseBasicHistory(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, openedAt, createdPayload()),
		caseEvent(2, openedAt.Add(time.Hour), CaseAssignedPayload{OwnerID: "agent-1", OwnerName: "Agent One"}),
		caseEvent(3, openedAt.Add(2*time.Hour), CaseStatusChangedPayload{FromStatus: StatusOpen, ToStatus: StatusInProgress}),
	})
	require.NoError(t, err)

	require.Equal(t, "company-1", state.CompanyID)
	require.Equal(t, StatusInProgress, state.Status)
	require.Equal(t, SeverityHigh, state.Severity)
	require.Equal(t, ImpactNeutral, state.Impact)
	require.Equal(t, "agent-1", state.OwnerID)
	require.Equal(t, 3, state.Version)
	require.Equal(t, int64(3), state.LastEventSequence)

	require.NotNil(t, state.FirstResponseDueAt)
	require.Equal(t, openedAt.Add(4*time.Hour), *state.FirstResponseDueAt)
	require.NotNil(t, state.ResolutionDueAt)
	require.Equal(t, openedAt.Add(48*time.Hour), *state.ResolutionDueAt)
}

func TestReplayCaseIsDeterministic(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	history := []Event{
		caseEvent(1, openedAt, createdPayload()),
		caseEvent(2, openedAt.Add(time.Hour), CustomerMessageLoggedPayload{Channel: "email", ReceivedAt: openedAt.Add(time.Hour)}),
		caseEvent(3, openedAt.Add(2*time.Hour), AgentResponseSentPayload{Channel: "email", IsFirstResponse: true}),
		caseEvent(4, openedAt.Add(3*time.Hour), CaseTagAddedPayload{Tag: "billing"}),
	}

	first, err := ReplayCase("case-1", history)
	require.NoError(t, err)
	second, err := ReplayCase("case-1", history)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestReplayCaseRejectsSequenceDisorder(t *testing.T) {
	at := time.Now().UTC()

	_, err := ReplayCase("case-1", []Event{
		caseEvent(1, at, createdPayload()),
		caseEvent(3, at, CaseTagAddedPayload{Tag: "billing"}),
		caseEvent(2, at, CaseTagAddedPayload{Tag: "urgent"}),
	})
	require.ErrorIs(t, err, ErrSequenceDisorder)

	_, err = ReplayCase("case-1", []Event{
		caseEvent(1, at, createdPayload()),
		caseEvent(1, at, CaseTagAddedPayload{Tag: "billing"}),
	})
	require.ErrorIs(t, err, ErrSequenceDisorder)
}

func TestCanTransition(t *testing.T) {
	require.NoError(t, CanTransition(StatusOpen, StatusEscalated))
	require.NoError(t, CanTransition(StatusEscalated, StatusWaitingOnCustomer))
	require.NoError(t, CanTransition(StatusClosed, StatusOpen))

	require.Error(t, CanTransition(StatusOpen, StatusOpen))
	require.Error(t, CanTransition(StatusClosed, StatusInProgress))
	require.Error(t, CanTransition(StatusOpen, "archived"))
}

func TestApplyResolveCloseReopen(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	resolvedAt := openedAt.Add(10 * time.Hour)
	closedAt := openedAt.Add(12 * time.Hour)

	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, openedAt, createdPayload()),
		caseEvent(2, resolvedAt, CaseResolvedPayload{ResolutionSummary: "reset password", ResolutionTimeHours: 10, SLAHours: 48, SLAMet: true}),
		caseEvent(3, closedAt, CaseClosedPayload{CloseReason: "confirmed fixed"}),
	})
	require.NoError(t, err)
	require.True(t, state.IsResolved)
	require.True(t, state.IsClosed)
	require.Equal(t, StatusClosed, state.Status)
	require.Equal(t, "confirmed fixed", state.CloseReason)
	require.Equal(t, resolvedAt, *state.ResolvedAt)
	require.Equal(t, closedAt, *state.ClosedAt)

	// Reopening clears every terminal field
	err = state.Apply(caseEvent(4, closedAt.Add(time.Hour), CaseReopenedPayload{
		Reason:              "issue came back",
		PreviousCloseReason: "confirmed fixed",
		ReopenedFromStatus:  StatusClosed,
	}))
	require.NoError(t, err)
	require.Equal(t, StatusOpen, state.Status)
	require.False(t, state.IsResolved)
	require.False(t, state.IsClosed)
	require.Nil(t, state.ResolvedAt)
	require.Nil(t, state.ClosedAt)
	require.Empty(t, state.CloseReason)
	require.Equal(t, 1, state.ReopenCount)
}

func TestApplyCloseRequiresResolutionUnlessForced(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayCase("case-1", []Event{caseEvent(1, at, createdPayload())})
	require.NoError(t, err)

	err = state.Apply(caseEvent(2, at, CaseClosedPayload{CloseReason: "spam"}))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeNotResolved, ve.Code)

	err = state.Apply(caseEvent(2, at, CaseClosedPayload{CloseReason: "spam", ForcedClose: true}))
	require.NoError(t, err)
	require.True(t, state.IsClosed)
	require.False(t, state.IsResolved)
}

func TestApplyReopenRequiresTerminalState(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayCase("case-1", []Event{caseEvent(1, at, createdPayload())})
	require.NoError(t, err)

	err = state.Apply(caseEvent(2, at, CaseReopenedPayload{Reason: "nope", ReopenedFromStatus: StatusOpen}))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, CodeNotReopenable, ve.Code)
}

func TestApplyTagsHaveSetSemantics(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, at, createdPayload()),
		caseEvent(2, at, CaseTagAddedPayload{Tag: "billing"}),
		caseEvent(3, at, CaseTagAddedPayload{Tag: "billing"}),
		caseEvent(4, at, CaseTagAddedPayload{Tag: "vip"}),
		caseEvent(5, at, CaseTagRemovedPayload{Tag: "billing"}),
		caseEvent(6, at, CaseTagRemovedPayload{Tag: "missing"}),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"vip"}, state.Tags)
	// Removing a missing tag still counts as an applied event
	require.Equal(t, 6, state.Version)
}

func TestApplyFirstResponseRecordedOnce(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	firstAt := openedAt.Add(time.Hour)

	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, openedAt, createdPayload()),
		caseEvent(2, firstAt, AgentResponseSentPayload{Channel: "email", IsFirstResponse: true}),
		caseEvent(3, firstAt.Add(time.Hour), AgentResponseSentPayload{Channel: "email"}),
	})
	require.NoError(t, err)
	require.Equal(t, 2, state.ResponseCount)
	require.Equal(t, firstAt, *state.FirstResponseAt)
}

func TestApplySLABreachFlags(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, at, createdPayload()),
		caseEvent(2, at, CaseSLABreachedPayload{SLAType: SLAFirstResponse, DueAt: at, HoursOver: 1, ActualHours: 5}),
	})
	require.NoError(t, err)
	require.True(t, state.FirstResponseBreached)
	require.False(t, state.ResolutionBreached)
}

func TestApplyUnknownPayloadIsBookkeepingOnly(t *testing.T) {
	at := time.Now().UTC()
	state, err := ReplayCase("case-1", []Event{
		caseEvent(1, at, createdPayload()),
		caseEvent(2, at, UnknownPayload{Type: "V2_CASE_ARCHIVED"}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, state.Status)
	require.Equal(t, 2, state.Version)
	require.Equal(t, int64(2), state.LastEventSequence)
}

func TestDecodePayloadRoundTrip(t *testing.T) {
	p, err := DecodePayload(CaseStatusChanged, []byte(`{"from_status":"open","to_status":"escalated"}`))
	require.NoError(t, err)
	require.Equal(t, CaseStatusChangedPayload{FromStatus: StatusOpen, ToStatus: StatusEscalated}, p)

	p, err = DecodePayload("V2_SOMETHING_NEW", []byte(`{"x":1}`))
	require.NoError(t, err)
	unknown, ok := p.(UnknownPayload)
	require.True(t, ok)
	require.Equal(t, "V2_SOMETHING_NEW", unknown.Type)

	_, err = DecodePayload(CaseCreated, []byte(`{"title":`))
	require.Error(t, err)
}
