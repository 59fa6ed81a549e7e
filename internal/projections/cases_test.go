package projections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

var projectorActor = domain.Actor{Type: domain.ActorUser, ID: "agent-1"}

func caseEvent(seq int64, at time.Time, payload domain.Payload) domain.Event {
	return domain.Event{
		ID:            "evt",
		AggregateType: domain.AggregateSupportCase,
		AggregateID:   "case-1",
		Sequence:      seq,
		GlobalSeq:     seq,
		Type:          payload.EventType(),
		Payload:       payload,
		Actor:         projectorActor,
		OccurredAt:    at,
	}
}

func createdEvent(seq int64, at time.Time) domain.Event {
	return caseEvent(seq, at, domain.CaseCreatedPayload{
		CompanyID:             "company-1",
		Title:                 "Cannot log in",
		Severity:              domain.SeverityHigh,
		FirstResponseSLAHours: 4,
		ResolutionSLAHours:    48,
	})
}

func TestApplyCaseEventCreates(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var row models.CaseReadModel
	row.AggregateID = "case-1"

	changed, err := applyCaseEvent(&row, createdEvent(1, openedAt))
	require.NoError(t, err)
	require.True(t, changed)

	require.Equal(t, "company-1", row.CompanyID)
	require.Equal(t, domain.StatusOpen, row.Status)
	require.Equal(t, domain.ImpactNeutral, row.Impact)
	require.Equal(t, int64(1), row.LastEventSequence)
	require.Equal(t, openedAt.Add(4*time.Hour), *row.FirstResponseDueAt)
	require.Equal(t, openedAt.Add(48*time.Hour), *row.ResolutionDueAt)
}

func TestApplyCaseEventIsIdempotent(t *testing.T) {
	at := time.Now().UTC()
	var row models.CaseReadModel
	row.AggregateID = "case-1"

	ev := createdEvent(1, at)
	changed, err := applyCaseEvent(&row, ev)
	require.NoError(t, err)
	require.True(t, changed)

	msg := caseEvent(2, at, domain.CustomerMessageLoggedPayload{Channel: "email", ReceivedAt: at})
	changed, err = applyCaseEvent(&row, msg)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 1, row.MessageCount)

	// Re-delivering an already-applied event changes nothing
	changed, err = applyCaseEvent(&row, msg)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, row.MessageCount)

	changed, err = applyCaseEvent(&row, ev)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestApplyCaseEventFullFlowMatchesReplay(t *testing.T) {
	openedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		createdEvent(1, openedAt),
		caseEvent(2, openedAt.Add(time.Hour), domain.CaseAssignedPayload{OwnerID: "agent-1", OwnerName: "Agent One"}),
		caseEvent(3, openedAt.Add(2*time.Hour), domain.AgentResponseSentPayload{Channel: "email", IsFirstResponse: true}),
		caseEvent(4, openedAt.Add(3*time.Hour), domain.CaseTagAddedPayload{Tag: "billing"}),
		caseEvent(5, openedAt.Add(10*time.Hour), domain.CaseResolvedPayload{ResolutionSummary: "fixed", SLAMet: true}),
		caseEvent(6, openedAt.Add(12*time.Hour), domain.CaseClosedPayload{CloseReason: "confirmed"}),
		caseEvent(7, openedAt.Add(24*time.Hour), domain.CaseReopenedPayload{Reason: "came back", ReopenedFromStatus: domain.StatusClosed}),
	}

	var row models.CaseReadModel
	row.AggregateID = "case-1"
	for _, ev := range events {
		changed, err := applyCaseEvent(&row, ev)
		require.NoError(t, err)
		require.True(t, changed)
	}

	state, err := domain.ReplayCase("case-1", events)
	require.NoError(t, err)

	require.Equal(t, state.Status, row.Status)
	require.Equal(t, state.IsResolved, row.IsResolved)
	require.Equal(t, state.IsClosed, row.IsClosed)
	require.Equal(t, state.ReopenCount, row.ReopenCount)
	require.Equal(t, state.ResponseCount, row.ResponseCount)
	require.Equal(t, state.LastEventSequence, row.LastEventSequence)
	require.Nil(t, row.ResolvedAt)
	require.Nil(t, row.ClosedAt)
	require.Empty(t, row.CloseReason)

	tags, err := decodeTags(row.Tags)
	require.NoError(t, err)
	require.Equal(t, state.Tags, tags)
}

func TestApplyCaseEventTagSetSemantics(t *testing.T) {
	at := time.Now().UTC()
	var row models.CaseReadModel
	row.AggregateID = "case-1"

	_, err := applyCaseEvent(&row, createdEvent(1, at))
	require.NoError(t, err)

	for i, payload := range []domain.Payload{
		domain.CaseTagAddedPayload{Tag: "billing"},
		domain.CaseTagAddedPayload{Tag: "billing"},
		domain.CaseTagAddedPayload{Tag: "vip"},
		domain.CaseTagRemovedPayload{Tag: "billing"},
	} {
		_, err := applyCaseEvent(&row, caseEvent(int64(i+2), at, payload))
		require.NoError(t, err)
	}

	tags, err := decodeTags(row.Tags)
	require.NoError(t, err)
	require.Equal(t, []string{"vip"}, tags)
}

func countsAfter(t *testing.T, events []domain.Event) models.CompanyCaseCounts {
	t.Helper()
	var row models.CaseReadModel
	row.AggregateID = "case-1"
	counts := models.CompanyCaseCounts{CompanyID: "company-1"}

	for _, ev := range events {
		before := row
		changed, err := applyCaseEvent(&row, ev)
		require.NoError(t, err)
		require.True(t, changed)
		applyCaseCountDeltas(&counts, before, row, ev)
	}
	return counts
}

func TestCountDeltasOpenAndSeverity(t *testing.T) {
	at := time.Now().UTC()
	counts := countsAfter(t, []domain.Event{
		createdEvent(1, at),
		caseEvent(2, at, domain.CaseSeverityChangedPayload{FromSeverity: domain.SeverityHigh, ToSeverity: domain.SeverityUrgent}),
	})

	require.Equal(t, 1, counts.OpenTotal)
	require.Equal(t, 0, counts.OpenHigh)
	require.Equal(t, 1, counts.OpenUrgent)
}

func TestCountDeltasResolveAndReopen(t *testing.T) {
	at := time.Now().UTC()
	counts := countsAfter(t, []domain.Event{
		createdEvent(1, at),
		caseEvent(2, at, domain.CaseImpactAssessedPayload{Impact: domain.ImpactNegative}),
		caseEvent(3, at, domain.CaseResolvedPayload{ResolutionSummary: "fixed", SLAMet: true}),
	})

	// Resolution removes the case from every open bucket
	require.Equal(t, 0, counts.OpenTotal)
	require.Equal(t, 0, counts.OpenHigh)
	require.Equal(t, 0, counts.NegativeImpact)
	require.Equal(t, 1, counts.ResolvedTotal)

	counts = countsAfter(t, []domain.Event{
		createdEvent(1, at),
		caseEvent(2, at, domain.CaseImpactAssessedPayload{Impact: domain.ImpactNegative}),
		caseEvent(3, at, domain.CaseResolvedPayload{ResolutionSummary: "fixed", SLAMet: true}),
		caseEvent(4, at, domain.CaseReopenedPayload{Reason: "back", ReopenedFromStatus: domain.StatusResolved}),
	})

	// Reopening puts it back, severity and impact included
	require.Equal(t, 1, counts.OpenTotal)
	require.Equal(t, 1, counts.OpenHigh)
	require.Equal(t, 1, counts.NegativeImpact)
	require.Equal(t, 1, counts.ResolvedTotal)
}

func TestCountDeltasBreachFlags(t *testing.T) {
	at := time.Now().UTC()
	counts := countsAfter(t, []domain.Event{
		createdEvent(1, at),
		caseEvent(2, at, domain.CaseSLABreachedPayload{SLAType: domain.SLAFirstResponse, DueAt: at, HoursOver: 1, ActualHours: 5}),
	})
	require.Equal(t, 1, counts.FirstResponseBreaches)

	// Closing the breached case removes it from the breach bucket too
	counts = countsAfter(t, []domain.Event{
		createdEvent(1, at),
		caseEvent(2, at, domain.CaseSLABreachedPayload{SLAType: domain.SLAFirstResponse, DueAt: at, HoursOver: 1, ActualHours: 5}),
		caseEvent(3, at, domain.CaseClosedPayload{CloseReason: "spam", ForcedClose: true}),
	})
	require.Equal(t, 0, counts.FirstResponseBreaches)
	require.Equal(t, 0, counts.OpenTotal)
	require.Equal(t, 1, counts.ClosedTotal)
}

func TestCountDeltasSaturateAtZero(t *testing.T) {
	counts := models.CompanyCaseCounts{CompanyID: "company-1"}
	dec(&counts.OpenTotal)
	require.Equal(t, 0, counts.OpenTotal)
	decSeverity(&counts, domain.SeverityHigh)
	require.Equal(t, 0, counts.OpenHigh)
	decImpact(&counts, domain.ImpactCritical)
	require.Equal(t, 0, counts.CriticalImpact)
}
