package commands

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
)

// memoryStore is an in-memory event store for command tests. It enforces
// the same per-aggregate sequence uniqueness the real store gets from
// its database index.
type memoryStore struct {
	events      []domain.Event
	nextID      int
	appendErrs  []error
	appendCalls int
}

func (m *memoryStore) Append(ctx context.Context, events []domain.Event) error {
	m.appendCalls++
	if len(m.appendErrs) > 0 {
		err := m.appendErrs[0]
		m.appendErrs = m.appendErrs[1:]
		if err != nil {
			return err
		}
	}

	for _, ev := range events {
		for _, existing := range m.events {
			if existing.AggregateType == ev.AggregateType &&
				existing.AggregateID == ev.AggregateID &&
				existing.Sequence == ev.Sequence {
				return eventstore.ErrSequenceConflict
			}
		}
	}

	for i := range events {
		m.nextID++
		events[i].ID = fmt.Sprintf("evt-%d", m.nextID)
		events[i].GlobalSeq = int64(m.nextID)
		m.events = append(m.events, events[i])
	}
	return nil
}

func (m *memoryStore) ReadByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range m.events {
		if ev.AggregateType == aggregateType && ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memoryStore) ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range m.events {
		if ev.GlobalSeq > afterGlobalSeq {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var (
	userActor   = domain.Actor{Type: domain.ActorUser, ID: "agent-1"}
	systemActor = domain.Actor{Type: domain.ActorSystem, ID: "sla-scanner"}
)

func testSLA() SLAPolicy {
	return SLAPolicy{FirstResponseHours: 4, ResolutionHours: 48, StageHours: 336}
}

func newTestCaseCommands(store eventstore.EventStore) *CaseCommands {
	c := NewCaseCommands(store, testSLA())
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return c
}

func createTestCase(t *testing.T, c *CaseCommands) {
	t.Helper()
	_, err := c.CreateCase(context.Background(), userActor, CreateCaseInput{
		CaseID:    "case-1",
		CompanyID: "company-1",
		Title:     "Cannot log in",
		Severity:  domain.SeverityHigh,
	})
	require.NoError(t, err)
}

func TestCreateCase(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)

	result, err := c.CreateCase(context.Background(), userActor, CreateCaseInput{
		CaseID:    "case-1",
		CompanyID: "company-1",
		Title:     "Cannot log in",
		Severity:  domain.SeverityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, "case-1", result.AggregateID)
	require.Len(t, result.EventIDs, 1)

	// SLA targets in force at creation are stamped into the event
	created := store.events[0].Payload.(domain.CaseCreatedPayload)
	require.Equal(t, 4.0, created.FirstResponseSLAHours)
	require.Equal(t, 48.0, created.ResolutionSLAHours)
}

func TestCreateCaseDuplicate(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.CreateCase(context.Background(), userActor, CreateCaseInput{
		CaseID:    "case-1",
		CompanyID: "company-1",
		Title:     "Again",
		Severity:  domain.SeverityLow,
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeAlreadyExists, ve.Code)
}

func TestCreateCaseUnknownSeverity(t *testing.T) {
	c := newTestCaseCommands(&memoryStore{})

	_, err := c.CreateCase(context.Background(), userActor, CreateCaseInput{
		CaseID:    "case-1",
		CompanyID: "company-1",
		Title:     "Bad",
		Severity:  "catastrophic",
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeUnknownSeverity, ve.Code)
}

func TestCaseCommandsRejectMissingRequiredFields(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)

	// An empty aggregate ID must never reach the store
	_, err := c.CreateCase(context.Background(), userActor, CreateCaseInput{
		CompanyID: "company-1",
		Title:     "No ID",
		Severity:  domain.SeverityHigh,
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeInvalidInput, ve.Code)
	require.Empty(t, store.events)
	require.Equal(t, 0, store.appendCalls)

	createTestCase(t, c)

	_, err = c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "case-1"})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeInvalidInput, ve.Code)

	_, err = c.ResolveCase(context.Background(), userActor, ResolveCaseInput{CaseID: "case-1"})
	require.ErrorAs(t, err, &ve)

	_, err = c.AddTag(context.Background(), userActor, TagInput{Tag: "billing"})
	require.ErrorAs(t, err, &ve)

	// Only the creation event was recorded
	require.Len(t, store.events, 1)
}

func TestCommandOnMissingCase(t *testing.T) {
	c := newTestCaseCommands(&memoryStore{})

	_, err := c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "missing", OwnerID: "agent-2"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignCaseNoOpOnSameOwner(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	result, err := c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "case-1", OwnerID: "agent-2"})
	require.NoError(t, err)
	require.Len(t, result.EventIDs, 1)

	// Assigning the same owner again records nothing
	result, err = c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "case-1", OwnerID: "agent-2"})
	require.NoError(t, err)
	require.Empty(t, result.EventIDs)
	require.Len(t, store.events, 2)
}

func TestChangeStatusRejectsTerminalTargets(t *testing.T) {
	c := newTestCaseCommands(&memoryStore{})

	_, err := c.ChangeStatus(context.Background(), userActor, ChangeStatusInput{CaseID: "case-1", ToStatus: domain.StatusResolved})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeInvalidTransition, ve.Code)

	_, err = c.ChangeStatus(context.Background(), userActor, ChangeStatusInput{CaseID: "case-1", ToStatus: domain.StatusClosed})
	require.ErrorAs(t, err, &ve)
}

func TestChangeStatusRejectsResolvedSource(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.ResolveCase(context.Background(), userActor, ResolveCaseInput{CaseID: "case-1", ResolutionSummary: "fixed"})
	require.NoError(t, err)

	// Leaving the resolved state without clearing the resolution facts
	// would exclude an actively worked case from the open counts
	_, err = c.ChangeStatus(context.Background(), userActor, ChangeStatusInput{CaseID: "case-1", ToStatus: domain.StatusInProgress})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeInvalidTransition, ve.Code)
	require.Len(t, store.events, 2)

	// Reopening is the supported way back to work
	_, err = c.ReopenCase(context.Background(), userActor, ReopenCaseInput{CaseID: "case-1", Reason: "not fixed"})
	require.NoError(t, err)
	_, err = c.ChangeStatus(context.Background(), userActor, ChangeStatusInput{CaseID: "case-1", ToStatus: domain.StatusInProgress})
	require.NoError(t, err)
}

func TestResolveCloseReopenFlow(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.ResolveCase(context.Background(), userActor, ResolveCaseInput{CaseID: "case-1", ResolutionSummary: "fixed"})
	require.NoError(t, err)

	resolved := store.events[1].Payload.(domain.CaseResolvedPayload)
	require.True(t, resolved.SLAMet)
	require.Equal(t, 48.0, resolved.SLAHours)

	_, err = c.CloseCase(context.Background(), userActor, CloseCaseInput{CaseID: "case-1", CloseReason: "confirmed"})
	require.NoError(t, err)

	_, err = c.ReopenCase(context.Background(), userActor, ReopenCaseInput{CaseID: "case-1", Reason: "came back"})
	require.NoError(t, err)

	reopened := store.events[3].Payload.(domain.CaseReopenedPayload)
	require.Equal(t, "confirmed", reopened.PreviousCloseReason)
	require.Equal(t, domain.StatusClosed, reopened.ReopenedFromStatus)
}

func TestCloseUnresolvedNeedsForce(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.CloseCase(context.Background(), userActor, CloseCaseInput{CaseID: "case-1", CloseReason: "spam"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, domain.CodeNotResolved, ve.Code)

	_, err = c.CloseCase(context.Background(), userActor, CloseCaseInput{CaseID: "case-1", CloseReason: "spam", Force: true})
	require.NoError(t, err)
}

func TestRecordAgentResponseMarksFirst(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.RecordAgentResponse(context.Background(), userActor, RecordAgentResponseInput{CaseID: "case-1", Channel: "email"})
	require.NoError(t, err)
	_, err = c.RecordAgentResponse(context.Background(), userActor, RecordAgentResponseInput{CaseID: "case-1", Channel: "email"})
	require.NoError(t, err)

	require.True(t, store.events[1].Payload.(domain.AgentResponseSentPayload).IsFirstResponse)
	require.False(t, store.events[2].Payload.(domain.AgentResponseSentPayload).IsFirstResponse)
}

func TestTagsAreIdempotentAtCommandLevel(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	result, err := c.AddTag(context.Background(), userActor, TagInput{CaseID: "case-1", Tag: "billing"})
	require.NoError(t, err)
	require.Len(t, result.EventIDs, 1)

	result, err = c.AddTag(context.Background(), userActor, TagInput{CaseID: "case-1", Tag: "billing"})
	require.NoError(t, err)
	require.Empty(t, result.EventIDs)

	result, err = c.RemoveTag(context.Background(), userActor, TagInput{CaseID: "case-1", Tag: "absent"})
	require.NoError(t, err)
	require.Empty(t, result.EventIDs)
}

func TestRecordCaseBreachGuardrail(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	due := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)

	_, err := c.RecordCaseBreach(context.Background(), userActor, RecordCaseBreachInput{
		CaseID: "case-1", SLAType: domain.SLAFirstResponse, DueAt: due,
	})
	var ge *domain.GuardrailError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, domain.CodeActorForbidden, ge.Code)
	require.Len(t, store.events, 1)
}

func TestRecordCaseBreachOnceOnly(t *testing.T) {
	store := &memoryStore{}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	due := time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC)
	input := RecordCaseBreachInput{CaseID: "case-1", SLAType: domain.SLAFirstResponse, DueAt: due}

	result, err := c.RecordCaseBreach(context.Background(), systemActor, input)
	require.NoError(t, err)
	require.Len(t, result.EventIDs, 1)

	breach := store.events[1].Payload.(domain.CaseSLABreachedPayload)
	require.Equal(t, 4.0, breach.HoursOver)

	// A second scan pass records nothing
	result, err = c.RecordCaseBreach(context.Background(), systemActor, input)
	require.NoError(t, err)
	require.Empty(t, result.EventIDs)
	require.Len(t, store.events, 2)
}

func TestRunRetriesOnSequenceConflict(t *testing.T) {
	store := &memoryStore{appendErrs: []error{nil, eventstore.ErrSequenceConflict}}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	result, err := c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "case-1", OwnerID: "agent-2"})
	require.NoError(t, err)
	require.Len(t, result.EventIDs, 1)
	// Creation, the conflicted attempt, and the successful retry
	require.Equal(t, 3, store.appendCalls)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	store := &memoryStore{appendErrs: []error{
		nil,
		eventstore.ErrSequenceConflict,
		eventstore.ErrSequenceConflict,
		eventstore.ErrSequenceConflict,
	}}
	c := newTestCaseCommands(store)
	createTestCase(t, c)

	_, err := c.AssignCase(context.Background(), userActor, AssignCaseInput{CaseID: "case-1", OwnerID: "agent-2"})
	require.ErrorIs(t, err, eventstore.ErrSequenceConflict)
}
