package messaging

import (
	"context"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/require"

	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
	"example.com/northstar/services/custops/internal/metrics"
)

// fakeStore is a minimal in-memory event store for dispatch tests
type fakeStore struct {
	events []domain.Event
	nextID int
}

func (f *fakeStore) Append(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		for _, existing := range f.events {
			if existing.AggregateType == ev.AggregateType &&
				existing.AggregateID == ev.AggregateID &&
				existing.Sequence == ev.Sequence {
				return eventstore.ErrSequenceConflict
			}
		}
	}
	for i := range events {
		f.nextID++
		events[i].ID = fmt.Sprintf("evt-%d", f.nextID)
		events[i].GlobalSeq = int64(f.nextID)
		f.events = append(f.events, events[i])
	}
	return nil
}

func (f *fakeStore) ReadByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range f.events {
		if ev.AggregateType == aggregateType && ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]domain.Event, error) {
	return nil, nil
}

func newTestProcessor(store eventstore.EventStore) *Processor {
	sla := commands.SLAPolicy{FirstResponseHours: 4, ResolutionHours: 48, StageHours: 336}
	return NewProcessor(
		commands.NewCaseCommands(store, sla),
		commands.NewLifecycleCommands(store, sla),
		metrics.NewMetrics(),
	)
}

func message(body string) *azservicebus.ReceivedMessage {
	return &azservicebus.ReceivedMessage{Body: []byte(body)}
}

func TestProcessMessageCreateCase(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(store)

	body := `{
		"command": "CreateCase",
		"actor": {"type": "user", "id": "agent-1"},
		"data": {"case_id": "case-1", "company_id": "company-1", "title": "Cannot log in", "severity": "high"}
	}`
	err := p.ProcessMessage(context.Background(), message(body))
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Equal(t, domain.CaseCreated, store.events[0].Type)
}

func TestProcessMessageDispatchesLifecycleCommands(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(store)

	start := `{
		"command": "StartLifecycle",
		"actor": {"type": "user", "id": "csm-1"},
		"data": {"lifecycle_id": "lc-1", "company_id": "company-1", "product_id": "product-1"}
	}`
	require.NoError(t, p.ProcessMessage(context.Background(), message(start)))

	advance := `{
		"command": "AdvanceStage",
		"actor": {"type": "user", "id": "csm-1"},
		"data": {"lifecycle_id": "lc-1", "to_stage": "qualified"}
	}`
	require.NoError(t, p.ProcessMessage(context.Background(), message(advance)))
	require.Len(t, store.events, 2)
	require.Equal(t, domain.StageAdvanced, store.events[1].Type)
}

func TestProcessMessageValidationErrorPropagates(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(store)

	// AI actors may not accept suggestions; the listener completes on
	// this class of error instead of redelivering
	body := `{
		"command": "AcceptSuggestion",
		"actor": {"type": "ai", "id": "assistant"},
		"data": {"lifecycle_id": "lc-1", "suggestion_id": "sug-1"}
	}`
	err := p.ProcessMessage(context.Background(), message(body))
	require.Error(t, err)
	require.True(t, domain.IsValidation(err))
}

func TestProcessMessageUnsupportedCommand(t *testing.T) {
	p := newTestProcessor(&fakeStore{})

	err := p.ProcessMessage(context.Background(), message(`{"command": "DeleteEverything", "actor": {"type": "user", "id": "x"}, "data": {}}`))
	require.Error(t, err)
	require.False(t, domain.IsValidation(err))
}

func TestProcessMessageMalformedBody(t *testing.T) {
	p := newTestProcessor(&fakeStore{})

	err := p.ProcessMessage(context.Background(), message(`{not json`))
	require.Error(t, err)
}
