package eventstore

import (
	"context"
	"errors"

	"example.com/northstar/services/custops/internal/domain"
)

// ErrSequenceConflict indicates another writer appended an event with the
// same per-aggregate sequence number first. Callers re-replay the
// aggregate and retry with the fresh next sequence.
var ErrSequenceConflict = errors.New("event sequence conflict")

// EventStore is the interface for the append-only event ledger
type EventStore interface {
	// Append atomically records the given events. Each event must carry
	// the caller-computed next sequence for its aggregate; a concurrent
	// append racing on the same sequence returns ErrSequenceConflict and
	// writes nothing.
	Append(ctx context.Context, events []domain.Event) error

	// ReadByAggregate returns an aggregate's full history in sequence
	// order, payloads decoded
	ReadByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error)

	// ReadSince returns up to limit events with a global sequence greater
	// than afterGlobalSeq, in global order. This is the projector tail.
	ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]domain.Event, error)
}
