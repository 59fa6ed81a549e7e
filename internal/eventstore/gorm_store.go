package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

// GormEventStore implements EventStore using GORM
type GormEventStore struct {
	db       *gorm.DB
	validate *validator.Validate
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{
		db:       db,
		validate: validator.New(),
	}
}

// Append atomically records the given events. Each event's payload is
// validated before anything touches the database, and all inserts run in
// one transaction so a conflict on any event writes nothing.
func (s *GormEventStore) Append(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]models.Event, 0, len(events))
	for i := range events {
		ev := &events[i]
		if ev.Payload == nil {
			return errors.Errorf("event %s has no payload", ev.Type)
		}
		if ev.Payload.EventType() != ev.Type {
			return errors.Errorf("payload type %s does not match event type %s",
				ev.Payload.EventType(), ev.Type)
		}
		if err := s.validate.Struct(ev.Payload); err != nil {
			return errors.Wrapf(err, "invalid %s payload", ev.Type)
		}
		if err := s.validate.Struct(ev.Actor); err != nil {
			return errors.Wrapf(err, "invalid actor on %s", ev.Type)
		}

		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal %s payload", ev.Type)
		}

		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}

		rows = append(rows, models.Event{
			EventID:       ev.ID,
			AggregateType: ev.AggregateType,
			AggregateID:   ev.AggregateID,
			Sequence:      ev.Sequence,
			EventType:     ev.Type,
			Payload:       data,
			ActorType:     string(ev.Actor.Type),
			ActorID:       ev.Actor.ID,
			OccurredAt:    ev.OccurredAt,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrSequenceConflict
				}
				return errors.Wrap(err, "failed to append event")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range rows {
		events[i].GlobalSeq = rows[i].GlobalSeq
		events[i].RecordedAt = rows[i].RecordedAt

		log.Info().
			Str("aggregateID", events[i].AggregateID).
			Str("eventType", events[i].Type).
			Int64("sequence", events[i].Sequence).
			Int64("globalSeq", events[i].GlobalSeq).
			Msg("Event appended")
	}

	return nil
}

// ReadByAggregate returns an aggregate's full history in sequence order
func (s *GormEventStore) ReadByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]domain.Event, error) {
	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateID).
		Order("sequence ASC").
		Find(&dbEvents).Error; err != nil {
		return nil, errors.Wrap(err, "failed to read aggregate events")
	}

	return s.toDomainEvents(dbEvents)
}

// ReadSince returns up to limit events past the given global sequence
func (s *GormEventStore) ReadSince(ctx context.Context, afterGlobalSeq int64, limit int) ([]domain.Event, error) {
	var dbEvents []models.Event
	if err := s.db.WithContext(ctx).
		Where("global_seq > ?", afterGlobalSeq).
		Order("global_seq ASC").
		Limit(limit).
		Find(&dbEvents).Error; err != nil {
		return nil, errors.Wrap(err, "failed to read events")
	}

	return s.toDomainEvents(dbEvents)
}

func (s *GormEventStore) toDomainEvents(dbEvents []models.Event) ([]domain.Event, error) {
	events := make([]domain.Event, len(dbEvents))
	for i, dbEvent := range dbEvents {
		payload, err := domain.DecodePayload(dbEvent.EventType, dbEvent.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "event %s", dbEvent.EventID)
		}

		events[i] = domain.Event{
			ID:            dbEvent.EventID,
			AggregateType: dbEvent.AggregateType,
			AggregateID:   dbEvent.AggregateID,
			Sequence:      dbEvent.Sequence,
			GlobalSeq:     dbEvent.GlobalSeq,
			Type:          dbEvent.EventType,
			Payload:       payload,
			Actor: domain.Actor{
				Type: domain.ActorType(dbEvent.ActorType),
				ID:   dbEvent.ActorID,
			},
			OccurredAt: dbEvent.OccurredAt,
			RecordedAt: dbEvent.RecordedAt,
		}
	}

	return events, nil
}
