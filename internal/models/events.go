package models

import (
	"time"
)

// Event is the append-only ledger row for a domain event. The
// autoincrement primary key doubles as the global sequence number used
// for cross-aggregate ordering and projector checkpoints. The composite
// unique index on (aggregate_type, aggregate_id, sequence) is what makes
// two concurrent appends racing on the same next sequence impossible:
// one insert wins, the other surfaces a duplicate-key conflict.
//
// Rows are never updated or deleted.
type Event struct {
	GlobalSeq     int64     `gorm:"primaryKey;autoIncrement" json:"global_seq"`
	EventID       string    `gorm:"uniqueIndex;not null" json:"event_id"`
	AggregateType string    `gorm:"uniqueIndex:idx_aggregate_sequence;not null" json:"aggregate_type"`
	AggregateID   string    `gorm:"uniqueIndex:idx_aggregate_sequence;index;not null" json:"aggregate_id"`
	Sequence      int64     `gorm:"uniqueIndex:idx_aggregate_sequence;not null" json:"sequence"`
	EventType     string    `gorm:"not null" json:"event_type"`
	Payload       []byte    `gorm:"type:jsonb" json:"payload"`
	ActorType     string    `gorm:"not null" json:"actor_type"`
	ActorID       string    `gorm:"not null" json:"actor_id"`
	OccurredAt    time.Time `gorm:"not null" json:"occurred_at"`
	RecordedAt    time.Time `gorm:"autoCreateTime" json:"recorded_at"`
}

// TableName keeps the ledger under a stable name
func (Event) TableName() string {
	return "events"
}
