package projections

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/northstar/services/custops/internal/models"
)

// CheckpointStore persists each projector's position in the global event
// stream
type CheckpointStore struct {
	writer TableWriter
}

// NewCheckpointStore creates a new checkpoint store
func NewCheckpointStore(writer TableWriter) *CheckpointStore {
	return &CheckpointStore{writer: writer}
}

// Load returns the highest global sequence the named projector has
// processed, zero for a projector that has never run
func (s *CheckpointStore) Load(ctx context.Context, projectorName string) (int64, error) {
	var cp models.ProjectorCheckpoint
	err := s.writer.conn(ctx).
		Where("projector_name = ?", projectorName).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load checkpoint for %s", projectorName)
	}

	return cp.GlobalSeq, nil
}

// Save records the projector's new position
func (s *CheckpointStore) Save(ctx context.Context, projectorName string, globalSeq int64) error {
	cp := models.ProjectorCheckpoint{
		ProjectorName: projectorName,
		GlobalSeq:     globalSeq,
	}
	if err := s.writer.conn(ctx).Save(&cp).Error; err != nil {
		return errors.Wrapf(err, "failed to save checkpoint for %s", projectorName)
	}

	return nil
}
