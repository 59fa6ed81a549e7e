package projections

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/northstar/services/custops/internal/cache"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

// exitReasonProgressed is the canonical exit reason written on a stage
// fact when the lifecycle moves on to another stage.
const exitReasonProgressed = "progressed"

// LifecycleProjector maintains the lifecycle read model, the stage fact
// history, and the per-company stage breach counter.
type LifecycleProjector struct {
	writer TableWriter
	cache  *cache.RedisCache
}

// NewLifecycleProjector creates a new lifecycle projector. The cache may
// be nil when Redis is not configured.
func NewLifecycleProjector(writer TableWriter, redisCache *cache.RedisCache) *LifecycleProjector {
	return &LifecycleProjector{writer: writer, cache: redisCache}
}

// Name identifies this projector's checkpoint
func (p *LifecycleProjector) Name() string {
	return "lifecycle"
}

// Handle applies one event. The read-model row, stage facts, and breach
// counter move in a single transaction guarded by the row's last applied
// sequence.
func (p *LifecycleProjector) Handle(ctx context.Context, ev domain.Event) error {
	if ev.AggregateType != domain.AggregateCompanyProduct {
		return nil
	}

	var countsMoved string
	err := p.writer.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.LifecycleReadModel
		err := tx.Where("aggregate_id = ?", ev.AggregateID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.LifecycleReadModel{AggregateID: ev.AggregateID}
		} else if err != nil {
			return errors.Wrap(err, "failed to load lifecycle row")
		}

		before := row
		changed := applyLifecycleEvent(&row, ev)
		if !changed {
			return nil
		}

		if err := tx.Save(&row).Error; err != nil {
			return errors.Wrap(err, "failed to save lifecycle row")
		}

		if err := p.applyStageFacts(tx, before, row, ev); err != nil {
			return err
		}

		if stageBreachDelta(before, row) != 0 {
			countsMoved = row.CompanyID
		}
		return p.applyBreachCounter(tx, before, row)
	})
	if err != nil {
		return err
	}

	if countsMoved != "" {
		invalidateInsights(ctx, p.cache, countsMoved)
	}
	return nil
}

// applyLifecycleEvent folds one event into the read-model row, reporting
// whether the row changed. The fold trusts the ledger: transitions were
// validated when the event was appended.
func applyLifecycleEvent(row *models.LifecycleReadModel, ev domain.Event) bool {
	if ev.Sequence <= row.LastEventSequence {
		return false
	}

	switch p := ev.Payload.(type) {
	case domain.LifecycleStartedPayload:
		row.CompanyID = p.CompanyID
		row.ProductID = p.ProductID
		enterRowStage(row, p.Stage, ev, p.StageSLAHours)

	case domain.StageAdvancedPayload:
		enterRowStage(row, p.ToStage, ev, p.StageSLAHours)

	case domain.OwnerSetPayload:
		row.OwnerID = p.OwnerID
		row.OwnerName = p.OwnerName

	case domain.TierSetPayload:
		row.Tier = p.Tier

	case domain.SuggestionCreatedPayload:
		row.PendingCount++

	case domain.SuggestionAcceptedPayload:
		dec(&row.PendingCount)
		row.AcceptedCount++

	case domain.SuggestionDismissedPayload:
		dec(&row.PendingCount)
		row.DismissedCount++

	case domain.LifecycleSLABreachedPayload:
		row.StageSLABreached = true

	case domain.UnknownPayload:
		// Forward compatibility: bookkeeping only
	}

	row.LastEventSequence = ev.Sequence
	return true
}

func enterRowStage(row *models.LifecycleReadModel, stage string, ev domain.Event, slaHours float64) {
	row.Stage = stage
	row.StageEnteredAt = ev.OccurredAt
	row.StageSLABreached = false
	if slaHours > 0 {
		due := ev.OccurredAt.Add(hoursToDuration(slaHours))
		row.StageDueAt = &due
	} else {
		row.StageDueAt = nil
	}
}

// applyStageFacts keeps the interval history in step with the row: a
// stage entry opens a fact, a stage exit closes the previously open one.
func (p *LifecycleProjector) applyStageFacts(tx *gorm.DB, before, after models.LifecycleReadModel, ev domain.Event) error {
	switch ev.Payload.(type) {
	case domain.LifecycleStartedPayload:
		return p.openFact(tx, after, ev)

	case domain.StageAdvancedPayload:
		exitedAt := ev.OccurredAt
		err := tx.Model(&models.StageFact{}).
			Where("aggregate_id = ? AND exited_at IS NULL", after.AggregateID).
			Updates(map[string]interface{}{
				"exited_at":   &exitedAt,
				"exit_reason": exitReasonProgressed,
			}).Error
		if err != nil {
			return errors.Wrap(err, "failed to close stage fact")
		}
		return p.openFact(tx, after, ev)
	}

	return nil
}

func (p *LifecycleProjector) openFact(tx *gorm.DB, row models.LifecycleReadModel, ev domain.Event) error {
	fact := models.StageFact{
		AggregateID: row.AggregateID,
		CompanyID:   row.CompanyID,
		ProductID:   row.ProductID,
		Stage:       row.Stage,
		EnteredAt:   ev.OccurredAt,
	}
	if err := tx.Create(&fact).Error; err != nil {
		return errors.Wrap(err, "failed to open stage fact")
	}
	return nil
}

// applyBreachCounter moves the company stage-breach counter when the
// row's breach flag flips. The counts row is shared with the case
// projector, which runs in its own transactions, so the write stays
// scoped to the stage_breaches column and applies as an atomic
// expression rather than a full-row save.
func (p *LifecycleProjector) applyBreachCounter(tx *gorm.DB, before, after models.LifecycleReadModel) error {
	delta := stageBreachDelta(before, after)
	if delta == 0 {
		return nil
	}

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CompanyCaseCounts{CompanyID: after.CompanyID}).Error
	if err != nil {
		return errors.Wrap(err, "failed to ensure company counts row")
	}

	expr := gorm.Expr("stage_breaches + 1")
	if delta < 0 {
		// Saturate at zero like the in-struct counter moves
		expr = gorm.Expr("GREATEST(stage_breaches - 1, 0)")
	}
	err = tx.Model(&models.CompanyCaseCounts{}).
		Where("company_id = ?", after.CompanyID).
		UpdateColumn("stage_breaches", expr).Error
	if err != nil {
		return errors.Wrap(err, "failed to move stage breach counter")
	}
	return nil
}

// stageBreachDelta reports how the company stage-breach counter moves
// for one applied event: set on breach, cleared when the lifecycle moves
// on to a new stage.
func stageBreachDelta(before, after models.LifecycleReadModel) int {
	if before.StageSLABreached == after.StageSLABreached {
		return 0
	}
	if after.StageSLABreached {
		return 1
	}
	return -1
}
