package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

// scannerActor is the system identity breach events are recorded under
var scannerActor = domain.Actor{Type: domain.ActorSystem, ID: "sla-scanner"}

// Scanner finds read-model rows whose SLA due time has passed without
// the corresponding completion and records a breach event for each. It
// only ever reads the read models; the breach itself goes through the
// command layer as an ordinary event, so the flags it checks are set by
// the projectors, not by the scanner. That makes overlapping or repeated
// scans safe: a row already flagged, or flagged by a concurrent scan, is
// skipped or lands as a command-level no-op.
type Scanner struct {
	db         *gorm.DB
	cases      *commands.CaseCommands
	lifecycles *commands.LifecycleCommands
	now        func() time.Time
}

// New creates a new SLA breach scanner
func New(db *gorm.DB, cases *commands.CaseCommands, lifecycles *commands.LifecycleCommands) *Scanner {
	return &Scanner{
		db:         db,
		cases:      cases,
		lifecycles: lifecycles,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Result reports one scan pass for operational logging
type Result struct {
	Scanned  int `json:"scanned"`
	Breached int `json:"breached"`
}

// ScanOnce runs a single pass over all SLA categories
func (s *Scanner) ScanOnce(ctx context.Context) (Result, error) {
	var total Result

	res, err := s.scanFirstResponse(ctx)
	if err != nil {
		return total, err
	}
	total.Scanned += res.Scanned
	total.Breached += res.Breached

	res, err = s.scanResolution(ctx)
	if err != nil {
		return total, err
	}
	total.Scanned += res.Scanned
	total.Breached += res.Breached

	res, err = s.scanStages(ctx)
	if err != nil {
		return total, err
	}
	total.Scanned += res.Scanned
	total.Breached += res.Breached

	log.Info().
		Int("scanned", total.Scanned).
		Int("breached", total.Breached).
		Msg("SLA scan pass complete")

	return total, nil
}

// firstResponseOverdue reports whether a case row is eligible for a
// first-response breach: due time passed with no response sent, not
// already flagged, and the case not closed. The scan query below is the
// SQL translation of this predicate.
func firstResponseOverdue(row models.CaseReadModel, now time.Time) bool {
	return row.FirstResponseDueAt != nil &&
		row.FirstResponseDueAt.Before(now) &&
		row.FirstResponseAt == nil &&
		!row.FirstResponseBreached &&
		!row.IsClosed
}

// resolutionOverdue reports whether a case row is eligible for a
// resolution breach: due time passed without resolution, not already
// flagged, and the case not closed.
func resolutionOverdue(row models.CaseReadModel, now time.Time) bool {
	return row.ResolutionDueAt != nil &&
		row.ResolutionDueAt.Before(now) &&
		row.ResolvedAt == nil &&
		!row.ResolutionBreached &&
		!row.IsClosed
}

// stageOverdue reports whether a lifecycle row is eligible for a stage
// breach: stage due time passed and the current stage not already
// flagged.
func stageOverdue(row models.LifecycleReadModel, now time.Time) bool {
	return row.StageDueAt != nil &&
		row.StageDueAt.Before(now) &&
		!row.StageSLABreached
}

func (s *Scanner) scanFirstResponse(ctx context.Context) (Result, error) {
	now := s.now()

	var rows []models.CaseReadModel
	err := s.db.WithContext(ctx).
		Where("first_response_due_at IS NOT NULL").
		Where("first_response_due_at < ?", now).
		Where("first_response_at IS NULL").
		Where("first_response_breached = ?", false).
		Where("is_closed = ?", false).
		Find(&rows).Error
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(rows)}
	for _, row := range rows {
		if !firstResponseOverdue(row, now) {
			continue
		}
		result, err := s.cases.RecordCaseBreach(ctx, scannerActor, commands.RecordCaseBreachInput{
			CaseID:  row.AggregateID,
			SLAType: domain.SLAFirstResponse,
			DueAt:   *row.FirstResponseDueAt,
		})
		if err != nil {
			log.Error().Err(err).Str("caseID", row.AggregateID).Msg("Failed to record first-response breach")
			continue
		}
		if len(result.EventIDs) > 0 {
			res.Breached++
		}
	}

	return res, nil
}

func (s *Scanner) scanResolution(ctx context.Context) (Result, error) {
	now := s.now()

	var rows []models.CaseReadModel
	err := s.db.WithContext(ctx).
		Where("resolution_due_at IS NOT NULL").
		Where("resolution_due_at < ?", now).
		Where("resolved_at IS NULL").
		Where("resolution_breached = ?", false).
		Where("is_closed = ?", false).
		Find(&rows).Error
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(rows)}
	for _, row := range rows {
		if !resolutionOverdue(row, now) {
			continue
		}
		result, err := s.cases.RecordCaseBreach(ctx, scannerActor, commands.RecordCaseBreachInput{
			CaseID:  row.AggregateID,
			SLAType: domain.SLAResolution,
			DueAt:   *row.ResolutionDueAt,
		})
		if err != nil {
			log.Error().Err(err).Str("caseID", row.AggregateID).Msg("Failed to record resolution breach")
			continue
		}
		if len(result.EventIDs) > 0 {
			res.Breached++
		}
	}

	return res, nil
}

func (s *Scanner) scanStages(ctx context.Context) (Result, error) {
	now := s.now()

	var rows []models.LifecycleReadModel
	err := s.db.WithContext(ctx).
		Where("stage_due_at IS NOT NULL").
		Where("stage_due_at < ?", now).
		Where("stage_sla_breached = ?", false).
		Find(&rows).Error
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(rows)}
	for _, row := range rows {
		if !stageOverdue(row, now) {
			continue
		}
		result, err := s.lifecycles.RecordStageBreach(ctx, scannerActor, commands.RecordStageBreachInput{
			LifecycleID: row.AggregateID,
			DueAt:       *row.StageDueAt,
		})
		if err != nil {
			log.Error().Err(err).Str("lifecycleID", row.AggregateID).Msg("Failed to record stage breach")
			continue
		}
		if len(result.EventIDs) > 0 {
			res.Breached++
		}
	}

	return res, nil
}
