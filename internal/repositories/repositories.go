package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/models"
)

// CaseReadRepository provides read access to the case read model
type CaseReadRepository struct {
	readOnlyDB *gorm.DB
}

// NewCaseReadRepository creates a new case read repository
func NewCaseReadRepository(readOnlyDB *gorm.DB) *CaseReadRepository {
	return &CaseReadRepository{readOnlyDB: readOnlyDB}
}

// GetByID gets a case row by aggregate ID
func (r *CaseReadRepository) GetByID(ctx context.Context, aggregateID string) (*models.CaseReadModel, error) {
	var row models.CaseReadModel
	err := r.readOnlyDB.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "case %s", aggregateID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get case")
	}
	return &row, nil
}

// ListByCompany lists a company's cases, most recently opened first
func (r *CaseReadRepository) ListByCompany(ctx context.Context, companyID string, limit int) ([]models.CaseReadModel, error) {
	var rows []models.CaseReadModel
	err := r.readOnlyDB.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("opened_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list company cases")
	}
	return rows, nil
}

// ListOpenByCompany lists a company's open cases (neither resolved nor
// closed)
func (r *CaseReadRepository) ListOpenByCompany(ctx context.Context, companyID string) ([]models.CaseReadModel, error) {
	var rows []models.CaseReadModel
	err := r.readOnlyDB.WithContext(ctx).
		Where("company_id = ? AND is_resolved = ? AND is_closed = ?", companyID, false, false).
		Order("opened_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list open company cases")
	}
	return rows, nil
}

// LifecycleReadRepository provides read access to the lifecycle read model
type LifecycleReadRepository struct {
	readOnlyDB *gorm.DB
}

// NewLifecycleReadRepository creates a new lifecycle read repository
func NewLifecycleReadRepository(readOnlyDB *gorm.DB) *LifecycleReadRepository {
	return &LifecycleReadRepository{readOnlyDB: readOnlyDB}
}

// GetByID gets a lifecycle row by aggregate ID
func (r *LifecycleReadRepository) GetByID(ctx context.Context, aggregateID string) (*models.LifecycleReadModel, error) {
	var row models.LifecycleReadModel
	err := r.readOnlyDB.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "lifecycle %s", aggregateID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get lifecycle")
	}
	return &row, nil
}

// ListByCompany lists a company's lifecycles
func (r *LifecycleReadRepository) ListByCompany(ctx context.Context, companyID string) ([]models.LifecycleReadModel, error) {
	var rows []models.LifecycleReadModel
	err := r.readOnlyDB.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list company lifecycles")
	}
	return rows, nil
}

// StageFactRepository provides read access to the stage fact history
type StageFactRepository struct {
	readOnlyDB *gorm.DB
}

// NewStageFactRepository creates a new stage fact repository
func NewStageFactRepository(readOnlyDB *gorm.DB) *StageFactRepository {
	return &StageFactRepository{readOnlyDB: readOnlyDB}
}

// ListByAggregate lists a lifecycle's stage history in entry order
func (r *StageFactRepository) ListByAggregate(ctx context.Context, aggregateID string) ([]models.StageFact, error) {
	var rows []models.StageFact
	err := r.readOnlyDB.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("entered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stage facts")
	}
	return rows, nil
}

// CountsRepository provides read access to the per-company counters
type CountsRepository struct {
	readOnlyDB *gorm.DB
}

// NewCountsRepository creates a new counts repository
func NewCountsRepository(readOnlyDB *gorm.DB) *CountsRepository {
	return &CountsRepository{readOnlyDB: readOnlyDB}
}

// GetByCompany gets a company's counter row. A company with no recorded
// cases yet gets a zero row rather than a not-found error.
func (r *CountsRepository) GetByCompany(ctx context.Context, companyID string) (models.CompanyCaseCounts, error) {
	var row models.CompanyCaseCounts
	err := r.readOnlyDB.WithContext(ctx).
		Where("company_id = ?", companyID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CompanyCaseCounts{CompanyID: companyID}, nil
	}
	if err != nil {
		return models.CompanyCaseCounts{}, errors.Wrap(err, "failed to get company counts")
	}
	return row, nil
}
