package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CaseReadModel is the flat, query-optimized row per support case,
// owned exclusively by the case read-model projector. LastEventSequence
// makes re-application of an already-seen event a no-op.
type CaseReadModel struct {
	AggregateID  string `gorm:"primaryKey" json:"aggregate_id"`
	CompanyID    string `gorm:"index" json:"company_id"`
	ProductID    string `gorm:"index" json:"product_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Source       string `json:"source"`
	ContactEmail string `json:"contact_email"`

	Status        string `gorm:"index" json:"status"`
	Severity      string `gorm:"index" json:"severity"`
	Impact        string `json:"impact"`
	OwnerID       string `gorm:"index" json:"owner_id"`
	OwnerName     string `json:"owner_name"`
	Tags          []byte `gorm:"type:jsonb" json:"tags"`
	MessageCount  int    `gorm:"not null;default:0" json:"message_count"`
	ResponseCount int    `gorm:"not null;default:0" json:"response_count"`
	ReopenCount   int    `gorm:"not null;default:0" json:"reopen_count"`

	OpenedAt              time.Time  `json:"opened_at"`
	LastCustomerMessageAt *time.Time `json:"last_customer_message_at"`
	FirstResponseAt       *time.Time `json:"first_response_at"`
	FirstResponseDueAt    *time.Time `gorm:"index" json:"first_response_due_at"`
	ResolutionDueAt       *time.Time `gorm:"index" json:"resolution_due_at"`
	ResolvedAt            *time.Time `json:"resolved_at"`
	ClosedAt              *time.Time `json:"closed_at"`
	CloseReason           string     `json:"close_reason"`

	IsResolved            bool `gorm:"not null;default:false" json:"is_resolved"`
	IsClosed              bool `gorm:"not null;default:false" json:"is_closed"`
	FirstResponseBreached bool `gorm:"not null;default:false" json:"first_response_breached"`
	ResolutionBreached    bool `gorm:"not null;default:false" json:"resolution_breached"`

	LastEventSequence int64     `gorm:"not null;default:0" json:"last_event_sequence"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LifecycleReadModel is the flat row per company-product lifecycle,
// owned exclusively by the lifecycle read-model projector.
type LifecycleReadModel struct {
	AggregateID string `gorm:"primaryKey" json:"aggregate_id"`
	CompanyID   string `gorm:"index" json:"company_id"`
	ProductID   string `gorm:"index" json:"product_id"`

	Stage            string     `gorm:"index" json:"stage"`
	OwnerID          string     `gorm:"index" json:"owner_id"`
	OwnerName        string     `json:"owner_name"`
	Tier             int        `gorm:"not null;default:0" json:"tier"`
	PendingCount     int        `gorm:"not null;default:0" json:"pending_count"`
	AcceptedCount    int        `gorm:"not null;default:0" json:"accepted_count"`
	DismissedCount   int        `gorm:"not null;default:0" json:"dismissed_count"`
	StageEnteredAt   time.Time  `json:"stage_entered_at"`
	StageDueAt       *time.Time `gorm:"index" json:"stage_due_at"`
	StageSLABreached bool       `gorm:"column:stage_sla_breached;not null;default:false" json:"stage_sla_breached"`

	LastEventSequence int64     `gorm:"not null;default:0" json:"last_event_sequence"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StageFact is an interval row recording a lifecycle's stay in one stage.
// A row is opened when the stage is entered and closed when it is exited.
type StageFact struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AggregateID string     `gorm:"index:idx_stage_fact_open" json:"aggregate_id"`
	CompanyID   string     `gorm:"index" json:"company_id"`
	ProductID   string     `json:"product_id"`
	Stage       string     `json:"stage"`
	EnteredAt   time.Time  `json:"entered_at"`
	ExitedAt    *time.Time `gorm:"index:idx_stage_fact_open" json:"exited_at"`
	ExitReason  string     `json:"exit_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CompanyCaseCounts is the aggregated counter row per company consumed by
// the scoring functions. Rows are only written inside the transaction
// that advances the owning read-model row, so the counters inherit its
// idempotency guard. Decrements saturate at zero so replay gaps can
// never drive a counter negative.
type CompanyCaseCounts struct {
	CompanyID string `gorm:"primaryKey" json:"company_id"`

	OpenTotal    int `gorm:"not null;default:0" json:"open_total"`
	OpenLow      int `gorm:"not null;default:0" json:"open_low"`
	OpenMedium   int `gorm:"not null;default:0" json:"open_medium"`
	OpenHigh     int `gorm:"not null;default:0" json:"open_high"`
	OpenUrgent   int `gorm:"not null;default:0" json:"open_urgent"`
	OpenCritical int `gorm:"not null;default:0" json:"open_critical"`

	NegativeImpact int `gorm:"not null;default:0" json:"negative_impact"`
	CriticalImpact int `gorm:"not null;default:0" json:"critical_impact"`

	FirstResponseBreaches int `gorm:"not null;default:0" json:"first_response_breaches"`
	ResolutionBreaches    int `gorm:"not null;default:0" json:"resolution_breaches"`
	StageBreaches         int `gorm:"not null;default:0" json:"stage_breaches"`

	ResolvedTotal int `gorm:"not null;default:0" json:"resolved_total"`
	ClosedTotal   int `gorm:"not null;default:0" json:"closed_total"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProjectorCheckpoint tracks the highest global sequence each projector
// has durably processed; the resumption point after a restart or crash.
type ProjectorCheckpoint struct {
	ProjectorName string    `gorm:"primaryKey" json:"projector_name"`
	GlobalSeq     int64     `gorm:"not null;default:0" json:"global_seq"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Event{},
		&CaseReadModel{},
		&LifecycleReadModel{},
		&StageFact{},
		&CompanyCaseCounts{},
		&ProjectorCheckpoint{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
