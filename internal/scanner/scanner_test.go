package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/northstar/services/custops/internal/models"
)

var scanNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func overdueAt() *time.Time {
	return timePtr(scanNow.Add(-2 * time.Hour))
}

func notDueAt() *time.Time {
	return timePtr(scanNow.Add(2 * time.Hour))
}

func TestFirstResponseOverdue(t *testing.T) {
	tests := []struct {
		name string
		row  models.CaseReadModel
		want bool
	}{
		{
			name: "due time passed, no response",
			row:  models.CaseReadModel{FirstResponseDueAt: overdueAt()},
			want: true,
		},
		{
			name: "no due time recorded",
			row:  models.CaseReadModel{},
			want: false,
		},
		{
			name: "not yet due",
			row:  models.CaseReadModel{FirstResponseDueAt: notDueAt()},
			want: false,
		},
		{
			name: "response already sent",
			row: models.CaseReadModel{
				FirstResponseDueAt: overdueAt(),
				FirstResponseAt:    timePtr(scanNow.Add(-time.Hour)),
			},
			want: false,
		},
		{
			name: "already flagged",
			row: models.CaseReadModel{
				FirstResponseDueAt:    overdueAt(),
				FirstResponseBreached: true,
			},
			want: false,
		},
		{
			name: "case closed",
			row: models.CaseReadModel{
				FirstResponseDueAt: overdueAt(),
				IsClosed:           true,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, firstResponseOverdue(tt.row, scanNow))
		})
	}
}

func TestResolutionOverdue(t *testing.T) {
	tests := []struct {
		name string
		row  models.CaseReadModel
		want bool
	}{
		{
			name: "due time passed, unresolved",
			row:  models.CaseReadModel{ResolutionDueAt: overdueAt()},
			want: true,
		},
		{
			name: "no due time recorded",
			row:  models.CaseReadModel{},
			want: false,
		},
		{
			name: "not yet due",
			row:  models.CaseReadModel{ResolutionDueAt: notDueAt()},
			want: false,
		},
		{
			name: "already resolved",
			row: models.CaseReadModel{
				ResolutionDueAt: overdueAt(),
				ResolvedAt:      timePtr(scanNow.Add(-time.Hour)),
			},
			want: false,
		},
		{
			name: "already flagged",
			row: models.CaseReadModel{
				ResolutionDueAt:    overdueAt(),
				ResolutionBreached: true,
			},
			want: false,
		},
		{
			name: "case closed",
			row: models.CaseReadModel{
				ResolutionDueAt: overdueAt(),
				IsClosed:        true,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resolutionOverdue(tt.row, scanNow))
		})
	}
}

func TestStageOverdue(t *testing.T) {
	tests := []struct {
		name string
		row  models.LifecycleReadModel
		want bool
	}{
		{
			name: "stage due time passed",
			row:  models.LifecycleReadModel{StageDueAt: overdueAt()},
			want: true,
		},
		{
			name: "no stage SLA",
			row:  models.LifecycleReadModel{},
			want: false,
		},
		{
			name: "not yet due",
			row:  models.LifecycleReadModel{StageDueAt: notDueAt()},
			want: false,
		},
		{
			name: "current stage already flagged",
			row: models.LifecycleReadModel{
				StageDueAt:       overdueAt(),
				StageSLABreached: true,
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, stageOverdue(tt.row, scanNow))
		})
	}
}
