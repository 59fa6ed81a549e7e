package projections

import (
	"context"

	"gorm.io/gorm"
)

// TableWriter is the write capability for projection-owned tables. Only
// the worker wiring constructs one; the command and HTTP layers are
// never handed a TableWriter, so a write to a read-model table from
// outside this package does not typecheck. Read models stay derived
// views that any replay can rebuild.
type TableWriter struct {
	db *gorm.DB
}

// NewTableWriter wraps a database handle as a projection write capability
func NewTableWriter(db *gorm.DB) TableWriter {
	return TableWriter{db: db}
}

func (w TableWriter) conn(ctx context.Context) *gorm.DB {
	return w.db.WithContext(ctx)
}
