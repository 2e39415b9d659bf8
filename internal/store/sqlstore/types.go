// Package sqlstore is a gorm.io/gorm-backed ObjectStore: one table per
// EntityKind, a JSON payload column, and a SyncedAt column stamped on
// every write via gorm:"autoUpdateTime".
package sqlstore

import (
	"time"

	"gorm.io/datatypes"
)

// Record is the one-table-per-kind row shape. Every EntityKind is stored
// in its own physical table (tableNameFor); the table name itself
// carries the kind dimension since no query ever spans kinds.
type Record struct {
	ID        string `gorm:"primaryKey;size:191"`
	ProjectID string `gorm:"size:191;index:idx_project_id"`
	OwnerID   string `gorm:"size:191;index:idx_owner_id"`
	Object    datatypes.JSON `gorm:"not null"`
	SyncedAt  time.Time      `gorm:"not null;autoUpdateTime"`
}
