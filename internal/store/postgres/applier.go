package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/orbitalpay/scheduler/internal/drainer"
)

// Applier applies write-buffer entries against arbitrary primary-store
// tables using gorm's untyped Table() API, since the drainer's mutations
// target whatever table the rest of the platform deferred a write for
// (SPEC_FULL.md §3), not just scheduler_tasks.
type Applier struct {
	db *gorm.DB
}

func NewApplier(db *gorm.DB) *Applier {
	return &Applier{db: db}
}

var _ drainer.Applier = (*Applier)(nil)

// Apply decodes the entry's JSON payload into a column map and performs an
// insert, update, or delete against the named table, keyed by "id". Updates
// and deletes are conditional on the payload's own id column, so a
// redelivered entry after a crash between apply and trim is a no-op rather
// than a double-write.
func (a *Applier) Apply(ctx context.Context, entry drainer.Entry) error {
	var row map[string]interface{}
	if err := json.Unmarshal(entry.Payload, &row); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	table := a.db.WithContext(ctx).Table(entry.Table)

	switch entry.Operation {
	case "insert":
		return table.Create(row).Error
	case "update":
		id, ok := row["id"]
		if !ok {
			return fmt.Errorf("update entry missing id column")
		}
		delete(row, "id")
		return table.Where("id = ?", id).Updates(row).Error
	case "delete":
		id, ok := row["id"]
		if !ok {
			return fmt.Errorf("delete entry missing id column")
		}
		return table.Where("id = ?", id).Delete(nil).Error
	default:
		return fmt.Errorf("unknown write-buffer operation %q", entry.Operation)
	}
}
