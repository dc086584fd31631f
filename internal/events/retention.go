package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// DeleteOlderThan removes visits and events created before cutoff in
// batches of batchSize. It returns the number of rows removed.
func DeleteOlderThan(db *gorm.DB, logger *slog.Logger, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for _, model := range []any{&Visit{}, &Event{}} {
		deleted, err := deleteInBatches(db, logger, model, cutoff.UTC(), batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func deleteInBatches(db *gorm.DB, logger *slog.Logger, model any, cutoff time.Time, batchSize int) (int64, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return 0, fmt.Errorf("failed to resolve table: %w", err)
	}
	table := stmt.Schema.Table

	var total int64
	for {
		var affected int64
		err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			result := tx.Exec(
				"DELETE FROM "+table+" WHERE id IN (SELECT id FROM "+table+" WHERE created_at < ? LIMIT ?)",
				cutoff, batchSize)
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return total, fmt.Errorf("failed to delete old rows from %s: %w", table, err)
		}

		total += affected
		if affected < int64(batchSize) {
			return total, nil
		}

		// Give concurrent writers a chance between batches.
		time.Sleep(100 * time.Millisecond)
	}
}
