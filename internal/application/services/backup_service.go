package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// BackupService snapshots column data before destructive operations and
// restores it during rollback. Snapshots are written inside a single
// transaction: either the backup exists completely or not at all, and a
// failed snapshot aborts the destructive operation that requested it.
type BackupService struct {
	db        *sql.DB
	txManager *persistence.TransactionManager
	backups   *persistence.BackupRepository
	tables    *TableManager
	batchSize int
	retention time.Duration
}

func NewBackupService(db *sql.DB, txm *persistence.TransactionManager, backups *persistence.BackupRepository, tables *TableManager, batchSize int, retention time.Duration) *BackupService {
	return &BackupService{
		db:        db,
		txManager: txm,
		backups:   backups,
		tables:    tables,
		batchSize: batchSize,
		retention: retention,
	}
}

// Snapshot copies every {rowId, value} pair of one column into backup
// storage and returns the backup ID. Values are read as strings (CAST AS
// CHAR) so a restore can write them back regardless of the column's type at
// restore time.
func (s *BackupService) Snapshot(ctx context.Context, migrationID, tableName, columnName, columnType, logicalType string) (string, error) {
	backup := &models.ColumnBackup{
		ID:          utils.GenerateBackupID(),
		MigrationID: migrationID,
		TableName:   tableName,
		ColumnName:  columnName,
		ColumnType:  columnType,
		LogicalType: logicalType,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(s.retention),
	}

	log.Printf("💾 Backing up `%s`.`%s` (migration %s)", tableName, columnName, migrationID)

	total := 0
	err := s.txManager.WithTransaction(func(tx *sql.Tx) error {
		if err := s.backups.CreateBackup(backup, tx); err != nil {
			return err
		}

		seq := 0
		err := s.tables.ScanColumnValues(ctx, tableName, columnName, s.batchSize, func(ids []string, values []*string) error {
			batch := make([]models.BackupRow, len(ids))
			for i := range ids {
				batch[i] = models.BackupRow{RowRef: ids[i], Value: values[i], Seq: seq}
				seq++
			}
			total += len(batch)
			return s.backups.InsertRows(backup.ID, batch, tx)
		})
		if err != nil {
			return err
		}

		return s.backups.UpdateRowCount(backup.ID, total, tx)
	})
	if err != nil {
		return "", &apperrors.BackupFailureError{TableName: tableName, ColumnName: columnName, Cause: err}
	}

	log.Printf("✅ Backup %s: %d row(s) of `%s`.`%s`", backup.ID, total, tableName, columnName)
	return backup.ID, nil
}

// Restore writes a backup's values back into its source table, re-adding the
// column with its recorded type if it no longer exists. Rows that were
// deleted since the snapshot are skipped; live rows with no backed-up value
// are reported through PartialRestoreError after the restore completes.
func (s *BackupService) Restore(ctx context.Context, backupID string) (int, error) {
	backup, err := s.backups.GetBackup(ctx, backupID)
	if err != nil {
		return 0, err
	}

	if err := s.tables.EnsureColumn(ctx, backup.TableName, backup.ColumnName, backup.ColumnType); err != nil {
		return 0, fmt.Errorf("failed to re-create column for restore: %w", err)
	}

	log.Printf("⏪ Restoring backup %s into `%s`.`%s` (%d row(s))",
		backupID, backup.TableName, backup.ColumnName, backup.RowCount)

	restored := 0
	backedUp := make(map[string]bool, backup.RowCount)

	updateSQL := fmt.Sprintf("UPDATE `%s` SET `%s` = ? WHERE `id` = ?", backup.TableName, backup.ColumnName)

	offset := 0
	for {
		rows, err := s.backups.GetRowsBatch(ctx, backupID, offset, s.batchSize)
		if err != nil {
			return restored, err
		}
		if len(rows) == 0 {
			break
		}

		err = s.txManager.WithTransaction(func(tx *sql.Tx) error {
			for _, row := range rows {
				res, err := tx.Exec(updateSQL, row.Value, row.RowRef)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n > 0 {
					restored++
				}
				backedUp[row.RowRef] = true
			}
			return nil
		})
		if err != nil {
			return restored, fmt.Errorf("restore of backup %s failed: %w", backupID, err)
		}

		if len(rows) < s.batchSize {
			break
		}
		offset += s.batchSize
	}

	missed, err := s.findUncoveredRows(ctx, backup.TableName, backedUp)
	if err != nil {
		return restored, err
	}

	log.Printf("✅ Restore %s complete: %d row(s) restored, %d live row(s) without backup",
		backupID, restored, len(missed))

	if len(missed) > 0 {
		return restored, &apperrors.PartialRestoreError{
			BackupID:     backupID,
			RestoredRows: restored,
			MissedRowIDs: missed,
		}
	}
	return restored, nil
}

// findUncoveredRows lists live row IDs that had no counterpart in the backup,
// i.e. rows inserted after the snapshot was taken.
func (s *BackupService) findUncoveredRows(ctx context.Context, tableName string, backedUp map[string]bool) ([]string, error) {
	var missed []string
	err := s.tables.ScanColumnValues(ctx, tableName, "id", s.batchSize, func(ids []string, _ []*string) error {
		for _, id := range ids {
			if !backedUp[id] {
				missed = append(missed, id)
			}
		}
		return nil
	})
	return missed, err
}

// SweepExpired deletes backups past their retention window whose migration
// reached a terminal state. Runs from the maintenance scheduler.
func (s *BackupService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.backups.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range expired {
		err := s.txManager.WithTransaction(func(tx *sql.Tx) error {
			return s.backups.Delete(id, tx)
		})
		if err != nil {
			log.Printf("⚠️ Failed to delete expired backup %s: %v", id, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Printf("🧹 Deleted %d expired backup(s)", deleted)
	}
	return deleted, nil
}
