package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/fieldtypes"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// Rollback reverses an APPLIED migration. The reversal is itself a new audit
// entry; the original record moves to ROLLED_BACK only after the inverse
// operation lands. Column names are reinstated exactly as recorded, never
// re-resolved, so a rollback restores the schema the record describes.
func (e *MigrationExecutor) Rollback(ctx context.Context, migrationID string) (*models.MigrationRecord, error) {
	original, err := e.migrations.GetByID(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	if original.Status != constants.MigrationApplied {
		return nil, apperrors.NewConflictError("migration", "status", string(original.Status))
	}

	inverse := &models.MigrationRecord{
		ID:            utils.GenerateMigrationID(),
		FormID:        original.FormID,
		TableName:     original.TableName,
		OperationType: original.OperationType,
		BeforeState:   original.AfterState,
		AfterState:    original.BeforeState,
		Status:        constants.MigrationPending,
		CreatedAt:     time.Now(),
	}
	if err := e.migrations.Create(inverse, nil); err != nil {
		return nil, fmt.Errorf("failed to record rollback: %w", err)
	}

	log.Printf("⏪ Rolling back %s on `%s` (migration %s)", original.OperationType, original.TableName, migrationID)

	rollbackErr := e.applyInverse(ctx, original, inverse)

	status := constants.MigrationApplied
	errMsg := ""
	if rollbackErr != nil && !apperrors.IsPartialRestore(rollbackErr) {
		status = constants.MigrationFailed
		errMsg = rollbackErr.Error()
		log.Printf("❌ Rollback of %s failed: %v", migrationID, rollbackErr)
	}

	appliedAt := e.nextAppliedAt()
	if err := e.migrations.Finish(inverse.ID, status, errMsg, appliedAt, nil); err != nil {
		log.Printf("⚠️ Failed to finalize rollback record %s: %v", inverse.ID, err)
	}
	inverse.Status = status
	inverse.Error = errMsg
	inverse.AppliedAt = &appliedAt

	if status == constants.MigrationApplied {
		if err := e.migrations.Finish(original.ID, constants.MigrationRolledBack, "", e.nextAppliedAt(), nil); err != nil {
			log.Printf("⚠️ Failed to mark %s as rolled back: %v", original.ID, err)
		}
		log.Printf("✅ Migration %s rolled back", migrationID)
	}

	return inverse, rollbackErr
}

func (e *MigrationExecutor) applyInverse(ctx context.Context, original, inverse *models.MigrationRecord) error {
	before, err := original.BeforeField()
	if err != nil {
		return err
	}
	after, err := original.AfterField()
	if err != nil {
		return err
	}

	switch original.OperationType {
	case constants.OpAddField:
		// Undo an add by dropping the column, snapshotting any data it
		// collected in the meantime.
		if after == nil || after.ColumnName == "" {
			return apperrors.NewValidationError("afterState", "record carries no column to drop")
		}
		populated, err := e.columnHasData(ctx, original.TableName, after.ColumnName)
		if err != nil {
			return err
		}
		if populated {
			sqlType := fieldtypes.GetSQLType(string(after.LogicalType))
			backupID, err := e.backups.Snapshot(ctx, inverse.ID, original.TableName, after.ColumnName, sqlType, string(after.LogicalType))
			if err != nil {
				return err
			}
			inverse.BackupID = &backupID
			if err := e.migrations.SetBackup(inverse.ID, backupID, nil); err != nil {
				return err
			}
		}
		if err := e.tables.DropColumn(ctx, original.TableName, after.ColumnName); err != nil {
			return err
		}
		return e.txManager.WithTransaction(func(tx *sql.Tx) error {
			return e.forms.DeleteField(after.ID, tx)
		})

	case constants.OpDeleteField:
		// Undo a delete by re-creating the column and pouring the backup in.
		if before == nil || before.ColumnName == "" {
			return apperrors.NewValidationError("beforeState", "record carries no column to restore")
		}
		sqlType := fieldtypes.GetSQLType(string(before.LogicalType))
		if original.BackupID != nil {
			if _, err := e.backups.Restore(ctx, *original.BackupID); err != nil && !apperrors.IsPartialRestore(err) {
				return err
			} else if err != nil {
				// Partial restores still reinstate the field; report after.
				if regErr := e.reinstateField(original.FormID, before); regErr != nil {
					return regErr
				}
				return err
			}
		} else {
			if err := e.tables.EnsureColumn(ctx, original.TableName, before.ColumnName, sqlType); err != nil {
				return err
			}
		}
		return e.reinstateField(original.FormID, before)

	case constants.OpRenameField:
		if before == nil || after == nil {
			return apperrors.NewValidationError("beforeState", "record carries no rename states")
		}
		if before.ColumnName != after.ColumnName {
			if err := e.tables.RenameColumn(ctx, original.TableName, after.ColumnName, before.ColumnName); err != nil {
				return err
			}
		}
		return e.reinstateField(original.FormID, before)

	case constants.OpChangeType:
		if before == nil || after == nil || before.ColumnName == "" {
			return apperrors.NewValidationError("beforeState", "record carries no type states")
		}
		sourceSQL := fieldtypes.GetSQLType(string(before.LogicalType))
		if err := e.tables.ModifyColumnType(ctx, original.TableName, before.ColumnName, sourceSQL); err != nil {
			return err
		}
		if original.BackupID != nil {
			if _, err := e.backups.Restore(ctx, *original.BackupID); err != nil && !apperrors.IsPartialRestore(err) {
				return err
			}
		}
		return e.reinstateField(original.FormID, before)

	case constants.OpReorderFields:
		var prior map[string]int
		if err := json.Unmarshal(original.BeforeState, &prior); err != nil {
			return fmt.Errorf("record carries no prior ordinals: %w", err)
		}
		return e.txManager.WithTransaction(func(tx *sql.Tx) error {
			return e.forms.UpdateFieldOrdinals(prior, tx)
		})
	}

	return apperrors.NewValidationError("operationType", fmt.Sprintf("cannot roll back %q", original.OperationType))
}

func (e *MigrationExecutor) reinstateField(formID string, field *models.FieldDefinition) error {
	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.SaveField(formID, field, tx)
	})
}

// Reconcile resolves PENDING records older than the cutoff by comparing the
// audit entry against the live schema. A record is stale-PENDING only after
// a crash between the record insert and the terminal update; the schema
// tells us which side of the DDL the crash fell on.
func (e *MigrationExecutor) Reconcile(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := e.migrations.ListPendingOlderThan(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range stale {
		landed, probeErr := e.ddlLanded(ctx, rec)
		if probeErr != nil {
			log.Printf("⚠️ Cannot reconcile migration %s: %v", rec.ID, probeErr)
			continue
		}

		status := constants.MigrationFailed
		errMsg := "resolved by reconciliation: operation never reached the database"
		if landed {
			status = constants.MigrationApplied
			errMsg = ""
			e.repairRegistry(rec)
		}

		if err := e.migrations.Finish(rec.ID, status, errMsg, e.nextAppliedAt(), nil); err != nil {
			log.Printf("⚠️ Failed to reconcile migration %s: %v", rec.ID, err)
			continue
		}
		log.Printf("🔧 Reconciled stale migration %s -> %s", rec.ID, status)
		resolved++
	}
	return resolved, nil
}

// ddlLanded probes the live schema for evidence that a record's DDL executed
func (e *MigrationExecutor) ddlLanded(ctx context.Context, rec *models.MigrationRecord) (bool, error) {
	before, err := rec.BeforeField()
	if err != nil {
		return false, err
	}
	after, err := rec.AfterField()
	if err != nil {
		return false, err
	}

	switch rec.OperationType {
	case constants.OpAddField:
		if after == nil || after.ColumnName == "" {
			// Crashed before name resolution; nothing can have executed.
			return false, nil
		}
		return e.tables.ColumnExists(ctx, rec.TableName, after.ColumnName)

	case constants.OpDeleteField:
		if before == nil || before.ColumnName == "" {
			return false, fmt.Errorf("record %s has no before column", rec.ID)
		}
		exists, err := e.tables.ColumnExists(ctx, rec.TableName, before.ColumnName)
		return !exists, err

	case constants.OpRenameField:
		if before == nil || after == nil || after.ColumnName == "" {
			return false, nil
		}
		newExists, err := e.tables.ColumnExists(ctx, rec.TableName, after.ColumnName)
		if err != nil {
			return false, err
		}
		if before.ColumnName == after.ColumnName {
			return newExists, nil
		}
		oldExists, err := e.tables.ColumnExists(ctx, rec.TableName, before.ColumnName)
		return newExists && !oldExists, err

	case constants.OpChangeType:
		if after == nil || after.ColumnName == "" {
			return false, nil
		}
		cols, err := e.tables.GetTableColumns(ctx, rec.TableName)
		if err != nil {
			return false, err
		}
		target := strings.ToLower(fieldtypes.GetSQLType(string(after.LogicalType)))
		for _, c := range cols {
			if c.ColumnName == after.ColumnName {
				return strings.HasPrefix(strings.ToLower(c.SQLType), baseSQLType(target)), nil
			}
		}
		return false, nil

	case constants.OpReorderFields:
		// Registry-only and transactional: a stale PENDING means the
		// transaction either committed or it did not. Compare ordinals.
		var want map[string]int
		if err := json.Unmarshal(rec.AfterState, &want); err != nil || len(want) == 0 {
			return false, nil
		}
		fields, err := e.forms.GetFields(ctx, rec.FormID)
		if err != nil {
			return false, err
		}
		for _, f := range fields {
			if ord, ok := want[f.ID]; ok && f.Ordinal != ord {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

// repairRegistry re-syncs the field registry for a record whose DDL landed
// but whose registry write may not have
func (e *MigrationExecutor) repairRegistry(rec *models.MigrationRecord) {
	switch rec.OperationType {
	case constants.OpAddField, constants.OpRenameField, constants.OpChangeType:
		after, err := rec.AfterField()
		if err != nil || after == nil {
			return
		}
		if err := e.reinstateField(rec.FormID, after); err != nil {
			log.Printf("⚠️ Failed to repair registry for migration %s: %v", rec.ID, err)
		}
	case constants.OpDeleteField:
		before, err := rec.BeforeField()
		if err != nil || before == nil {
			return
		}
		if err := e.txManager.WithTransaction(func(tx *sql.Tx) error {
			return e.forms.DeleteField(before.ID, tx)
		}); err != nil {
			log.Printf("⚠️ Failed to repair registry for migration %s: %v", rec.ID, err)
		}
	}
}

// baseSQLType strips the length suffix: VARCHAR(255) -> varchar
func baseSQLType(sqlType string) string {
	if i := strings.Index(sqlType, "("); i > 0 {
		return sqlType[:i]
	}
	return sqlType
}
