package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/fieldtypes"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// maxOffendingRows bounds how many inconvertible rows a CHANGE_TYPE
// rejection reports. Enough to act on, small enough to return.
const maxOffendingRows = 20

// MigrationExecutor applies one migration operation at a time against both
// the physical table and the field registry, recording every attempt in the
// audit trail. MySQL DDL auto-commits, so ordering is the safety mechanism:
// the PENDING record commits first, backups commit before destructive DDL,
// and the registry update follows the DDL it describes. A crash between
// steps leaves a PENDING record that the reconciliation sweep resolves by
// inspecting the live schema.
type MigrationExecutor struct {
	db         *sql.DB
	txManager  *persistence.TransactionManager
	tables     *TableManager
	forms      *persistence.FormRepository
	migrations *persistence.MigrationRepository
	backups    *BackupService
	generator  *SchemaGenerator
	batchSize  int

	// appliedMu serializes applied-timestamp generation so timestamps are
	// strictly increasing even when the clock does not move between two
	// operations.
	appliedMu   sync.Mutex
	lastApplied time.Time
}

func NewMigrationExecutor(
	db *sql.DB,
	txm *persistence.TransactionManager,
	tables *TableManager,
	forms *persistence.FormRepository,
	migrations *persistence.MigrationRepository,
	backups *BackupService,
	generator *SchemaGenerator,
	batchSize int,
) *MigrationExecutor {
	return &MigrationExecutor{
		db:         db,
		txManager:  txm,
		tables:     tables,
		forms:      forms,
		migrations: migrations,
		backups:    backups,
		generator:  generator,
		batchSize:  batchSize,
	}
}

// Execute runs one operation to a terminal state. The returned record is
// always persisted, APPLIED or FAILED, so the audit trail reflects every
// attempt including rejected ones.
func (e *MigrationExecutor) Execute(ctx context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
	record := &models.MigrationRecord{
		ID:            utils.GenerateMigrationID(),
		FormID:        op.FormID,
		TableName:     op.TableName,
		OperationType: op.Type,
		Status:        constants.MigrationPending,
		CreatedAt:     time.Now(),
	}
	record.BeforeState = marshalField(op.Before)
	record.AfterState = marshalField(op.After)
	if op.Type == constants.OpReorderFields {
		record.AfterState, _ = json.Marshal(op.Ordinals)
	}

	if err := e.migrations.Create(record, nil); err != nil {
		return nil, fmt.Errorf("failed to record migration: %w", err)
	}

	log.Printf("🚀 Executing %s on `%s` (migration %s)", op.Type, op.TableName, record.ID)

	applyErr := e.apply(ctx, &op, record)

	status := constants.MigrationApplied
	errMsg := ""
	if applyErr != nil {
		status = constants.MigrationFailed
		errMsg = applyErr.Error()
		log.Printf("❌ %s on `%s` failed: %v", op.Type, op.TableName, applyErr)
	} else {
		log.Printf("✅ %s on `%s` applied (migration %s)", op.Type, op.TableName, record.ID)
	}

	appliedAt := e.nextAppliedAt()
	if err := e.migrations.Finish(record.ID, status, errMsg, appliedAt, nil); err != nil {
		log.Printf("⚠️ Failed to finalize migration %s: %v", record.ID, err)
		if applyErr == nil {
			applyErr = err
			status = constants.MigrationFailed
		}
	}
	record.Status = status
	record.Error = errMsg
	record.AppliedAt = &appliedAt

	return record, applyErr
}

func (e *MigrationExecutor) apply(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	switch op.Type {
	case constants.OpAddField:
		return e.applyAdd(ctx, op, record)
	case constants.OpDeleteField:
		return e.applyDelete(ctx, op, record)
	case constants.OpRenameField:
		return e.applyRename(ctx, op, record)
	case constants.OpChangeType:
		return e.applyChangeType(ctx, op, record)
	case constants.OpReorderFields:
		return e.applyReorder(ctx, op, record)
	}
	return apperrors.NewValidationError("type", fmt.Sprintf("unknown operation type %q", op.Type))
}

func (e *MigrationExecutor) applyAdd(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	field := op.After
	if field == nil {
		return apperrors.NewValidationError("after", "ADD_FIELD without a field definition")
	}

	existing, err := e.liveColumnSet(ctx, op.TableName)
	if err != nil {
		return err
	}

	name, _, err := e.generator.ResolveColumnName(ctx, field.NativeLabel, existing)
	if err != nil {
		return err
	}
	field.ColumnName = name

	// Persist the resolved name into the audit entry before DDL so the
	// record names the column that actually gets created.
	record.AfterState = marshalField(field)
	if err := e.migrations.UpdateStates(record.ID, record.BeforeState, record.AfterState, nil); err != nil {
		return err
	}

	sqlType := fieldtypes.GetSQLType(string(field.LogicalType))
	if sqlType == "" {
		return apperrors.NewValidationError("logicalType", fmt.Sprintf("unknown field type %q", field.LogicalType))
	}

	if err := e.tables.AddColumn(ctx, op.TableName, name, sqlType); err != nil {
		return err
	}

	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.SaveField(op.FormID, field, tx)
	})
}

func (e *MigrationExecutor) applyDelete(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	field := op.Before
	if field == nil || field.ColumnName == "" {
		return apperrors.NewValidationError("before", "DELETE_FIELD without a resolved column")
	}

	populated, err := e.columnHasData(ctx, op.TableName, field.ColumnName)
	if err != nil {
		return err
	}

	if populated {
		record.Status = constants.MigrationBackingUp
		sqlType := fieldtypes.GetSQLType(string(field.LogicalType))
		backupID, err := e.backups.Snapshot(ctx, record.ID, op.TableName, field.ColumnName, sqlType, string(field.LogicalType))
		if err != nil {
			// No backup, no drop.
			return err
		}
		record.BackupID = &backupID
		if err := e.migrations.SetBackup(record.ID, backupID, nil); err != nil {
			return err
		}
	}

	record.Status = constants.MigrationApplying
	if err := e.tables.DropColumn(ctx, op.TableName, field.ColumnName); err != nil {
		return err
	}

	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.DeleteField(field.ID, tx)
	})
}

func (e *MigrationExecutor) applyRename(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	before, after := op.Before, op.After
	if before == nil || after == nil || before.ColumnName == "" {
		return apperrors.NewValidationError("before", "RENAME_FIELD without both sides resolved")
	}

	existing, err := e.liveColumnSet(ctx, op.TableName)
	if err != nil {
		return err
	}
	delete(existing, before.ColumnName)

	newName, _, err := e.generator.ResolveColumnName(ctx, after.NativeLabel, existing)
	if err != nil {
		return err
	}
	after.ColumnName = newName

	record.AfterState = marshalField(after)
	if err := e.migrations.UpdateStates(record.ID, record.BeforeState, record.AfterState, nil); err != nil {
		return err
	}

	if newName != before.ColumnName {
		if err := e.tables.RenameColumn(ctx, op.TableName, before.ColumnName, newName); err != nil {
			return err
		}
	}

	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.SaveField(op.FormID, after, tx)
	})
}

func (e *MigrationExecutor) applyChangeType(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	before, after := op.Before, op.After
	if before == nil || after == nil || before.ColumnName == "" {
		return apperrors.NewValidationError("before", "CHANGE_TYPE without both sides resolved")
	}
	after.ColumnName = before.ColumnName

	targetType := string(after.LogicalType)
	targetSQL := fieldtypes.GetSQLType(targetType)
	if targetSQL == "" {
		return apperrors.NewValidationError("logicalType", fmt.Sprintf("unknown field type %q", targetType))
	}

	// Every existing value must be representable in the target type before
	// any DDL runs. One bad row rejects the whole operation.
	if fieldtypes.ConversionNeedsScan(string(before.LogicalType), targetType) {
		offending, err := e.scanForInconvertible(ctx, op.TableName, before.ColumnName, targetType)
		if err != nil {
			return err
		}
		if len(offending) > 0 {
			return &apperrors.IncompatibleTypeChangeError{
				TableName:  op.TableName,
				ColumnName: before.ColumnName,
				TargetType: targetType,
				Rows:       offending,
			}
		}
	}

	if op.IsDestructive() {
		record.Status = constants.MigrationBackingUp
		sourceSQL := fieldtypes.GetSQLType(string(before.LogicalType))
		backupID, err := e.backups.Snapshot(ctx, record.ID, op.TableName, before.ColumnName, sourceSQL, string(before.LogicalType))
		if err != nil {
			return err
		}
		record.BackupID = &backupID
		if err := e.migrations.SetBackup(record.ID, backupID, nil); err != nil {
			return err
		}
	}

	record.Status = constants.MigrationApplying
	if err := e.tables.ModifyColumnType(ctx, op.TableName, before.ColumnName, targetSQL); err != nil {
		return err
	}

	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.SaveField(op.FormID, after, tx)
	})
}

// applyReorder touches the registry only; column order inside MySQL is
// irrelevant to presentation. The prior ordinals go into the before-state so
// the reorder can be rolled back.
func (e *MigrationExecutor) applyReorder(ctx context.Context, op *models.MigrationOperation, record *models.MigrationRecord) error {
	if len(op.Ordinals) == 0 {
		return apperrors.NewValidationError("ordinals", "REORDER_FIELDS without ordinals")
	}

	fields, err := e.forms.GetFields(ctx, op.FormID)
	if err != nil {
		return err
	}
	prior := make(map[string]int, len(op.Ordinals))
	for _, f := range fields {
		if _, moved := op.Ordinals[f.ID]; moved {
			prior[f.ID] = f.Ordinal
		}
	}
	record.BeforeState, _ = json.Marshal(prior)
	if err := e.migrations.UpdateStates(record.ID, record.BeforeState, record.AfterState, nil); err != nil {
		return err
	}

	return e.txManager.WithTransaction(func(tx *sql.Tx) error {
		return e.forms.UpdateFieldOrdinals(op.Ordinals, tx)
	})
}

func (e *MigrationExecutor) scanForInconvertible(ctx context.Context, tableName, columnName, targetType string) ([]apperrors.OffendingRow, error) {
	var offending []apperrors.OffendingRow
	err := e.tables.ScanColumnValues(ctx, tableName, columnName, e.batchSize, func(ids []string, values []*string) error {
		for i := range ids {
			if values[i] == nil {
				continue
			}
			if err := fieldtypes.ParseValue(targetType, *values[i]); err != nil {
				if len(offending) < maxOffendingRows {
					offending = append(offending, apperrors.OffendingRow{RowID: ids[i], Value: *values[i]})
				}
			}
		}
		return nil
	})
	return offending, err
}

func (e *MigrationExecutor) columnHasData(ctx context.Context, tableName, columnName string) (bool, error) {
	if err := validateIdentifier(tableName); err != nil {
		return false, err
	}
	if err := validateIdentifier(columnName); err != nil {
		return false, err
	}
	var count int
	q := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `%s` IS NOT NULL", tableName, columnName)
	if err := e.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e *MigrationExecutor) liveColumnSet(ctx context.Context, tableName string) (map[string]bool, error) {
	cols, err := e.tables.GetTableColumns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, apperrors.NewNotFoundError("table", tableName)
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c.ColumnName] = true
	}
	return set, nil
}

// nextAppliedAt returns a timestamp strictly greater than any previously
// issued one, so a form's history totally orders by applied time.
func (e *MigrationExecutor) nextAppliedAt() time.Time {
	e.appliedMu.Lock()
	defer e.appliedMu.Unlock()
	now := time.Now()
	if !now.After(e.lastApplied) {
		now = e.lastApplied.Add(time.Microsecond)
	}
	e.lastApplied = now
	return now
}

func marshalField(f *models.FieldDefinition) json.RawMessage {
	if f == nil {
		return nil
	}
	raw, _ := json.Marshal(f)
	return raw
}
