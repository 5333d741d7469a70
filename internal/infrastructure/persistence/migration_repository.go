package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// MigrationRepository persists the immutable migration audit trail.
// Records are inserted once, moved to a terminal status once, and never
// deleted.
type MigrationRepository struct {
	db *sql.DB
}

// NewMigrationRepository creates a new MigrationRepository
func NewMigrationRepository(db *sql.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// Create inserts a new record. The caller commits this before any DDL runs
// so a crash always leaves a visible PENDING entry.
func (r *MigrationRepository) Create(record *models.MigrationRecord, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, form_id, table_name, operation_type, before_state, after_state,
			backup_id, status, error, created_date, applied_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, constants.TableMigration)

	_, err := exec.Exec(query,
		record.ID, record.FormID, record.TableName, string(record.OperationType),
		rawOrNil(record.BeforeState), rawOrNil(record.AfterState),
		record.BackupID, string(record.Status), record.Error, record.CreatedAt)
	return err
}

// UpdateStates rewrites the before/after snapshots of a still-PENDING record.
// The executor uses this once identifier resolution has filled in the final
// column name, so the audit trail carries the name that actually hit the
// database. Terminal records are never touched.
func (r *MigrationRepository) UpdateStates(migrationID string, before, after []byte, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("UPDATE %s SET before_state = ?, after_state = ? WHERE id = ? AND status = ?",
		constants.TableMigration)
	_, err := exec.Exec(query, rawOrNil(before), rawOrNil(after), migrationID, string(constants.MigrationPending))
	return err
}

// SetBackup attaches the backup reference once the snapshot is persisted
func (r *MigrationRepository) SetBackup(migrationID, backupID string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("UPDATE %s SET backup_id = ? WHERE id = ?", constants.TableMigration)
	_, err := exec.Exec(query, backupID, migrationID)
	return err
}

// Finish moves a record to a terminal status with its applied timestamp
func (r *MigrationRepository) Finish(migrationID string, status constants.MigrationStatus, errMsg string, appliedAt time.Time, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	if !status.IsTerminal() {
		return fmt.Errorf("refusing to finish migration %s with non-terminal status %s", migrationID, status)
	}
	query := fmt.Sprintf("UPDATE %s SET status = ?, error = ?, applied_date = ? WHERE id = ?", constants.TableMigration)
	_, err := exec.Exec(query, string(status), errMsg, appliedAt, migrationID)
	return err
}

// GetByID loads one migration record
func (r *MigrationRepository) GetByID(ctx context.Context, migrationID string) (*models.MigrationRecord, error) {
	query := selectMigrationColumns() + " WHERE id = ?"
	record, err := r.scanOne(r.db.QueryRowContext(ctx, query, migrationID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("migration", migrationID)
	}
	return record, err
}

// ListByForm returns a form's full migration history, newest first
func (r *MigrationRepository) ListByForm(ctx context.Context, formID string) ([]*models.MigrationRecord, error) {
	query := selectMigrationColumns() + " WHERE form_id = ? ORDER BY created_date DESC, id DESC"
	return r.scanMany(ctx, query, formID)
}

// ListPendingOlderThan returns PENDING records stale enough for the
// reconciliation sweep to resolve.
func (r *MigrationRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*models.MigrationRecord, error) {
	query := selectMigrationColumns() + " WHERE status = ? AND created_date < ? ORDER BY created_date"
	return r.scanMany(ctx, query, string(constants.MigrationPending), cutoff)
}

func selectMigrationColumns() string {
	return fmt.Sprintf(`
		SELECT id, form_id, table_name, operation_type, before_state, after_state,
			backup_id, status, COALESCE(error, ''), created_date, applied_date
		FROM %s`, constants.TableMigration)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *MigrationRepository) scanOne(row rowScanner) (*models.MigrationRecord, error) {
	var rec models.MigrationRecord
	var opType, status string
	var before, after sql.NullString
	var backupID sql.NullString
	var appliedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.FormID, &rec.TableName, &opType, &before, &after,
		&backupID, &status, &rec.Error, &rec.CreatedAt, &appliedAt)
	if err != nil {
		return nil, err
	}

	rec.OperationType = constants.MigrationOperationType(opType)
	rec.Status = constants.MigrationStatus(status)
	if before.Valid {
		rec.BeforeState = []byte(before.String)
	}
	if after.Valid {
		rec.AfterState = []byte(after.String)
	}
	if backupID.Valid {
		rec.BackupID = &backupID.String
	}
	if appliedAt.Valid {
		rec.AppliedAt = &appliedAt.Time
	}
	return &rec, nil
}

func (r *MigrationRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]*models.MigrationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.MigrationRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func rawOrNil(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
