package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// BackupRepository persists column snapshots. Row values live one-per-row
// in _system_backup_row so snapshot and restore can stream in batches
// instead of materializing whole columns in memory.
type BackupRepository struct {
	db *sql.DB
}

// NewBackupRepository creates a new BackupRepository
func NewBackupRepository(db *sql.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

// CreateBackup inserts the backup header row
func (r *BackupRepository) CreateBackup(backup *models.ColumnBackup, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, migration_id, table_name, column_name, column_type,
			logical_type, row_count, created_date, expires_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, constants.TableBackup)
	_, err := exec.Exec(query,
		backup.ID, backup.MigrationID, backup.TableName, backup.ColumnName,
		backup.ColumnType, backup.LogicalType, backup.RowCount,
		backup.CreatedAt, backup.ExpiresAt)
	return err
}

// InsertRows batch-inserts one snapshot batch in a single statement
func (r *BackupRepository) InsertRows(backupID string, rows []models.BackupRow, exec Executor) error {
	if len(rows) == 0 {
		return nil
	}
	if exec == nil {
		exec = r.db
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	for _, row := range rows {
		placeholders = append(placeholders, "(?, ?, ?, ?)")
		args = append(args, backupID, row.RowRef, row.Value, row.Seq)
	}

	query := fmt.Sprintf("INSERT INTO %s (backup_id, row_ref, value, seq) VALUES %s",
		constants.TableBackupRow, strings.Join(placeholders, ", "))
	_, err := exec.Exec(query, args...)
	return err
}

// UpdateRowCount fixes the header row count after all batches are written
func (r *BackupRepository) UpdateRowCount(backupID string, count int, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("UPDATE %s SET row_count = ? WHERE id = ?", constants.TableBackup)
	_, err := exec.Exec(query, count, backupID)
	return err
}

// GetBackup loads a backup header
func (r *BackupRepository) GetBackup(ctx context.Context, backupID string) (*models.ColumnBackup, error) {
	query := fmt.Sprintf(`
		SELECT id, migration_id, table_name, column_name, column_type,
			COALESCE(logical_type, ''), row_count, created_date, expires_date
		FROM %s WHERE id = ?
	`, constants.TableBackup)

	var b models.ColumnBackup
	err := r.db.QueryRowContext(ctx, query, backupID).Scan(
		&b.ID, &b.MigrationID, &b.TableName, &b.ColumnName, &b.ColumnType,
		&b.LogicalType, &b.RowCount, &b.CreatedAt, &b.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("backup", backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup %s: %w", backupID, err)
	}
	return &b, nil
}

// GetRowsBatch reads one fixed-size window of backed-up rows in seq order
func (r *BackupRepository) GetRowsBatch(ctx context.Context, backupID string, offset, limit int) ([]models.BackupRow, error) {
	query := fmt.Sprintf(`
		SELECT row_ref, value, seq FROM %s
		WHERE backup_id = ? ORDER BY seq LIMIT %d OFFSET %d
	`, constants.TableBackupRow, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, backupID)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup rows for %s: %w", backupID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []models.BackupRow
	for rows.Next() {
		var br models.BackupRow
		var value sql.NullString
		if err := rows.Scan(&br.RowRef, &value, &br.Seq); err != nil {
			return nil, err
		}
		if value.Valid {
			br.Value = &value.String
		}
		result = append(result, br)
	}
	return result, rows.Err()
}

// ListExpired returns backup IDs past their expiry whose migration record
// has reached a terminal status. A backup referenced by a non-terminal
// record is never considered expired.
func (r *BackupRepository) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT b.id FROM %s b
		JOIN %s m ON m.id = b.migration_id
		WHERE b.expires_date < ? AND m.status IN (?, ?, ?)
	`, constants.TableBackup, constants.TableMigration)

	rows, err := r.db.QueryContext(ctx, query, now,
		string(constants.MigrationApplied),
		string(constants.MigrationFailed),
		string(constants.MigrationRolledBack))
	if err != nil {
		return nil, fmt.Errorf("failed to list expired backups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a backup and its rows
func (r *BackupRepository) Delete(backupID string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	if _, err := exec.Exec(fmt.Sprintf("DELETE FROM %s WHERE backup_id = ?", constants.TableBackupRow), backupID); err != nil {
		return fmt.Errorf("failed to delete rows of backup %s: %w", backupID, err)
	}
	if _, err := exec.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", constants.TableBackup), backupID); err != nil {
		return fmt.Errorf("failed to delete backup %s: %w", backupID, err)
	}
	return nil
}
