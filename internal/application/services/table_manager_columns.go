package services

import (
	"context"
	"fmt"
	"log"
)

// Column-level DDL. All of these auto-commit; callers sequence backups and
// registry updates around them.

// AddColumn appends a nullable column to an existing table
func (tm *TableManager) AddColumn(ctx context.Context, tableName, columnName, sqlType string) error {
	ddl := fmt.Sprintf("ALTER TABLE `%s` ADD COLUMN `%s` %s NULL", tableName, columnName, sqlType)
	return tm.execDDL(ctx, tableName, ddl, fmt.Sprintf("➕ Added column `%s`.`%s` %s", tableName, columnName, sqlType))
}

// DropColumn removes a column. The caller is responsible for having backed up
// its data first.
func (tm *TableManager) DropColumn(ctx context.Context, tableName, columnName string) error {
	ddl := fmt.Sprintf("ALTER TABLE `%s` DROP COLUMN `%s`", tableName, columnName)
	return tm.execDDL(ctx, tableName, ddl, fmt.Sprintf("➖ Dropped column `%s`.`%s`", tableName, columnName))
}

// RenameColumn renames a column in place, preserving its type and data
func (tm *TableManager) RenameColumn(ctx context.Context, tableName, oldName, newName string) error {
	ddl := fmt.Sprintf("ALTER TABLE `%s` RENAME COLUMN `%s` TO `%s`", tableName, oldName, newName)
	return tm.execDDL(ctx, tableName, ddl, fmt.Sprintf("✏️ Renamed column `%s`.`%s` -> `%s`", tableName, oldName, newName))
}

// ModifyColumnType changes a column's SQL type. Value convertibility must
// have been verified before calling.
func (tm *TableManager) ModifyColumnType(ctx context.Context, tableName, columnName, sqlType string) error {
	ddl := fmt.Sprintf("ALTER TABLE `%s` MODIFY COLUMN `%s` %s NULL", tableName, columnName, sqlType)
	return tm.execDDL(ctx, tableName, ddl, fmt.Sprintf("🔄 Changed column `%s`.`%s` to %s", tableName, columnName, sqlType))
}

// EnsureColumn adds the column only if it is missing. Restore uses this to
// re-create a dropped column before writing values back.
func (tm *TableManager) EnsureColumn(ctx context.Context, tableName, columnName, sqlType string) error {
	exists, err := tm.ColumnExists(ctx, tableName, columnName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return tm.AddColumn(ctx, tableName, columnName, sqlType)
}

// ScanColumnValues streams (id, value) pairs of one column in primary-key
// order, batch by batch. Values come back as strings via CAST so that
// convertibility checks and backups see exactly what the server stores.
// The callback is invoked once per batch; returning an error stops the scan.
func (tm *TableManager) ScanColumnValues(ctx context.Context, tableName, columnName string, batchSize int, fn func(ids []string, values []*string) error) error {
	if err := validateIdentifier(tableName); err != nil {
		return err
	}
	if err := validateIdentifier(columnName); err != nil {
		return err
	}

	offset := 0
	for {
		q := fmt.Sprintf(
			"SELECT `id`, CAST(`%s` AS CHAR) FROM `%s` ORDER BY `id` LIMIT %d OFFSET %d",
			columnName, tableName, batchSize, offset)

		rows, err := tm.db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to scan %s.%s: %w", tableName, columnName, err)
		}

		var ids []string
		var values []*string
		for rows.Next() {
			var id string
			var val *string
			if err := rows.Scan(&id, &val); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			values = append(values, val)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}
		if err := fn(ids, values); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
		offset += batchSize
	}
}

func (tm *TableManager) execDDL(ctx context.Context, tableName, ddl, successMsg string) error {
	if err := tm.guard.ValidateDDL(ddl); err != nil {
		return err
	}
	if _, err := tm.db.ExecContext(ctx, ddl); err != nil {
		log.Printf("❌ DDL on `%s` failed: %v", tableName, err)
		return fmt.Errorf("DDL on %s failed: %w", tableName, err)
	}
	log.Printf("%s", successMsg)
	return nil
}
