package constants

import "strings"

// SystemTablePrefix is the prefix for all engine-owned system tables
const SystemTablePrefix = "_system_"

// System table names
const (
	TableForm       = "_system_form"
	TableSection    = "_system_section"
	TableField      = "_system_field"
	TableMigration  = "_system_migration"
	TableBackup     = "_system_backup"
	TableBackupRow  = "_system_backup_row"
	TableIdentifier = "_system_identifier"
)

// IsSystemTable checks if a table name is an engine-owned system table
func IsSystemTable(tableName string) bool {
	return strings.HasPrefix(strings.ToLower(tableName), SystemTablePrefix)
}
