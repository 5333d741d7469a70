package models

import "time"

// ColumnBackup is a point-in-time snapshot of one column's data, taken
// immediately before a destructive operation.
type ColumnBackup struct {
	ID          string    `json:"id"`
	MigrationID string    `json:"migrationRecordId"`
	TableName   string    `json:"tableName"`
	ColumnName  string    `json:"columnName"`
	ColumnType  string    `json:"columnType"` // SQL type, needed to re-add the column on restore
	LogicalType string    `json:"logicalType,omitempty"`
	RowCount    int       `json:"rowCount"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// BackupRow is one backed-up {rowId, value} pair. Value is nil when the
// column held NULL.
type BackupRow struct {
	RowRef string  `json:"rowId"`
	Value  *string `json:"value"`
	Seq    int     `json:"seq"`
}
