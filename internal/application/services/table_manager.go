package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/query"
	"github.com/ppongpan/Q-Collector-sub006/pkg/sqlguard"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// TableManager executes physical DDL and row-level DML against generated
// tables. Every DDL statement passes through the SQL guard before it reaches
// the server, and every table / column name is re-checked against the
// identifier character set as a second line of defence.
type TableManager struct {
	db    *sql.DB
	guard *sqlguard.Guard
}

func NewTableManager(db *sql.DB) *TableManager {
	return &TableManager{
		db:    db,
		guard: sqlguard.New(),
	}
}

// CreateTable creates the physical table for a definition. DDL auto-commits
// in MySQL, so failure cleanup is compensation: the caller decides whether to
// drop earlier tables of the same batch.
func (tm *TableManager) CreateTable(ctx context.Context, def schema.TableDefinition) error {
	ddl := BuildCreateTableDDL(def)

	if err := tm.guard.ValidateDDL(ddl); err != nil {
		return apperrors.NewSchemaCreationError(def.TableName, ddl, err)
	}

	log.Printf("📐 Creating table `%s` (%d columns)", def.TableName, len(def.Columns))
	if _, err := tm.db.ExecContext(ctx, ddl); err != nil {
		log.Printf("❌ CREATE TABLE `%s` failed: %v", def.TableName, err)
		return apperrors.NewSchemaCreationError(def.TableName, ddl, err)
	}

	log.Printf("✅ Table `%s` created", def.TableName)
	return nil
}

// DropTable removes a physical table. Used by form deletion and by
// compensation when a multi-table creation fails halfway.
func (tm *TableManager) DropTable(ctx context.Context, tableName string) error {
	ddl := fmt.Sprintf("DROP TABLE IF EXISTS `%s`", tableName)
	if err := tm.guard.ValidateDDL(ddl); err != nil {
		return err
	}

	if _, err := tm.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	log.Printf("➖ Table `%s` dropped", tableName)
	return nil
}

// TableExists checks INFORMATION_SCHEMA for the table in the current database
func (tm *TableManager) TableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	err := tm.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, tableName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// GetTableColumns reads the live column layout of a table from
// INFORMATION_SCHEMA, in ordinal position order.
func (tm *TableManager) GetTableColumns(ctx context.Context, tableName string) ([]models.ColumnInfo, error) {
	rows, err := tm.db.QueryContext(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", tableName, err)
	}
	defer rows.Close()

	var cols []models.ColumnInfo
	for rows.Next() {
		var col models.ColumnInfo
		var nullable string
		if err := rows.Scan(&col.ColumnName, &col.SQLType, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// ColumnExists checks whether a column is present on a table
func (tm *TableManager) ColumnExists(ctx context.Context, tableName, columnName string) (bool, error) {
	var count int
	err := tm.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		tableName, columnName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check column existence: %w", err)
	}
	return count > 0, nil
}

// CountRows returns the number of rows in a table
func (tm *TableManager) CountRows(ctx context.Context, tableName string) (int, error) {
	if err := validateIdentifier(tableName); err != nil {
		return 0, err
	}
	var count int
	err := tm.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM `%s`", tableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", tableName, err)
	}
	return count, nil
}

// InsertRow inserts a data row into a generated table. Keys with no matching
// live column are dropped: a client holding a stale form definition can still
// submit, and a concurrently deleted field must not fail the write.
// Returns the generated row ID.
func (tm *TableManager) InsertRow(ctx context.Context, tableName string, values map[string]interface{}) (string, error) {
	cols, err := tm.GetTableColumns(ctx, tableName)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", apperrors.NewNotFoundError("table", tableName)
	}

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.ColumnName] = true
	}

	data := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		if !known[k] {
			log.Printf("⚠️ Dropping unknown column `%s` on insert into `%s`", k, tableName)
			continue
		}
		data[k] = v
	}

	rowID := utils.GenerateID()
	data[constants.FieldID] = rowID

	q := query.Insert(tableName, data).Build()
	if _, err := tm.db.ExecContext(ctx, q.SQL, q.Params...); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", tableName, err)
	}
	return rowID, nil
}

// QueryRows reads rows from a generated table with optional equality filters,
// newest first. Filter keys are validated against live columns.
func (tm *TableManager) QueryRows(ctx context.Context, tableName string, filters map[string]interface{}, limit, offset int) ([]map[string]interface{}, error) {
	cols, err := tm.GetTableColumns(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, apperrors.NewNotFoundError("table", tableName)
	}

	known := make(map[string]bool, len(cols))
	orderCol := constants.FieldID
	for _, c := range cols {
		known[c.ColumnName] = true
		if c.ColumnName == constants.FieldSubmittedAt {
			orderCol = constants.FieldSubmittedAt
		}
		if c.ColumnName == constants.FieldRowOrder {
			orderCol = constants.FieldRowOrder
		}
	}

	b := query.From(tableName)
	for _, k := range sortedFilterKeys(filters) {
		if !known[k] {
			return nil, apperrors.NewValidationError(k, "unknown column")
		}
		b.WhereEq(k, filters[k])
	}
	if orderCol == constants.FieldRowOrder {
		b.OrderBy(orderCol, "ASC")
	} else {
		b.OrderBy(orderCol, "DESC")
	}
	if limit > 0 {
		b.Limit(limit)
	}
	if offset > 0 {
		b.Offset(offset)
	}

	q := b.Build()
	rows, err := tm.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableName, err)
	}
	defer rows.Close()

	return scanRowMaps(rows)
}

func sortedFilterKeys(filters map[string]interface{}) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scanRowMaps converts a generic result set into maps, rendering []byte
// values as strings
func scanRowMaps(rows *sql.Rows) ([]map[string]interface{}, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		raw := make([]interface{}, len(colNames))
		ptrs := make([]interface{}, len(colNames))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(colNames))
		for i, name := range colNames {
			if b, ok := raw[i].([]byte); ok {
				row[name] = string(b)
			} else {
				row[name] = raw[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// validateIdentifier rejects any name that could escape backtick quoting
func validateIdentifier(name string) error {
	if name == "" || strings.ContainsAny(name, "`;\x00") {
		return apperrors.NewValidationError("identifier", fmt.Sprintf("unsafe identifier %q", name))
	}
	return nil
}
