package services

import (
	"fmt"
	"strings"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
)

// buildColumnDDL generates DDL for a single column
func buildColumnDDL(col schema.ColumnDefinition) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("`%s` %s", col.Name, col.Type))

	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", col.Default))
	}
	if col.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if col.Unique {
		sb.WriteString(" UNIQUE")
	}

	return sb.String()
}

// buildIndexDDL generates inline index DDL for a CREATE TABLE statement
func buildIndexDDL(tableName string, idx schema.IndexDefinition) string {
	indexName := idx.Name
	if indexName == "" {
		indexName = fmt.Sprintf("idx_%s_%s", tableName, strings.Join(idx.Columns, "_"))
	}

	columnList := strings.Join(idx.Columns, "`, `")

	if idx.Unique {
		return fmt.Sprintf("UNIQUE KEY `%s` (`%s`)", indexName, columnList)
	}
	return fmt.Sprintf("KEY `%s` (`%s`)", indexName, columnList)
}

// buildForeignKeyDDL generates DDL for a foreign key constraint
func buildForeignKeyDDL(fk schema.ForeignKeyDefinition) string {
	ddl := fmt.Sprintf("FOREIGN KEY (`%s`) REFERENCES %s", fk.Column, fk.References)
	if fk.OnDelete != "" {
		ddl += fmt.Sprintf(" ON DELETE %s", fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		ddl += fmt.Sprintf(" ON UPDATE %s", fk.OnUpdate)
	}
	return ddl
}

// BuildCreateTableDDL composes the full CREATE TABLE statement for a table
// definition. The output is deterministic: identical input yields
// byte-identical DDL, which is what makes re-application idempotent and
// generation testable.
func BuildCreateTableDDL(def schema.TableDefinition) string {
	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n", def.TableName))

	for i, col := range def.Columns {
		ddl.WriteString("  ")
		ddl.WriteString(buildColumnDDL(col))
		if i < len(def.Columns)-1 || len(def.Indices) > 0 || len(def.ForeignKeys) > 0 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}

	for i, idx := range def.Indices {
		ddl.WriteString("  ")
		ddl.WriteString(buildIndexDDL(def.TableName, idx))
		if i < len(def.Indices)-1 || len(def.ForeignKeys) > 0 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}

	for i, fk := range def.ForeignKeys {
		ddl.WriteString("  ")
		ddl.WriteString(buildForeignKeyDDL(fk))
		if i < len(def.ForeignKeys)-1 {
			ddl.WriteString(",")
		}
		ddl.WriteString("\n")
	}

	ddl.WriteString(") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")
	return ddl.String()
}
