package services

import (
	"fmt"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

// rootSystemColumns returns the fixed bookkeeping columns every root form
// table carries, in their canonical order.
func rootSystemColumns() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{Name: constants.FieldID, Type: "VARCHAR(36)", PrimaryKey: true},
		{Name: constants.FieldFormRef, Type: "VARCHAR(36)"},
		{Name: constants.FieldSubmitterRef, Type: "VARCHAR(36)", Nullable: true},
		{Name: constants.FieldSubmittedAt, Type: "DATETIME", Default: "CURRENT_TIMESTAMP"},
		{Name: constants.FieldStatus, Type: "VARCHAR(20)", Default: "'submitted'"},
	}
}

// childSystemColumns returns the fixed columns for a sub-form table whose
// rows belong to a parent submission.
func childSystemColumns() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{Name: constants.FieldID, Type: "VARCHAR(36)", PrimaryKey: true},
		{Name: constants.FieldParentRef, Type: "VARCHAR(36)"},
		{Name: constants.FieldRowOrder, Type: "INT", Default: "0"},
	}
}

func rootSystemIndices(tableName string) []schema.IndexDefinition {
	return []schema.IndexDefinition{
		{Name: fmt.Sprintf("idx_%s_form_ref", tableName), Columns: []string{constants.FieldFormRef}},
		{Name: fmt.Sprintf("idx_%s_submitter_ref", tableName), Columns: []string{constants.FieldSubmitterRef}},
		{Name: fmt.Sprintf("idx_%s_submitted_at", tableName), Columns: []string{constants.FieldSubmittedAt}},
	}
}

func childSystemIndices(tableName string) []schema.IndexDefinition {
	return []schema.IndexDefinition{
		{Name: fmt.Sprintf("idx_%s_parent_ref", tableName), Columns: []string{constants.FieldParentRef}},
	}
}

func childForeignKeys(parentTable string) []schema.ForeignKeyDefinition {
	return []schema.ForeignKeyDefinition{
		{
			Column:     constants.FieldParentRef,
			References: fmt.Sprintf("`%s`(`%s`)", parentTable, constants.FieldID),
			OnDelete:   "CASCADE",
		},
	}
}
