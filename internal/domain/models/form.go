package models

import (
	"time"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

// FieldDefinition is the logical description of one form field. Identity is
// the stable ID, never the label or position: labels are edited freely and
// fields reorder without changing identity.
type FieldDefinition struct {
	ID              string                     `json:"id"`
	NativeLabel     string                     `json:"nativeLabel"`
	LogicalType     constants.LogicalFieldType `json:"logicalType"`
	Required        bool                       `json:"required"`
	Ordinal         int                        `json:"ordinal"`
	ParentSectionID string                     `json:"parentSectionId,omitempty"` // empty for main-form fields
	Options         []string                   `json:"options,omitempty"`         // choice types
	ValidationRule  string                     `json:"validationRule,omitempty"`  // optional expr rule over the submitted value
	ColumnName      string                     `json:"columnName,omitempty"`      // resolved identifier, set once generated
}

// SectionDefinition describes one repeating sub-section of a form
type SectionDefinition struct {
	ID          string `json:"id"`
	NativeTitle string `json:"nativeTitle"`
	Ordinal     int    `json:"ordinal"`
}

// FormDefinition is a user-authored form: an ordered list of typed fields,
// optionally grouped into repeating sections
type FormDefinition struct {
	ID          string              `json:"id"`
	NativeTitle string              `json:"nativeTitle"`
	Description string              `json:"description,omitempty"`
	TableName   string              `json:"tableName,omitempty"` // resolved root table, set once generated
	Sections    []SectionDefinition `json:"sections,omitempty"`
	Fields      []FieldDefinition   `json:"fields"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// FieldsBySection groups fields by their parent section ID; the empty key
// holds main-form fields.
func (f *FormDefinition) FieldsBySection() map[string][]FieldDefinition {
	grouped := make(map[string][]FieldDefinition)
	for _, fd := range f.Fields {
		grouped[fd.ParentSectionID] = append(grouped[fd.ParentSectionID], fd)
	}
	return grouped
}

// FindField returns the field with the given ID, or nil
func (f *FormDefinition) FindField(id string) *FieldDefinition {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return &f.Fields[i]
		}
	}
	return nil
}

// ColumnInfo is the physical description of one generated column
type ColumnInfo struct {
	ColumnName string `json:"columnName"`
	SQLType    string `json:"sqlType"`
	Nullable   bool   `json:"nullable"`
}

// TableSchema is the physical description of one generated table
type TableSchema struct {
	TableName       string       `json:"tableName"`
	Columns         []ColumnInfo `json:"columns"`
	ParentTableName string       `json:"parentTableName,omitempty"` // empty for root tables
}
