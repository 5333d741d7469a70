package schema

// ColumnDefinition represents a single column in a table
type ColumnDefinition struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	LogicalType string   `json:"logical_type,omitempty"` // empty for system columns
	PrimaryKey  bool     `json:"primary_key,omitempty"`
	Unique      bool     `json:"unique,omitempty"`
	Nullable    bool     `json:"nullable,omitempty"`
	Default     string   `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// IndexDefinition represents an index on a table
type IndexDefinition struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKeyDefinition represents a foreign key constraint
type ForeignKeyDefinition struct {
	Column     string `json:"column"`
	References string `json:"references"` // format: "tableName(columnName)"
	OnDelete   string `json:"on_delete,omitempty"`
	OnUpdate   string `json:"on_update,omitempty"`
}

// TableDefinition represents a complete table schema
type TableDefinition struct {
	TableName   string                 `json:"table_name"`
	ParentTable string                 `json:"parent_table,omitempty"` // set for child tables only
	SectionID   string                 `json:"section_id,omitempty"`   // repeating section backing this child table
	Description string                 `json:"description,omitempty"`
	Columns     []ColumnDefinition     `json:"columns"`
	Indices     []IndexDefinition      `json:"indices,omitempty"`
	ForeignKeys []ForeignKeyDefinition `json:"foreign_keys,omitempty"`
}

// IsChild reports whether the table is a child (repeating-section) table
func (t TableDefinition) IsChild() bool {
	return t.ParentTable != ""
}

// ColumnNames returns the ordered column names of the table
func (t TableDefinition) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}
