package constants

// System column names present on every generated root table
const (
	FieldID           = "id"
	FieldFormRef      = "form_ref"
	FieldSubmitterRef = "submitter_ref"
	FieldSubmittedAt  = "submitted_at"
	FieldStatus       = "status"
)

// System column names specific to child tables
const (
	FieldParentRef = "parent_ref"
	FieldRowOrder  = "row_order"
)

// RootSystemColumns returns the ordered system column names of a root table.
// Order matters: the Schema Generator emits system columns before user columns.
func RootSystemColumns() []string {
	return []string{
		FieldID,
		FieldFormRef,
		FieldSubmitterRef,
		FieldSubmittedAt,
		FieldStatus,
	}
}

// ChildSystemColumns returns the ordered system column names of a child table
func ChildSystemColumns() []string {
	return []string{
		FieldID,
		FieldParentRef,
		FieldRowOrder,
	}
}

// IsSystemColumn checks if a column name is reserved by the engine
func IsSystemColumn(name string) bool {
	for _, c := range RootSystemColumns() {
		if c == name {
			return true
		}
	}
	for _, c := range ChildSystemColumns() {
		if c == name {
			return true
		}
	}
	return false
}
