package constants

// LogicalFieldType represents the form-author-facing type of a field,
// as distinct from the physical SQL type it maps to.
type LogicalFieldType string

const (
	FieldTypeShortText    LogicalFieldType = "short_text"
	FieldTypeLongText     LogicalFieldType = "long_text"
	FieldTypeNumber       LogicalFieldType = "number"
	FieldTypeDate         LogicalFieldType = "date"
	FieldTypeDateTime     LogicalFieldType = "datetime"
	FieldTypeSingleChoice LogicalFieldType = "single_choice"
	FieldTypeMultiChoice  LogicalFieldType = "multi_choice"
	FieldTypeAttachment   LogicalFieldType = "attachment"
	FieldTypeGeoPoint     LogicalFieldType = "geo_point"
	FieldTypeRating       LogicalFieldType = "rating"
)

// GetAllFieldTypes returns all valid logical field types as strings
func GetAllFieldTypes() []string {
	return []string{
		string(FieldTypeShortText),
		string(FieldTypeLongText),
		string(FieldTypeNumber),
		string(FieldTypeDate),
		string(FieldTypeDateTime),
		string(FieldTypeSingleChoice),
		string(FieldTypeMultiChoice),
		string(FieldTypeAttachment),
		string(FieldTypeGeoPoint),
		string(FieldTypeRating),
	}
}

// IsValidFieldType checks whether the given string names a known logical type
func IsValidFieldType(t string) bool {
	for _, ft := range GetAllFieldTypes() {
		if ft == t {
			return true
		}
	}
	return false
}

// MigrationOperationType identifies one kind of schema evolution step
type MigrationOperationType string

const (
	OpAddField      MigrationOperationType = "ADD_FIELD"
	OpDeleteField   MigrationOperationType = "DELETE_FIELD"
	OpRenameField   MigrationOperationType = "RENAME_FIELD"
	OpChangeType    MigrationOperationType = "CHANGE_TYPE"
	OpReorderFields MigrationOperationType = "REORDER_FIELDS"
)

// MigrationStatus is the lifecycle state of a MigrationRecord
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "PENDING"
	MigrationBackingUp  MigrationStatus = "BACKING_UP"
	MigrationApplying   MigrationStatus = "APPLYING"
	MigrationApplied    MigrationStatus = "APPLIED"
	MigrationFailed     MigrationStatus = "FAILED"
	MigrationRolledBack MigrationStatus = "ROLLED_BACK"
)

// IsTerminal reports whether a migration status is final.
// BACKING_UP and APPLYING are transient in-memory states; only PENDING is
// ever observed in storage as non-terminal.
func (s MigrationStatus) IsTerminal() bool {
	switch s {
	case MigrationApplied, MigrationFailed, MigrationRolledBack:
		return true
	}
	return false
}

// Submission status values for generated root tables
const (
	SubmissionStatusSubmitted = "submitted"
	SubmissionStatusDraft     = "draft"
)

// Identifier resolution confidence levels
type Confidence string

const (
	ConfidenceExact       Confidence = "exact"
	ConfidenceApproximate Confidence = "approximate"
	ConfidenceFallback    Confidence = "fallback"
)
