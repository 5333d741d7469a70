package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// InvalidIdentifierError means a candidate name normalized down to nothing.
// The caller must supply a fallback candidate (e.g. field_<ordinal>).
type InvalidIdentifierError struct {
	Candidate string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("candidate name '%s' produced an empty identifier after normalization", e.Candidate)
}

func (e *InvalidIdentifierError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *InvalidIdentifierError) Code() string    { return "INVALID_IDENTIFIER" }

// NewInvalidIdentifierError creates a new InvalidIdentifierError
func NewInvalidIdentifierError(candidate string) *InvalidIdentifierError {
	return &InvalidIdentifierError{Candidate: candidate}
}

// SchemaCreationError means DDL execution failed. The transaction was rolled
// back or the partially created table compensated away; nothing persisted.
// The offending DDL is carried for diagnostics.
type SchemaCreationError struct {
	TableName string
	DDL       string
	Cause     error
}

func (e *SchemaCreationError) Error() string {
	return fmt.Sprintf("failed to create schema for table '%s': %v", e.TableName, e.Cause)
}

func (e *SchemaCreationError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *SchemaCreationError) Code() string    { return "SCHEMA_CREATION_FAILED" }
func (e *SchemaCreationError) Unwrap() error   { return e.Cause }

// NewSchemaCreationError creates a new SchemaCreationError
func NewSchemaCreationError(tableName, ddl string, cause error) *SchemaCreationError {
	return &SchemaCreationError{TableName: tableName, DDL: ddl, Cause: cause}
}

// OffendingRow identifies a row whose value cannot survive a type change
type OffendingRow struct {
	RowID string `json:"rowId"`
	Value string `json:"value"`
}

// IncompatibleTypeChangeError reports the specific rows that block a
// CHANGE_TYPE operation. The operation was never applied.
type IncompatibleTypeChangeError struct {
	TableName  string
	ColumnName string
	TargetType string
	Rows       []OffendingRow
}

func (e *IncompatibleTypeChangeError) Error() string {
	ids := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		ids = append(ids, r.RowID)
	}
	return fmt.Sprintf("cannot change %s.%s to %s: %d inconvertible rows [%s]",
		e.TableName, e.ColumnName, e.TargetType, len(e.Rows), strings.Join(ids, ", "))
}

func (e *IncompatibleTypeChangeError) HTTPStatus() int { return http.StatusConflict }
func (e *IncompatibleTypeChangeError) Code() string    { return "INCOMPATIBLE_TYPE_CHANGE" }

// BackupFailureError means a destructive operation was aborted because its
// pre-drop backup could not be persisted. No DDL was executed.
type BackupFailureError struct {
	TableName  string
	ColumnName string
	Cause      error
}

func (e *BackupFailureError) Error() string {
	return fmt.Sprintf("backup of %s.%s failed, destructive operation aborted: %v",
		e.TableName, e.ColumnName, e.Cause)
}

func (e *BackupFailureError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *BackupFailureError) Code() string    { return "BACKUP_FAILED" }
func (e *BackupFailureError) Unwrap() error   { return e.Cause }

// QueueTimeoutError means the operation never started executing; it is safe
// to retry as-is.
type QueueTimeoutError struct {
	TableName string
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("migration queue for table '%s' timed out before the operation started", e.TableName)
}

func (e *QueueTimeoutError) HTTPStatus() int { return http.StatusServiceUnavailable }
func (e *QueueTimeoutError) Code() string    { return "QUEUE_TIMEOUT" }

// PartialRestoreError means a restore completed but some live rows had no
// backup counterpart (inserted after the snapshot). Reported, not fatal.
type PartialRestoreError struct {
	BackupID     string
	RestoredRows int
	MissedRowIDs []string
}

func (e *PartialRestoreError) Error() string {
	return fmt.Sprintf("restore of backup '%s' matched %d rows but %d live rows had no backed-up value",
		e.BackupID, e.RestoredRows, len(e.MissedRowIDs))
}

func (e *PartialRestoreError) HTTPStatus() int { return http.StatusPartialContent }
func (e *PartialRestoreError) Code() string    { return "PARTIAL_RESTORE" }

// IsInvalidIdentifier checks if an error is an InvalidIdentifierError
func IsInvalidIdentifier(err error) bool {
	var e *InvalidIdentifierError
	return errors.As(err, &e)
}

// IsIncompatibleTypeChange checks if an error is an IncompatibleTypeChangeError
func IsIncompatibleTypeChange(err error) bool {
	var e *IncompatibleTypeChangeError
	return errors.As(err, &e)
}

// IsBackupFailure checks if an error is a BackupFailureError
func IsBackupFailure(err error) bool {
	var e *BackupFailureError
	return errors.As(err, &e)
}

// IsQueueTimeout checks if an error is a QueueTimeoutError
func IsQueueTimeout(err error) bool {
	var e *QueueTimeoutError
	return errors.As(err, &e)
}

// IsPartialRestore checks if an error is a PartialRestoreError
func IsPartialRestore(err error) bool {
	var e *PartialRestoreError
	return errors.As(err, &e)
}
