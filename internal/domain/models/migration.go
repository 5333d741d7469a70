package models

import (
	"encoding/json"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/fieldtypes"
)

// MigrationOperation is one planned schema evolution step produced by the
// Migration Planner and consumed by the Migration Executor.
type MigrationOperation struct {
	Type      constants.MigrationOperationType `json:"type"`
	FormID    string                           `json:"formId"`
	TableName string                           `json:"tableName"`
	FieldID   string                           `json:"fieldId,omitempty"` // empty for REORDER_FIELDS

	// Before/After carry the field definition on each side of the change.
	// ADD has only After, DELETE only Before, RENAME and CHANGE_TYPE both.
	Before *FieldDefinition `json:"before,omitempty"`
	After  *FieldDefinition `json:"after,omitempty"`

	// Ordinals maps field ID to new ordinal for REORDER_FIELDS
	Ordinals map[string]int `json:"ordinals,omitempty"`
}

// IsDestructive reports whether the operation can permanently lose data and
// therefore requires a backup before DDL.
func (op MigrationOperation) IsDestructive() bool {
	switch op.Type {
	case constants.OpDeleteField:
		return true
	case constants.OpChangeType:
		if op.Before == nil || op.After == nil {
			return false
		}
		return fieldtypes.IsDestructiveConversion(string(op.Before.LogicalType), string(op.After.LogicalType))
	}
	return false
}

// MigrationRecord is an immutable audit entry for one executed (or
// attempted) migration operation. Records are never deleted.
type MigrationRecord struct {
	ID            string                           `json:"id"`
	FormID        string                           `json:"formId"`
	TableName     string                           `json:"tableName"`
	OperationType constants.MigrationOperationType `json:"operationType"`
	BeforeState   json.RawMessage                  `json:"beforeState,omitempty"`
	AfterState    json.RawMessage                  `json:"afterState,omitempty"`
	BackupID      *string                          `json:"backupReference,omitempty"`
	Status        constants.MigrationStatus        `json:"status"`
	Error         string                           `json:"error,omitempty"`
	CreatedAt     time.Time                        `json:"createdAt"`
	AppliedAt     *time.Time                       `json:"appliedAt,omitempty"`
}

// BeforeField decodes the before-state back into a field definition
func (r *MigrationRecord) BeforeField() (*FieldDefinition, error) {
	return decodeField(r.BeforeState)
}

// AfterField decodes the after-state back into a field definition
func (r *MigrationRecord) AfterField() (*FieldDefinition, error) {
	return decodeField(r.AfterState)
}

func decodeField(raw json.RawMessage) (*FieldDefinition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fd FieldDefinition
	if err := json.Unmarshal(raw, &fd); err != nil {
		return nil, err
	}
	return &fd, nil
}
