package services

import (
	"fmt"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/expression"
	"github.com/ppongpan/Q-Collector-sub006/pkg/fieldtypes"
)

// RowValidator checks a submitted row against a form's field definitions
// before it reaches the table: required fields, logical-type shape, and any
// per-field validation rule expressions.
type RowValidator struct {
	engine *expression.Engine
}

func NewRowValidator() *RowValidator {
	return &RowValidator{engine: expression.NewEngine()}
}

// ValidateRow validates values keyed by column name against the given
// fields. Fields not present in values are only an error when required.
func (v *RowValidator) ValidateRow(fields []models.FieldDefinition, values map[string]interface{}) error {
	for _, f := range fields {
		if f.ColumnName == "" {
			continue
		}
		raw, present := values[f.ColumnName]

		if !present || raw == nil || raw == "" {
			if f.Required {
				return apperrors.NewValidationError(f.ColumnName, fmt.Sprintf("%s is required", f.NativeLabel))
			}
			continue
		}

		text := fmt.Sprintf("%v", raw)
		if err := fieldtypes.ParseValue(string(f.LogicalType), text); err != nil {
			return apperrors.NewValidationError(f.ColumnName, err.Error())
		}

		if len(f.Options) > 0 && f.LogicalType == "single_choice" {
			if !contains(f.Options, text) {
				return apperrors.NewValidationError(f.ColumnName, fmt.Sprintf("%q is not one of the allowed choices", text))
			}
		}

		if f.ValidationRule != "" {
			ok, err := v.engine.EvaluateBool(f.ValidationRule, map[string]interface{}{
				"value":  raw,
				"values": values,
			})
			if err != nil {
				return apperrors.NewValidationError(f.ColumnName, fmt.Sprintf("validation rule error: %v", err))
			}
			if !ok {
				return apperrors.NewValidationError(f.ColumnName, fmt.Sprintf("%s failed validation", f.NativeLabel))
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
