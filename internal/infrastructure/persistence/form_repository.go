package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// FormRepository persists form, section and field metadata in the
// _system_form / _system_section / _system_field registry tables. The field
// registry is the server-side source of truth the Migration Planner diffs
// against.
type FormRepository struct {
	db *sql.DB
}

// NewFormRepository creates a new FormRepository
func NewFormRepository(db *sql.DB) *FormRepository {
	return &FormRepository{db: db}
}

// SaveForm upserts the form row
func (r *FormRepository) SaveForm(form *models.FormDefinition, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, native_title, description, table_name, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE native_title = VALUES(native_title),
			description = VALUES(description), table_name = VALUES(table_name),
			last_modified_date = NOW()
	`, constants.TableForm)
	_, err := exec.Exec(query, form.ID, form.NativeTitle, form.Description, form.TableName)
	return err
}

// SaveSection upserts one repeating-section row with its child table name
func (r *FormRepository) SaveSection(formID string, section models.SectionDefinition, childTable string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, form_id, native_title, ordinal, table_name, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE native_title = VALUES(native_title),
			ordinal = VALUES(ordinal), table_name = VALUES(table_name),
			last_modified_date = NOW()
	`, constants.TableSection)
	_, err := exec.Exec(query, section.ID, formID, section.NativeTitle, section.Ordinal, childTable)
	return err
}

// SaveField upserts one field row keyed by its stable field ID
func (r *FormRepository) SaveField(formID string, field *models.FieldDefinition, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	optionsJSON, err := json.Marshal(field.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options for field %s: %w", field.ID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, form_id, section_id, native_label, logical_type, column_name,
			required, ordinal, options, validation_rule, created_date, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE native_label = VALUES(native_label),
			logical_type = VALUES(logical_type), column_name = VALUES(column_name),
			required = VALUES(required), ordinal = VALUES(ordinal),
			options = VALUES(options), validation_rule = VALUES(validation_rule),
			last_modified_date = NOW()
	`, constants.TableField)

	_, err = exec.Exec(query,
		field.ID, formID, nullable(field.ParentSectionID), field.NativeLabel,
		string(field.LogicalType), field.ColumnName, field.Required, field.Ordinal,
		string(optionsJSON), nullable(field.ValidationRule))
	return err
}

// DeleteField removes a field from the registry. The audit trail lives in
// _system_migration, not here.
func (r *FormRepository) DeleteField(fieldID string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", constants.TableField)
	_, err := exec.Exec(query, fieldID)
	return err
}

// UpdateFieldOrdinals applies new ordinal positions, metadata only
func (r *FormRepository) UpdateFieldOrdinals(ordinals map[string]int, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("UPDATE %s SET ordinal = ?, last_modified_date = NOW() WHERE id = ?", constants.TableField)
	for fieldID, ordinal := range ordinals {
		if _, err := exec.Exec(query, ordinal, fieldID); err != nil {
			return fmt.Errorf("failed to update ordinal for field %s: %w", fieldID, err)
		}
	}
	return nil
}

// GetForm loads a form with its sections and fields, ordered by ordinal
func (r *FormRepository) GetForm(ctx context.Context, formID string) (*models.FormDefinition, error) {
	form := &models.FormDefinition{ID: formID}

	query := fmt.Sprintf("SELECT native_title, COALESCE(description, ''), COALESCE(table_name, ''), created_date FROM %s WHERE id = ?", constants.TableForm)
	err := r.db.QueryRowContext(ctx, query, formID).
		Scan(&form.NativeTitle, &form.Description, &form.TableName, &form.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("form", formID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %s: %w", formID, err)
	}

	form.Sections, err = r.getSections(ctx, formID)
	if err != nil {
		return nil, err
	}
	form.Fields, err = r.GetFields(ctx, formID)
	if err != nil {
		return nil, err
	}
	return form, nil
}

// GetFields loads the full, unfiltered field list of a form. Callers that
// diff field sets must use this, never a client-filtered subset.
func (r *FormRepository) GetFields(ctx context.Context, formID string) ([]models.FieldDefinition, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(section_id, ''), native_label, logical_type, column_name,
			required, ordinal, COALESCE(options, '[]'), COALESCE(validation_rule, '')
		FROM %s WHERE form_id = ? ORDER BY ordinal, id
	`, constants.TableField)

	rows, err := r.db.QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for form %s: %w", formID, err)
	}
	defer func() { _ = rows.Close() }()

	var fields []models.FieldDefinition
	for rows.Next() {
		var fd models.FieldDefinition
		var logicalType, optionsJSON string
		if err := rows.Scan(&fd.ID, &fd.ParentSectionID, &fd.NativeLabel, &logicalType,
			&fd.ColumnName, &fd.Required, &fd.Ordinal, &optionsJSON, &fd.ValidationRule); err != nil {
			return nil, err
		}
		fd.LogicalType = constants.LogicalFieldType(logicalType)
		if err := json.Unmarshal([]byte(optionsJSON), &fd.Options); err != nil {
			fd.Options = nil
		}
		fields = append(fields, fd)
	}
	return fields, rows.Err()
}

// GetSectionTable returns the child table name backing a section
func (r *FormRepository) GetSectionTable(ctx context.Context, sectionID string) (string, error) {
	query := fmt.Sprintf("SELECT table_name FROM %s WHERE id = ?", constants.TableSection)
	var tableName string
	err := r.db.QueryRowContext(ctx, query, sectionID).Scan(&tableName)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFoundError("section", sectionID)
	}
	return tableName, err
}

// GetSectionTables maps every section of a form to its child table name
func (r *FormRepository) GetSectionTables(ctx context.Context, formID string) (map[string]string, error) {
	query := fmt.Sprintf("SELECT id, table_name FROM %s WHERE form_id = ?", constants.TableSection)
	rows, err := r.db.QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to load section tables for form %s: %w", formID, err)
	}
	defer func() { _ = rows.Close() }()

	tables := make(map[string]string)
	for rows.Next() {
		var id, tableName string
		if err := rows.Scan(&id, &tableName); err != nil {
			return nil, err
		}
		tables[id] = tableName
	}
	return tables, rows.Err()
}

// DeleteSection removes one section's registry row
func (r *FormRepository) DeleteSection(sectionID string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", constants.TableSection)
	_, err := exec.Exec(query, sectionID)
	return err
}

// DeleteForm removes a form's registry rows (sections and fields cascade
// through explicit deletes; caller drops the physical tables separately)
func (r *FormRepository) DeleteForm(formID string, exec Executor) error {
	if exec == nil {
		exec = r.db
	}
	for _, table := range []string{constants.TableField, constants.TableSection, constants.TableForm} {
		var query string
		if table == constants.TableForm {
			query = fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
		} else {
			query = fmt.Sprintf("DELETE FROM %s WHERE form_id = ?", table)
		}
		if _, err := exec.Exec(query, formID); err != nil {
			return fmt.Errorf("failed to delete %s rows for form %s: %w", table, formID, err)
		}
	}
	return nil
}

func (r *FormRepository) getSections(ctx context.Context, formID string) ([]models.SectionDefinition, error) {
	query := fmt.Sprintf("SELECT id, native_title, ordinal FROM %s WHERE form_id = ? ORDER BY ordinal, id", constants.TableSection)
	rows, err := r.db.QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections for form %s: %w", formID, err)
	}
	defer func() { _ = rows.Close() }()

	var sections []models.SectionDefinition
	for rows.Next() {
		var s models.SectionDefinition
		if err := rows.Scan(&s.ID, &s.NativeTitle, &s.Ordinal); err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
