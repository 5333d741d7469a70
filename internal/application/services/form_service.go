package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// FormEditRequest is an edited form definition submitted for migration.
// Fields must be the complete new field list; RemovedSections acknowledges
// intentionally emptied buckets (see PlanRequest).
type FormEditRequest struct {
	Sections        []models.SectionDefinition `json:"sections,omitempty"`
	Fields          []models.FieldDefinition   `json:"fields"`
	RemovedSections []string                   `json:"removedSections,omitempty"`
}

// FormService orchestrates the form lifecycle: creation generates and
// creates physical tables, edits are planned into migration operations and
// executed through the per-table queue, deletion drops everything.
type FormService struct {
	db        *sql.DB
	txManager *persistence.TransactionManager
	forms     *persistence.FormRepository
	tables    *TableManager
	generator *SchemaGenerator
	planner   *MigrationPlanner
	queue     *MigrationQueue
	executor  *MigrationExecutor
	validator *RowValidator
}

func NewFormService(
	db *sql.DB,
	txm *persistence.TransactionManager,
	forms *persistence.FormRepository,
	tables *TableManager,
	generator *SchemaGenerator,
	planner *MigrationPlanner,
	queue *MigrationQueue,
	executor *MigrationExecutor,
	validator *RowValidator,
) *FormService {
	return &FormService{
		db:        db,
		txManager: txm,
		forms:     forms,
		tables:    tables,
		generator: generator,
		planner:   planner,
		queue:     queue,
		executor:  executor,
		validator: validator,
	}
}

// CreateForm generates and creates the physical tables for a new form and
// registers its metadata. Table creation is compensated: if any table of the
// batch fails, the ones already created are dropped and nothing is
// registered.
func (s *FormService) CreateForm(ctx context.Context, form *models.FormDefinition) ([]schema.TableDefinition, error) {
	if form.ID == "" {
		form.ID = utils.GenerateID()
	}
	form.CreatedAt = time.Now()

	if err := s.validateDefinition(form.Fields); err != nil {
		return nil, err
	}

	tables, err := s.generator.Generate(ctx, form)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, def := range tables {
		if err := s.tables.CreateTable(ctx, def); err != nil {
			s.compensateTables(ctx, created)
			return nil, err
		}
		created = append(created, def.TableName)
	}

	sectionTables := make(map[string]string)
	for _, def := range tables {
		if def.SectionID != "" {
			sectionTables[def.SectionID] = def.TableName
		}
	}

	err = s.txManager.WithTransaction(func(tx *sql.Tx) error {
		if err := s.forms.SaveForm(form, tx); err != nil {
			return err
		}
		for _, sec := range form.Sections {
			if err := s.forms.SaveSection(form.ID, sec, sectionTables[sec.ID], tx); err != nil {
				return err
			}
		}
		for i := range form.Fields {
			if err := s.forms.SaveField(form.ID, &form.Fields[i], tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensateTables(ctx, created)
		return nil, fmt.Errorf("failed to register form metadata: %w", err)
	}

	log.Printf("✅ Form %s created with %d table(s)", form.ID, len(tables))
	return tables, nil
}

// GetForm loads a form definition from the registry
func (s *FormService) GetForm(ctx context.Context, formID string) (*models.FormDefinition, error) {
	return s.forms.GetForm(ctx, formID)
}

// PlanEdit computes the migration operations an edit would run, without
// executing anything. Fields in brand-new sections plan against a table that
// does not exist yet; ApplyEdit creates it first.
func (s *FormService) PlanEdit(ctx context.Context, formID string, req FormEditRequest) ([]models.MigrationOperation, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	sectionTables, err := s.forms.GetSectionTables(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveNewSectionTables(ctx, form, req, sectionTables, false); err != nil {
		return nil, err
	}

	return s.planner.Plan(PlanRequest{
		FormID:          formID,
		RootTable:       form.TableName,
		SectionTables:   sectionTables,
		OldFields:       form.Fields,
		NewFields:       req.Fields,
		RemovedSections: req.RemovedSections,
	})
}

// ApplyEdit plans an edit and executes its operations through the migration
// queue, strictly in plan order. Execution stops at the first failed
// operation; the records of everything attempted are returned either way.
func (s *FormService) ApplyEdit(ctx context.Context, formID string, req FormEditRequest) ([]*models.MigrationRecord, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	sectionTables, err := s.forms.GetSectionTables(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveNewSectionTables(ctx, form, req, sectionTables, true); err != nil {
		return nil, err
	}

	ops, err := s.planner.Plan(PlanRequest{
		FormID:          formID,
		RootTable:       form.TableName,
		SectionTables:   sectionTables,
		OldFields:       form.Fields,
		NewFields:       req.Fields,
		RemovedSections: req.RemovedSections,
	})
	if err != nil {
		return nil, err
	}

	var records []*models.MigrationRecord
	for _, op := range ops {
		ticket, err := s.queue.Enqueue(op)
		if err != nil {
			return records, err
		}
		record, err := ticket.Wait(ctx, s.queue.WaitTimeout())
		if record != nil {
			records = append(records, record)
		}
		if err != nil {
			return records, err
		}
	}

	if err := s.dropRemovedSections(ctx, formID, req.RemovedSections, sectionTables); err != nil {
		return records, err
	}

	return records, nil
}

// resolveNewSectionTables fills sectionTables with entries for sections that
// have fields in the request but no backing table yet. When create is set
// the tables are physically created and registered; otherwise names are
// resolved in memory for planning only.
func (s *FormService) resolveNewSectionTables(ctx context.Context, form *models.FormDefinition, req FormEditRequest, sectionTables map[string]string, create bool) error {
	populated := map[string]bool{}
	for _, f := range req.Fields {
		if f.ParentSectionID != "" {
			populated[f.ParentSectionID] = true
		}
	}

	used := map[string]bool{form.TableName: true}
	for _, t := range sectionTables {
		used[t] = true
	}

	for _, sec := range req.Sections {
		if !populated[sec.ID] || sectionTables[sec.ID] != "" {
			continue
		}

		def := schema.TableDefinition{
			ParentTable: form.TableName,
			SectionID:   sec.ID,
			Description: sec.NativeTitle,
			Columns:     childSystemColumns(),
			ForeignKeys: childForeignKeys(form.TableName),
		}
		name, err := s.generator.resolveTableName(ctx, sec.NativeTitle, used)
		if err != nil {
			return err
		}
		def.TableName = name
		def.Indices = childSystemIndices(name)
		used[name] = true
		sectionTables[sec.ID] = name

		if !create {
			continue
		}
		if err := s.tables.CreateTable(ctx, def); err != nil {
			return err
		}
		if err := s.txManager.WithTransaction(func(tx *sql.Tx) error {
			return s.forms.SaveSection(form.ID, sec, name, tx)
		}); err != nil {
			return err
		}
	}
	return nil
}

// dropRemovedSections drops the now-empty child tables of explicitly removed
// sections and clears their registry rows. Field data was already backed up
// by the per-field DELETE operations.
func (s *FormService) dropRemovedSections(ctx context.Context, formID string, removed []string, sectionTables map[string]string) error {
	for _, sectionID := range removed {
		if sectionID == "" {
			continue
		}
		table := sectionTables[sectionID]
		if table != "" {
			if err := s.tables.DropTable(ctx, table); err != nil {
				return err
			}
		}
		if err := s.txManager.WithTransaction(func(tx *sql.Tx) error {
			return s.forms.DeleteSection(sectionID, tx)
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteForm drops a form's physical tables (children first, for the foreign
// keys) and removes its registry rows. Migration history survives; the audit
// trail is never deleted.
func (s *FormService) DeleteForm(ctx context.Context, formID string) error {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return err
	}

	sectionTables, err := s.forms.GetSectionTables(ctx, formID)
	if err != nil {
		return err
	}

	for _, table := range sectionTables {
		if table == "" {
			continue
		}
		if err := s.tables.DropTable(ctx, table); err != nil {
			return err
		}
	}
	if form.TableName != "" {
		if err := s.tables.DropTable(ctx, form.TableName); err != nil {
			return err
		}
	}

	return s.txManager.WithTransaction(func(tx *sql.Tx) error {
		return s.forms.DeleteForm(formID, tx)
	})
}

// SubmitRow validates a data row against the form definition and inserts it
// into the right table: the root table for main-form values, a child table
// when sectionID names a repeating section.
func (s *FormService) SubmitRow(ctx context.Context, formID, sectionID, parentRowID string, values map[string]interface{}) (string, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return "", err
	}

	fields := form.FieldsBySection()[sectionID]
	if err := s.validator.ValidateRow(fields, values); err != nil {
		return "", err
	}

	if sectionID == "" {
		values[constants.FieldFormRef] = formID
		return s.tables.InsertRow(ctx, form.TableName, values)
	}

	table, err := s.forms.GetSectionTable(ctx, sectionID)
	if err != nil {
		return "", err
	}
	if !utils.IsValidUUID(parentRowID) {
		return "", apperrors.NewValidationError("parentRowId", "section rows require a valid parent row ID")
	}
	values[constants.FieldParentRef] = parentRowID
	return s.tables.InsertRow(ctx, table, values)
}

// QueryRows reads submissions from the root table, or from a section's child
// table when sectionID is given.
func (s *FormService) QueryRows(ctx context.Context, formID, sectionID string, filters map[string]interface{}, limit, offset int) ([]map[string]interface{}, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	table := form.TableName
	if sectionID != "" {
		table, err = s.forms.GetSectionTable(ctx, sectionID)
		if err != nil {
			return nil, err
		}
	}
	return s.tables.QueryRows(ctx, table, filters, limit, offset)
}

func (s *FormService) validateDefinition(fields []models.FieldDefinition) error {
	seen := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		if f.ID == "" {
			f.ID = utils.GenerateID()
		}
		if seen[f.ID] {
			return apperrors.NewValidationError("id", fmt.Sprintf("duplicate field ID %s", f.ID))
		}
		seen[f.ID] = true
		if f.NativeLabel == "" {
			return apperrors.NewValidationError("nativeLabel", fmt.Sprintf("field %s has an empty label", f.ID))
		}
		if !constants.IsValidFieldType(string(f.LogicalType)) {
			return apperrors.NewValidationError("logicalType",
				fmt.Sprintf("unknown field type %q on field %s", f.LogicalType, f.ID))
		}
	}
	return nil
}

// SchemaDriftReport describes the disagreement between the field registry
// and a table's live column layout.
type SchemaDriftReport struct {
	TableName      string   `json:"tableName"`
	MissingColumns []string `json:"missingColumns,omitempty"`
	ExtraColumns   []string `json:"extraColumns,omitempty"`
}

// ValidateSchema compares the registered field metadata of a form against
// the actual INFORMATION_SCHEMA layout of every table backing it. A missing
// column is registered but absent from the database; an extra column exists
// in the database without a registry entry. System columns are never
// reported. An empty result means no drift.
func (s *FormService) ValidateSchema(ctx context.Context, formID string) ([]SchemaDriftReport, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	sectionTables, err := s.forms.GetSectionTables(ctx, formID)
	if err != nil {
		return nil, err
	}

	expected := map[string]map[string]bool{}
	var tables []string
	addTable := func(name string) {
		if name == "" || expected[name] != nil {
			return
		}
		expected[name] = map[string]bool{}
		tables = append(tables, name)
	}
	addTable(form.TableName)
	for _, table := range sectionTables {
		addTable(table)
	}

	for _, f := range form.Fields {
		if f.ColumnName == "" {
			continue
		}
		table := form.TableName
		if f.ParentSectionID != "" {
			table = sectionTables[f.ParentSectionID]
		}
		if expected[table] == nil {
			continue
		}
		expected[table][f.ColumnName] = true
	}

	var drifts []SchemaDriftReport
	for _, table := range tables {
		live, err := s.tables.GetTableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		actual := map[string]bool{}
		for _, col := range live {
			actual[col.ColumnName] = true
		}

		var missing, extra []string
		for col := range expected[table] {
			if !actual[col] {
				missing = append(missing, col)
			}
		}
		for _, col := range live {
			if constants.IsSystemColumn(col.ColumnName) {
				continue
			}
			if !expected[table][col.ColumnName] {
				extra = append(extra, col.ColumnName)
			}
		}
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		sort.Strings(missing)
		log.Printf("⚠️ Schema drift on `%s`: missing %v, extra %v", table, missing, extra)
		drifts = append(drifts, SchemaDriftReport{
			TableName:      table,
			MissingColumns: missing,
			ExtraColumns:   extra,
		})
	}
	return drifts, nil
}

func (s *FormService) compensateTables(ctx context.Context, created []string) {
	// Drop in reverse order so children go before their parent.
	for i := len(created) - 1; i >= 0; i-- {
		if err := s.tables.DropTable(ctx, created[i]); err != nil {
			log.Printf("🔥 Compensation failed for table `%s`: %v", created[i], err)
		}
	}
}
