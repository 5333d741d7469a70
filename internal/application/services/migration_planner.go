package services

import (
	"fmt"
	"log"
	"sort"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// PlanRequest carries both sides of a form edit into the planner. OldFields
// must be the full, unfiltered field list from the registry; NewFields is the
// edited definition. RemovedSections lists section IDs the caller explicitly
// wants gone ("" acknowledges emptying the main form) - without that
// acknowledgment, a bucket of fields vanishing wholesale is treated as a
// truncated request, not an edit.
type PlanRequest struct {
	FormID          string
	RootTable       string
	SectionTables   map[string]string
	OldFields       []models.FieldDefinition
	NewFields       []models.FieldDefinition
	RemovedSections []string
}

// MigrationPlanner diffs two versions of a form definition into an ordered
// list of migration operations. Identity is the field ID, never the label or
// position: a changed label on the same ID is a RENAME, a new ID is an ADD.
// The planner only plans; it touches no database state.
type MigrationPlanner struct{}

func NewMigrationPlanner() *MigrationPlanner {
	return &MigrationPlanner{}
}

// Plan computes the operations that evolve the old definition into the new
// one. Operations come out in a fixed order - deletes, adds, renames, type
// changes, then a single reorder - so that applying them sequentially is
// always valid: deletes free names before adds claim new ones.
func (p *MigrationPlanner) Plan(req PlanRequest) ([]models.MigrationOperation, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	oldByID := indexFields(req.OldFields)
	newByID := indexFields(req.NewFields)

	var deletes, adds, renames, typeChanges []models.MigrationOperation

	for _, f := range sortFields(req.OldFields) {
		if _, kept := newByID[f.ID]; kept {
			continue
		}
		table, err := p.tableFor(req, f)
		if err != nil {
			return nil, err
		}
		before := f
		deletes = append(deletes, models.MigrationOperation{
			Type:      constants.OpDeleteField,
			FormID:    req.FormID,
			TableName: table,
			FieldID:   f.ID,
			Before:    &before,
		})
	}

	reorder := map[string]int{}
	for _, f := range sortFields(req.NewFields) {
		old, existed := oldByID[f.ID]
		table, err := p.tableFor(req, f)
		if err != nil {
			return nil, err
		}

		if !existed {
			after := f
			adds = append(adds, models.MigrationOperation{
				Type:      constants.OpAddField,
				FormID:    req.FormID,
				TableName: table,
				FieldID:   f.ID,
				After:     &after,
			})
			continue
		}

		if old.ParentSectionID != f.ParentSectionID {
			return nil, apperrors.NewValidationError("parentSectionId",
				fmt.Sprintf("field %s cannot move between sections; delete and re-add it", f.ID))
		}

		if old.NativeLabel != f.NativeLabel {
			before, after := old, f
			// Carry the current column name forward; the executor resolves
			// the new name against the live table at apply time.
			before.ColumnName = old.ColumnName
			renames = append(renames, models.MigrationOperation{
				Type:      constants.OpRenameField,
				FormID:    req.FormID,
				TableName: table,
				FieldID:   f.ID,
				Before:    &before,
				After:     &after,
			})
		}

		if old.LogicalType != f.LogicalType {
			before, after := old, f
			after.ColumnName = old.ColumnName
			typeChanges = append(typeChanges, models.MigrationOperation{
				Type:      constants.OpChangeType,
				FormID:    req.FormID,
				TableName: table,
				FieldID:   f.ID,
				Before:    &before,
				After:     &after,
			})
		}

		if old.Ordinal != f.Ordinal {
			reorder[f.ID] = f.Ordinal
		}
	}

	ops := make([]models.MigrationOperation, 0, len(deletes)+len(adds)+len(renames)+len(typeChanges)+1)
	ops = append(ops, deletes...)
	ops = append(ops, adds...)
	ops = append(ops, renames...)
	ops = append(ops, typeChanges...)

	if len(reorder) > 0 {
		ops = append(ops, models.MigrationOperation{
			Type:      constants.OpReorderFields,
			FormID:    req.FormID,
			TableName: req.RootTable,
			Ordinals:  reorder,
		})
	}

	log.Printf("📋 Plan for form %s: %d delete, %d add, %d rename, %d type change, reorder=%v",
		req.FormID, len(deletes), len(adds), len(renames), len(typeChanges), len(reorder) > 0)
	return ops, nil
}

func (p *MigrationPlanner) validate(req PlanRequest) error {
	seen := map[string]bool{}
	for _, f := range req.NewFields {
		if f.ID == "" {
			return apperrors.NewValidationError("id", "field without an ID")
		}
		if seen[f.ID] {
			return apperrors.NewValidationError("id", fmt.Sprintf("duplicate field ID %s", f.ID))
		}
		seen[f.ID] = true
		if !constants.IsValidFieldType(string(f.LogicalType)) {
			return apperrors.NewValidationError("logicalType",
				fmt.Sprintf("unknown field type %q on field %s", f.LogicalType, f.ID))
		}
		if f.NativeLabel == "" {
			return apperrors.NewValidationError("nativeLabel",
				fmt.Sprintf("field %s has an empty label", f.ID))
		}
	}

	return p.guardPopulations(req)
}

// guardPopulations rejects a diff where every field of a populated bucket is
// missing from the new list and the caller did not acknowledge removing that
// bucket. This catches clients that send back a filtered subset of the form
// (e.g. only main-form fields) instead of the full definition, which would
// otherwise plan a mass delete.
func (p *MigrationPlanner) guardPopulations(req PlanRequest) error {
	removed := map[string]bool{}
	for _, s := range req.RemovedSections {
		removed[s] = true
	}

	oldBuckets := map[string]int{}
	for _, f := range req.OldFields {
		oldBuckets[f.ParentSectionID]++
	}
	newBuckets := map[string]int{}
	for _, f := range req.NewFields {
		newBuckets[f.ParentSectionID]++
	}

	for bucket, count := range oldBuckets {
		if count > 0 && newBuckets[bucket] == 0 && !removed[bucket] {
			name := bucket
			if name == "" {
				name = "main form"
			}
			return apperrors.NewValidationError("fields",
				fmt.Sprintf("all fields of %s are missing from the new definition; "+
					"list it in removedSections to confirm deleting them", name))
		}
	}
	return nil
}

func (p *MigrationPlanner) tableFor(req PlanRequest, f models.FieldDefinition) (string, error) {
	if f.ParentSectionID == "" {
		return req.RootTable, nil
	}
	table, ok := req.SectionTables[f.ParentSectionID]
	if !ok || table == "" {
		return "", apperrors.NewValidationError("parentSectionId",
			fmt.Sprintf("no table known for section %s", f.ParentSectionID))
	}
	return table, nil
}

func indexFields(fields []models.FieldDefinition) map[string]models.FieldDefinition {
	m := make(map[string]models.FieldDefinition, len(fields))
	for _, f := range fields {
		m[f.ID] = f
	}
	return m
}

func sortFields(fields []models.FieldDefinition) []models.FieldDefinition {
	out := make([]models.FieldDefinition, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].ID < out[j].ID
	})
	return out
}
