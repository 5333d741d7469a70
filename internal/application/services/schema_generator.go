package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/fieldtypes"
	"github.com/ppongpan/Q-Collector-sub006/pkg/identifier"
	"github.com/ppongpan/Q-Collector-sub006/pkg/utils"
)

// SchemaGenerator turns a form definition with native-language (Thai) labels
// into physical table definitions. Generation is deterministic: the same form
// definition always produces the same tables, columns, and DDL. Resolution of
// native text goes through the resolver chain; the final SQL-safe spelling is
// produced by the normalizer with collision and reserved-word handling.
type SchemaGenerator struct {
	resolver   identifier.Resolver
	normalizer *identifier.Normalizer
	fallback   *identifier.HashResolver
	idents     *persistence.IdentifierRepository
}

func NewSchemaGenerator(resolver identifier.Resolver, normalizer *identifier.Normalizer, idents *persistence.IdentifierRepository) *SchemaGenerator {
	return &SchemaGenerator{
		resolver:   resolver,
		normalizer: normalizer,
		fallback:   identifier.NewHashResolver(),
		idents:     idents,
	}
}

// Generate produces the table definitions for a form: one root table plus one
// child table per section that contains fields. It fills in form.TableName and
// each field's ColumnName as a side effect so callers can persist the
// resolved metadata alongside the physical schema.
func (g *SchemaGenerator) Generate(ctx context.Context, form *models.FormDefinition) ([]schema.TableDefinition, error) {
	log.Printf("📐 Generating schema for form %s (%s)", form.ID, form.NativeTitle)

	tableName, err := g.resolveTableName(ctx, form.NativeTitle, map[string]bool{})
	if err != nil {
		return nil, err
	}
	form.TableName = tableName

	// Fields grouped by section; "" is the root table bucket. Ordering
	// within each bucket follows field ordinal then ID so that generation
	// is stable regardless of input order.
	buckets := groupFields(form)

	rootDef := schema.TableDefinition{
		TableName:   tableName,
		Description: form.NativeTitle,
		Columns:     rootSystemColumns(),
		Indices:     rootSystemIndices(tableName),
	}

	existing := systemColumnSet(rootDef.Columns)
	for _, f := range buckets[""] {
		col, err := g.generateColumn(ctx, f, existing)
		if err != nil {
			return nil, err
		}
		rootDef.Columns = append(rootDef.Columns, col)
	}

	tables := []schema.TableDefinition{rootDef}
	usedTableNames := map[string]bool{tableName: true}

	// Sections in declared order.
	sections := make([]models.SectionDefinition, len(form.Sections))
	copy(sections, form.Sections)
	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].Ordinal != sections[j].Ordinal {
			return sections[i].Ordinal < sections[j].Ordinal
		}
		return sections[i].ID < sections[j].ID
	})

	for _, sec := range sections {
		fields := buckets[sec.ID]
		if len(fields) == 0 {
			continue
		}

		childName, err := g.resolveTableName(ctx, sec.NativeTitle, usedTableNames)
		if err != nil {
			return nil, err
		}
		usedTableNames[childName] = true

		childDef := schema.TableDefinition{
			TableName:   childName,
			ParentTable: tableName,
			SectionID:   sec.ID,
			Description: sec.NativeTitle,
			Columns:     childSystemColumns(),
			Indices:     childSystemIndices(childName),
			ForeignKeys: childForeignKeys(tableName),
		}

		childExisting := systemColumnSet(childDef.Columns)
		for _, f := range fields {
			col, err := g.generateColumn(ctx, f, childExisting)
			if err != nil {
				return nil, err
			}
			childDef.Columns = append(childDef.Columns, col)
		}

		tables = append(tables, childDef)
	}

	log.Printf("✅ Schema generated for form %s: %d table(s)", form.ID, len(tables))
	return tables, nil
}

// ResolveColumnName resolves a native field label to a SQL column name that
// does not collide with any name in existing. Used both at generation time
// and when an ADD_FIELD or RENAME_FIELD migration needs a fresh column name.
// Returns the resolved name and the resolution confidence.
func (g *SchemaGenerator) ResolveColumnName(ctx context.Context, nativeLabel string, existing map[string]bool) (string, string, error) {
	name, confidence, err := g.resolveName(ctx, nativeLabel, identifier.UsageColumn, existing)
	if err != nil {
		return "", "", err
	}

	g.cacheResolution(nativeLabel, identifier.UsageColumn, name, confidence)
	return name, string(confidence), nil
}

func (g *SchemaGenerator) resolveTableName(ctx context.Context, nativeText string, existing map[string]bool) (string, error) {
	name, confidence, err := g.resolveName(ctx, nativeText, identifier.UsageTable, existing)
	if err != nil {
		return "", err
	}
	if constants.IsSystemTable(name) {
		return "", apperrors.NewInvalidIdentifierError(nativeText)
	}

	g.cacheResolution(nativeText, identifier.UsageTable, name, confidence)
	return name, nil
}

// resolveName runs native text through the resolver chain and the normalizer.
// A resolution that sanitizes to nothing (all-digit or all-punctuation
// labels pass an ASCII chain verbatim) is not an error: it falls back to a
// deterministic hash-derived identifier at fallback confidence.
func (g *SchemaGenerator) resolveName(ctx context.Context, nativeText string, usage identifier.Usage, existing map[string]bool) (string, constants.Confidence, error) {
	resolution, err := g.resolver.Resolve(ctx, nativeText, usage)
	if err != nil {
		return "", "", err
	}

	name, err := g.normalizer.Normalize(resolution.Text, existing)
	if apperrors.IsInvalidIdentifier(err) {
		resolution, err = g.fallback.Resolve(ctx, nativeText, usage)
		if err != nil {
			return "", "", err
		}
		name, err = g.normalizer.Normalize(resolution.Text, existing)
	}
	if err != nil {
		return "", "", err
	}
	return name, resolution.Confidence, nil
}

func (g *SchemaGenerator) cacheResolution(nativeText string, usage identifier.Usage, name string, conf constants.Confidence) {
	if g.idents == nil {
		return
	}
	if err := g.idents.Append(&models.ResolvedIdentifier{
		ID:         utils.GenerateID(),
		NativeText: nativeText,
		Usage:      string(usage),
		Identifier: name,
		Confidence: conf,
		CreatedAt:  time.Now(),
	}, nil); err != nil {
		log.Printf("⚠️ Failed to cache identifier for %q: %v", nativeText, err)
	}
}

func (g *SchemaGenerator) generateColumn(ctx context.Context, field *models.FieldDefinition, existing map[string]bool) (schema.ColumnDefinition, error) {
	name, _, err := g.ResolveColumnName(ctx, field.NativeLabel, existing)
	if err != nil {
		return schema.ColumnDefinition{}, err
	}
	existing[name] = true
	field.ColumnName = name

	sqlType := fieldtypes.GetSQLType(string(field.LogicalType))
	if sqlType == "" {
		return schema.ColumnDefinition{}, apperrors.NewValidationError("logicalType",
			fmt.Sprintf("unknown field type %q", field.LogicalType))
	}

	// New columns are always nullable; old rows have no value for them and
	// required-ness is enforced at the API layer, not by the database.
	return schema.ColumnDefinition{
		Name:        name,
		Type:        sqlType,
		LogicalType: string(field.LogicalType),
		Nullable:    true,
	}, nil
}

// groupFields groups pointers into form.Fields by parent section ID, each
// bucket sorted by ordinal then ID.
func groupFields(form *models.FormDefinition) map[string][]*models.FieldDefinition {
	grouped := make(map[string][]*models.FieldDefinition)
	for i := range form.Fields {
		f := &form.Fields[i]
		grouped[f.ParentSectionID] = append(grouped[f.ParentSectionID], f)
	}
	for _, bucket := range grouped {
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].Ordinal != bucket[j].Ordinal {
				return bucket[i].Ordinal < bucket[j].Ordinal
			}
			return bucket[i].ID < bucket[j].ID
		})
	}
	return grouped
}

func systemColumnSet(cols []schema.ColumnDefinition) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c.Name] = true
	}
	return set
}
