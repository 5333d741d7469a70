package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
	"github.com/ppongpan/Q-Collector-sub006/pkg/identifier"
)

func newFormServiceMock(t *testing.T) (*FormService, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	txm := persistence.NewTransactionManager(db)
	forms := persistence.NewFormRepository(db)
	migrations := persistence.NewMigrationRepository(db)
	tables := NewTableManager(db)
	generator := NewSchemaGenerator(
		identifier.NewChain(identifier.NewDictionaryResolver(), identifier.NewHashResolver()),
		identifier.NewNormalizer(64), nil)
	executor := NewMigrationExecutor(db, txm, tables, forms, migrations, nil, generator, 100)
	queue := NewMigrationQueue(executor.Execute, 0)
	svc := NewFormService(db, txm, forms, tables, generator, NewMigrationPlanner(), queue, executor, NewRowValidator())
	return svc, mock, func() {
		queue.Shutdown()
		_ = db.Close()
	}
}

func TestCreateFormCompensatesOnFailure(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	// Root table creates, child table fails, root table must be dropped again.
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS `form`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS `address`").
		WillReturnError(assert.AnError)
	mock.ExpectExec("DROP TABLE IF EXISTS `form`").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.CreateForm(context.Background(), &models.FormDefinition{
		NativeTitle: "แบบฟอร์ม",
		Sections: []models.SectionDefinition{
			{ID: "sec-1", NativeTitle: "ที่อยู่"},
		},
		Fields: []models.FieldDefinition{
			{ID: "fld-1", NativeLabel: "ชื่อ", LogicalType: constants.FieldTypeShortText},
			{ID: "fld-2", NativeLabel: "จังหวัด", LogicalType: constants.FieldTypeShortText, ParentSectionID: "sec-1"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, "SCHEMA_CREATION_FAILED", apperrors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFormRejectsBadDefinition(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	_, err := svc.CreateForm(context.Background(), &models.FormDefinition{
		NativeTitle: "แบบฟอร์ม",
		Fields: []models.FieldDefinition{
			{ID: "fld-1", NativeLabel: "", LogicalType: constants.FieldTypeShortText},
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateSchemaReportsDrift(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT native_title").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"native_title", "description", "table_name", "created_date"}).
			AddRow("แบบฟอร์มติดต่อ", "", "contact_form", time.Now()))
	mock.ExpectQuery("SELECT id, native_title, ordinal FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "native_title", "ordinal"}))
	mock.ExpectQuery("FROM _system_field").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "section_id", "native_label", "logical_type", "column_name",
			"required", "ordinal", "options", "validation_rule"}).
			AddRow("fld-1", "", "ชื่อ", "short_text", "name", true, 0, "[]", "").
			AddRow("fld-2", "", "อีเมล", "short_text", "email", false, 1, "[]", ""))
	mock.ExpectQuery("SELECT id, table_name FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "table_name"}))

	// Live layout misses `email` and carries an unregistered `phone`.
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("contact_form").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("id", "varchar(36)", "NO").
			AddRow("form_ref", "varchar(36)", "NO").
			AddRow("submitted_at", "timestamp", "NO").
			AddRow("name", "varchar(255)", "YES").
			AddRow("phone", "varchar(255)", "YES"))

	drifts, err := svc.ValidateSchema(context.Background(), "frm-1")
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "contact_form", drifts[0].TableName)
	assert.Equal(t, []string{"email"}, drifts[0].MissingColumns)
	assert.Equal(t, []string{"phone"}, drifts[0].ExtraColumns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateSchemaCleanForm(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT native_title").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"native_title", "description", "table_name", "created_date"}).
			AddRow("แบบฟอร์มติดต่อ", "", "contact_form", time.Now()))
	mock.ExpectQuery("SELECT id, native_title, ordinal FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "native_title", "ordinal"}))
	mock.ExpectQuery("FROM _system_field").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "section_id", "native_label", "logical_type", "column_name",
			"required", "ordinal", "options", "validation_rule"}).
			AddRow("fld-1", "", "ชื่อ", "short_text", "name", true, 0, "[]", ""))
	mock.ExpectQuery("SELECT id, table_name FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "table_name"}))
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("contact_form").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("id", "varchar(36)", "NO").
			AddRow("name", "varchar(255)", "YES"))

	drifts, err := svc.ValidateSchema(context.Background(), "frm-1")
	require.NoError(t, err)
	assert.Empty(t, drifts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A contact form holding name and age gains an email field: the plan is a
// single ADD_FIELD against the root table and nothing else.
func TestPlanEditAddsEmailField(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT native_title").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"native_title", "description", "table_name", "created_date"}).
			AddRow("แบบฟอร์มติดต่อ", "", "contact_form", time.Now()))
	mock.ExpectQuery("SELECT id, native_title, ordinal FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "native_title", "ordinal"}))
	mock.ExpectQuery("FROM _system_field").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "section_id", "native_label", "logical_type", "column_name",
			"required", "ordinal", "options", "validation_rule"}).
			AddRow("fld-1", "", "ชื่อ", "short_text", "name", true, 0, "[]", "").
			AddRow("fld-2", "", "อายุ", "number", "age", false, 1, "[]", ""))
	mock.ExpectQuery("SELECT id, table_name FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "table_name"}))

	ops, err := svc.PlanEdit(context.Background(), "frm-1", FormEditRequest{
		Fields: []models.FieldDefinition{
			{ID: "fld-1", NativeLabel: "ชื่อ", LogicalType: constants.FieldTypeShortText, Required: true, Ordinal: 0},
			{ID: "fld-2", NativeLabel: "อายุ", LogicalType: constants.FieldTypeNumber, Ordinal: 1},
			{ID: "fld-3", NativeLabel: "อีเมล", LogicalType: constants.FieldTypeShortText, Ordinal: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, constants.OpAddField, ops[0].Type)
	assert.Equal(t, "contact_form", ops[0].TableName)
	require.NotNil(t, ops[0].After)
	assert.Equal(t, "อีเมล", ops[0].After.NativeLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRowRejectsMalformedParentRef(t *testing.T) {
	svc, mock, closeFn := newFormServiceMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT native_title").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"native_title", "description", "table_name", "created_date"}).
			AddRow("แบบฟอร์มติดต่อ", "", "contact_form", time.Now()))
	mock.ExpectQuery("SELECT id, native_title, ordinal FROM _system_section").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "native_title", "ordinal"}).
			AddRow("sec-1", "ที่อยู่", 0))
	mock.ExpectQuery("FROM _system_field").
		WithArgs("frm-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "section_id", "native_label", "logical_type", "column_name",
			"required", "ordinal", "options", "validation_rule"}).
			AddRow("fld-1", "sec-1", "จังหวัด", "short_text", "province", false, 0, "[]", ""))
	mock.ExpectQuery("SELECT table_name FROM _system_section").
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("contact_address"))

	_, err := svc.SubmitRow(context.Background(), "frm-1", "sec-1", "not-a-uuid",
		map[string]interface{}{"province": "เชียงใหม่"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
