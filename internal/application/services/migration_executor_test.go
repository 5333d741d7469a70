package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

func newExecutorMock(t *testing.T) (*MigrationExecutor, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	txm := persistence.NewTransactionManager(db)
	executor := NewMigrationExecutor(db, txm,
		NewTableManager(db),
		persistence.NewFormRepository(db),
		persistence.NewMigrationRepository(db),
		nil, nil, 100)
	return executor, mock, func() { _ = db.Close() }
}

func TestNextAppliedAtStrictlyIncreases(t *testing.T) {
	e := &MigrationExecutor{}

	prev := e.nextAppliedAt()
	for i := 0; i < 1000; i++ {
		next := e.nextAppliedAt()
		require.True(t, next.After(prev), "applied timestamps must be strictly increasing")
		prev = next
	}
}

func TestExecuteUnknownOperationRecordsFailure(t *testing.T) {
	executor, mock, closeFn := newExecutorMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+constants.TableMigration)).
		WithArgs(sqlmock.AnyArg(), "form-1", "contact_form", "TRUNCATE_EVERYTHING",
			nil, nil, nil, "PENDING", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableMigration+" SET status = ?, error = ?, applied_date = ? WHERE id = ?")).
		WithArgs("FAILED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := executor.Execute(context.Background(), models.MigrationOperation{
		Type:      "TRUNCATE_EVERYTHING",
		FormID:    "form-1",
		TableName: "contact_form",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	require.NotNil(t, record)
	assert.Equal(t, constants.MigrationFailed, record.Status)
	assert.NotEmpty(t, record.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReorder(t *testing.T) {
	executor, mock, closeFn := newExecutorMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+constants.TableMigration)).
		WithArgs(sqlmock.AnyArg(), "form-1", "contact_form", "REORDER_FIELDS",
			nil, `{"fld-1":2}`, nil, "PENDING", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Prior ordinals are captured into the before-state for rollback.
	mock.ExpectQuery("SELECT (.+) FROM "+constants.TableField).
		WithArgs("form-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "section_id", "native_label", "logical_type", "column_name",
			"required", "ordinal", "options", "validation_rule",
		}).AddRow("fld-1", "", "ชื่อ", "short_text", "name", false, 0, "[]", ""))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableMigration+" SET before_state = ?, after_state = ? WHERE id = ? AND status = ?")).
		WithArgs(`{"fld-1":0}`, `{"fld-1":2}`, sqlmock.AnyArg(), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableField+" SET ordinal = ?")).
		WithArgs(2, "fld-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableMigration+" SET status = ?, error = ?, applied_date = ? WHERE id = ?")).
		WithArgs("APPLIED", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := executor.Execute(context.Background(), models.MigrationOperation{
		Type:      constants.OpReorderFields,
		FormID:    "form-1",
		TableName: "contact_form",
		Ordinals:  map[string]int{"fld-1": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MigrationApplied, record.Status)
	require.NotNil(t, record.AppliedAt)
	assert.JSONEq(t, `{"fld-1":0}`, string(record.BeforeState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDeleteWithoutResolvedColumnFails(t *testing.T) {
	executor, mock, closeFn := newExecutorMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + constants.TableMigration)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE " + constants.TableMigration + " SET status = ?")).
		WithArgs("FAILED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := executor.Execute(context.Background(), models.MigrationOperation{
		Type:      constants.OpDeleteField,
		FormID:    "form-1",
		TableName: "contact_form",
		Before:    &models.FieldDefinition{ID: "fld-1"}, // no column name
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestExecuteTypeChangeRejectsInconvertibleValues(t *testing.T) {
	executor, mock, closeFn := newExecutorMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + constants.TableMigration)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// The pre-change scan finds a value the target type cannot hold; the
	// operation fails before any ALTER TABLE is attempted.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, CAST(`score` AS CHAR) FROM `contact_form` ORDER BY `id`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "value"}).
			AddRow("r1", "42").
			AddRow("r2", "forty-two"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE " + constants.TableMigration + " SET status = ?")).
		WithArgs("FAILED", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := executor.Execute(context.Background(), models.MigrationOperation{
		Type:      constants.OpChangeType,
		FormID:    "form-1",
		TableName: "contact_form",
		Before: &models.FieldDefinition{
			ID: "fld-1", NativeLabel: "คะแนน",
			LogicalType: constants.FieldTypeShortText, ColumnName: "score",
		},
		After: &models.FieldDefinition{
			ID: "fld-1", NativeLabel: "คะแนน",
			LogicalType: constants.FieldTypeNumber, ColumnName: "score",
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsIncompatibleTypeChange(err))

	var ite *apperrors.IncompatibleTypeChangeError
	require.True(t, errors.As(err, &ite))
	require.Len(t, ite.Rows, 1)
	assert.Equal(t, "r2", ite.Rows[0].RowID)
	assert.Equal(t, "forty-two", ite.Rows[0].Value)

	require.NotNil(t, record)
	assert.Equal(t, constants.MigrationFailed, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
