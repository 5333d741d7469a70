package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/schema"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

func newTableManagerMock(t *testing.T) (*TableManager, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return NewTableManager(db), mock, func() { _ = db.Close() }
}

func columnRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"})
	for _, name := range names {
		rows.AddRow(name, "varchar(500)", "YES")
	}
	return rows
}

func TestCreateTableRejectsBrokenDDL(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	// A definition with no columns produces DDL that cannot parse; the guard
	// must stop it before it reaches the database.
	err := tm.CreateTable(context.Background(), schema.TableDefinition{TableName: "empty"})
	require.Error(t, err)
	assert.Equal(t, "SCHEMA_CREATION_FAILED", apperrors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTableColumns(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
		WithArgs("contact_form").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}).
			AddRow("id", "varchar(36)", "NO").
			AddRow("name", "varchar(500)", "YES"))

	cols, err := tm.GetTableColumns(context.Background(), "contact_form")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].ColumnName)
	assert.False(t, cols[0].Nullable)
	assert.True(t, cols[1].Nullable)
}

func TestInsertRowDropsUnknownColumns(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
		WithArgs("contact_form").
		WillReturnRows(columnRows("id", "name"))
	// Only the live column lands in the statement.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contact_form` (`id`, `name`) VALUES (?, ?)")).
		WithArgs(sqlmock.AnyArg(), "สมชาย").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rowID, err := tm.InsertRow(context.Background(), "contact_form", map[string]interface{}{
		"name":         "สมชาย",
		"stale_column": "1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRowGeneratesID(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
		WithArgs("contact_form").
		WillReturnRows(columnRows("id", "name"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `contact_form` (`id`, `name`) VALUES (?, ?)")).
		WithArgs(sqlmock.AnyArg(), "สมชาย").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rowID, err := tm.InsertRow(context.Background(), "contact_form", map[string]interface{}{"name": "สมชาย"})
	require.NoError(t, err)
	assert.NotEmpty(t, rowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRowUnknownTable(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
		WithArgs("ghost_table").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE"}))

	_, err := tm.InsertRow(context.Background(), "ghost_table", nil)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueryRowsOrdering(t *testing.T) {
	tm, mock, closeFn := newTableManagerMock(t)
	defer closeFn()

	t.Run("root tables order newest first", func(t *testing.T) {
		mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
			WithArgs("contact_form").
			WillReturnRows(columnRows("id", "submitted_at", "name"))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `contact_form` ORDER BY `submitted_at` DESC LIMIT 10")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "submitted_at", "name"}).
				AddRow("row-1", "2026-08-29 10:00:00", []byte("สมชาย")))

		rows, err := tm.QueryRows(context.Background(), "contact_form", nil, 10, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "สมชาย", rows[0]["name"])
	})

	t.Run("child tables order by row position", func(t *testing.T) {
		mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
			WithArgs("contact_address").
			WillReturnRows(columnRows("id", "parent_ref", "row_order"))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `contact_address` WHERE `parent_ref` = ? ORDER BY `row_order` ASC")).
			WithArgs("row-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "parent_ref", "row_order"}))

		_, err := tm.QueryRows(context.Background(), "contact_address",
			map[string]interface{}{"parent_ref": "row-1"}, 0, 0)
		require.NoError(t, err)
	})

	t.Run("unknown filter column is rejected", func(t *testing.T) {
		mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE").
			WithArgs("contact_form").
			WillReturnRows(columnRows("id"))

		_, err := tm.QueryRows(context.Background(), "contact_form",
			map[string]interface{}{"nope": "x"}, 0, 0)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, validateIdentifier("contact_form"))
	assert.Error(t, validateIdentifier(""))
	assert.Error(t, validateIdentifier("x`y"))
	assert.Error(t, validateIdentifier("x;DROP TABLE users"))
}
