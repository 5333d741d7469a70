package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

func newMigrationRepoMock(t *testing.T) (*MigrationRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	return NewMigrationRepository(db), mock, func() { _ = db.Close() }
}

func TestMigrationCreate(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	record := &models.MigrationRecord{
		ID:            "mig-1",
		FormID:        "form-1",
		TableName:     "contact_form",
		OperationType: constants.OpAddField,
		Status:        constants.MigrationPending,
		AfterState:    []byte(`{"id":"fld-1"}`),
		CreatedAt:     time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+constants.TableMigration)).
		WithArgs(record.ID, record.FormID, record.TableName, "ADD_FIELD",
			nil, `{"id":"fld-1"}`, nil, "PENDING", "", record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Create(record, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFinish(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	appliedAt := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableMigration+" SET status = ?, error = ?, applied_date = ? WHERE id = ?")).
		WithArgs("APPLIED", "", appliedAt, "mig-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Finish("mig-1", constants.MigrationApplied, "", appliedAt, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFinishRefusesNonTerminalStatus(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	// No Exec expectation: the repository must not touch the database.
	err := repo.Finish("mig-1", constants.MigrationApplying, "", time.Now(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminal")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationUpdateStatesOnlyTouchesPending(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE "+constants.TableMigration+" SET before_state = ?, after_state = ? WHERE id = ? AND status = ?")).
		WithArgs(nil, `{"id":"fld-1","columnName":"name"}`, "mig-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStates("mig-1", nil, []byte(`{"id":"fld-1","columnName":"name"}`), nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationGetByID(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	created := time.Now()
	applied := created.Add(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "form_id", "table_name", "operation_type", "before_state", "after_state",
		"backup_id", "status", "error", "created_date", "applied_date",
	}).AddRow("mig-1", "form-1", "contact_form", "DELETE_FIELD",
		`{"id":"fld-1"}`, nil, "backup-1", "APPLIED", "", created, applied)

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableMigration + " WHERE id = ?").
		WithArgs("mig-1").WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "mig-1")
	require.NoError(t, err)
	assert.Equal(t, constants.OpDeleteField, record.OperationType)
	assert.Equal(t, constants.MigrationApplied, record.Status)
	assert.JSONEq(t, `{"id":"fld-1"}`, string(record.BeforeState))
	assert.Nil(t, record.AfterState)
	require.NotNil(t, record.BackupID)
	assert.Equal(t, "backup-1", *record.BackupID)
	require.NotNil(t, record.AppliedAt)
}

func TestMigrationGetByIDNotFound(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableMigration + " WHERE id = ?").
		WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestMigrationListByFormNewestFirst(t *testing.T) {
	repo, mock, closeFn := newMigrationRepoMock(t)
	defer closeFn()

	created := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "form_id", "table_name", "operation_type", "before_state", "after_state",
		"backup_id", "status", "error", "created_date", "applied_date",
	}).
		AddRow("mig-2", "form-1", "contact_form", "ADD_FIELD", nil, nil, nil, "APPLIED", "", created, created).
		AddRow("mig-1", "form-1", "contact_form", "ADD_FIELD", nil, nil, nil, "FAILED", "boom", created.Add(-time.Hour), nil)

	mock.ExpectQuery("SELECT (.+) FROM " + constants.TableMigration +
		" WHERE form_id = \\? ORDER BY created_date DESC, id DESC").
		WithArgs("form-1").WillReturnRows(rows)

	records, err := repo.ListByForm(context.Background(), "form-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "mig-2", records[0].ID)
	assert.Equal(t, "boom", records[1].Error)
	assert.Nil(t, records[1].AppliedAt)
}
