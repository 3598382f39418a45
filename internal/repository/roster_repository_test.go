package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRosterRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRosterRepositoryGetShift(t *testing.T) {
	db, mock, cleanup := newRosterRepoMock(t)
	defer cleanup()

	repo := NewRosterRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "org_id", "employee_id", "employee_name", "shift_date", "start_time", "end_time",
		"facility", "position", "status", "created_at", "updated_at",
	}).AddRow("shift-1", "org-1", "emp-1", "Alice", now, "08:00", "16:00", nil, nil, "SCHEDULED", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM shift_assignments WHERE id = $1")).
		WithArgs("shift-1").
		WillReturnRows(rows)

	shift, err := repo.GetShift(context.Background(), "shift-1")
	require.NoError(t, err)
	require.Equal(t, "emp-1", shift.EmployeeID)
	require.True(t, shift.IsMutable())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryReassignOwnerGuard(t *testing.T) {
	db, mock, cleanup := newRosterRepoMock(t)
	defer cleanup()

	repo := NewRosterRepository(db)
	params := ReassignParams{
		ShiftID:        "shift-1",
		FromEmployeeID: "emp-1",
		ToEmployeeID:   "emp-2",
		ToEmployeeName: "Bob",
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ReassignOwner(context.Background(), params))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ReassignOwner(context.Background(), params)
	require.ErrorIs(t, err, ErrOwnerChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositorySwapOwnersRollsBackOnSecondGuardMiss(t *testing.T) {
	db, mock, cleanup := newRosterRepoMock(t)
	defer cleanup()

	repo := NewRosterRepository(db)
	first := ReassignParams{ShiftID: "shift-1", FromEmployeeID: "emp-1", ToEmployeeID: "emp-2", ToEmployeeName: "Bob"}
	second := ReassignParams{ShiftID: "shift-2", FromEmployeeID: "emp-2", ToEmployeeID: "emp-1", ToEmployeeName: "Alice"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SwapOwners(context.Background(), first, second)
	require.ErrorIs(t, err, ErrOwnerChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositorySwapOwnersCommitsBoth(t *testing.T) {
	db, mock, cleanup := newRosterRepoMock(t)
	defer cleanup()

	repo := NewRosterRepository(db)
	first := ReassignParams{ShiftID: "shift-1", FromEmployeeID: "emp-1", ToEmployeeID: "emp-2", ToEmployeeName: "Bob"}
	second := ReassignParams{ShiftID: "shift-2", FromEmployeeID: "emp-2", ToEmployeeID: "emp-1", ToEmployeeName: "Alice"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE shift_assignments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SwapOwners(context.Background(), first, second))
	require.NoError(t, mock.ExpectationsWereMet())
}
