package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shift-exchange-api/internal/models"
)

func newExchangeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func swapRequestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "org_id", "kind", "requester_id", "requester_name", "requester_shift_id",
		"target_id", "target_name", "target_shift_id",
		"requester_shift_date", "requester_shift_start", "requester_shift_end",
		"target_shift_date", "target_shift_start", "target_shift_end",
		"status", "reason", "responded_at", "manager_id", "manager_name", "manager_note", "decided_at",
		"created_at", "updated_at",
	})
}

func TestExchangeRepositoryCreateRegistersShiftRefs(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_shift_refs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req := &models.SwapRequest{
		OrgID:          "org-1",
		Kind:           models.ExchangeKindGiveaway,
		RequesterID:    "emp-1",
		RequesterName:  "Alice",
		RequesterShift: "shift-1",
	}
	require.NoError(t, repo.Create(context.Background(), req))
	require.NotEmpty(t, req.ID)
	require.Equal(t, models.ExchangeStatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryCreateSwapRegistersBothShifts(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_shift_refs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_shift_refs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	targetShift := "shift-2"
	req := &models.SwapRequest{
		OrgID:          "org-1",
		Kind:           models.ExchangeKindSwap,
		RequesterID:    "emp-1",
		RequesterName:  "Alice",
		RequesterShift: "shift-1",
		TargetShift:    &targetShift,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryCreateDuplicateShiftRef(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exchange_shift_refs")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	req := &models.SwapRequest{
		OrgID:          "org-1",
		Kind:           models.ExchangeKindGiveaway,
		RequesterID:    "emp-1",
		RequesterName:  "Alice",
		RequesterShift: "shift-1",
	}
	err := repo.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicateActiveShift)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryClaimWinsAndLoses(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	params := ClaimParams{
		ID:          "req-1",
		TargetID:    "emp-2",
		TargetName:  "Bob",
		RespondedAt: time.Now().UTC(),
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Claim(context.Background(), params))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Claim(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryUpdateStatusGuardMiss(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), UpdateStatusParams{
		ID:   "req-1",
		From: []models.ExchangeStatus{models.ExchangeStatusPending},
		To:   models.ExchangeStatusCancelled,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryUpdateStatusReleasesRefsOnTerminal(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exchange_shift_refs SET released_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), UpdateStatusParams{
		ID:   "req-1",
		From: []models.ExchangeStatus{models.ExchangeStatusManagerApproved},
		To:   models.ExchangeStatusCompleted,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryUpdateStatusKeepsRefsOnNonTerminal(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE swap_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	managerID := "mgr-1"
	managerName := "Carol"
	err := repo.UpdateStatus(context.Background(), UpdateStatusParams{
		ID:          "req-1",
		From:        []models.ExchangeStatus{models.ExchangeStatusManagerPending},
		To:          models.ExchangeStatusManagerApproved,
		ManagerID:   &managerID,
		ManagerName: &managerName,
		DecidedAt:   &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryListOpenPool(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	now := time.Now().UTC()
	rows := swapRequestRows().AddRow(
		"req-1", "org-1", "GIVEAWAY", "emp-1", "Alice", "shift-1",
		nil, nil, nil,
		now, "08:00", "16:00",
		nil, nil, nil,
		"PENDING", nil, nil, nil, nil, nil, nil,
		now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM swap_requests")).
		WithArgs("org-1", "PENDING", "GIVEAWAY", "PICKUP").
		WillReturnRows(rows)

	pool, err := repo.ListOpenPool(context.Background(), "org-1", 50)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	require.Equal(t, models.ExchangeKindGiveaway, pool[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryListManagerQueueScoped(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN users u ON u.id = r.requester_id AND u.manager_id = $3")).
		WithArgs("org-1", "MANAGER_PENDING", "mgr-1").
		WillReturnRows(swapRequestRows())

	queue, err := repo.ListManagerQueue(context.Background(), "org-1", "mgr-1")
	require.NoError(t, err)
	require.Empty(t, queue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepositoryCountByStatusAndKind(t *testing.T) {
	db, mock, cleanup := newExchangeRepoMock(t)
	defer cleanup()

	repo := NewExchangeRepository(db)
	rows := sqlmock.NewRows([]string{"status", "kind", "count"}).
		AddRow("COMPLETED", "GIVEAWAY", 3).
		AddRow("PENDING", "SWAP", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, kind, COUNT(*) AS count FROM swap_requests")).
		WithArgs("org-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatusAndKind(context.Background(), "org-1", models.StatsRange{})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, 3, counts[0].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
