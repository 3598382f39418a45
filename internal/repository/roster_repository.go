package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shift-exchange-api/internal/models"
)

// ErrOwnerChanged signals that a conditional reassignment matched no row: the
// shift no longer belongs to the expected employee.
var ErrOwnerChanged = errors.New("shift owner changed since approval")

const shiftColumns = `id, org_id, employee_id, employee_name, shift_date, start_time, end_time,
       facility, position, status, created_at, updated_at`

// RosterRepository reads shift assignments and performs the single ownership
// rewrite the exchange engine is allowed: reassigning owners at completion.
// Everything else about the roster belongs to its own service.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// GetShift fetches one shift assignment.
func (r *RosterRepository) GetShift(ctx context.Context, id string) (*models.ShiftAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM shift_assignments WHERE id = $1`, shiftColumns)
	var shift models.ShiftAssignment
	if err := r.db.GetContext(ctx, &shift, query, id); err != nil {
		return nil, err
	}
	return &shift, nil
}

// ReassignParams describes one conditional ownership rewrite.
type ReassignParams struct {
	ShiftID        string
	FromEmployeeID string
	ToEmployeeID   string
	ToEmployeeName string
}

// ReassignOwner rewrites the owner of a single shift, guarded by the expected
// current owner. ErrOwnerChanged means the guard failed and nothing changed.
func (r *RosterRepository) ReassignOwner(ctx context.Context, params ReassignParams) error {
	return reassign(ctx, r.db, params)
}

// SwapOwners exchanges the owners of two shifts in one transaction: both
// rewrites succeed or neither applies.
func (r *RosterRepository) SwapOwners(ctx context.Context, first, second ReassignParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin swap owners: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := reassign(ctx, tx, first); err != nil {
		return err
	}
	if err := reassign(ctx, tx, second); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit swap owners: %w", err)
	}
	return nil
}

func reassign(ctx context.Context, db sqlx.ExecerContext, params ReassignParams) error {
	const query = `UPDATE shift_assignments
	SET employee_id = $3, employee_name = $4, updated_at = $5
	WHERE id = $1 AND employee_id = $2`
	result, err := db.ExecContext(ctx, query,
		params.ShiftID, params.FromEmployeeID, params.ToEmployeeID, params.ToEmployeeName,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reassign shift owner: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reassign rows: %w", err)
	}
	if rows == 0 {
		return ErrOwnerChanged
	}
	return nil
}
