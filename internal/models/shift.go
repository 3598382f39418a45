package models

import "time"

// ShiftStatus captures the roster lifecycle of a scheduled work period.
type ShiftStatus string

const (
	ShiftStatusScheduled ShiftStatus = "SCHEDULED"
	ShiftStatusConfirmed ShiftStatus = "CONFIRMED"
	ShiftStatusCompleted ShiftStatus = "COMPLETED"
	ShiftStatusMissed    ShiftStatus = "MISSED"
	ShiftStatusCancelled ShiftStatus = "CANCELLED"
)

// ShiftAssignment is one scheduled work period for one employee. The roster
// store owns these rows; the exchange engine only ever rewrites the owner,
// and only at completion of an approved exchange.
type ShiftAssignment struct {
	ID           string      `db:"id" json:"id"`
	OrgID        string      `db:"org_id" json:"org_id"`
	EmployeeID   string      `db:"employee_id" json:"employee_id"`
	EmployeeName string      `db:"employee_name" json:"employee_name"`
	ShiftDate    time.Time   `db:"shift_date" json:"shift_date"`
	StartTime    string      `db:"start_time" json:"start_time"`
	EndTime      string      `db:"end_time" json:"end_time"`
	Facility     *string     `db:"facility" json:"facility,omitempty"`
	Position     *string     `db:"position" json:"position,omitempty"`
	Status       ShiftStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// IsMutable reports whether the shift can still change hands.
func (s *ShiftAssignment) IsMutable() bool {
	return s.Status == ShiftStatusScheduled || s.Status == ShiftStatusConfirmed
}
