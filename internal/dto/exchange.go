package dto

import "github.com/noah-isme/shift-exchange-api/internal/models"

// CreateExchangeRequest is the payload for opening a new exchange.
type CreateExchangeRequest struct {
	Kind          models.ExchangeKind `json:"kind" validate:"required,oneof=SWAP GIVEAWAY PICKUP"`
	ShiftID       string              `json:"shift_id" validate:"required"`
	TargetShiftID *string             `json:"target_shift_id" validate:"omitempty"`
	Reason        *string             `json:"reason" validate:"omitempty,max=500"`
}

// DeclineExchangeRequest carries an optional reason for declining.
type DeclineExchangeRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// ManagerDecisionRequest carries the optional reviewer note.
type ManagerDecisionRequest struct {
	Note *string `json:"note" validate:"omitempty,max=500"`
}

// CancelExchangeRequest carries an optional cancellation reason.
type CancelExchangeRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// EmployeeExchangeQuery filters an employee's own request history.
type EmployeeExchangeQuery struct {
	IncludeTerminal bool
	Limit           int
	Offset          int
}

// StatsQuery bounds the aggregate endpoint by creation date.
type StatsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}
