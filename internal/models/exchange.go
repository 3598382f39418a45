package models

import "time"

// ExchangeKind enumerates the supported exchange shapes.
type ExchangeKind string

const (
	// ExchangeKindSwap trades two shifts between their owners.
	ExchangeKindSwap ExchangeKind = "SWAP"
	// ExchangeKindGiveaway forfeits a shift into the open pool.
	ExchangeKindGiveaway ExchangeKind = "GIVEAWAY"
	// ExchangeKindPickup claims an already-open shift with nothing offered back.
	ExchangeKindPickup ExchangeKind = "PICKUP"
)

// ExchangeStatus is the workflow state of a swap request.
type ExchangeStatus string

const (
	ExchangeStatusPending         ExchangeStatus = "PENDING"
	ExchangeStatusManagerPending  ExchangeStatus = "MANAGER_PENDING"
	ExchangeStatusManagerApproved ExchangeStatus = "MANAGER_APPROVED"
	ExchangeStatusCompleted       ExchangeStatus = "COMPLETED"
	ExchangeStatusRejected        ExchangeStatus = "REJECTED"
	ExchangeStatusManagerRejected ExchangeStatus = "MANAGER_REJECTED"
	ExchangeStatusCancelled       ExchangeStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is permitted.
func (s ExchangeStatus) IsTerminal() bool {
	switch s {
	case ExchangeStatusRejected, ExchangeStatusManagerRejected, ExchangeStatusCancelled, ExchangeStatusCompleted:
		return true
	}
	return false
}

// TerminalStatuses lists every status from which no transition exists.
func TerminalStatuses() []ExchangeStatus {
	return []ExchangeStatus{
		ExchangeStatusRejected,
		ExchangeStatusManagerRejected,
		ExchangeStatusCancelled,
		ExchangeStatusCompleted,
	}
}

// ExchangeEventType names a lifecycle transition.
type ExchangeEventType string

const (
	EventCreate         ExchangeEventType = "CREATE"
	EventClaim          ExchangeEventType = "CLAIM"
	EventDecline        ExchangeEventType = "DECLINE"
	EventManagerApprove ExchangeEventType = "MANAGER_APPROVE"
	EventManagerReject  ExchangeEventType = "MANAGER_REJECT"
	EventCancel         ExchangeEventType = "CANCEL"
	EventComplete       ExchangeEventType = "COMPLETE"
)

// transitions is the full edge table of the workflow. Guards beyond the
// source-state check (claim races, authority, shift exclusivity) live in the
// service and repository layers; anything missing from this table is an
// invalid transition regardless of caller.
var transitions = map[ExchangeEventType]map[ExchangeStatus]ExchangeStatus{
	EventClaim: {
		ExchangeStatusPending: ExchangeStatusManagerPending,
	},
	EventDecline: {
		ExchangeStatusPending: ExchangeStatusRejected,
	},
	EventManagerApprove: {
		ExchangeStatusManagerPending: ExchangeStatusManagerApproved,
	},
	EventManagerReject: {
		ExchangeStatusManagerPending: ExchangeStatusManagerRejected,
	},
	EventCancel: {
		ExchangeStatusPending:        ExchangeStatusCancelled,
		ExchangeStatusManagerPending: ExchangeStatusCancelled,
	},
	EventComplete: {
		ExchangeStatusManagerApproved: ExchangeStatusCompleted,
	},
}

// NextStatus resolves the destination of an event from the given source
// state. ok is false when the edge does not exist.
func NextStatus(event ExchangeEventType, from ExchangeStatus) (ExchangeStatus, bool) {
	edges, found := transitions[event]
	if !found {
		return "", false
	}
	to, found := edges[from]
	return to, found
}

// SwapRequest coordinates a shift change between parties. Terminal rows are
// immutable and retained for audit; they are never deleted.
type SwapRequest struct {
	ID    string       `db:"id" json:"id"`
	OrgID string       `db:"org_id" json:"org_id"`
	Kind  ExchangeKind `db:"kind" json:"kind"`

	RequesterID    string `db:"requester_id" json:"requester_id"`
	RequesterName  string `db:"requester_name" json:"requester_name"`
	RequesterShift string `db:"requester_shift_id" json:"requester_shift_id"`

	TargetID    *string `db:"target_id" json:"target_id,omitempty"`
	TargetName  *string `db:"target_name" json:"target_name,omitempty"`
	TargetShift *string `db:"target_shift_id" json:"target_shift_id,omitempty"`

	// Scheduling facts captured at creation time so history stays readable
	// without re-joining the roster.
	RequesterShiftDate  time.Time  `db:"requester_shift_date" json:"requester_shift_date"`
	RequesterShiftStart string     `db:"requester_shift_start" json:"requester_shift_start"`
	RequesterShiftEnd   string     `db:"requester_shift_end" json:"requester_shift_end"`
	TargetShiftDate     *time.Time `db:"target_shift_date" json:"target_shift_date,omitempty"`
	TargetShiftStart    *string    `db:"target_shift_start" json:"target_shift_start,omitempty"`
	TargetShiftEnd      *string    `db:"target_shift_end" json:"target_shift_end,omitempty"`

	Status      ExchangeStatus `db:"status" json:"status"`
	Reason      *string        `db:"reason" json:"reason,omitempty"`
	RespondedAt *time.Time     `db:"responded_at" json:"responded_at,omitempty"`

	ManagerID   *string    `db:"manager_id" json:"manager_id,omitempty"`
	ManagerName *string    `db:"manager_name" json:"manager_name,omitempty"`
	ManagerNote *string    `db:"manager_note" json:"manager_note,omitempty"`
	DecidedAt   *time.Time `db:"decided_at" json:"decided_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsParty reports whether the given user is the requester or the target.
func (r *SwapRequest) IsParty(userID string) bool {
	if r.RequesterID == userID {
		return true
	}
	return r.TargetID != nil && *r.TargetID == userID
}

// ExchangeFilter constrains history listing queries.
type ExchangeFilter struct {
	OrgID           string
	EmployeeID      string
	ManagerID       string
	Kind            ExchangeKind
	Status          []ExchangeStatus
	IncludeTerminal bool
	Limit           int
	Offset          int
}

// StatsRange bounds aggregate queries by creation date. Zero values mean
// unbounded.
type StatsRange struct {
	From time.Time
	To   time.Time
}

// ExchangeStats aggregates counters over the request history.
type ExchangeStats struct {
	Total        int                    `json:"total"`
	ByStatus     map[ExchangeStatus]int `json:"by_status"`
	ByKind       map[ExchangeKind]int   `json:"by_kind"`
	ApprovalRate float64                `json:"approval_rate"`
}
