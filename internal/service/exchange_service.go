package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shift-exchange-api/internal/dto"
	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/internal/repository"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
)

type exchangeStore interface {
	Create(ctx context.Context, req *models.SwapRequest) error
	GetByID(ctx context.Context, id string) (*models.SwapRequest, error)
	Claim(ctx context.Context, params repository.ClaimParams) error
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
}

type rosterStore interface {
	GetShift(ctx context.Context, id string) (*models.ShiftAssignment, error)
	ReassignOwner(ctx context.Context, params repository.ReassignParams) error
	SwapOwners(ctx context.Context, first, second repository.ReassignParams) error
}

type directory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	IsManagerOf(ctx context.Context, managerID, employeeID string) (bool, error)
}

type transitionRecorder interface {
	RecordTransition(event models.ExchangeEventType, outcome string)
	RecordClaimConflict()
}

// ExchangeService is the coordination engine for shift exchanges. Every
// status move is delegated to a conditional write in the repository; the
// service never trusts a status it read earlier in the same call to still
// hold at write time.
type ExchangeService struct {
	repo      exchangeStore
	roster    rosterStore
	directory directory
	notifier  Notifier
	metrics   transitionRecorder
	validator *validator.Validate
	logger    *zap.Logger
	orgID     string
}

// ExchangeServiceOption configures the service.
type ExchangeServiceOption func(*ExchangeService)

// WithNotifier sets the lifecycle event sink.
func WithNotifier(n Notifier) ExchangeServiceOption {
	return func(s *ExchangeService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTransitionRecorder sets the metrics sink.
func WithTransitionRecorder(m transitionRecorder) ExchangeServiceOption {
	return func(s *ExchangeService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewExchangeService constructs the engine.
func NewExchangeService(repo exchangeStore, roster rosterStore, dir directory, orgID string, logger *zap.Logger, opts ...ExchangeServiceOption) *ExchangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ExchangeService{
		repo:      repo,
		roster:    roster,
		directory: dir,
		notifier:  NopNotifier{},
		validator: validator.New(),
		logger:    logger,
		orgID:     orgID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateRequest opens a new exchange at PENDING after validating the shifts
// involved. The shift-exclusivity invariant is enforced by the repository's
// unique active-reference constraint, not by a read here.
func (s *ExchangeService) CreateRequest(ctx context.Context, req dto.CreateExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exchange payload")
	}
	if req.Kind == models.ExchangeKindSwap && (req.TargetShiftID == nil || *req.TargetShiftID == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "swap requires a target shift")
	}
	if req.Kind != models.ExchangeKindSwap && req.TargetShiftID != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only swap carries a target shift")
	}

	shift, err := s.loadMutableShift(ctx, req.ShiftID)
	if err != nil {
		return nil, err
	}
	if shift.EmployeeID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "shift belongs to another employee")
	}

	request := &models.SwapRequest{
		OrgID:               s.orgID,
		Kind:                req.Kind,
		RequesterID:         actor.UserID,
		RequesterName:       actor.FullName,
		RequesterShift:      shift.ID,
		RequesterShiftDate:  shift.ShiftDate,
		RequesterShiftStart: shift.StartTime,
		RequesterShiftEnd:   shift.EndTime,
		Status:              models.ExchangeStatusPending,
		Reason:              req.Reason,
	}

	if req.Kind == models.ExchangeKindSwap {
		targetShift, err := s.loadMutableShift(ctx, *req.TargetShiftID)
		if err != nil {
			return nil, err
		}
		if targetShift.EmployeeID == actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap a shift with yourself")
		}
		request.TargetID = &targetShift.EmployeeID
		request.TargetName = &targetShift.EmployeeName
		request.TargetShift = &targetShift.ID
		request.TargetShiftDate = &targetShift.ShiftDate
		request.TargetShiftStart = &targetShift.StartTime
		request.TargetShiftEnd = &targetShift.EndTime

		// A named swap counterparty still has to accept: the request sits at
		// PENDING until the target claims it.
	}

	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveShift) {
			return nil, appErrors.Clone(appErrors.ErrShiftAlreadyInExchange, "")
		}
		return nil, s.storeError(err, "failed to create exchange request")
	}

	s.emit(ctx, models.NotificationExchangeCreated, request)
	s.record(models.EventCreate, "ok")
	return request, nil
}

// Claim attaches the caller as the target of an open request. Any number of
// employees may race here; the conditional update in the repository lets
// exactly one through.
func (s *ExchangeService) Claim(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequesterID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot claim your own request")
	}

	err = s.repo.Claim(ctx, repository.ClaimParams{
		ID:          id,
		TargetID:    actor.UserID,
		TargetName:  actor.FullName,
		RespondedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyClaimLoss(ctx, id, actor.UserID)
		}
		return nil, s.storeError(err, "failed to claim exchange")
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.NotificationExchangeClaimed, updated)
	s.record(models.EventClaim, "ok")
	return updated, nil
}

// classifyClaimLoss re-reads the row to tell a lost race apart from a dead
// request. AlreadyClaimed and InvalidTransition are routine outcomes here,
// not faults.
func (s *ExchangeService) classifyClaimLoss(ctx context.Context, id, callerID string) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if request.Status == models.ExchangeStatusPending &&
		request.TargetID != nil && *request.TargetID != callerID {
		s.record(models.EventClaim, "conflict")
		if s.metrics != nil {
			s.metrics.RecordClaimConflict()
		}
		return appErrors.Clone(appErrors.ErrAlreadyClaimed, "")
	}
	if request.Status == models.ExchangeStatusManagerPending &&
		request.TargetID != nil && *request.TargetID != callerID {
		s.record(models.EventClaim, "conflict")
		if s.metrics != nil {
			s.metrics.RecordClaimConflict()
		}
		return appErrors.Clone(appErrors.ErrAlreadyClaimed, "")
	}
	s.record(models.EventClaim, "invalid")
	return appErrors.Clone(appErrors.ErrInvalidTransition, "")
}

// Decline is the dual-purpose rejection entry point. The branch is decided by
// the persisted status, never by the caller: from PENDING it is a peer
// decline producing REJECTED with manager fields untouched; from
// MANAGER_PENDING it is a manager decision producing MANAGER_REJECTED.
func (s *ExchangeService) Decline(ctx context.Context, id string, req dto.DeclineExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	return s.reject(ctx, id, req.Reason, actor)
}

// ManagerReject shares the dual-purpose handler with Decline; a request that
// slipped back to a peer stage or forward to a terminal state is handled by
// the same persisted-status branch.
func (s *ExchangeService) ManagerReject(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	return s.reject(ctx, id, req.Note, actor)
}

func (s *ExchangeService) reject(ctx context.Context, id string, note *string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch request.Status {
	case models.ExchangeStatusPending:
		if !request.IsParty(actor.UserID) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only a party to the exchange can decline it")
		}
		err = s.repo.UpdateStatus(ctx, repository.UpdateStatusParams{
			ID:          id,
			From:        []models.ExchangeStatus{models.ExchangeStatusPending},
			To:          models.ExchangeStatusRejected,
			RespondedAt: &now,
		})
		if err != nil {
			return nil, s.transitionError(err, models.EventDecline)
		}
		updated, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, models.NotificationExchangeDeclined, updated)
		s.record(models.EventDecline, "ok")
		return updated, nil

	case models.ExchangeStatusManagerPending:
		if err := s.requireManagerAuthority(ctx, request, actor); err != nil {
			return nil, err
		}
		err = s.repo.UpdateStatus(ctx, repository.UpdateStatusParams{
			ID:          id,
			From:        []models.ExchangeStatus{models.ExchangeStatusManagerPending},
			To:          models.ExchangeStatusManagerRejected,
			ManagerID:   &actor.UserID,
			ManagerName: &actor.FullName,
			ManagerNote: note,
			DecidedAt:   &now,
		})
		if err != nil {
			return nil, s.transitionError(err, models.EventManagerReject)
		}
		updated, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, models.NotificationExchangeRejected, updated)
		s.record(models.EventManagerReject, "ok")
		return updated, nil
	}

	s.record(models.EventDecline, "invalid")
	return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "")
}

// ManagerApprove moves a claimed request into MANAGER_APPROVED. The caller
// must hold authority over the requester's schedule, and for swaps over the
// target's as well.
func (s *ExchangeService) ManagerApprove(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := models.NextStatus(models.EventManagerApprove, request.Status); !ok {
		s.record(models.EventManagerApprove, "invalid")
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "")
	}
	if err := s.requireManagerAuthority(ctx, request, actor); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.repo.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:          id,
		From:        []models.ExchangeStatus{models.ExchangeStatusManagerPending},
		To:          models.ExchangeStatusManagerApproved,
		ManagerID:   &actor.UserID,
		ManagerName: &actor.FullName,
		ManagerNote: req.Note,
		DecidedAt:   &now,
	})
	if err != nil {
		return nil, s.transitionError(err, models.EventManagerApprove)
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.NotificationExchangeApproved, updated)
	s.record(models.EventManagerApprove, "ok")
	return updated, nil
}

// Cancel withdraws a request. Only the requester may cancel, and only before
// a manager decision lands.
func (s *ExchangeService) Cancel(ctx context.Context, id string, req dto.CancelExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester can cancel")
	}

	err = s.repo.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:   id,
		From: []models.ExchangeStatus{models.ExchangeStatusPending, models.ExchangeStatusManagerPending},
		To:   models.ExchangeStatusCancelled,
	})
	if err != nil {
		return nil, s.transitionError(err, models.EventCancel)
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.NotificationExchangeCancelled, updated)
	s.record(models.EventCancel, "ok")
	return updated, nil
}

// Complete finalizes an approved exchange: the single roster mutation, then
// the terminal status write. If the roster write fails the request stays at
// MANAGER_APPROVED and the whole operation is safe to retry. Calling Complete
// on an already-completed request is a no-op success.
func (s *ExchangeService) Complete(ctx context.Context, id string) (*models.SwapRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status == models.ExchangeStatusCompleted {
		return request, nil
	}
	if _, ok := models.NextStatus(models.EventComplete, request.Status); !ok {
		s.record(models.EventComplete, "invalid")
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "")
	}
	if request.TargetID == nil || request.TargetName == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "approved request has no target employee")
	}

	if err := s.mutateRoster(ctx, request); err != nil {
		s.record(models.EventComplete, "roster_failed")
		return nil, err
	}

	err = s.repo.UpdateStatus(ctx, repository.UpdateStatusParams{
		ID:   id,
		From: []models.ExchangeStatus{models.ExchangeStatusManagerApproved},
		To:   models.ExchangeStatusCompleted,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another completer got there first. The roster mutation is
			// owner-conditional, so the duplicate attempt did not double-apply.
			current, loadErr := s.load(ctx, id)
			if loadErr != nil {
				return nil, loadErr
			}
			if current.Status == models.ExchangeStatusCompleted {
				return current, nil
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "")
		}
		return nil, s.storeError(err, "failed to finalize exchange")
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.NotificationExchangeCompleted, updated)
	s.record(models.EventComplete, "ok")
	return updated, nil
}

func (s *ExchangeService) mutateRoster(ctx context.Context, request *models.SwapRequest) error {
	switch request.Kind {
	case models.ExchangeKindSwap:
		if request.TargetShift == nil {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "swap request has no target shift")
		}
		err := s.roster.SwapOwners(ctx,
			repository.ReassignParams{
				ShiftID:        request.RequesterShift,
				FromEmployeeID: request.RequesterID,
				ToEmployeeID:   *request.TargetID,
				ToEmployeeName: *request.TargetName,
			},
			repository.ReassignParams{
				ShiftID:        *request.TargetShift,
				FromEmployeeID: *request.TargetID,
				ToEmployeeID:   request.RequesterID,
				ToEmployeeName: request.RequesterName,
			},
		)
		if err != nil {
			if errors.Is(err, repository.ErrOwnerChanged) {
				if s.rosterAlreadyApplied(ctx, request) {
					return nil
				}
				return appErrors.Wrap(err, appErrors.ErrRosterMutationFailed.Code, appErrors.ErrRosterMutationFailed.Status, appErrors.ErrRosterMutationFailed.Message)
			}
			return appErrors.Wrap(err, appErrors.ErrRosterMutationFailed.Code, appErrors.ErrRosterMutationFailed.Status, appErrors.ErrRosterMutationFailed.Message)
		}
		return nil

	default:
		err := s.roster.ReassignOwner(ctx, repository.ReassignParams{
			ShiftID:        request.RequesterShift,
			FromEmployeeID: request.RequesterID,
			ToEmployeeID:   *request.TargetID,
			ToEmployeeName: *request.TargetName,
		})
		if err != nil {
			if errors.Is(err, repository.ErrOwnerChanged) {
				if s.rosterAlreadyApplied(ctx, request) {
					return nil
				}
				return appErrors.Wrap(err, appErrors.ErrRosterMutationFailed.Code, appErrors.ErrRosterMutationFailed.Status, appErrors.ErrRosterMutationFailed.Message)
			}
			return appErrors.Wrap(err, appErrors.ErrRosterMutationFailed.Code, appErrors.ErrRosterMutationFailed.Status, appErrors.ErrRosterMutationFailed.Message)
		}
		return nil
	}
}

// rosterAlreadyApplied detects the crash-retry case: a previous Complete
// performed the roster mutation but died before the status write. The
// reassignment guard then misses, and the shifts already show the intended
// owners.
func (s *ExchangeService) rosterAlreadyApplied(ctx context.Context, request *models.SwapRequest) bool {
	shift, err := s.roster.GetShift(ctx, request.RequesterShift)
	if err != nil || shift.EmployeeID != *request.TargetID {
		return false
	}
	if request.Kind != models.ExchangeKindSwap {
		return true
	}
	targetShift, err := s.roster.GetShift(ctx, *request.TargetShift)
	if err != nil {
		return false
	}
	return targetShift.EmployeeID == request.RequesterID
}

// Get returns a request, restricted to its parties, managers, and admins.
func (s *ExchangeService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdmin || actor.Role == models.RoleManager || request.IsParty(actor.UserID) {
		return request, nil
	}
	return nil, appErrors.ErrForbidden
}

func (s *ExchangeService) requireManagerAuthority(ctx context.Context, request *models.SwapRequest, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleManager {
		return appErrors.Clone(appErrors.ErrForbidden, "manager role required")
	}
	ok, err := s.directory.IsManagerOf(ctx, actor.UserID, request.RequesterID)
	if err != nil {
		return s.storeError(err, "failed to verify manager authority")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "no authority over the requester's schedule")
	}
	if request.Kind == models.ExchangeKindSwap && request.TargetID != nil {
		ok, err = s.directory.IsManagerOf(ctx, actor.UserID, *request.TargetID)
		if err != nil {
			return s.storeError(err, "failed to verify manager authority")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrForbidden, "no authority over the target's schedule")
		}
	}
	return nil
}

func (s *ExchangeService) loadMutableShift(ctx context.Context, id string) (*models.ShiftAssignment, error) {
	shift, err := s.roster.GetShift(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "shift not found")
		}
		return nil, s.storeError(err, "failed to load shift")
	}
	if !shift.IsMutable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidShiftState, "")
	}
	return shift, nil
}

func (s *ExchangeService) load(ctx context.Context, id string) (*models.SwapRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exchange request not found")
		}
		return nil, s.storeError(err, "failed to load exchange request")
	}
	return request, nil
}

// transitionError maps a missed compare-and-swap to InvalidTransition; the
// row moved between our read and our guarded write.
func (s *ExchangeService) transitionError(err error, event models.ExchangeEventType) error {
	if errors.Is(err, sql.ErrNoRows) {
		s.record(event, "invalid")
		return appErrors.Clone(appErrors.ErrInvalidTransition, "")
	}
	return s.storeError(err, "failed to update exchange request")
}

// storeError surfaces repository connectivity failures as a transient,
// retryable outcome distinct from the workflow taxonomy.
func (s *ExchangeService) storeError(err error, message string) error {
	s.logger.Warn("exchange store error", zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, message)
}

func (s *ExchangeService) emit(ctx context.Context, eventType models.NotificationType, request *models.SwapRequest) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(request)
	if err != nil {
		s.logger.Warn("failed to encode notification payload", zap.Error(err))
		payload = nil
	}
	s.notifier.Publish(ctx, models.NotificationEvent{
		Type:      eventType,
		RequestID: request.ID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (s *ExchangeService) record(event models.ExchangeEventType, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(event, outcome)
	}
}
