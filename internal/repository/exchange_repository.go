package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/shift-exchange-api/internal/models"
)

// ErrDuplicateActiveShift signals the shift-exclusivity constraint: the shift
// is already referenced by another non-terminal request.
var ErrDuplicateActiveShift = errors.New("shift already referenced by an active exchange request")

const swapRequestColumns = `id, org_id, kind, requester_id, requester_name, requester_shift_id,
       target_id, target_name, target_shift_id,
       requester_shift_date, requester_shift_start, requester_shift_end,
       target_shift_date, target_shift_start, target_shift_end,
       status, reason, responded_at, manager_id, manager_name, manager_note, decided_at,
       created_at, updated_at`

// ExchangeRepository persists swap requests and their shift references.
//
// Cross-instance coordination happens entirely here: status moves are
// compare-and-swap updates keyed on the current persisted status, and the
// exclusivity invariant is a partial unique index on exchange_shift_refs,
// never an application-level read-then-write.
type ExchangeRepository struct {
	db *sqlx.DB
}

// NewExchangeRepository constructs the repository.
func NewExchangeRepository(db *sqlx.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Create inserts the request at PENDING and registers active references for
// every shift it commits. A unique violation on the reference table surfaces
// as ErrDuplicateActiveShift and nothing is written.
func (r *ExchangeRepository) Create(ctx context.Context, req *models.SwapRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.ExchangeStatusPending
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create exchange: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertRequest = `INSERT INTO swap_requests
	(id, org_id, kind, requester_id, requester_name, requester_shift_id,
	 target_id, target_name, target_shift_id,
	 requester_shift_date, requester_shift_start, requester_shift_end,
	 target_shift_date, target_shift_start, target_shift_end,
	 status, reason, responded_at, manager_id, manager_name, manager_note, decided_at,
	 created_at, updated_at)
	VALUES (:id, :org_id, :kind, :requester_id, :requester_name, :requester_shift_id,
	 :target_id, :target_name, :target_shift_id,
	 :requester_shift_date, :requester_shift_start, :requester_shift_end,
	 :target_shift_date, :target_shift_start, :target_shift_end,
	 :status, :reason, :responded_at, :manager_id, :manager_name, :manager_note, :decided_at,
	 :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRequest, req); err != nil {
		return fmt.Errorf("insert swap request: %w", err)
	}

	refs := []string{req.RequesterShift}
	if req.TargetShift != nil && *req.TargetShift != "" {
		refs = append(refs, *req.TargetShift)
	}
	for _, shiftID := range refs {
		if err := insertShiftRef(ctx, tx, shiftID, req.ID, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create exchange: %w", err)
	}
	return nil
}

func insertShiftRef(ctx context.Context, tx *sqlx.Tx, shiftID, requestID string, now time.Time) error {
	const insertRef = `INSERT INTO exchange_shift_refs (shift_id, request_id, created_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertRef, shiftID, requestID, now); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateActiveShift
		}
		return fmt.Errorf("insert shift ref: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetByID fetches a request by identifier.
func (r *ExchangeRepository) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM swap_requests WHERE id = $1`, swapRequestColumns)
	var req models.SwapRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ClaimParams binds a claiming employee as the target of an open request.
type ClaimParams struct {
	ID          string
	TargetID    string
	TargetName  string
	RespondedAt time.Time
}

// Claim performs the conditional win-the-race update: target is set only if
// the row is still PENDING and either unclaimed or already naming this
// employee. Zero rows affected comes back as sql.ErrNoRows; the service
// classifies it against a fresh read.
func (r *ExchangeRepository) Claim(ctx context.Context, params ClaimParams) error {
	const query = `UPDATE swap_requests
	SET target_id = $2, target_name = $3, status = $4, responded_at = $5, updated_at = $5
	WHERE id = $1 AND status = $6 AND (target_id IS NULL OR target_id = $2)`
	result, err := r.db.ExecContext(ctx, query,
		params.ID, params.TargetID, params.TargetName,
		models.ExchangeStatusManagerPending, params.RespondedAt,
		models.ExchangeStatusPending,
	)
	if err != nil {
		return fmt.Errorf("claim exchange: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check claim rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusParams describes one compare-and-swap status move.
type UpdateStatusParams struct {
	ID   string
	From []models.ExchangeStatus
	To   models.ExchangeStatus

	RespondedAt *time.Time
	ManagerID   *string
	ManagerName *string
	ManagerNote *string
	DecidedAt   *time.Time
}

// UpdateStatus moves the request along one edge, guarded by the currently
// persisted status. When the destination is terminal the shift references are
// released inside the same transaction, freeing the shifts for new requests.
// Zero rows affected comes back as sql.ErrNoRows.
func (r *ExchangeRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	if len(params.From) == 0 {
		return fmt.Errorf("update status: no source states given")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	setParts := []string{"status = :status", "updated_at = :updated_at"}
	args := map[string]interface{}{
		"id":         params.ID,
		"status":     params.To,
		"updated_at": now,
	}
	if params.RespondedAt != nil {
		setParts = append(setParts, "responded_at = :responded_at")
		args["responded_at"] = *params.RespondedAt
	}
	if params.ManagerID != nil {
		setParts = append(setParts, "manager_id = :manager_id", "manager_name = :manager_name", "decided_at = :decided_at")
		args["manager_id"] = params.ManagerID
		args["manager_name"] = params.ManagerName
		args["decided_at"] = params.DecidedAt
	}
	if params.ManagerNote != nil {
		setParts = append(setParts, "manager_note = :manager_note")
		args["manager_note"] = params.ManagerNote
	}

	fromTokens := make([]string, len(params.From))
	for i, status := range params.From {
		key := fmt.Sprintf("from_%d", i)
		fromTokens[i] = ":" + key
		args[key] = status
	}
	query := fmt.Sprintf("UPDATE swap_requests SET %s WHERE id = :id AND status IN (%s)",
		strings.Join(setParts, ", "), strings.Join(fromTokens, ", "))

	result, err := tx.NamedExecContext(ctx, query, args)
	if err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if params.To.IsTerminal() {
		const releaseRefs = `UPDATE exchange_shift_refs SET released_at = $2 WHERE request_id = $1 AND released_at IS NULL`
		if _, err := tx.ExecContext(ctx, releaseRefs, params.ID, now); err != nil {
			return fmt.Errorf("release shift refs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// ListOpenPool returns unclaimed giveaway/pickup requests, oldest first.
func (r *ExchangeRepository) ListOpenPool(ctx context.Context, orgID string, limit int) ([]models.SwapRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM swap_requests
	WHERE org_id = $1 AND status = $2 AND target_id IS NULL AND kind IN ($3, $4)
	ORDER BY created_at ASC LIMIT %d`, swapRequestColumns, limit)
	var requests []models.SwapRequest
	err := r.db.SelectContext(ctx, &requests, query,
		orgID, models.ExchangeStatusPending, models.ExchangeKindGiveaway, models.ExchangeKindPickup)
	if err != nil {
		return nil, fmt.Errorf("list open pool: %w", err)
	}
	return requests, nil
}

// ListManagerQueue returns requests awaiting manager review. A non-empty
// managerID narrows the queue to requesters reporting to that manager.
func (r *ExchangeRepository) ListManagerQueue(ctx context.Context, orgID, managerID string) ([]models.SwapRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM swap_requests r`, prefixColumns("r")))
	args := []interface{}{orgID, models.ExchangeStatusManagerPending}
	if managerID != "" {
		builder.WriteString(` JOIN users u ON u.id = r.requester_id AND u.manager_id = $3`)
		args = append(args, managerID)
	}
	builder.WriteString(` WHERE r.org_id = $1 AND r.status = $2 ORDER BY r.responded_at ASC NULLS LAST`)

	var requests []models.SwapRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list manager queue: %w", err)
	}
	return requests, nil
}

// ListForEmployee returns requests where the employee is either party.
func (r *ExchangeRepository) ListForEmployee(ctx context.Context, filter models.ExchangeFilter) ([]models.SwapRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM swap_requests WHERE org_id = $1 AND (requester_id = $2 OR target_id = $2)`, swapRequestColumns))
	args := []interface{}{filter.OrgID, filter.EmployeeID}

	if !filter.IncludeTerminal {
		terminals := models.TerminalStatuses()
		placeholders := make([]string, len(terminals))
		for i, status := range terminals {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status NOT IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		builder.WriteString(fmt.Sprintf(" AND kind = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.SwapRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list employee exchanges: %w", err)
	}
	return requests, nil
}

// ListHistory returns every request in the range, newest first, for exports.
func (r *ExchangeRepository) ListHistory(ctx context.Context, orgID string, rng models.StatsRange, limit int) ([]models.SwapRequest, error) {
	if limit <= 0 {
		limit = 1000
	}
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM swap_requests WHERE org_id = $1`, swapRequestColumns))
	args := []interface{}{orgID}
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		builder.WriteString(fmt.Sprintf(" AND created_at >= $%d", len(args)))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		builder.WriteString(fmt.Sprintf(" AND created_at <= $%d", len(args)))
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit))

	var requests []models.SwapRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list exchange history: %w", err)
	}
	return requests, nil
}

// StatusKindCount is one aggregation bucket.
type StatusKindCount struct {
	Status models.ExchangeStatus `db:"status"`
	Kind   models.ExchangeKind   `db:"kind"`
	Count  int                   `db:"count"`
}

// CountByStatusAndKind aggregates request counts inside the date range.
func (r *ExchangeRepository) CountByStatusAndKind(ctx context.Context, orgID string, rng models.StatsRange) ([]StatusKindCount, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT status, kind, COUNT(*) AS count FROM swap_requests WHERE org_id = $1`)
	args := []interface{}{orgID}
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		builder.WriteString(fmt.Sprintf(" AND created_at >= $%d", len(args)))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		builder.WriteString(fmt.Sprintf(" AND created_at <= $%d", len(args)))
	}
	builder.WriteString(" GROUP BY status, kind")

	var counts []StatusKindCount
	if err := r.db.SelectContext(ctx, &counts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("count exchanges: %w", err)
	}
	return counts, nil
}

func prefixColumns(alias string) string {
	cols := strings.Split(swapRequestColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
