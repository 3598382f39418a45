package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/shift-exchange-api/internal/dto"
	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/internal/repository"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
)

type exchangeReader interface {
	ListOpenPool(ctx context.Context, orgID string, limit int) ([]models.SwapRequest, error)
	ListManagerQueue(ctx context.Context, orgID, managerID string) ([]models.SwapRequest, error)
	ListForEmployee(ctx context.Context, filter models.ExchangeFilter) ([]models.SwapRequest, error)
	CountByStatusAndKind(ctx context.Context, orgID string, rng models.StatsRange) ([]repository.StatusKindCount, error)
}

// ExchangeQueryService serves read-only projections over the exchange store.
// No method here has side effects.
type ExchangeQueryService struct {
	repo     exchangeReader
	logger   *zap.Logger
	orgID    string
	poolSize int
}

// NewExchangeQueryService constructs the query facade.
func NewExchangeQueryService(repo exchangeReader, orgID string, poolSize int, logger *zap.Logger) *ExchangeQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeQueryService{repo: repo, logger: logger, orgID: orgID, poolSize: poolSize}
}

// ListOpenPool returns unclaimed giveaway/pickup requests.
func (s *ExchangeQueryService) ListOpenPool(ctx context.Context) ([]models.SwapRequest, error) {
	requests, err := s.repo.ListOpenPool(ctx, s.orgID, s.poolSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to list open pool")
	}
	if requests == nil {
		requests = []models.SwapRequest{}
	}
	return requests, nil
}

// ListManagerQueue returns requests awaiting review, scoped to the caller's
// reports when the caller is a manager; admins see the whole queue.
func (s *ExchangeQueryService) ListManagerQueue(ctx context.Context, actor *models.JWTClaims) ([]models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	managerID := ""
	switch actor.Role {
	case models.RoleAdmin:
		// unscoped
	case models.RoleManager:
		managerID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.ListManagerQueue(ctx, s.orgID, managerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to list manager queue")
	}
	if requests == nil {
		requests = []models.SwapRequest{}
	}
	return requests, nil
}

// ListForEmployee returns the caller's requests as either party.
func (s *ExchangeQueryService) ListForEmployee(ctx context.Context, query dto.EmployeeExchangeQuery, actor *models.JWTClaims) ([]models.SwapRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	requests, err := s.repo.ListForEmployee(ctx, models.ExchangeFilter{
		OrgID:           s.orgID,
		EmployeeID:      actor.UserID,
		IncludeTerminal: query.IncludeTerminal,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to list exchanges")
	}
	if requests == nil {
		requests = []models.SwapRequest{}
	}
	return requests, nil
}

// Stats aggregates counters over the date range. The approval rate counts
// decided requests only: approved ÷ (total − cancelled − still pending), and
// an empty denominator yields 0, never NaN.
func (s *ExchangeQueryService) Stats(ctx context.Context, rng models.StatsRange) (*models.ExchangeStats, error) {
	counts, err := s.repo.CountByStatusAndKind(ctx, s.orgID, rng)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to aggregate exchanges")
	}

	stats := &models.ExchangeStats{
		ByStatus: make(map[models.ExchangeStatus]int),
		ByKind:   make(map[models.ExchangeKind]int),
	}
	for _, bucket := range counts {
		stats.Total += bucket.Count
		stats.ByStatus[bucket.Status] += bucket.Count
		stats.ByKind[bucket.Kind] += bucket.Count
	}

	approved := stats.ByStatus[models.ExchangeStatusManagerApproved] + stats.ByStatus[models.ExchangeStatusCompleted]
	undecided := stats.ByStatus[models.ExchangeStatusPending] + stats.ByStatus[models.ExchangeStatusManagerPending]
	denominator := stats.Total - stats.ByStatus[models.ExchangeStatusCancelled] - undecided
	if denominator > 0 {
		stats.ApprovalRate = float64(approved) / float64(denominator)
	}
	return stats, nil
}
