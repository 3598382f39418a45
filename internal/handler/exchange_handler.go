package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shift-exchange-api/internal/dto"
	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/internal/service"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
	"github.com/noah-isme/shift-exchange-api/pkg/response"
)

type exchangeService interface {
	CreateRequest(ctx context.Context, req dto.CreateExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	Claim(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
	Decline(ctx context.Context, id string, req dto.DeclineExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	ManagerApprove(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	ManagerReject(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	Cancel(ctx context.Context, id string, req dto.CancelExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error)
	Complete(ctx context.Context, id string) (*models.SwapRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error)
}

type exchangeQueryService interface {
	ListOpenPool(ctx context.Context) ([]models.SwapRequest, error)
	ListManagerQueue(ctx context.Context, actor *models.JWTClaims) ([]models.SwapRequest, error)
	ListForEmployee(ctx context.Context, query dto.EmployeeExchangeQuery, actor *models.JWTClaims) ([]models.SwapRequest, error)
	Stats(ctx context.Context, rng models.StatsRange) (*models.ExchangeStats, error)
}

type exportService interface {
	RenderHistory(ctx context.Context, rng models.StatsRange, format service.ExportFormat) (*service.ExportResult, error)
}

// ExchangeHandler exposes REST endpoints for the exchange workflow.
type ExchangeHandler struct {
	engine  exchangeService
	queries exchangeQueryService
	exports exportService
}

// NewExchangeHandler constructs the handler. The exports service may be nil
// when the export endpoint is disabled.
func NewExchangeHandler(engine exchangeService, queries exchangeQueryService, exports exportService) *ExchangeHandler {
	return &ExchangeHandler{engine: engine, queries: queries, exports: exports}
}

// Create godoc
// @Summary Open a new shift exchange request
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param payload body dto.CreateExchangeRequest true "Exchange payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exchanges [post]
func (h *ExchangeHandler) Create(c *gin.Context) {
	var req dto.CreateExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid exchange payload"))
		return
	}
	request, err := h.engine.CreateRequest(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// Claim godoc
// @Summary Claim an open exchange request
// @Tags Exchanges
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id}/claim [post]
func (h *ExchangeHandler) Claim(c *gin.Context) {
	request, err := h.engine.Claim(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decline godoc
// @Summary Decline an exchange request
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DeclineExchangeRequest false "Decline payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id}/decline [post]
func (h *ExchangeHandler) Decline(c *gin.Context) {
	var req dto.DeclineExchangeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decline payload"))
			return
		}
	}
	request, err := h.engine.Decline(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a claimed exchange request
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ManagerDecisionRequest false "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id}/approve [post]
func (h *ExchangeHandler) Approve(c *gin.Context) {
	var req dto.ManagerDecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
			return
		}
	}
	request, err := h.engine.ManagerApprove(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject godoc
// @Summary Reject a claimed exchange request
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ManagerDecisionRequest false "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id}/reject [post]
func (h *ExchangeHandler) Reject(c *gin.Context) {
	var req dto.ManagerDecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
			return
		}
	}
	request, err := h.engine.ManagerReject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel an exchange request
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancelExchangeRequest false "Cancel payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exchanges/{id}/cancel [post]
func (h *ExchangeHandler) Cancel(c *gin.Context) {
	var req dto.CancelExchangeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cancel payload"))
			return
		}
	}
	request, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Complete godoc
// @Summary Finalize an approved exchange
// @Tags Exchanges
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /exchanges/{id}/complete [post]
func (h *ExchangeHandler) Complete(c *gin.Context) {
	request, err := h.engine.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Get godoc
// @Summary Get one exchange request
// @Tags Exchanges
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exchanges/{id} [get]
func (h *ExchangeHandler) Get(c *gin.Context) {
	request, err := h.engine.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Pool godoc
// @Summary List unclaimed giveaway and pickup requests
// @Tags Exchanges
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /exchanges/pool [get]
func (h *ExchangeHandler) Pool(c *gin.Context) {
	requests, err := h.queries.ListOpenPool(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Queue godoc
// @Summary List requests awaiting manager review
// @Tags Exchanges
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exchanges/queue [get]
func (h *ExchangeHandler) Queue(c *gin.Context) {
	requests, err := h.queries.ListManagerQueue(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Mine godoc
// @Summary List the caller's exchange requests
// @Tags Exchanges
// @Produce json
// @Param include_terminal query bool false "Include finished requests"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /exchanges/mine [get]
func (h *ExchangeHandler) Mine(c *gin.Context) {
	query := dto.EmployeeExchangeQuery{
		IncludeTerminal: strings.EqualFold(c.Query("include_terminal"), "true"),
	}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Offset = v
		}
	}
	requests, err := h.queries.ListForEmployee(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Stats godoc
// @Summary Aggregate exchange counters
// @Tags Exchanges
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exchanges/stats [get]
func (h *ExchangeHandler) Stats(c *gin.Context) {
	rng, err := statsRangeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.queries.Stats(c.Request.Context(), rng)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export exchange history
// @Tags Exchanges
// @Produce text/csv
// @Param format query string false "csv or pdf"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /exchanges/export [get]
func (h *ExchangeHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	rng, err := statsRangeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.exports.RenderHistory(c.Request.Context(), rng, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

func statsRangeFromQuery(c *gin.Context) (models.StatsRange, error) {
	var query dto.StatsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return models.StatsRange{}, appErrors.Clone(appErrors.ErrValidation, "invalid date range")
	}
	rng := models.StatsRange{}
	if query.From != "" {
		from, err := time.Parse("2006-01-02", query.From)
		if err != nil {
			return models.StatsRange{}, appErrors.Clone(appErrors.ErrValidation, "invalid from date")
		}
		rng.From = from
	}
	if query.To != "" {
		to, err := time.Parse("2006-01-02", query.To)
		if err != nil {
			return models.StatsRange{}, appErrors.Clone(appErrors.ErrValidation, "invalid to date")
		}
		// Inclusive upper bound: cover the whole day.
		rng.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return rng, nil
}
