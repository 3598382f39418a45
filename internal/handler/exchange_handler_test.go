package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shift-exchange-api/internal/dto"
	"github.com/noah-isme/shift-exchange-api/internal/middleware"
	"github.com/noah-isme/shift-exchange-api/internal/models"
	"github.com/noah-isme/shift-exchange-api/internal/service"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
)

type exchangeServiceMock struct {
	resp        *models.SwapRequest
	err         error
	lastID      string
	lastCreate  dto.CreateExchangeRequest
	claimCalled bool
}

func (m *exchangeServiceMock) CreateRequest(ctx context.Context, req dto.CreateExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastCreate = req
	return m.resp, m.err
}

func (m *exchangeServiceMock) Claim(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.claimCalled = true
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) Decline(ctx context.Context, id string, req dto.DeclineExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) ManagerApprove(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) ManagerReject(ctx context.Context, id string, req dto.ManagerDecisionRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) Cancel(ctx context.Context, id string, req dto.CancelExchangeRequest, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) Complete(ctx context.Context, id string) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

func (m *exchangeServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.SwapRequest, error) {
	m.lastID = id
	return m.resp, m.err
}

type exchangeQueryMock struct {
	pool      []models.SwapRequest
	queue     []models.SwapRequest
	mine      []models.SwapRequest
	stats     *models.ExchangeStats
	err       error
	lastQuery dto.EmployeeExchangeQuery
	lastRange models.StatsRange
}

func (m *exchangeQueryMock) ListOpenPool(ctx context.Context) ([]models.SwapRequest, error) {
	return m.pool, m.err
}

func (m *exchangeQueryMock) ListManagerQueue(ctx context.Context, actor *models.JWTClaims) ([]models.SwapRequest, error) {
	return m.queue, m.err
}

func (m *exchangeQueryMock) ListForEmployee(ctx context.Context, query dto.EmployeeExchangeQuery, actor *models.JWTClaims) ([]models.SwapRequest, error) {
	m.lastQuery = query
	return m.mine, m.err
}

func (m *exchangeQueryMock) Stats(ctx context.Context, rng models.StatsRange) (*models.ExchangeStats, error) {
	m.lastRange = rng
	return m.stats, m.err
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "emp-1", FullName: "Alice", Role: models.RoleEmployee})
	return c, w
}

func TestExchangeHandlerCreate(t *testing.T) {
	mockSvc := &exchangeServiceMock{resp: &models.SwapRequest{ID: "req-1", Status: models.ExchangeStatusPending}}
	handler := NewExchangeHandler(mockSvc, &exchangeQueryMock{}, nil)

	payload, _ := json.Marshal(dto.CreateExchangeRequest{Kind: models.ExchangeKindGiveaway, ShiftID: "shift-1"})
	c, w := testContext(t, http.MethodPost, "/exchanges", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ExchangeKindGiveaway, mockSvc.lastCreate.Kind)
}

func TestExchangeHandlerCreateInvalidBody(t *testing.T) {
	handler := NewExchangeHandler(&exchangeServiceMock{}, &exchangeQueryMock{}, nil)
	c, w := testContext(t, http.MethodPost, "/exchanges", []byte(`{"kind":`))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExchangeHandlerClaimConflict(t *testing.T) {
	mockSvc := &exchangeServiceMock{err: appErrors.ErrAlreadyClaimed}
	handler := NewExchangeHandler(mockSvc, &exchangeQueryMock{}, nil)

	c, w := testContext(t, http.MethodPost, "/exchanges/req-1/claim", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Claim(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, mockSvc.claimCalled)
	assert.Equal(t, "req-1", mockSvc.lastID)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ALREADY_CLAIMED", envelope.Error.Code)
}

func TestExchangeHandlerCompleteRosterFailure(t *testing.T) {
	mockSvc := &exchangeServiceMock{err: appErrors.ErrRosterMutationFailed}
	handler := NewExchangeHandler(mockSvc, &exchangeQueryMock{}, nil)

	c, w := testContext(t, http.MethodPost, "/exchanges/req-1/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Complete(c)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestExchangeHandlerDeclineWithoutBody(t *testing.T) {
	mockSvc := &exchangeServiceMock{resp: &models.SwapRequest{ID: "req-1", Status: models.ExchangeStatusRejected}}
	handler := NewExchangeHandler(mockSvc, &exchangeQueryMock{}, nil)

	c, w := testContext(t, http.MethodPost, "/exchanges/req-1/decline", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Decline(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestExchangeHandlerMineParsesQuery(t *testing.T) {
	queryMock := &exchangeQueryMock{mine: []models.SwapRequest{}}
	handler := NewExchangeHandler(&exchangeServiceMock{}, queryMock, nil)

	c, w := testContext(t, http.MethodGet, "/exchanges/mine?include_terminal=true&limit=5&offset=10", nil)

	handler.Mine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, queryMock.lastQuery.IncludeTerminal)
	assert.Equal(t, 5, queryMock.lastQuery.Limit)
	assert.Equal(t, 10, queryMock.lastQuery.Offset)
}

func TestExchangeHandlerStatsRejectsBadDates(t *testing.T) {
	handler := NewExchangeHandler(&exchangeServiceMock{}, &exchangeQueryMock{}, nil)

	c, w := testContext(t, http.MethodGet, "/exchanges/stats?from=not-a-date", nil)
	handler.Stats(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExchangeHandlerStatsParsesRange(t *testing.T) {
	queryMock := &exchangeQueryMock{stats: &models.ExchangeStats{Total: 1}}
	handler := NewExchangeHandler(&exchangeServiceMock{}, queryMock, nil)

	c, w := testContext(t, http.MethodGet, "/exchanges/stats?from=2026-09-01&to=2026-09-30", nil)
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2026, queryMock.lastRange.From.Year())
	assert.True(t, queryMock.lastRange.To.After(queryMock.lastRange.From))
}

func TestExchangeHandlerExportDisabled(t *testing.T) {
	handler := NewExchangeHandler(&exchangeServiceMock{}, &exchangeQueryMock{}, nil)

	c, w := testContext(t, http.MethodGet, "/exchanges/export", nil)
	handler.Export(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

type exportServiceMock struct {
	result *service.ExportResult
	err    error
	format service.ExportFormat
}

func (m *exportServiceMock) RenderHistory(ctx context.Context, rng models.StatsRange, format service.ExportFormat) (*service.ExportResult, error) {
	m.format = format
	return m.result, m.err
}

func TestExchangeHandlerExportCSV(t *testing.T) {
	exportMock := &exportServiceMock{result: &service.ExportResult{
		FileName:    "exchange-history-20260901.csv",
		ContentType: "text/csv",
		Body:        []byte("ID,Kind\n"),
	}}
	handler := NewExchangeHandler(&exchangeServiceMock{}, &exchangeQueryMock{}, exportMock)

	c, w := testContext(t, http.MethodGet, "/exchanges/export?format=csv", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, exportMock.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "exchange-history")
}
