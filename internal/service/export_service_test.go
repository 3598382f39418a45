package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shift-exchange-api/internal/models"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
)

type historyStub struct {
	requests []models.SwapRequest
	limit    int
}

func (s *historyStub) ListHistory(ctx context.Context, orgID string, rng models.StatsRange, limit int) ([]models.SwapRequest, error) {
	s.limit = limit
	return s.requests, nil
}

func TestRenderHistoryCSV(t *testing.T) {
	target := "Bob"
	stub := &historyStub{requests: []models.SwapRequest{{
		ID:                  "req-1",
		Kind:                models.ExchangeKindGiveaway,
		Status:              models.ExchangeStatusCompleted,
		RequesterName:       "Alice",
		TargetName:          &target,
		RequesterShiftDate:  time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		RequesterShiftStart: "08:00",
		RequesterShiftEnd:   "16:00",
		CreatedAt:           time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}}}
	svc := NewExportService(stub, "org-1", 500, nil)

	result, err := svc.RenderHistory(context.Background(), models.StatsRange{}, ExportFormatCSV)
	require.NoError(t, err)
	require.Equal(t, "text/csv", result.ContentType)
	require.Equal(t, 500, stub.limit)

	body := string(result.Body)
	require.True(t, strings.HasPrefix(body, "ID,Kind,Status"))
	require.Contains(t, body, "req-1,GIVEAWAY,COMPLETED,Alice,Bob,2026-09-14,08:00,16:00")
}

func TestRenderHistoryPDF(t *testing.T) {
	svc := NewExportService(&historyStub{}, "org-1", 100, nil)
	result, err := svc.RenderHistory(context.Background(), models.StatsRange{}, ExportFormatPDF)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", result.ContentType)
	require.NotEmpty(t, result.Body)
}

func TestRenderHistoryUnknownFormat(t *testing.T) {
	svc := NewExportService(&historyStub{}, "org-1", 100, nil)
	_, err := svc.RenderHistory(context.Background(), models.StatsRange{}, ExportFormat("xlsx"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
