package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/shift-exchange-api/internal/models"
	appErrors "github.com/noah-isme/shift-exchange-api/pkg/errors"
	"github.com/noah-isme/shift-exchange-api/pkg/export"
)

type exchangeHistory interface {
	ListHistory(ctx context.Context, orgID string, rng models.StatsRange, limit int) ([]models.SwapRequest, error)
}

// ExportFormat identifies a supported export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries the rendered document and its HTTP metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Body        []byte
}

// ExportService renders exchange history into downloadable documents.
type ExportService struct {
	repo    exchangeHistory
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
	orgID   string
	maxRows int
}

// NewExportService constructs the export facade.
func NewExportService(repo exchangeHistory, orgID string, maxRows int, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &ExportService{
		repo:    repo,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		orgID:   orgID,
		maxRows: maxRows,
	}
}

var historyHeaders = []string{
	"ID", "Kind", "Status", "Requester", "Target",
	"Shift Date", "Shift Start", "Shift End", "Manager", "Decided At", "Created At",
}

// RenderHistory exports every request inside the range in the given format.
func (s *ExportService) RenderHistory(ctx context.Context, rng models.StatsRange, format ExportFormat) (*ExportResult, error) {
	requests, err := s.repo.ListHistory(ctx, s.orgID, rng, s.maxRows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load exchange history")
	}

	dataset := export.Dataset{Headers: historyHeaders, Rows: make([]map[string]string, 0, len(requests))}
	for i := range requests {
		dataset.Rows = append(dataset.Rows, historyRow(&requests[i]))
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case ExportFormatCSV:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("exchange-history-%s.csv", stamp),
			ContentType: "text/csv",
			Body:        body,
		}, nil
	case ExportFormatPDF:
		body, err := s.pdf.Render(dataset, "Shift Exchange History")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("exchange-history-%s.pdf", stamp),
			ContentType: "application/pdf",
			Body:        body,
		}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
}

func historyRow(req *models.SwapRequest) map[string]string {
	row := map[string]string{
		"ID":          req.ID,
		"Kind":        string(req.Kind),
		"Status":      string(req.Status),
		"Requester":   req.RequesterName,
		"Shift Date":  req.RequesterShiftDate.Format("2006-01-02"),
		"Shift Start": req.RequesterShiftStart,
		"Shift End":   req.RequesterShiftEnd,
		"Created At":  req.CreatedAt.Format(time.RFC3339),
	}
	if req.TargetName != nil {
		row["Target"] = *req.TargetName
	}
	if req.ManagerName != nil {
		row["Manager"] = *req.ManagerName
	}
	if req.DecidedAt != nil {
		row["Decided At"] = req.DecidedAt.Format(time.RFC3339)
	}
	return row
}
