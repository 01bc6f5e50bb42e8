package sheets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/medistock/internal/config"
	"github.com/mamadbah2/medistock/internal/domain/models"
)

const (
	reportRange = "Reports!A:G"
	dateLayout  = "2006-01-02"
)

// RowAppender is the slice of the Sheets API the report mirror needs.
type RowAppender interface {
	AppendRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// ReportSheet mirrors daily reports into a spreadsheet for the accountant.
type ReportSheet struct {
	rows   RowAppender
	logger *zap.Logger
}

// NewReportSheet wraps any RowAppender.
func NewReportSheet(rows RowAppender, logger *zap.Logger) *ReportSheet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportSheet{rows: rows, logger: logger}
}

// AppendDailyReport writes one row per daily report.
func (s *ReportSheet) AppendDailyReport(ctx context.Context, report models.DailyReport) error {
	values := []interface{}{
		report.Date.Format(dateLayout),
		report.TotalPatients,
		report.BillsIssued,
		report.Income.StringFixed(2),
		report.LowStockCount,
		report.ExpiringCount,
		report.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if err := s.rows.AppendRow(ctx, reportRange, values); err != nil {
		return fmt.Errorf("mirror daily report %s: %w", report.Date.Format(dateLayout), err)
	}

	s.logger.Debug("daily report mirrored to sheet", zap.String("date", report.Date.Format(dateLayout)))
	return nil
}

// GoogleSheetClient appends rows through the official Google Sheets API.
type GoogleSheetClient struct {
	service       *sheetsapi.Service
	spreadsheetID string
}

// NewGoogleSheetClient builds a Sheets API client from a service account credentials file.
func NewGoogleSheetClient(ctx context.Context, cfg config.SheetsConfig) (*GoogleSheetClient, error) {
	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetClient{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
	}, nil
}

// AppendRow appends the provided values below the last row of the range.
func (c *GoogleSheetClient) AppendRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := c.service.Spreadsheets.Values.Append(c.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}
	return nil
}
