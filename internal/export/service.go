// Package export builds spreadsheet downloads of a user's render history.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pagepress/internal/models"
	"pagepress/internal/pkg/logger"
)

const sheetName = "Renders"

// RecordSource lists all records of an owner, newest first.
type RecordSource interface {
	AllByOwner(ctx context.Context, ownerID string) ([]models.RenderRecord, error)
}

// Service produces XLSX bytes for history exports.
type Service struct {
	records RecordSource
	baseURL string
	log     *logger.Logger
}

// NewService builds download links against baseURL, the public origin of
// the API. An empty baseURL yields root-relative links.
func NewService(records RecordSource, baseURL string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Service{records: records, baseURL: strings.TrimRight(baseURL, "/"), log: log.WithComponent("export")}
}

// DownloadPath is the API path that streams a stored render.
func DownloadPath(recordID string) string {
	return "/api/renders/" + recordID + "/content"
}

// RenderHistoryXLSX returns a workbook with one row per record:
// Date, URL and Download.
func (s *Service) RenderHistoryXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()

	recs, err := s.records.AllByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet rather than leaving an empty Sheet1 behind.
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}

	headers := []string{"Date", "URL", "Download"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "C1", style)
	}
	dateStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 22})

	for i, r := range recs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		write(1, r.CreatedAt.UTC())
		write(2, r.SourceURL)

		link := s.baseURL + DownloadPath(r.ID)
		write(3, link)
		cell, _ := excelize.CoordinatesToCellName(3, row)
		_ = f.SetCellHyperLink(sheetName, cell, link, "External")

		if dateStyle != 0 {
			dateCell, _ := excelize.CoordinatesToCellName(1, row)
			_ = f.SetCellStyle(sheetName, dateCell, dateCell, dateStyle)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "B", 60)
	_ = f.SetColWidth(sheetName, "C", "C", 70)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.log.FromContext(ctx).Info("render history exported",
		"rows", len(recs),
		"bytes", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
