package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/photosmith/photosmith/internal/repository"
)

// Service is a tiny façade over the metadata repository that produces
// XLSX bytes for corpus exports.
type Service struct {
	metadata repository.MetadataRepository
	logger   *slog.Logger
}

func NewService(metadata repository.MetadataRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{metadata: metadata, logger: logger}
}

// ExportMetadataXLSX returns an XLSX workbook (as bytes) with one row
// per photo that has AI metadata, newest first.
func (s *Service) ExportMetadataXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.metadata.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Metadata"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Photo ID",
		"Title",
		"Description",
		"Keywords",
		"Confidence",
		"Model Version",
		"Processed At",
		"Approved",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.PhotoID.String())
		write(2, r.Title)
		write(3, truncate(r.Description, 500))
		write(4, strings.Join(r.Keywords, ", "))
		write(5, r.ConfidenceScore)
		write(6, r.ModelVersion)
		if r.ProcessedAt != nil {
			write(7, r.ProcessedAt.UTC().Format(time.RFC3339))
		} else {
			write(7, "")
		}
		write(8, r.Approved)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // uuid
	_ = f.SetColWidth(sheet, "B", "B", 28) // title
	_ = f.SetColWidth(sheet, "C", "C", 64) // description
	_ = f.SetColWidth(sheet, "D", "D", 48) // keywords
	_ = f.SetColWidth(sheet, "E", "F", 16)
	_ = f.SetColWidth(sheet, "G", "G", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
