package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/export"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/storage"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

// ExportFormat selects the rendering of an exported listing.
type ExportFormat string

// Supported export formats.
const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat accepts csv or pdf in any case.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportCSV, "":
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	default:
		return "", appErrors.Clonef(appErrors.ErrValidation, "unsupported export format %q", raw)
	}
}

type entitySource interface {
	Entity(collection string) (Entity, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered listing.
type ExportResult struct {
	Filename    string
	ContentType string
	Format      ExportFormat
	Rows        int
	Data        []byte
	// Path is set once the export has been written to storage.
	Path string
}

// ExportService renders collection listings as CSV or PDF.
type ExportService struct {
	records entitySource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. storage may be nil when exports are
// only streamed.
func NewExportService(records entitySource, storage fileStorage, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{records: records, storage: storage, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Render lists collection and renders it in format.
func (s *ExportService) Render(ctx context.Context, collection string, format ExportFormat) (*ExportResult, error) {
	entity, err := s.records.Entity(collection)
	if err != nil {
		return nil, err
	}
	docs, err := entity.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc)
	}
	headers := append([]string{models.FieldID}, entity.Schema().FieldNames()...)
	dataset := export.FromRecords(headers, records)

	result := &ExportResult{
		Format:   format,
		Rows:     len(docs),
		Filename: storage.ExportName(collection, string(format), s.now()),
	}
	switch format {
	case ExportCSV:
		result.ContentType = "text/csv"
		result.Data, err = s.csv.Render(dataset)
	case ExportPDF:
		result.ContentType = "application/pdf"
		result.Data, err = s.pdf.Render(dataset, exportTitle(collection))
	default:
		return nil, appErrors.Clonef(appErrors.ErrValidation, "unsupported export format %q", format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return result, nil
}

// Save renders collection and writes it to storage.
func (s *ExportService) Save(ctx context.Context, collection string, format ExportFormat) (*ExportResult, error) {
	if s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export storage is not configured")
	}
	result, err := s.Render(ctx, collection, format)
	if err != nil {
		return nil, err
	}
	path, err := s.storage.Save(result.Filename, result.Data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save export")
	}
	result.Path = path
	s.logger.Info("export written", zap.String("collection", collection), zap.String("path", path), zap.Int("rows", result.Rows))
	return result, nil
}

func exportTitle(collection string) string {
	if collection == "" {
		return "Records"
	}
	return fmt.Sprintf("%s%s listing", strings.ToUpper(collection[:1]), collection[1:])
}
