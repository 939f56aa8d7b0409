package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
	"github.com/guardianlink/guardianlink-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type rosterLister interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
}

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered document ready to stream.
type ExportResult struct {
	ContentType string
	Filename    string
	Data        []byte
}

// ExportService renders the teacher roster with current grants for download.
type ExportService struct {
	roster rosterLister
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// default exporters.
func NewExportService(roster rosterLister, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{roster: roster, csv: csv, pdf: pdf, logger: logger}
}

// TeacherRoster renders every teacher with their merged grants.
func (s *ExportService) TeacherRoster(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	teachers, _, err := s.roster.List(ctx, models.TeacherFilter{PageSize: 1000})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher roster")
	}

	dataset := export.Dataset{
		Headers: []string{"employee_id", "full_name", "email", "department", "status", "assigned_subjects", "assigned_classes", "semester"},
	}
	for _, t := range teachers {
		row := map[string]string{
			"employee_id":       t.EmployeeID,
			"full_name":         t.FullName,
			"email":             t.Email,
			"status":            string(t.Status),
			"assigned_subjects": strings.Join(t.AssignedSubjects, "; "),
			"assigned_classes":  strings.Join(t.AssignedClasses, "; "),
		}
		if t.Department != nil {
			row["department"] = *t.Department
		}
		if t.Semester != nil {
			row["semester"] = *t.Semester
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{ContentType: "text/csv", Filename: "teacher_roster.csv", Data: data}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, "Teacher Roster")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{ContentType: "application/pdf", Filename: "teacher_roster.pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
