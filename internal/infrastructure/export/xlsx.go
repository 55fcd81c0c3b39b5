package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// ContentTypeXLSX is the MIME type served with exported workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// extractionPreviewChars bounds the text sample in the Extraction sheet so
// workbooks stay small for long filings.
const extractionPreviewChars = 2000

// Exporter renders an analysis result as a reviewer-facing XLSX workbook:
// a summary sheet, the extracted entities, extraction metadata and the
// document's audit trail.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) AnalysisWorkbook(doc *domain.Document, events []domain.AuditEvent) ([]byte, error) {
	if doc == nil || doc.Analysis == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export analysis",
			fmt.Errorf("document has no analysis result"))
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := writeSummarySheet(f, doc); err != nil {
		return nil, err
	}
	if err := writeEntitiesSheet(f, doc.Analysis.Entities); err != nil {
		return nil, err
	}
	if err := writeExtractionSheet(f, doc.Analysis.Extraction); err != nil {
		return nil, err
	}
	if err := writeAuditSheet(f, events); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummarySheet(f *excelize.File, doc *domain.Document) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}

	result := doc.Analysis
	rows := [][2]any{
		{"Document ID", doc.ID},
		{"Case ID", doc.CaseID},
		{"File Type", doc.FileType},
		{"Status", string(doc.Status)},
		{"Analyzed At", result.Processing.CompletedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration (ms)", result.Processing.DurationMS},
		{"Total Cost (USD)", result.Processing.TotalCostUSD},
	}
	if result.Analysis != nil {
		rows = append(rows,
			[2]any{"Classification", result.Analysis.Classification},
			[2]any{"Confidence", result.Analysis.Confidence},
			[2]any{"Model", result.Analysis.Model},
			[2]any{"Summary", result.Analysis.Summary},
			[2]any{"Key Points", strings.Join(result.Analysis.KeyPoints, "\n")},
		)
	}
	if result.Processing.Error != nil {
		rows = append(rows, [2]any{"Error", *result.Processing.Error})
	}

	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeEntitiesSheet(f *excelize.File, entities *domain.Entities) error {
	const sheet = "Entities"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create entities sheet: %w", err)
	}

	header := []any{"Type", "Value", "Role", "Confidence", "Needs Review", "Quote"}
	for col, v := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write entities header: %w", err)
		}
	}
	if entities == nil {
		return nil
	}

	row := 2
	for _, p := range entities.People {
		cells := []any{"person", p.Name, p.Role, p.Confidence, p.RequiresHumanReview, p.Quote}
		if err := setCells(f, sheet, row, cells); err != nil {
			return err
		}
		row++
	}
	groups := []struct {
		kind   string
		values []string
	}{
		{"date", entities.Dates},
		{"location", entities.Locations},
		{"case_number", entities.CaseNumbers},
		{"organization", entities.Organizations},
	}
	for _, group := range groups {
		for _, v := range group.values {
			kind := group.kind
			if err := setCells(f, sheet, row, []any{kind, v, "", "", "", ""}); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeExtractionSheet(f *excelize.File, extraction domain.Extraction) error {
	const sheet = "Extraction"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create extraction sheet: %w", err)
	}

	preview := extraction.Text
	if len(preview) > extractionPreviewChars {
		preview = preview[:extractionPreviewChars] + "..."
	}
	rows := [][2]any{
		{"Method", extraction.Method},
		{"Quality Score", extraction.QualityScore},
		{"Text Length", extraction.TextLength},
		{"Truncated", extraction.Truncated},
		{"Extracted At", extraction.ExtractedAt.Format("2006-01-02 15:04:05 MST")},
		{"Text Preview", preview},
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeAuditSheet(f *excelize.File, events []domain.AuditEvent) error {
	const sheet = "Audit"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create audit sheet: %w", err)
	}

	if err := setCells(f, sheet, 1, []any{"Time", "Event", "Detail"}); err != nil {
		return err
	}
	for i, event := range events {
		cells := []any{
			event.CreatedAt.Format("2006-01-02 15:04:05 MST"),
			string(event.EventType),
			event.Detail,
		}
		if err := setCells(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, label, value any) error {
	return setCells(f, sheet, row, []any{label, value})
}

func setCells(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
