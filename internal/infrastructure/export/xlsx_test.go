package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

func analyzedDoc() *domain.Document {
	completed := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	return &domain.Document{
		ID:       "doc-1",
		CaseID:   "case-7",
		FileType: "application/pdf",
		Status:   domain.StatusAnalysisComplete,
		Analysis: &domain.AnalysisResult{
			Extraction: domain.Extraction{
				Text:         "The court granted bail to the applicant.",
				TextLength:   40,
				QualityScore: 0.92,
				Method:       "pdf",
				ExtractedAt:  completed,
			},
			Analysis: &domain.Analysis{
				Summary:        "Bail order.",
				Classification: "Court Order",
				Confidence:     0.9,
				KeyPoints:      []string{"bail granted"},
				Model:          "claude-3-5-haiku-20241022",
			},
			Entities: &domain.Entities{
				People: []domain.Person{
					{Name: "A. Kumar", Role: "judge", Confidence: 0.95, Quote: "granted bail"},
				},
				Dates:         []string{"2026-08-20"},
				Locations:     []string{"Pune"},
				CaseNumbers:   []string{"BA 45/2026"},
				Organizations: []string{},
			},
			Processing: domain.ProcessingInfo{
				StartedAt:    completed.Add(-30 * time.Second),
				CompletedAt:  completed,
				DurationMS:   30_000,
				TotalCostUSD: 0.01,
			},
		},
	}
}

func TestAnalysisWorkbookSheets(t *testing.T) {
	exporter := NewExporter()
	events := []domain.AuditEvent{
		{DocumentID: "doc-1", EventType: domain.AuditAnalysisStarted, CreatedAt: time.Now().UTC()},
		{DocumentID: "doc-1", EventType: domain.AuditAnalysisCompleted, Detail: "cost_usd=0.01", CreatedAt: time.Now().UTC()},
	}

	raw, err := exporter.AnalysisWorkbook(analyzedDoc(), events)
	if err != nil {
		t.Fatalf("workbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{"Summary", "Entities", "Extraction", "Audit"} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Fatalf("missing sheet %q", sheet)
		}
	}

	got, err := f.GetCellValue("Summary", "A1")
	if err != nil || got != "Document ID" {
		t.Fatalf("unexpected summary header %q (%v)", got, err)
	}
	got, _ = f.GetCellValue("Summary", "B1")
	if got != "doc-1" {
		t.Fatalf("expected document id in summary, got %q", got)
	}

	got, _ = f.GetCellValue("Entities", "B2")
	if got != "A. Kumar" {
		t.Fatalf("expected person on first entity row, got %q", got)
	}
	got, _ = f.GetCellValue("Entities", "A3")
	if got != "date" {
		t.Fatalf("expected date row after people, got %q", got)
	}

	got, _ = f.GetCellValue("Audit", "B2")
	if got != string(domain.AuditAnalysisStarted) {
		t.Fatalf("expected first audit event, got %q", got)
	}
}

func TestAnalysisWorkbookRequiresResult(t *testing.T) {
	exporter := NewExporter()
	doc := &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}

	_, err := exporter.AnalysisWorkbook(doc, nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := exporter.AnalysisWorkbook(nil, nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("nil document must be invalid input, got %v", err)
	}
}

func TestAnalysisWorkbookTruncatesPreview(t *testing.T) {
	doc := analyzedDoc()
	long := make([]byte, extractionPreviewChars+500)
	for i := range long {
		long[i] = 'b'
	}
	doc.Analysis.Extraction.Text = string(long)

	raw, err := NewExporter().AnalysisWorkbook(doc, nil)
	if err != nil {
		t.Fatalf("workbook failed: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	preview, _ := f.GetCellValue("Extraction", "B6")
	if len(preview) > extractionPreviewChars+3 {
		t.Fatalf("preview not capped, length %d", len(preview))
	}
}
