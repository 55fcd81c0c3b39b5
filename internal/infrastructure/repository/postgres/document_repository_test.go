package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

func newMockRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewDocumentRepository(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	}
}

func documentColumns() []string {
	return []string{
		"id", "case_id", "file_type", "file_size", "storage_key",
		"status", "cancel_requested", "analysis_result", "created_at", "updated_at",
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(documentColumns()))

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByIDUnmarshalsStoredResult(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	result := domain.AnalysisResult{
		Analysis: &domain.Analysis{Summary: "s", Classification: "Court Order", Confidence: 0.9},
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentColumns()).AddRow(
			"doc-1", "case-7", "application/pdf", int64(1024), "case-7/doc-1.pdf",
			string(domain.StatusAnalysisComplete), false, raw, now, now,
		))

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Status != domain.StatusAnalysisComplete {
		t.Fatalf("expected analysis_complete, got %q", doc.Status)
	}
	if doc.Analysis == nil || doc.Analysis.Analysis.Classification != "Court Order" {
		t.Fatalf("expected stored analysis, got %+v", doc.Analysis)
	}
}

func TestClaimProcessingWinsConditionalUpdate(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusAnalysisComplete), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ClaimProcessing(context.Background(), "doc-1", false); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
}

func TestClaimProcessingLosesToActiveRun(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusAnalysisComplete), false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentColumns()).AddRow(
			"doc-1", "case-7", "application/pdf", int64(0), "k",
			string(domain.StatusProcessing), false, nil, now, now,
		))

	err := repo.ClaimProcessing(context.Background(), "doc-1", false)
	if !domain.IsKind(err, domain.ErrAlreadyProcessing) {
		t.Fatalf("expected already processing, got %v", err)
	}
}

func TestClaimProcessingCompletedNeedsForce(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", string(domain.StatusProcessing), sqlmock.AnyArg(),
			string(domain.StatusAnalysisComplete), false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentColumns()).AddRow(
			"doc-1", "case-7", "application/pdf", int64(0), "k",
			string(domain.StatusAnalysisComplete), false, nil, now, now,
		))

	err := repo.ClaimProcessing(context.Background(), "doc-1", false)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without force, got %v", err)
	}
}

func TestSaveResultCommitsTerminalStatus(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", string(domain.StatusAnalysisComplete), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result := &domain.AnalysisResult{
		Analysis: &domain.Analysis{Summary: "s"},
	}
	if err := repo.SaveResult(context.Background(), "doc-1", domain.StatusAnalysisComplete, result); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestSaveResultRejectsUnknownStatus(t *testing.T) {
	repo, _, done := newMockRepo(t)
	defer done()

	err := repo.SaveResult(context.Background(), "doc-1", domain.DocumentStatus("bogus"), nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSaveResultMissingDocument(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("gone", string(domain.StatusFailed), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveResult(context.Background(), "gone", domain.StatusFailed, nil)
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequestCancelFlagsProcessingRun(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RequestCancel(context.Background(), "doc-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
}

func TestRequestCancelRejectsIdleDocument(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents")).
		WithArgs("doc-1", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(documentColumns()).AddRow(
			"doc-1", "case-7", "application/pdf", int64(0), "k",
			string(domain.StatusUploaded), false, nil, now, now,
		))

	err := repo.RequestCancel(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCancelRequestedReadsFlag(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT cancel_requested")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"cancel_requested"}).AddRow(true))

	cancelled, err := repo.CancelRequested(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel flag true")
	}
}

func TestListStuckProcessing(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	cutoff := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM documents")).
		WithArgs(string(domain.StatusProcessing), cutoff.UTC()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1").AddRow("doc-2"))

	ids, err := repo.ListStuckProcessing(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "doc-1" || ids[1] != "doc-2" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
