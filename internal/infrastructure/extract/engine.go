package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/core/ports"
)

// Extraction method tags recorded in the result metadata.
const (
	MethodPDF       = "pdf"
	MethodDOCX      = "docx"
	MethodPlaintext = "plaintext"
	MethodOCR       = "ocr"
)

const docxMediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Engine produces quality-scored plain text from a source blob, dispatching
// on the document's file type tag.
type Engine struct {
	storage ports.ObjectStorage
	ocr     *OCRClient
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(storage ports.ObjectStorage, ocr *OCRClient, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage: storage,
		ocr:     ocr,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *Engine) Extract(ctx context.Context, doc *domain.Document) (domain.Extraction, error) {
	raw, err := e.readBlob(ctx, doc.StorageKey)
	if err != nil {
		return domain.Extraction{}, err
	}

	var (
		text       string
		score      float64
		method     string
		extractErr error
	)

	switch normalizeFileType(doc.FileType) {
	case "application/pdf":
		method = MethodPDF
		text, extractErr = extractPDFText(raw)
		if extractErr == nil {
			score = Score(text)
		}
	case docxMediaType:
		method = MethodDOCX
		text, extractErr = extractDOCXText(raw)
		if extractErr == nil {
			score = Score(text)
		}
	case "text/plain":
		method = MethodPlaintext
		text, score, extractErr = extractPlaintext(raw)
	case "image/jpeg", "image/png", "image/tiff":
		method = MethodOCR
		if e.ocr == nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedFormat, "extract text",
				fmt.Errorf("no OCR backend configured for %s", doc.FileType))
		}
		var confidence float64
		text, confidence, extractErr = e.ocr.Recognize(ctx, raw, doc.FileType)
		if extractErr == nil {
			// Recognition confidence scales the score so a clean-looking
			// but low-confidence OCR pass still routes to poor_quality.
			score = clamp01(Score(text) * confidence)
		}
	default:
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedFormat, "extract text",
			fmt.Errorf("file type %q", doc.FileType))
	}

	if extractErr != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtractionIO, "extract text", extractErr)
	}

	text, truncated := domain.TruncateText(text, domain.MaxAnalysisBytes)
	extraction := domain.Extraction{
		Text:         text,
		TextLength:   len(text),
		QualityScore: score,
		Method:       method,
		Truncated:    truncated,
		ExtractedAt:  e.now().UTC(),
	}

	e.logger.Info("text_extracted",
		"document_id", doc.ID,
		"method", method,
		"text_length", extraction.TextLength,
		"quality_score", score,
		"quality_band", Band(score),
		"truncated", truncated,
	)
	return extraction, nil
}

func (e *Engine) readBlob(ctx context.Context, key string) ([]byte, error) {
	reader, err := e.storage.Open(ctx, key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionIO, "open source blob", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionIO, "read source blob", err)
	}
	return raw, nil
}

func extractPlaintext(raw []byte) (string, float64, error) {
	if !utf8.Valid(raw) {
		return "", 0, fmt.Errorf("plain text blob is not valid UTF-8")
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", 0, nil
	}
	return text, 1.0, nil
}

func normalizeFileType(fileType string) string {
	base, _, _ := strings.Cut(fileType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
