package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

type fakeStorage struct {
	blobs map[string][]byte
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("no such blob: " + key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.blobs[key]
	return ok, nil
}

func testEngine(blobs map[string][]byte) *Engine {
	return NewEngine(&fakeStorage{blobs: blobs}, nil, nil)
}

func TestExtractPlaintextHappyPath(t *testing.T) {
	body := "The respondent shall appear before this court on the next date of hearing."
	engine := testEngine(map[string][]byte{"case-7/doc-1.txt": []byte("  " + body + "\n")})

	doc := &domain.Document{ID: "doc-1", StorageKey: "case-7/doc-1.txt", FileType: "text/plain"}
	extraction, err := engine.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if extraction.Text != body {
		t.Fatalf("expected trimmed body, got %q", extraction.Text)
	}
	if extraction.Method != MethodPlaintext {
		t.Fatalf("expected plaintext method, got %q", extraction.Method)
	}
	if extraction.QualityScore != 1.0 {
		t.Fatalf("valid UTF-8 plaintext scores 1.0, got %f", extraction.QualityScore)
	}
	if extraction.Truncated {
		t.Fatal("short text must not be truncated")
	}
	if extraction.ExtractedAt.IsZero() {
		t.Fatal("expected extraction timestamp")
	}
}

func TestExtractPlaintextWithCharsetParameter(t *testing.T) {
	engine := testEngine(map[string][]byte{"k": []byte("hello")})
	doc := &domain.Document{ID: "doc-1", StorageKey: "k", FileType: "text/plain; charset=utf-8"}
	if _, err := engine.Extract(context.Background(), doc); err != nil {
		t.Fatalf("media type parameters must be ignored: %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	engine := testEngine(map[string][]byte{"k": []byte("data")})
	doc := &domain.Document{ID: "doc-1", StorageKey: "k", FileType: "video/mp4"}

	_, err := engine.Extract(context.Background(), doc)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestExtractMissingBlob(t *testing.T) {
	engine := testEngine(map[string][]byte{})
	doc := &domain.Document{ID: "doc-1", StorageKey: "gone", FileType: "text/plain"}

	_, err := engine.Extract(context.Background(), doc)
	if !domain.IsKind(err, domain.ErrExtractionIO) {
		t.Fatalf("expected extraction IO error, got %v", err)
	}
}

func TestExtractImageWithoutOCRBackend(t *testing.T) {
	engine := testEngine(map[string][]byte{"k": []byte("jpeg bytes")})
	doc := &domain.Document{ID: "doc-1", StorageKey: "k", FileType: "image/jpeg"}

	_, err := engine.Extract(context.Background(), doc)
	if !domain.IsKind(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("image without OCR backend is unsupported, got %v", err)
	}
}

func TestExtractInvalidUTF8Plaintext(t *testing.T) {
	engine := testEngine(map[string][]byte{"k": {0xff, 0xfe, 0xfd}})
	doc := &domain.Document{ID: "doc-1", StorageKey: "k", FileType: "text/plain"}

	_, err := engine.Extract(context.Background(), doc)
	if !domain.IsKind(err, domain.ErrExtractionIO) {
		t.Fatalf("invalid UTF-8 is an extraction error, got %v", err)
	}
}

func TestExtractTruncatesOversizedText(t *testing.T) {
	huge := strings.Repeat("The court heard detailed arguments from both counsel today. ", domain.MaxAnalysisBytes/50)
	engine := testEngine(map[string][]byte{"k": []byte(huge)})
	doc := &domain.Document{ID: "doc-1", StorageKey: "k", FileType: "text/plain"}

	extraction, err := engine.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if !extraction.Truncated {
		t.Fatal("oversized text must be marked truncated")
	}
	if extraction.TextLength > domain.MaxAnalysisBytes {
		t.Fatalf("text must be capped at %d bytes, got %d", domain.MaxAnalysisBytes, extraction.TextLength)
	}
}
