package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateTextNeverSplitsRune(t *testing.T) {
	s := strings.Repeat("н", 10)
	cut, truncated := TruncateText(s, 7)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasPrefix(s, cut) {
		t.Fatal("cut must be a prefix of the input")
	}
	if !utf8.ValidString(cut) {
		t.Fatal("truncation split a multi-byte rune")
	}
}

func TestTruncateTextUnderLimitIsUntouched(t *testing.T) {
	cut, truncated := TruncateText("short filing", MaxAnalysisBytes)
	if truncated || cut != "short filing" {
		t.Fatalf("text under the cap must pass through, got %q (%v)", cut, truncated)
	}
}
