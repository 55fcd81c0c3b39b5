package extract

import (
	"strings"
	"unicode"
)

// Score estimates how trustworthy extracted text is for downstream
// analysis: the ratio of readable characters, halved when the text carries
// ten words or fewer, clamped to [0,1]. Control characters and OCR noise
// drag the ratio down.
func Score(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	var valid, total int
	for _, r := range text {
		total++
		if isReadable(r) {
			valid++
		}
	}
	ratio := float64(valid) / float64(total)

	multiplier := 0.5
	if len(strings.Fields(text)) > 10 {
		multiplier = 1.0
	}
	return clamp01(ratio * multiplier)
}

// Band labels a score for logs and reports: poor routes to the
// poor_quality status and never reaches a model.
func Band(score float64) string {
	switch {
	case score < 0.3:
		return "poor"
	case score <= 0.7:
		return "acceptable"
	default:
		return "good"
	}
}

func isReadable(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(`.,!?;:-'"()/&%$#@`, r)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
