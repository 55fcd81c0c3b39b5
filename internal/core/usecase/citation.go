package usecase

import (
	"strings"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

// ValidateEntityCitations checks every person mention against the source
// text. A person whose quote is absent from the document keeps their entry
// but drops to zero confidence and is flagged for human review; hallucinated
// mentions must stay visible to reviewers, never silently disappear.
func ValidateEntityCitations(entities *domain.Entities, sourceText string) int {
	if entities == nil {
		return 0
	}

	lowerSource := strings.ToLower(sourceText)
	flagged := 0
	for i := range entities.People {
		person := &entities.People[i]
		quote := strings.ToLower(strings.TrimSpace(person.Quote))
		if quote != "" && strings.Contains(lowerSource, quote) {
			continue
		}
		person.Confidence = 0.0
		person.RequiresHumanReview = true
		flagged++
	}
	return flagged
}
