package openai

import "fmt"

func buildEntityPrompt(text string) string {
	return fmt.Sprintf(`Extract named entities from this legal document.

For each person, include a short verbatim quote from the document where
the person is mentioned, so the mention can be verified against the source.

Document text:
%s

Respond with ONLY a JSON object in this format:
{
    "people": [{"name": "Name", "role": "accused/witness/judge/advocate/other", "confidence": 0.9, "quote": "exact text from the document mentioning this person"}],
    "dates": ["2024-01-15"],
    "locations": ["Place name"],
    "case_numbers": ["CC 123/2024"],
    "organizations": ["Organization name"]
}`, text)
}
