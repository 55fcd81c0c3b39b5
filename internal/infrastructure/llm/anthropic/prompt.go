package anthropic

import "fmt"

func buildAnalysisPrompt(text string) string {
	return fmt.Sprintf(`You are analyzing a legal document. Please provide:

1. A concise summary (3-5 sentences) of the document's content and purpose
2. Classification of the document type (e.g., Chargesheet, FIR, Court Order, Affidavit, Evidence Document, Legal Notice, etc.)
3. 3-5 key points or important facts from the document
4. Your confidence level in the classification (0-1 scale)

Document text:
%s

Respond with ONLY a JSON object in this format:
{
    "summary": "Your 3-5 sentence summary here",
    "classification": "Document type",
    "key_points": ["Point 1", "Point 2", "Point 3"],
    "confidence": 0.95
}`, text)
}
