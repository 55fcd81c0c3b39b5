package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/infrastructure/resilience"
)

// DefaultModel is pinned so repeated runs on unchanged input are
// reproducible and the recorded model identifier stays meaningful.
const DefaultModel = "claude-3-5-haiku-20241022"

// Pricing per 1M tokens for the pinned model.
var (
	inputPricePerM  = decimal.NewFromFloat(0.80)
	outputPricePerM = decimal.NewFromFloat(4.00)
	million         = decimal.NewFromInt(1_000_000)
)

// Client runs the required primary analysis call: summary, classification,
// confidence and key points as one structured response.
type Client struct {
	api      anthropic.Client
	model    string
	limiter  *rate.Limiter
	executor *resilience.Executor
}

func New(apiKey, model string, rps float64, executor *resilience.Executor) *Client {
	if model == "" {
		model = DefaultModel
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		api:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		limiter:  limiter,
		executor: executor,
	}
}

// Analyze returns the structured analysis and the cost actually incurred,
// accumulated across every attempt. The cost is meaningful even when the
// call ultimately fails; partial spend is real spend.
func (c *Client) Analyze(ctx context.Context, text string) (domain.Analysis, decimal.Decimal, error) {
	prompt := buildAnalysisPrompt(text)
	incurred := decimal.Zero
	var analysis domain.Analysis

	call := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		message, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			MaxTokens:   1500,
			Temperature: anthropic.Float(0),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return err
		}

		incurred = incurred.Add(tokenCost(message.Usage.InputTokens, message.Usage.OutputTokens))

		var content string
		for _, block := range message.Content {
			if block.Type == "text" {
				content = block.Text
				break
			}
		}
		analysis = c.parseAnalysis(content)
		return nil
	}

	if err := c.executor.Execute(ctx, "anthropic.analyze", call, classifyModelError); err != nil {
		return domain.Analysis{}, incurred, wrapModelError("primary analysis", err)
	}
	return analysis, incurred, nil
}

// parseAnalysis decodes the model's JSON answer. The model occasionally
// wraps the object in prose; a parse failure degrades to a low-confidence
// result rather than discarding a paid-for response.
func (c *Client) parseAnalysis(content string) domain.Analysis {
	var decoded struct {
		Summary        string   `json:"summary"`
		Classification string   `json:"classification"`
		Confidence     float64  `json:"confidence"`
		KeyPoints      []string `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &decoded); err != nil || decoded.Summary == "" {
		summary := content
		if len(summary) > 500 {
			summary = summary[:500]
		}
		return domain.Analysis{
			Summary:        strings.TrimSpace(summary),
			Classification: "Unknown",
			Confidence:     0.5,
			KeyPoints:      []string{"analysis completed but response format was unexpected"},
			Model:          c.model,
		}
	}
	if decoded.KeyPoints == nil {
		decoded.KeyPoints = []string{}
	}
	return domain.Analysis{
		Summary:        decoded.Summary,
		Classification: decoded.Classification,
		Confidence:     decoded.Confidence,
		KeyPoints:      decoded.KeyPoints,
		Model:          c.model,
	}
}

func tokenCost(inputTokens, outputTokens int64) decimal.Decimal {
	input := decimal.NewFromInt(inputTokens).Mul(inputPricePerM).Div(million)
	output := decimal.NewFromInt(outputTokens).Mul(outputPricePerM).Div(million)
	return input.Add(output)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
