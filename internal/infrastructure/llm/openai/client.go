package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/lexflow/case-analysis/internal/core/domain"
	"github.com/lexflow/case-analysis/internal/infrastructure/resilience"
)

const (
	DefaultModel   = "gpt-4-turbo-preview"
	defaultBaseURL = "https://api.openai.com"

	// Entity extraction works on a shorter window than the primary
	// analysis; names and dates cluster early in most filings. The cap
	// counts bytes of UTF-8 and truncation never splits a rune.
	maxEntityBytes = 80_000
)

// Pricing per 1M tokens for the default model.
var (
	inputPricePerM  = decimal.NewFromFloat(10.00)
	outputPricePerM = decimal.NewFromFloat(30.00)
	million         = decimal.NewFromInt(1_000_000)
)

// Client extracts named entities through the chat completions endpoint.
// It is the optional secondary provider; callers treat its failures as
// degradation, not as run failure.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(apiKey, model, baseURL string, rps float64, executor *resilience.Executor) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		limiter:    limiter,
		executor:   executor,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ExtractEntities returns the structured entity set and the cost incurred
// across every attempt, including attempts that failed.
func (c *Client) ExtractEntities(ctx context.Context, text string) (*domain.Entities, decimal.Decimal, error) {
	text, _ = domain.TruncateText(text, maxEntityBytes)
	incurred := decimal.Zero
	var entities *domain.Entities

	call := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		content, cost, err := c.complete(ctx, text)
		incurred = incurred.Add(cost)
		if err != nil {
			return err
		}
		entities = c.parseEntities(content)
		return nil
	}

	if err := c.executor.Execute(ctx, "openai.entities", call, classifyModelError); err != nil {
		return nil, incurred, wrapModelError("entity extraction", err)
	}
	return entities, incurred, nil
}

func (c *Client) complete(ctx context.Context, text string) (string, decimal.Decimal, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a legal entity extraction system. Respond only with valid JSON."},
			{Role: "user", Content: buildEntityPrompt(text)},
		},
		Temperature:    0,
		MaxTokens:      1000,
		ResponseFormat: &chatFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", decimal.Zero, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", decimal.Zero, fmt.Errorf("decode chat response: %w", err)
	}
	cost := tokenCost(decoded.Usage.PromptTokens, decoded.Usage.CompletionTokens)
	if decoded.Error != nil {
		return "", cost, fmt.Errorf("chat completion error (%s): %s", decoded.Error.Type, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", cost, fmt.Errorf("chat completion returned no choices")
	}
	return decoded.Choices[0].Message.Content, cost, nil
}

func (c *Client) parseEntities(content string) *domain.Entities {
	var decoded struct {
		People []struct {
			Name       string  `json:"name"`
			Role       string  `json:"role"`
			Confidence float64 `json:"confidence"`
			Quote      string  `json:"quote"`
		} `json:"people"`
		Dates         []string `json:"dates"`
		Locations     []string `json:"locations"`
		CaseNumbers   []string `json:"case_numbers"`
		Organizations []string `json:"organizations"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &decoded); err != nil {
		out := emptyEntities(c.model)
		out.FallbackReason = "model response was not parseable JSON"
		return out
	}

	out := emptyEntities(c.model)
	for _, p := range decoded.People {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		out.People = append(out.People, domain.Person{
			Name:       p.Name,
			Role:       p.Role,
			Confidence: p.Confidence,
			Quote:      p.Quote,
		})
	}
	if decoded.Dates != nil {
		out.Dates = decoded.Dates
	}
	if decoded.Locations != nil {
		out.Locations = decoded.Locations
	}
	if decoded.CaseNumbers != nil {
		out.CaseNumbers = decoded.CaseNumbers
	}
	if decoded.Organizations != nil {
		out.Organizations = decoded.Organizations
	}
	return out
}

func emptyEntities(model string) *domain.Entities {
	return &domain.Entities{
		People:        []domain.Person{},
		Dates:         []string{},
		Locations:     []string{},
		CaseNumbers:   []string{},
		Organizations: []string{},
		Model:         model,
	}
}

func tokenCost(promptTokens, completionTokens int64) decimal.Decimal {
	input := decimal.NewFromInt(promptTokens).Mul(inputPricePerM).Div(million)
	output := decimal.NewFromInt(completionTokens).Mul(outputPricePerM).Div(million)
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
