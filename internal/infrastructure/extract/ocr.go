package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OCRClient talks to the optical recognition sidecar over HTTP. The service
// returns recognized text plus a mean recognition confidence in [0,1].
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOCRClient(baseURL string) *OCRClient {
	return &OCRClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *OCRClient) Recognize(ctx context.Context, image []byte, contentType string) (string, float64, error) {
	payload := map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString(image),
		"content_type": contentType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recognize", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", 0, fmt.Errorf("ocr status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, fmt.Errorf("decode ocr response: %w", err)
	}
	return decoded.Text, clamp01(decoded.Confidence), nil
}
