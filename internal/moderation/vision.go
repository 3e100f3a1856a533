package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"mediaingest/internal/config"
)

const (
	maxResponseBytes = 1 << 20

	systemPrompt = `You are an image safety classifier for a social platform.
Answer with a single JSON object and nothing else:
{"category": "<safe|nudity|sexual|violence|gore|hate|self_harm|drugs|weapons|csam|spam>", "confidence": <0..1>, "reason": "<short explanation>"}
confidence is the probability that the image belongs to category. Use "safe" when nothing applies.`
)

// VisionClassifier calls an OpenAI-compatible chat completions endpoint with
// the image attached as a data URL.
type VisionClassifier struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewVisionClassifier(cfg config.ModerationConfig, client *http.Client) *VisionClassifier {
	if client == nil {
		client = &http.Client{}
	}
	return &VisionClassifier{
		endpoint: strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions",
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *VisionClassifier) Classify(ctx context.Context, in Input) (Assessment, error) {
	dataURL := "data:" + in.MIME + ";base64," + base64.StdEncoding.EncodeToString(in.Data)
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []map[string]any{
				{"type": "text", "text": fmt.Sprintf("Classify this %s upload.", strings.ReplaceAll(string(in.Purpose), "_", " "))},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Assessment{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode envelope: %v", ErrMalformed, err)
	}
	if len(chat.Choices) == 0 {
		return Assessment{}, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return parseAssessment(chat.Choices[0].Message.Content)
}

// parseAssessment accepts the model answer with or without a markdown fence
// and repairs truncated or sloppy JSON before giving up.
func parseAssessment(content string) (Assessment, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return Assessment{}, fmt.Errorf("%w: empty content", ErrMalformed)
	}

	var a Assessment
	err := json.Unmarshal([]byte(content), &a)
	if err == nil {
		return a, nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Assessment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal([]byte(repaired), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}
