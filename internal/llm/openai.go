package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"dialog-insights-go/internal/config"
	"dialog-insights-go/internal/logger"
)

// APIError is a non-2xx answer or an error body from the completion endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm api %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm api %d: %s", e.StatusCode, e.Message)
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *logrus.Entry
}

func NewOpenAIClient(cfg config.AnalyzeConfig, log *logrus.Entry) *OpenAIClient {
	return &OpenAIClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.WithField("component", "llm-client"),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, cr CompletionRequest) (*CompletionResponse, error) {
	data, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	log := logger.WithRequest(c.log, req).WithField("model", cr.Model)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w", err)
	}
	log.WithField("http_status", resp.StatusCode).Debug("llm responded")

	var parsed chatResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 512)}
		if decodeErr == nil && parsed.Error != nil {
			apiErr.Type = parsed.Error.Type
			apiErr.Message = parsed.Error.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode llm response: %w", decodeErr)
	}
	if parsed.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Type: parsed.Error.Type, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrNoChoices
	}

	return &CompletionResponse{
		Text:             parsed.Choices[0].Message.Content,
		FinishReason:     parsed.Choices[0].FinishReason,
		Model:            parsed.Model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
