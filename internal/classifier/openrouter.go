package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenRouterClient talks to an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	apiURL       string
	apiKey       string
	model        string
	referer      string
	title        string
	systemPrompt string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewOpenRouterClient(cfg Config, logger *slog.Logger) *OpenRouterClient {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultOpenRouterURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}

	title := cfg.Title
	if title == "" {
		title = DefaultTitle
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenRouterClient{
		apiURL:       apiURL,
		apiKey:       cfg.APIKey,
		model:        model,
		referer:      cfg.Referer,
		title:        title,
		systemPrompt: SystemPrompt(cfg.Sources),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (c *OpenRouterClient) Classify(ctx context.Context, in Input) (*Result, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: UserPrompt(in)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    Temperature,
		MaxTokens:      MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", c.title)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("OpenRouter API error",
			"status", resp.StatusCode,
			"error", string(snippet))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("OpenRouter API error: %s", http.StatusText(resp.StatusCode)),
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyResponse
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	content := decoded.Choices[0].Message.Content
	c.logger.Debug("classifier responded",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"content_length", len(content))

	result, err := ParseResult(content)
	if err != nil {
		c.logger.Warn("failed to parse classifier response", "content", content, "error", err)
		return nil, err
	}
	return result, nil
}
