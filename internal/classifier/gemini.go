package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/genai"
)

// GeminiClient classifies through the Gemini API with JSON output mode.
type GeminiClient struct {
	client       *genai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

func NewGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIURL}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiClient{
		client:       client,
		model:        model,
		systemPrompt: SystemPrompt(cfg.Sources),
		logger:       logger,
	}, nil
}

func (c *GeminiClient) Classify(ctx context.Context, in Input) (*Result, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(UserPrompt(in)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](Temperature),
		MaxOutputTokens:   MaxTokens,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &TransportError{StatusCode: apiErr.Code, Err: err}
		}
		return nil, &TransportError{Err: err}
	}

	if resp == nil {
		return nil, ErrEmptyResponse
	}
	content := resp.Text()
	if content == "" {
		return nil, ErrEmptyResponse
	}

	result, err := ParseResult(content)
	if err != nil {
		c.logger.Warn("failed to parse gemini response", "model", c.model, "content", content, "error", err)
		return nil, err
	}
	return result, nil
}
