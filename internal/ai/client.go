package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
)

// Generator produces a single completion for a prompt. The engine treats
// the text-generation service as a black box behind this interface.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Client calls the external messages API over HTTP with retries.
type Client struct {
	httpClient *http.Client
	serviceURL string
	apiKey     string
	model      string
	maxRetries int
	logger     *logrus.Logger
}

// NewClient creates a client from the AI section of the config.
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.AITimeout()},
		serviceURL: cfg.AI.ServiceURL,
		apiKey:     cfg.AI.APIKey,
		model:      cfg.AI.Model,
		maxRetries: cfg.AI.MaxRetries,
		logger:     logger,
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HTTPStatusError is returned for non-200 responses after retries are
// exhausted.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ai service returned %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a status code is worth retrying. Client errors
// other than rate limiting never succeed on retry.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Generate sends one prompt and returns the concatenated text blocks of the
// response. Transient failures are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(messageRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ai request: %w", err)
	}

	var result string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
			if !retryable(resp.StatusCode) {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}

		var parsed messageResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode ai response: %w", err))
		}
		if parsed.Error != nil {
			return backoff.Permanent(fmt.Errorf("ai service error %s: %s", parsed.Error.Type, parsed.Error.Message))
		}

		var text string
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		if text == "" {
			return backoff.Permanent(fmt.Errorf("ai response contained no text blocks"))
		}
		result = text
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, strategy); err != nil {
		c.logger.WithError(err).Warn("AI generation failed")
		return "", err
	}

	return result, nil
}
