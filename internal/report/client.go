package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Client talks to an OpenAI-compatible chat completions endpoint. Transient
// failures (5xx, transport errors) are retried with fibonacci backoff; 4xx
// responses fail immediately since retrying them cannot help.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey, model string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "report"),
	}
}

// Configured reports whether an endpoint and model are set. Without them the
// generator falls back to a locally assembled summary.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.model != ""
}

// Model returns the configured model name, recorded on generated reports.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			c.logger.Warn("llm request failed, retrying", "status", resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("llm returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("llm returned %d: %s", resp.StatusCode, string(msg))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(err)
		}
		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("parse llm response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("llm response has no choices")
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
