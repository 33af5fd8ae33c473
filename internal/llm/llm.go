// Package llm is the client for the external text-completion service.
//
// Streaming is tried first: it avoids response-size timeouts on large code
// generations but is more failure-prone on flaky connections. Failed
// attempts are retried with exponential backoff, and the final attempt
// additionally falls back to a non-streaming request with a longer timeout
// before the call is declared failed.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ServiceError is returned by Complete only after every strategy
// (all streaming retries plus the non-streaming fallback) is exhausted.
type ServiceError struct {
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Options configures a Client. Zero fields fall back to safe defaults.
type Options struct {
	BaseURL         string
	Model           string
	APIKey          string
	SystemPrompt    string
	Retries         int
	Backoff         time.Duration
	StreamTimeout   time.Duration
	FallbackTimeout time.Duration
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	opts   Options
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a completion client.
func New(opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 10 * time.Second
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 15 * time.Minute
	}
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = 20 * time.Minute
	}
	return &Client{
		opts: opts,
		// No client-level timeout: each request carries its own hard
		// deadline via context so a stuck stream is aborted without
		// killing the enclosing cycle.
		client: &http.Client{},
		sleep:  sleepCtx,
	}
}

// IsConfigured reports whether an API key is available.
func (c *Client) IsConfigured() bool { return c.opts.APIKey != "" }

// Complete sends the prompt and returns the generated text. Streaming is
// attempted on every try; the last try also attempts a non-streaming
// request before giving up.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		log.Printf("completion attempt %d/%d (streaming)", attempt, c.opts.Retries)

		text, err := c.completeStreaming(ctx, prompt, maxTokens, temperature)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Printf("completion attempt %d failed: %v", attempt, err)

		if attempt == c.opts.Retries {
			log.Printf("final attempt: trying non-streaming fallback")
			text, ferr := c.completeBlocking(ctx, prompt, maxTokens, temperature)
			if ferr == nil {
				return text, nil
			}
			log.Printf("non-streaming fallback failed: %v", ferr)
			lastErr = ferr
			break
		}

		// base × multiplier^(attempt-1)
		delay := c.opts.Backoff * time.Duration(1<<(attempt-1))
		if err := c.sleep(ctx, delay); err != nil {
			return "", &ServiceError{Attempts: attempt, Err: err}
		}
	}

	return "", &ServiceError{Attempts: c.opts.Retries, Err: lastErr}
}

func (c *Client) messages(prompt string) []map[string]string {
	msgs := make([]map[string]string, 0, 2)
	if c.opts.SystemPrompt != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": c.opts.SystemPrompt})
	}
	return append(msgs, map[string]string{"role": "user", "content": prompt})
}

func (c *Client) newRequest(ctx context.Context, prompt string, maxTokens int, temperature float64, stream bool) (*http.Request, error) {
	body := map[string]any{
		"model":       c.opts.Model,
		"messages":    c.messages(prompt),
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"stream":      stream,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	return req, nil
}

// completeStreaming reads incremental SSE chunks, accumulating the content
// channel and the auxiliary reasoning channel separately. Some models emit
// their answer entirely as reasoning, so reasoning is the fallback when
// content comes back empty.
func (c *Client) completeStreaming(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, prompt, maxTokens, temperature, true)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var content, reasoning strings.Builder
	chunks := 0

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(line[len("data: "):])
		if payload == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content          string `json:"content"`
					ReasoningContent string `json:"reasoning_content"`
					Reasoning        string `json:"reasoning"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		content.WriteString(delta.Content)
		if delta.ReasoningContent != "" {
			reasoning.WriteString(delta.ReasoningContent)
		} else {
			reasoning.WriteString(delta.Reasoning)
		}
		chunks++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}

	if chunks > 0 {
		log.Printf("received %d chunks: content=%d, reasoning=%d chars", chunks, content.Len(), reasoning.Len())
	}

	text := content.String()
	if text == "" {
		text = reasoning.String()
	}
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

// completeBlocking is the non-streaming last-resort variant.
func (c *Client) completeBlocking(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FallbackTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, prompt, maxTokens, temperature, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	text := result.Choices[0].Message.Content
	if text == "" {
		text = result.Choices[0].Message.ReasoningContent
	}
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
