// Package gateway drives an OpenAI-compatible chat-completions endpoint with
// credential rotation, classification-aware retry, and randomized exponential
// backoff. It also provides the embedding client used for similarity search.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kazankay/eventpipe/pkg/config"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/metrics"
	"github.com/kazankay/eventpipe/pkg/resilience"
)

// Message is one role-tagged chat message. ImageBase64, when set, is sent
// as an inline image content part alongside the text.
type Message struct {
	Role        string
	Content     string
	ImageBase64 string
}

// Client is a resilient model-gateway client. It owns an ordered credential
// pool; the rotation index is instance state guarded by a mutex, so one
// Client may be shared across workers.
type Client struct {
	cfg     config.LLMConfig
	httpc   *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	keyIdx int
}

// New creates a gateway Client. m may be nil in tests.
func New(cfg config.LLMConfig, m *metrics.Metrics) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: gateway requires at least one API key", apperrors.ErrConfig)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 10 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		metrics: m,
		logger:  logger.WithComponent("model-gateway"),
	}, nil
}

// currentKey returns the credential at the rotation index.
func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.APIKeys[c.keyIdx]
}

// rotateKey advances the rotation index, wrapping. Returns false when there
// is nothing to rotate to.
func (c *Client) rotateKey() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cfg.APIKeys) <= 1 {
		return false
	}
	c.keyIdx = (c.keyIdx + 1) % len(c.cfg.APIKeys)
	c.logger.Warn("rotated to next API key", "key_index", c.keyIdx)
	if c.metrics != nil {
		c.metrics.GatewayRotationsTotal.Inc()
	}
	return true
}

// Complete sends the messages to the chat-completions endpoint and returns
// the generated text. Rate limits rotate the credential and back off;
// transient failures back off without rotation; auth and quota failures are
// surfaced immediately. At most cfg.MaxAttempts requests are made.
func (c *Client) Complete(ctx context.Context, messages []Message, wantVision bool) (string, error) {
	model := c.cfg.Model
	if wantVision && c.cfg.VisionModel != "" {
		model = c.cfg.VisionModel
	}

	start := time.Now()
	var lastErr *apperrors.CallError
	rotations := 0

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		text, callErr := c.doComplete(ctx, model, messages)
		if callErr == nil {
			c.observe("ok", start)
			return text, nil
		}
		lastErr = callErr

		switch {
		case errors.Is(callErr, apperrors.ErrQuotaExhausted):
			c.logger.Error("model quota exhausted, aborting run", "error", callErr)
			c.observe("quota", start)
			return "", callErr
		case errors.Is(callErr, apperrors.ErrAuth):
			c.logger.Error("credential rejected", "error", callErr)
			c.observe("auth", start)
			return "", callErr
		case errors.Is(callErr, apperrors.ErrRateLimited):
			if rotations < len(c.cfg.APIKeys) && c.rotateKey() {
				rotations++
			}
		case errors.Is(callErr, apperrors.ErrTransient):
			// retried below without rotation
		default:
			c.logger.Error("non-retryable model failure", "error", callErr)
			c.observe("other", start)
			return "", callErr
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		delay := resilience.Delay(attempt, resilience.RetryConfig{
			InitialDelay:   c.cfg.BackoffMin,
			MaxDelay:       c.cfg.BackoffMax,
			Multiplier:     2.0,
			JitterFraction: 0.25,
		})
		c.logger.Warn("model call failed, backing off",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"delay", delay,
			"error", callErr,
		)
		if err := resilience.Sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("model call aborted during backoff: %w", err)
		}
	}

	if errors.Is(lastErr, apperrors.ErrRateLimited) {
		c.observe("rate_limited", start)
	} else {
		c.observe("transient", start)
	}
	return "", fmt.Errorf("all %d attempts failed: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) observe(result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.GatewayCallsTotal.WithLabelValues(result).Inc()
	c.metrics.GatewayCallDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds())
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// doComplete performs one HTTP request with the current credential.
func (c *Client) doComplete(ctx context.Context, model string, messages []Message) (string, *apperrors.CallError) {
	payload := completionRequest{
		Model:       model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	for _, msg := range messages {
		if msg.ImageBase64 != "" {
			payload.Messages = append(payload.Messages, wireMessage{
				Role: msg.Role,
				Content: []contentPart{
					{Type: "text", Text: msg.Content},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:image/jpeg;base64," + msg.ImageBase64,
					}},
				},
			})
			continue
		}
		payload.Messages = append(payload.Messages, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", classify(0, "", fmt.Errorf("encoding completion request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", classify(0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.currentKey())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", classify(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", classify(resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, string(respBody), nil)
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", classify(resp.StatusCode, string(respBody), fmt.Errorf("decoding completion response: %w", err))
	}
	if parsed.Error != nil {
		return "", classify(resp.StatusCode, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", classify(resp.StatusCode, "empty choices in completion response", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
