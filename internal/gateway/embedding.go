package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kazankay/eventpipe/pkg/config"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/resilience"
)

// Embedder turns text into a fixed-length vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint. It shares
// the gateway's credential pool and classification but retries only
// transient and rate-limit failures, without rotation: embedding volume is
// far below completion volume.
type EmbeddingClient struct {
	llm    config.LLMConfig
	cfg    config.EmbeddingConfig
	httpc  *http.Client
	logger *slog.Logger
}

// NewEmbeddingClient creates an embedding client.
func NewEmbeddingClient(llm config.LLMConfig, cfg config.EmbeddingConfig) (*EmbeddingClient, error) {
	if len(llm.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: embedding client requires at least one API key", apperrors.ErrConfig)
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 8000
	}
	timeout := llm.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmbeddingClient{
		llm:    llm,
		cfg:    cfg,
		httpc:  &http.Client{Timeout: timeout},
		logger: logger.WithComponent("embedding-client"),
	}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the embedding vector for text, truncated to the provider's
// maximum input length.
func (e *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	runes := []rune(text)
	if len(runes) > e.cfg.MaxInputChars {
		runes = runes[:e.cfg.MaxInputChars]
	}

	var vector []float32
	err := resilience.RetryIf(ctx, "embedding", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	}, apperrors.IsRetryable, func() error {
		v, callErr := e.doEmbed(ctx, string(runes))
		if callErr != nil {
			return callErr
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (e *EmbeddingClient) doEmbed(ctx context.Context, input string) ([]float32, *apperrors.CallError) {
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: input})
	if err != nil {
		return nil, classify(0, "", fmt.Errorf("encoding embedding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.llm.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, classify(0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.llm.APIKeys[0])

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, classify(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, classify(resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, string(respBody), nil)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, classify(resp.StatusCode, string(respBody), fmt.Errorf("decoding embedding response: %w", err))
	}
	if parsed.Error != nil {
		return nil, classify(resp.StatusCode, parsed.Error.Message, nil)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, classify(resp.StatusCode, "empty embedding in response", nil)
	}
	return parsed.Data[0].Embedding, nil
}
