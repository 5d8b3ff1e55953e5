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
)

// PosterClient generates a poster image for events whose source post carried
// no photos, via an OpenAI-compatible image-generation endpoint. Posters are
// cosmetic, so the client makes a single attempt and leaves retry decisions
// to the caller.
type PosterClient struct {
	llm    config.LLMConfig
	httpc  *http.Client
	logger *slog.Logger
}

// NewPosterClient creates a poster client.
func NewPosterClient(llm config.LLMConfig) (*PosterClient, error) {
	if len(llm.APIKeys) == 0 {
		return nil, fmt.Errorf("%w: poster client requires at least one API key", apperrors.ErrConfig)
	}
	timeout := llm.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &PosterClient{
		llm:    llm,
		httpc:  &http.Client{Timeout: timeout},
		logger: logger.WithComponent("poster-client"),
	}, nil
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeneratePoster returns a URL for a generated poster image, or an empty
// string when the provider produced nothing usable.
func (p *PosterClient) GeneratePoster(ctx context.Context, title, description string) (string, error) {
	prompt := fmt.Sprintf("Афиша мероприятия: %s. %s", title, description)
	body, err := json.Marshal(imageRequest{Prompt: prompt, N: 1, Size: "1024x1024"})
	if err != nil {
		return "", fmt.Errorf("encoding image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.llm.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.llm.APIKeys[0])

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", classify(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", classify(resp.StatusCode, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, string(respBody), nil)
	}

	var parsed imageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding image response: %w", err)
	}
	if parsed.Error != nil {
		return "", classify(resp.StatusCode, parsed.Error.Message, nil)
	}
	if len(parsed.Data) == 0 {
		return "", nil
	}
	return parsed.Data[0].URL, nil
}
