// Package qdrant is a narrow HTTP client for the Qdrant REST API, covering
// only the operations the deduplicator needs: collection bootstrap, exact
// payload-field filtering, nearest-neighbour search with a score threshold,
// upsert, partial payload update, and point retrieval.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kazankay/eventpipe/pkg/config"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
)

// Client talks to one Qdrant instance.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a Qdrant REST client.
func NewClient(cfg config.QdrantConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger.WithComponent("qdrant-client"),
	}
}

// Point is a stored or matched index point. Score is only set on search
// results.
type Point struct {
	ID      string          `json:"id"`
	Score   float32         `json:"score,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	PointsCount int64
	VectorSize  int
	Distance    string
}

// envelope is Qdrant's uniform response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// EnsureCollection creates the collection with the given dimensionality and
// cosine distance if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	_, err := c.CollectionInfo(ctx, name)
	if err == nil {
		c.logger.Debug("collection already exists", "collection", name)
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := c.do(ctx, http.MethodPut, "/collections/"+name, body); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	c.logger.Info("collection created", "collection", name, "vector_size", vectorSize)
	return nil
}

// CollectionInfo fetches point count and vector parameters.
func (c *Client) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	raw, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil)
	if err != nil {
		return CollectionInfo{}, err
	}
	var parsed struct {
		PointsCount int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CollectionInfo{}, fmt.Errorf("decoding collection info: %w", err)
	}
	return CollectionInfo{
		PointsCount: parsed.PointsCount,
		VectorSize:  parsed.Config.Params.Vectors.Size,
		Distance:    parsed.Config.Params.Vectors.Distance,
	}, nil
}

// ScrollByField returns up to limit points whose payload field exactly
// matches value.
func (c *Client) ScrollByField(ctx context.Context, collection, field, value string, limit int) ([]Point, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": field, "match": map[string]any{"value": value}},
			},
		},
		"limit":        limit,
		"with_payload": true,
	}
	raw, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Points []Point `json:"points"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding scroll result: %w", err)
	}
	return parsed.Points, nil
}

// Search runs an approximate nearest-neighbour query, keeping only matches
// scoring at or above scoreThreshold.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]Point, error) {
	body := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"score_threshold": scoreThreshold,
		"with_payload":    true,
	}
	raw, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	var points []Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("decoding search result: %w", err)
	}
	return points, nil
}

// Upsert writes one point with its vector and payload.
func (c *Client) Upsert(ctx context.Context, collection, id string, vector []float32, payload any) error {
	body := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": vector, "payload": payload},
		},
	}
	if _, err := c.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body); err != nil {
		return fmt.Errorf("upserting point %s: %w", id, err)
	}
	return nil
}

// SetPayload partially updates the payload of one point; fields not present
// in payload are left untouched.
func (c *Client) SetPayload(ctx context.Context, collection, id string, payload any) error {
	body := map[string]any{
		"payload": payload,
		"points":  []string{id},
	}
	if _, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/payload?wait=true", body); err != nil {
		return fmt.Errorf("setting payload on point %s: %w", id, err)
	}
	return nil
}

// Retrieve fetches one point by id, payload included.
func (c *Client) Retrieve(ctx context.Context, collection, id string) (*Point, error) {
	body := map[string]any{
		"ids":          []string{id},
		"with_payload": true,
	}
	raw, err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body)
	if err != nil {
		return nil, err
	}
	var points []Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("decoding retrieve result: %w", err)
	}
	if len(points) == 0 {
		return nil, apperrors.ErrEventNotFound
	}
	return &points[0], nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var he *httpError
	return errors.As(err, &he) && he.status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading qdrant response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{status: resp.StatusCode, body: truncate(string(respBody), 200)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decoding qdrant response: %w", err)
	}
	return env.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
