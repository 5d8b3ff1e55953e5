package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazankay/eventpipe/pkg/config"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
)

func embeddingServer(t *testing.T, capture *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingRequest
		decodeJSONBody(t, r, &req)
		if capture != nil {
			*capture = req.Input
		}
		w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
}

func TestEmbed(t *testing.T) {
	srv := embeddingServer(t, nil)
	defer srv.Close()

	e, err := NewEmbeddingClient(testLLMConfig(srv.URL, "key-1"), config.EmbeddingConfig{
		Model:         "embed-model",
		MaxInputChars: 100,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "Концерт Филармония")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_TruncatesLongInput(t *testing.T) {
	var got string
	srv := embeddingServer(t, &got)
	defer srv.Close()

	e, err := NewEmbeddingClient(testLLMConfig(srv.URL, "key-1"), config.EmbeddingConfig{
		Model:         "embed-model",
		MaxInputChars: 10,
	})
	require.NoError(t, err)

	// Cyrillic input: truncation must cut runes, not bytes
	_, err = e.Embed(context.Background(), strings.Repeat("ж", 50))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ж", 10), got)
}

func TestEmbed_RetriesTransient(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data": [{"embedding": [1]}]}`))
	}))
	defer srv.Close()

	e, err := NewEmbeddingClient(testLLMConfig(srv.URL, "key-1"), config.EmbeddingConfig{Model: "embed-model"})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "текст")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 2, calls)
}

func TestEmbed_AuthNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := NewEmbeddingClient(testLLMConfig(srv.URL, "key-1"), config.EmbeddingConfig{Model: "embed-model"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "текст")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuth)
	assert.Equal(t, 1, calls)
}

func TestEmbed_EmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	e, err := NewEmbeddingClient(testLLMConfig(srv.URL, "key-1"), config.EmbeddingConfig{Model: "embed-model"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "текст")
	assert.Error(t, err)
}
