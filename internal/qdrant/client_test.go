package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazankay/eventpipe/pkg/config"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
)

func newTestClient(url string) *Client {
	return NewClient(config.QdrantConfig{URL: url, APIKey: "secret"})
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut:
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 1536, body.Vectors.Size)
			assert.Equal(t, "Cosine", body.Vectors.Distance)
			created = true
			w.Write([]byte(`{"result": true}`))
		}
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).EnsureCollection(context.Background(), "events", 1536)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnsureCollection_SkipsWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "no create call expected")
		w.Write([]byte(`{"result": {"points_count": 3}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).EnsureCollection(context.Background(), "events", 1536)
	require.NoError(t, err)
}

func TestScrollByField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/events/points/scroll", r.URL.Path)
		var body struct {
			Filter struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
			Limit int `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Filter.Must, 1)
		assert.Equal(t, "canonical_hash", body.Filter.Must[0].Key)
		assert.Equal(t, "abc123", body.Filter.Must[0].Match.Value)
		assert.Equal(t, 1, body.Limit)
		w.Write([]byte(`{"result": {"points": [{"id": "p1", "payload": {"title": "Концерт"}}]}}`))
	}))
	defer srv.Close()

	points, err := newTestClient(srv.URL).ScrollByField(context.Background(), "events", "canonical_hash", "abc123", 1)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "p1", points[0].ID)
}

func TestSearch_SendsScoreThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/events/points/search", r.URL.Path)
		var body struct {
			Vector         []float32 `json:"vector"`
			Limit          int       `json:"limit"`
			ScoreThreshold float32   `json:"score_threshold"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []float32{1, 0}, body.Vector)
		assert.Equal(t, 5, body.Limit)
		assert.InDelta(t, 0.92, body.ScoreThreshold, 1e-6)
		w.Write([]byte(`{"result": [{"id": "p1", "score": 0.97}]}`))
	}))
	defer srv.Close()

	points, err := newTestClient(srv.URL).Search(context.Background(), "events", []float32{1, 0}, 5, 0.92)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.97, points[0].Score, 1e-6)
}

func TestRetrieve_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": []}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Retrieve(context.Background(), "events", "missing")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestDo_HTTPErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("index on fire"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CollectionInfo(context.Background(), "events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
