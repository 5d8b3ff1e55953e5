package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazankay/eventpipe/internal/model"
	"github.com/kazankay/eventpipe/internal/qdrant"
	"github.com/kazankay/eventpipe/pkg/config"
)

// fakeIndex records calls and serves canned results.
type fakeIndex struct {
	scrollHits    []qdrant.Point
	scrollErr     error
	searchHits    []qdrant.Point
	searchErr     error
	retrievePoint *qdrant.Point

	ensureErrs  []error
	ensureCalls int
	scrollCalls int
	searchCalls int
	upsertCalls int
	setPayloads []any
	upsertedIDs []string
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	f.ensureCalls++
	if f.ensureCalls <= len(f.ensureErrs) {
		return f.ensureErrs[f.ensureCalls-1]
	}
	return nil
}

func (f *fakeIndex) CollectionInfo(ctx context.Context, name string) (qdrant.CollectionInfo, error) {
	return qdrant.CollectionInfo{PointsCount: 7, VectorSize: 4, Distance: "Cosine"}, nil
}

func (f *fakeIndex) ScrollByField(ctx context.Context, collection, field, value string, limit int) ([]qdrant.Point, error) {
	f.scrollCalls++
	return f.scrollHits, f.scrollErr
}

func (f *fakeIndex) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]qdrant.Point, error) {
	f.searchCalls++
	return f.searchHits, f.searchErr
}

func (f *fakeIndex) Upsert(ctx context.Context, collection, id string, vector []float32, payload any) error {
	f.upsertCalls++
	f.upsertedIDs = append(f.upsertedIDs, id)
	return nil
}

func (f *fakeIndex) SetPayload(ctx context.Context, collection, id string, payload any) error {
	f.setPayloads = append(f.setPayloads, payload)
	return nil
}

func (f *fakeIndex) Retrieve(ctx context.Context, collection, id string) (*qdrant.Point, error) {
	return f.retrievePoint, nil
}

func testConfig() config.QdrantConfig {
	return config.QdrantConfig{
		Collection:          "events",
		VectorSize:          4,
		SimilarityThreshold: 0.92,
	}
}

func testEvent() *model.StructuredEvent {
	return exactEvent("Концерт", "Филармония", time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC))
}

func TestInit_RetriesStartupFailure(t *testing.T) {
	index := &fakeIndex{ensureErrs: []error{errors.New("connection refused")}}
	d := New(index, testConfig(), nil)

	err := d.Init(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, index.ensureCalls)
}

func TestIsDuplicate_HashHitSkipsSearch(t *testing.T) {
	index := &fakeIndex{
		scrollHits: []qdrant.Point{{ID: "existing-id"}},
	}
	d := New(index, testConfig(), nil)

	dup, id := d.IsDuplicate(context.Background(), testEvent(), []float32{1, 0, 0, 0})

	assert.True(t, dup)
	assert.Equal(t, "existing-id", id)
	assert.Equal(t, 1, index.scrollCalls)
	assert.Zero(t, index.searchCalls, "hash hit must short-circuit the similarity search")
}

func TestIsDuplicate_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name  string
		score float32
		dup   bool
	}{
		{"exactly at threshold", 0.92, true},
		{"above threshold", 0.95, true},
		{"just below threshold", 0.9199, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{
				searchHits: []qdrant.Point{{ID: "near-id", Score: tt.score}},
			}
			d := New(index, testConfig(), nil)

			dup, id := d.IsDuplicate(context.Background(), testEvent(), []float32{1, 0, 0, 0})

			assert.Equal(t, tt.dup, dup)
			if tt.dup {
				assert.Equal(t, "near-id", id)
			} else {
				assert.Empty(t, id)
			}
		})
	}
}

func TestIsDuplicate_NoMatches(t *testing.T) {
	index := &fakeIndex{}
	d := New(index, testConfig(), nil)

	dup, id := d.IsDuplicate(context.Background(), testEvent(), []float32{1, 0, 0, 0})

	assert.False(t, dup)
	assert.Empty(t, id)
	assert.Equal(t, 1, index.scrollCalls)
	assert.Equal(t, 1, index.searchCalls)
}

func TestIsDuplicate_FailsOpenOnScrollError(t *testing.T) {
	index := &fakeIndex{scrollErr: errors.New("connection refused")}
	d := New(index, testConfig(), nil)

	dup, id := d.IsDuplicate(context.Background(), testEvent(), []float32{1, 0, 0, 0})

	assert.False(t, dup)
	assert.Empty(t, id)
}

func TestIsDuplicate_FailsOpenOnSearchError(t *testing.T) {
	index := &fakeIndex{searchErr: errors.New("timeout")}
	d := New(index, testConfig(), nil)

	dup, _ := d.IsDuplicate(context.Background(), testEvent(), []float32{1, 0, 0, 0})

	assert.False(t, dup)
}

func TestIndex_UpsertsWithCanonicalHash(t *testing.T) {
	index := &fakeIndex{}
	d := New(index, testConfig(), nil)
	event := testEvent()

	err := d.Index(context.Background(), event, []float32{1, 0, 0, 0}, "new-id")

	require.NoError(t, err)
	assert.Equal(t, []string{"new-id"}, index.upsertedIDs)
}

func TestMergeSource_SkipsExistingSource(t *testing.T) {
	payload, err := json.Marshal(IndexPayload{
		EventID: "ev-1",
		Sources: []model.EventSource{{Channel: "channelA", PostID: 5}},
	})
	require.NoError(t, err)

	index := &fakeIndex{retrievePoint: &qdrant.Point{ID: "ev-1", Payload: payload}}
	d := New(index, testConfig(), nil)

	err = d.MergeSource(context.Background(), "ev-1", model.EventSource{Channel: "channelA", PostID: 5})

	require.NoError(t, err)
	assert.Empty(t, index.setPayloads, "existing source must not be appended again")
}

func TestMergeSource_AppendsNewSource(t *testing.T) {
	payload, err := json.Marshal(IndexPayload{
		EventID: "ev-1",
		Sources: []model.EventSource{{Channel: "channelA", PostID: 5}},
	})
	require.NoError(t, err)

	index := &fakeIndex{retrievePoint: &qdrant.Point{ID: "ev-1", Payload: payload}}
	d := New(index, testConfig(), nil)

	err = d.MergeSource(context.Background(), "ev-1", model.EventSource{Channel: "channelB", PostID: 9})

	require.NoError(t, err)
	require.Len(t, index.setPayloads, 1)
	update, ok := index.setPayloads[0].(map[string]any)
	require.True(t, ok)
	sources, ok := update["sources"].([]model.EventSource)
	require.True(t, ok)
	assert.Len(t, sources, 2)
}

func TestStats(t *testing.T) {
	d := New(&fakeIndex{}, testConfig(), nil)

	stats, err := d.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalEvents)
	assert.Equal(t, 4, stats.VectorSize)
	assert.Equal(t, "Cosine", stats.Distance)
}
