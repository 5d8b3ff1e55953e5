// Package dedup decides whether an extracted event duplicates one already
// indexed, using a canonical-hash exact filter before a vector similarity
// search, and merges source provenance into existing entries.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazankay/eventpipe/internal/model"
	"github.com/kazankay/eventpipe/internal/qdrant"
	"github.com/kazankay/eventpipe/pkg/config"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/metrics"
	"github.com/kazankay/eventpipe/pkg/resilience"
)

// topK is how many nearest neighbours the slow path considers.
const topK = 5

// Index is the narrow similarity-index surface the deduplicator relies on.
type Index interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	CollectionInfo(ctx context.Context, name string) (qdrant.CollectionInfo, error)
	ScrollByField(ctx context.Context, collection, field, value string, limit int) ([]qdrant.Point, error)
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]qdrant.Point, error)
	Upsert(ctx context.Context, collection, id string, vector []float32, payload any) error
	SetPayload(ctx context.Context, collection, id string, payload any) error
	Retrieve(ctx context.Context, collection, id string) (*qdrant.Point, error)
}

// IndexPayload mirrors an event's identifying fields inside the index.
// Sources is the only part that changes after indexing.
type IndexPayload struct {
	EventID         string              `json:"event_id"`
	CanonicalHash   string              `json:"canonical_hash"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Location        string              `json:"location"`
	Categories      []string            `json:"categories"`
	Interests       []string            `json:"user_interests"`
	ScheduleSummary string              `json:"schedule_summary"`
	Sources         []model.EventSource `json:"sources"`
	ProcessedAt     string              `json:"processed_at"`
}

// Stats reports operational figures about the index.
type Stats struct {
	TotalEvents int64  `json:"total_events"`
	VectorSize  int    `json:"vector_size"`
	Distance    string `json:"distance"`
}

// Deduplicator runs the two-path duplicate decision against a similarity
// index. Index failures trip a circuit breaker; while it is open every
// lookup fails open toward "not a duplicate".
type Deduplicator struct {
	index   Index
	cfg     config.QdrantConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Deduplicator. m may be nil in tests.
func New(index Index, cfg config.QdrantConfig, m *metrics.Metrics) *Deduplicator {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.92
	}
	return &Deduplicator{
		index: index,
		cfg:   cfg,
		breaker: resilience.NewCircuitBreaker("similarity-index", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  logger.WithComponent("deduplicator"),
	}
}

// Init creates the index collection if it does not exist. A briefly
// unreachable index at startup is retried before the run is abandoned.
func (d *Deduplicator) Init(ctx context.Context) error {
	return resilience.Retry(ctx, "ensure-collection", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func() error {
		return d.index.EnsureCollection(ctx, d.cfg.Collection, d.cfg.VectorSize)
	})
}

// IsDuplicate reports whether event duplicates an indexed entry and, if so,
// the existing entry's id. The fast path matches the canonical hash exactly;
// only on a miss is the similarity search issued. Any index failure is
// treated as "not a duplicate" so the pipeline never stalls on the index.
func (d *Deduplicator) IsDuplicate(ctx context.Context, event *model.StructuredEvent, embedding []float32) (bool, string) {
	hash := CanonicalHash(event)

	var hashHits []qdrant.Point
	err := d.breaker.Execute(func() error {
		var scrollErr error
		hashHits, scrollErr = d.index.ScrollByField(ctx, d.cfg.Collection, "canonical_hash", hash, 1)
		return scrollErr
	})
	if err != nil {
		d.logger.Error("hash lookup failed, treating as new event", "error", err)
		d.count("fail_open")
		return false, ""
	}
	if len(hashHits) > 0 {
		d.logger.Info("exact duplicate found by canonical hash",
			"title", event.Title, "hash", hash[:8], "existing_id", hashHits[0].ID)
		d.count("hash_hit")
		return true, hashHits[0].ID
	}

	var matches []qdrant.Point
	err = d.breaker.Execute(func() error {
		var searchErr error
		matches, searchErr = d.index.Search(ctx, d.cfg.Collection, embedding, topK, d.cfg.SimilarityThreshold)
		return searchErr
	})
	if err != nil {
		d.logger.Error("similarity search failed, treating as new event", "error", err)
		d.count("fail_open")
		return false, ""
	}
	if len(matches) > 0 && matches[0].Score >= d.cfg.SimilarityThreshold {
		best := matches[0]
		d.logger.Info("semantic duplicate found",
			"title", event.Title,
			"score", best.Score,
			"threshold", d.cfg.SimilarityThreshold,
			"existing_id", best.ID,
		)
		d.count("semantic_hit")
		return true, best.ID
	}

	d.count("new")
	return false, ""
}

// Index stores a new event in the similarity index under the given id.
func (d *Deduplicator) Index(ctx context.Context, event *model.StructuredEvent, embedding []float32, id string) error {
	payload := IndexPayload{
		EventID:         id,
		CanonicalHash:   CanonicalHash(event),
		Title:           event.Title,
		Description:     event.Description,
		Location:        event.Location,
		Categories:      event.Categories,
		Interests:       event.Interests,
		ScheduleSummary: event.Schedule.Summary(),
		Sources:         event.Sources,
		ProcessedAt:     event.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if err := d.index.Upsert(ctx, d.cfg.Collection, id, embedding, payload); err != nil {
		return fmt.Errorf("indexing event %s: %w", id, err)
	}
	d.logger.Info("event indexed", "title", event.Title, "event_id", id)
	return nil
}

// MergeSource appends src to the indexed entry's source list unless a source
// with the same (channel, post id) is already present. Only the sources
// field of the payload is touched.
func (d *Deduplicator) MergeSource(ctx context.Context, id string, src model.EventSource) error {
	point, err := d.index.Retrieve(ctx, d.cfg.Collection, id)
	if err != nil {
		return fmt.Errorf("retrieving point %s: %w", id, err)
	}

	var payload IndexPayload
	if err := json.Unmarshal(point.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payload of point %s: %w", id, err)
	}

	for _, existing := range payload.Sources {
		if existing.Same(src) {
			d.logger.Debug("source already present, skipping merge",
				"event_id", id, "channel", src.Channel, "post_id", src.PostID)
			return nil
		}
	}

	sources := append(payload.Sources, src)
	update := map[string]any{"sources": sources}
	if err := d.index.SetPayload(ctx, d.cfg.Collection, id, update); err != nil {
		return fmt.Errorf("updating sources of point %s: %w", id, err)
	}
	d.logger.Info("source merged into existing event",
		"event_id", id, "channel", src.Channel, "post_id", src.PostID)
	return nil
}

// Stats returns index size, vector dimensionality, and the distance metric.
func (d *Deduplicator) Stats(ctx context.Context) (Stats, error) {
	info, err := d.index.CollectionInfo(ctx, d.cfg.Collection)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching collection info: %w", err)
	}
	if d.metrics != nil {
		d.metrics.IndexSize.Set(float64(info.PointsCount))
	}
	return Stats{
		TotalEvents: info.PointsCount,
		VectorSize:  info.VectorSize,
		Distance:    info.Distance,
	}, nil
}

func (d *Deduplicator) count(path string) {
	if d.metrics != nil {
		d.metrics.DedupDecisionsTotal.WithLabelValues(path).Inc()
	}
}
