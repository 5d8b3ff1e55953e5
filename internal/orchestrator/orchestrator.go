// Package orchestrator drives the per-post flow: idempotency gate, extraction,
// embedding, deduplication, and persistence, plus the batch loop over
// unprocessed posts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kazankay/eventpipe/internal/model"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/metrics"
)

// Extractor turns one raw post into structured events.
type Extractor interface {
	Run(ctx context.Context, post model.RawPost) ([]model.StructuredEvent, []string, error)
}

// Embedder produces an embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Matcher is the deduplication surface backed by the similarity index.
type Matcher interface {
	IsDuplicate(ctx context.Context, event *model.StructuredEvent, embedding []float32) (bool, string)
	Index(ctx context.Context, event *model.StructuredEvent, embedding []float32, id string) error
	MergeSource(ctx context.Context, id string, src model.EventSource) error
}

// EventStore is the persistence surface the orchestrator needs.
type EventStore interface {
	UnprocessedPosts(ctx context.Context, limit int) ([]model.RawPost, error)
	IsProcessed(ctx context.Context, channel string, postID int64) (bool, error)
	MarkProcessed(ctx context.Context, rec model.ProcessedPostRecord) (bool, error)
	SaveEvent(ctx context.Context, id string, event *model.StructuredEvent) error
	AppendEventSource(ctx context.Context, id string, src model.EventSource) error
}

// Orchestrator runs posts through the full extract-dedup-persist flow.
type Orchestrator struct {
	extractor Extractor
	embedder  Embedder
	matcher   Matcher
	store     EventStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Orchestrator. m may be nil in tests.
func New(extractor Extractor, embedder Embedder, matcher Matcher, store EventStore, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		embedder:  embedder,
		matcher:   matcher,
		store:     store,
		metrics:   m,
		logger:    logger.WithComponent("orchestrator"),
	}
}

// ProcessPost runs one post end to end and returns the events it resolved,
// both newly created and merged duplicates, each carrying its persistent id.
// A post whose ledger entry already exists is skipped without model calls.
// The ledger entry is written only after every event is persisted, so a crash
// mid-post leaves the post eligible for reprocessing.
func (o *Orchestrator) ProcessPost(ctx context.Context, post model.RawPost) ([]model.StructuredEvent, error) {
	log := logger.WithPost(o.logger, post.Channel, post.PostID)

	done, err := o.store.IsProcessed(ctx, post.Channel, post.PostID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if done {
		log.Info("post already processed, skipping")
		if o.metrics != nil {
			o.metrics.PostsSkippedTotal.Inc()
		}
		return nil, nil
	}

	start := time.Now()
	events, stageErrors, err := o.extractor.Run(ctx, post)
	if err != nil {
		return nil, err
	}
	for _, msg := range stageErrors {
		log.Warn("extraction stage error", "error", msg)
	}

	src := post.Source()
	eventIDs := make([]string, 0, len(events))
	for i := range events {
		if err := o.resolveEvent(ctx, &events[i], src, log); err != nil {
			return nil, err
		}
		eventIDs = append(eventIDs, events[i].ID)
	}

	inserted, err := o.store.MarkProcessed(ctx, model.ProcessedPostRecord{
		Channel:     post.Channel,
		PostID:      post.PostID,
		ProcessedAt: time.Now().UTC(),
		EventIDs:    eventIDs,
		EventsCount: len(eventIDs),
	})
	if err != nil {
		return nil, fmt.Errorf("writing ledger entry: %w", err)
	}
	if !inserted {
		log.Warn("ledger entry already existed, concurrent processing suspected")
	}

	if o.metrics != nil {
		o.metrics.PostDuration.Observe(time.Since(start).Seconds())
	}
	log.Info("post processed", "events", len(eventIDs), "duration", time.Since(start))
	return events, nil
}

// resolveEvent persists one extracted event and sets its ID, merging into an
// existing event when the deduplicator finds a match. Similarity-index
// failures never lose an event: the embedding step failing or the index being
// unreachable both degrade to storing the event as new.
func (o *Orchestrator) resolveEvent(ctx context.Context, event *model.StructuredEvent, src model.EventSource, log *slog.Logger) error {
	embedding, err := o.embedder.Embed(ctx, event.EmbeddingText())
	if err != nil {
		if apperrors.IsFatal(err) || errors.Is(err, apperrors.ErrAuth) {
			return fmt.Errorf("embedding %q: %w", event.Title, err)
		}
		log.Warn("embedding failed, storing event without dedup", "title", event.Title, "error", err)
		embedding = nil
	}

	if embedding != nil {
		if dup, existingID := o.matcher.IsDuplicate(ctx, event, embedding); dup {
			if err := o.store.AppendEventSource(ctx, existingID, src); err != nil {
				return fmt.Errorf("merging into event %s: %w", existingID, err)
			}
			if err := o.matcher.MergeSource(ctx, existingID, src); err != nil {
				log.Warn("index source merge failed", "event_id", existingID, "error", err)
			}
			log.Info("event merged into existing", "event_id", existingID, "title", event.Title)
			event.ID = existingID
			return nil
		}
	}

	event.ID = uuid.NewString()
	if err := o.store.SaveEvent(ctx, event.ID, event); err != nil {
		return fmt.Errorf("saving event %q: %w", event.Title, err)
	}
	if embedding != nil {
		if err := o.matcher.Index(ctx, event, embedding, event.ID); err != nil {
			log.Warn("indexing event failed", "event_id", event.ID, "error", err)
		}
	}
	return nil
}

// ProcessBatch fetches unprocessed posts and runs them sequentially. Per-post
// failures are counted and the batch continues; an exhausted quota or a
// context cancellation aborts the batch and the stats collected so far are
// returned alongside the error.
func (o *Orchestrator) ProcessBatch(ctx context.Context, limit int) (model.BatchStats, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.BatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	posts, err := o.store.UnprocessedPosts(ctx, limit)
	if err != nil {
		return model.BatchStats{}, fmt.Errorf("fetching unprocessed posts: %w", err)
	}
	o.logger.Info("batch started", "posts", len(posts), "limit", limit)

	var stats model.BatchStats
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Total++

		resolved, err := o.ProcessPost(ctx, post)
		if err != nil {
			stats.Errors++
			if o.metrics != nil {
				o.metrics.PostsProcessedTotal.WithLabelValues("error").Inc()
			}
			if apperrors.IsFatal(err) {
				o.logger.Error("batch aborted", "error", err,
					"processed", stats.Success, "errors", stats.Errors)
				return stats, err
			}
			logger.WithPost(o.logger, post.Channel, post.PostID).
				Error("post failed", "error", err)
			continue
		}
		stats.Success++
		stats.EventsExtracted += len(resolved)
		if o.metrics != nil {
			o.metrics.PostsProcessedTotal.WithLabelValues("success").Inc()
		}
	}

	o.logger.Info("batch finished",
		"total", stats.Total, "success", stats.Success,
		"errors", stats.Errors, "events", stats.EventsExtracted,
		"duration", time.Since(start))
	return stats, nil
}

