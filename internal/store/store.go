// Package store persists events, raw posts, and the processed-post ledger in
// PostgreSQL. Event documents are stored as JSONB; the ledger insert is a
// conditional write so the idempotency mark cannot be applied twice.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kazankay/eventpipe/internal/model"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/postgres"
)

// Store wraps the three collections backing the pipeline.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("store"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS raw_posts (
			channel      TEXT        NOT NULL,
			post_id      BIGINT      NOT NULL,
			text         TEXT        NOT NULL,
			photo_urls   JSONB       NOT NULL DEFAULT '[]',
			hashtags     JSONB       NOT NULL DEFAULT '[]',
			post_url     TEXT,
			message_date TIMESTAMPTZ,
			ingested_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (channel, post_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id         UUID        PRIMARY KEY,
			doc        JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS processed_posts (
			channel      TEXT        NOT NULL,
			post_id      BIGINT      NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			event_ids    JSONB       NOT NULL DEFAULT '[]',
			events_count INT         NOT NULL DEFAULT 0,
			PRIMARY KEY (channel, post_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// InsertRawPost lands a scraped post, overwriting text and metadata when the
// same post is delivered again.
func (s *Store) InsertRawPost(ctx context.Context, post model.RawPost) error {
	photoURLs, err := json.Marshal(post.PhotoURLs)
	if err != nil {
		return fmt.Errorf("marshaling photo urls: %w", err)
	}
	hashtags, err := json.Marshal(post.Hashtags)
	if err != nil {
		return fmt.Errorf("marshaling hashtags: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO raw_posts (channel, post_id, text, photo_urls, hashtags, post_url, message_date)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		 ON CONFLICT (channel, post_id) DO UPDATE SET
		   text = EXCLUDED.text,
		   photo_urls = EXCLUDED.photo_urls,
		   hashtags = EXCLUDED.hashtags,
		   post_url = EXCLUDED.post_url,
		   message_date = EXCLUDED.message_date`,
		post.Channel, post.PostID, post.Text, photoURLs, hashtags, post.PostURL, post.MessageDate,
	)
	if err != nil {
		return fmt.Errorf("inserting raw post %s/%d: %w", post.Channel, post.PostID, err)
	}
	return nil
}

// UnprocessedPosts returns posts with no ledger entry, newest first, up to
// limit (0 means no limit).
func (s *Store) UnprocessedPosts(ctx context.Context, limit int) ([]model.RawPost, error) {
	query := `
		SELECT r.channel, r.post_id, r.text, r.photo_urls, r.hashtags,
		       COALESCE(r.post_url, ''), r.message_date
		FROM raw_posts r
		LEFT JOIN processed_posts p
		  ON p.channel = r.channel AND p.post_id = r.post_id
		WHERE p.channel IS NULL
		ORDER BY r.message_date DESC NULLS LAST`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unprocessed posts: %w", err)
	}
	defer rows.Close()

	var posts []model.RawPost
	for rows.Next() {
		var (
			post      model.RawPost
			photoURLs []byte
			hashtags  []byte
			msgDate   sql.NullTime
		)
		if err := rows.Scan(&post.Channel, &post.PostID, &post.Text, &photoURLs, &hashtags, &post.PostURL, &msgDate); err != nil {
			return nil, fmt.Errorf("scanning raw post row: %w", err)
		}
		if err := json.Unmarshal(photoURLs, &post.PhotoURLs); err != nil {
			s.logger.Warn("skipping post with corrupt photo_urls", "channel", post.Channel, "post_id", post.PostID)
			continue
		}
		if err := json.Unmarshal(hashtags, &post.Hashtags); err != nil {
			s.logger.Warn("skipping post with corrupt hashtags", "channel", post.Channel, "post_id", post.PostID)
			continue
		}
		if msgDate.Valid {
			t := msgDate.Time
			post.MessageDate = &t
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// IsProcessed reports whether the ledger already marks the post done.
func (s *Store) IsProcessed(ctx context.Context, channel string, postID int64) (bool, error) {
	var one int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT 1 FROM processed_posts WHERE channel = $1 AND post_id = $2`,
		channel, postID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s/%d: %w", channel, postID, err)
	}
	return true, nil
}

// MarkProcessed writes the ledger entry with an insert-if-absent, returning
// false when another writer already marked the post.
func (s *Store) MarkProcessed(ctx context.Context, rec model.ProcessedPostRecord) (bool, error) {
	eventIDs, err := json.Marshal(rec.EventIDs)
	if err != nil {
		return false, fmt.Errorf("marshaling event ids: %w", err)
	}
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	result, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO processed_posts (channel, post_id, processed_at, event_ids, events_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (channel, post_id) DO NOTHING`,
		rec.Channel, rec.PostID, processedAt, eventIDs, len(rec.EventIDs),
	)
	if err != nil {
		return false, fmt.Errorf("marking post %s/%d processed: %w", rec.Channel, rec.PostID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading ledger write result: %w", err)
	}
	return affected == 1, nil
}

// SaveEvent inserts a new event document under the given id.
func (s *Store) SaveEvent(ctx context.Context, id string, event *model.StructuredEvent) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %q: %w", event.Title, err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO events (id, doc) VALUES ($1, $2)`,
		id, doc,
	)
	if err != nil {
		return fmt.Errorf("saving event %s: %w", id, err)
	}
	s.logger.Info("event saved", "event_id", id, "title", event.Title)
	return nil
}

// AppendEventSource adds src to a stored event's source list unless the same
// (channel, post id) is already present. Runs inside a transaction with a
// row lock so concurrent merges cannot drop a source.
func (s *Store) AppendEventSource(ctx context.Context, id string, src model.EventSource) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		var doc []byte
		err := tx.QueryRowContext(ctx,
			`SELECT doc FROM events WHERE id = $1 FOR UPDATE`, id,
		).Scan(&doc)
		if err == sql.ErrNoRows {
			return fmt.Errorf("appending source to event %s: %w", id, apperrors.ErrEventNotFound)
		}
		if err != nil {
			return fmt.Errorf("loading event %s: %w", id, err)
		}

		var event model.StructuredEvent
		if err := json.Unmarshal(doc, &event); err != nil {
			return fmt.Errorf("decoding event %s: %w", id, err)
		}
		if event.HasSource(src) {
			return nil
		}
		event.Sources = append(event.Sources, src)

		updated, err := json.Marshal(&event)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE events SET doc = $2 WHERE id = $1`, id, updated,
		); err != nil {
			return fmt.Errorf("updating event %s: %w", id, err)
		}
		s.logger.Info("source appended to event",
			"event_id", id, "channel", src.Channel, "post_id", src.PostID)
		return nil
	})
}
