// Package model defines the data types flowing through the extraction
// pipeline: raw posts, structured events, schedules, sources, and the
// idempotency ledger record.
package model

import (
	"fmt"
	"strings"
	"time"
)

// RawPost is an immutable input post scraped from a source channel.
// Its identity key is (Channel, PostID).
type RawPost struct {
	Channel     string     `json:"channel"`
	PostID      int64      `json:"post_id"`
	Text        string     `json:"text"`
	PhotoURLs   []string   `json:"photo_urls,omitempty"`
	Hashtags    []string   `json:"hashtags,omitempty"`
	PostURL     string     `json:"post_url,omitempty"`
	MessageDate *time.Time `json:"message_date,omitempty"`
}

// Validate checks the fields required to identify and process a post.
func (p RawPost) Validate() error {
	if p.Channel == "" {
		return fmt.Errorf("raw post missing channel")
	}
	if p.PostID <= 0 {
		return fmt.Errorf("raw post missing post id")
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("raw post %s/%d has empty text", p.Channel, p.PostID)
	}
	return nil
}

// Source returns the EventSource entry describing this post.
func (p RawPost) Source() EventSource {
	return EventSource{
		Channel:     p.Channel,
		PostID:      p.PostID,
		PostURL:     p.PostURL,
		MessageDate: p.MessageDate,
	}
}

// EventSource identifies one originating post of an event. Uniqueness
// within an event is (Channel, PostID).
type EventSource struct {
	Channel     string     `json:"channel"`
	PostID      int64      `json:"post_id"`
	PostURL     string     `json:"post_url,omitempty"`
	MessageDate *time.Time `json:"message_date,omitempty"`
}

// Same reports whether two sources refer to the same post.
func (s EventSource) Same(other EventSource) bool {
	return s.Channel == other.Channel && s.PostID == other.PostID
}

// PriceInfo describes an event's admission price.
type PriceInfo struct {
	Amount     *int   `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	IsFree     bool   `json:"is_free"`
	PriceRange string `json:"price_range,omitempty"`
}

// StructuredEvent is the pipeline's output unit. A persisted event always
// has a non-empty Title and at least one entry in Sources. ID is assigned
// at persistence time and addresses both the store row and the index point.
type StructuredEvent struct {
	ID              string        `json:"id,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Location        string        `json:"location,omitempty"`
	Address         string        `json:"address,omitempty"`
	Schedule        *Schedule     `json:"schedule,omitempty"`
	Price           *PriceInfo    `json:"price,omitempty"`
	Categories      []string      `json:"categories"`
	Interests       []string      `json:"user_interests"`
	Images          []string      `json:"images,omitempty"`
	PosterGenerated bool          `json:"poster_generated"`
	Sources         []EventSource `json:"sources"`
	CanonicalHash   string        `json:"canonical_hash,omitempty"`
	ProcessedAt     time.Time     `json:"processed_at"`
}

// Sanitize drops blank entries from the tag lists, preserving order.
func (e *StructuredEvent) Sanitize() {
	e.Categories = cleanList(e.Categories)
	e.Interests = cleanList(e.Interests)
}

// EmbeddingText is the text the event is embedded under for similarity
// search: title, description, and location joined with spaces.
func (e *StructuredEvent) EmbeddingText() string {
	parts := []string{e.Title}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Location != "" {
		parts = append(parts, e.Location)
	}
	return strings.Join(parts, " ")
}

// HasSource reports whether the event already lists the given source post.
func (e *StructuredEvent) HasSource(src EventSource) bool {
	for _, s := range e.Sources {
		if s.Same(src) {
			return true
		}
	}
	return false
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// ProcessedPostRecord is the ledger entry marking one post as fully
// processed. It is written exactly once per (Channel, PostID).
type ProcessedPostRecord struct {
	Channel     string    `json:"channel"`
	PostID      int64     `json:"post_id"`
	ProcessedAt time.Time `json:"processed_at"`
	EventIDs    []string  `json:"event_ids"`
	EventsCount int       `json:"events_count"`
}

// BatchStats summarises one batch run.
type BatchStats struct {
	Total           int `json:"total"`
	Success         int `json:"success"`
	Errors          int `json:"errors"`
	EventsExtracted int `json:"events_extracted"`
}

// Stage names one step of the fixed extraction pipeline.
type Stage string

const (
	StageInit    Stage = "init"
	StageSplit   Stage = "split"
	StageExtract Stage = "extract"
	StageImagery Stage = "imagery"
)

// ExtractionState is the mutable working record threaded through the
// pipeline stages for one post. It lives for exactly one pipeline run and
// is never persisted.
type ExtractionState struct {
	RawText     string
	Images      []string
	Hashtags    []string
	MessageDate *time.Time
	Channel     string
	PostID      int64
	PostURL     string

	RawEvents []string
	Events    []StructuredEvent
	Errors    []string
	Stage     Stage
}

// NewExtractionState initialises the working state for one post.
func NewExtractionState(post RawPost) *ExtractionState {
	return &ExtractionState{
		RawText:     post.Text,
		Images:      post.PhotoURLs,
		Hashtags:    post.Hashtags,
		MessageDate: post.MessageDate,
		Channel:     post.Channel,
		PostID:      post.PostID,
		PostURL:     post.PostURL,
		Stage:       StageInit,
	}
}

// AddError appends a stage error to the state's error log.
func (s *ExtractionState) AddError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}
