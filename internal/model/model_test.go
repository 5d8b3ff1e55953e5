package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawPost_Validate(t *testing.T) {
	valid := RawPost{Channel: "kazankay", PostID: 42, Text: "Концерт"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, RawPost{PostID: 42, Text: "x"}.Validate())
	assert.Error(t, RawPost{Channel: "c", Text: "x"}.Validate())
	assert.Error(t, RawPost{Channel: "c", PostID: -1, Text: "x"}.Validate())
	assert.Error(t, RawPost{Channel: "c", PostID: 1, Text: "   "}.Validate())
}

func TestEventSource_Same(t *testing.T) {
	a := EventSource{Channel: "c", PostID: 5, PostURL: "https://t.me/c/5"}
	b := EventSource{Channel: "c", PostID: 5}
	c := EventSource{Channel: "c", PostID: 6}

	assert.True(t, a.Same(b), "identity is (channel, post id) only")
	assert.False(t, a.Same(c))
}

func TestStructuredEvent_Sanitize(t *testing.T) {
	event := StructuredEvent{
		Categories: []string{" концерт ", "", "театр"},
		Interests:  []string{"  ", "музыка"},
	}
	event.Sanitize()

	assert.Equal(t, []string{"концерт", "театр"}, event.Categories)
	assert.Equal(t, []string{"музыка"}, event.Interests)
}

func TestStructuredEvent_EmbeddingText(t *testing.T) {
	full := StructuredEvent{Title: "Концерт", Description: "Большой концерт", Location: "Филармония"}
	assert.Equal(t, "Концерт Большой концерт Филармония", full.EmbeddingText())

	bare := StructuredEvent{Title: "Концерт"}
	assert.Equal(t, "Концерт", bare.EmbeddingText())
}

func TestStructuredEvent_HasSource(t *testing.T) {
	event := StructuredEvent{Sources: []EventSource{{Channel: "c", PostID: 5}}}

	assert.True(t, event.HasSource(EventSource{Channel: "c", PostID: 5}))
	assert.False(t, event.HasSource(EventSource{Channel: "c", PostID: 6}))
	assert.False(t, event.HasSource(EventSource{Channel: "d", PostID: 5}))
}
