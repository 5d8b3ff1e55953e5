package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", `["a"]`, `["a"]`},
		{"json fence", "```json\n[\"a\"]\n```", `["a"]`},
		{"bare fence", "```\n[\"a\"]\n```", `["a"]`},
		{"fence with preamble", "Вот результат:\n```json\n{\"title\": \"x\"}\n```", `{"title": "x"}`},
		{"unclosed fence", "```json\n[\"a\"]", `["a"]`},
		{"surrounding whitespace", "  [\"a\"]  \n", `["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMarkdownFence(tt.input))
		})
	}
}

func TestParseSegments(t *testing.T) {
	segments, err := parseSegments(`["Концерт 15 декабря", "Выставка 20 декабря"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Концерт 15 декабря", "Выставка 20 декабря"}, segments)
}

func TestParseSegments_DropsBlanks(t *testing.T) {
	segments, err := parseSegments(`["Концерт", "", "   "]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Концерт"}, segments)
}

func TestParseSegments_Invalid(t *testing.T) {
	_, err := parseSegments("не json")
	assert.Error(t, err)

	_, err = parseSegments(`[]`)
	assert.Error(t, err)

	_, err = parseSegments(`["", "  "]`)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2025-12-15T19:00:00Z", time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-12-15T19:00:00", time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-12-15 19:00:00", time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-12-15", time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDate(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := parseDate("15 декабря")
	assert.Error(t, err)
}
