package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// stripMarkdownFence extracts the payload from a ```json ... ``` (or bare
// ```) fenced block; responses without a fence pass through unchanged.
func stripMarkdownFence(response string) string {
	if idx := strings.Index(response, "```json"); idx >= 0 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(response, "```"); idx >= 0 {
		rest := response[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(response)
}

// parseSegments decodes the split stage's response into a non-empty list of
// segment texts.
func parseSegments(response string) ([]string, error) {
	cleaned := stripMarkdownFence(response)

	var raw []string
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON array of strings: %w", err)
	}

	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		if strings.TrimSpace(segment) != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("response contained no segments")
	}
	return segments, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts the date shapes models actually emit.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date format: %q", value)
}
