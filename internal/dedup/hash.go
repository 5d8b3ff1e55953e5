package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/kazankay/eventpipe/internal/model"
)

// normalizeText lowercases, strips everything except letters, digits,
// underscores, and spaces, and collapses runs of whitespace. Cyrillic and
// other non-Latin scripts survive.
func normalizeText(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CanonicalHash derives the exact-duplicate pre-filter digest: SHA-256 over
// the pipe-joined triple of normalized title, normalized location (or
// empty), and the schedule's start day as YYYY-MM-DD (or empty).
func CanonicalHash(event *model.StructuredEvent) string {
	input := normalizeText(event.Title) + "|" +
		normalizeText(event.Location) + "|" +
		event.Schedule.StartDay()
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
