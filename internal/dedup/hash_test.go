package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kazankay/eventpipe/internal/model"
)

func exactEvent(title, location string, start time.Time) *model.StructuredEvent {
	return &model.StructuredEvent{
		Title:    title,
		Location: location,
		Schedule: model.NewExactSchedule(model.ScheduleExact{DateStart: start}),
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "Rock: live!!! (tonight)", "rock live tonight"},
		{"keeps cyrillic", "Концерт в Филармонии!!!", "концерт в филармонии"},
		{"keeps digits and underscore", "hall_3 opens 19:00", "hall_3 opens 1900"},
		{"collapses whitespace", "  a \t b\n\nc  ", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.input))
		})
	}
}

func TestCanonicalHash_CaseAndPunctuationInvariant(t *testing.T) {
	day := time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)

	a := CanonicalHash(exactEvent("Концерт в Филармонии!!!", "Филармония", day))
	b := CanonicalHash(exactEvent("концерт в филармонии", "филармония", day))
	assert.Equal(t, a, b)
}

func TestCanonicalHash_ChangesWithStartDay(t *testing.T) {
	day := time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)

	a := CanonicalHash(exactEvent("Концерт", "Филармония", day))
	b := CanonicalHash(exactEvent("Концерт", "Филармония", day.AddDate(0, 0, 1)))
	assert.NotEqual(t, a, b)
}

func TestCanonicalHash_TimeOfDayIrrelevant(t *testing.T) {
	a := CanonicalHash(exactEvent("Концерт", "Филармония", time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)))
	b := CanonicalHash(exactEvent("Концерт", "Филармония", time.Date(2025, 12, 15, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, a, b)
}

func TestCanonicalHash_IgnoresPrice(t *testing.T) {
	day := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
	amount := 500

	withPrice := exactEvent("Концерт", "Филармония", day)
	withPrice.Price = &model.PriceInfo{Amount: &amount, Currency: "RUB"}
	free := exactEvent("Концерт", "Филармония", day)
	free.Price = &model.PriceInfo{IsFree: true}

	assert.Equal(t, CanonicalHash(withPrice), CanonicalHash(free))
}

func TestCanonicalHash_NoSchedule(t *testing.T) {
	event := &model.StructuredEvent{Title: "Выставка", Location: "Музей"}
	other := &model.StructuredEvent{Title: "Выставка", Location: "Музей"}
	assert.Equal(t, CanonicalHash(event), CanonicalHash(other))
}
