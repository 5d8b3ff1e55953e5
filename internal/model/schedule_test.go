package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_ExactRoundTrip(t *testing.T) {
	end := time.Date(2025, 12, 15, 23, 0, 0, 0, time.UTC)
	original := NewExactSchedule(ScheduleExact{
		DateStart: time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC),
		DateEnd:   &end,
		Timezone:  "Europe/Moscow",
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"exact"`)

	var restored Schedule
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, *original, restored)
}

func TestSchedule_RecurringRoundTrip(t *testing.T) {
	original := NewRecurringSchedule(ScheduleRecurringWeekly{
		Times: map[string][]string{
			"monday": {"19:00"},
			"friday": {"20:00", "22:00"},
		},
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"recurring_weekly"`)

	var restored Schedule
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, *original, restored)
}

func TestSchedule_FuzzyRoundTrip(t *testing.T) {
	approx := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	original := NewFuzzySchedule(ScheduleFuzzy{
		Description:      "каждые выходные в декабре",
		ApproximateStart: &approx,
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Schedule
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, *original, restored)
}

func TestSchedule_UnmarshalRejectsBadWeekday(t *testing.T) {
	var s Schedule
	err := json.Unmarshal([]byte(`{"type": "recurring_weekly", "schedule": {"someday": ["19:00"]}}`), &s)
	assert.Error(t, err)
}

func TestSchedule_UnmarshalRejectsUnknownType(t *testing.T) {
	var s Schedule
	err := json.Unmarshal([]byte(`{"type": "lunar"}`), &s)
	assert.Error(t, err)
}

func TestSchedule_ExactRequiresDateStart(t *testing.T) {
	var s Schedule
	err := json.Unmarshal([]byte(`{"type": "exact"}`), &s)
	assert.Error(t, err)
}

func TestSchedule_StartDay(t *testing.T) {
	from := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	approx := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule *Schedule
		want     string
	}{
		{"nil schedule", nil, ""},
		{"exact", NewExactSchedule(ScheduleExact{DateStart: time.Date(2025, 12, 15, 19, 0, 0, 0, time.UTC)}), "2025-12-15"},
		{"recurring with window", NewRecurringSchedule(ScheduleRecurringWeekly{
			Times:     map[string][]string{"monday": {"19:00"}},
			ValidFrom: &from,
		}), "2025-11-01"},
		{"recurring without window", NewRecurringSchedule(ScheduleRecurringWeekly{
			Times: map[string][]string{"monday": {"19:00"}},
		}), ""},
		{"fuzzy with approximate start", NewFuzzySchedule(ScheduleFuzzy{
			Description:      "в декабре",
			ApproximateStart: &approx,
		}), "2025-12-20"},
		{"fuzzy without date", NewFuzzySchedule(ScheduleFuzzy{Description: "скоро"}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schedule.StartDay())
		})
	}
}

func TestScheduleRecurringWeekly_Validate(t *testing.T) {
	ok := ScheduleRecurringWeekly{Times: map[string][]string{"monday": {"19:00"}, "sunday": {"12:00"}}}
	assert.NoError(t, ok.Validate())

	bad := ScheduleRecurringWeekly{Times: map[string][]string{"funday": {"19:00"}}}
	assert.Error(t, bad.Validate())
}
