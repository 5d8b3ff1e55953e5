package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kazankay/eventpipe/internal/gateway"
	"github.com/kazankay/eventpipe/internal/model"
)

const extractSystemPromptTemplate = `Ты — ассистент, извлекающий структурированную информацию о событии.

Схема JSON:
{
  "title": "название события (str) или null",
  "description": "описание (str) или null",
  "location": "место проведения (str) или null",
  "address": "адрес (str) или null",
  "schedule": {
    "type": "exact|recurring_weekly|fuzzy",
    "date_start": "ISO 8601 дата начала (для exact)",
    "schedule": {"monday": ["19:00"], "friday": ["20:00"]} (для recurring_weekly),
    "description": "текстовое описание (для fuzzy)"
  },
  "price": {
    "amount": число (int) или null,
    "currency": "RUB/USD/EUR (str)",
    "is_free": true/false
  },
  "categories": ["категория1", "категория2"],
  "user_interests": ["интерес1", "интерес2"]
}

Правила:
- Если информация не найдена — используй null или []
- Дата в ISO 8601 (например: "2025-11-23T19:00:00")
- Если указан ТОЛЬКО день и месяц без года — используй текущий год %d
- Для расписания: exact (конкретная дата), recurring_weekly (по дням недели), fuzzy (нечёткое)
- Цена: если бесплатно — is_free: true, amount: null
- categories: тип события (концерт, выставка, фестиваль, спорт, театр)
- user_interests: интересы аудитории (музыка, искусство, спорт, технологии)

Ответь ТОЛЬКО валидным JSON, без дополнительного текста.`

// extractedEvent is the wire shape of one extracted segment, exactly as the
// model emits it.
type extractedEvent struct {
	Title         *string             `json:"title"`
	Description   *string             `json:"description"`
	Location      *string             `json:"location"`
	Address       *string             `json:"address"`
	Schedule      *extractedSchedule  `json:"schedule"`
	Price         *extractedPrice     `json:"price"`
	Categories    []string            `json:"categories"`
	UserInterests []string            `json:"user_interests"`
}

type extractedSchedule struct {
	Type        string              `json:"type"`
	DateStart   *string             `json:"date_start"`
	Times       map[string][]string `json:"schedule"`
	Description string              `json:"description"`
}

type extractedPrice struct {
	Amount     *int   `json:"amount"`
	Currency   string `json:"currency"`
	IsFree     bool   `json:"is_free"`
	PriceRange string `json:"price_range"`
}

// extract runs one model call per segment, strictly sequentially. When the
// post carries photos the first one is fetched once and sent with every
// segment so the vision model sees the poster artwork; a failed fetch
// degrades to text-only extraction. A segment that fails to parse or lacks a
// title is skipped with a logged error; it never aborts the remaining
// segments.
func (p *Pipeline) extract(ctx context.Context, state *model.ExtractionState, logger *slog.Logger) error {
	state.Stage = model.StageExtract
	systemPrompt := fmt.Sprintf(extractSystemPromptTemplate, time.Now().Year())

	photo := ""
	if len(state.Images) > 0 {
		data, err := p.fetchImage(ctx, state.Images[0])
		if err != nil {
			logger.Warn("post photo unavailable, extracting from text only",
				"url", state.Images[0], "error", err)
			state.AddError("fetch photo: %v", err)
		} else {
			photo = data
		}
	}

	for idx, segment := range state.RawEvents {
		response, err := p.gw.Complete(ctx, []gateway.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Текст события:\n" + segment, ImageBase64: photo},
		}, photo != "")
		if err != nil {
			if isPostFatal(err) {
				return err
			}
			logger.Error("extract call failed, skipping segment", "segment", idx, "error", err)
			state.AddError("extract segment %d: %v", idx, err)
			continue
		}

		event, err := p.parseEvent(response, state)
		if err != nil {
			logger.Error("extract response unparseable, skipping segment", "segment", idx, "error", err)
			state.AddError("extract segment %d parse: %v", idx, err)
			p.discard("parse_error")
			continue
		}
		if event == nil {
			logger.Warn("extracted event has no title, skipping segment", "segment", idx)
			state.AddError("extract segment %d: event without title", idx)
			p.discard("no_title")
			continue
		}

		state.Events = append(state.Events, *event)
		logger.Info("event extracted", "title", event.Title)
	}
	return nil
}

// maxImageBytes caps how large a fetched post photo may be.
const maxImageBytes = 4 << 20

// fetchImage downloads one post photo and returns it base64-encoded for the
// vision model.
func (p *Pipeline) fetchImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// parseEvent converts a model response into a StructuredEvent. A nil event
// with a nil error means the result had no usable title and must be
// discarded.
func (p *Pipeline) parseEvent(response string, state *model.ExtractionState) (*model.StructuredEvent, error) {
	cleaned := stripMarkdownFence(response)

	var raw extractedEvent
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if raw.Title == nil || strings.TrimSpace(*raw.Title) == "" {
		return nil, nil
	}

	event := model.StructuredEvent{
		Title:       strings.TrimSpace(*raw.Title),
		Categories:  raw.Categories,
		Interests:   raw.UserInterests,
		ProcessedAt: time.Now().UTC(),
		Sources: []model.EventSource{{
			Channel:     state.Channel,
			PostID:      state.PostID,
			PostURL:     state.PostURL,
			MessageDate: state.MessageDate,
		}},
	}
	if raw.Description != nil {
		event.Description = strings.TrimSpace(*raw.Description)
	}
	if raw.Location != nil {
		event.Location = strings.TrimSpace(*raw.Location)
	}
	if raw.Address != nil {
		event.Address = strings.TrimSpace(*raw.Address)
	}
	event.Schedule = parseSchedule(raw.Schedule)
	if raw.Price != nil {
		event.Price = &model.PriceInfo{
			Amount:     raw.Price.Amount,
			Currency:   raw.Price.Currency,
			IsFree:     raw.Price.IsFree,
			PriceRange: raw.Price.PriceRange,
		}
	}
	event.Sanitize()
	return &event, nil
}

// parseSchedule maps the wire schedule onto the tagged union. Malformed
// variants degrade to no schedule rather than failing the whole event.
func parseSchedule(raw *extractedSchedule) *model.Schedule {
	if raw == nil {
		return nil
	}
	switch model.ScheduleKind(raw.Type) {
	case model.ScheduleExactKind:
		if raw.DateStart == nil {
			return nil
		}
		start, err := parseDate(*raw.DateStart)
		if err != nil {
			return nil
		}
		return model.NewExactSchedule(model.ScheduleExact{DateStart: start})
	case model.ScheduleRecurringKind:
		if len(raw.Times) == 0 {
			return nil
		}
		recurring := model.ScheduleRecurringWeekly{Times: raw.Times}
		if err := recurring.Validate(); err != nil {
			return nil
		}
		return model.NewRecurringSchedule(recurring)
	case model.ScheduleFuzzyKind:
		if raw.Description == "" {
			return nil
		}
		return model.NewFuzzySchedule(model.ScheduleFuzzy{Description: raw.Description})
	default:
		return nil
	}
}
