package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazankay/eventpipe/internal/gateway"
	"github.com/kazankay/eventpipe/internal/model"
)

const splitSystemPrompt = `Ты — ассистент, разделяющий посты на отдельные события.

Твоя задача:
1. Определить, сколько ОТДЕЛЬНЫХ событий упоминается в посте
2. Разделить текст на части, каждая из которых описывает одно событие
3. Вернуть JSON список текстов событий

Правила:
- Если пост описывает ОДНО событие — верни массив с одним элементом
- Если несколько событий (например, афиша на неделю) — разделяй
- Каждый элемент должен содержать полное описание события
- Сохраняй важную информацию: дата, место, цена, описание

Ответь ТОЛЬКО валидным JSON массивом строк, без дополнительного текста.
Формат: ["событие 1", "событие 2", ...]`

// split asks the model to divide the post into per-event text segments.
// Whatever goes wrong short of a post-fatal gateway failure, the post itself
// is never dropped: the whole raw text becomes the single segment.
func (p *Pipeline) split(ctx context.Context, state *model.ExtractionState, logger *slog.Logger) error {
	state.Stage = model.StageSplit

	hashtags := "нет"
	if len(state.Hashtags) > 0 {
		hashtags = strings.Join(state.Hashtags, ", ")
	}
	userPrompt := fmt.Sprintf("Текст поста:\n%s\n\nХештеги: %s", state.RawText, hashtags)

	response, err := p.gw.Complete(ctx, []gateway.Message{
		{Role: "system", Content: splitSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, false)
	if err != nil {
		if isPostFatal(err) {
			return err
		}
		logger.Error("split call failed, falling back to whole post", "error", err)
		state.AddError("split: %v", err)
		state.RawEvents = []string{state.RawText}
		return nil
	}

	segments, err := parseSegments(response)
	if err != nil {
		logger.Error("split response unparseable, falling back to whole post", "error", err)
		state.AddError("split parse: %v", err)
		state.RawEvents = []string{state.RawText}
		return nil
	}

	state.RawEvents = segments
	logger.Info("post split into segments", "count", len(segments))
	return nil
}
