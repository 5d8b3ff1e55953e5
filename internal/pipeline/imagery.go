package pipeline

import (
	"context"
	"log/slog"

	"github.com/kazankay/eventpipe/internal/model"
)

// attachImagery copies the post's own images onto every produced event. When
// the post carried none, a poster is generated per event if a generator is
// configured. A missing image is never an error.
func (p *Pipeline) attachImagery(ctx context.Context, state *model.ExtractionState, logger *slog.Logger) {
	state.Stage = model.StageImagery

	if len(state.Images) > 0 {
		for i := range state.Events {
			state.Events[i].Images = append([]string(nil), state.Images...)
		}
		logger.Info("post images attached to events",
			"images", len(state.Images), "events", len(state.Events))
		return
	}

	if p.posters == nil {
		return
	}

	for i := range state.Events {
		event := &state.Events[i]
		ref, err := p.posters.GeneratePoster(ctx, event.Title, event.Description)
		if err != nil {
			logger.Error("poster generation failed", "title", event.Title, "error", err)
			state.AddError("poster for %q: %v", event.Title, err)
			continue
		}
		if ref == "" {
			logger.Warn("no poster produced", "title", event.Title)
			continue
		}
		event.Images = []string{ref}
		event.PosterGenerated = true
		logger.Info("poster attached", "title", event.Title, "ref", ref)
	}
}
