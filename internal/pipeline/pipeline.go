// Package pipeline turns one raw post into zero or more structured events
// through a fixed three-stage sequence: split the post into per-event
// segments, extract structured data from each segment, then attach imagery.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kazankay/eventpipe/internal/gateway"
	"github.com/kazankay/eventpipe/internal/model"
	apperrors "github.com/kazankay/eventpipe/pkg/errors"
	"github.com/kazankay/eventpipe/pkg/logger"
	"github.com/kazankay/eventpipe/pkg/metrics"
)

// Completer is the model-gateway surface the pipeline calls.
type Completer interface {
	Complete(ctx context.Context, messages []gateway.Message, wantVision bool) (string, error)
}

// PosterGenerator produces a poster image for an event that has none.
// An empty ref with a nil error means no poster is available.
type PosterGenerator interface {
	GeneratePoster(ctx context.Context, title, description string) (string, error)
}

// Pipeline runs the fixed extraction sequence. Stages run strictly in order
// and segments strictly sequentially, to respect per-credential rate limits.
type Pipeline struct {
	gw      Completer
	posters PosterGenerator
	httpc   *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Pipeline. posters may be nil to disable poster generation;
// m may be nil in tests.
func New(gw Completer, posters PosterGenerator, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		gw:      gw,
		posters: posters,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		metrics: m,
		logger:  logger.WithComponent("extraction-pipeline"),
	}
}

// Run processes one post through all three stages and returns the produced
// events plus the accumulated per-stage error log. An empty event list is a
// valid outcome. The returned error is non-nil only for failures that must
// abort the post entirely (quota exhaustion, rejected credentials).
func (p *Pipeline) Run(ctx context.Context, post model.RawPost) ([]model.StructuredEvent, []string, error) {
	state := model.NewExtractionState(post)
	logger := p.logger.With("channel", post.Channel, "post_id", post.PostID)

	if err := p.split(ctx, state, logger); err != nil {
		return nil, state.Errors, err
	}
	if err := p.extract(ctx, state, logger); err != nil {
		return nil, state.Errors, err
	}
	p.attachImagery(ctx, state, logger)

	logger.Info("extraction finished",
		"segments", len(state.RawEvents),
		"events", len(state.Events),
		"errors", len(state.Errors),
	)
	if p.metrics != nil {
		p.metrics.EventsExtractedTotal.Add(float64(len(state.Events)))
	}
	return state.Events, state.Errors, nil
}

// isPostFatal reports whether a gateway error must abort the whole post
// rather than degrade the current stage.
func isPostFatal(err error) bool {
	return errors.Is(err, apperrors.ErrQuotaExhausted) || errors.Is(err, apperrors.ErrAuth)
}

func (p *Pipeline) discard(reason string) {
	if p.metrics != nil {
		p.metrics.EventsDiscardedTotal.WithLabelValues(reason).Inc()
	}
}
