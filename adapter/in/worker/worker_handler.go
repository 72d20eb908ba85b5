package worker

import (
	"context"

	"github.com/rs/zerolog"
)

// Handler routes messages to their processor by job type.
type Handler struct {
	triage *TriageProcessor
	log    zerolog.Logger
}

func NewHandler(triage *TriageProcessor, log zerolog.Logger) *Handler {
	return &Handler{
		triage: triage,
		log:    log.With().Str("component", "handler").Logger(),
	}
}

// Process handles one message. A nil return means the item reached a durable
// outcome and must be acked; an error leaves it pending for redelivery.
func (h *Handler) Process(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case JobClassify:
		return h.triage.ProcessClassify(ctx, msg)
	default:
		// Unknown types are acked and dropped; redelivering them forever
		// helps nobody.
		h.log.Warn().Str("job_id", msg.ID).Str("job_type", msg.Type).Msg("unknown job type")
		return nil
	}
}
