package worker

import (
	"context"

	"github.com/rs/zerolog"

	"triage_worker/core/domain"
	"triage_worker/core/service/pipeline"
)

// TriageProcessor runs classify jobs through the pipeline orchestrator.
type TriageProcessor struct {
	orchestrator *pipeline.Orchestrator
	log          zerolog.Logger
}

func NewTriageProcessor(orchestrator *pipeline.Orchestrator, log zerolog.Logger) *TriageProcessor {
	return &TriageProcessor{
		orchestrator: orchestrator,
		log:          log.With().Str("component", "triage_processor").Logger(),
	}
}

// ProcessClassify runs one conversation to a durable outcome. Errors mean no
// outcome exists (sink down, shutdown); the item stays pending.
func (p *TriageProcessor) ProcessClassify(ctx context.Context, msg *Message) error {
	outcome, err := p.orchestrator.ProcessItem(ctx, msg.ID, msg.Payload)
	if err != nil {
		p.log.Error().Err(err).
			Str("job_id", msg.ID).
			Bool("reclaimed", msg.Reclaimed).
			Msg("item left pending, no durable outcome")
		return err
	}

	if outcome.Decision == domain.DecisionPoisoned {
		p.log.Debug().Str("job_id", msg.ID).Str("stage", outcome.Poison.Stage).Msg("poison outcome recorded")
	}
	return nil
}
