package webhook

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ratewatch/internal/domain"
)

// Sink persists a distilled Sample. Satisfied by *store.Store.
type Sink interface {
	Insert(sample domain.Sample) (domain.Sample, error)
}

// Recomputer notifies the monitor registry that a webhook source's
// value changed, so any monitor formula referencing `${webhook:id}`
// recomputes immediately rather than waiting for the periodic sweep.
// Satisfied by *monitor.Registry.
type Recomputer interface {
	RecomputeDependents(changedDependency string) ([]string, error)
}

// Processor turns a raw Distill Payload into a persisted Sample and
// triggers dependent monitor recomputation, mirroring
// MonitoringService.process_webhook's two-step flow.
type Processor struct {
	sink       Sink
	recomputer Recomputer
	log        zerolog.Logger
}

func NewProcessor(sink Sink, recomputer Recomputer, log zerolog.Logger) *Processor {
	return &Processor{sink: sink, recomputer: recomputer, log: log.With().Str("component", "webhook_processor").Logger()}
}

// Process validates, normalizes, persists and triggers recompute for
// one webhook payload. Returns the persisted Sample.
func (p *Processor) Process(payload Payload) (domain.Sample, error) {
	norm := Normalize(payload, time.Now().UTC())

	sample := domain.Sample{
		SourceID:    norm.SourceID,
		DisplayName: norm.DisplayName,
		Value:       norm.Value,
		Text:        norm.Text,
		Unit:        norm.Unit,
		Timestamp:   norm.Timestamp,
	}

	saved, err := p.sink.Insert(sample)
	if err != nil {
		return domain.Sample{}, err
	}

	recomputed, err := p.recomputer.RecomputeDependents("webhook:" + saved.SourceID)
	if err != nil {
		p.log.Error().Err(err).Str("source_id", saved.SourceID).Msg("monitor recompute after webhook failed")
	} else if len(recomputed) > 0 {
		p.log.Debug().Strs("monitor_ids", recomputed).Int("count", len(recomputed)).Msg("recomputed dependent monitors")
	}

	return saved, nil
}
