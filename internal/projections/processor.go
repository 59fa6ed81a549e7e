package projections

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/domain"
	"example.com/northstar/services/custops/internal/eventstore"
	"example.com/northstar/services/custops/internal/metrics"
)

// Projector consumes the global event stream and maintains one set of
// derived tables. Handle must be idempotent: the processor delivers
// at-least-once and re-delivers everything past the checkpoint after a
// crash.
type Projector interface {
	Name() string
	Handle(ctx context.Context, ev domain.Event) error
}

// Processor tails the event ledger and drives each registered projector
// from its own checkpoint. Projectors run independently: one stalling on
// a bad event never holds the others back.
type Processor struct {
	store       eventstore.EventStore
	checkpoints *CheckpointStore
	projectors  []Projector
	cfg         config.ProjectorConfig
	metrics     *metrics.Metrics
}

// NewProcessor creates a new projection processor
func NewProcessor(store eventstore.EventStore, checkpoints *CheckpointStore, cfg config.ProjectorConfig, m *metrics.Metrics, projectors ...Projector) *Processor {
	return &Processor{
		store:       store,
		checkpoints: checkpoints,
		projectors:  projectors,
		cfg:         cfg,
		metrics:     m,
	}
}

// Run drives all projectors until the context is cancelled
func (p *Processor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, projector := range p.projectors {
		projector := projector
		g.Go(func() error {
			return p.runProjector(ctx, projector)
		})
	}

	return g.Wait()
}

func (p *Processor) runProjector(ctx context.Context, projector Projector) error {
	log.Info().Str("projector", projector.Name()).Msg("Projector started")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("projector", projector.Name()).Msg("Projector stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := p.processBatch(ctx, projector)
				if err != nil {
					log.Error().Err(err).
						Str("projector", projector.Name()).
						Msg("Failed to process event batch")
					break
				}
				// Drain the backlog before going back to sleep
				if n < p.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// processBatch applies one batch of events past the projector's
// checkpoint. The checkpoint advances only past events that were handled
// successfully, so a failure leaves the stream positioned for retry.
func (p *Processor) processBatch(ctx context.Context, projector Projector) (int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	checkpoint, err := p.checkpoints.Load(batchCtx, projector.Name())
	if err != nil {
		return 0, err
	}

	events, err := p.store.ReadSince(batchCtx, checkpoint, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	processed := checkpoint
	for _, ev := range events {
		if err := projector.Handle(batchCtx, ev); err != nil {
			if saveErr := p.checkpoints.Save(batchCtx, projector.Name(), processed); saveErr != nil {
				log.Error().Err(saveErr).
					Str("projector", projector.Name()).
					Msg("Failed to save checkpoint after handler error")
			}
			return 0, err
		}
		processed = ev.GlobalSeq
	}

	if err := p.checkpoints.Save(batchCtx, projector.Name(), processed); err != nil {
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.IncrementCounterBy("projector."+projector.Name()+".events", int64(len(events)))
	}

	return len(events), nil
}
