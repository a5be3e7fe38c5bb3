package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is how often the local node re-registers itself.
const DefaultInterval = time.Minute

// Registrar is the registration operation the service drives. *node.Registrar implements it.
type Registrar interface {
	RegisterSelf(ctx context.Context) error
}

// Service keeps the local node discoverable by refreshing its registry record
// on a fixed interval.
type Service struct {
	registrar Registrar
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewService creates a new discovery service.
func NewService(registrar Registrar, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		registrar: registrar,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start registers immediately and then on every tick until Stop is called or ctx ends.
func (s *Service) Start(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Starting node discovery service")
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Register immediately on start
		s.register(ctx)

		for {
			select {
			case <-ticker.C:
				s.register(ctx)
			case <-ctx.Done():
				return
			case <-s.stopCh:
				log.Info().Msg("Stopping node discovery service")
				return
			}
		}
	}()
}

// Stop halts the discovery service and waits for an in-flight registration to finish.
func (s *Service) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Service) register(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Node registration panicked")
		}
	}()
	if err := s.registrar.RegisterSelf(ctx); err != nil {
		// Retried on the next tick.
		log.Error().Err(err).Msg("Failed to register local node")
		return
	}
	log.Debug().Msg("Local node registration refreshed")
}
