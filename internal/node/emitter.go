package node

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

// DefaultEmitInterval is the period between gauge emission cycles.
const DefaultEmitInterval = time.Minute

var nodeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "knit",
	Subsystem: "node",
	Name:      "gauge",
	Help:      "Latest health gauges of the local node.",
}, []string{"metric"})

// Emitter periodically writes the local node's health gauges and sweeps
// expired samples.
type Emitter struct {
	identity  Identity
	store     Store
	collector health.Collector
	clock     Clock
	interval  time.Duration
	stopCh    chan struct{}
}

// NewEmitter creates an emitter. A non-positive interval falls back to DefaultEmitInterval.
func NewEmitter(identity Identity, store Store, collector health.Collector, clock Clock, interval time.Duration) (*Emitter, error) {
	if identity.IsZero() {
		return nil, ErrNotInitialized
	}
	if interval <= 0 {
		interval = DefaultEmitInterval
	}
	return &Emitter{
		identity:  identity,
		store:     store,
		collector: collector,
		clock:     clock,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs an emission cycle every interval until Stop is called or ctx ends.
// The first cycle runs one interval after Start.
func (e *Emitter) Start(ctx context.Context) {
	log.Info().Dur("interval", e.interval).Msg("Starting node metrics emitter")
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.safeEmit(ctx)
			case <-ctx.Done():
				return
			case <-e.stopCh:
				log.Info().Msg("Stopping node metrics emitter")
				return
			}
		}
	}()
}

// Stop halts the emitter loop. It must be called at most once.
func (e *Emitter) Stop() {
	close(e.stopCh)
}

func (e *Emitter) safeEmit(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Node metrics cycle panicked")
		}
	}()
	e.Emit(ctx)
}

// Emit runs one cycle: write every readable gauge, then delete samples older
// than the retention window. Neither step aborts the other.
func (e *Emitter) Emit(ctx context.Context) {
	step("write gauges", func() { e.writeGauges(ctx) })
	step("retention sweep", func() { e.sweep(ctx) })
}

// step runs fn, logging a panic instead of letting it reach the next step.
func step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("step", name).Msg("Node metrics step panicked")
		}
	}()
	fn()
}

func (e *Emitter) writeGauges(ctx context.Context) {
	s := e.collector.Collect()
	now := e.clock.Now().UTC()
	written := 0

	for _, g := range s.Gauges() {
		if g.Value == nil {
			log.Warn().Str("metric", g.Name).Msg("Node metric unavailable, not writing gauge")
			continue
		}
		err := e.store.InsertGauge(ctx, &db.NodeMetricGauge{
			NodeID:      e.identity.String(),
			MetricName:  g.Name,
			MetricValue: *g.Value,
			CreatedAt:   now,
		})
		if err != nil {
			log.Error().Err(storeError(err, "write gauge")).Str("metric", g.Name).Msg("Could not write node metric")
			continue
		}
		nodeGauge.WithLabelValues(g.Name).Set(*g.Value)
		written++
	}
	log.Debug().Int("written", written).Msg("Node metrics written")
}

func (e *Emitter) sweep(ctx context.Context) {
	cutoff := e.clock.Now().UTC().Add(-GaugeRetention)
	deleted, err := e.store.DeleteGaugesBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(storeError(err, "retention sweep")).Msg("Could not clean old node metrics")
		return
	}
	if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("Retention cleaned old node metrics")
	}
}
