package node

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

// ActiveNode is a registry record of a node seen within the liveness window.
type ActiveNode struct {
	ID              uuid.UUID
	Name            string
	HTTPExternalURI *url.URL
	Version         string
	LastSeen        time.Time
	CreatedAt       time.Time
	Health          health.Snapshot
}

// Liveness answers which nodes are currently online. It keeps no state: every
// call reads the registry again.
type Liveness struct {
	store  Store
	clock  Clock
	window time.Duration
}

func NewLiveness(store Store, clock Clock) *Liveness {
	return &Liveness{store: store, clock: clock, window: LivenessWindow}
}

// ActiveNodes returns nodes whose last_seen is within the liveness window,
// ordered by name descending. Unreadable records are skipped and store
// failures yield an empty result.
func (l *Liveness) ActiveNodes(ctx context.Context) []ActiveNode {
	cutoff := l.clock.Now().UTC().Add(-l.window)

	records, err := l.store.NodesSeenSince(ctx, cutoff)
	if err != nil {
		log.Error().Err(storeError(err, "list active nodes")).Msg("Could not read node registry")
		return []ActiveNode{}
	}

	nodes := make([]ActiveNode, 0, len(records))
	for _, rec := range records {
		n, err := toActiveNode(rec)
		if err != nil {
			log.Error().Err(err).Str("node_id", rec.UUID).Msg("Could not create node from database entry. Skipping.")
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func toActiveNode(rec db.NodeRecord) (ActiveNode, error) {
	id, err := uuid.Parse(rec.UUID)
	if err != nil {
		return ActiveNode{}, errors.Wrap(err, "invalid node uuid")
	}
	uri, err := url.Parse(rec.HTTPExternalURI)
	if err != nil {
		return ActiveNode{}, errors.Wrap(err, "invalid http external uri")
	}
	if uri.Scheme == "" || uri.Host == "" {
		return ActiveNode{}, errors.Errorf("http external uri %q is not absolute", rec.HTTPExternalURI)
	}

	return ActiveNode{
		ID:              id,
		Name:            rec.Name,
		HTTPExternalURI: uri,
		Version:         rec.Version,
		LastSeen:        rec.LastSeen,
		CreatedAt:       rec.CreatedAt,
		Health: health.Snapshot{
			MemoryBytesTotal:     rec.MemoryBytesTotal,
			MemoryBytesAvailable: rec.MemoryBytesAvailable,
			MemoryBytesUsed:      rec.MemoryBytesUsed,
			HeapBytesTotal:       rec.HeapBytesTotal,
			HeapBytesAvailable:   rec.HeapBytesAvailable,
			HeapBytesUsed:        rec.HeapBytesUsed,
			CPUSystemLoad:        rec.CPUSystemLoad,
			CPUThreadCount:       rec.CPUThreadCount,
			ProcessStartTime:     rec.ProcessStartTime,
			ProcessVirtualSize:   rec.ProcessVirtualSize,
			ProcessArguments:     rec.ProcessArguments,
			OSInformation:        rec.OSInformation,
		},
	}, nil
}

// GaugeHistory returns the retained samples of one metric for one node, oldest first.
func (l *Liveness) GaugeHistory(ctx context.Context, nodeID uuid.UUID, metricName string) ([]db.NodeMetricGauge, error) {
	since := l.clock.Now().UTC().Add(-GaugeRetention)
	gauges, err := l.store.GaugesSince(ctx, nodeID.String(), metricName, since)
	if err != nil {
		return nil, storeError(err, "read gauge history")
	}
	return gauges, nil
}
