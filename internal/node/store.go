package node

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/knitu/internal/db"
)

// Store is the subset of the shared registry the node subsystem consumes.
// *db.Store implements it.
type Store interface {
	UpsertNode(ctx context.Context, record *db.NodeRecord) error
	NodesSeenSince(ctx context.Context, since time.Time) ([]db.NodeRecord, error)
	InsertGauge(ctx context.Context, gauge *db.NodeMetricGauge) error
	DeleteGaugesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GaugesSince(ctx context.Context, nodeID, metricName string, since time.Time) ([]db.NodeMetricGauge, error)
}

// Clock supplies the current time. time2.DefaultClock and time2.MockClock satisfy it.
type Clock interface {
	Now() time.Time
}

const (
	// LivenessWindow is how recently a node must have registered to count as active.
	LivenessWindow = 24 * time.Hour
	// GaugeRetention is how long gauge samples are kept.
	GaugeRetention = 24 * time.Hour
)
