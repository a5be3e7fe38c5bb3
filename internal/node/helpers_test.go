package node

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

var testEpoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	gormDB, err := db.NewDatabase(filepath.Join(t.TempDir(), "knit-test.db"))
	require.NoError(t, err)
	return db.NewStore(gormDB)
}

func newTestIdentity(t *testing.T) Identity {
	t.Helper()
	id, err := ResolveIdentity(filepath.Join(t.TempDir(), IdentityFileName))
	require.NoError(t, err)
	return id
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newMockClock() *time2.MockClock {
	return time2.NewMockClock(testEpoch)
}

// staticCollector returns the same snapshot every time.
type staticCollector struct {
	snapshot health.Snapshot
}

func (c staticCollector) Collect() health.Snapshot { return c.snapshot }

func fullSnapshot() health.Snapshot {
	i := func(v int64) *int64 { return &v }
	load := 0.42
	started := testEpoch.Add(-time.Hour)
	args := "knit-server start"
	osInfo := "linux ubuntu 24.04"
	return health.Snapshot{
		MemoryBytesTotal:     i(8 << 30),
		MemoryBytesAvailable: i(6 << 30),
		MemoryBytesUsed:      i(2 << 30),
		HeapBytesTotal:       i(64 << 20),
		HeapBytesAvailable:   i(32 << 20),
		HeapBytesUsed:        i(32 << 20),
		CPUSystemLoad:        &load,
		CPUThreadCount:       i(8),
		ProcessStartTime:     &started,
		ProcessVirtualSize:   i(1 << 30),
		ProcessArguments:     &args,
		OSInformation:        &osInfo,
	}
}

// faultyStore fails selected operations and records sweeps.
type faultyStore struct {
	*db.Store
	failMetric string
	failSweep  bool
	failList   bool
	sweeps     int
}

var errInjected = errors.New("injected failure")

func (s *faultyStore) InsertGauge(ctx context.Context, gauge *db.NodeMetricGauge) error {
	if gauge.MetricName == s.failMetric {
		return errInjected
	}
	return s.Store.InsertGauge(ctx, gauge)
}

func (s *faultyStore) DeleteGaugesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.sweeps++
	if s.failSweep {
		return 0, errInjected
	}
	return s.Store.DeleteGaugesBefore(ctx, cutoff)
}

func (s *faultyStore) NodesSeenSince(ctx context.Context, since time.Time) ([]db.NodeRecord, error) {
	if s.failList {
		return nil, errInjected
	}
	return s.Store.NodesSeenSince(ctx, since)
}

// findRecord returns the registry row for id regardless of liveness.
func findRecord(t *testing.T, store *db.Store, id Identity) db.NodeRecord {
	t.Helper()
	records, err := store.NodesSeenSince(context.Background(), time.Time{})
	require.NoError(t, err)
	for _, rec := range records {
		if rec.UUID == id.String() {
			return rec
		}
	}
	t.Fatalf("node %s is not registered", id)
	return db.NodeRecord{}
}

func countGauges(t *testing.T, store *db.Store, nodeID, metric string) int {
	t.Helper()
	gauges, err := store.GaugesSince(context.Background(), nodeID, metric, time.Time{})
	require.NoError(t, err)
	return len(gauges)
}
