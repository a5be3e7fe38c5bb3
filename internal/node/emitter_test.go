package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

var allMetrics = []string{
	health.MetricMemoryBytesTotal,
	health.MetricMemoryBytesAvailable,
	health.MetricMemoryBytesUsed,
	health.MetricHeapBytesTotal,
	health.MetricHeapBytesAvailable,
	health.MetricHeapBytesUsed,
	health.MetricCPUSystemLoad,
	health.MetricProcessVirtualSize,
}

func TestEmitWritesAllGauges(t *testing.T) {
	store := newTestStore(t)
	identity := newTestIdentity(t)

	e, err := NewEmitter(identity, store, staticCollector{snapshot: fullSnapshot()}, newMockClock(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultEmitInterval, e.interval)

	e.Emit(context.Background())

	for _, m := range allMetrics {
		assert.Equal(t, 1, countGauges(t, store, identity.String(), m), m)
	}
}

func TestEmitSkipsUnreadableMetricAndStillSweeps(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	store := &faultyStore{Store: base}
	identity := newTestIdentity(t)
	clock := newMockClock()

	require.NoError(t, base.InsertGauge(ctx, &db.NodeMetricGauge{
		NodeID: "other-node", MetricName: health.MetricHeapBytesUsed, MetricValue: 1,
		CreatedAt: clock.Now().Add(-25 * time.Hour),
	}))

	snap := fullSnapshot()
	snap.CPUSystemLoad = nil

	e, err := NewEmitter(identity, store, staticCollector{snapshot: snap}, clock, time.Minute)
	require.NoError(t, err)
	e.Emit(ctx)

	for _, m := range allMetrics {
		want := 1
		if m == health.MetricCPUSystemLoad {
			want = 0
		}
		assert.Equal(t, want, countGauges(t, base, identity.String(), m), m)
	}
	assert.Equal(t, 1, store.sweeps)
	assert.Equal(t, 0, countGauges(t, base, "other-node", health.MetricHeapBytesUsed))
}

func TestEmitIsolatesFailedGaugeWrite(t *testing.T) {
	base := newTestStore(t)
	store := &faultyStore{Store: base, failMetric: health.MetricHeapBytesTotal}
	identity := newTestIdentity(t)

	e, err := NewEmitter(identity, store, staticCollector{snapshot: fullSnapshot()}, newMockClock(), time.Minute)
	require.NoError(t, err)
	e.Emit(context.Background())

	for _, m := range allMetrics {
		want := 1
		if m == health.MetricHeapBytesTotal {
			want = 0
		}
		assert.Equal(t, want, countGauges(t, base, identity.String(), m), m)
	}
	assert.Equal(t, 1, store.sweeps)
}

func TestEmitSurvivesSweepFailure(t *testing.T) {
	base := newTestStore(t)
	store := &faultyStore{Store: base, failSweep: true}
	identity := newTestIdentity(t)

	e, err := NewEmitter(identity, store, staticCollector{snapshot: fullSnapshot()}, newMockClock(), time.Minute)
	require.NoError(t, err)

	assert.NotPanics(t, func() { e.Emit(context.Background()) })
	assert.Equal(t, 1, countGauges(t, base, identity.String(), health.MetricMemoryBytesUsed))
}

func TestRetentionSweepBoundary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := newTestIdentity(t)
	clock := newMockClock()
	now := clock.Now()

	for _, age := range []time.Duration{24*time.Hour + time.Minute, 23*time.Hour + 59*time.Minute} {
		require.NoError(t, store.InsertGauge(ctx, &db.NodeMetricGauge{
			NodeID: identity.String(), MetricName: "retention_marker", MetricValue: age.Minutes(), CreatedAt: now.Add(-age),
		}))
	}

	e, err := NewEmitter(identity, store, staticCollector{}, clock, time.Minute)
	require.NoError(t, err)
	e.Emit(ctx)

	gauges, err := store.GaugesSince(ctx, identity.String(), "retention_marker", time.Time{})
	require.NoError(t, err)
	require.Len(t, gauges, 1)
	assert.Equal(t, (23*time.Hour + 59*time.Minute).Minutes(), gauges[0].MetricValue)
}

type panickingCollector struct{}

func (panickingCollector) Collect() health.Snapshot { panic("sensor exploded") }

func TestEmitterLoopSurvivesPanickingCycle(t *testing.T) {
	identity := newTestIdentity(t)
	e, err := NewEmitter(identity, newTestStore(t), panickingCollector{}, newMockClock(), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.NotPanics(t, e.Stop)
}

func TestEmitSweepsWhenCollectionPanics(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	store := &faultyStore{Store: base}
	identity := newTestIdentity(t)
	clock := newMockClock()

	require.NoError(t, base.InsertGauge(ctx, &db.NodeMetricGauge{
		NodeID: identity.String(), MetricName: health.MetricHeapBytesUsed, MetricValue: 1, CreatedAt: clock.Now().Add(-25 * time.Hour),
	}))

	e, err := NewEmitter(identity, store, panickingCollector{}, clock, time.Minute)
	require.NoError(t, err)

	assert.NotPanics(t, func() { e.Emit(ctx) })
	assert.Equal(t, 1, store.sweeps)
	assert.Equal(t, 0, countGauges(t, base, identity.String(), health.MetricHeapBytesUsed))
}

func TestNewEmitterRequiresIdentity(t *testing.T) {
	_, err := NewEmitter(Identity{}, newTestStore(t), staticCollector{}, newMockClock(), time.Minute)
	assert.ErrorIs(t, err, ErrNotInitialized)
}
