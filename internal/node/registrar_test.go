package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

func TestNewRegistrarRequiresIdentity(t *testing.T) {
	_, err := NewRegistrar(Identity{}, LocalInfo{Name: "n", HTTPExternalURI: mustURL(t, "http://n:8080")},
		newTestStore(t), staticCollector{}, newMockClock())
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestRegisterSelfTwiceOverwritesSingleRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newMockClock()
	identity := newTestIdentity(t)

	first, err := NewRegistrar(identity, LocalInfo{
		Name:            "alpha",
		HTTPExternalURI: mustURL(t, "http://alpha:8080/"),
		Version:         "1.0.0",
	}, store, staticCollector{snapshot: fullSnapshot()}, clock)
	require.NoError(t, err)
	require.NoError(t, first.RegisterSelf(ctx))

	before := findRecord(t, store, identity)

	clock.Advance(time.Minute)
	second, err := NewRegistrar(identity, LocalInfo{
		Name:            "alpha-2",
		HTTPExternalURI: mustURL(t, "https://alpha.example:8443/"),
		Version:         "1.1.0",
	}, store, staticCollector{snapshot: health.Snapshot{}}, clock)
	require.NoError(t, err)
	require.NoError(t, second.RegisterSelf(ctx))

	records, err := store.NodesSeenSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	after := records[0]
	assert.Equal(t, identity.String(), after.UUID)
	assert.Equal(t, "alpha-2", after.Name)
	assert.Equal(t, "https://alpha.example:8443/", after.HTTPExternalURI)
	assert.Equal(t, "1.1.0", after.Version)
	assert.Nil(t, after.MemoryBytesTotal)
	assert.False(t, after.LastSeen.Before(before.LastSeen))
	assert.True(t, after.LastSeen.Equal(testEpoch.Add(time.Minute)))
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
}

func TestRegisterSelfStoresHealthSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := newTestIdentity(t)
	snap := fullSnapshot()

	r, err := NewRegistrar(identity, LocalInfo{Name: "alpha", HTTPExternalURI: mustURL(t, "http://alpha:8080"), Version: "1.0.0"},
		store, staticCollector{snapshot: snap}, newMockClock())
	require.NoError(t, err)
	require.NoError(t, r.RegisterSelf(ctx))

	rec := findRecord(t, store, identity)
	require.NotNil(t, rec.MemoryBytesTotal)
	assert.Equal(t, *snap.MemoryBytesTotal, *rec.MemoryBytesTotal)
	require.NotNil(t, rec.CPUSystemLoad)
	assert.InDelta(t, *snap.CPUSystemLoad, *rec.CPUSystemLoad, 1e-9)
	require.NotNil(t, rec.ProcessStartTime)
	assert.True(t, snap.ProcessStartTime.Equal(*rec.ProcessStartTime))
	require.NotNil(t, rec.OSInformation)
	assert.Equal(t, *snap.OSInformation, *rec.OSInformation)
}

func TestRegisterSelfConcurrentCallsKeepOneRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	identity := newTestIdentity(t)

	r, err := NewRegistrar(identity, LocalInfo{Name: "alpha", HTTPExternalURI: mustURL(t, "http://alpha:8080")},
		store, staticCollector{snapshot: fullSnapshot()}, newMockClock())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.RegisterSelf(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	// SQLite may report a busy database under contention; every successful call
	// must still land on the same row.
	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrStoreUnavailable))
	}
	assert.Greater(t, succeeded, 0)

	records, err := store.NodesSeenSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

type brokenStore struct{ *db.Store }

func (brokenStore) UpsertNode(context.Context, *db.NodeRecord) error { return errInjected }

func TestRegisterSelfWrapsStoreFailure(t *testing.T) {
	identity := newTestIdentity(t)
	r, err := NewRegistrar(identity, LocalInfo{Name: "alpha", HTTPExternalURI: mustURL(t, "http://alpha:8080")},
		brokenStore{newTestStore(t)}, staticCollector{}, newMockClock())
	require.NoError(t, err)

	err = r.RegisterSelf(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}
