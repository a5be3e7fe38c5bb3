package node

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
)

// LocalInfo describes how this node presents itself to the cluster.
type LocalInfo struct {
	Name            string
	HTTPExternalURI *url.URL
	Version         string
}

// Registrar writes the local node's record into the shared registry.
type Registrar struct {
	identity  Identity
	info      LocalInfo
	store     Store
	collector health.Collector
	clock     Clock
}

// NewRegistrar returns ErrNotInitialized when identity has not been resolved.
func NewRegistrar(identity Identity, info LocalInfo, store Store, collector health.Collector, clock Clock) (*Registrar, error) {
	if identity.IsZero() {
		return nil, ErrNotInitialized
	}
	if info.HTTPExternalURI == nil {
		return nil, errors.New("node HTTP external URI is required")
	}
	return &Registrar{
		identity:  identity,
		info:      info,
		store:     store,
		collector: collector,
		clock:     clock,
	}, nil
}

// Identity returns the local node identity.
func (r *Registrar) Identity() Identity { return r.identity }

// Info returns the static description of the local node.
func (r *Registrar) Info() LocalInfo { return r.info }

// RegisterSelf upserts the local node with a fresh health snapshot and refreshes
// last_seen, which is what keeps this node inside its peers' liveness window.
func (r *Registrar) RegisterSelf(ctx context.Context) error {
	s := r.collector.Collect()

	record := &db.NodeRecord{
		UUID:                 r.identity.String(),
		Name:                 r.info.Name,
		HTTPExternalURI:      r.info.HTTPExternalURI.String(),
		Version:              r.info.Version,
		LastSeen:             r.clock.Now().UTC(),
		MemoryBytesTotal:     s.MemoryBytesTotal,
		MemoryBytesAvailable: s.MemoryBytesAvailable,
		MemoryBytesUsed:      s.MemoryBytesUsed,
		HeapBytesTotal:       s.HeapBytesTotal,
		HeapBytesAvailable:   s.HeapBytesAvailable,
		HeapBytesUsed:        s.HeapBytesUsed,
		CPUSystemLoad:        s.CPUSystemLoad,
		CPUThreadCount:       s.CPUThreadCount,
		ProcessStartTime:     s.ProcessStartTime,
		ProcessVirtualSize:   s.ProcessVirtualSize,
		ProcessArguments:     s.ProcessArguments,
		OSInformation:        s.OSInformation,
	}

	if err := r.store.UpsertNode(ctx, record); err != nil {
		return storeError(err, "register node "+r.identity.String())
	}
	return nil
}
