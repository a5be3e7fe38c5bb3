package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/atvirokodosprendimai/knitu/internal/node"
)

// MessageTypeCacheInvalidation asks every online node to drop a cached entry.
const MessageTypeCacheInvalidation = "cache_invalidation"

const flushTimeout = 5 * time.Second

// ClusterMessage is the envelope delivered to every online node.
type ClusterMessage struct {
	Type    string          `json:"type"`
	Origin  uuid.UUID       `json:"origin"`
	SentAt  time.Time       `json:"sent_at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Membership lists the nodes a broadcast must reach. *node.Liveness implements it.
type Membership interface {
	ActiveNodes(ctx context.Context) []node.ActiveNode
}

// Broadcaster fans messages out to every node currently considered online.
// Delivery is fire-and-forget: no retries, no acknowledgments.
type Broadcaster struct {
	nc      *nats.Conn
	members Membership
	self    node.Identity
	clock   node.Clock
}

func NewBroadcaster(nc *nats.Conn, members Membership, self node.Identity, clock node.Clock) *Broadcaster {
	return &Broadcaster{nc: nc, members: members, self: self, clock: clock}
}

// SendToOnline publishes one message per online node, including the local one,
// and returns how many nodes it was published to.
func (b *Broadcaster) SendToOnline(ctx context.Context, msgType string, payload any) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal cluster message payload")
	}
	data, err := json.Marshal(ClusterMessage{
		Type:    msgType,
		Origin:  b.self.UUID(),
		SentAt:  b.clock.Now().UTC(),
		Payload: raw,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal cluster message")
	}

	members := b.members.ActiveNodes(ctx)
	sent, failed := 0, 0
	for _, n := range members {
		if err := b.nc.Publish(SubjectClusterNode(n.ID.String()), data); err != nil {
			log.Error().Err(err).Str("node_id", n.ID.String()).Str("type", msgType).Msg("Could not publish cluster message")
			failed++
			continue
		}
		sent++
	}
	if sent > 0 {
		if err := b.flush(ctx); err != nil {
			return sent, errors.Wrap(err, "failed to flush cluster messages")
		}
	}

	log.Debug().Str("type", msgType).Int("sent", sent).Int("online", len(members)).Msg("Cluster message broadcast")
	if failed > 0 {
		return sent, errors.Errorf("cluster message %q not published to %d of %d online nodes", msgType, failed, len(members))
	}
	return sent, nil
}

// flush waits for the server to process the published messages. nats.go
// refuses FlushWithContext on a context without a deadline.
func (b *Broadcaster) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return b.nc.FlushWithContext(ctx)
	}
	return b.nc.FlushTimeout(flushTimeout)
}

// Subscribe delivers messages addressed to the local node to handler.
// Malformed messages are logged and dropped.
func (b *Broadcaster) Subscribe(handler func(ClusterMessage)) (*nats.Subscription, error) {
	return b.nc.Subscribe(SubjectClusterNode(b.self.String()), func(m *nats.Msg) {
		var msg ClusterMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("Unmarshalling cluster message")
			return
		}
		handler(msg)
	})
}
