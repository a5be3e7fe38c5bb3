package messaging

import (
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	// subjectClusterNodePrefix prefixes the per-node subject every node listens on.
	subjectClusterNodePrefix = "knit.cluster.node."
)

// SubjectClusterNode returns the subject that reaches exactly one node.
func SubjectClusterNode(nodeID string) string {
	return subjectClusterNodePrefix + nodeID
}

// Connect establishes a connection to a NATS server.
func Connect(natsURL, clientName string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", natsURL).Msg("Connected to NATS server")
	return nc, nil
}
