// Package api exposes the node registry over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/atvirokodosprendimai/knitu/internal/db"
	"github.com/atvirokodosprendimai/knitu/internal/health"
	"github.com/atvirokodosprendimai/knitu/internal/node"
)

// Directory answers registry queries. *node.Liveness implements it.
type Directory interface {
	ActiveNodes(ctx context.Context) []node.ActiveNode
	GaugeHistory(ctx context.Context, nodeID uuid.UUID, metricName string) ([]db.NodeMetricGauge, error)
}

// Self describes the local node. *node.Registrar implements it.
type Self interface {
	Identity() node.Identity
	Info() node.LocalInfo
}

// Broadcaster fans a message out to every online node. *messaging.Broadcaster implements it.
type Broadcaster interface {
	SendToOnline(ctx context.Context, msgType string, payload any) (int, error)
}

// BroadcastRequest asks the node to send a message to every online node.
type BroadcastRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// BroadcastResponse reports how many nodes the message was published to.
type BroadcastResponse struct {
	Sent int `json:"sent"`
}

// NodeResponse is the JSON representation of an active node.
type NodeResponse struct {
	UUID            uuid.UUID       `json:"uuid"`
	Name            string          `json:"name"`
	HTTPExternalURI string          `json:"http_external_uri"`
	Version         string          `json:"version"`
	LastSeen        time.Time       `json:"last_seen"`
	CreatedAt       time.Time       `json:"created_at"`
	Health          health.Snapshot `json:"health"`
}

// SelfResponse describes the node serving the request.
type SelfResponse struct {
	UUID            uuid.UUID `json:"uuid"`
	Name            string    `json:"name"`
	HTTPExternalURI string    `json:"http_external_uri"`
	Version         string    `json:"version"`
}

// GaugeResponse is one retained gauge sample.
type GaugeResponse struct {
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRouter builds the HTTP routes of the registry.
func NewRouter(dir Directory, self Self, bc Broadcaster) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", activeNodesHandler(dir))
		r.Get("/self", selfHandler(self))
		r.Get("/{nodeID}/metrics/{metric}", gaugeHistoryHandler(dir))
	})
	r.Post("/cluster/messages", broadcastHandler(bc))
	return r
}

func activeNodesHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes := dir.ActiveNodes(r.Context())
		resp := make([]NodeResponse, 0, len(nodes))
		for _, n := range nodes {
			resp = append(resp, NodeResponse{
				UUID:            n.ID,
				Name:            n.Name,
				HTTPExternalURI: n.HTTPExternalURI.String(),
				Version:         n.Version,
				LastSeen:        n.LastSeen,
				CreatedAt:       n.CreatedAt,
				Health:          n.Health,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func selfHandler(self Self) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := self.Info()
		writeJSON(w, http.StatusOK, SelfResponse{
			UUID:            self.Identity().UUID(),
			Name:            info.Name,
			HTTPExternalURI: info.HTTPExternalURI.String(),
			Version:         info.Version,
		})
	}
}

func gaugeHistoryHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID, err := uuid.Parse(chi.URLParam(r, "nodeID"))
		if err != nil {
			http.Error(w, "invalid node id", http.StatusBadRequest)
			return
		}
		gauges, err := dir.GaugeHistory(r.Context(), nodeID, chi.URLParam(r, "metric"))
		if err != nil {
			log.Error().Err(err).Str("node_id", nodeID.String()).Msg("Could not read gauge history")
			http.Error(w, "could not read gauge history", http.StatusServiceUnavailable)
			return
		}
		resp := make([]GaugeResponse, 0, len(gauges))
		for _, g := range gauges {
			resp = append(resp, GaugeResponse{Value: g.MetricValue, CreatedAt: g.CreatedAt})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func broadcastHandler(bc Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BroadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.Type == "" {
			http.Error(w, "message type is required", http.StatusBadRequest)
			return
		}
		if len(req.Payload) == 0 {
			req.Payload = json.RawMessage("null")
		}

		sent, err := bc.SendToOnline(r.Context(), req.Type, req.Payload)
		if err != nil {
			log.Error().Err(err).Str("type", req.Type).Int("sent", sent).Msg("Cluster broadcast incomplete")
			http.Error(w, fmt.Sprintf("Broadcast incomplete: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusAccepted, BroadcastResponse{Sent: sent})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Encoding response")
	}
}
