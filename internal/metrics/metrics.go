// Package metrics defines the Prometheus instrumentation for the relay
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks live WebSocket connections per workspace.
	ConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collab_connected_clients",
			Help: "Currently connected collaboration clients",
		},
		[]string{"workspace"},
	)

	// FramesRelayed counts frames broadcast to workspace clients.
	FramesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_frames_relayed_total",
			Help: "Total frames relayed to clients",
		},
		[]string{"type"},
	)

	// FramesDropped counts inbound frames discarded before relay.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_frames_dropped_total",
			Help: "Total inbound frames dropped",
		},
		[]string{"reason"},
	)

	// CommentsCreated counts comments and replies accepted by the relay.
	CommentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_comments_created_total",
			Help: "Total comments and replies created",
		},
	)

	// HistoryEntries counts change history entries accepted by the relay.
	HistoryEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_history_entries_total",
			Help: "Total change history entries recorded",
		},
		[]string{"type"},
	)
)
