package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActivePeerConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_streamer_active_peer_connections",
		Help: "Number of registered peer connections",
	})

	PeerConnectionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_peer_connections_created_total",
		Help: "Total number of peer connections created",
	}, []string{"role"}) // "offerer" | "answerer"

	PeerConnectionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_peer_connection_failures_total",
		Help: "Total number of failed negotiations",
	}, []string{"reason"})

	HangUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_streamer_hangups_total",
		Help: "Total number of peer connections hung up",
	})

	NegotiationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webrtc_streamer_negotiation_seconds",
		Help:    "Time to produce a local description",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"role"})

	ICECandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_ice_candidates_total",
		Help: "Total number of ICE candidates",
	}, []string{"direction"}) // "local" | "remote"

	ConnectionState = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_connection_state_changes_total",
		Help: "Peer connection state transitions reported by the engine",
	}, []string{"state"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_streamer_active_streams",
		Help: "Number of registered media streams",
	})

	ActiveCaptureSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_streamer_active_capture_sources",
		Help: "Number of running capture sources",
	})

	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_frames_received_total",
		Help: "Messages received from frame subscribers",
	}, []string{"source"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_frames_dropped_total",
		Help: "Frames dropped before reaching the encoder",
	}, []string{"source", "reason"}) // "base64" | "image" | "encode" | "write"

	FrameDecodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webrtc_streamer_frame_decode_seconds",
		Help:    "Time spent decoding and converting one frame",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	EncodedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_streamer_encoded_bytes_total",
		Help: "Bytes written to video tracks",
	})

	PLIRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_streamer_pli_requests_total",
		Help: "Total PLI/FIR requests received from viewers",
	})

	SignallingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_signalling_requests_total",
		Help: "Signalling API requests",
	}, []string{"endpoint", "result"}) // result: "ok" | "error"

	ActiveTrickleSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webrtc_streamer_active_trickle_sockets",
		Help: "Number of open candidate websocket connections",
	})

	TrickleEventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_trickle_events_dropped_total",
		Help: "Trickle events not delivered because a websocket fell behind",
	}, []string{"event"})

	ConfigReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webrtc_streamer_config_reloads_total",
		Help: "Configuration reloads applied",
	})

	TurnAllocationsAuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webrtc_streamer_turn_auth_total",
		Help: "Embedded TURN server authentication attempts",
	}, []string{"result"})
)
