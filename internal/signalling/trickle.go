package signalling

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/sockets"
)

// setupTrickleSockets serves /ws/peers/:peerid. The server pushes gathered
// candidates and connection states; the client may send its own candidates,
// pings and a hangup.
func (s *Server) setupTrickleSockets() {
	s.app.Get("/ws/peers/:peerid", s.requireToken, websocket.New(func(c *websocket.Conn) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic in /ws/peers", "error", err)
			}
		}()

		s.listenTrickleSocket(c)
	}))
}

func (s *Server) listenTrickleSocket(c *websocket.Conn) {
	peerID := c.Params("peerid")
	socket := sockets.NewSocket(sockets.SocketID(peerID), c)

	observer, found := s.peers.Observer(peerID)
	if !found {
		slog.Warn("candidate socket for unknown peer", "peer", peerID)
		_ = socket.WriteJSON(api.TrickleMessage{Event: api.TrickleEventHangUp})
		return
	}

	s.sockets.Add(socket)
	metrics.ActiveTrickleSockets.Inc()
	defer func() {
		s.sockets.Remove(socket)
		_ = socket.Close()
		metrics.ActiveTrickleSockets.Dec()
	}()

	events, cancel := observer.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readTrickleSocket(peerID, socket)
	}()

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				_ = socket.WriteJSON(api.TrickleMessage{Event: api.TrickleEventHangUp})
				return
			}
			if err := socket.WriteJSON(msg); err != nil {
				slog.Debug("failed to send trickle message", "peer", peerID, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) readTrickleSocket(peerID string, socket sockets.Socket) {
	for {
		var msg api.TrickleMessage
		if err := socket.ReadJSON(&msg); err != nil {
			if sockets.IsUnexpectedClose(err) {
				slog.Warn("candidate socket closed unexpectedly", "peer", peerID, "error", err)
			}
			return
		}

		switch msg.Event {
		case api.TrickleEventClientIce:
			if msg.Ice == nil {
				continue
			}
			s.peers.AddIceCandidate(peerID, *msg.Ice)
		case api.TrickleEventPing:
			if err := socket.WriteJSON(api.TrickleMessage{Event: api.TrickleEventPong}); err != nil {
				return
			}
		case api.TrickleEventHangUp:
			s.peers.HangUp(peerID)
			return
		default:
			slog.Debug("unknown trickle event", "peer", peerID, "event", msg.Event)
		}
	}
}
