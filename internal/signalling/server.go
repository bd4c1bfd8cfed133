// Package signalling exposes the peer connection manager over HTTP: the /api
// negotiation endpoints, admin queries, a candidate websocket and /metrics.
package signalling

import (
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/peer"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/sockets"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type Options struct {
	// Security returns the current security section; it is read per request so
	// that reloaded credentials apply immediately.
	Security func() config.SecurityConfig
	Version  string
}

type Server struct {
	app     *fiber.App
	peers   *peer.Manager
	opts    Options
	sockets *sockets.Pool
}

func NewServer(app *fiber.App, peers *peer.Manager, opts Options) *Server {
	if opts.Security == nil {
		opts.Security = func() config.SecurityConfig { return config.DefaultAppConfig().Security }
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	return &Server{
		app:     app,
		peers:   peers,
		opts:    opts,
		sockets: sockets.NewSocketPool(),
	}
}

// Setup registers every route. It must be called once before the app listens.
func (s *Server) Setup() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use("/api", cors.New())

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.setupPeerApi()
	s.setupAdminApi()
	s.setupTrickleSockets()

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	s.app.Get("/api/version", func(c *fiber.Ctx) error {
		return c.JSON(api.VersionInfo{Version: s.opts.Version})
	})
}

// Close drops every candidate websocket. Peer connections belong to the manager.
func (s *Server) Close() {
	s.sockets.Close()
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrMalformedMessage),
		errors.Is(err, peer.ErrUnexpectedType),
		errors.Is(err, peer.ErrInvalidState):
		return fiber.StatusBadRequest
	case errors.Is(err, peer.ErrPeerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, peer.ErrPeerExists):
		return fiber.StatusConflict
	case errors.Is(err, peer.ErrNegotiationTimeout):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// fail answers with an empty JSON object, which is what clients treat as
// "no description".
func fail(c *fiber.Ctx, endpoint string, err error) error {
	countError(endpoint)
	slog.Warn("signalling request failed", "endpoint", endpoint, "peer", c.Query("peerid"), "error", err)
	return c.Status(statusFor(err)).JSON(fiber.Map{})
}

func countOK(endpoint string) {
	metrics.SignallingRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
}

func countError(endpoint string) {
	metrics.SignallingRequestsTotal.WithLabelValues(endpoint, "error").Inc()
}
