package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/capture"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/discovery"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/encoder"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/ice"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/logging"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/peer"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/signalling"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/stream"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/utils"
)

// Overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configDir    string
	logLevel     string
	noColor      bool
	reapInterval time.Duration
	peerMaxAge   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config", "conf", "Directory with server, security, webrtc, capture and turn config files.")
	flag.StringVar(&opts.logLevel, "log-level", "info", "One of debug, info, warn, error.")
	flag.BoolVar(&opts.noColor, "no-color", false, "Disable colored log output.")
	flag.DurationVar(&opts.reapInterval, "reap-interval", time.Minute, "How often dead peer connections are hung up.")
	flag.DurationVar(&opts.peerMaxAge, "peer-max-age", 2*time.Minute, "Connections that never connected are hung up after this long.")
	showVersion := flag.Bool("version", false, "Print the version and exit.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(opts.logLevel), opts.noColor)
	slog.SetDefault(logger)

	if err := run(opts, logger); err != nil {
		slog.Error("streamer stopped", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	cfgManager, err := config.NewManager(opts.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	pionLogs := logging.NewPionFactory(logger)

	eng, err := engine.NewPionEngine(&cfg.WebRTC, cfg.Server.PublicIP,
		engine.WithEncoderFactory(encoder.NewVP8Factory(cfg.Capture.Bitrate, cfg.Capture.KeyFrameEvery)),
		engine.WithLoggerFactory(pionLogs),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	sources := newSourceTable(cfg.Capture.Sources)
	registry := stream.NewRegistry(&stream.CaptureFactory{
		Engine:         eng,
		Sources:        sources.get,
		ReceiveTimeout: cfg.Capture.ReceiveTimeout,
		Dial:           capture.Dial,
	})
	defer registry.Close()

	peers := peer.NewManager(eng, registry, peer.Config{
		StunURL:            cfg.WebRTC.StunURL,
		TurnURL:            cfg.WebRTC.TurnURL,
		PublicIP:           cfg.Server.PublicIP,
		NegotiationTimeout: cfg.WebRTC.NegotiationTimeout,
		VideoDevices:       sources.names,
	})
	defer peers.Close()

	cfgManager.SetUpdateCallback(func(c *config.AppConfig) {
		peers.SetIceConfig(c.WebRTC.StunURL, c.WebRTC.TurnURL, c.Server.PublicIP)
		sources.set(c.Capture.Sources)
		metrics.ConfigReloadsTotal.Inc()
		slog.Info("config reloaded", "sources", len(c.Capture.Sources))
	})
	if err := cfgManager.Watch(); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}

	if cfg.Turn.Enabled {
		if cfg.Turn.PublicIP == "" {
			cfg.Turn.PublicIP = cfg.Server.PublicIP
		}
		turnServer, err := ice.StartTurnServer(cfg.Turn, pionLogs)
		if err != nil {
			return fmt.Errorf("start turn server: %w", err)
		}
		defer turnServer.Close()
		slog.Info("turn server listening", "addr", turnServer.Addr().String(), "realm", cfg.Turn.Realm)
	}

	reaper := utils.SetIntervalTimer(opts.reapInterval, func() {
		if n := peers.Reap(opts.peerMaxAge); n > 0 {
			slog.Info("hung up dead peer connections", "count", n)
		}
	})
	defer reaper.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:             1 << 20,
		DisableStartupMessage: true,
	})
	server := signalling.NewServer(app, peers, signalling.Options{
		Security: func() config.SecurityConfig { return cfgManager.Get().Security },
		Version:  version,
	})
	server.Setup()
	defer server.Close()

	if cfg.Server.Advertise {
		advertiser, err := discovery.NewAdvertiser(discovery.Config{
			Instance: cfg.Server.InstanceName,
			Port:     cfg.Server.Port,
			TXT:      []string{"version=" + version, "path=/api"},
		})
		if err == nil {
			err = advertiser.Start()
		}
		if err != nil {
			slog.Warn("mdns advertisement disabled", "error", err)
		} else {
			defer advertiser.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		slog.Info("streamer is starting", "addr", addr, "version", version)
		sec := cfg.Security
		if sec.TLSCrtFile != nil && sec.TLSKeyFile != nil {
			listenErr <- app.ListenTLS(addr, *sec.TLSCrtFile, *sec.TLSKeyFile)
		} else {
			listenErr <- app.Listen(addr)
		}
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return errors.New("http server exited")
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	return app.ShutdownWithTimeout(5 * time.Second)
}

// sourceTable holds the capture source names so that config reloads reach
// streams created afterwards.
type sourceTable struct {
	mu      sync.RWMutex
	sources map[string]string
}

func newSourceTable(sources map[string]string) *sourceTable {
	t := &sourceTable{}
	t.set(sources)
	return t
}

func (t *sourceTable) set(sources map[string]string) {
	copied := make(map[string]string, len(sources))
	for name, address := range sources {
		copied[name] = address
	}
	t.mu.Lock()
	t.sources = copied
	t.mu.Unlock()
}

func (t *sourceTable) get() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sources
}

func (t *sourceTable) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.sources))
	for name := range t.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
