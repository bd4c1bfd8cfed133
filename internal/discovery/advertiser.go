// Package discovery advertises the signalling API on the local network over mDNS.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_webrtc-streamer._tcp"
	Domain      = "local."
)

var ErrClosed = errors.New("advertiser closed")

// Server is a running mDNS registration.
type Server interface {
	Shutdown()
}

// RegisterFunc matches zeroconf.Register so tests can replace it.
type RegisterFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (Server, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

type Config struct {
	Instance string
	Port     int
	// TXT records, e.g. "version=1.2.3" and "path=/api".
	TXT []string
	// Register defaults to zeroconf.Register.
	Register RegisterFunc
}

type Advertiser struct {
	config Config

	mu     sync.Mutex
	server Server
	closed bool
}

func NewAdvertiser(config Config) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", config.Port)
	}
	if config.Instance == "" {
		config.Instance = "webrtc-streamer"
	}
	if config.Register == nil {
		config.Register = zeroconfRegister
	}
	return &Advertiser{config: config}, nil
}

// Start registers the service. Calling it again while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return nil
	}

	server, err := a.config.Register(a.config.Instance, ServiceType, Domain, a.config.Port, a.config.TXT, nil)
	if err != nil {
		return fmt.Errorf("discovery: failed to register %s: %w", ServiceType, err)
	}
	a.server = server

	slog.Info("advertising over mdns", "instance", a.config.Instance, "service", ServiceType, "port", a.config.Port)
	return nil
}

func (a *Advertiser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
