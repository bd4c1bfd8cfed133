package ice

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

// TurnServer is an embedded STUN/TURN server so that a deployment can point its
// stunUrl/turnUrl at 0.0.0.0:<port> without running anything else.
type TurnServer struct {
	server *turn.Server
	addr   net.Addr
}

func StartTurnServer(cfg config.TurnConfig, loggerFactory logging.LoggerFactory) (*TurnServer, error) {
	relayIP := net.ParseIP(cfg.PublicIP)
	if relayIP == nil {
		return nil, errors.New("turn: publicIp is required")
	}

	udpListener, err := net.ListenPacket("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("turn: failed to listen on %s: %w", cfg.Listen, err)
	}

	usersMap := make(map[string][]byte, len(cfg.Users))
	for user, pass := range cfg.Users {
		usersMap[user] = turn.GenerateAuthKey(user, cfg.Realm, pass)
	}

	server, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			key, ok := usersMap[username]
			if !ok {
				metrics.TurnAllocationsAuthTotal.WithLabelValues("rejected").Inc()
				slog.Debug("turn auth rejected", "user", username, "addr", srcAddr)
				return nil, false
			}
			metrics.TurnAllocationsAuthTotal.WithLabelValues("accepted").Inc()
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorPortRange{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
					MinPort:      cfg.RelayPortMin,
					MaxPort:      cfg.RelayPortMax,
				},
			},
		},
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		_ = udpListener.Close()
		return nil, fmt.Errorf("turn: %w", err)
	}

	slog.Info("turn server started", "listen", udpListener.LocalAddr().String(), "realm", cfg.Realm, "users", len(usersMap))
	return &TurnServer{server: server, addr: udpListener.LocalAddr()}, nil
}

func (s *TurnServer) Addr() net.Addr {
	return s.addr
}

func (s *TurnServer) Close() error {
	return s.server.Close()
}
