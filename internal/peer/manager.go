package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/ice"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/stream"
	"github.com/pion/webrtc/v4"
)

var (
	ErrPeerExists   = errors.New("peer id already registered")
	ErrPeerNotFound = errors.New("unknown peer id")
)

type Config struct {
	StunURL            string
	TurnURL            string
	PublicIP           string
	NegotiationTimeout time.Duration
	// VideoDevices lists the capture source names offered to clients.
	VideoDevices func() []string
}

// Manager registers observers by peer id and attaches shared streams to them.
type Manager struct {
	engine  engine.Engine
	streams *stream.Registry
	timeout time.Duration
	devices func() []string

	iceMu    sync.RWMutex
	stunURL  string
	turnURL  string
	resolver ice.Resolver

	mu    sync.RWMutex
	peers map[string]*Observer
}

func NewManager(e engine.Engine, streams *stream.Registry, cfg Config) *Manager {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if cfg.VideoDevices == nil {
		cfg.VideoDevices = func() []string { return nil }
	}

	return &Manager{
		engine:   e,
		streams:  streams,
		timeout:  cfg.NegotiationTimeout,
		devices:  cfg.VideoDevices,
		stunURL:  cfg.StunURL,
		turnURL:  cfg.TurnURL,
		resolver: ice.Resolver{PublicIP: cfg.PublicIP},
		peers:    make(map[string]*Observer),
	}
}

// SetIceConfig replaces the configured servers for connections created from now on.
func (m *Manager) SetIceConfig(stunURL, turnURL, publicIP string) {
	m.iceMu.Lock()
	defer m.iceMu.Unlock()
	m.stunURL, m.turnURL = stunURL, turnURL
	m.resolver.PublicIP = publicIP
}

func (m *Manager) iceConfig() (string, string, ice.Resolver) {
	m.iceMu.RLock()
	defer m.iceMu.RUnlock()
	return m.stunURL, m.turnURL, m.resolver
}

// IceServers is the advertisement for a client connecting from clientIP.
func (m *Manager) IceServers(clientIP string) api.IceServers {
	stunURL, turnURL, resolver := m.iceConfig()
	return resolver.IceServers(stunURL, turnURL, clientIP)
}

// CreateOffer starts a call in which this side offers videoURL's stream.
func (m *Manager) CreateOffer(ctx context.Context, peerID, videoURL, audioURL, options string) (*api.SessionDescription, error) {
	opts := ParseOptions(options)
	stunURL, turnURL, _ := m.iceConfig()

	o, err := m.register(peerID, ice.Servers(stunURL, []string{turnURL}), opts, "offerer")
	if err != nil {
		return nil, err
	}

	if err := m.attach(o, videoURL, audioURL, opts); err != nil {
		return nil, m.fail(o, "attach", err)
	}

	desc, err := o.CreateOffer(ctx)
	if err != nil {
		return nil, m.fail(o, "offer", err)
	}

	slog.Info("offer created", "peer", peerID, "stream", stream.Label(videoURL))
	return api.ToApiDescription(desc), nil
}

// Call answers the caller's offer with videoURL's stream. Servers given in the
// request replace the configured ones for this call.
func (m *Manager) Call(ctx context.Context, peerID, videoURL, audioURL, options string, req api.CallRequest) (*api.SessionDescription, error) {
	remote, err := req.Description.ToWebRTC()
	if err != nil {
		slog.Warn("can not parse remote offer", "peer", peerID, "error", err)
		return nil, err
	}

	opts := ParseOptions(options)
	stunURL, turnURL, _ := m.iceConfig()
	if req.StunURL != "" {
		stunURL = req.StunURL
	}
	turnURLs := []string{turnURL}
	if len(req.TurnURLs) > 0 {
		turnURLs = req.TurnURLs
	}

	o, err := m.register(peerID, ice.Servers(stunURL, turnURLs), opts, "answerer")
	if err != nil {
		return nil, err
	}

	if err := o.ApplyRemoteOffer(ctx, remote); err != nil {
		return nil, m.fail(o, "remote_offer", err)
	}
	if err := m.attach(o, videoURL, audioURL, opts); err != nil {
		return nil, m.fail(o, "attach", err)
	}

	desc, err := o.CreateAnswer(ctx)
	if err != nil {
		return nil, m.fail(o, "answer", err)
	}

	slog.Info("call answered", "peer", peerID, "stream", stream.Label(videoURL))
	return api.ToApiDescription(desc), nil
}

func (m *Manager) register(peerID string, servers []webrtc.ICEServer, opts Options, role string) (*Observer, error) {
	if peerID == "" {
		return nil, fmt.Errorf("%w: empty peer id", api.ErrMalformedMessage)
	}

	m.mu.RLock()
	_, exists := m.peers[peerID]
	m.mu.RUnlock()
	if exists {
		slog.Warn("peer id already in use", "peer", peerID)
		return nil, ErrPeerExists
	}

	pc, err := m.engine.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		metrics.PeerConnectionFailuresTotal.WithLabelValues("create").Inc()
		slog.Error("can not create peer connection", "peer", peerID, "error", err)
		return nil, err
	}

	o := NewObserver(peerID, pc, ObserverOptions{
		IceServers: servers,
		Timeout:    m.timeout,
		Bitrate:    opts.Bitrate,
	})

	m.mu.Lock()
	if _, exists := m.peers[peerID]; exists {
		m.mu.Unlock()
		o.Close()
		slog.Warn("peer id already in use", "peer", peerID)
		return nil, ErrPeerExists
	}
	m.peers[peerID] = o
	metrics.ActivePeerConnections.Set(float64(len(m.peers)))
	m.mu.Unlock()

	metrics.PeerConnectionsCreatedTotal.WithLabelValues(role).Inc()
	return o, nil
}

func (m *Manager) attach(o *Observer, videoURL, audioURL string, opts Options) error {
	label := stream.Label(videoURL)
	if label == "" {
		return nil
	}
	if _, err := m.streams.Attach(videoURL, audioURL, opts.trackOptions(), o.AttachStream); err != nil {
		// a stream created for this call alone would otherwise outlive it
		m.streams.ReleaseIfUnused(label, m.holders)
		return err
	}
	return nil
}

// fail hangs up a connection whose negotiation did not finish.
func (m *Manager) fail(o *Observer, reason string, err error) error {
	metrics.PeerConnectionFailuresTotal.WithLabelValues(reason).Inc()
	slog.Error("negotiation failed", "peer", o.PeerID(), "reason", reason, "error", err)
	m.hangUp(o.PeerID(), o)
	return err
}

func (m *Manager) lookup(peerID string) (*Observer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.peers[peerID]
	return o, ok
}

// SetAnswer applies the remote answer to a previous offer.
func (m *Manager) SetAnswer(peerID string, msg api.SessionDescription) error {
	o, ok := m.lookup(peerID)
	if !ok {
		slog.Warn("answer for unknown peer", "peer", peerID)
		return ErrPeerNotFound
	}

	desc, err := msg.ToWebRTC()
	if err != nil {
		slog.Warn("can not parse answer", "peer", peerID, "error", err)
		return err
	}
	if err := o.SetRemoteAnswer(desc); err != nil {
		slog.Warn("can not apply answer", "peer", peerID, "error", err)
		return err
	}
	return nil
}

func (m *Manager) AddIceCandidate(peerID string, msg api.IceCandidate) bool {
	o, ok := m.lookup(peerID)
	if !ok {
		slog.Warn("candidate for unknown peer", "peer", peerID)
		return false
	}

	candidate, err := msg.ToWebRTC()
	if err != nil {
		slog.Warn("can not parse ice candidate", "peer", peerID, "error", err)
		return false
	}
	return o.AddIceCandidate(candidate) == nil
}

// HangUp closes the peer's connection and releases streams nobody else holds.
func (m *Manager) HangUp(peerID string) bool {
	return m.hangUp(peerID, nil)
}

// hangUp removes peerID; with only set, it removes it only while it maps to only.
func (m *Manager) hangUp(peerID string, only *Observer) bool {
	m.mu.Lock()
	o, ok := m.peers[peerID]
	if ok && (only == nil || o == only) {
		delete(m.peers, peerID)
		metrics.ActivePeerConnections.Set(float64(len(m.peers)))
	} else {
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		if only == nil {
			slog.Warn("hangup for unknown peer", "peer", peerID)
		}
		return false
	}

	// Closed first: AttachStream fails from here on, so the snapshot below can
	// not miss a stream attached concurrently.
	o.Close()
	labels := o.StreamLabels()
	for _, label := range labels {
		m.streams.ReleaseIfUnused(label, m.holders)
	}

	metrics.HangUpsTotal.Inc()
	slog.Info("peer hung up", "peer", peerID, "streams", labels)
	return true
}

func (m *Manager) holders() []stream.Holder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	holders := make([]stream.Holder, 0, len(m.peers))
	for _, o := range m.peers {
		holders = append(holders, o)
	}
	return holders
}

func (m *Manager) Observer(peerID string) (*Observer, bool) {
	return m.lookup(peerID)
}

func (m *Manager) IceCandidates(peerID string) ([]api.IceCandidate, bool) {
	o, ok := m.lookup(peerID)
	if !ok {
		return nil, false
	}
	return o.IceCandidates(), true
}

func (m *Manager) observers() []*Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Observer, 0, len(m.peers))
	for _, o := range m.peers {
		list = append(list, o)
	}
	return list
}

func (m *Manager) PeerConnections() api.PeerConnectionInfo {
	info := api.PeerConnectionInfo{}

	for _, o := range m.observers() {
		details := api.PeerConnectionDetails{
			State:         o.ConnectionState().String(),
			Streams:       map[string]api.StreamTracks{},
			IceServers:    iceURLs(o.IceServers()),
			IceCandidates: len(o.IceCandidates()),
			CreatedAt:     o.CreatedAt(),
			Stats:         o.Stats(),
		}
		if b := o.Bitrate(); !b.IsZero() {
			details.Bitrate = &api.Bitrate{Min: b.Min, Start: b.Start, Max: b.Max}
		}
		if desc := o.LocalDescription(); desc != nil {
			details.SDP = desc.SDP
		}
		for _, s := range o.Streams() {
			details.Streams[s.Label()] = api.StreamTracks{
				Video:   trackIDs(s.VideoTracks()),
				Audio:   trackIDs(s.AudioTracks()),
				Capture: api.ToApiCaptureStats(s.CaptureStats()),
			}
		}
		info[o.PeerID()] = details
	}

	return info
}

func iceURLs(servers []webrtc.ICEServer) []string {
	urls := make([]string, 0, len(servers))
	for _, server := range servers {
		urls = append(urls, server.URLs...)
	}
	return urls
}

func trackIDs(tracks []engine.Track) []string {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID())
	}
	return ids
}

func (m *Manager) Streams() []string {
	return m.streams.Labels()
}

func (m *Manager) VideoDevices() []string {
	devices := slices.Clone(m.devices())
	slices.Sort(devices)
	if devices == nil {
		devices = []string{}
	}
	return devices
}

// AudioDevices is always empty; audio capture is not supported.
func (m *Manager) AudioDevices() []string {
	return []string{}
}

func (m *Manager) MediaList() []api.Media {
	devices := m.VideoDevices()
	media := make([]api.Media, 0, len(devices))
	for _, d := range devices {
		media = append(media, api.Media{Video: d})
	}
	return media
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Reap hangs up connections that failed or closed, and those older than maxAge
// that never connected. It returns the number of peers hung up.
func (m *Manager) Reap(maxAge time.Duration) int {
	reaped := 0
	for _, o := range m.observers() {
		state := o.ConnectionState()
		stale := state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed
		if !stale && maxAge > 0 && !o.Connected() && time.Since(o.CreatedAt()) > maxAge {
			stale = true
		}
		if stale && m.hangUp(o.PeerID(), o) {
			slog.Info("reaped stale peer connection", "peer", o.PeerID(), "state", state.String())
			reaped++
		}
	}
	return reaped
}

// Close hangs up every peer and releases all streams.
func (m *Manager) Close() {
	for _, o := range m.observers() {
		m.hangUp(o.PeerID(), o)
	}
	m.streams.Close()
}
