package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/config"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

var ErrForeignTrack = errors.New("track was not created by this engine")

type Option func(*PionEngine)

// WithEncoderFactory sets the video encoder. Without one, frames are dropped.
func WithEncoderFactory(f video.EncoderFactory) Option {
	return func(e *PionEngine) {
		e.encoders = f
	}
}

// WithLoggerFactory routes pion's internal logging.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(e *PionEngine) {
		e.loggerFactory = f
	}
}

// PionEngine implements Engine with pion/webrtc.
type PionEngine struct {
	api           *webrtc.API
	videoCodec    webrtc.RTPCodecCapability
	encoders      video.EncoderFactory
	loggerFactory logging.LoggerFactory
}

var _ Engine = (*PionEngine)(nil)

// NewPionEngine registers the configured codecs and the default interceptors and
// applies the port range and public address to the setting engine.
func NewPionEngine(cfg *config.WebRTCConfig, publicIP string, opts ...Option) (*PionEngine, error) {
	e := &PionEngine{}
	for _, opt := range opts {
		opt(e)
	}

	mediaEngine := &webrtc.MediaEngine{}
	haveVideo := false
	for _, codec := range cfg.Codecs {
		if err := mediaEngine.RegisterCodec(codec.Params, codec.Type); err != nil {
			return nil, fmt.Errorf("failed to register codec: %w", err)
		}
		if codec.Type == webrtc.RTPCodecTypeVideo && !haveVideo {
			e.videoCodec = codec.Params.RTPCodecCapability
			haveVideo = true
		}
	}
	if !haveVideo {
		return nil, errors.New("no video codec configured")
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if e.loggerFactory != nil {
		se.LoggerFactory = e.loggerFactory
	}
	if publicIP != "" {
		se.SetNAT1To1IPs([]string{publicIP}, webrtc.ICECandidateTypeHost)
	}
	if cfg.PortMin > 0 && cfg.PortMax > 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("failed to set WebRTC port range: %w", err)
		}
	}

	e.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	return e, nil
}

func (e *PionEngine) NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error) {
	pc, err := e.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &pionPeerConnection{pc: pc}, nil
}

type pionPeerConnection struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	bitrate BitrateRange
}

func (p *pionPeerConnection) CreateOffer(cb DescriptionCallback) {
	go p.describe(webrtc.SDPTypeOffer, cb)
}

func (p *pionPeerConnection) CreateAnswer(cb DescriptionCallback) {
	go p.describe(webrtc.SDPTypeAnswer, cb)
}

func (p *pionPeerConnection) describe(kind webrtc.SDPType, cb DescriptionCallback) {
	var (
		desc webrtc.SessionDescription
		err  error
	)
	if kind == webrtc.SDPTypeOffer {
		desc, err = p.pc.CreateOffer(nil)
	} else {
		desc, err = p.pc.CreateAnswer(nil)
	}
	if err != nil {
		cb(nil, fmt.Errorf("create %s: %w", kind, err))
		return
	}
	if err := p.pc.SetLocalDescription(desc); err != nil {
		cb(nil, fmt.Errorf("set local %s: %w", kind, err))
		return
	}

	local := p.pc.LocalDescription()
	if local == nil {
		cb(nil, fmt.Errorf("local %s missing after set", kind))
		return
	}

	out := *local
	p.mu.Lock()
	bitrate := p.bitrate
	p.mu.Unlock()
	if withBandwidth, err := ApplyBandwidth(out.SDP, bitrate); err == nil {
		out.SDP = withBandwidth
	} else {
		slog.Warn("can not apply bandwidth to description", "error", err)
	}
	cb(&out, nil)
}

func (p *pionPeerConnection) SetRemoteDescription(desc webrtc.SessionDescription, cb func(error)) {
	go func() {
		cb(p.pc.SetRemoteDescription(desc))
	}()
}

func (p *pionPeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionPeerConnection) AddTrack(track Track) error {
	vt, ok := track.(*videoTrack)
	if !ok {
		return ErrForeignTrack
	}

	sender, err := p.pc.AddTrack(vt.local)
	if err != nil {
		return fmt.Errorf("failed to add track %s: %w", vt.ID(), err)
	}

	go readRTCP(sender, vt)
	return nil
}

// readRTCP drains feedback for one sender until the connection closes. Picture
// loss reports turn into a key frame request on the shared track.
func readRTCP(sender *webrtc.RTPSender, track *videoTrack) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				metrics.PLIRequestsTotal.Inc()
				track.RequestKeyFrame()
			}
		}
	}
}

func (p *pionPeerConnection) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

func (p *pionPeerConnection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *pionPeerConnection) LocalDescription() *webrtc.SessionDescription {
	return p.pc.LocalDescription()
}

func (p *pionPeerConnection) RemoteDescription() *webrtc.SessionDescription {
	return p.pc.RemoteDescription()
}

func (p *pionPeerConnection) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

func (p *pionPeerConnection) SetBitrate(r BitrateRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bitrate = r
}

func (p *pionPeerConnection) Stats() webrtc.StatsReport {
	return p.pc.GetStats()
}

func (p *pionPeerConnection) Close() error {
	return p.pc.Close()
}
