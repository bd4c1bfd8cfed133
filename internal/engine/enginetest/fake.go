// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/webrtc/v4"
)

// Behavior controls how fake peer connections answer negotiation calls.
type Behavior int

const (
	// Complete runs callbacks successfully on a new goroutine.
	Complete Behavior = iota
	// Hang never runs callbacks.
	Hang
	// Fail runs callbacks with ErrNegotiation.
	Fail
)

var (
	ErrNegotiation   = errors.New("fake negotiation failure")
	ErrBadCandidate  = errors.New("fake candidate rejected")
	BadCandidate     = "candidate:bad"
	errEngineFailure = errors.New("fake engine failure")
)

type Engine struct {
	mu sync.Mutex

	Behavior        Behavior
	FailConnections bool
	FailTracks      bool

	// FailAddTrack makes AddTrack fail on connections created afterwards.
	FailAddTrack bool

	// BeforeNewVideoTrack and BeforeAddTrack run at the start of the matching
	// call, outside the fake's locks.
	BeforeNewVideoTrack func()
	BeforeAddTrack      func()

	conns  []*PeerConnection
	tracks []*Track
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{}
}

func (e *Engine) NewPeerConnection(cfg webrtc.Configuration) (engine.PeerConnection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FailConnections {
		return nil, errEngineFailure
	}
	pc := &PeerConnection{
		Config:         cfg,
		behavior:       e.Behavior,
		id:             len(e.conns),
		failAddTrack:   e.FailAddTrack,
		beforeAddTrack: e.BeforeAddTrack,
	}
	e.conns = append(e.conns, pc)
	return pc, nil
}

func (e *Engine) NewVideoTrack(label string, source video.Source, opts engine.TrackOptions) (engine.Track, error) {
	e.mu.Lock()
	before := e.BeforeNewVideoTrack
	e.mu.Unlock()
	if before != nil {
		before()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FailTracks {
		return nil, errEngineFailure
	}
	if source != nil {
		source.Start(video.CaptureFormat{PixelFormat: video.PixelFormatI420})
	}
	t := &Track{id: fmt.Sprintf("video_%d", len(e.tracks)), streamID: label, source: source, Options: opts}
	e.tracks = append(e.tracks, t)
	return t, nil
}

func (e *Engine) PeerConnections() []*PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*PeerConnection(nil), e.conns...)
}

func (e *Engine) Tracks() []*Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Track(nil), e.tracks...)
}

type PeerConnection struct {
	Config         webrtc.Configuration
	behavior       Behavior
	id             int
	failAddTrack   bool
	beforeAddTrack func()

	mu          sync.Mutex
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	tracks      []engine.Track
	candidates  []webrtc.ICECandidateInit
	onCandidate func(webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	state       webrtc.PeerConnectionState
	bitrate     engine.BitrateRange
	closed      bool
}

var _ engine.PeerConnection = (*PeerConnection)(nil)

func (p *PeerConnection) CreateOffer(cb engine.DescriptionCallback) {
	p.describe(webrtc.SDPTypeOffer, cb)
}

func (p *PeerConnection) CreateAnswer(cb engine.DescriptionCallback) {
	p.describe(webrtc.SDPTypeAnswer, cb)
}

func (p *PeerConnection) describe(kind webrtc.SDPType, cb engine.DescriptionCallback) {
	switch p.behavior {
	case Hang:
		return
	case Fail:
		go cb(nil, ErrNegotiation)
		return
	}

	go func() {
		desc := &webrtc.SessionDescription{
			Type: kind,
			SDP:  fmt.Sprintf("v=0\r\ns=fake-%s-%d\r\n", kind, p.id),
		}
		p.mu.Lock()
		p.local = desc
		p.mu.Unlock()
		cb(desc, nil)
	}()
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription, cb func(error)) {
	switch p.behavior {
	case Hang:
		return
	case Fail:
		go cb(ErrNegotiation)
		return
	}

	go func() {
		p.mu.Lock()
		p.remote = &desc
		p.mu.Unlock()
		cb(nil)
	}()
}

func (p *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if candidate.Candidate == BadCandidate {
		return ErrBadCandidate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *PeerConnection) AddTrack(track engine.Track) error {
	if p.beforeAddTrack != nil {
		p.beforeAddTrack()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAddTrack {
		return errEngineFailure
	}
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *PeerConnection) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = f
}

func (p *PeerConnection) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

// EmitCandidate simulates a gathered local candidate.
func (p *PeerConnection) EmitCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// SetState simulates a connection state change.
func (p *PeerConnection) SetState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	p.state = s
	f := p.onState
	p.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (p *PeerConnection) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *PeerConnection) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *PeerConnection) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeerConnection) SetBitrate(r engine.BitrateRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bitrate = r
}

func (p *PeerConnection) Bitrate() engine.BitrateRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitrate
}

func (p *PeerConnection) Stats() webrtc.StatsReport {
	return webrtc.StatsReport{}
}

func (p *PeerConnection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.state = webrtc.PeerConnectionStateClosed
	return nil
}

func (p *PeerConnection) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *PeerConnection) Tracks() []engine.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Track(nil), p.tracks...)
}

func (p *PeerConnection) RemoteCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

type Track struct {
	id       string
	streamID string
	source   video.Source
	Options  engine.TrackOptions

	mu      sync.Mutex
	stopped bool
}

var _ engine.Track = (*Track)(nil)

func (t *Track) ID() string                { return t.id }
func (t *Track) StreamID() string          { return t.streamID }
func (t *Track) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.source != nil {
		t.source.Stop()
	}
}

func (t *Track) Source() video.Source {
	return t.source
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
