// Package peer owns peer connections: negotiation state for each one, and the
// manager that registers them by peer id and shares streams between them.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/stream"
	"github.com/pion/webrtc/v4"
)

const (
	DefaultNegotiationTimeout = 5 * time.Second
	trickleBuffer             = 32
)

var (
	ErrInvalidState       = errors.New("invalid negotiation state")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrClosed             = errors.New("peer connection closed")
	ErrUnexpectedType     = errors.New("unexpected session description type")
)

type State int

const (
	StateCreated State = iota
	StateOfferPending
	StateHasLocalOffer
	StateAnswerPending
	StateHasRemoteOffer
	StateHasLocalAnswer
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOfferPending:
		return "offer-pending"
	case StateHasLocalOffer:
		return "have-local-offer"
	case StateAnswerPending:
		return "answer-pending"
	case StateHasRemoteOffer:
		return "have-remote-offer"
	case StateHasLocalAnswer:
		return "have-local-answer"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type ObserverOptions struct {
	IceServers []webrtc.ICEServer
	Timeout    time.Duration
	Bitrate    engine.BitrateRange
}

// Observer tracks one peer connection through negotiation and collects the
// candidates the engine gathers for it.
type Observer struct {
	peerID     string
	pc         engine.PeerConnection
	iceServers []webrtc.ICEServer
	timeout    time.Duration
	bitrate    engine.BitrateRange
	createdAt  time.Time

	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	state      State
	connected  bool
	candidates []api.IceCandidate
	streams    []*stream.MediaStream
	listeners  map[int]chan api.TrickleMessage
	nextID     int
}

func NewObserver(peerID string, pc engine.PeerConnection, opts ObserverOptions) *Observer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNegotiationTimeout
	}

	o := &Observer{
		peerID:     peerID,
		pc:         pc,
		iceServers: opts.IceServers,
		timeout:    opts.Timeout,
		bitrate:    opts.Bitrate,
		createdAt:  time.Now(),
		closed:     make(chan struct{}),
		listeners:  make(map[int]chan api.TrickleMessage),
	}

	if !opts.Bitrate.IsZero() {
		pc.SetBitrate(opts.Bitrate)
	}
	pc.OnICECandidate(o.onIceCandidate)
	pc.OnConnectionStateChange(o.onConnectionStateChange)

	return o
}

func (o *Observer) PeerID() string {
	return o.peerID
}

func (o *Observer) CreatedAt() time.Time {
	return o.createdAt
}

func (o *Observer) IceServers() []webrtc.ICEServer {
	return o.iceServers
}

func (o *Observer) Bitrate() engine.BitrateRange {
	return o.bitrate
}

func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Observer) transition(from, to State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateClosed {
		return ErrClosed
	}
	if o.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidState, from, to, o.state)
	}
	o.state = to
	return nil
}

// CreateOffer asks the engine for an offer and waits for it.
func (o *Observer) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	if err := o.transition(StateCreated, StateOfferPending); err != nil {
		return nil, err
	}

	start := time.Now()
	c := newCell()
	o.pc.CreateOffer(c.set)

	desc, err := c.wait(ctx, o.timeout, o.closed)
	if err != nil {
		return nil, err
	}
	if err := o.transition(StateOfferPending, StateHasLocalOffer); err != nil {
		return nil, err
	}
	metrics.NegotiationDuration.WithLabelValues("offerer").Observe(time.Since(start).Seconds())
	return desc, nil
}

// ApplyRemoteOffer sets the caller's offer and waits until the engine accepts it.
func (o *Observer) ApplyRemoteOffer(ctx context.Context, desc webrtc.SessionDescription) error {
	if desc.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: %s", ErrUnexpectedType, desc.Type)
	}
	if err := o.transition(StateCreated, StateAnswerPending); err != nil {
		return err
	}

	c := newCell()
	o.pc.SetRemoteDescription(desc, func(err error) { c.set(nil, err) })

	if _, err := c.wait(ctx, o.timeout, o.closed); err != nil {
		return err
	}
	return o.transition(StateAnswerPending, StateHasRemoteOffer)
}

// CreateAnswer requires an applied remote offer.
func (o *Observer) CreateAnswer(ctx context.Context) (*webrtc.SessionDescription, error) {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	if state == StateClosed {
		return nil, ErrClosed
	}
	if state != StateHasRemoteOffer {
		return nil, fmt.Errorf("%w: answer from %s", ErrInvalidState, state)
	}

	start := time.Now()
	c := newCell()
	o.pc.CreateAnswer(c.set)

	desc, err := c.wait(ctx, o.timeout, o.closed)
	if err != nil {
		return nil, err
	}
	if err := o.transition(StateHasRemoteOffer, StateHasLocalAnswer); err != nil {
		return nil, err
	}
	metrics.NegotiationDuration.WithLabelValues("answerer").Observe(time.Since(start).Seconds())
	return desc, nil
}

// SetRemoteAnswer applies the answer to our offer without waiting for it.
func (o *Observer) SetRemoteAnswer(desc webrtc.SessionDescription) error {
	if desc.Type != webrtc.SDPTypeAnswer && desc.Type != webrtc.SDPTypePranswer {
		return fmt.Errorf("%w: %s", ErrUnexpectedType, desc.Type)
	}

	o.mu.Lock()
	state := o.state
	o.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if state != StateHasLocalOffer {
		return fmt.Errorf("%w: answer applied in %s", ErrInvalidState, state)
	}

	o.pc.SetRemoteDescription(desc, func(err error) {
		if err != nil {
			metrics.PeerConnectionFailuresTotal.WithLabelValues("set_answer").Inc()
			slog.Error("can not set remote answer", "peer", o.peerID, "error", err)
		}
	})
	return nil
}

func (o *Observer) AddIceCandidate(c webrtc.ICECandidateInit) error {
	select {
	case <-o.closed:
		return ErrClosed
	default:
	}

	if err := o.pc.AddICECandidate(c); err != nil {
		slog.Warn("can not add ice candidate", "peer", o.peerID, "candidate", c.Candidate, "error", err)
		return err
	}
	metrics.ICECandidatesTotal.WithLabelValues("remote").Inc()
	return nil
}

func (o *Observer) onIceCandidate(init webrtc.ICECandidateInit) {
	c := api.ToApiCandidate(init)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateClosed {
		return
	}
	o.candidates = append(o.candidates, c)
	o.broadcastLocked(api.TrickleMessage{Event: api.TrickleEventServerIce, Ice: &c})
	metrics.ICECandidatesTotal.WithLabelValues("local").Inc()
}

func (o *Observer) onConnectionStateChange(state webrtc.PeerConnectionState) {
	metrics.ConnectionState.WithLabelValues(state.String()).Inc()
	slog.Info("peer connection state changed", "peer", o.peerID, "state", state.String())

	o.mu.Lock()
	defer o.mu.Unlock()
	if state == webrtc.PeerConnectionStateConnected {
		o.connected = true
	}
	if o.state != StateClosed {
		o.broadcastLocked(api.TrickleMessage{Event: api.TrickleEventState, State: state.String()})
	}
}

// broadcastLocked never blocks the engine; a listener whose buffer is full
// misses msg and has to fall back to the candidate list.
func (o *Observer) broadcastLocked(msg api.TrickleMessage) {
	for id, ch := range o.listeners {
		select {
		case ch <- msg:
		default:
			metrics.TrickleEventsDroppedTotal.WithLabelValues(string(msg.Event)).Inc()
			slog.Debug("trickle event dropped", "peer", o.peerID, "listener", id, "event", msg.Event)
		}
	}
}

// Subscribe returns a channel of trickle events: every candidate gathered so far
// followed by new candidates and state changes. The channel is closed when the
// observer closes or cancel is called.
func (o *Observer) Subscribe() (<-chan api.TrickleMessage, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan api.TrickleMessage, len(o.candidates)+trickleBuffer)
	if o.state == StateClosed {
		close(ch)
		return ch, func() {}
	}

	for i := range o.candidates {
		c := o.candidates[i]
		ch <- api.TrickleMessage{Event: api.TrickleEventServerIce, Ice: &c}
	}

	id := o.nextID
	o.nextID++
	o.listeners[id] = ch

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if l, ok := o.listeners[id]; ok {
			delete(o.listeners, id)
			close(l)
		}
	}
	return ch, cancel
}

// IceCandidates returns the gathered local candidates in discovery order.
func (o *Observer) IceCandidates() []api.IceCandidate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]api.IceCandidate{}, o.candidates...)
}

// AttachStream adds every track of s to the connection and records its label.
func (o *Observer) AttachStream(s *stream.MediaStream) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateClosed {
		return ErrClosed
	}
	for _, held := range o.streams {
		if held == s {
			return nil
		}
	}

	for _, track := range s.Tracks() {
		if err := o.pc.AddTrack(track); err != nil {
			return fmt.Errorf("can not add track %s: %w", track.ID(), err)
		}
	}
	o.streams = append(o.streams, s)
	return nil
}

func (o *Observer) Streams() []*stream.MediaStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*stream.MediaStream(nil), o.streams...)
}

func (o *Observer) StreamLabels() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	labels := make([]string, 0, len(o.streams))
	for _, s := range o.streams {
		labels = append(labels, s.Label())
	}
	return labels
}

func (o *Observer) LocalDescription() *webrtc.SessionDescription {
	return o.pc.LocalDescription()
}

func (o *Observer) ConnectionState() webrtc.PeerConnectionState {
	return o.pc.ConnectionState()
}

// Connected reports whether the connection has ever reached the connected state.
func (o *Observer) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

func (o *Observer) Stats() webrtc.StatsReport {
	return o.pc.Stats()
}

// Close unblocks pending negotiation waits, ends trickle subscriptions and
// closes the engine connection. It is safe to call more than once.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.state = StateClosed
		for id, ch := range o.listeners {
			delete(o.listeners, id)
			close(ch)
		}
		o.mu.Unlock()

		close(o.closed)
		if err := o.pc.Close(); err != nil {
			slog.Warn("can not close peer connection", "peer", o.peerID, "error", err)
		}
	})
}
