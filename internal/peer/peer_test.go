package peer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/api"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine/enginetest"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/stream"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type trackFactory struct {
	engine *enginetest.Engine
}

func (f trackFactory) NewVideoTrack(label, sourceURL string, opts engine.TrackOptions) (engine.Track, error) {
	return f.engine.NewVideoTrack(label, nil, opts)
}

func (f trackFactory) NewAudioTrack(label, audioURL string) (engine.Track, error) {
	return nil, nil
}

func newTestManager(t *testing.T, behavior enginetest.Behavior, timeout time.Duration) (*Manager, *enginetest.Engine, *stream.Registry) {
	t.Helper()
	e := enginetest.New()
	e.Behavior = behavior
	registry := stream.NewRegistry(trackFactory{engine: e})
	m := NewManager(e, registry, Config{
		StunURL:            "stun.example.com:3478",
		TurnURL:            "alice:secret@turn.example.com:3478",
		NegotiationTimeout: timeout,
		VideoDevices:       func() []string { return []string{"yard", "door"} },
	})
	t.Cleanup(m.Close)
	return m, e, registry
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func candidate(i int) webrtc.ICECandidateInit {
	mid := "0"
	index := uint16(0)
	return webrtc.ICECandidateInit{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2122260223 192.168.1.2 %d typ host", i, 50000+i),
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		raw  string
		want engine.BitrateRange
	}{
		{"", engine.BitrateRange{}},
		{"bitrate=1000000", engine.BitrateRange{Min: 500000, Start: 1000000, Max: 2000000}},
		{"?rtptransport=tcp&bitrate=300", engine.BitrateRange{Min: 150, Start: 300, Max: 600}},
		{"bitrate=abc", engine.BitrateRange{}},
		{"bitrate=-5", engine.BitrateRange{}},
		{"timeout=60", engine.BitrateRange{}},
	}
	for _, tt := range tests {
		if got := ParseOptions(tt.raw).Bitrate; got != tt.want {
			t.Errorf("ParseOptions(%q).Bitrate = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestCreateOffer(t *testing.T) {
	m, e, registry := newTestManager(t, enginetest.Complete, time.Second)

	desc, err := m.CreateOffer(context.Background(), "peer1", "my cam", "", "bitrate=500000")
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if desc == nil || desc.Type != "offer" || desc.SDP == "" {
		t.Fatalf("CreateOffer() = %+v, want an offer", desc)
	}

	o, ok := m.Observer("peer1")
	if !ok {
		t.Fatal("peer1 not registered after CreateOffer")
	}
	if got := o.State(); got != StateHasLocalOffer {
		t.Errorf("State() = %s, want %s", got, StateHasLocalOffer)
	}
	if _, ok := m.Observer("peer2"); ok {
		t.Error("peer2 registered without a request")
	}

	if _, ok := registry.Get("mycam"); !ok {
		t.Error("stream mycam not registered")
	}

	pc := e.PeerConnections()[0]
	if got := len(pc.Tracks()); got != 1 {
		t.Errorf("connection has %d tracks, want 1", got)
	}
	if got := pc.Bitrate(); got != engine.BitrateFromTarget(500000) {
		t.Errorf("Bitrate() = %+v, want %+v", got, engine.BitrateFromTarget(500000))
	}
	if got := len(pc.Config.ICEServers); got != 2 {
		t.Errorf("connection has %d ice servers, want 2", got)
	}
	if got := e.Tracks()[0].Options.Bitrate.Start; got != 500000 {
		t.Errorf("track bitrate = %d, want 500000", got)
	}
}

func TestCreateOfferTimeout(t *testing.T) {
	m, e, registry := newTestManager(t, enginetest.Hang, 50*time.Millisecond)

	start := time.Now()
	desc, err := m.CreateOffer(context.Background(), "peer1", "cam", "", "")
	if !errors.Is(err, ErrNegotiationTimeout) {
		t.Fatalf("CreateOffer() error = %v, want ErrNegotiationTimeout", err)
	}
	if desc != nil {
		t.Errorf("CreateOffer() = %+v, want nil", desc)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("CreateOffer() took %s", elapsed)
	}

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed negotiation", m.Len())
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 after failed negotiation", registry.Len())
	}
	if !e.PeerConnections()[0].Closed() {
		t.Error("failed connection was not closed")
	}
}

func TestCreateOfferEngineFailure(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Fail, time.Second)

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); !errors.Is(err, enginetest.ErrNegotiation) {
		t.Errorf("CreateOffer() error = %v, want ErrNegotiation", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}

	e.FailConnections = true
	if _, err := m.CreateOffer(context.Background(), "peer2", "cam", "", ""); err == nil {
		t.Error("CreateOffer() with failing engine succeeded")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestDuplicatePeerRejected(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	first, _ := m.Observer("peer1")

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); !errors.Is(err, ErrPeerExists) {
		t.Errorf("second CreateOffer() error = %v, want ErrPeerExists", err)
	}
	if o, _ := m.Observer("peer1"); o != first {
		t.Error("existing call was replaced")
	}
	if e.PeerConnections()[0].Closed() {
		t.Error("existing connection was closed")
	}
}

func TestSharedStreamReleasedWithLastPeer(t *testing.T) {
	m, e, registry := newTestManager(t, enginetest.Complete, time.Second)
	ctx := context.Background()

	if _, err := m.CreateOffer(ctx, "a", "my video ", "", ""); err != nil {
		t.Fatalf("CreateOffer(a) error = %v", err)
	}
	if _, err := m.CreateOffer(ctx, "b", "myvideo", "", ""); err != nil {
		t.Fatalf("CreateOffer(b) error = %v", err)
	}

	if got := len(e.Tracks()); got != 1 {
		t.Fatalf("created %d tracks, want 1 shared track", got)
	}
	track := e.Tracks()[0]

	if !m.HangUp("a") {
		t.Fatal("HangUp(a) = false")
	}
	if _, ok := registry.Get("myvideo"); !ok {
		t.Fatal("stream released while peer b still holds it")
	}
	if track.Stopped() {
		t.Fatal("shared track stopped while peer b still holds it")
	}
	b, _ := m.Observer("b")
	if labels := b.StreamLabels(); len(labels) != 1 || labels[0] != "myvideo" {
		t.Errorf("b.StreamLabels() = %v, want [myvideo]", labels)
	}

	if !m.HangUp("b") {
		t.Fatal("HangUp(b) = false")
	}
	if _, ok := registry.Get("myvideo"); ok {
		t.Error("stream still registered after last peer hung up")
	}
	if !track.Stopped() {
		t.Error("track not stopped after last peer hung up")
	}
}

func TestAttachFailureReleasesStream(t *testing.T) {
	m, e, registry := newTestManager(t, enginetest.Complete, time.Second)
	e.FailAddTrack = true

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err == nil {
		t.Fatal("CreateOffer() with failing AddTrack succeeded")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0", registry.Len())
	}
	if tracks := e.Tracks(); len(tracks) != 1 || !tracks[0].Stopped() {
		t.Error("track of the abandoned stream was not stopped")
	}
}

func TestHangUpRacingAttachReleasesStream(t *testing.T) {
	tests := []struct {
		name string
		hook func(t *testing.T, m *Manager, e *enginetest.Engine)
	}{
		{
			// the peer is gone and closed before its stream is attached
			name: "closed before attach",
			hook: func(t *testing.T, m *Manager, e *enginetest.Engine) {
				e.BeforeNewVideoTrack = func() {
					go m.HangUp("peer1")
					waitFor(t, func() bool {
						conns := e.PeerConnections()
						return len(conns) == 1 && conns[0].Closed()
					})
				}
			},
		},
		{
			// the peer leaves the registry while its stream is being attached
			name: "attached while hanging up",
			hook: func(t *testing.T, m *Manager, e *enginetest.Engine) {
				e.BeforeAddTrack = func() {
					go m.HangUp("peer1")
					waitFor(t, func() bool { return m.Len() == 0 })
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, e, registry := newTestManager(t, enginetest.Complete, time.Second)
			tt.hook(t, m, e)

			_, _ = m.CreateOffer(context.Background(), "peer1", "cam", "", "")

			waitFor(t, func() bool { return registry.Len() == 0 })
			if m.Len() != 0 {
				t.Errorf("Len() = %d, want 0", m.Len())
			}
			tracks := e.Tracks()
			if len(tracks) != 1 {
				t.Fatalf("created %d tracks, want 1", len(tracks))
			}
			waitFor(t, tracks[0].Stopped)
		})
	}
}

func TestHangUpUnknownPeer(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Complete, time.Second)
	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	if m.HangUp("nobody") {
		t.Error("HangUp(nobody) = true, want false")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if m.HangUp("peer1") != true || m.HangUp("peer1") != false {
		t.Error("HangUp() is not idempotent")
	}
}

func TestHangUpDuringNegotiation(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Hang, time.Minute)

	errc := make(chan error, 1)
	go func() {
		_, err := m.CreateOffer(context.Background(), "peer1", "cam", "", "")
		errc <- err
	}()

	waitFor(t, func() bool {
		o, ok := m.Observer("peer1")
		return ok && o.State() == StateOfferPending
	})
	if !m.HangUp("peer1") {
		t.Fatal("HangUp() = false")
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrNegotiationTimeout) {
			t.Errorf("CreateOffer() error = %v, want ErrNegotiationTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CreateOffer() still blocked after HangUp")
	}
}

func TestCreateOfferContextCancel(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Hang, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.CreateOffer(ctx, "peer1", "cam", "", "")
	if !errors.Is(err, ErrNegotiationTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("CreateOffer() error = %v, want timeout caused by the context", err)
	}
}

func TestCall(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)

	req := api.CallRequest{
		Description: api.SessionDescription{Type: "offer", SDP: "v=0\r\n"},
		StunURL:     "stun.other.com:19302",
		TurnURLs:    []string{"u1:p1@turn1.com:3478", "u2:p2@turn2.com:3478"},
	}
	desc, err := m.Call(context.Background(), "callee", "cam", "", "", req)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if desc.Type != "answer" {
		t.Errorf("Call() type = %q, want answer", desc.Type)
	}

	o, _ := m.Observer("callee")
	if got := o.State(); got != StateHasLocalAnswer {
		t.Errorf("State() = %s, want %s", got, StateHasLocalAnswer)
	}

	pc := e.PeerConnections()[0]
	servers := pc.Config.ICEServers
	if len(servers) != 3 {
		t.Fatalf("connection has %d ice servers, want 3", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.other.com:19302" {
		t.Errorf("stun server = %v", servers[0].URLs)
	}
	if servers[2].URLs[0] != "turn:turn2.com:3478" || servers[2].Username != "u2" || servers[2].Credential != "p2" {
		t.Errorf("second turn server = %+v", servers[2])
	}
	if pc.RemoteDescription() == nil || pc.RemoteDescription().Type != webrtc.SDPTypeOffer {
		t.Error("remote offer was not applied")
	}
	if len(pc.Tracks()) != 1 {
		t.Errorf("connection has %d tracks, want 1", len(pc.Tracks()))
	}
}

func TestCallRejectsBadOffer(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)

	tests := []api.SessionDescription{
		{Type: "bogus", SDP: "v=0\r\n"},
		{Type: "offer", SDP: ""},
	}
	for _, desc := range tests {
		if _, err := m.Call(context.Background(), "callee", "cam", "", "", api.CallRequest{Description: desc}); !errors.Is(err, api.ErrMalformedMessage) {
			t.Errorf("Call(%+v) error = %v, want ErrMalformedMessage", desc, err)
		}
	}

	_, err := m.Call(context.Background(), "callee", "cam", "", "", api.CallRequest{Description: api.SessionDescription{Type: "answer", SDP: "v=0\r\n"}})
	if !errors.Is(err, ErrUnexpectedType) {
		t.Errorf("Call(answer) error = %v, want ErrUnexpectedType", err)
	}

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	for _, pc := range e.PeerConnections() {
		if !pc.Closed() {
			t.Error("connection for rejected call left open")
		}
	}
}

func TestSetAnswer(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)

	answer := api.SessionDescription{Type: "answer", SDP: "v=0\r\n"}
	if err := m.SetAnswer("nobody", answer); !errors.Is(err, ErrPeerNotFound) {
		t.Errorf("SetAnswer(nobody) error = %v, want ErrPeerNotFound", err)
	}

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if err := m.SetAnswer("peer1", api.SessionDescription{Type: "nope", SDP: "x"}); !errors.Is(err, api.ErrMalformedMessage) {
		t.Errorf("SetAnswer(malformed) error = %v, want ErrMalformedMessage", err)
	}
	if err := m.SetAnswer("peer1", answer); err != nil {
		t.Fatalf("SetAnswer() error = %v", err)
	}

	pc := e.PeerConnections()[0]
	waitFor(t, func() bool { return pc.RemoteDescription() != nil })
	if got := pc.RemoteDescription().Type; got != webrtc.SDPTypeAnswer {
		t.Errorf("remote description type = %s, want answer", got)
	}
}

func TestAddIceCandidate(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Complete, time.Second)

	c := api.IceCandidate{SdpMid: "0", SdpMLineIndex: 0, Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}
	if m.AddIceCandidate("nobody", c) {
		t.Error("AddIceCandidate(nobody) = true")
	}

	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if !m.AddIceCandidate("peer1", c) {
		t.Error("AddIceCandidate() = false")
	}
	if m.AddIceCandidate("peer1", api.IceCandidate{SdpMid: "0", Candidate: enginetest.BadCandidate}) {
		t.Error("AddIceCandidate(rejected by engine) = true")
	}
	if m.AddIceCandidate("peer1", api.IceCandidate{SdpMid: "0"}) {
		t.Error("AddIceCandidate(empty) = true")
	}
}

func TestConcurrentCandidates(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)
	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", ""); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	pc := e.PeerConnections()[0]

	const n = 64
	var wg sync.WaitGroup
	var failed sync.Map
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			pc.EmitCandidate(candidate(i))
		}(i)
		go func(i int) {
			defer wg.Done()
			if !m.AddIceCandidate("peer1", api.ToApiCandidate(candidate(i))) {
				failed.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	local, ok := m.IceCandidates("peer1")
	if !ok {
		t.Fatal("IceCandidates() ok = false")
	}
	if len(local) != n {
		t.Errorf("len(IceCandidates()) = %d, want %d", len(local), n)
	}
	if got := len(pc.RemoteCandidates()); got != n {
		t.Errorf("engine received %d remote candidates, want %d", got, n)
	}
	failed.Range(func(k, _ any) bool {
		t.Errorf("AddIceCandidate(%v) = false", k)
		return true
	})

	if _, ok := m.IceCandidates("nobody"); ok {
		t.Error("IceCandidates(nobody) ok = true")
	}
}

func TestObserverStateMachine(t *testing.T) {
	e := enginetest.New()
	pc, _ := e.NewPeerConnection(webrtc.Configuration{})
	o := NewObserver("p", pc, ObserverOptions{Timeout: time.Second})
	ctx := context.Background()

	if o.State() != StateCreated {
		t.Fatalf("State() = %s, want created", o.State())
	}
	if _, err := o.CreateAnswer(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("CreateAnswer() from created error = %v, want ErrInvalidState", err)
	}
	if err := o.SetRemoteAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetRemoteAnswer() from created error = %v, want ErrInvalidState", err)
	}

	if _, err := o.CreateOffer(ctx); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if _, err := o.CreateOffer(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second CreateOffer() error = %v, want ErrInvalidState", err)
	}
	if err := o.ApplyRemoteOffer(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApplyRemoteOffer() after offer error = %v, want ErrInvalidState", err)
	}

	o.Close()
	o.Close()
	if o.State() != StateClosed {
		t.Errorf("State() = %s, want closed", o.State())
	}
	if err := o.AddIceCandidate(candidate(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("AddIceCandidate() after close error = %v, want ErrClosed", err)
	}
	if _, err := o.CreateOffer(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateOffer() after close error = %v, want ErrClosed", err)
	}
}

func TestObserverSubscribe(t *testing.T) {
	e := enginetest.New()
	pcIface, _ := e.NewPeerConnection(webrtc.Configuration{})
	pc := pcIface.(*enginetest.PeerConnection)
	o := NewObserver("p", pc, ObserverOptions{})

	pc.EmitCandidate(candidate(1))
	events, cancel := o.Subscribe()
	defer cancel()

	pc.EmitCandidate(candidate(2))
	pc.SetState(webrtc.PeerConnectionStateConnected)

	var got []api.TrickleMessage
	for i := 0; i < 3; i++ {
		select {
		case msg := <-events:
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatalf("received %d events, want 3", len(got))
		}
	}

	if got[0].Event != api.TrickleEventServerIce || !strings.HasPrefix(got[0].Ice.Candidate, "candidate:1 ") {
		t.Errorf("first event = %+v, want replayed candidate 1", got[0])
	}
	if got[1].Event != api.TrickleEventServerIce || !strings.HasPrefix(got[1].Ice.Candidate, "candidate:2 ") {
		t.Errorf("second event = %+v, want candidate 2", got[1])
	}
	if got[2].Event != api.TrickleEventState || got[2].State != "connected" {
		t.Errorf("third event = %+v, want connected state", got[2])
	}
	if !o.Connected() {
		t.Error("Connected() = false after connected state")
	}

	o.Close()
	if _, ok := <-events; ok {
		t.Error("events channel still open after Close()")
	}
	cancel()
}

func TestObserverCountsDroppedTrickleEvents(t *testing.T) {
	e := enginetest.New()
	pcIface, _ := e.NewPeerConnection(webrtc.Configuration{})
	pc := pcIface.(*enginetest.PeerConnection)
	o := NewObserver("p", pc, ObserverOptions{})
	defer o.Close()

	dropped := metrics.TrickleEventsDroppedTotal.WithLabelValues(string(api.TrickleEventServerIce))
	before := testutil.ToFloat64(dropped)

	_, cancel := o.Subscribe()
	defer cancel()
	for i := 0; i < trickleBuffer+5; i++ {
		pc.EmitCandidate(candidate(i))
	}

	if got := testutil.ToFloat64(dropped) - before; got != 5 {
		t.Errorf("dropped events = %v, want 5", got)
	}
	if got := len(o.IceCandidates()); got != trickleBuffer+5 {
		t.Errorf("len(IceCandidates()) = %d, want %d", got, trickleBuffer+5)
	}
}

func TestPeerConnectionsInfo(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)
	if _, err := m.CreateOffer(context.Background(), "peer1", "cam", "", "bitrate=500000"); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	e.PeerConnections()[0].EmitCandidate(candidate(1))

	info := m.PeerConnections()
	details, ok := info["peer1"]
	if !ok {
		t.Fatalf("PeerConnections() = %v, want peer1", info)
	}
	if details.SDP == "" {
		t.Error("details.SDP is empty")
	}
	if details.IceCandidates != 1 {
		t.Errorf("details.IceCandidates = %d, want 1", details.IceCandidates)
	}
	wantServers := []string{"stun:stun.example.com:3478", "turn:turn.example.com:3478"}
	if !slices.Equal(details.IceServers, wantServers) {
		t.Errorf("details.IceServers = %v, want %v", details.IceServers, wantServers)
	}
	if details.Bitrate == nil || *details.Bitrate != (api.Bitrate{Min: 250000, Start: 500000, Max: 1000000}) {
		t.Errorf("details.Bitrate = %+v, want 250000/500000/1000000", details.Bitrate)
	}
	tracks, ok := details.Streams["cam"]
	if !ok || len(tracks.Video) != 1 || len(tracks.Audio) != 0 {
		t.Errorf("details.Streams = %+v, want cam with one video track", details.Streams)
	}

	if got := m.Streams(); len(got) != 1 || got[0] != "cam" {
		t.Errorf("Streams() = %v, want [cam]", got)
	}
}

func TestDevicesAndMedia(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Complete, time.Second)

	if got := m.VideoDevices(); len(got) != 2 || got[0] != "door" || got[1] != "yard" {
		t.Errorf("VideoDevices() = %v, want [door yard]", got)
	}
	if got := m.AudioDevices(); got == nil || len(got) != 0 {
		t.Errorf("AudioDevices() = %v, want empty list", got)
	}
	media := m.MediaList()
	if len(media) != 2 || media[0].Video != "door" || media[0].Audio != "" {
		t.Errorf("MediaList() = %+v", media)
	}
}

func TestIceServersAdvertisement(t *testing.T) {
	m, _, _ := newTestManager(t, enginetest.Complete, time.Second)

	got := m.IceServers("10.0.0.1")
	if len(got.IceServers) != 2 {
		t.Fatalf("IceServers() = %+v, want stun and turn", got)
	}
	if got.IceServers[0].URL != "stun:stun.example.com:3478" {
		t.Errorf("stun = %q", got.IceServers[0].URL)
	}
	if s := got.IceServers[1]; s.URL != "turn:turn.example.com:3478" || s.Username != "alice" || s.Credential != "secret" {
		t.Errorf("turn = %+v", s)
	}

	m.SetIceConfig("stun.new.com:1", "", "")
	got = m.IceServers("10.0.0.1")
	if len(got.IceServers) != 1 || got.IceServers[0].URL != "stun:stun.new.com:1" {
		t.Errorf("IceServers() after SetIceConfig = %+v", got)
	}
}

func TestReap(t *testing.T) {
	m, e, _ := newTestManager(t, enginetest.Complete, time.Second)
	ctx := context.Background()
	for _, id := range []string{"failed", "connected", "young"} {
		if _, err := m.CreateOffer(ctx, id, "cam", "", ""); err != nil {
			t.Fatalf("CreateOffer(%s) error = %v", id, err)
		}
	}
	pcs := e.PeerConnections()
	pcs[0].SetState(webrtc.PeerConnectionStateFailed)
	pcs[1].SetState(webrtc.PeerConnectionStateConnected)

	if got := m.Reap(time.Hour); got != 1 {
		t.Errorf("Reap() = %d, want 1", got)
	}
	if _, ok := m.Observer("failed"); ok {
		t.Error("failed peer not reaped")
	}

	if got := m.Reap(time.Nanosecond); got != 1 {
		t.Errorf("Reap(tiny) = %d, want 1", got)
	}
	if _, ok := m.Observer("connected"); !ok {
		t.Error("connected peer reaped")
	}
}
