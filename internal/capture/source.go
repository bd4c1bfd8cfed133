// Package capture feeds frames published on a message queue into video tracks.
//
// A Source owns one goroutine that receives base64 encoded images from a
// Subscriber, converts them to 4:2:0 and hands them to its Sink. The goroutine
// exists only between Start and Stop, and Stop waits for it to exit.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
)

const DefaultReceiveTimeout = 100 * time.Millisecond

type Options struct {
	// Name labels logs and metrics; defaults to Address.
	Name           string
	Address        string
	ReceiveTimeout time.Duration
	// Dial defaults to Dial.
	Dial DialFunc
}

// SourceStats are the counters of one source since it was created.
type SourceStats struct {
	Name            string
	Address         string
	State           string
	Received        uint64
	Delivered       uint64
	Dropped         uint64
	LastTimestampMs int64
}

// Source implements video.Source over a frame Subscriber.
type Source struct {
	opts Options

	mu     sync.Mutex
	state  video.CaptureState
	format video.CaptureFormat
	sink   video.Sink
	cancel context.CancelFunc
	done   chan struct{}

	received  atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	lastTs    atomic.Int64
}

var _ video.Source = (*Source)(nil)

func NewSource(opts Options) *Source {
	if opts.Name == "" {
		opts.Name = opts.Address
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	return &Source{opts: opts}
}

// Start records format and launches the receive loop. It reports Running without
// waiting for the transport to connect.
func (s *Source) Start(format video.CaptureFormat) video.CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == video.CaptureRunning {
		return s.state
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.format = format
	s.state = video.CaptureRunning
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	metrics.ActiveCaptureSources.Inc()
	slog.Info("capture source started", "source", s.opts.Name, "address", s.opts.Address)

	return s.state
}

// Stop ends the receive loop and returns once it has exited, so no frame reaches
// the sink afterwards.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.state != video.CaptureRunning {
		s.mu.Unlock()
		return
	}
	s.state = video.CaptureStopped
	s.format = video.CaptureFormat{}
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done

	metrics.ActiveCaptureSources.Dec()
	slog.Info("capture source stopped", "source", s.opts.Name)
}

func (s *Source) State() video.CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Source) IsRunning() bool {
	return s.State() == video.CaptureRunning
}

// PreferredFormats accepts anything; conversion happens here.
func (s *Source) PreferredFormats() ([]video.PixelFormat, bool) {
	return []video.PixelFormat{video.PixelFormatI420, video.PixelFormatAny}, true
}

func (s *Source) IsScreencast() bool {
	return false
}

func (s *Source) SetSink(sink video.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *Source) Format() video.CaptureFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	return SourceStats{
		Name:            s.opts.Name,
		Address:         s.opts.Address,
		State:           state.String(),
		Received:        s.received.Load(),
		Delivered:       s.delivered.Load(),
		Dropped:         s.dropped.Load(),
		LastTimestampMs: s.lastTs.Load(),
	}
}

func (s *Source) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	start := time.Now()
	s.lastTs.Store(0)

	var sub Subscriber
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()

	for ctx.Err() == nil {
		if sub == nil {
			var err error
			sub, err = s.opts.Dial(ctx, s.opts.Address)
			if err != nil {
				sub = nil
				if ctx.Err() == nil {
					slog.Warn("can not connect frame subscriber", "source", s.opts.Name, "error", err)
				}
				s.pause(ctx)
				continue
			}
			slog.Debug("frame subscriber connected", "source", s.opts.Name)
		}

		payload, err := sub.Receive(ctx, s.opts.ReceiveTimeout)
		switch {
		case err == nil:
			s.handle(ctx, payload, start)
		case errors.Is(err, ErrNoMessage):
		case ctx.Err() != nil:
			return
		default:
			slog.Warn("frame receive failed", "source", s.opts.Name, "error", err)
			s.pause(ctx)
		}
	}
}

func (s *Source) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(s.opts.ReceiveTimeout):
	}
}

func (s *Source) handle(ctx context.Context, payload []byte, start time.Time) {
	s.received.Add(1)
	metrics.FramesReceivedTotal.WithLabelValues(s.opts.Name).Inc()

	began := time.Now()
	img, err := DecodeFrame(payload)
	metrics.FrameDecodeDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		s.dropped.Add(1)
		metrics.FramesDroppedTotal.WithLabelValues(s.opts.Name, dropReason(err)).Inc()
		slog.Debug("frame dropped", "source", s.opts.Name, "error", err)
		return
	}

	ts := time.Since(start).Milliseconds()
	if last := s.lastTs.Load(); ts < last {
		ts = last
	}
	s.lastTs.Store(ts)

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink == nil || ctx.Err() != nil {
		return
	}

	sink.OnFrame(&video.Frame{
		Image:           img,
		Width:           img.Rect.Dx(),
		Height:          img.Rect.Dy(),
		TimestampMicros: ts * 1000,
	})
	s.delivered.Add(1)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrBase64):
		return "base64"
	case errors.Is(err, ErrEmptyImage):
		return "empty"
	default:
		return "image"
	}
}
