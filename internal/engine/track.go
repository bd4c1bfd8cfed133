package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const defaultFrameDuration = time.Second / 30

// videoTrack encodes frames from its source and writes them to a static sample
// track that any number of peer connections may share.
type videoTrack struct {
	local    *webrtc.TrackLocalStaticSample
	source   video.Source
	encoders video.EncoderFactory
	bitrate  int

	mu      sync.Mutex
	enc     video.Encoder
	width   int
	height  int
	lastTs  int64
	stopped bool

	keyFrame atomic.Bool
	stopOnce sync.Once
}

var (
	_ Track      = (*videoTrack)(nil)
	_ video.Sink = (*videoTrack)(nil)
)

// NewVideoTrack wraps source in a track whose stream id is label and starts it.
func (e *PionEngine) NewVideoTrack(label string, source video.Source, opts TrackOptions) (Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(e.videoCodec, "video_"+uuid.NewString(), label)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	t := &videoTrack{
		local:    local,
		source:   source,
		encoders: e.encoders,
		bitrate:  opts.Bitrate.Start,
	}

	source.SetSink(t)
	if state := source.Start(video.CaptureFormat{PixelFormat: video.PixelFormatI420}); state != video.CaptureRunning {
		source.SetSink(nil)
		return nil, fmt.Errorf("capture source for %s did not start", label)
	}

	return t, nil
}

func (t *videoTrack) ID() string                { return t.local.ID() }
func (t *videoTrack) StreamID() string          { return t.local.StreamID() }
func (t *videoTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeVideo }

// Source is the capture source feeding the track.
func (t *videoTrack) Source() video.Source {
	return t.source
}

func (t *videoTrack) RequestKeyFrame() {
	t.keyFrame.Store(true)
}

func (t *videoTrack) OnFrame(frame *video.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.encoders == nil {
		metrics.FramesDroppedTotal.WithLabelValues(t.StreamID(), "encode").Inc()
		return
	}

	if t.enc == nil || frame.Width != t.width || frame.Height != t.height {
		if t.enc != nil {
			_ = t.enc.Close()
			t.enc = nil
		}
		enc, err := t.encoders(frame.Width, frame.Height, t.bitrate)
		if err != nil {
			metrics.FramesDroppedTotal.WithLabelValues(t.StreamID(), "encode").Inc()
			slog.Error("can not create encoder", "stream", t.StreamID(), "error", err)
			return
		}
		t.enc, t.width, t.height = enc, frame.Width, frame.Height
	}

	if t.keyFrame.Swap(false) {
		t.enc.ForceKeyFrame()
	}

	data, err := t.enc.Encode(frame)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(t.StreamID(), "encode").Inc()
		slog.Warn("encode failed", "stream", t.StreamID(), "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	duration := defaultFrameDuration
	if t.lastTs > 0 && frame.TimestampMicros > t.lastTs {
		duration = time.Duration(frame.TimestampMicros-t.lastTs) * time.Microsecond
	}
	t.lastTs = frame.TimestampMicros

	if err := t.local.WriteSample(media.Sample{Data: data, Duration: duration}); err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(t.StreamID(), "write").Inc()
		slog.Debug("write sample failed", "stream", t.StreamID(), "error", err)
		return
	}
	metrics.EncodedBytesTotal.Add(float64(len(data)))
}

// Stop stops the source first so that OnFrame is no longer called, then
// releases the encoder.
func (t *videoTrack) Stop() {
	t.stopOnce.Do(func() {
		t.source.Stop()
		t.source.SetSink(nil)

		t.mu.Lock()
		defer t.mu.Unlock()
		t.stopped = true
		if t.enc != nil {
			_ = t.enc.Close()
			t.enc = nil
		}
	})
}
