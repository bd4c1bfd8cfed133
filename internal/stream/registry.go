package stream

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/metrics"
)

// TrackFactory produces the tracks of a new stream. A nil track with a nil
// error means the kind is not available.
type TrackFactory interface {
	NewVideoTrack(label, sourceURL string, opts engine.TrackOptions) (engine.Track, error)
	NewAudioTrack(label, audioURL string) (engine.Track, error)
}

// Holder is anything that keeps streams attached, normally a peer connection.
type Holder interface {
	StreamLabels() []string
}

type Registry struct {
	factory TrackFactory

	mu      sync.Mutex
	streams map[string]*MediaStream
}

func NewRegistry(factory TrackFactory) *Registry {
	return &Registry{
		factory: factory,
		streams: make(map[string]*MediaStream),
	}
}

// GetOrCreate returns the stream registered for sourceURL's label, creating it
// when missing. Track failures are logged and the stream is registered anyway.
func (r *Registry) GetOrCreate(sourceURL, audioURL string, opts engine.TrackOptions) *MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(sourceURL, audioURL, opts)
}

// Attach runs attach on the stream for sourceURL while the registry is locked,
// so ReleaseIfUnused never sees a stream that is half attached.
func (r *Registry) Attach(sourceURL, audioURL string, opts engine.TrackOptions, attach func(*MediaStream) error) (*MediaStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(sourceURL, audioURL, opts)
	if err := attach(s); err != nil {
		return s, err
	}
	return s, nil
}

func (r *Registry) getOrCreateLocked(sourceURL, audioURL string, opts engine.TrackOptions) *MediaStream {
	label := Label(sourceURL)
	if s, ok := r.streams[label]; ok {
		return s
	}

	s := NewMediaStream(label)

	if video, err := r.factory.NewVideoTrack(label, sourceURL, opts); err != nil {
		slog.Error("can not create video track", "stream", label, "source", sourceURL, "error", err)
	} else if video != nil {
		s.AddTrack(video)
	}

	if audioURL != "" {
		if audio, err := r.factory.NewAudioTrack(label, audioURL); err != nil {
			slog.Error("can not create audio track", "stream", label, "source", audioURL, "error", err)
		} else if audio != nil {
			s.AddTrack(audio)
		}
	}

	r.streams[label] = s
	metrics.ActiveStreams.Set(float64(len(r.streams)))
	slog.Info("stream created", "stream", label, "video", len(s.VideoTracks()), "audio", len(s.AudioTracks()))
	return s
}

// ReleaseIfUnused removes label's stream when no holder references it and stops
// its tracks. holders must list the active holders only, so call it after the
// departing holder has been unregistered.
func (r *Registry) ReleaseIfUnused(label string, holders func() []Holder) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[label]
	if !ok {
		return false
	}

	for _, h := range holders() {
		if slices.Contains(h.StreamLabels(), label) {
			return false
		}
	}

	delete(r.streams, label)
	metrics.ActiveStreams.Set(float64(len(r.streams)))
	s.release()
	slog.Info("stream released", "stream", label)
	return true
}

func (r *Registry) Get(label string) (*MediaStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[label]
	return s, ok
}

func (r *Registry) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels := make([]string, 0, len(r.streams))
	for label := range r.streams {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Close releases every stream regardless of holders.
func (r *Registry) Close() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]*MediaStream)
	metrics.ActiveStreams.Set(0)
	r.mu.Unlock()

	for _, s := range streams {
		s.release()
	}
}
