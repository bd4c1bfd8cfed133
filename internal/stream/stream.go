// Package stream shares media streams between peer connections by label.
package stream

import (
	"strings"
	"sync"
	"unicode"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/capture"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/webrtc/v4"
)

// Label derives a stream label from a source identifier. SDP stream ids can not
// contain whitespace, so every whitespace rune is removed.
func Label(source string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, source)
}

// MediaStream groups the tracks published under one label.
type MediaStream struct {
	label string

	mu    sync.Mutex
	video []engine.Track
	audio []engine.Track
}

func NewMediaStream(label string) *MediaStream {
	return &MediaStream{label: label}
}

func (s *MediaStream) Label() string {
	return s.label
}

func (s *MediaStream) AddTrack(track engine.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if track.Kind() == webrtc.RTPCodecTypeAudio {
		s.audio = append(s.audio, track)
	} else {
		s.video = append(s.video, track)
	}
}

// RemoveTrack detaches track and reports whether it was attached. The track is
// not stopped.
func (s *MediaStream) RemoveTrack(track engine.Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := &s.video
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		list = &s.audio
	}
	for i, t := range *list {
		if t == track {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func (s *MediaStream) VideoTracks() []engine.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Track(nil), s.video...)
}

func (s *MediaStream) AudioTracks() []engine.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Track(nil), s.audio...)
}

// Tracks returns video tracks followed by audio tracks.
func (s *MediaStream) Tracks() []engine.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks := make([]engine.Track, 0, len(s.video)+len(s.audio))
	tracks = append(tracks, s.video...)
	return append(tracks, s.audio...)
}

type sourcedTrack interface {
	Source() video.Source
}

// CaptureStats reports the counters of the capture sources behind the video
// tracks. Tracks fed by anything else are skipped.
func (s *MediaStream) CaptureStats() []capture.SourceStats {
	var stats []capture.SourceStats
	for _, track := range s.VideoTracks() {
		sourced, ok := track.(sourcedTrack)
		if !ok {
			continue
		}
		if src, ok := sourced.Source().(*capture.Source); ok {
			stats = append(stats, src.Stats())
		}
	}
	return stats
}

// release removes and stops every track.
func (s *MediaStream) release() {
	for _, track := range s.Tracks() {
		s.RemoveTrack(track)
		track.Stop()
	}
}
