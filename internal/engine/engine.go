// Package engine is the boundary to the media engine: peer connections with
// callback based negotiation, and video tracks fed by capture sources.
package engine

import (
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/webrtc/v4"
)

// DescriptionCallback receives the local description once it is set, or the
// error that prevented it. It runs on an engine goroutine.
type DescriptionCallback func(desc *webrtc.SessionDescription, err error)

type PeerConnection interface {
	CreateOffer(cb DescriptionCallback)
	CreateAnswer(cb DescriptionCallback)
	SetRemoteDescription(desc webrtc.SessionDescription, cb func(error))
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track Track) error

	// OnICECandidate is called for every gathered local candidate.
	OnICECandidate(f func(webrtc.ICECandidateInit))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))

	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	ConnectionState() webrtc.PeerConnectionState

	SetBitrate(r BitrateRange)
	Stats() webrtc.StatsReport
	Close() error
}

type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	StreamID() string
	// Stop releases the track's source. Tracks are not reusable afterwards.
	Stop()
}

type TrackOptions struct {
	Bitrate BitrateRange
}

type Engine interface {
	NewPeerConnection(cfg webrtc.Configuration) (PeerConnection, error)
	NewVideoTrack(label string, source video.Source, opts TrackOptions) (Track, error)
}

// BitrateRange is in bits per second. The zero value means unset.
type BitrateRange struct {
	Min   int `json:"min"`
	Start int `json:"start"`
	Max   int `json:"max"`
}

// BitrateFromTarget spans half to double of target.
func BitrateFromTarget(target int) BitrateRange {
	if target <= 0 {
		return BitrateRange{}
	}
	return BitrateRange{Min: target / 2, Start: target, Max: target * 2}
}

func (r BitrateRange) IsZero() bool {
	return r == BitrateRange{}
}
