package api

import "time"

// IceServer is one entry of the ICE server advertisement.
type IceServer struct {
	URL        string `json:"url"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

type IceServers struct {
	IceServers []IceServer `json:"iceServers"`
}

// StreamTracks lists the track ids of one media stream by kind.
type StreamTracks struct {
	Video   []string       `json:"video"`
	Audio   []string       `json:"audio"`
	Capture []CaptureStats `json:"capture,omitempty"`
}

// CaptureStats reports the frame counters of a capture source feeding a stream.
type CaptureStats struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	State           string `json:"state"`
	Received        uint64 `json:"received"`
	Delivered       uint64 `json:"delivered"`
	Dropped         uint64 `json:"dropped"`
	LastTimestampMs int64  `json:"lastTimestampMs"`
}

// PeerConnectionDetails describes one peer. Trickle is set by the HTTP layer
// while a candidate websocket is open for the peer.
type PeerConnectionDetails struct {
	SDP           string                  `json:"sdp"`
	State         string                  `json:"state"`
	Streams       map[string]StreamTracks `json:"streams"`
	IceServers    []string                `json:"iceServers"`
	IceCandidates int                     `json:"iceCandidates"`
	Bitrate       *Bitrate                `json:"bitrate,omitempty"`
	Trickle       bool                    `json:"trickle"`
	CreatedAt     time.Time               `json:"createdAt"`
	Stats         any                     `json:"stats,omitempty"`
}

// Bitrate is the negotiated bitrate range in bits per second.
type Bitrate struct {
	Min   int `json:"min"`
	Start int `json:"start"`
	Max   int `json:"max"`
}

// PeerConnectionInfo maps one peer id to its details, one object per peer.
type PeerConnectionInfo map[string]PeerConnectionDetails

type Media struct {
	Video string `json:"video"`
	Audio string `json:"audio,omitempty"`
}

type VersionInfo struct {
	Version string `json:"version"`
}
