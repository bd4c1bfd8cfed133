package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/pion/webrtc/v4"
)

// ErrMalformedMessage is returned when a signalling payload misses a required field
// or carries a value of the wrong type.
var ErrMalformedMessage = errors.New("malformed signalling message")

// SessionDescription is the wire form of an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// IceCandidate is the wire form of a single ICE candidate.
type IceCandidate struct {
	SdpMid        string `json:"sdpMid"`
	SdpMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// CallRequest is the body of a call: the remote offer plus optional ICE servers
// that override the configured ones for this call only.
type CallRequest struct {
	Description SessionDescription
	StunURL     string
	TurnURLs    []string
}

type rawSessionDescription struct {
	Type *string `json:"type"`
	SDP  *string `json:"sdp"`
}

type rawIceCandidate struct {
	SdpMid        *string `json:"sdpMid"`
	SdpMLineIndex *int    `json:"sdpMLineIndex"`
	Candidate     *string `json:"candidate"`
}

type rawCallRequest struct {
	rawSessionDescription
	StunURL *string         `json:"stunurl"`
	TurnURL json.RawMessage `json:"turnurl"`
}

func ParseSessionDescription(body []byte) (SessionDescription, error) {
	var raw rawSessionDescription
	if err := json.Unmarshal(body, &raw); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return raw.toDescription()
}

func (r rawSessionDescription) toDescription() (SessionDescription, error) {
	if r.Type == nil || r.SDP == nil {
		return SessionDescription{}, fmt.Errorf("%w: type and sdp are required", ErrMalformedMessage)
	}
	return SessionDescription{Type: *r.Type, SDP: *r.SDP}, nil
}

func ParseIceCandidate(body []byte) (IceCandidate, error) {
	var raw rawIceCandidate
	if err := json.Unmarshal(body, &raw); err != nil {
		return IceCandidate{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if raw.SdpMid == nil || raw.SdpMLineIndex == nil || raw.Candidate == nil {
		return IceCandidate{}, fmt.Errorf("%w: sdpMid, sdpMLineIndex and candidate are required", ErrMalformedMessage)
	}
	return IceCandidate{
		SdpMid:        *raw.SdpMid,
		SdpMLineIndex: *raw.SdpMLineIndex,
		Candidate:     *raw.Candidate,
	}, nil
}

// ParseCallRequest decodes a call body. A turnurl that is not an array of strings is
// ignored rather than rejected.
func ParseCallRequest(body []byte) (CallRequest, error) {
	var raw rawCallRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return CallRequest{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	desc, err := raw.toDescription()
	if err != nil {
		return CallRequest{}, err
	}

	req := CallRequest{Description: desc}
	if raw.StunURL != nil {
		req.StunURL = *raw.StunURL
	}
	if len(raw.TurnURL) > 0 {
		var turns []string
		if err := json.Unmarshal(raw.TurnURL, &turns); err == nil {
			req.TurnURLs = turns
		}
	}
	return req, nil
}

// ToWebRTC validates the description type and converts it to the engine form.
func (d SessionDescription) ToWebRTC() (webrtc.SessionDescription, error) {
	sdpType := webrtc.NewSDPType(d.Type)
	if sdpType == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: unknown sdp type %q", ErrMalformedMessage, d.Type)
	}
	if d.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty sdp", ErrMalformedMessage)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: d.SDP}, nil
}

func (c IceCandidate) ToWebRTC() (webrtc.ICECandidateInit, error) {
	if c.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: empty candidate", ErrMalformedMessage)
	}
	if c.SdpMLineIndex < 0 || c.SdpMLineIndex > math.MaxUint16 {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: sdpMLineIndex %d out of range", ErrMalformedMessage, c.SdpMLineIndex)
	}
	mid := c.SdpMid
	index := uint16(c.SdpMLineIndex)
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}, nil
}

// TrickleEvent names a message exchanged on the candidate websocket.
type TrickleEvent string

const (
	TrickleEventServerIce = TrickleEvent("server_ice")
	TrickleEventClientIce = TrickleEvent("client_ice")
	TrickleEventState     = TrickleEvent("state")
	TrickleEventHangUp    = TrickleEvent("hangup")
	TrickleEventPing      = TrickleEvent("ping")
	TrickleEventPong      = TrickleEvent("pong")
)

type TrickleMessage struct {
	Event TrickleEvent  `json:"event"`
	Ice   *IceCandidate `json:"ice,omitempty"`
	State string        `json:"state,omitempty"`
}
