package api

import (
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/capture"
	"github.com/pion/webrtc/v4"
)

func ToApiCaptureStats(stats []capture.SourceStats) []CaptureStats {
	if len(stats) == 0 {
		return nil
	}
	out := make([]CaptureStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, CaptureStats{
			Name:            s.Name,
			Address:         s.Address,
			State:           s.State,
			Received:        s.Received,
			Delivered:       s.Delivered,
			Dropped:         s.Dropped,
			LastTimestampMs: s.LastTimestampMs,
		})
	}
	return out
}

func ToApiDescription(desc *webrtc.SessionDescription) *SessionDescription {
	if desc == nil {
		return nil
	}
	return &SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func ToApiCandidate(init webrtc.ICECandidateInit) IceCandidate {
	c := IceCandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SdpMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SdpMLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
