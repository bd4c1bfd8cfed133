package engine

import (
	"github.com/pion/sdp/v3"
)

// ApplyBandwidth rewrites the bandwidth lines of every video section to
// advertise r.Max. Other sections are left untouched.
func ApplyBandwidth(description string, r BitrateRange) (string, error) {
	if r.Max <= 0 {
		return description, nil
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(description)); err != nil {
		return "", err
	}

	for _, m := range parsed.MediaDescriptions {
		if m.MediaName.Media != "video" {
			continue
		}
		kept := m.Bandwidth[:0]
		for _, bw := range m.Bandwidth {
			if bw.Type != "AS" && bw.Type != "TIAS" {
				kept = append(kept, bw)
			}
		}
		m.Bandwidth = append(kept,
			sdp.Bandwidth{Type: "AS", Bandwidth: uint64(r.Max / 1000)},
			sdp.Bandwidth{Type: "TIAS", Bandwidth: uint64(r.Max)},
		)
	}

	out, err := parsed.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
