package stream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/capture"
	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
)

var ErrUnknownSource = errors.New("unknown capture source")

// CaptureFactory makes video tracks backed by capture sources. A source URL is
// either a configured device name or a subscriber address such as
// tcp://host:port.
type CaptureFactory struct {
	Engine         engine.Engine
	Sources        func() map[string]string
	ReceiveTimeout time.Duration
	Dial           capture.DialFunc
}

func (f *CaptureFactory) resolve(sourceURL string) (string, error) {
	if f.Sources != nil {
		if address, ok := f.Sources()[sourceURL]; ok {
			return address, nil
		}
	}
	if strings.Contains(sourceURL, "://") {
		return sourceURL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, sourceURL)
}

func (f *CaptureFactory) NewVideoTrack(label, sourceURL string, opts engine.TrackOptions) (engine.Track, error) {
	address, err := f.resolve(sourceURL)
	if err != nil {
		return nil, err
	}

	source := capture.NewSource(capture.Options{
		Name:           label,
		Address:        address,
		ReceiveTimeout: f.ReceiveTimeout,
		Dial:           f.Dial,
	})
	return f.Engine.NewVideoTrack(label, source, opts)
}

// NewAudioTrack always returns no track; audio capture is not supported.
func (f *CaptureFactory) NewAudioTrack(label, audioURL string) (engine.Track, error) {
	return nil, nil
}
