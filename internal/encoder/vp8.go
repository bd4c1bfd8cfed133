// Package encoder provides the libvpx backed VP8 encoder used by video tracks.
// It needs cgo and libvpx at build time.
package encoder

import (
	"errors"
	"image"
	"sync"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	mdvideo "github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

var errClosed = errors.New("encoder closed")

type readCloser interface {
	Read() ([]byte, func(), error)
	Close() error
}

type keyFrameForcer interface {
	ForceKeyFrame() error
}

type vp8Encoder struct {
	mu     sync.Mutex
	frames chan image.Image
	enc    readCloser
	closed bool
}

// NewVP8Factory returns a factory building VP8 encoders. defaultBitrate applies
// when the caller does not ask for one.
func NewVP8Factory(defaultBitrate, keyFrameInterval int) video.EncoderFactory {
	return func(width, height, bitrate int) (video.Encoder, error) {
		params, err := vpx.NewVP8Params()
		if err != nil {
			return nil, err
		}
		if bitrate <= 0 {
			bitrate = defaultBitrate
		}
		if bitrate > 0 {
			params.BitRate = bitrate
		}
		if keyFrameInterval > 0 {
			params.KeyFrameInterval = keyFrameInterval
		}

		e := &vp8Encoder{frames: make(chan image.Image, 1)}
		enc, err := params.BuildVideoEncoder(mdvideo.ReaderFunc(e.next), prop.Media{
			Video: prop.Video{
				Width:  width,
				Height: height,
			},
		})
		if err != nil {
			return nil, err
		}
		e.enc = enc
		return e, nil
	}
}

func (e *vp8Encoder) next() (image.Image, func(), error) {
	img, ok := <-e.frames
	if !ok {
		return nil, func() {}, errClosed
	}
	return img, func() {}, nil
}

// Encode feeds one frame through libvpx and returns a copy of the compressed bytes.
func (e *vp8Encoder) Encode(frame *video.Frame) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errClosed
	}

	e.frames <- frame.Image

	data, release, err := e.enc.Read()
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (e *vp8Encoder) ForceKeyFrame() {
	if kf, ok := e.enc.(keyFrameForcer); ok {
		_ = kf.ForceKeyFrame()
	}
}

func (e *vp8Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	close(e.frames)
	return e.enc.Close()
}
