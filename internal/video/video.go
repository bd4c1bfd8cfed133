// Package video holds the contracts between frame producers (capture sources)
// and frame consumers (engine tracks and their encoders).
package video

import (
	"image"
	"time"
)

// PixelFormat is a FourCC code.
type PixelFormat uint32

func fourcc(a, b, c, d byte) PixelFormat {
	return PixelFormat(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	PixelFormatAny  PixelFormat = 0
	PixelFormatI420             = fourcc('I', '4', '2', '0')
)

func (f PixelFormat) String() string {
	if f == PixelFormatAny {
		return "any"
	}
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

type CaptureFormat struct {
	Width       int
	Height      int
	Interval    time.Duration
	PixelFormat PixelFormat
}

type CaptureState int

const (
	CaptureStopped CaptureState = iota
	CaptureRunning
)

func (s CaptureState) String() string {
	switch s {
	case CaptureRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Frame is one planar YUV 4:2:0 picture. Image uses YCbCrSubsampleRatio420.
type Frame struct {
	Image           *image.YCbCr
	Width           int
	Height          int
	TimestampMicros int64
}

type Sink interface {
	OnFrame(frame *Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame *Frame)

func (f SinkFunc) OnFrame(frame *Frame) { f(frame) }

// Source is a pluggable producer of frames.
type Source interface {
	Start(format CaptureFormat) CaptureState
	Stop()
	IsRunning() bool
	PreferredFormats() ([]PixelFormat, bool)
	IsScreencast() bool
	SetSink(sink Sink)
}

type Encoder interface {
	Encode(frame *Frame) ([]byte, error)
	ForceKeyFrame()
	Close() error
}

// EncoderFactory builds an encoder for the given picture size and target bitrate
// (bits/s, 0 for the factory default). It is called again whenever the incoming
// frame size changes.
type EncoderFactory func(width, height, bitrate int) (Encoder, error)

// NewI420 allocates a 4:2:0 picture with chroma strides rounded up.
func NewI420(width, height int) *image.YCbCr {
	return image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
}
