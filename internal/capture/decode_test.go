package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// expectedLuma is BT.601 studio swing in floating point.
func expectedLuma(c color.RGBA) float64 {
	return 16 + 0.257*float64(c.R) + 0.504*float64(c.G) + 0.098*float64(c.B)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestDecodeFrameSolidColor(t *testing.T) {
	tests := []struct {
		name      string
		color     color.RGBA
		encode    func(*testing.T, image.Image) []byte
		tolerance float64
	}{
		{"png orange", color.RGBA{200, 100, 50, 255}, encodePNG, 1},
		{"png white", color.RGBA{255, 255, 255, 255}, encodePNG, 1},
		{"png black", color.RGBA{0, 0, 0, 255}, encodePNG, 1},
		{"jpeg green", color.RGBA{30, 180, 60, 255}, encodeJPEG, 4},
		{"jpeg grey", color.RGBA{128, 128, 128, 255}, encodeJPEG, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := base64.StdEncoding.EncodeToString(tt.encode(t, solid(32, 18, tt.color)))

			frame, err := DecodeFrame([]byte(payload))
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if frame.Rect.Dx() != 32 || frame.Rect.Dy() != 18 {
				t.Fatalf("DecodeFrame() size = %v, want 32x18", frame.Rect)
			}
			if frame.SubsampleRatio != image.YCbCrSubsampleRatio420 {
				t.Fatalf("DecodeFrame() ratio = %v, want 4:2:0", frame.SubsampleRatio)
			}

			want := expectedLuma(tt.color)
			for _, y := range []int{0, 9, 17} {
				for _, x := range []int{0, 15, 31} {
					got := float64(frame.Y[frame.YOffset(x, y)])
					if abs(got-want) > tt.tolerance {
						t.Errorf("luma at (%d,%d) = %v, want %.1f±%v", x, y, got, want, tt.tolerance)
					}
				}
			}
		})
	}
}

func TestDecodeFrameUnpaddedBase64(t *testing.T) {
	raw := encodePNG(t, solid(3, 3, color.RGBA{10, 20, 30, 255}))
	payload := base64.RawStdEncoding.EncodeToString(raw) + "\n"

	frame, err := DecodeFrame([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.CStride != 2 {
		t.Errorf("CStride = %d, want 2 for a 3 pixel wide frame", frame.CStride)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", "", ErrBase64},
		{"not base64", "@@@@", ErrBase64},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world")), ErrImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestToI420Chroma(t *testing.T) {
	// left column red, right column blue: each 2x2 block averages to purple
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(0, 1, color.RGBA{255, 0, 0, 255})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 255, 255})
	img.SetRGBA(1, 1, color.RGBA{0, 0, 255, 255})

	out := ToI420(img)

	wantU := chromaU(128, 0, 128)
	wantV := chromaV(128, 0, 128)
	if out.Cb[0] != wantU || out.Cr[0] != wantV {
		t.Errorf("chroma = (%d, %d), want (%d, %d)", out.Cb[0], out.Cr[0], wantU, wantV)
	}
	if out.Y[0] != luma(255, 0, 0) || out.Y[1] != luma(0, 0, 255) {
		t.Errorf("luma row = %v, want red then blue", out.Y[:2])
	}
}

func TestToI420OffsetBounds(t *testing.T) {
	base := solid(8, 8, color.RGBA{255, 255, 255, 255})
	sub := base.SubImage(image.Rect(2, 2, 6, 6))

	out := ToI420(sub)
	if out.Rect.Dx() != 4 || out.Rect.Dy() != 4 {
		t.Fatalf("ToI420() size = %v, want 4x4", out.Rect)
	}
	if out.Y[0] != 235 {
		t.Errorf("white luma = %d, want 235", out.Y[0])
	}
}
