package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/video"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrBase64     = errors.New("payload is not base64")
	ErrImage      = errors.New("payload is not a decodable image")
	ErrEmptyImage = errors.New("decoded image has zero area")
)

// DecodeFrame turns one transport message (base64 of a compressed image) into a
// 4:2:0 picture.
func DecodeFrame(payload []byte) (*image.YCbCr, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImage, err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	return ToI420(img), nil
}

// decodeBase64 accepts the standard alphabet with or without padding.
func decodeBase64(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimRight(bytes.TrimSpace(payload), "=")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBase64)
	}

	raw := make([]byte, base64.RawStdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.RawStdEncoding.Decode(raw, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	return raw[:n], nil
}

// ToI420 converts any image through an RGBA intermediate into BT.601 studio-swing
// 4:2:0. Chroma is sampled from the mean of each 2x2 block.
func ToI420(img image.Image) *image.YCbCr {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	out := video.NewI420(w, h)

	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := out.Y[y*out.YStride:]
		for x := 0; x < w; x++ {
			p := src[x*4:]
			dst[x] = luma(int(p[0]), int(p[1]), int(p[2]))
		}
	}

	for cy := 0; cy < (h+1)/2; cy++ {
		for cx := 0; cx < (w+1)/2; cx++ {
			var r, g, bl, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					break
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						break
					}
					p := rgba.Pix[y*rgba.Stride+x*4:]
					r += int(p[0])
					g += int(p[1])
					bl += int(p[2])
					n++
				}
			}
			r, g, bl = (r+n/2)/n, (g+n/2)/n, (bl+n/2)/n
			i := cy*out.CStride + cx
			out.Cb[i] = chromaU(r, g, bl)
			out.Cr[i] = chromaV(r, g, bl)
		}
	}

	return out
}

func luma(r, g, b int) uint8 {
	y := (66*r + 129*g + 25*b + 128) >> 8
	return clamp(y + 16)
}

func chromaU(r, g, b int) uint8 {
	u := (-38*r - 74*g + 112*b + 128) >> 8
	return clamp(u + 128)
}

func chromaV(r, g, b int) uint8 {
	v := (112*r - 94*g - 18*b + 128) >> 8
	return clamp(v + 128)
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
