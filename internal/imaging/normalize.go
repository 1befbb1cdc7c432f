package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Model input geometry. The classifier artifact is trained on 150x150 RGB
// crops, so every upload is coerced to this shape before inference.
const (
	TargetSize = 150
	Channels   = 3
)

// ErrDecode indicates the input bytes are not a decodable image.
var ErrDecode = errors.New("undecodable image")

// Tensor is a batched float32 tensor in HWC layout, values in [0,1].
type Tensor struct {
	Data  []float32
	Shape []int64
}

// Normalize decodes arbitrary image bytes into a (1,150,150,3) tensor.
// Grayscale and alpha sources are coerced to 3-channel RGB; alpha is dropped.
func Normalize(data []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resized := resize.Resize(TargetSize, TargetSize, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	out := make([]float32, height*width*Channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			base := (y*width + x) * Channels
			out[base] = float32(r>>8) / 255.0
			out[base+1] = float32(g>>8) / 255.0
			out[base+2] = float32(b>>8) / 255.0
		}
	}

	return &Tensor{
		Data:  out,
		Shape: []int64{1, int64(height), int64(width), Channels},
	}, nil
}
