package imageprocessing

import (
	"image"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// GrayFromImage converts any image to a normalized grayscale buffer using
// the pipeline's luminance weights
func GrayFromImage(img image.Image) *pixbuf.Gray {
	if img == nil {
		return nil
	}
	if g, ok := img.(*image.Gray); ok {
		bounds := g.Bounds()
		out := pixbuf.NewGray(bounds.Dx(), bounds.Dy())
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				out.Data[y*out.Width+x] = float32(g.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) / 255
			}
		}
		return out
	}
	return pixbuf.GrayFromRGBA(pixbuf.FromImage(img))
}

// QuantizeColor reduces an 8-bit gray value to the given bit depth, scaled
// back to the full 8-bit range
func QuantizeColor(gray uint8, bitDepth int) uint8 {
	switch bitDepth {
	case 1, 2, 4:
		levels := 1 << bitDepth
		step := 256 / levels
		index := min(int(gray)/step, levels-1)
		return uint8(index * 255 / (levels - 1))
	default:
		return gray
	}
}
