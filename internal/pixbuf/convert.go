package pixbuf

import (
	"image"
	"image/color"
	"math"
)

// Brightness returns the perceptual luminance of normalized RGB values.
func Brightness(r, g, b float32) float32 {
	return 0.21*r + 0.72*g + 0.07*b
}

// FromImage copies any image into a non-premultiplied RGBA buffer anchored
// at the origin.
func FromImage(img image.Image) *RGBA {
	bounds := img.Bounds()
	out := NewRGBA(bounds.Dx(), bounds.Dy())

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < out.Height; y++ {
			start := nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Data[y*out.Width*4:], nrgba.Pix[start:start+out.Width*4])
		}
		return out
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			copy(out.PixelAt(x, y, Clamp), []uint8{c.R, c.G, c.B, c.A})
		}
	}
	return out
}

// GrayFromRGBA converts 8-bit color to normalized luminance.
func GrayFromRGBA(src *RGBA) *Gray {
	out := NewGray(src.Width, src.Height)
	for i := range out.Data {
		p := src.Data[i*4 : i*4+4]
		out.Data[i] = Brightness(float32(p[0])/255, float32(p[1])/255, float32(p[2])/255)
	}
	return out
}

// RGBFromRGBA converts 8-bit color to three normalized float channels,
// dropping alpha.
func RGBFromRGBA(src *RGBA) *RGB {
	out := NewRGB(src.Width, src.Height)
	for i := 0; i < src.Width*src.Height; i++ {
		for ch := 0; ch < 3; ch++ {
			out.Data[i*3+ch] = float32(src.Data[i*4+ch]) / 255
		}
	}
	return out
}

func toU8(v float32) uint8 {
	return uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
}

// GrayToImage converts a grayscale buffer to an 8-bit *image.Gray.
func GrayToImage(g *Gray) *image.Gray {
	img := image.NewGray(g.Bounds())
	for i, v := range g.Data {
		img.Pix[i] = toU8(v)
	}
	return img
}
