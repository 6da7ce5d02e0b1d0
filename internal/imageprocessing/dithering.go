package imageprocessing

import (
	"image"
	"image/color"

	"github.com/makeworld-the-better-one/dither/v2"

	quant "github.com/rmitchellscott/ditherworks/internal/dither"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// DitherFloydSteinberg applies Floyd-Steinberg dithering using the dither
// library with an even grayscale palette of the given size
func DitherFloydSteinberg(img image.Image, levels int) image.Image {
	if img == nil {
		return nil
	}

	ditherer := dither.NewDitherer(createGrayscalePalette(levels))
	ditherer.Matrix = dither.FloydSteinberg

	return ditherer.Dither(img)
}

// LibraryFloydSteinberg dithers a grayscale buffer through the dither
// library. It serves as a reference for the in-house diffusion stages.
func LibraryFloydSteinberg(g *pixbuf.Gray, levels int) *pixbuf.Gray {
	out := DitherFloydSteinberg(pixbuf.GrayToImage(g), levels)
	return GrayFromImage(out)
}

// createGrayscalePalette creates evenly distributed gray levels, clamped to
// the same range as the in-house quantizers
func createGrayscalePalette(levels int) color.Palette {
	levels = quant.NewEvenPalette(levels).Levels()
	palette := make(color.Palette, levels)
	for i := 0; i < levels; i++ {
		palette[i] = color.Gray{Y: uint8((i * 255) / (levels - 1))}
	}
	return palette
}
