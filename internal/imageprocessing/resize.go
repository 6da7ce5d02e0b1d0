package imageprocessing

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// GetScaledDimensions calculates the scaled dimensions that fit within the target while preserving aspect ratio
func GetScaledDimensions(srcWidth, srcHeight, targetWidth, targetHeight int) (int, int) {
	scaleX := float64(targetWidth) / float64(srcWidth)
	scaleY := float64(targetHeight) / float64(srcHeight)
	scale := scaleX
	if scaleY < scaleX {
		scale = scaleY
	}

	newWidth := max(int(float64(srcWidth)*scale), 1)
	newHeight := max(int(float64(srcHeight)*scale), 1)

	return newWidth, newHeight
}

// BoundToMax shrinks an image so neither side exceeds maxDimension,
// preserving aspect ratio. Images already within bounds, and a
// maxDimension of zero, return the input unchanged.
func BoundToMax(img image.Image, maxDimension int) image.Image {
	if img == nil || maxDimension <= 0 {
		return img
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension {
		return img
	}

	newWidth, newHeight := GetScaledDimensions(bounds.Dx(), bounds.Dy(), maxDimension, maxDimension)
	resized := image.NewNRGBA(image.Rect(0, 0, newWidth, newHeight))

	// Use BiLinear interpolation for good quality/speed balance
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, xdraw.Src, nil)

	return resized
}
