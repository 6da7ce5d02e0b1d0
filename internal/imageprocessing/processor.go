// Package imageprocessing handles the image boundary of the pipeline:
// decoding source files, bounding their size, encoding stage output as
// PNG and the dither library reference stage.
package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"os"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// ProcessingOptions allows customization of the loading step
type ProcessingOptions struct {
	MaxDimension int
}

// Source is a decoded input image ready for the pipeline
type Source struct {
	Name   string
	Format string
	Image  *pixbuf.RGBA
}

// Decode reads an image in any registered format and converts it to an
// RGBA buffer, bounded to options.MaxDimension
func Decode(r io.Reader, options ProcessingOptions) (*pixbuf.RGBA, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, format, fmt.Errorf("image has no pixels")
	}

	bounded := BoundToMax(img, options.MaxDimension)
	return pixbuf.FromImage(bounded), format, nil
}

// DecodeBytes is Decode over an in-memory image
func DecodeBytes(data []byte, options ProcessingOptions) (*pixbuf.RGBA, string, error) {
	return Decode(bytes.NewReader(data), options)
}

// LoadFile opens and decodes an image from disk
func LoadFile(path string, options ProcessingOptions) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := Decode(f, options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Source{Name: path, Format: format, Image: img}, nil
}
