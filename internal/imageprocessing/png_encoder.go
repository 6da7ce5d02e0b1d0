package imageprocessing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zlib"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// BitDepthForLevels returns the smallest PNG grayscale bit depth whose
// sample grid contains every one of the evenly spaced output levels.
func BitDepthForLevels(levels int) int {
	for _, depth := range []int{1, 2, 4} {
		if levels >= 2 && (1<<depth-1)%(levels-1) == 0 {
			return depth
		}
	}
	return 8
}

// EncodePNG encodes a float buffer with values in [0,1]. One-channel
// buffers become grayscale PNGs (color type 0) at bitDepth; three-channel
// buffers become 8-bit truecolor PNGs (color type 2) and ignore bitDepth.
func EncodePNG(img *pixbuf.Buffer[float32], bitDepth int) ([]byte, error) {
	var colorType uint8
	switch img.Channels {
	case 1:
		if bitDepth != 1 && bitDepth != 2 && bitDepth != 4 && bitDepth != 8 {
			return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
		}
	case 3:
		colorType = 2
		bitDepth = 8
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", img.Channels)
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("cannot encode empty image")
	}

	var buf bytes.Buffer

	// PNG signature
	buf.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})

	writeChunk(&buf, "IHDR", func(data *bytes.Buffer) {
		binary.Write(data, binary.BigEndian, uint32(img.Width))
		binary.Write(data, binary.BigEndian, uint32(img.Height))
		data.WriteByte(uint8(bitDepth))
		data.WriteByte(colorType)
		data.WriteByte(0) // Compression method
		data.WriteByte(0) // Filter method
		data.WriteByte(0) // Interlace method
	})

	var imageData []byte
	if colorType == 0 {
		imageData = packGrayscaleImageData(img, bitDepth)
	} else {
		imageData = packRGBImageData(img)
	}

	compressedData, err := zlibCompress(imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}

	writeChunk(&buf, "IDAT", func(data *bytes.Buffer) {
		data.Write(compressedData)
	})

	writeChunk(&buf, "IEND", func(data *bytes.Buffer) {})

	return buf.Bytes(), nil
}

func sample(v float32, maxValue int) uint8 {
	return uint8(math.Round(float64(min(max(v, 0), 1)) * float64(maxValue)))
}

// packGrayscaleImageData packs values at bitDepth bits per pixel, rows
// prefixed with filter type None. Samples are reduced through QuantizeColor,
// so palette values land on exact codes.
func packGrayscaleImageData(img *pixbuf.Gray, bitDepth int) []byte {
	pixelsPerByte := 8 / bitDepth
	bytesPerRow := (img.Width + pixelsPerByte - 1) / pixelsPerByte
	codeStep := 255 / (1<<bitDepth - 1)

	data := make([]byte, img.Height*(bytesPerRow+1))
	for p, px := range img.AllPixels() {
		rowStart := p.Y * (bytesPerRow + 1)
		byteIndex := rowStart + 1 + p.X/pixelsPerByte
		bitOffset := (pixelsPerByte - 1 - (p.X % pixelsPerByte)) * bitDepth
		code := QuantizeColor(sample(px[0], 255), bitDepth) / uint8(codeStep)
		data[byteIndex] |= code << bitOffset
	}
	return data
}

func packRGBImageData(img *pixbuf.RGB) []byte {
	bytesPerRow := img.Width * 3
	data := make([]byte, img.Height*(bytesPerRow+1))
	for p, px := range img.AllPixels() {
		i := p.Y*(bytesPerRow+1) + 1 + p.X*3
		for ch := 0; ch < 3; ch++ {
			data[i+ch] = sample(px[ch], 255)
		}
	}
	return data
}

// writeChunk writes a PNG chunk with proper CRC
func writeChunk(buf *bytes.Buffer, chunkType string, dataWriter func(*bytes.Buffer)) {
	var chunkData bytes.Buffer
	dataWriter(&chunkData)

	data := chunkData.Bytes()

	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}

// zlibCompress compresses data using proper zlib compression
func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}

	return buf.Bytes(), nil
}
