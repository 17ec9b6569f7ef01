// Package framepack packs an ordered sequence of frames into a single blob
// of length-prefixed encoded images:
//
//	<frame1 size (4 bytes, big endian)><frame1><frame2 size><frame2>...
//
// The frontend walks the blob by reading a size, slicing that many bytes
// and repeating until the blob is exhausted.
package framepack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/JensRahnfeld/streamlit-overlay/internal/raster"
)

// LengthPrefixSize is the width of the per-frame size header.
const LengthPrefixSize = 4

const jpegQuality = 75

var (
	ErrEncodingOverflow  = errors.New("encoded frame does not fit a 4-byte length prefix")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTruncated         = errors.New("truncated packed blob")
)

type Format int

const (
	JPEG Format = iota
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// MIMEType is the content type the frontend uses when building a blob URL.
func (f Format) MIMEType() string {
	return "image/" + f.String()
}

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnsupportedFormat, value)
	}
}

// Pack encodes frames in order and returns the packed blob. Zero frames
// yield an empty, non-nil blob.
func Pack(frames []image.Image, format Format) ([]byte, error) {
	out := []byte{}
	var buf bytes.Buffer
	for i, frame := range frames {
		buf.Reset()
		if err := encode(&buf, frame, format); err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", i, err)
		}
		var err error
		out, err = AppendFrame(out, buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return out, nil
}

// PackTensor packs every frame of t; an (H,W,C) tensor packs as one frame.
func PackTensor(t *raster.Tensor, format Format) ([]byte, error) {
	if t == nil {
		return []byte{}, nil
	}
	seq, err := raster.Sequence(t)
	if err != nil {
		return nil, err
	}
	return Pack(seq.Frames(), format)
}

// AppendFrame appends one length-prefixed record holding payload to dst.
func AppendFrame(dst []byte, payload []byte) ([]byte, error) {
	if err := checkLength(uint64(len(payload))); err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

func checkLength(n uint64) error {
	if n > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrEncodingOverflow, n)
	}
	return nil
}

func encode(buf *bytes.Buffer, img image.Image, format Format) error {
	if img == nil {
		return errors.New("nil frame")
	}
	switch format {
	case JPEG:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality})
	case PNG:
		return png.Encode(buf, img)
	default:
		return fmt.Errorf("%w %s", ErrUnsupportedFormat, format)
	}
}

// Unpack splits a packed blob into its encoded payloads. The payloads
// alias blob.
func Unpack(blob []byte) ([][]byte, error) {
	payloads := make([][]byte, 0)
	offset := 0
	for offset < len(blob) {
		if len(blob)-offset < LengthPrefixSize {
			return nil, fmt.Errorf("%w: %d trailing bytes at offset %d", ErrTruncated, len(blob)-offset, offset)
		}
		size := binary.BigEndian.Uint32(blob[offset : offset+LengthPrefixSize])
		offset += LengthPrefixSize
		if uint64(len(blob)-offset) < uint64(size) {
			return nil, fmt.Errorf("%w: frame %d wants %d bytes, %d left", ErrTruncated, len(payloads), size, len(blob)-offset)
		}
		end := offset + int(size)
		payloads = append(payloads, blob[offset:end:end])
		offset = end
	}
	return payloads, nil
}

// Decode unpacks blob and decodes every payload. JPEG, PNG, GIF and WebP
// payloads are recognized.
func Decode(blob []byte) ([]image.Image, error) {
	payloads, err := Unpack(blob)
	if err != nil {
		return nil, err
	}
	images := make([]image.Image, len(payloads))
	for i, payload := range payloads {
		img, _, err := image.Decode(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		images[i] = img
	}
	return images, nil
}

// Sniff reports the registered format name of an encoded payload.
func Sniff(payload []byte) (string, error) {
	_, name, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	return name, nil
}
