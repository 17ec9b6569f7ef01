package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

var ErrMaskSize = errors.New("mask size does not match image")

// ProcessRawFrame decodes the image bytes of raw and checks its mask
// against the decoded size.
func ProcessRawFrame(raw types.RawFrame) (types.Frame, error) {
	if len(raw.Image) == 0 {
		return types.Frame{}, errors.New("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(raw.Image))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode image %d: %w", raw.ImageID, err)
	}

	frame := types.Frame{Key: raw.Key, ImageID: raw.ImageID, Image: img}
	if raw.Mask == nil {
		return frame, nil
	}
	mask, ok := ToMatrix(raw.Mask)
	if !ok {
		return types.Frame{}, fmt.Errorf("unsupported mask type %T", raw.Mask)
	}
	b := img.Bounds()
	if len(mask) != b.Dy() || (len(mask) > 0 && len(mask[0]) != b.Dx()) {
		return types.Frame{}, fmt.Errorf("%w: image %d is %dx%d", ErrMaskSize, raw.ImageID, b.Dx(), b.Dy())
	}
	frame.Mask = mask
	return frame, nil
}

// ToMatrix converts the 2D numeric layouts ingest and the simulator
// produce into a float matrix.
func ToMatrix(payload any) ([][]float64, bool) {
	switch v := payload.(type) {
	case [][]float64:
		return v, true
	case [][]float32:
		return convertRows(v), true
	case [][]uint8:
		return convertRows(v), true
	case [][]uint16:
		return convertRows(v), true
	case [][]uint32:
		return convertRows(v), true
	default:
		return nil, false
	}
}

type number interface {
	~uint8 | ~uint16 | ~uint32 | ~float32
}

func convertRows[T number](rows [][]T) [][]float64 {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		out[r] = make([]float64, len(row))
		for c, v := range row {
			out[r][c] = float64(v)
		}
	}
	return out
}
