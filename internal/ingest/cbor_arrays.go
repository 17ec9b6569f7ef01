package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// decodeMask turns a tag 40 multi-dimensional array or a plain nested
// CBOR array into a row-major matrix.
func decodeMask(value any) ([][]float64, error) {
	switch v := value.(type) {
	case cbor.Tag:
		return decodeMultiDimArray(v)
	case []any:
		return decodeNested(v)
	default:
		return nil, fmt.Errorf("unsupported mask encoding %T", value)
	}
}

func decodeMultiDimArray(tag cbor.Tag) ([][]float64, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return nil, errors.New("invalid multidim dimensions")
	}

	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dimsRaw[1])
	if err != nil {
		return nil, err
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, err
	}
	return reshape(flat, rows, cols)
}

func decodeTypedArray(value any) ([]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, errors.New("expected typed array tag")
	}

	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(b)
		}
		return out, nil
	case tagUint16LE:
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case tagUint32LE:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case tagFloat32LE:
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return out, nil
	case tagFloat64LE:
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func decodeNested(rowsRaw []any) ([][]float64, error) {
	out := make([][]float64, len(rowsRaw))
	for r, rowRaw := range rowsRaw {
		row, ok := rowRaw.([]any)
		if !ok {
			return nil, fmt.Errorf("mask row %d is %T", r, rowRaw)
		}
		if r > 0 && len(row) != len(out[0]) {
			return nil, errors.New("dimension mismatch")
		}
		out[r] = make([]float64, len(row))
		for c, v := range row {
			f, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("mask[%d][%d]: %w", r, c, err)
			}
			out[r][c] = f
		}
	}
	return out, nil
}

func reshape(flat []float64, rows, cols int) ([][]float64, error) {
	if rows < 0 || cols < 0 || rows*cols != len(flat) {
		return nil, errors.New("dimension mismatch")
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = flat[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return out, nil
}
