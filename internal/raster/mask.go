package raster

import "fmt"

// Mask is a row-major scalar array shaped (H,W) or (N,H,W). Absent, when
// set, marks frames that carry no mask; their values are zero.
type Mask struct {
	Shape  []int
	Values []float64
	Absent []bool
}

func NewMask(shape []int, values []float64) (*Mask, error) {
	if len(shape) != 2 && len(shape) != 3 {
		return nil, fmt.Errorf("%w: mask rank %d, want 2 or 3", ErrInvalidShape, len(shape))
	}
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrInvalidShape, shape)
		}
		size *= d
	}
	if size != len(values) {
		return nil, fmt.Errorf("%w: mask shape %v needs %d values, got %d", ErrInvalidShape, shape, size, len(values))
	}
	return &Mask{Shape: append([]int(nil), shape...), Values: values}, nil
}

func (m *Mask) Promote() *Mask {
	if len(m.Shape) == 3 {
		return m
	}
	return &Mask{Shape: append([]int{1}, m.Shape...), Values: m.Values, Absent: m.Absent}
}

func (m *Mask) Dims() (n, h, w int) {
	s := m.Promote().Shape
	return s[0], s[1], s[2]
}

// Frame returns the values of mask i. The slice aliases m.Values.
func (m *Mask) Frame(i int) []float64 {
	_, h, w := m.Dims()
	return m.Values[i*h*w : (i+1)*h*w : (i+1)*h*w]
}

// Present reports whether frame i carries a mask.
func (m *Mask) Present(i int) bool {
	return i >= len(m.Absent) || !m.Absent[i]
}

// MaskSequence normalizes the accepted mask inputs into an (N,H,W) mask.
// A nil input, typed or not, means no masks and yields a nil mask. Nil
// entries of a [][][]float64 stack mark frames without a mask.
func MaskSequence(v any) (*Mask, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Mask:
		if x == nil {
			return nil, nil
		}
		if _, err := NewMask(x.Shape, x.Values); err != nil {
			return nil, err
		}
		m := x.Promote()
		if n, _, _ := m.Dims(); len(m.Absent) != 0 && len(m.Absent) != n {
			return nil, fmt.Errorf("%w: %d absent flags for %d masks", ErrInvalidShape, len(m.Absent), n)
		}
		return m, nil
	case Mask:
		return MaskSequence(&x)
	case [][]float64:
		if x == nil {
			return nil, nil
		}
		return stackMasks([][][]float64{x})
	case [][][]float64:
		if x == nil {
			return nil, nil
		}
		return stackMasks(x)
	default:
		return nil, fmt.Errorf("%w: unsupported mask type %T", ErrInvalidInputType, v)
	}
}

func stackMasks(frames [][][]float64) (*Mask, error) {
	if len(frames) == 0 {
		return &Mask{Shape: []int{0, 0, 0}, Values: []float64{}}, nil
	}
	first := -1
	for i, rows := range frames {
		if rows != nil {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, nil
	}
	h := len(frames[first])
	w := 0
	if h > 0 {
		w = len(frames[first][0])
	}
	var absent []bool
	values := make([]float64, 0, len(frames)*h*w)
	for i, rows := range frames {
		if rows == nil {
			if absent == nil {
				absent = make([]bool, len(frames))
			}
			absent[i] = true
			values = append(values, make([]float64, h*w)...)
			continue
		}
		if len(rows) != h {
			return nil, fmt.Errorf("%w: mask %d has %d rows, want %d", ErrInvalidShape, i, len(rows), h)
		}
		for r, row := range rows {
			if len(row) != w {
				return nil, fmt.Errorf("%w: mask %d row %d has %d columns, want %d", ErrInvalidShape, i, r, len(row), w)
			}
			values = append(values, row...)
		}
	}
	return &Mask{Shape: []int{len(frames), h, w}, Values: values, Absent: absent}, nil
}
