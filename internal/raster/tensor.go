// Package raster holds the array-like inputs of the overlay component:
// dense uint8 frame tensors and scalar float masks.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"reflect"
)

var (
	ErrInvalidInputType = errors.New("expected a tensor, an image or a list of images")
	ErrInvalidShape     = errors.New("invalid shape")
)

// Tensor is a row-major uint8 array shaped (H,W,C) or (N,H,W,C).
type Tensor struct {
	Shape []int
	Pix   []uint8
}

func NewTensor(shape []int, pix []uint8) (*Tensor, error) {
	if len(shape) != 3 && len(shape) != 4 {
		return nil, fmt.Errorf("%w: rank %d, want 3 or 4", ErrInvalidShape, len(shape))
	}
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrInvalidShape, shape)
		}
		size *= d
	}
	switch c := shape[len(shape)-1]; c {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidShape, c)
	}
	if size != len(pix) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrInvalidShape, shape, size, len(pix))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Pix: pix}, nil
}

// Promote adds the leading frame dimension to an (H,W,C) tensor. The
// returned tensor shares Pix with t.
func (t *Tensor) Promote() *Tensor {
	if len(t.Shape) == 4 {
		return t
	}
	return &Tensor{Shape: append([]int{1}, t.Shape...), Pix: t.Pix}
}

func (t *Tensor) Dims() (n, h, w, c int) {
	s := t.Promote().Shape
	return s[0], s[1], s[2], s[3]
}

func (t *Tensor) frameSize() int {
	_, h, w, c := t.Dims()
	return h * w * c
}

// Frame returns frame i as an image. One channel maps to image.Gray,
// three and four channels to image.NRGBA with opaque alpha for RGB.
func (t *Tensor) Frame(i int) image.Image {
	_, h, w, c := t.Dims()
	size := t.frameSize()
	src := t.Pix[i*size : (i+1)*size]
	rect := image.Rect(0, 0, w, h)
	if c == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, src)
		return img
	}
	img := image.NewNRGBA(rect)
	for p := 0; p < h*w; p++ {
		dst := img.Pix[p*4 : p*4+4]
		copy(dst, src[p*c:p*c+3])
		if c == 4 {
			dst[3] = src[p*c+3]
		} else {
			dst[3] = 0xff
		}
	}
	return img
}

// Frames splits the tensor into images in frame order.
func (t *Tensor) Frames() []image.Image {
	n, _, _, _ := t.Dims()
	out := make([]image.Image, n)
	for i := range out {
		out[i] = t.Frame(i)
	}
	return out
}

// PadRGBA appends an opaque alpha channel to RGB data and expands
// grayscale to RGBA. RGBA tensors are returned as is.
func (t *Tensor) PadRGBA() *Tensor {
	c := t.Shape[len(t.Shape)-1]
	if c == 4 {
		return t
	}
	pixels := len(t.Pix) / c
	pix := make([]uint8, pixels*4)
	for p := 0; p < pixels; p++ {
		if c == 1 {
			v := t.Pix[p]
			pix[p*4], pix[p*4+1], pix[p*4+2] = v, v, v
		} else {
			copy(pix[p*4:p*4+3], t.Pix[p*3:p*3+3])
		}
		pix[p*4+3] = 0xff
	}
	shape := append([]int(nil), t.Shape...)
	shape[len(shape)-1] = 4
	return &Tensor{Shape: shape, Pix: pix}
}

// FromImages stacks images into an (N,H,W,3) tensor. Every image must
// match the size of the first one.
func FromImages(images []image.Image) (*Tensor, error) {
	if len(images) == 0 {
		return &Tensor{Shape: []int{0, 0, 0, 3}, Pix: []uint8{}}, nil
	}
	for i, img := range images {
		if isNilImage(img) {
			return nil, fmt.Errorf("%w: image %d is nil", ErrInvalidInputType, i)
		}
	}
	bounds := images[0].Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	pix := make([]uint8, 0, len(images)*h*w*3)
	for i, img := range images {
		b := img.Bounds()
		if b.Dx() != w || b.Dy() != h {
			return nil, fmt.Errorf("%w: image %d is %dx%d, want %dx%d", ErrInvalidShape, i, b.Dx(), b.Dy(), w, h)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				pix = append(pix, c.R, c.G, c.B)
			}
		}
	}
	return &Tensor{Shape: []int{len(images), h, w, 3}, Pix: pix}, nil
}

// isNilImage catches both a nil interface and a typed nil such as
// (*image.RGBA)(nil).
func isNilImage(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Sequence normalizes the accepted image inputs into an (N,H,W,C) tensor.
func Sequence(v any) (*Tensor, error) {
	switch x := v.(type) {
	case *Tensor:
		if x == nil {
			return nil, ErrInvalidInputType
		}
		if _, err := NewTensor(x.Shape, x.Pix); err != nil {
			return nil, err
		}
		return x.Promote(), nil
	case Tensor:
		return Sequence(&x)
	case []image.Image:
		return FromImages(x)
	case image.Image:
		return FromImages([]image.Image{x})
	default:
		return nil, fmt.Errorf("%w, got %T", ErrInvalidInputType, v)
	}
}
