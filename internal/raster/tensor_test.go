package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestNewTensorValidatesShape(t *testing.T) {
	t.Parallel()

	_, err := NewTensor([]int{2, 2}, make([]uint8, 4))
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = NewTensor([]int{2, 2, 2}, make([]uint8, 8))
	assert.ErrorIs(t, err, ErrInvalidShape, "two channels are rejected")

	_, err = NewTensor([]int{2, 2, 3}, make([]uint8, 11))
	assert.ErrorIs(t, err, ErrInvalidShape)

	tensor, err := NewTensor([]int{0, 4, 4, 3}, nil)
	require.NoError(t, err)
	n, _, _, _ := tensor.Dims()
	assert.Equal(t, 0, n)
}

func TestPromoteAddsFrameDimension(t *testing.T) {
	t.Parallel()

	pix := []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	single, err := NewTensor([]int{2, 2, 3}, pix)
	require.NoError(t, err)
	batched, err := NewTensor([]int{1, 2, 2, 3}, pix)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2, 3}, single.Promote().Shape)
	assert.Same(t, batched, batched.Promote())

	a, err := Sequence(single)
	require.NoError(t, err)
	b, err := Sequence(batched)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, b.Shape)
	assert.Equal(t, a.Frame(0), b.Frame(0))
}

func TestFrameRGB(t *testing.T) {
	t.Parallel()

	tensor, err := NewTensor([]int{1, 1, 2, 3}, []uint8{10, 20, 30, 40, 50, 60})
	require.NoError(t, err)

	img, ok := tensor.Frame(0).(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{40, 50, 60, 255}, img.NRGBAAt(1, 0))
}

func TestFrameGray(t *testing.T) {
	t.Parallel()

	tensor, err := NewTensor([]int{2, 1, 1}, []uint8{7, 9})
	require.NoError(t, err)

	img, ok := tensor.Frame(0).(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []uint8{7, 9}, img.Pix)
}

func TestPadRGBA(t *testing.T) {
	t.Parallel()

	rgb, err := NewTensor([]int{1, 2, 3}, []uint8{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	rgba := rgb.PadRGBA()
	assert.Equal(t, []int{1, 2, 4}, rgba.Shape)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 255}, rgba.Pix)
	assert.Same(t, rgba, rgba.PadRGBA())

	gray, err := NewTensor([]int{1, 1, 1}, []uint8{42})
	require.NoError(t, err)
	assert.Equal(t, []uint8{42, 42, 42, 255}, gray.PadRGBA().Pix)
}

func TestFromImages(t *testing.T) {
	t.Parallel()

	red := solid(2, 1, color.NRGBA{255, 0, 0, 255})
	blue := solid(2, 1, color.NRGBA{0, 0, 255, 255})

	tensor, err := FromImages([]image.Image{red, blue})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2, 3}, tensor.Shape)
	assert.Equal(t, []uint8{255, 0, 0, 255, 0, 0, 0, 0, 255, 0, 0, 255}, tensor.Pix)

	_, err = FromImages([]image.Image{red, solid(3, 1, color.NRGBA{})})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestSequenceRejectsUnknownInput(t *testing.T) {
	t.Parallel()

	img := solid(2, 2, color.NRGBA{A: 255})
	inputs := []any{
		nil,
		"image.png",
		42,
		[]int{1, 2, 3},
		(*Tensor)(nil),
		(*image.RGBA)(nil),
		[]image.Image{nil, img},
		[]image.Image{img, (*image.NRGBA)(nil)},
	}
	for _, v := range inputs {
		_, err := Sequence(v)
		assert.ErrorIs(t, err, ErrInvalidInputType, "input %T", v)
	}
}

func TestSequenceSingleImage(t *testing.T) {
	t.Parallel()

	tensor, err := Sequence(solid(3, 2, color.NRGBA{1, 2, 3, 255}))
	require.NoError(t, err)
	n, h, w, c := tensor.Dims()
	assert.Equal(t, []int{1, 2, 3, 3}, []int{n, h, w, c})
}
