package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSequence(t *testing.T) {
	t.Parallel()

	t.Run("nil means no masks", func(t *testing.T) {
		mask, err := MaskSequence(nil)
		require.NoError(t, err)
		assert.Nil(t, mask)
	})

	t.Run("single matrix is promoted", func(t *testing.T) {
		mask, err := MaskSequence([][]float64{{0, 1}, {2, 3}})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 2}, mask.Shape)
		assert.Equal(t, []float64{0, 1, 2, 3}, mask.Frame(0))
	})

	t.Run("stack of matrices", func(t *testing.T) {
		mask, err := MaskSequence([][][]float64{{{1}}, {{2}}, {{3}}})
		require.NoError(t, err)
		n, h, w := mask.Dims()
		assert.Equal(t, []int{3, 1, 1}, []int{n, h, w})
		assert.Equal(t, []float64{3}, mask.Frame(2))
	})

	t.Run("ragged rows are rejected", func(t *testing.T) {
		_, err := MaskSequence([][]float64{{0, 1}, {2}})
		assert.ErrorIs(t, err, ErrInvalidShape)
	})

	t.Run("unknown types are rejected", func(t *testing.T) {
		_, err := MaskSequence([]float64{1, 2})
		assert.ErrorIs(t, err, ErrInvalidInputType)
	})

	t.Run("flat mask value", func(t *testing.T) {
		mask, err := MaskSequence(Mask{Shape: []int{1, 2}, Values: []float64{5, 6}})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 2}, mask.Shape)
	})
}

func TestMaskFrameDoesNotSpill(t *testing.T) {
	t.Parallel()

	mask, err := NewMask([]int{2, 1, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	first := mask.Frame(0)
	first = append(first, 99)
	assert.Equal(t, []float64{3, 4}, mask.Frame(1))
	assert.Len(t, first, 3)
}

func TestMaskSequenceTypedNil(t *testing.T) {
	t.Parallel()

	var stack [][][]float64
	mask, err := MaskSequence(stack)
	require.NoError(t, err)
	assert.Nil(t, mask)
}

func TestMaskSequenceMarksAbsentFrames(t *testing.T) {
	t.Parallel()

	mask, err := MaskSequence([][][]float64{{{1, 2}}, nil, {{3, 4}}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, mask.Shape)
	assert.True(t, mask.Present(0))
	assert.False(t, mask.Present(1))
	assert.True(t, mask.Present(2))
	assert.Equal(t, []float64{0, 0}, mask.Frame(1))

	none, err := MaskSequence([][][]float64{nil, nil})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = MaskSequence(&Mask{Shape: []int{2, 1, 1}, Values: []float64{1, 2}, Absent: []bool{true}})
	assert.ErrorIs(t, err, ErrInvalidShape)
}
