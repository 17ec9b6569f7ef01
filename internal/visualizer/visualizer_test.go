package visualizer

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JensRahnfeld/streamlit-overlay/internal/colormap"
	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
	"github.com/JensRahnfeld/streamlit-overlay/internal/raster"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

type recordingBridge struct {
	calls []types.ComponentArgs
	value int
}

func (b *recordingBridge) Render(_ context.Context, args types.ComponentArgs) (int, error) {
	b.calls = append(b.calls, args)
	return b.value, nil
}

func frames(t *testing.T, n, h, w int) *raster.Tensor {
	t.Helper()
	pix := make([]uint8, n*h*w*3)
	for i := range pix {
		pix[i] = uint8(i)
	}
	tensor, err := raster.NewTensor([]int{n, h, w, 3}, pix)
	require.NoError(t, err)
	return tensor
}

func TestOverlayBuildsArgs(t *testing.T) {
	t.Parallel()

	bridge := &recordingBridge{value: 3}
	opts := DefaultOptions()
	opts.Key = "viewer"
	opts.Autoplay = true

	got, err := Overlay(context.Background(), bridge, frames(t, 2, 4, 6), frames(t, 2, 4, 6), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	require.Len(t, bridge.calls, 1)

	args := bridge.calls[0]
	want := types.ComponentArgs{
		Width:       6,
		Height:      4,
		NumFrames:   2,
		Alpha:       0.5,
		Key:         "viewer",
		ToggleLabel: "Display Overlay",
		FPS:         30,
		Autoplay:    true,
		Format:      "image/jpeg",
	}
	ignoreBlobs := cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".Images" || name == ".Masks"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, args, ignoreBlobs); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}

	images, err := framepack.Unpack(args.Images)
	require.NoError(t, err)
	assert.Len(t, images, 2)
	masks, err := framepack.Unpack(args.Masks)
	require.NoError(t, err)
	assert.Len(t, masks, 2)
}

func TestOverlayWithoutMasks(t *testing.T) {
	t.Parallel()

	args, err := OverlayArgs(frames(t, 1, 2, 2), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, args.Masks)
	assert.NotEmpty(t, args.Images)
}

func TestOverlaySingleFrameMatchesSequence(t *testing.T) {
	t.Parallel()

	seq := frames(t, 1, 3, 3)
	single, err := raster.NewTensor([]int{3, 3, 3}, seq.Pix)
	require.NoError(t, err)

	a, err := OverlayArgs(single, single, DefaultOptions())
	require.NoError(t, err)
	b, err := OverlayArgs(seq, seq, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestOverlayImageList(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 5, 2))
	args, err := OverlayArgs([]image.Image{img, img, img}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, args.NumFrames)
	assert.Equal(t, 5, args.Width)
	assert.Equal(t, 2, args.Height)
}

func TestOverlayRejects(t *testing.T) {
	t.Parallel()

	_, err := OverlayArgs("not an image", nil, DefaultOptions())
	assert.ErrorIs(t, err, raster.ErrInvalidInputType)

	_, err = OverlayArgs(frames(t, 2, 2, 2), frames(t, 1, 2, 2), DefaultOptions())
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = OverlayArgs(frames(t, 1, 2, 2), frames(t, 1, 3, 2), DefaultOptions())
	assert.ErrorIs(t, err, ErrShapeMismatch)

	opts := DefaultOptions()
	opts.Alpha = 1.5
	_, err = OverlayArgs(frames(t, 1, 2, 2), nil, opts)
	assert.ErrorIs(t, err, ErrInvalidOption)

	opts = DefaultOptions()
	opts.FPS = 0
	_, err = OverlayArgs(frames(t, 1, 2, 2), nil, opts)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestColorize(t *testing.T) {
	t.Parallel()

	images := frames(t, 2, 1, 2)
	masks, err := raster.MaskSequence([][]float64{{5, 10}})
	require.NoError(t, err)

	heat, err := Colorize(images, masks, colormap.Gray)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2, 3}, heat.Shape)
	assert.Equal(t, []uint8{0, 0, 0, 255, 255, 255, 0, 0, 0, 0, 0, 0}, heat.Pix, "second frame stays black")

	tooMany, err := raster.MaskSequence([][][]float64{{{1, 2}}, {{1, 2}}, {{1, 2}}})
	require.NoError(t, err)
	_, err = Colorize(images, tooMany, colormap.Jet)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestColorizeMissingMaskStaysBlack(t *testing.T) {
	t.Parallel()

	images := frames(t, 3, 1, 2)
	masks, err := raster.MaskSequence([][][]float64{{{0, 1}}, nil, {{2, 2}}})
	require.NoError(t, err)

	heat, err := Colorize(images, masks, colormap.Jet)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 0, 0, 0}, heat.Pix[6:12], "frame without a mask")
	assert.Equal(t, []uint8{0, 0, 128, 0, 0, 128}, heat.Pix[12:18], "constant mask maps to the low end")
}

func TestOverlayTypedNilMasks(t *testing.T) {
	t.Parallel()

	args, err := OverlayArgs(frames(t, 2, 2, 2), (*raster.Tensor)(nil), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, args.Masks)
	assert.Equal(t, 2, args.NumFrames)
}

func TestHeatmap(t *testing.T) {
	t.Parallel()

	bridge := &recordingBridge{}
	opts := DefaultHeatmapOptions()

	mask := [][]float64{{0, 1}, {2, 3}}
	_, err := Heatmap(context.Background(), bridge, frames(t, 1, 2, 2), mask, opts)
	require.NoError(t, err)
	require.Len(t, bridge.calls, 1)
	assert.Equal(t, "Display Heatmap", bridge.calls[0].ToggleLabel)

	decoded, err := framepack.Decode(bridge.calls[0].Masks)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, image.Rect(0, 0, 2, 2), decoded[0].Bounds())

	args, err := HeatmapArgs(frames(t, 1, 2, 2), nil, opts)
	require.NoError(t, err)
	assert.Empty(t, args.Masks)
}

func TestHeatmapIsDeterministic(t *testing.T) {
	t.Parallel()

	opts := DefaultHeatmapOptions()
	opts.Colormap = colormap.SmoothBlueRed
	opts.Format = framepack.PNG
	mask := [][]float64{{0.1, 0.9}, {0.4, 0.2}}

	a, err := HeatmapArgs(frames(t, 1, 2, 2), mask, opts)
	require.NoError(t, err)
	b, err := HeatmapArgs(frames(t, 1, 2, 2), mask, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Masks, b.Masks)

	decoded, err := framepack.Decode(a.Masks)
	require.NoError(t, err)
	table, err := colormap.Lookup(colormap.SmoothBlueRed)
	require.NoError(t, err)
	want := table[colormap.Index(1)]
	got := color.NRGBAModel.Convert(decoded[0].At(1, 0)).(color.NRGBA)
	assert.Equal(t, want, [3]uint8{got.R, got.G, got.B})
}
