// Package visualizer is the public entry point of the overlay component:
// it normalizes images and masks, packs them and hands the result to a
// Bridge that renders the browser component.
package visualizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/JensRahnfeld/streamlit-overlay/internal/colormap"
	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
	"github.com/JensRahnfeld/streamlit-overlay/internal/raster"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

var (
	ErrShapeMismatch = errors.New("masks do not match images")
	ErrInvalidOption = errors.New("invalid option")
)

// Bridge transports component arguments to the frontend and returns the
// component's current value.
type Bridge interface {
	Render(ctx context.Context, args types.ComponentArgs) (int, error)
}

type Options struct {
	Alpha       float64
	Key         string
	ToggleLabel string
	FPS         int
	Autoplay    bool
	Format      framepack.Format
}

func DefaultOptions() Options {
	return Options{
		Alpha:       0.5,
		ToggleLabel: "Display Overlay",
		FPS:         30,
		Format:      framepack.JPEG,
	}
}

type HeatmapOptions struct {
	Options
	Colormap colormap.ID
}

func DefaultHeatmapOptions() HeatmapOptions {
	opts := HeatmapOptions{Options: DefaultOptions(), Colormap: colormap.Jet}
	opts.ToggleLabel = "Display Heatmap"
	return opts
}

func (o Options) validate() error {
	if o.Alpha < 0 || o.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidOption, o.Alpha)
	}
	if o.FPS < 1 {
		return fmt.Errorf("%w: fps %d", ErrInvalidOption, o.FPS)
	}
	return nil
}

// Overlay renders images with an optional overlay mask per frame. images
// and masks accept anything raster.Sequence accepts; masks may be nil.
func Overlay(ctx context.Context, bridge Bridge, images any, masks any, opts Options) (int, error) {
	args, err := OverlayArgs(images, masks, opts)
	if err != nil {
		return 0, err
	}
	return bridge.Render(ctx, args)
}

// OverlayArgs builds the component arguments without rendering them.
func OverlayArgs(images any, masks any, opts Options) (types.ComponentArgs, error) {
	if err := opts.validate(); err != nil {
		return types.ComponentArgs{}, err
	}
	seq, err := raster.Sequence(images)
	if err != nil {
		return types.ComponentArgs{}, fmt.Errorf("images: %w", err)
	}
	if t, ok := masks.(*raster.Tensor); ok && t == nil {
		masks = nil
	}
	var maskSeq *raster.Tensor
	if masks != nil {
		maskSeq, err = raster.Sequence(masks)
		if err != nil {
			return types.ComponentArgs{}, fmt.Errorf("masks: %w", err)
		}
		if err := checkMasks(seq, maskSeq); err != nil {
			return types.ComponentArgs{}, err
		}
	}
	return buildArgs(seq, maskSeq, opts)
}

func checkMasks(images, masks *raster.Tensor) error {
	n, h, w, _ := images.Dims()
	mn, mh, mw, _ := masks.Dims()
	if mn == 0 {
		return nil
	}
	if mn != n {
		return fmt.Errorf("%w: %d masks for %d frames", ErrShapeMismatch, mn, n)
	}
	if mh != h || mw != w {
		return fmt.Errorf("%w: mask %dx%d, image %dx%d", ErrShapeMismatch, mw, mh, w, h)
	}
	return nil
}

func buildArgs(images, masks *raster.Tensor, opts Options) (types.ComponentArgs, error) {
	n, h, w, _ := images.Dims()
	imageBlob, err := framepack.PackTensor(images, opts.Format)
	if err != nil {
		return types.ComponentArgs{}, fmt.Errorf("pack images: %w", err)
	}
	maskBlob, err := framepack.PackTensor(masks, opts.Format)
	if err != nil {
		return types.ComponentArgs{}, fmt.Errorf("pack masks: %w", err)
	}
	return types.ComponentArgs{
		Images:      imageBlob,
		Masks:       maskBlob,
		Width:       w,
		Height:      h,
		NumFrames:   n,
		Alpha:       opts.Alpha,
		Key:         opts.Key,
		ToggleLabel: opts.ToggleLabel,
		FPS:         opts.FPS,
		Autoplay:    opts.Autoplay,
		Format:      opts.Format.MIMEType(),
		Default:     0,
	}, nil
}

// Heatmap renders images with scalar masks colorized through opts.Colormap.
// Each mask is min-max normalized on its own. Frames without a mask get
// a black heatmap.
func Heatmap(ctx context.Context, bridge Bridge, images any, masks any, opts HeatmapOptions) (int, error) {
	args, err := HeatmapArgs(images, masks, opts)
	if err != nil {
		return 0, err
	}
	return bridge.Render(ctx, args)
}

func HeatmapArgs(images any, masks any, opts HeatmapOptions) (types.ComponentArgs, error) {
	if err := opts.validate(); err != nil {
		return types.ComponentArgs{}, err
	}
	seq, err := raster.Sequence(images)
	if err != nil {
		return types.ComponentArgs{}, fmt.Errorf("images: %w", err)
	}
	maskSeq, err := raster.MaskSequence(masks)
	if err != nil {
		return types.ComponentArgs{}, fmt.Errorf("masks: %w", err)
	}
	if maskSeq == nil {
		return buildArgs(seq, nil, opts.Options)
	}
	heat, err := Colorize(seq, maskSeq, opts.Colormap)
	if err != nil {
		return types.ComponentArgs{}, err
	}
	return buildArgs(seq, heat, opts.Options)
}

// Colorize builds an (N,H,W,3) heatmap tensor matching images from
// scalar masks. There may be fewer masks than frames; frames past the last
// mask and frames marked absent stay black.
func Colorize(images *raster.Tensor, masks *raster.Mask, id colormap.ID) (*raster.Tensor, error) {
	n, h, w, _ := images.Dims()
	mn, mh, mw := masks.Dims()
	if mn > n {
		return nil, fmt.Errorf("%w: %d masks for %d frames", ErrShapeMismatch, mn, n)
	}
	if mn > 0 && (mh != h || mw != w) {
		return nil, fmt.Errorf("%w: mask %dx%d, image %dx%d", ErrShapeMismatch, mw, mh, w, h)
	}
	frameSize := h * w * 3
	pix := make([]uint8, n*frameSize)
	for i := 0; i < mn; i++ {
		if !masks.Present(i) {
			continue
		}
		normalized := colormap.Normalize(masks.Frame(i))
		if err := colormap.ApplyRGB(pix[i*frameSize:(i+1)*frameSize], normalized, id); err != nil {
			return nil, fmt.Errorf("mask %d: %w", i, err)
		}
	}
	return raster.NewTensor([]int{n, h, w, 3}, pix)
}
