// Package colormap turns normalized scalar masks into RGB heatmaps using
// fixed 256-entry lookup tables.
package colormap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// Epsilon replaces the value span when a mask is constant.
const Epsilon = 1e-6

var (
	ErrUnknownColormap = errors.New("unknown colormap")
	ErrSizeMismatch    = errors.New("mask size does not match image size")
)

type ID int

const (
	Jet ID = iota
	Hot
	Bone
	Gray
	Heat
	Rainbow
	SmoothBlueRed
	Kindlmann
	BlackBody
	numIDs
)

var names = [numIDs]string{
	Jet:           "jet",
	Hot:           "hot",
	Bone:          "bone",
	Gray:          "gray",
	Heat:          "heat",
	Rainbow:       "rainbow",
	SmoothBlueRed: "smooth-blue-red",
	Kindlmann:     "kindlmann",
	BlackBody:     "black-body",
}

func (id ID) String() string {
	if id < 0 || id >= numIDs {
		return fmt.Sprintf("colormap(%d)", int(id))
	}
	return names[id]
}

func Parse(value string) (ID, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return Jet, nil
	}
	for id, name := range names {
		if name == value {
			return ID(id), nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownColormap, value)
}

// Names lists the known colormaps in ID order.
func Names() []string {
	return append([]string(nil), names[:]...)
}

// Table is a lookup table indexed by round(255 * normalized value).
type Table [256][3]uint8

var (
	tables    [numIDs]*Table
	tableErrs [numIDs]error
	tableOnce [numIDs]sync.Once
)

// Lookup returns the shared table for id. Tables are built on first use
// and must not be modified.
func Lookup(id ID) (*Table, error) {
	if id < 0 || id >= numIDs {
		return nil, fmt.Errorf("%w %d", ErrUnknownColormap, int(id))
	}
	tableOnce[id].Do(func() {
		tables[id], tableErrs[id] = build(id)
	})
	return tables[id], tableErrs[id]
}

func build(id ID) (*Table, error) {
	switch id {
	case Jet:
		return fromSegments(jetSegments), nil
	case Hot:
		return fromSegments(hotSegments), nil
	case Bone:
		return fromSegments(boneSegments), nil
	case Gray:
		return fromSegments(graySegments), nil
	case Heat:
		return fromPalette(palette.Heat(256, 1))
	case Rainbow:
		return fromPalette(palette.Rainbow(256, palette.Blue, palette.Red, 1, 1, 1))
	case SmoothBlueRed:
		return fromColorMap(moreland.SmoothBlueRed())
	case Kindlmann:
		return fromColorMap(moreland.Kindlmann())
	case BlackBody:
		return fromColorMap(moreland.BlackBody())
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownColormap, int(id))
	}
}

func fromPalette(p palette.Palette) (*Table, error) {
	colors := p.Colors()
	if len(colors) != 256 {
		return nil, fmt.Errorf("palette has %d colors, want 256", len(colors))
	}
	var t Table
	for i, c := range colors {
		t[i] = rgb(c)
	}
	return &t, nil
}

func fromColorMap(cm palette.ColorMap) (*Table, error) {
	cm.SetMin(0)
	cm.SetMax(1)
	var t Table
	for i := range t {
		c, err := cm.At(float64(i) / 255)
		if err != nil {
			return nil, fmt.Errorf("colormap entry %d: %w", i, err)
		}
		t[i] = rgb(c)
	}
	return &t, nil
}

func rgb(c color.Color) [3]uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return [3]uint8{n.R, n.G, n.B}
}

// Index maps a normalized value to its table slot. Values outside [0,1]
// are clamped, NaN maps to 0.
func Index(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	i := math.Round(255 * v)
	if i < 0 {
		return 0
	}
	if i > 255 {
		return 255
	}
	return int(i)
}

// Normalize rescales values to [0,1] using min-max scaling. A constant
// mask divides by Epsilon and comes out all zero. The input is not
// modified.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	copy(out, values)
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		span = Epsilon
	}
	floats.AddConst(-lo, out)
	floats.Scale(1/span, out)
	return out
}

// Apply colorizes a normalized w×h mask.
func Apply(normalized []float64, w, h int, id ID) (*image.RGBA, error) {
	if len(normalized) != w*h {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrSizeMismatch, len(normalized), w, h)
	}
	table, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, v := range normalized {
		c := table[Index(v)]
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = c[0], c[1], c[2], 0xff
	}
	return img, nil
}

// ApplyRGB colorizes into dst, which holds w*h packed RGB triples.
func ApplyRGB(dst []uint8, normalized []float64, id ID) error {
	if len(dst) != len(normalized)*3 {
		return fmt.Errorf("%w: %d values for %d bytes", ErrSizeMismatch, len(normalized), len(dst))
	}
	table, err := Lookup(id)
	if err != nil {
		return err
	}
	for i, v := range normalized {
		c := table[Index(v)]
		copy(dst[i*3:i*3+3], c[:])
	}
	return nil
}
