package colormap

import "math"

// anchor is one control point of a piecewise-linear channel ramp.
type anchor struct {
	x, y float64
}

type segments struct {
	r, g, b []anchor
}

var jetSegments = segments{
	r: []anchor{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}},
	g: []anchor{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}},
	b: []anchor{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}},
}

var hotSegments = segments{
	r: []anchor{{0, 0.0416}, {0.365079, 1}, {1, 1}},
	g: []anchor{{0, 0}, {0.365079, 0}, {0.746032, 1}, {1, 1}},
	b: []anchor{{0, 0}, {0.746032, 0}, {1, 1}},
}

var boneSegments = segments{
	r: []anchor{{0, 0}, {0.746032, 0.652778}, {1, 1}},
	g: []anchor{{0, 0}, {0.365079, 0.319444}, {0.746032, 0.777778}, {1, 1}},
	b: []anchor{{0, 0}, {0.365079, 0.444444}, {1, 1}},
}

var graySegments = segments{
	r: []anchor{{0, 0}, {1, 1}},
	g: []anchor{{0, 0}, {1, 1}},
	b: []anchor{{0, 0}, {1, 1}},
}

func fromSegments(s segments) *Table {
	var t Table
	for i := range t {
		x := float64(i) / 255
		t[i] = [3]uint8{channel(s.r, x), channel(s.g, x), channel(s.b, x)}
	}
	return &t
}

func channel(ramp []anchor, x float64) uint8 {
	y := ramp[len(ramp)-1].y
	for i := 1; i < len(ramp); i++ {
		lo, hi := ramp[i-1], ramp[i]
		if x <= hi.x {
			y = lo.y + (hi.y-lo.y)*(x-lo.x)/(hi.x-lo.x)
			break
		}
	}
	return uint8(math.Round(255 * math.Max(0, math.Min(1, y))))
}
