package processing

import (
	"image"

	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

// Batch is an ordered frame sequence of one component key.
type Batch struct {
	Key    string
	Images []image.Image
	Masks  [][][]float64
}

// MaskSequence returns the masks of the batch, nil entries marking frames
// without a mask, or nil when no frame carried one.
func (b Batch) MaskSequence() [][][]float64 {
	for _, m := range b.Masks {
		if m != nil {
			return b.Masks
		}
	}
	return nil
}

// Aggregator groups frames per key into batches of a fixed size. A frame
// whose size differs from the pending batch starts a new one.
type Aggregator struct {
	size    int
	pending map[string]*Batch
}

func NewAggregator(size int) *Aggregator {
	if size < 1 {
		size = 1
	}
	return &Aggregator{
		size:    size,
		pending: make(map[string]*Batch),
	}
}

// AddFrame appends frame to its key's batch. It returns the batches that
// became complete, in order.
func (a *Aggregator) AddFrame(frame types.Frame) []Batch {
	var done []Batch
	b, ok := a.pending[frame.Key]
	if ok && len(b.Images) > 0 && b.Images[0].Bounds().Size() != frame.Image.Bounds().Size() {
		done = append(done, *b)
		ok = false
	}
	if !ok {
		b = &Batch{Key: frame.Key}
		a.pending[frame.Key] = b
	}
	b.Images = append(b.Images, frame.Image)
	b.Masks = append(b.Masks, frame.Mask)
	if len(b.Images) >= a.size {
		done = append(done, *b)
		delete(a.pending, frame.Key)
	}
	return done
}

// Flush returns and clears every pending batch.
func (a *Aggregator) Flush() []Batch {
	out := make([]Batch, 0, len(a.pending))
	for key, b := range a.pending {
		out = append(out, *b)
		delete(a.pending, key)
	}
	return out
}

func (a *Aggregator) Pending() int {
	n := 0
	for _, b := range a.pending {
		n += len(b.Images)
	}
	return n
}
