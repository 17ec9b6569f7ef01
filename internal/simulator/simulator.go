package simulator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

// Stream emits PNG frames of a noisy gradient with a Gaussian blob mask
// circling the image center, at rate frames per second.
func Stream(ctx context.Context, key string, width, height int, rate float64) <-chan types.RawMessage {
	out := make(chan types.RawMessage)
	go func() {
		defer close(out)

		if rate <= 0 {
			rate = 10
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
		defer ticker.Stop()

		imageID := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				payload, err := encodeFrame(imageID, width, height)
				if err != nil {
					log.Printf("simulator encode failed: %v", err)
					continue
				}
				msg := types.RawMessage{
					Type: "frame",
					Frame: types.RawFrame{
						Key:     key,
						ImageID: imageID,
						Image:   payload,
						Mask:    Mask(imageID, width, height),
					},
				}
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
				imageID++
			}
		}
	}()

	return out
}

func encodeFrame(imageID, width, height int) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	shift := uint8(imageID)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			noise := uint8(rand.Intn(16))
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*255/max(width-1, 1)) + noise,
				G: uint8(y*255/max(height-1, 1)) + shift,
				B: 96 + noise,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Mask returns the blob mask of frame imageID.
func Mask(imageID, width, height int) [][]float64 {
	angle := float64(imageID) * 2 * math.Pi / 60
	radius := 0.25 * float64(min(width, height))
	cx := float64(width)/2 + radius*math.Cos(angle)
	cy := float64(height)/2 + radius*math.Sin(angle)
	sigma2 := float64(width*height) / 40

	mask := make([][]float64, height)
	for y := range mask {
		mask[y] = make([]float64, width)
		for x := range mask[y] {
			dx := float64(x) - cx
			dy := float64(y) - cy
			mask[y][x] = 1000 * math.Exp(-(dx*dx+dy*dy)/sigma2)
		}
	}
	return mask
}
