package ingest

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageFrame(t *testing.T) {
	msg := map[string]any{
		"type":     "frame",
		"key":      "camera",
		"image_id": 7,
		"image":    []byte{0xff, 0xd8, 0xff},
		"mask": cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				[]any{1, 2},
				cbor.Tag{
					Number:  tagUint8,
					Content: []byte{10, 20},
				},
			},
		},
	}

	payload, err := cbor.Marshal(msg)
	require.NoError(t, err)

	raw, err := DecodeMessage(payload)
	require.NoError(t, err)

	assert.Equal(t, "frame", raw.Type)
	assert.Equal(t, "camera", raw.Frame.Key)
	assert.Equal(t, 7, raw.Frame.ImageID)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, raw.Frame.Image)
	assert.Equal(t, [][]float64{{10, 20}}, raw.Frame.Mask)
}

func TestDecodeMessageFrameWithoutMask(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"type": "frame", "image": []byte{1}})
	require.NoError(t, err)

	raw, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Nil(t, raw.Frame.Mask)
	assert.Equal(t, 0, raw.Frame.ImageID)
}

func TestDecodeMessageConfig(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"type": "config", "alpha": 0.2, "colormap": "hot"})
	require.NoError(t, err)

	raw, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, "config", raw.Type)
	assert.Equal(t, map[string]any{"alpha": 0.2, "colormap": "hot"}, raw.Config)
}

func TestDecodeMessageRejects(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff, 0x00})
	assert.Error(t, err)

	payload, err := cbor.Marshal(map[string]any{"type": "frame"})
	require.NoError(t, err)
	_, err = DecodeMessage(payload)
	assert.Error(t, err, "frame without image")

	payload, err = cbor.Marshal(map[string]any{"type": "start"})
	require.NoError(t, err)
	_, err = DecodeMessage(payload)
	assert.Error(t, err)
}
