package types

import "image"

// RawFrame is a frame as it arrives from ingest, before image decoding.
type RawFrame struct {
	Key     string `cbor:"key" json:"key"`
	ImageID int    `cbor:"image_id" json:"image_id"`
	Image   []byte `cbor:"image" json:"-"`
	Mask    any    `cbor:"mask" json:"-"`
}

// RawMessage is one decoded ingest message. Image messages carry Frame,
// config messages carry Config.
type RawMessage struct {
	Type   string
	Frame  RawFrame
	Config map[string]any
}

type Frame struct {
	Key     string
	ImageID int
	Image   image.Image
	Mask    [][]float64
}
