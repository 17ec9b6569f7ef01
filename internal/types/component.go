package types

// ComponentArgs are the arguments handed to the browser component. The
// field names are the ones the frontend reads.
type ComponentArgs struct {
	Images      []byte  `cbor:"images" json:"images"`
	Masks       []byte  `cbor:"masks" json:"masks"`
	Width       int     `cbor:"width" json:"width"`
	Height      int     `cbor:"height" json:"height"`
	NumFrames   int     `cbor:"numFrames" json:"numFrames"`
	Alpha       float64 `cbor:"alpha" json:"alpha"`
	Key         string  `cbor:"key" json:"key"`
	ToggleLabel string  `cbor:"toggleLabel" json:"toggleLabel"`
	FPS         int     `cbor:"fps" json:"fps"`
	Autoplay    bool    `cbor:"autoplay" json:"autoplay"`
	Format      string  `cbor:"format" json:"format"`
	Default     int     `cbor:"default" json:"default"`
}

type RenderMessage struct {
	Type string        `cbor:"type"`
	Args ComponentArgs `cbor:"args"`
}

// ComponentState is what the server knows about one mounted component.
type ComponentState struct {
	Key       string    `json:"key"`
	NumFrames int       `json:"num_frames"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Value     int       `json:"value"`
	HasValue  bool      `json:"has_value"`
	Click     []float64 `json:"click,omitempty"`
	Renders   uint64    `json:"renders"`
}
