// Package ingest receives frames and masks from a ZeroMQ PUSH socket.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

// Recorder receives every raw message before it is decoded.
type Recorder interface {
	Record(payload []byte) error
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
	logCounter     atomic.Uint64
)

// Stream returns a channel of decoded messages. Expected CBOR messages:
//
//	{ "type": "frame", "key": <str>, "image_id": <int>, "image": <bytes>, "mask": <tag 40 array> }
//	{ "type": "config", "alpha": <float>, "fps": <int>, "colormap": <str> }
func Stream(ctx context.Context, endpoint string, logEvery int, recorder Recorder) (<-chan types.RawMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.SetRcvtimeo(250 * time.Millisecond); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(msg); err != nil {
					logEveryN(logEvery, "ingest record error: %v", err)
				}
			}

			start := time.Now()
			raw, err := DecodeMessage(msg)
			decodeCount.Add(1)
			decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
			if err != nil {
				decodeFailures.Add(1)
				logEveryN(logEvery, "ingest decode skipped message: %v", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- raw:
			}
		}
	}()

	return out, nil
}

// DecodeMessage decodes one CBOR ingest message.
func DecodeMessage(msg []byte) (types.RawMessage, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.RawMessage{}, fmt.Errorf("CBOR decode: %w", err)
	}

	msgType, _ := payload["type"].(string)
	switch msgType {
	case "frame":
		frame, err := decodeFrame(payload)
		if err != nil {
			return types.RawMessage{}, err
		}
		return types.RawMessage{Type: msgType, Frame: frame}, nil
	case "config":
		delete(payload, "type")
		return types.RawMessage{Type: msgType, Config: payload}, nil
	default:
		return types.RawMessage{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func decodeFrame(payload map[string]any) (types.RawFrame, error) {
	key, _ := payload["key"].(string)
	imageID := 0
	if v, ok := payload["image_id"]; ok {
		id, err := toInt(v)
		if err != nil {
			return types.RawFrame{}, fmt.Errorf("invalid image_id: %w", err)
		}
		imageID = id
	}
	image, ok := payload["image"].([]byte)
	if !ok || len(image) == 0 {
		return types.RawFrame{}, errors.New("missing image bytes")
	}

	frame := types.RawFrame{Key: key, ImageID: imageID, Image: image}
	if raw, ok := payload["mask"]; ok && raw != nil {
		mask, err := decodeMask(raw)
		if err != nil {
			return types.RawFrame{}, fmt.Errorf("invalid mask: %w", err)
		}
		frame.Mask = mask
	}
	return frame, nil
}

func DecodeFailures() uint64 {
	return decodeFailures.Load()
}

func DecodeTiming() (uint64, uint64) {
	return decodeCount.Load(), decodeNanos.Load()
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}

func logEveryN(n int, format string, args ...any) {
	if logCounter.Add(1)%uint64(n) == 0 {
		log.Printf(format, args...)
	}
}
