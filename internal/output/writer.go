package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
)

// WriteFrames writes each encoded frame to outputDir as
// <prefix>_<index>.<ext>, the extension taken from the frame's magic bytes.
// It returns the written paths.
func WriteFrames(outputDir string, prefix string, payloads [][]byte) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		ext := "bin"
		if name, err := framepack.Sniff(payload); err == nil {
			ext = name
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%04d.%s", prefix, i, ext))
		if err := os.WriteFile(filename, payload, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
