package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JensRahnfeld/streamlit-overlay/internal/ingest"
	"github.com/JensRahnfeld/streamlit-overlay/internal/output"
	"github.com/JensRahnfeld/streamlit-overlay/internal/processing"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

type counts struct {
	frames  int
	configs int
	failed  int
	limit   int
}

func main() {
	path := flag.String("path", "", "Path to a CBOR file, a directory of .cbor files, or an ingest raw log (.bin)")
	limit := flag.Int("limit", 5, "Max number of frame messages to summarize")
	flag.Parse()

	if *path == "" {
		log.Fatal("missing -path")
	}

	c := &counts{limit: *limit}
	if filepath.Ext(*path) == ".bin" {
		f, err := os.Open(*path)
		if err != nil {
			log.Fatalf("open rawlog: %v", err)
		}
		defer f.Close()
		err = output.ReadRawLog(f, func(ts time.Time, payload []byte) error {
			c.summarize(ts.Format(time.RFC3339Nano), payload)
			return nil
		})
		if err != nil {
			log.Fatalf("read rawlog: %v", err)
		}
	} else {
		files, err := listFiles(*path)
		if err != nil {
			log.Fatalf("list files: %v", err)
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				log.Printf("read %s: %v", file, err)
				continue
			}
			c.summarize(file, data)
		}
	}

	fmt.Printf("summary: frame=%d config=%d failed=%d\n", c.frames, c.configs, c.failed)
}

func (c *counts) summarize(label string, data []byte) {
	msg, err := ingest.DecodeMessage(data)
	if err != nil {
		c.failed++
		log.Printf("decode %s: %v", label, err)
		return
	}
	switch msg.Type {
	case "config":
		c.configs++
		fmt.Printf("config: %s\n", label)
		fmt.Printf("  values: %v\n", msg.Config)
	case "frame":
		c.frames++
		if c.frames > c.limit {
			return
		}
		fmt.Printf("frame: %s\n", label)
		fmt.Printf("  key: %q image_id: %d image: %d bytes\n", msg.Frame.Key, msg.Frame.ImageID, len(msg.Frame.Image))
		fmt.Printf("  %s\n", describeFrame(msg.Frame))
	}
}

func describeFrame(raw types.RawFrame) string {
	frame, err := processing.ProcessRawFrame(raw)
	if err != nil {
		return fmt.Sprintf("invalid: %v", err)
	}
	b := frame.Image.Bounds()
	if len(frame.Mask) == 0 {
		return fmt.Sprintf("size %dx%d, no mask", b.Dx(), b.Dy())
	}
	return fmt.Sprintf("size %dx%d, mask %dx%d", b.Dx(), b.Dy(), len(frame.Mask[0]), len(frame.Mask))
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cbor" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
