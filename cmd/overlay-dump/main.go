package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
	"github.com/JensRahnfeld/streamlit-overlay/internal/output"
)

var errLimit = errors.New("limit reached")

func main() {
	var (
		path    = flag.String("path", "", "Path to a render log .bin file")
		limit   = flag.Int("limit", 1, "Number of records to dump (0 for all)")
		extract = flag.String("extract", "", "Write the frames of each record into this directory")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	count := 0
	err = output.ReadRawLog(f, func(ts time.Time, payload []byte) error {
		if *limit > 0 && count >= *limit {
			return errLimit
		}
		defer func() { count++ }()

		if len(payload) == 0 {
			log.Printf("record %d: empty blob", count)
			return nil
		}
		frames, err := framepack.Unpack(payload)
		if err != nil {
			log.Printf("record %d: %v", count, err)
			return nil
		}
		log.Printf("record %d timestamp=%s size=%d frames=%d", count, ts.Format(time.RFC3339Nano), len(payload), len(frames))
		for i, frame := range frames {
			name, err := framepack.Sniff(frame)
			if err != nil {
				name = "unknown"
			}
			fmt.Printf("  frame %d: %d bytes %s\n", i, len(frame), name)
		}
		if *extract != "" {
			paths, err := output.WriteFrames(*extract, fmt.Sprintf("record%04d", count), frames)
			if err != nil {
				return err
			}
			log.Printf("record %d: wrote %d files", count, len(paths))
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		log.Fatalf("read rawlog: %v", err)
	}
}
