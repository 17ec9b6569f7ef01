package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/JensRahnfeld/streamlit-overlay/internal/framepack"
	"github.com/JensRahnfeld/streamlit-overlay/internal/raster"
)

func main() {
	var (
		format = flag.String("format", "jpeg", "Frame encoding: jpeg, png or rgba (raw padded pixels)")
		out    = flag.String("out", "", "Output file (stdout when empty)")
		verify = flag.Bool("verify", false, "Unpack the result and print each frame size")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("usage: overlay-pack [flags] frame1.png frame2.png ...")
	}

	images := make([]image.Image, 0, flag.NArg())
	for _, path := range flag.Args() {
		img, err := readImage(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		images = append(images, img)
	}

	var blob []byte
	if *format == "rgba" {
		t, err := raster.FromImages(images)
		if err != nil {
			log.Fatalf("stack frames: %v", err)
		}
		blob = t.PadRGBA().Pix
	} else {
		f, err := framepack.ParseFormat(*format)
		if err != nil {
			log.Fatal(err)
		}
		blob, err = framepack.Pack(images, f)
		if err != nil {
			log.Fatalf("pack: %v", err)
		}
	}

	if *out == "" {
		if _, err := os.Stdout.Write(blob); err != nil {
			log.Fatal(err)
		}
	} else if err := os.WriteFile(*out, blob, 0o644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("packed %d frames into %d bytes", len(images), len(blob))

	if *verify && *format != "rgba" {
		payloads, err := framepack.Unpack(blob)
		if err != nil {
			log.Fatalf("verify: %v", err)
		}
		for i, p := range payloads {
			fmt.Fprintf(os.Stderr, "frame %d: %d bytes\n", i, len(p))
		}
	}
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
