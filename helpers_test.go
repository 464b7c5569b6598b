package main

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

// encodeTestImage builds a solid-color image encoded in the given format.
func encodeTestImage(t *testing.T, w, h int, c color.NRGBA, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, c)
	var buf bytes.Buffer
	if err := encodeImage(&buf, img, format, 95); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestSource(t *testing.T, name string, w, h int, c color.NRGBA, format imaging.Format) SourceImage {
	t.Helper()
	src, err := NewSourceImage(name, encodeTestImage(t, w, h, c, format))
	if err != nil {
		t.Fatalf("new source image: %v", err)
	}
	return src
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode dimensions: %v", err)
	}
	return cfg.Width, cfg.Height
}

func decodeTestImage(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode image: %v", err)
	}
	return img
}
