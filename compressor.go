package main

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxDimension = 1920
	defaultJPEGQuality  = 70
)

// CompressParams bound the output size of the pipeline. One value is shared
// by the interactive preview and the final export so that what the user sees
// is what they download.
type CompressParams struct {
	// MaxDimension caps the longer image side in pixels. Zero disables
	// resizing.
	MaxDimension int `json:"max_dimension"`
	// JPEGQuality applies to JPEG output only; PNG stays lossless.
	JPEGQuality int `json:"jpeg_quality"`
}

// DefaultCompressParams mirror the original batch-export settings.
var DefaultCompressParams = CompressParams{
	MaxDimension: defaultMaxDimension,
	JPEGQuality:  defaultJPEGQuality,
}

func (p CompressParams) normalized() CompressParams {
	if p.MaxDimension < 0 {
		p.MaxDimension = 0
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		p.JPEGQuality = defaultJPEGQuality
	}
	return p
}

// Apply downscales img so neither side exceeds MaxDimension, preserving the
// aspect ratio. Images already within the cap pass through untouched; the
// compressor never upscales.
func (p CompressParams) Apply(img image.Image) image.Image {
	p = p.normalized()
	if p.MaxDimension == 0 {
		return img
	}

	b := img.Bounds()
	if b.Dx() <= p.MaxDimension && b.Dy() <= p.MaxDimension {
		return img
	}
	return imaging.Fit(img, p.MaxDimension, p.MaxDimension, imaging.Lanczos)
}
