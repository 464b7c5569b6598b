package main

import (
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// cropQuality is the JPEG quality used for intermediate crop encoding.
const cropQuality = 95

// Cropper extracts a pixel rectangle from an encoded image.
type Cropper interface {
	Crop(ctx context.Context, r io.Reader, w io.Writer, rect CropRect, format imaging.Format) error
}

// ImagingCropper is an implementation of the Cropper interface
// using the disintegration/imaging library
type ImagingCropper struct{}

// NewImagingCropper creates a new instance of ImagingCropper
func NewImagingCropper() *ImagingCropper {
	return &ImagingCropper{}
}

// Crop implements the Cropper interface using the imaging library.
// It reads an image from r, crops it to rect, and writes the result to w in
// the given format. An empty rect means the user never completed a crop
// gesture; the whole source is encoded instead of failing. Rects reaching
// outside the image are clamped to its bounds.
func (c *ImagingCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, rect CropRect, format imaging.Format) error {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bounds := src.Bounds()
	out := src

	if rect.Empty() {
		log.Ctx(ctx).Debug().Msg("empty crop rect, keeping full image")
	} else {
		cropRect := rect.Bounds().Intersect(bounds)
		if cropRect.Empty() {
			log.Ctx(ctx).Warn().Stringer("rect", rect).Msg("crop rect outside image bounds, keeping full image")
		} else {
			out = imaging.Crop(src, cropRect)
		}
	}

	return encodeImage(w, out, format, cropQuality)
}
