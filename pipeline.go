package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// ProcessedResult is the derived artifact for one image: the final encoded
// bytes plus the metadata the UI displays. Recomputed wholesale whenever the
// crop or the watermark changes; only the latest result is kept.
type ProcessedResult struct {
	Data      []byte         `json:"-"`
	Format    imaging.Format `json:"-"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	SizeBytes int            `json:"size_bytes"`
}

// MIME returns the media type of the result encoding.
func (r ProcessedResult) MIME() string {
	if r.Format == imaging.PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// DataURL renders the result as a base64 data URL for inline previews.
func (r ProcessedResult) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", r.MIME(), base64.StdEncoding.EncodeToString(r.Data))
}

// Pipeline runs the per-image chain: crop, downscale, watermark, encode.
// The same pipeline instance serves previews, recomputes and exports, so
// every path produces identical bytes for identical inputs.
type Pipeline struct {
	Cropper  Cropper
	Compress CompressParams
}

// NewPipeline wires the default imaging-backed pipeline.
func NewPipeline(params CompressParams) Pipeline {
	return Pipeline{
		Cropper:  NewImagingCropper(),
		Compress: params,
	}
}

// Process transforms one source image. rect may be empty, in which case the
// full image is used; the output encoding always matches the source format.
func (p Pipeline) Process(ctx context.Context, src SourceImage, rect CropRect, wm WatermarkConfig) (ProcessedResult, error) {
	var cropped bytes.Buffer
	if err := p.Cropper.Crop(ctx, bytes.NewReader(src.Data), &cropped, rect, src.Format); err != nil {
		return ProcessedResult{}, fmt.Errorf("crop %s: %w", src.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return ProcessedResult{}, err
	}

	img, err := imaging.Decode(&cropped)
	if err != nil {
		return ProcessedResult{}, fmt.Errorf("decode cropped %s: %w", src.Name, err)
	}

	img = p.Compress.Apply(img)
	if err := ctx.Err(); err != nil {
		return ProcessedResult{}, err
	}

	img, err = ApplyWatermark(ctx, img, wm)
	if err != nil {
		return ProcessedResult{}, fmt.Errorf("watermark %s: %w", src.Name, err)
	}

	var out bytes.Buffer
	if err := encodeImage(&out, img, src.Format, p.Compress.JPEGQuality); err != nil {
		return ProcessedResult{}, fmt.Errorf("encode %s: %w", src.Name, err)
	}

	b := img.Bounds()
	return ProcessedResult{
		Data:      out.Bytes(),
		Format:    src.Format,
		Width:     b.Dx(),
		Height:    b.Dy(),
		SizeBytes: out.Len(),
	}, nil
}
