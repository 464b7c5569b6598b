package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SourceImage is one uploaded (or preloaded) image. Immutable once built;
// the orchestrator keys everything off its ID.
type SourceImage struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Format    imaging.Format `json:"-"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	SizeBytes int            `json:"size_bytes"`
	Data      []byte         `json:"-"`
}

// MIME returns the media type of the source encoding.
func (s SourceImage) MIME() string {
	if s.Format == imaging.PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// NewSourceImage probes the encoded bytes and builds a SourceImage. Only
// JPEG and PNG payloads are accepted; anything else is rejected the way the
// upload input filters non-image files.
func NewSourceImage(name string, data []byte) (SourceImage, error) {
	cfg, formatName, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceImage{}, fmt.Errorf("failed to probe image %s: %w", name, err)
	}

	var format imaging.Format
	switch formatName {
	case "jpeg":
		format = imaging.JPEG
	case "png":
		format = imaging.PNG
	default:
		return SourceImage{}, fmt.Errorf("unsupported image format %q for %s", formatName, name)
	}

	return SourceImage{
		ID:        uuid.New(),
		Name:      filepath.Base(name),
		Format:    format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeBytes: len(data),
		Data:      data,
	}, nil
}

// Decode fully decodes the source, honoring EXIF orientation.
func (s SourceImage) Decode() (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(s.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", s.Name, err)
	}
	return img, nil
}

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

func hasImageExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// loadImagesDir walks rootPath and loads every JPEG/PNG found. Unreadable
// or undecodable files are logged and skipped rather than failing the batch.
func loadImagesDir(ctx context.Context, rootPath string) ([]SourceImage, error) {
	var images []SourceImage

	if err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasImageExtension(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", path).Msg("cannot read file")
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		src, err := NewSourceImage(relPath, data)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("filename", relPath).Msg("cannot load image")
			return nil
		}
		images = append(images, src)
		return nil
	}); err != nil {
		return nil, err
	}

	return images, nil
}

// encodeImage writes img to w in the given format. JPEG uses the supplied
// quality; PNG is lossless and ignores it.
func encodeImage(w io.Writer, img image.Image, format imaging.Format, quality int) error {
	if format == imaging.PNG {
		return imaging.Encode(w, img, imaging.PNG)
	}
	if quality < 1 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// outputExtension is the file extension matching the output encoding.
func outputExtension(format imaging.Format) string {
	if format == imaging.PNG {
		return ".png"
	}
	return ".jpg"
}
