package main

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

var testDark = color.NRGBA{R: 10, G: 10, B: 40, A: 255}

func testWatermarkConfig(corner Corner) WatermarkConfig {
	return WatermarkConfig{
		Text:     "Copyright CC",
		FontSize: 18,
		Color:    "#ffffff",
		Corner:   corner,
	}
}

// countBright counts pixels in rect noticeably brighter than the dark test
// background, i.e. pixels touched by the watermark text.
func countBright(img image.Image, rect image.Rectangle) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 > 80 && g>>8 > 80 && b>>8 > 80 {
				n++
			}
		}
	}
	return n
}

func TestWatermarkKeepsDimensionsAllCorners(t *testing.T) {
	corners := []Corner{CornerTopLeft, CornerTopRight, CornerBottomLeft, CornerBottomRight}
	src := imaging.New(640, 480, testDark)

	for _, corner := range corners {
		t.Run(string(corner), func(t *testing.T) {
			out, err := ApplyWatermark(context.Background(), src, testWatermarkConfig(corner))
			if err != nil {
				t.Fatalf("ApplyWatermark() error: %v", err)
			}
			b := out.Bounds()
			if b.Dx() != 640 || b.Dy() != 480 {
				t.Errorf("dimensions = %dx%d, want 640x480", b.Dx(), b.Dy())
			}
		})
	}
}

func TestWatermarkDrawsInChosenCorner(t *testing.T) {
	const w, h, region = 640, 480, 160
	quadrants := map[Corner]image.Rectangle{
		CornerTopLeft:     image.Rect(0, 0, region, region),
		CornerTopRight:    image.Rect(w-region, 0, w, region),
		CornerBottomLeft:  image.Rect(0, h-region, region, h),
		CornerBottomRight: image.Rect(w-region, h-region, w, h),
	}

	for corner, quadrant := range quadrants {
		t.Run(string(corner), func(t *testing.T) {
			src := imaging.New(w, h, testDark)
			out, err := ApplyWatermark(context.Background(), src, testWatermarkConfig(corner))
			if err != nil {
				t.Fatalf("ApplyWatermark() error: %v", err)
			}

			if got := countBright(out, quadrant); got == 0 {
				t.Errorf("no text pixels found in %s quadrant", corner)
			}
			for other, otherQuadrant := range quadrants {
				if other == corner {
					continue
				}
				if got := countBright(out, otherQuadrant); got != 0 {
					t.Errorf("found %d stray pixels in %s quadrant", got, other)
				}
			}
		})
	}
}

// The text baseline must sit within the 10 px inset of the anchored edge.
func TestWatermarkRespectsInset(t *testing.T) {
	const w, h = 640, 480
	src := imaging.New(w, h, testDark)
	out, err := ApplyWatermark(context.Background(), src, testWatermarkConfig(CornerBottomRight))
	if err != nil {
		t.Fatalf("ApplyWatermark() error: %v", err)
	}

	// Nothing may be drawn inside the inset strip along the bottom and
	// right edges.
	if got := countBright(out, image.Rect(0, h-watermarkInset, w, h)); got != 0 {
		t.Errorf("found %d pixels inside the bottom inset", got)
	}
	if got := countBright(out, image.Rect(w-watermarkInset, 0, w, h)); got != 0 {
		t.Errorf("found %d pixels inside the right inset", got)
	}
}

func TestWatermarkEmptyConfigIsNoop(t *testing.T) {
	src := imaging.New(100, 100, testDark)
	out, err := ApplyWatermark(context.Background(), src, WatermarkConfig{})
	if err != nil {
		t.Fatalf("ApplyWatermark() error: %v", err)
	}
	if out != image.Image(src) {
		t.Error("expected the input image back unchanged")
	}
}

func TestWatermarkCopyrightGlyph(t *testing.T) {
	cfg := WatermarkConfig{Text: "CC", CopyrightGlyph: true}
	if got := cfg.ComposedText(); got != "© CC" {
		t.Errorf("ComposedText() = %q, want %q", got, "© CC")
	}
	cfg.CopyrightGlyph = false
	if got := cfg.ComposedText(); got != "CC" {
		t.Errorf("ComposedText() = %q, want %q", got, "CC")
	}
}

// A missing badge icon degrades to text-only output instead of failing.
func TestWatermarkMissingIconFallsBackToText(t *testing.T) {
	src := imaging.New(640, 480, testDark)
	cfg := testWatermarkConfig(CornerBottomRight)
	cfg.Icon = true
	cfg.IconPath = filepath.Join(t.TempDir(), "missing.png")

	out, err := ApplyWatermark(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("ApplyWatermark() error: %v", err)
	}
	if got := countBright(out, image.Rect(480, 320, 640, 480)); got == 0 {
		t.Error("no text pixels found after icon fallback")
	}
}

func TestWatermarkBadgeIcon(t *testing.T) {
	iconPath := filepath.Join(t.TempDir(), "badge.png")
	iconData := encodeTestImage(t, 64, 64, color.NRGBA{R: 220, G: 30, B: 30, A: 255}, imaging.PNG)
	if err := os.WriteFile(iconPath, iconData, 0644); err != nil {
		t.Fatal(err)
	}

	src := imaging.New(640, 480, testDark)
	cfg := testWatermarkConfig(CornerBottomRight)
	cfg.Icon = true
	cfg.IconPath = iconPath

	out, err := ApplyWatermark(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("ApplyWatermark() error: %v", err)
	}

	// The badge sits nearest the corner: look for red pixels there.
	found := 0
	for y := 480 - 60; y < 480; y++ {
		for x := 640 - 60; x < 640; x++ {
			r, g, _, _ := out.At(x, y).RGBA()
			if r>>8 > 150 && g>>8 < 100 {
				found++
			}
		}
	}
	if found == 0 {
		t.Error("no badge pixels found near the corner")
	}
}

// Oversized watermarks are clamped to the canvas instead of overflowing.
func TestWatermarkClampsOnTinyImage(t *testing.T) {
	src := imaging.New(24, 24, testDark)
	cfg := testWatermarkConfig(CornerBottomRight)
	cfg.Text = "a very long watermark that cannot fit"

	out, err := ApplyWatermark(context.Background(), src, cfg)
	if err != nil {
		t.Fatalf("ApplyWatermark() error: %v", err)
	}
	b := out.Bounds()
	if b.Dx() != 24 || b.Dy() != 24 {
		t.Errorf("dimensions = %dx%d, want 24x24", b.Dx(), b.Dy())
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#ffffff", color.NRGBA{R: 255, G: 255, B: 255, A: defaultTextAlpha}, false},
		{"ff0000", color.NRGBA{R: 255, A: defaultTextAlpha}, false},
		{"#11223344", color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, false},
		{"", color.NRGBA{R: 255, G: 255, B: 255, A: defaultTextAlpha}, false},
		{"#fff", color.NRGBA{}, true},
		{"#zzzzzz", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
