package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Corner is one of the four watermark anchor positions.
type Corner string

const (
	CornerTopLeft     Corner = "top-left"
	CornerTopRight    Corner = "top-right"
	CornerBottomLeft  Corner = "bottom-left"
	CornerBottomRight Corner = "bottom-right"
)

const (
	// watermarkInset is the distance from the image edge to the watermark.
	watermarkInset = 10
	// iconGap separates the badge icon from the text.
	iconGap = 6

	defaultFontSize  = 18
	defaultTextColor = "#ffffff"
	// defaultTextAlpha makes the fill semi-transparent when the configured
	// color carries no explicit alpha channel.
	defaultTextAlpha = 0x80
)

// WatermarkConfig is the process-wide watermark. All images in a batch share
// one config at composite time; there is no per-image override.
type WatermarkConfig struct {
	Text string `json:"text"`
	// CopyrightGlyph prefixes the text with the © sign.
	CopyrightGlyph bool `json:"copyright_glyph"`
	FontSize       int  `json:"font_size"`
	// Color is a hex string, #rrggbb or #rrggbbaa.
	Color  string `json:"color"`
	Corner Corner `json:"corner"`
	// Icon enables the circular badge next to the text; IconPath points at
	// the badge image file.
	Icon     bool   `json:"icon"`
	IconPath string `json:"icon_path,omitempty"`
}

// DefaultWatermarkConfig is the state of the watermark form before the user
// touches it.
var DefaultWatermarkConfig = WatermarkConfig{
	FontSize: defaultFontSize,
	Color:    defaultTextColor,
	Corner:   CornerBottomRight,
}

// ComposedText is the string actually drawn: the text with the optional
// leading copyright glyph.
func (c WatermarkConfig) ComposedText() string {
	if c.CopyrightGlyph && c.Text != "" {
		return "© " + c.Text
	}
	return c.Text
}

func (c WatermarkConfig) normalized() WatermarkConfig {
	if c.FontSize <= 0 {
		c.FontSize = defaultFontSize
	}
	switch c.Corner {
	case CornerTopLeft, CornerTopRight, CornerBottomLeft, CornerBottomRight:
	default:
		c.Corner = CornerBottomRight
	}
	return c
}

var (
	watermarkFontOnce sync.Once
	watermarkFont     *sfnt.Font
	watermarkFontErr  error
)

// newFace builds a font face at the given size from the embedded Go Regular
// font. The parsed font is shared; faces are per-call since they are not
// safe for concurrent use.
func newFace(size int) (font.Face, error) {
	watermarkFontOnce.Do(func() {
		watermarkFont, watermarkFontErr = opentype.Parse(goregular.TTF)
	})
	if watermarkFontErr != nil {
		return nil, fmt.Errorf("failed to parse watermark font: %w", watermarkFontErr)
	}
	face, err := opentype.NewFace(watermarkFont, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// parseHexColor parses #rrggbb or #rrggbbaa. Six-digit colors get the
// default semi-transparent alpha.
func parseHexColor(s string) (color.NRGBA, error) {
	if s == "" {
		s = defaultTextColor
	}
	if s[0] == '#' {
		s = s[1:]
	}
	var r, g, b, a uint8
	a = defaultTextAlpha
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	default:
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected #rrggbb or #rrggbbaa", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}

// circleMask is an alpha mask selecting a filled circle, used to clip the
// badge icon.
type circleMask struct {
	d int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle { return image.Rect(0, 0, m.d, m.d) }

func (m *circleMask) At(x, y int) color.Color {
	r := float64(m.d) / 2
	dx := float64(x) + 0.5 - r
	dy := float64(y) + 0.5 - r
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{A: 0}
}

func loadBadgeIcon(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open icon %s: %w", path, err)
	}
	defer f.Close()
	icon, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon %s: %w", path, err)
	}
	return icon, nil
}

// ApplyWatermark draws the configured text (and optional badge icon) onto a
// copy of img at the chosen corner with a 10 px inset. Output dimensions
// always equal input dimensions. An icon that fails to load degrades to the
// unadorned text position; an empty config returns the image untouched.
func ApplyWatermark(ctx context.Context, img image.Image, cfg WatermarkConfig) (image.Image, error) {
	cfg = cfg.normalized()
	text := cfg.ComposedText()
	if text == "" && !cfg.Icon {
		return img, nil
	}

	col, err := parseHexColor(cfg.Color)
	if err != nil {
		return nil, err
	}
	face, err := newFace(cfg.FontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	var icon image.Image
	if cfg.Icon {
		icon, err = loadBadgeIcon(cfg.IconPath)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("badge icon unavailable, drawing text only")
			icon = nil
		}
	}

	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	textH := ascent + metrics.Descent.Ceil()
	textW := font.MeasureString(face, text).Ceil()

	// Footprint of text plus optional badge, badge sized to the text height.
	iconD := 0
	if icon != nil {
		iconD = textH
	}
	footW := textW
	footH := textH
	if icon != nil {
		footW += iconGap + iconD
		if iconD > footH {
			footH = iconD
		}
	}

	x0, y0 := anchorOrigin(cfg.Corner, bounds.Dx(), bounds.Dy(), footW, footH)

	// The badge sits nearest the corner; text shifts inward to make room.
	textX := x0
	iconX := x0
	switch cfg.Corner {
	case CornerTopLeft, CornerBottomLeft:
		if icon != nil {
			textX = x0 + iconD + iconGap
		}
	case CornerTopRight, CornerBottomRight:
		if icon != nil {
			iconX = x0 + footW - iconD
		}
	}

	if icon != nil {
		badge := imaging.Fill(icon, iconD, iconD, imaging.Center, imaging.Lanczos)
		iconY := y0 + (footH-iconD)/2
		rect := image.Rect(iconX, iconY, iconX+iconD, iconY+iconD)
		draw.DrawMask(canvas, rect, badge, image.Point{}, &circleMask{d: iconD}, image.Point{}, draw.Over)
	}

	if text != "" {
		textY := y0 + (footH-textH)/2
		d := &font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(col),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.I(textX),
				Y: fixed.I(textY + ascent),
			},
		}
		d.DrawString(text)
	}

	return canvas, nil
}

// anchorOrigin computes the top-left point of the watermark footprint for a
// corner, clamping so the footprint never leaves the canvas even when the
// inset cannot be honored.
func anchorOrigin(corner Corner, imgW, imgH, footW, footH int) (int, int) {
	x := watermarkInset
	y := watermarkInset
	switch corner {
	case CornerTopRight:
		x = imgW - watermarkInset - footW
	case CornerBottomLeft:
		y = imgH - watermarkInset - footH
	case CornerBottomRight:
		x = imgW - watermarkInset - footW
		y = imgH - watermarkInset - footH
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+footW > imgW {
		x = imgW - footW
		if x < 0 {
			x = 0
		}
	}
	if y+footH > imgH {
		y = imgH - footH
		if y < 0 {
			y = 0
		}
	}
	return x, y
}
