package main

import (
	"fmt"
	"image"
)

// AspectTag identifies how the crop ratio for an image is chosen.
type AspectTag string

const (
	AspectWide     AspectTag = "16:9"
	AspectClassic  AspectTag = "4:3"
	AspectSquare   AspectTag = "1:1"
	AspectCustom   AspectTag = "custom"
	AspectOriginal AspectTag = "original"
)

// AspectSelection is the per-image aspect choice. CustomW/CustomH are only
// consulted when Tag is AspectCustom.
type AspectSelection struct {
	Tag     AspectTag `json:"tag"`
	CustomW int       `json:"custom_w,omitempty"`
	CustomH int       `json:"custom_h,omitempty"`
}

func (s AspectSelection) String() string {
	if s.Tag == AspectCustom {
		return fmt.Sprintf("custom(%d:%d)", s.CustomW, s.CustomH)
	}
	return string(s.Tag)
}

// Ratio resolves the selection to a width/height ratio. Every input maps to
// a strictly positive finite value: degenerate custom or natural dimensions
// fall back to 1 (square) instead of erroring.
func (s AspectSelection) Ratio(naturalW, naturalH int) float64 {
	switch s.Tag {
	case AspectWide:
		return 16.0 / 9.0
	case AspectClassic:
		return 4.0 / 3.0
	case AspectSquare:
		return 1
	case AspectCustom:
		if s.CustomW > 0 && s.CustomH > 0 {
			return float64(s.CustomW) / float64(s.CustomH)
		}
		return 1
	case AspectOriginal:
		if naturalW > 0 && naturalH > 0 {
			return float64(naturalW) / float64(naturalH)
		}
		return 1
	default:
		return 1
	}
}

// FitRect returns the largest centered rectangle of the selection's ratio
// that fits inside a naturalW x naturalH image. Used by the headless batch
// path, where no interactive crop gesture exists.
func (s AspectSelection) FitRect(naturalW, naturalH int) CropRect {
	if naturalW <= 0 || naturalH <= 0 {
		return CropRect{}
	}
	ratio := s.Ratio(naturalW, naturalH)

	w, h := naturalW, naturalH
	if float64(naturalW)/float64(naturalH) > ratio {
		w = int(float64(naturalH) * ratio)
	} else {
		h = int(float64(naturalW) / ratio)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return CropRect{
		X:      (naturalW - w) / 2,
		Y:      (naturalH - h) / 2,
		Width:  w,
		Height: h,
	}
}

// CropRect is a crop rectangle in source-pixel space.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Empty reports whether the rectangle selects nothing, which happens when
// the user never completed a crop gesture.
func (c CropRect) Empty() bool {
	return c.Width <= 0 || c.Height <= 0
}

func (c CropRect) String() string {
	return fmt.Sprintf("crop(x=%d,y=%d,w=%d,h=%d)", c.X, c.Y, c.Width, c.Height)
}

// Bounds converts the rectangle to an image.Rectangle.
func (c CropRect) Bounds() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}
