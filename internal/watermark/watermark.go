// Package watermark scales, fades and composites a logo overlay onto photos.
package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/photo-variants/internal/constants"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrMissingAsset is returned when an overlay image cannot be read or decoded.
var ErrMissingAsset = errors.New("watermark asset missing")

// Placement selects the anchor of the overlay on the base image.
type Placement string

const (
	TopLeft     Placement = "tl"
	TopRight    Placement = "tr"
	BottomLeft  Placement = "bl"
	BottomRight Placement = "br"
	Center      Placement = "center"
)

// Placements lists every supported placement in display order.
var Placements = []Placement{TopLeft, TopRight, BottomLeft, BottomRight, Center}

// ParsePlacement accepts short (br) and long (bottom-right) names.
// Unknown values fall back to bottom-right.
func ParsePlacement(s string) Placement {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tl", "top-left", "topleft":
		return TopLeft
	case "tr", "top-right", "topright":
		return TopRight
	case "bl", "bottom-left", "bottomleft":
		return BottomLeft
	case "center", "centre", "c":
		return Center
	default:
		return BottomRight
	}
}

// Valid reports whether p is one of the five supported placements.
func (p Placement) Valid() bool {
	for _, known := range Placements {
		if p == known {
			return true
		}
	}
	return false
}

// Apply composites overlay onto base and returns an opaque image with the
// base's dimensions. opacity is a percentage and margin is in pixels.
func Apply(base, overlay image.Image, placement Placement, opacity, margin int) *image.NRGBA {
	out := imaging.Clone(base)
	bw, bh := out.Bounds().Dx(), out.Bounds().Dy()

	logo := scaleOverlay(overlay, bw)
	if logo == nil {
		return flatten(out)
	}
	fade(logo, opacity)

	pos := position(placement, bw, bh, logo.Bounds().Dx(), logo.Bounds().Dy(), margin)
	out = imaging.Overlay(out, logo, pos, 1.0)
	return flatten(out)
}

// scaleOverlay resizes the overlay to 14% of the base width, keeping its
// aspect ratio. Returns nil when either side would collapse to zero.
func scaleOverlay(overlay image.Image, baseWidth int) *image.NRGBA {
	ow, oh := overlay.Bounds().Dx(), overlay.Bounds().Dy()
	if ow == 0 || oh == 0 {
		return nil
	}
	targetW := int(float64(baseWidth) * constants.WatermarkWidthRatio)
	ratio := float64(targetW) / float64(ow)
	targetH := int(float64(oh) * ratio)
	if targetW <= 0 || targetH <= 0 {
		return nil
	}
	return imaging.Resize(overlay, targetW, targetH, imaging.Lanczos)
}

// fade multiplies the alpha channel in place, truncating.
func fade(img *image.NRGBA, opacity int) {
	f := float64(opacity) / 100.0
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(float64(img.Pix[i]) * f)
	}
}

// position returns the top-left corner of the overlay on the base.
func position(p Placement, bw, bh, lw, lh, margin int) image.Point {
	switch p {
	case TopLeft:
		return image.Pt(margin, margin)
	case TopRight:
		return image.Pt(bw-lw-margin, margin)
	case BottomLeft:
		return image.Pt(margin, bh-lh-margin)
	case Center:
		return image.Pt((bw-lw)/2, (bh-lh)/2)
	default:
		return image.Pt(bw-lw-margin, bh-lh-margin)
	}
}

func flatten(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// LoadOverlay opens and decodes an overlay image. Any failure is reported as
// ErrMissingAsset.
func LoadOverlay(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrMissingAsset)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingAsset, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMissingAsset, path, err)
	}
	return img, nil
}

// Preview renders the profile on base, or on a plain white canvas when base
// is nil.
func Preview(base, overlay image.Image, p Profile) *image.NRGBA {
	if base == nil {
		base = imaging.New(constants.PreviewWidth, constants.PreviewHeight, color.White)
	}
	p = p.Normalize()
	return Apply(base, overlay, p.Placement, p.Opacity, p.Margin)
}
