package watermark

import (
	"image"
	"path/filepath"
	"time"

	"github.com/kozaktomas/photo-variants/internal/constants"
)

// Profile is a user's watermark configuration.
type Profile struct {
	OverlayPath string    `json:"filePath"`
	SHA256      string    `json:"sha256,omitempty"`
	Placement   Placement `json:"placement"`
	Opacity     int       `json:"opacity"`
	Margin      int       `json:"margin"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// NewProfile returns a profile with the default placement, opacity and margin.
func NewProfile(overlayPath, sha256 string) Profile {
	return Profile{
		OverlayPath: overlayPath,
		SHA256:      sha256,
		Placement:   BottomRight,
		Opacity:     constants.DefaultWatermarkOpacity,
		Margin:      constants.DefaultWatermarkMargin,
	}
}

// Normalize clamps opacity and margin to their ranges and resolves the
// placement.
func (p Profile) Normalize() Profile {
	p.Placement = ParsePlacement(string(p.Placement))
	p.Opacity = clamp(p.Opacity, constants.MinWatermarkOpacity, constants.MaxWatermarkOpacity)
	p.Margin = clamp(p.Margin, constants.MinWatermarkMargin, constants.MaxWatermarkMargin)
	return p
}

// StepOpacity moves opacity by delta steps of 10 percent.
func (p Profile) StepOpacity(delta int) Profile {
	p.Opacity += delta * constants.OpacityStep
	return p.Normalize()
}

// StepMargin moves margin by delta steps of 4 pixels.
func (p Profile) StepMargin(delta int) Profile {
	p.Margin += delta * constants.MarginStep
	return p.Normalize()
}

// Apply composites the profile's overlay onto base.
func (p Profile) Apply(base, overlay image.Image) *image.NRGBA {
	p = p.Normalize()
	return Apply(base, overlay, p.Placement, p.Opacity, p.Margin)
}

// Descriptor is the watermark snapshot recorded in a job manifest.
type Descriptor struct {
	Enabled   bool       `json:"enabled"`
	File      *string    `json:"file"`
	Placement *Placement `json:"placement"`
	Opacity   *int       `json:"opacity"`
	Margin    *int       `json:"margin"`
}

// Describe returns the manifest descriptor for an optional profile.
func Describe(p *Profile) Descriptor {
	if p == nil {
		return Descriptor{}
	}
	n := p.Normalize()
	file := filepath.Base(n.OverlayPath)
	return Descriptor{
		Enabled:   true,
		File:      &file,
		Placement: &n.Placement,
		Opacity:   &n.Opacity,
		Margin:    &n.Margin,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
