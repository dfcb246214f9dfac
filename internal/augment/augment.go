// Package augment produces a softly altered copy of a photo. Every random
// choice comes from a seed.Stream, so the same stream always yields the same
// pixels.
package augment

import (
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/seed"
)

// smoothKernel is the 3x3 smoothing filter used as the "blurred" end of the
// sharpness blend.
var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// Recipe is the full set of random parameters for one render, in the order
// they are drawn from the stream.
type Recipe struct {
	Crop       float64 `json:"crop"`       // fraction trimmed from each side
	Angle      float64 `json:"angle"`      // degrees, counter-clockwise
	Brightness float64 `json:"brightness"` // blend factor against black
	Contrast   float64 `json:"contrast"`   // blend factor against mean grey
	Sharpness  float64 `json:"sharpness"`  // blend factor against smoothed copy
	Noise      float64 `json:"noise"`      // scalar added to every channel
}

// DrawRecipe consumes exactly six draws from the stream.
func DrawRecipe(s *seed.Stream) Recipe {
	var r Recipe
	r.Crop = s.Uniform(constants.CropMin, constants.CropMax)
	r.Angle = s.Uniform(-constants.RotateMaxDegrees, constants.RotateMaxDegrees)
	r.Brightness = 1 + s.Uniform(-constants.EnhanceSpread, constants.EnhanceSpread)
	r.Contrast = 1 + s.Uniform(-constants.EnhanceSpread, constants.EnhanceSpread)
	r.Sharpness = 1 + s.Uniform(-constants.EnhanceSpread, constants.EnhanceSpread)
	r.Noise = s.Normal(0, constants.NoiseStdDev)
	return r
}

// LogValue implements slog.LogValuer.
func (r Recipe) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("crop", r.Crop),
		slog.Float64("angle", r.Angle),
		slog.Float64("brightness", r.Brightness),
		slog.Float64("contrast", r.Contrast),
		slog.Float64("sharpness", r.Sharpness),
		slog.Float64("noise", r.Noise),
	)
}

// Apply draws a recipe from the stream and renders it.
func Apply(img image.Image, s *seed.Stream) *image.NRGBA {
	return ApplyRecipe(img, DrawRecipe(s))
}

// ApplyRecipe renders img with the given parameters. The output has the same
// dimensions as the input and is fully opaque.
func ApplyRecipe(img image.Image, r Recipe) *image.NRGBA {
	out := Normalize(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	if w == 0 || h == 0 {
		return out
	}

	// 1. Crop a few percent off every side and scale back up
	dx, dy := int(float64(w)*r.Crop), int(float64(h)*r.Crop)
	if dx > 0 || dy > 0 {
		out = imaging.Crop(out, image.Rect(dx, dy, w-dx, h-dy))
		out = imaging.Resize(out, w, h, imaging.Lanczos)
	}

	// 2. Micro rotation on an expanded white canvas, then back to WxH
	out = imaging.Rotate(out, r.Angle, color.White)
	out = imaging.Resize(out, w, h, imaging.Lanczos)

	// 3. Brightness, contrast, sharpness
	out = brightness(out, r.Brightness)
	out = contrast(out, r.Contrast)
	out = sharpness(out, r.Sharpness)

	// 4. Uniform noise offset
	out = addNoise(out, r.Noise)

	// 5. Slight blur
	return opaque(imaging.Blur(out, constants.BlurRadius))
}

// Normalize returns an opaque 8-bit RGB copy of img anchored at the origin.
// Alpha is discarded rather than composited.
func Normalize(img image.Image) *image.NRGBA {
	return opaque(imaging.Clone(img))
}

func opaque(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// blend returns degenerate + factor*(v - degenerate), truncated and clipped
// to the 8-bit range.
func blend(degenerate, v, factor float64) uint8 {
	return clip8(degenerate + factor*(v-degenerate))
}

func clip8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blend(0, float64(c.R), factor),
			G: blend(0, float64(c.G), factor),
			B: blend(0, float64(c.B), factor),
			A: c.A,
		}
	})
}

func contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := math.Floor(meanLuma(img) + 0.5)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: blend(mean, float64(c.R), factor),
			G: blend(mean, float64(c.G), factor),
			B: blend(mean, float64(c.B), factor),
			A: c.A,
		}
	})
}

func sharpness(img *image.NRGBA, factor float64) *image.NRGBA {
	smooth := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	out := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(img.Pix); i += 4 {
		out.Pix[i+0] = blend(float64(smooth.Pix[i+0]), float64(img.Pix[i+0]), factor)
		out.Pix[i+1] = blend(float64(smooth.Pix[i+1]), float64(img.Pix[i+1]), factor)
		out.Pix[i+2] = blend(float64(smooth.Pix[i+2]), float64(img.Pix[i+2]), factor)
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

func addNoise(img *image.NRGBA, noise float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clip8(float64(c.R) + noise),
			G: clip8(float64(c.G) + noise),
			B: clip8(float64(c.B) + noise),
			A: c.A,
		}
	})
}

// meanLuma is the average 8-bit luma, each pixel rounded the way an "L"
// conversion stores it.
func meanLuma(img *image.NRGBA) float64 {
	var sum uint64
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b := uint64(img.Pix[i]), uint64(img.Pix[i+1]), uint64(img.Pix[i+2])
		sum += (r*19595 + g*38470 + b*7471 + 0x8000) >> 16
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
