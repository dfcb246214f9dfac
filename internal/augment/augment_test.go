package augment

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/kozaktomas/photo-variants/internal/seed"
)

func TestDrawRecipe_Ranges(t *testing.T) {
	for slot := range 200 {
		r := DrawRecipe(seed.New("job-ranges", 0, slot))

		if r.Crop < 0.01 || r.Crop >= 0.06 {
			t.Errorf("slot %d: crop %f out of [0.01, 0.06)", slot, r.Crop)
		}
		if r.Angle < -1.5 || r.Angle >= 1.5 {
			t.Errorf("slot %d: angle %f out of [-1.5, 1.5)", slot, r.Angle)
		}
		for name, f := range map[string]float64{"brightness": r.Brightness, "contrast": r.Contrast, "sharpness": r.Sharpness} {
			if f < 0.95 || f >= 1.05 {
				t.Errorf("slot %d: %s %f out of [0.95, 1.05)", slot, name, f)
			}
		}
	}
}

func TestDrawRecipe_DrawOrder(t *testing.T) {
	s := seed.New("job-order", 2, 3)
	got := DrawRecipe(s)

	ref := seed.New("job-order", 2, 3)
	want := Recipe{
		Crop:       ref.Uniform(0.01, 0.06),
		Angle:      ref.Uniform(-1.5, 1.5),
		Brightness: 1 + ref.Uniform(-0.05, 0.05),
		Contrast:   1 + ref.Uniform(-0.05, 0.05),
		Sharpness:  1 + ref.Uniform(-0.05, 0.05),
		Noise:      ref.Normal(0, 3),
	}

	if got != want {
		t.Errorf("DrawRecipe = %+v; want %+v", got, want)
	}
}

func TestApply_Deterministic(t *testing.T) {
	src := createPatternImage(64, 48)

	a := Apply(src, seed.New("job-det", 1, 2))
	b := Apply(src, seed.New("job-det", 1, 2))

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("same seed should produce byte-identical output")
	}
}

func TestApply_DifferentSeedsDiffer(t *testing.T) {
	src := createPatternImage(64, 48)

	a := Apply(src, seed.New("job-diff", 0, 0))
	b := Apply(src, seed.New("job-diff", 0, 1))

	if bytes.Equal(a.Pix, b.Pix) {
		t.Error("different slots should produce different output")
	}
}

func TestApply_PreservesDimensions(t *testing.T) {
	sizes := []struct {
		w, h int
	}{
		{1, 1},
		{3, 2},
		{17, 31},
		{64, 48},
		{200, 120},
	}

	for _, sz := range sizes {
		img := createPatternImage(sz.w, sz.h)
		out := Apply(img, seed.New("job-dims", sz.w, sz.h))

		if out.Bounds().Dx() != sz.w || out.Bounds().Dy() != sz.h {
			t.Errorf("Apply on %dx%d returned %dx%d", sz.w, sz.h, out.Bounds().Dx(), out.Bounds().Dy())
		}
		for i := 3; i < len(out.Pix); i += 4 {
			if out.Pix[i] != 0xff {
				t.Fatalf("Apply on %dx%d produced non-opaque pixel", sz.w, sz.h)
			}
		}
	}
}

func TestApply_OffsetBounds(t *testing.T) {
	img := createPatternImage(40, 30).SubImage(image.Rect(5, 5, 25, 20))

	out := Apply(img, seed.New("job-sub", 0, 0))

	if out.Bounds() != image.Rect(0, 0, 20, 15) {
		t.Errorf("expected origin-anchored 20x15 output, got %v", out.Bounds())
	}
}

func TestNormalize_DropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	out := Normalize(img)

	if c := out.NRGBAAt(0, 0); c != (color.NRGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("Normalize pixel = %+v; want {10 20 30 255}", c)
	}
}

func TestBlend(t *testing.T) {
	tests := []struct {
		name       string
		degenerate float64
		value      float64
		factor     float64
		expected   uint8
	}{
		{"identity", 50, 200, 1.0, 200},
		{"degenerate", 50, 200, 0.0, 50},
		{"brighten truncates", 0, 101, 1.05, 106},
		{"clips high", 0, 250, 1.05, 255},
		{"clips low", 200, 0, 1.05, 0},
		{"contrast toward mean", 128, 28, 0.95, 33},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := blend(tc.degenerate, tc.value, tc.factor)
			if got != tc.expected {
				t.Errorf("blend(%v, %v, %v) = %d; want %d", tc.degenerate, tc.value, tc.factor, got, tc.expected)
			}
		})
	}
}

func TestMeanLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 0, 0, 255})

	if got := meanLuma(img); got != 127.5 {
		t.Errorf("meanLuma = %f; want 127.5", got)
	}
}

func TestEnhancers_IdentityFactor(t *testing.T) {
	img := Normalize(createPatternImage(16, 16))

	for name, fn := range map[string]func(*image.NRGBA, float64) *image.NRGBA{
		"brightness": brightness,
		"contrast":   contrast,
		"sharpness":  sharpness,
	} {
		t.Run(name, func(t *testing.T) {
			out := fn(img, 1.0)
			if !bytes.Equal(out.Pix, img.Pix) {
				t.Errorf("%s with factor 1.0 should not change pixels", name)
			}
		})
	}
}

func TestAddNoise_Clips(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{1, 128, 254, 255})

	up := addNoise(img, 3.7).NRGBAAt(0, 0)
	if up != (color.NRGBA{4, 131, 255, 255}) {
		t.Errorf("addNoise(+3.7) = %+v", up)
	}

	down := addNoise(img, -2.5).NRGBAAt(0, 0)
	if down != (color.NRGBA{0, 125, 251, 255}) {
		t.Errorf("addNoise(-2.5) = %+v", down)
	}
}

func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / max(width, 1)),
				G: uint8(y * 255 / max(height, 1)),
				B: uint8((x * y) % 256),
				A: 255,
			})
		}
	}
	return img
}
