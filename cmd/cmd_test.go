package cmd

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/watermark"
	"github.com/schollz/progressbar/v3"
)

func createBlockImage(w, h int, seed uint32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := seed
	levels := make(map[[2]int]uint8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			key := [2]int{x / 8, y / 8}
			v, ok := levels[key]
			if !ok {
				state = state*1664525 + 1013904223
				v = uint8(state >> 24)
				levels[key] = v
			}
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func invert(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := range 3 {
			out.Pix[i+c] = 255 - out.Pix[i+c]
		}
	}
	return out
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestBuildHashReport(t *testing.T) {
	dir := t.TempDir()
	base := createBlockImage(64, 64, 1)
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	c := filepath.Join(dir, "c.png")
	writePNG(t, a, base)
	writePNG(t, b, base)
	writePNG(t, c, invert(base))

	report, err := buildHashReport([]string{a, b, c}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Files) != 3 {
		t.Fatalf("len(Files) = %d; want 3", len(report.Files))
	}
	if report.Files[0].Width != 64 || report.Files[0].Height != 64 {
		t.Errorf("size = %dx%d; want 64x64", report.Files[0].Width, report.Files[0].Height)
	}
	if len(report.Files[0].PHash) != 16 {
		t.Errorf("PHash = %q; want 16 hex digits", report.Files[0].PHash)
	}
	if len(report.Pairs) != 3 {
		t.Fatalf("len(Pairs) = %d; want 3", len(report.Pairs))
	}

	ab := report.Pairs[0]
	if ab.Distance != 0 || !ab.Similar {
		t.Errorf("a<->b = %d similar=%v; want 0 similar=true", ab.Distance, ab.Similar)
	}
	ac := report.Pairs[1]
	if ac.Similar {
		t.Errorf("a<->c distance %d marked similar", ac.Distance)
	}
}

func TestBuildHashReport_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := buildHashReport([]string{path}, 10); err == nil {
		t.Error("expected error for undecodable file")
	}
}

func TestDedupDir(t *testing.T) {
	dir := t.TempDir()
	base := createBlockImage(64, 64, 7)
	writePNG(t, filepath.Join(dir, "01.png"), base)
	writePNG(t, filepath.Join(dir, "02.png"), base)
	writePNG(t, filepath.Join(dir, "03.png"), invert(base))
	if err := os.WriteFile(filepath.Join(dir, "04.jpg"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := dedupDir(dir, t.TempDir(), 10, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		file    string
		verdict string
		match   string
	}{
		{"01.png", "admitted", ""},
		{"02.png", "suppressed", "01.png"},
		{"03.png", "admitted", ""},
		{"04.jpg", "rejected", ""},
	}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d; want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.File != w.file || e.Verdict != w.verdict || e.Match != w.match {
			t.Errorf("entry %d = %s/%s/%s; want %s/%s/%s", i, e.File, e.Verdict, e.Match, w.file, w.verdict, w.match)
		}
	}
}

func TestDedupDir_Full(t *testing.T) {
	dir := t.TempDir()
	base := createBlockImage(64, 64, 3)
	writePNG(t, filepath.Join(dir, "a.png"), base)
	writePNG(t, filepath.Join(dir, "b.png"), invert(base))

	entries, err := dedupDir(dir, t.TempDir(), 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[1].Verdict != "full" {
		t.Errorf("Verdict = %s; want full", entries[1].Verdict)
	}
}

func TestReadDescription(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listing.txt")
	if err := os.WriteFile(path, []byte("  Bright flat with a balcony\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		inline string
		path   string
		want   string
	}{
		{"inline", " Cozy studio ", "", "Cozy studio"},
		{"file wins", "ignored", path, "Bright flat with a balcony"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readDescription(tt.inline, tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("readDescription() = %q; want %q", got, tt.want)
			}
		})
	}

	if _, err := readDescription("", filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOverrideProfile(t *testing.T) {
	tests := []struct {
		name      string
		placement string
		opacity   int
		margin    int
		want      watermark.Profile
	}{
		{"unset keeps values", "", -1, -1, watermark.Profile{Placement: watermark.BottomRight, Opacity: 70, Margin: 24}},
		{"all set", "tl", 40, 8, watermark.Profile{Placement: watermark.TopLeft, Opacity: 40, Margin: 8}},
		{"clamped", "center", 500, 999, watermark.Profile{Placement: watermark.Center, Opacity: 100, Margin: 64}},
		{"zero opacity clamps up", "", 0, 0, watermark.Profile{Placement: watermark.BottomRight, Opacity: 10, Margin: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := watermark.Profile{Placement: watermark.BottomRight, Opacity: 70, Margin: 24}
			overrideProfile(&p, tt.placement, tt.opacity, tt.margin)
			if p != tt.want {
				t.Errorf("overrideProfile() = %+v; want %+v", p, tt.want)
			}
		})
	}
}

func TestProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	writePNG(t, path, createBlockImage(16, 16, 2))

	p, err := profileFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(p.OverlayPath) {
		t.Errorf("OverlayPath = %s; want absolute", p.OverlayPath)
	}
	if len(p.SHA256) != 64 {
		t.Errorf("SHA256 = %q; want 64 hex digits", p.SHA256)
	}
	if p.Placement != watermark.BottomRight {
		t.Errorf("Placement = %s; want br", p.Placement)
	}

	if _, err := profileFromFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStoreOverlay(t *testing.T) {
	ws := &config.WorkspaceConfig{Dir: t.TempDir()}
	src := filepath.Join(t.TempDir(), "logo.png")
	writePNG(t, src, createBlockImage(16, 16, 4))

	p, err := storeOverlay(ws, "42", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ws.WatermarkPath("42", "logo.png")
	if p.OverlayPath != want {
		t.Errorf("OverlayPath = %s; want %s", p.OverlayPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("overlay not copied: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "logo.txt")
	if err := os.WriteFile(bad, []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := storeOverlay(ws, "42", bad); err == nil {
		t.Error("expected error for non-image file")
	}
}

func TestRenderPreview(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "logo.png")
	writePNG(t, overlay, createBlockImage(32, 16, 9))
	base := filepath.Join(dir, "room.png")
	writePNG(t, base, createBlockImage(320, 240, 5))

	tests := []struct {
		name  string
		base  string
		wantW int
		wantH int
	}{
		{"blank canvas", "", 800, 600},
		{"on photo", base, 320, 240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "preview.jpg")
			if err := renderPreview(watermark.NewProfile(overlay, ""), tt.base, out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			img, err := photo.Open(out)
			if err != nil {
				t.Fatalf("failed to open preview: %v", err)
			}
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("preview size = %dx%d; want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}

	err := renderPreview(watermark.NewProfile(filepath.Join(dir, "gone.png"), ""), "", filepath.Join(dir, "x.jpg"))
	if err == nil {
		t.Error("expected error for missing overlay")
	}
}

func TestProgressBarSink(t *testing.T) {
	var buf bytes.Buffer
	bar := progressbar.NewOptions(100, progressbar.OptionSetWriter(&buf))
	sink := progressBarSink(bar)

	sink(orchestrator.Event{Phase: orchestrator.PhaseTextGeneration, Progress: 10})
	sink(orchestrator.Event{Phase: orchestrator.PhaseAugmentation, Progress: 55})

	state := bar.State()
	if state.CurrentNum != 55 {
		t.Errorf("CurrentNum = %d; want 55", state.CurrentNum)
	}
}

func TestReportOutcome(t *testing.T) {
	layout := job.Layout{Root: t.TempDir()}

	if err := reportOutcome(orchestrator.Result{Outcome: orchestrator.Completed, ArchivePath: "a.zip"}, layout); err != nil {
		t.Errorf("completed: unexpected error %v", err)
	}
	if err := reportOutcome(orchestrator.Result{Outcome: orchestrator.Stopped}, layout); err != nil {
		t.Errorf("stopped: unexpected error %v", err)
	}
	err := reportOutcome(orchestrator.Result{Outcome: orchestrator.Failed, Reason: "disk full"}, layout)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("failed: error = %v; want reason", err)
	}
}

func TestCurrentVersion(t *testing.T) {
	info := currentVersion()
	if info.Version != Version || info.Commit != CommitSHA {
		t.Errorf("version = %s/%s; want %s/%s", info.Version, info.Commit, Version, CommitSHA)
	}
	if info.DuplicateThreshold != 10 {
		t.Errorf("DuplicateThreshold = %d; want 10", info.DuplicateThreshold)
	}
	if info.MaxVariants != 100 || info.MaxPerVariant != 20 || info.MaxPhotos != 50 {
		t.Errorf("limits = %d/%d/%d; want 50/100/20", info.MaxPhotos, info.MaxVariants, info.MaxPerVariant)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
}
