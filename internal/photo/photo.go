// Package photo ingests uploads into normalized, fingerprinted source photos.
package photo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/renameio"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/fingerprint"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedInput is returned for uploads that are not decodable images.
var ErrUnsupportedInput = errors.New("unsupported input")

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// SourcePhoto is an ingested, orientation-normalized photo. It is never
// modified after ingestion.
type SourcePhoto struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	PHash  uint64 `json:"phash"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Fingerprint returns the perceptual hash.
func (p *SourcePhoto) Fingerprint() uint64 {
	return p.PHash
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

// Ingest decodes data, applies EXIF orientation, stores a normalized JPEG in
// dir and returns its descriptor.
func Ingest(data []byte, dir string) (*SourcePhoto, error) {
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: content type %s", ErrUnsupportedInput, ct)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInput, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedInput)
	}

	rgb := toRGB(img)
	encoded, err := EncodeJPEG(rgb, constants.OutputJPEGQuality)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(encoded)
	digest := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	path := filepath.Join(dir, digest[:16]+".jpg")
	if err := renameio.WriteFile(path, encoded, 0644); err != nil {
		return nil, fmt.Errorf("failed to write photo: %w", err)
	}

	return &SourcePhoto{
		Path:   path,
		SHA256: digest,
		PHash:  fingerprint.PHash(rgb),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// IngestFile reads a file from disk and ingests it.
func IngestFile(path, dir string) (*SourcePhoto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	p, err := Ingest(data, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// Rejection records a file that could not be ingested.
type Rejection struct {
	Path string
	Err  error
}

// IngestDir ingests every image file directly inside srcDir, in name order.
// A bad file is recorded as a rejection and does not stop the batch.
func IngestDir(srcDir, dir string) ([]*SourcePhoto, []Rejection, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var photos []*SourcePhoto
	var rejected []Rejection
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		path := filepath.Join(srcDir, e.Name())
		p, err := IngestFile(path, dir)
		if err != nil {
			rejected = append(rejected, Rejection{Path: path, Err: err})
			continue
		}
		photos = append(photos, p)
	}
	return photos, rejected, nil
}

// Open decodes a stored photo.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open photo %s: %w", path, err)
	}
	return img, nil
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveJPEG encodes img and atomically replaces path, so readers never see a
// partially written file.
func SaveJPEG(path string, img image.Image, quality int) error {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// toRGB drops alpha, keeping the stored color values.
func toRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

