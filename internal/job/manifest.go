package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

const readmeText = "Listing package. Layout: variant_NN/photo_XX.jpg and variant_NN/description.txt\n"

// Manifest summarizes a finished job. It is written once, when archiving.
type Manifest struct {
	JobID            string               `json:"jobId"`
	Title            string               `json:"title"`
	CreatedAt        time.Time            `json:"createdAt"`
	Variants         int                  `json:"variants"`
	PhotosPerVariant int                  `json:"photosPerVariant"`
	Facts            Facts                `json:"facts"`
	Watermark        watermark.Descriptor `json:"watermark"`
}

// Manifest builds the manifest for the job at time now.
func (j *Job) Manifest(now time.Time) Manifest {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Manifest{
		JobID:            j.ID,
		Title:            j.Title,
		CreatedAt:        now,
		Variants:         j.N,
		PhotosPerVariant: j.M,
		Facts:            j.Facts,
		Watermark:        watermark.Describe(j.Watermark),
	}
}

// Write stores manifest.json and README.txt in dir.
func (m Manifest) Write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, ReadmeFile), []byte(readmeText), 0644); err != nil {
		return fmt.Errorf("failed to write readme: %w", err)
	}
	return nil
}

// ReadManifest loads manifest.json from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
