package job

import (
	"fmt"
	"path/filepath"
)

const (
	JobFile         = "job.json"
	ManifestFile    = "manifest.json"
	ReadmeFile      = "README.txt"
	TextsFile       = "generated_texts.json"
	DescriptionFile = "description.txt"
	ArchiveFile     = "archive.zip"
)

// Layout resolves the paths inside a job root:
//
//	<root>/job.json
//	<root>/photos/            ingested uploads
//	<root>/preview/           watermark previews
//	<root>/out/variant_NN/    description.txt and photo_NN.jpg
//	<root>/out/manifest.json
//	<root>/archive.zip
type Layout struct {
	Root string
}

func (l Layout) PhotosDir() string  { return filepath.Join(l.Root, "photos") }
func (l Layout) PreviewDir() string { return filepath.Join(l.Root, "preview") }
func (l Layout) OutDir() string     { return filepath.Join(l.Root, "out") }
func (l Layout) TextsPath() string  { return filepath.Join(l.Root, TextsFile) }
func (l Layout) ArchivePath() string {
	return filepath.Join(l.Root, ArchiveFile)
}

// VariantDir is the folder of variant v (zero-based), numbered from 01.
func (l Layout) VariantDir(v int) string {
	return filepath.Join(l.OutDir(), fmt.Sprintf("variant_%02d", v+1))
}

// PhotoPath is the file for slot m (zero-based) of variant v.
func (l Layout) PhotoPath(v, m int) string {
	return filepath.Join(l.VariantDir(v), PhotoName(m))
}

// PhotoName is the file name for slot m (zero-based), numbered from 01.
func PhotoName(m int) string {
	return fmt.Sprintf("photo_%02d.jpg", m+1)
}
