// Package archive packs a job's output tree into a single zip file.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/klauspost/compress/flate"
)

// ErrArchiving is returned when no packer could produce the archive.
var ErrArchiving = errors.New("archiving failed")

// Packer writes the contents of sourceDir into a zip at destPath, with every
// entry placed under rootName. It returns the path of the written archive.
type Packer interface {
	Pack(ctx context.Context, sourceDir, destPath, rootName string) (string, error)
}

// File is a single extra file added next to the packed folders.
type File struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// CreateRequest is the payload accepted by the packer service.
type CreateRequest struct {
	InputFolders   []string `json:"inputFolders"`
	OutputZipPath  string   `json:"outputZipPath"`
	RootFolderName string   `json:"rootFolderName,omitempty"`
	Flatten        bool     `json:"flatten"`
	Files          []File   `json:"files,omitempty"`
}

// CreateResponse reports the size and location of a written archive.
type CreateResponse struct {
	OK     bool   `json:"ok"`
	Bytes  int64  `json:"bytes"`
	Output string `json:"output"`
}

// Create writes the archive described by req. With Flatten the content of
// each input folder goes straight under RootFolderName; otherwise each folder
// keeps its base name. The archive replaces OutputZipPath atomically.
func Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if len(req.InputFolders) == 0 && len(req.Files) == 0 {
		return nil, errors.New("nothing to archive")
	}
	if req.OutputZipPath == "" {
		return nil, errors.New("output path is required")
	}
	for _, dir := range req.InputFolders {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("input folder not found: %s", dir)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("input is not a folder: %s", dir)
		}
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputZipPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create archive directory: %w", err)
	}

	out, err := renameio.TempFile("", req.OutputZipPath)
	if err != nil {
		return nil, fmt.Errorf("could not create temp archive: %w", err)
	}
	defer out.Cleanup()

	counter := &countingWriter{w: out}
	zw := zip.NewWriter(counter)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, dir := range req.InputFolders {
		prefix := req.RootFolderName
		if !req.Flatten {
			prefix = path.Join(prefix, filepath.Base(dir))
		}
		if err := addTree(ctx, zw, dir, prefix); err != nil {
			return nil, err
		}
	}
	for _, f := range req.Files {
		if f.Path == "" || f.Name == "" {
			continue
		}
		if err := addFile(zw, f.Path, path.Join(req.RootFolderName, f.Name)); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish archive: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("could not write archive: %w", err)
	}

	return &CreateResponse{OK: true, Bytes: counter.n, Output: req.OutputZipPath}, nil
}

// addTree adds every regular file below dir as prefix/<relative path>.
// Directories are walked in lexical order so the archive is reproducible.
func addTree(ctx context.Context, zw *zip.Writer, dir, prefix string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, path.Join(prefix, filepath.ToSlash(rel)))
	})
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("could not add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("could not compress %s: %w", name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Local packs on the local filesystem.
type Local struct{}

func (Local) Pack(ctx context.Context, sourceDir, destPath, rootName string) (string, error) {
	resp, err := Create(ctx, CreateRequest{
		InputFolders:   []string{sourceDir},
		OutputZipPath:  destPath,
		RootFolderName: rootName,
		Flatten:        true,
	})
	if err != nil {
		return "", err
	}
	return resp.Output, nil
}
