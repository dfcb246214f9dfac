package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/dedup"
	"github.com/kozaktomas/photo-variants/internal/fingerprint"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup <dir>",
	Short: "Show which photos in a directory are near-duplicates",
	Long: `Run the images of a directory through the duplicate filter in name order,
the same way a job does, and print the verdict for each file. Nothing is
written next to the source files.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	dedupCmd.Flags().Bool("json", false, "Output as JSON")
	dedupCmd.Flags().Int("threshold", 0, "Duplicate threshold (default from DEDUP_THRESHOLD)")
	dedupCmd.Flags().Int("max", 0, "Pool capacity (default from MAX_PHOTOS)")
}

type dedupEntry struct {
	File     string `json:"file"`
	PHash    string `json:"phash,omitempty"`
	Verdict  string `json:"verdict"`
	Match    string `json:"match,omitempty"`
	Distance int    `json:"distance,omitempty"`
	Error    string `json:"error,omitempty"`
}

func runDedup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	threshold := mustGetInt(cmd, "threshold")
	if threshold <= 0 {
		threshold = cfg.Limits.DuplicateThreshold
	}
	capacity := mustGetInt(cmd, "max")
	if capacity <= 0 {
		capacity = cfg.Limits.MaxPhotos
	}

	tmp, err := os.MkdirTemp("", "photo-variants-dedup-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	entries, err := dedupDir(args[0], tmp, threshold, capacity)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(entries)
	}

	unique := 0
	for _, e := range entries {
		switch {
		case e.Error != "":
			fmt.Printf("%-10s %s: %s\n", e.Verdict, e.File, e.Error)
		case e.Match != "":
			fmt.Printf("%-10s %s (like %s, distance %d)\n", e.Verdict, e.File, e.Match, e.Distance)
		default:
			fmt.Printf("%-10s %s\n", e.Verdict, e.File)
		}
		if e.Verdict == dedup.Admitted.String() {
			unique++
		}
	}
	fmt.Printf("\n%d files, %d unique\n", len(entries), unique)
	return nil
}

// dedupDir ingests the images of dir into tmp and offers them to a fresh
// pool in name order.
func dedupDir(dir, tmp string, threshold, capacity int) ([]dedupEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() && photo.IsImageFile(f.Name()) {
			names = append(names, f.Name())
		}
	}
	slices.Sort(names)

	pool := dedup.NewPool[*photo.SourcePhoto](capacity, threshold)
	var admittedNames []string
	var entries []dedupEntry
	for _, name := range names {
		p, err := photo.IngestFile(filepath.Join(dir, name), tmp)
		if err != nil {
			entries = append(entries, dedupEntry{File: name, Verdict: "rejected", Error: err.Error()})
			continue
		}

		d := pool.Admit(p)
		e := dedupEntry{File: name, PHash: fingerprint.Hex(p.PHash), Verdict: d.Verdict.String()}
		switch d.Verdict {
		case dedup.Admitted:
			admittedNames = append(admittedNames, name)
		case dedup.Suppressed:
			e.Match = admittedNames[d.Index]
			e.Distance = d.Distance
		}
		entries = append(entries, e)
	}
	return entries, nil
}
