package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/fingerprint"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Compute perceptual hashes and pairwise distances",
	Long: `Compute the 64-bit perceptual hash of each image and the Hamming distance
between every pair. Pairs at or below the duplicate threshold are marked as
similar.

Examples:
  photo-variants hash a.jpg b.jpg
  photo-variants hash --json *.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().Bool("json", false, "Output as JSON")
	hashCmd.Flags().Int("threshold", 0, "Similarity threshold (default from DEDUP_THRESHOLD)")
}

type fileHash struct {
	File   string `json:"file"`
	PHash  string `json:"phash"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	bits   uint64
}

type pairDistance struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Distance int    `json:"distance"`
	Similar  bool   `json:"similar"`
}

type hashReport struct {
	Threshold int            `json:"threshold"`
	Files     []fileHash     `json:"files"`
	Pairs     []pairDistance `json:"pairs"`
}

func runHash(cmd *cobra.Command, args []string) error {
	threshold := mustGetInt(cmd, "threshold")
	if threshold <= 0 {
		threshold = config.Load().Limits.DuplicateThreshold
	}

	report, err := buildHashReport(args, threshold)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}

	for _, f := range report.Files {
		fmt.Printf("%s  %4dx%-4d  %s\n", f.PHash, f.Width, f.Height, f.File)
	}
	if len(report.Pairs) > 0 {
		fmt.Println()
	}
	for _, p := range report.Pairs {
		mark := ""
		if p.Similar {
			mark = "  similar"
		}
		fmt.Printf("%2d  %s <-> %s%s\n", p.Distance, filepath.Base(p.A), filepath.Base(p.B), mark)
	}
	return nil
}

func buildHashReport(paths []string, threshold int) (*hashReport, error) {
	report := &hashReport{Threshold: threshold}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		h, err := fingerprint.ComputeHashes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		report.Files = append(report.Files, fileHash{
			File:   path,
			PHash:  h.PHash,
			Width:  h.Width,
			Height: h.Height,
			bits:   h.PHashBits,
		})
	}

	for i := range report.Files {
		for j := i + 1; j < len(report.Files); j++ {
			a, b := report.Files[i], report.Files[j]
			d := fingerprint.HammingDistance(a.bits, b.bits)
			report.Pairs = append(report.Pairs, pairDistance{
				A:        a.File,
				B:        b.File,
				Distance: d,
				Similar:  d <= threshold,
			})
		}
	}
	return report, nil
}
