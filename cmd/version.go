package cmd

import (
	"fmt"
	"runtime"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// versionInfo describes the build and the pipeline defaults it was built with.
type versionInfo struct {
	Version            string `json:"version"`
	Commit             string `json:"commit"`
	Built              string `json:"built"`
	GoVersion          string `json:"goVersion"`
	DuplicateThreshold int    `json:"duplicateThreshold"`
	JPEGQuality        int    `json:"jpegQuality"`
	MaxPhotos          int    `json:"maxPhotos"`
	MaxVariants        int    `json:"maxVariants"`
	MaxPerVariant      int    `json:"maxPhotosPerVariant"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:            Version,
		Commit:             CommitSHA,
		Built:              BuildDate,
		GoVersion:          runtime.Version(),
		DuplicateThreshold: constants.DefaultDuplicateThreshold,
		JPEGQuality:        constants.OutputJPEGQuality,
		MaxPhotos:          constants.DefaultMaxPhotos,
		MaxVariants:        constants.DefaultMaxN,
		MaxPerVariant:      constants.DefaultMaxM,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and pipeline defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		if mustGetBool(cmd, "json") {
			return outputJSON(info)
		}
		fmt.Printf("photo-variants %s (%s)\n", info.Version, info.GoVersion)
		fmt.Printf("  Commit: %s\n", info.Commit)
		fmt.Printf("  Built:  %s\n", info.Built)
		fmt.Printf("  Dedup threshold: %d bits\n", info.DuplicateThreshold)
		fmt.Printf("  JPEG quality:    %d\n", info.JPEGQuality)
		fmt.Printf("  Limits:          %d photos, %d variants, %d photos per variant\n",
			info.MaxPhotos, info.MaxVariants, info.MaxPerVariant)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
