package cmd

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/watermark"
	"github.com/spf13/cobra"
)

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Manage stored watermark profiles",
	Long: `Manage the per-user watermark profiles kept in the profile store
(PostgreSQL when DATABASE_URL is set, otherwise the local SQLite file).`,
}

var watermarkGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show the watermark profile of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatermarkGet,
}

var watermarkSetCmd = &cobra.Command{
	Use:   "set <user-id> [image]",
	Short: "Store a watermark image and its settings for a user",
	Long: `Store a watermark profile for a user. When an image is given it is copied
into the workspace and becomes the user's overlay. Without an image only the
placement, opacity and margin of the existing profile are changed.

Examples:
  photo-variants watermark set 42 logo.png --placement br --opacity 60
  photo-variants watermark set 42 --margin 8`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWatermarkSet,
}

var watermarkPreviewCmd = &cobra.Command{
	Use:   "preview <user-id>",
	Short: "Render the watermark of a user to a JPEG",
	Long: `Render the stored watermark on a blank canvas, or on --photo when given,
and write the result as JPEG.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatermarkPreview,
}

func init() {
	rootCmd.AddCommand(watermarkCmd)
	watermarkCmd.AddCommand(watermarkGetCmd)
	watermarkCmd.AddCommand(watermarkSetCmd)
	watermarkCmd.AddCommand(watermarkPreviewCmd)

	watermarkGetCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{watermarkSetCmd, watermarkPreviewCmd} {
		c.Flags().String("placement", "", "Placement: tl, tr, bl, br or center")
		c.Flags().Int("opacity", -1, "Opacity percent (10-100)")
		c.Flags().Int("margin", -1, "Margin in pixels (0-64)")
	}

	watermarkPreviewCmd.Flags().String("photo", "", "Photo to render the watermark on")
	watermarkPreviewCmd.Flags().String("out", "watermark_preview.jpg", "Output JPEG path")
}

func openProfileStore(ctx context.Context, cfg *config.Config) (database.ProfileStore, error) {
	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	return store, nil
}

func printProfile(userID string, p *watermark.Profile) {
	if p == nil {
		fmt.Printf("User %s has no watermark\n", userID)
		return
	}
	n := p.Normalize()
	fmt.Printf("User:      %s\n", userID)
	fmt.Printf("File:      %s\n", n.OverlayPath)
	if n.SHA256 != "" {
		fmt.Printf("SHA256:    %s\n", n.SHA256)
	}
	fmt.Printf("Placement: %s\n", n.Placement)
	fmt.Printf("Opacity:   %d%%\n", n.Opacity)
	fmt.Printf("Margin:    %dpx\n", n.Margin)
	if !n.UpdatedAt.IsZero() {
		fmt.Printf("Updated:   %s\n", n.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func runWatermarkGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openProfileStore(ctx, config.Load())
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get watermark: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(p)
	}
	printProfile(args[0], p)
	return nil
}

func runWatermarkSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	userID := args[0]

	store, err := openProfileStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	existing, err := store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get watermark: %w", err)
	}

	var profile watermark.Profile
	switch {
	case len(args) == 2:
		profile, err = storeOverlay(&cfg.Workspace, userID, args[1])
		if err != nil {
			return err
		}
		if existing != nil {
			profile.Placement = existing.Placement
			profile.Opacity = existing.Opacity
			profile.Margin = existing.Margin
		}
	case existing != nil:
		profile = *existing
	default:
		return fmt.Errorf("user %s has no watermark yet, an image is required", userID)
	}

	overrideProfile(&profile, mustGetString(cmd, "placement"), mustGetInt(cmd, "opacity"), mustGetInt(cmd, "margin"))
	if err := store.Set(ctx, userID, profile); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	printProfile(userID, &profile)
	return nil
}

// storeOverlay copies the image at src into the user's workspace and returns
// a default profile for it.
func storeOverlay(ws *config.WorkspaceConfig, userID, src string) (watermark.Profile, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return watermark.Profile{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return watermark.Profile{}, fmt.Errorf("%s is not a supported image: %w", src, err)
	}

	dest := ws.WatermarkPath(userID, src)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return watermark.Profile{}, fmt.Errorf("failed to create watermark directory: %w", err)
	}
	if err := renameio.WriteFile(dest, data, 0644); err != nil {
		return watermark.Profile{}, fmt.Errorf("failed to write watermark: %w", err)
	}

	sum := sha256.Sum256(data)
	return watermark.NewProfile(dest, hex.EncodeToString(sum[:])), nil
}

func runWatermarkPreview(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openProfileStore(ctx, config.Load())
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get watermark: %w", err)
	}
	if p == nil {
		return fmt.Errorf("user %s has no watermark", args[0])
	}
	overrideProfile(p, mustGetString(cmd, "placement"), mustGetInt(cmd, "opacity"), mustGetInt(cmd, "margin"))

	out := mustGetString(cmd, "out")
	if err := renderPreview(*p, mustGetString(cmd, "photo"), out); err != nil {
		return err
	}
	fmt.Printf("Preview written to %s\n", out)
	return nil
}

// renderPreview writes profile p rendered on the photo at base, or on a blank
// canvas when base is empty.
func renderPreview(p watermark.Profile, base, out string) error {
	overlay, err := watermark.LoadOverlay(p.OverlayPath)
	if err != nil {
		return err
	}
	var img image.Image
	if base != "" {
		img, err = photo.Open(base)
		if err != nil {
			return err
		}
	}
	return photo.SaveJPEG(out, watermark.Preview(img, overlay, p), constants.PreviewJPEGQuality)
}
