package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kozaktomas/photo-variants/internal/archive"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/dedup"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/textgen"
	"github.com/kozaktomas/photo-variants/internal/watermark"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const localUser = "local"

var runCmd = &cobra.Command{
	Use:   "run <photo-dir>...",
	Short: "Generate variants from photo directories",
	Long: `Ingest every image in the given directories, drop near-duplicates and
generate N variants of M photos each, packed into a zip archive.

Running again with the same --job-id resumes the stored job instead of
ingesting anew. A stopped or failed job is rerun from the start; --n and --m
may be changed for the rerun.

Press Ctrl+C to stop. Files written so far stay on disk.

Examples:
  # 10 variants of 5 photos from one folder
  photo-variants run ./flat --description-file listing.txt

  # Watermark every photo in the top-left corner
  photo-variants run ./flat --description-file listing.txt --watermark logo.png --placement tl

  # Rerun a stored job with different parameters
  photo-variants run --job-id 3f1c... --n 20 --m 4`,
	RunE: runVariants,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("n", 0, "Number of variants (default 10)")
	runCmd.Flags().Int("m", 0, "Photos per variant (default 5)")
	runCmd.Flags().String("description", "", "Base description")
	runCmd.Flags().String("description-file", "", "Read the base description from a file")
	runCmd.Flags().String("facts-file", "", "Read listing facts (JSON object or Key: value lines) from a file")
	runCmd.Flags().String("title", "", "Archive title (default ads_<date>_<time>)")
	runCmd.Flags().String("watermark", "", "Watermark image to apply")
	runCmd.Flags().String("placement", "", "Watermark placement: tl, tr, bl, br or center")
	runCmd.Flags().Int("opacity", -1, "Watermark opacity percent (10-100)")
	runCmd.Flags().Int("margin", -1, "Watermark margin in pixels (0-64)")
	runCmd.Flags().String("user", "", "User ID; without --watermark the stored profile of this user is used")
	runCmd.Flags().String("job-id", "", "Job ID, resumes the job when it already exists")
	runCmd.Flags().String("out", "", "Job directory (default <workspace>/<user>/<job-id>)")
	runCmd.Flags().Int("workers", 0, "Augmentation workers (default from WORKERS)")
}

func runVariants(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)
	ctx := context.Background()

	if workers := mustGetInt(cmd, "workers"); workers > 0 {
		cfg.Limits.Workers = workers
	}
	limits := job.LimitsFromConfig(cfg.Limits)

	userID := mustGetString(cmd, "user")
	if userID == "" {
		userID = localUser
	}
	jobID := mustGetString(cmd, "job-id")
	if jobID == "" {
		jobID = job.NewID()
	}
	root := mustGetString(cmd, "out")
	if root == "" {
		root = cfg.Workspace.JobRoot(userID, jobID)
	}
	layout := job.Layout{Root: root}

	j, err := resumeJob(cmd, layout, limits)
	if err != nil {
		return err
	}
	if j != nil && j.Status == job.StatusDone && !cmd.Flags().Changed("n") && !cmd.Flags().Changed("m") {
		fmt.Printf("Job %s is already done, archive: %s\n", j.ID, j.ArchivePath)
		return nil
	}
	if j == nil {
		if len(args) == 0 {
			return errors.New("at least one photo directory is required")
		}
		j, err = newJob(ctx, cmd, cfg, args, userID, jobID, layout, limits)
		if err != nil {
			return err
		}
	}

	text, err := textgen.NewFromConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		text = nil
	}

	orch := orchestrator.New(orchestrator.Config{
		Text:    text,
		Packer:  archive.NewFromConfig(cfg.Packer),
		Workers: cfg.Limits.Workers,
		Limits:  limits,
	})

	token := orchestrator.NewToken()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			fmt.Println("\nStopping after the current photos...")
			token.Cancel()
		}
	}()

	fmt.Printf("Job %s: %d variants x %d photos from %d unique photos\n", j.ID, j.N, j.M, len(j.Unique))

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(string(orchestrator.PhaseTextGeneration)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	res := orch.Run(ctx, orchestrator.RunContext{
		SessionID: "cli",
		Layout:    layout,
		Cancel:    token,
		Progress:  progressBarSink(bar),
		Logger:    logger,
	}, j)
	fmt.Println()

	return reportOutcome(res, layout)
}

// resumeJob loads the job stored under layout, or returns nil when there is
// none. A changed --n or --m is applied before the rerun.
func resumeJob(cmd *cobra.Command, layout job.Layout, limits job.Limits) (*job.Job, error) {
	if _, err := os.Stat(filepath.Join(layout.Root, job.JobFile)); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check job file: %w", err)
	}

	j, err := job.Load(layout.Root)
	if err != nil {
		return nil, err
	}
	n, m := j.N, j.M
	if v := mustGetInt(cmd, "n"); v > 0 {
		n = v
	}
	if v := mustGetInt(cmd, "m"); v > 0 {
		m = v
	}
	if n != j.N || m != j.M {
		if err := j.SetParams(n, m, limits); err != nil {
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
	}
	fmt.Printf("Resuming job %s (%s)\n", j.ID, j.Status)
	return j, nil
}

func newJob(ctx context.Context, cmd *cobra.Command, cfg *config.Config, dirs []string, userID, jobID string, layout job.Layout, limits job.Limits) (*job.Job, error) {
	description, err := readDescription(mustGetString(cmd, "description"), mustGetString(cmd, "description-file"))
	if err != nil {
		return nil, err
	}
	var rawFacts string
	if path := mustGetString(cmd, "facts-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read facts file: %w", err)
		}
		rawFacts = string(data)
	}

	photos, err := ingestDirs(dirs, layout.PhotosDir())
	if err != nil {
		return nil, err
	}
	if len(photos) > limits.MaxPhotos {
		return nil, fmt.Errorf("too many photos: %d, at most %d", len(photos), limits.MaxPhotos)
	}

	pool, decisions := dedup.Cluster(photos, cfg.Limits.DuplicateThreshold, limits.MaxPhotos)
	for i, d := range decisions {
		if d.Verdict != dedup.Admitted {
			fmt.Printf("  %s: %s (distance %d)\n", filepath.Base(photos[i].Path), d.Verdict, d.Distance)
		}
	}
	fmt.Printf("Ingested %d photos, %d unique\n", len(photos), pool.Len())

	wm, err := resolveWatermark(ctx, cmd, cfg, userID)
	if err != nil {
		return nil, err
	}

	n := mustGetInt(cmd, "n")
	if n <= 0 {
		n = constants.DefaultN
	}
	m := mustGetInt(cmd, "m")
	if m <= 0 {
		m = constants.DefaultM
	}

	j, err := job.New(job.Params{
		ID:              jobID,
		UserID:          userID,
		Title:           mustGetString(cmd, "title"),
		BaseDescription: description,
		Facts:           job.FactsFromInput(rawFacts, description),
		Photos:          photos,
		Unique:          pool.Members(),
		N:               n,
		M:               m,
		Watermark:       wm,
	}, limits)
	if err != nil {
		return nil, err
	}
	if err := j.Save(layout.Root); err != nil {
		return nil, err
	}
	return j, nil
}

// readDescription returns the inline description, or the content of path
// when it is set.
func readDescription(inline, path string) (string, error) {
	if path == "" {
		return strings.TrimSpace(inline), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read description file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ingestDirs ingests the directories in order. Files that are not
// decodable images are reported and skipped.
func ingestDirs(dirs []string, dest string) ([]*photo.SourcePhoto, error) {
	var photos []*photo.SourcePhoto
	for _, dir := range dirs {
		batch, rejected, err := photo.IngestDir(dir, dest)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dir, err)
		}
		for _, r := range rejected {
			fmt.Printf("  skipped %s: %v\n", r.Path, r.Err)
		}
		photos = append(photos, batch...)
	}
	return photos, nil
}

// resolveWatermark builds the profile from --watermark, or loads the stored
// profile of --user. Placement, opacity and margin flags override either.
func resolveWatermark(ctx context.Context, cmd *cobra.Command, cfg *config.Config, userID string) (*watermark.Profile, error) {
	var p *watermark.Profile

	if path := mustGetString(cmd, "watermark"); path != "" {
		profile, err := profileFromFile(path)
		if err != nil {
			return nil, err
		}
		p = &profile
	} else if cmd.Flags().Changed("user") {
		store, err := database.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open profile store: %w", err)
		}
		defer store.Close()
		p, err = store.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load watermark profile: %w", err)
		}
	}
	if p == nil {
		return nil, nil
	}

	overrideProfile(p, mustGetString(cmd, "placement"), mustGetInt(cmd, "opacity"), mustGetInt(cmd, "margin"))
	fmt.Printf("Watermark: %s (%s, %d%%, %dpx)\n", p.OverlayPath, p.Placement, p.Opacity, p.Margin)
	return p, nil
}

// profileFromFile returns a default profile for the overlay at path.
func profileFromFile(path string) (watermark.Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return watermark.Profile{}, fmt.Errorf("failed to resolve watermark path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return watermark.Profile{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	sum := sha256.Sum256(data)
	return watermark.NewProfile(abs, hex.EncodeToString(sum[:])), nil
}

// overrideProfile applies the flags that were set. Negative opacity or
// margin means unset.
func overrideProfile(p *watermark.Profile, placement string, opacity, margin int) {
	if placement != "" {
		p.Placement = watermark.ParsePlacement(placement)
	}
	if opacity >= 0 {
		p.Opacity = opacity
	}
	if margin >= 0 {
		p.Margin = margin
	}
	*p = p.Normalize()
}

// progressBarSink renders orchestrator events on bar. Events arrive
// serialized and with non-decreasing progress.
func progressBarSink(bar *progressbar.ProgressBar) orchestrator.ProgressSink {
	var phase orchestrator.Phase
	return func(e orchestrator.Event) {
		if e.Phase != phase {
			phase = e.Phase
			bar.Describe(string(phase))
		}
		_ = bar.Set(e.Progress)
	}
}

func reportOutcome(res orchestrator.Result, layout job.Layout) error {
	switch res.Outcome {
	case orchestrator.Completed:
		fmt.Printf("Done: %d photos written\n", res.Written)
		fmt.Printf("Archive: %s\n", res.ArchivePath)
		return nil
	case orchestrator.Stopped:
		fmt.Printf("Stopped: %d photos written to %s\n", res.Written, layout.OutDir())
		slog.Debug("run stopped", "reason", res.Reason)
		return nil
	default:
		return fmt.Errorf("job failed after %d photos: %s", res.Written, res.Reason)
	}
}
