// Package orchestrator runs a job: text preparation, augmentation of every
// (variant, slot) pair, manifest and archive.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/photo-variants/internal/archive"
	"github.com/kozaktomas/photo-variants/internal/augment"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/plan"
	"github.com/kozaktomas/photo-variants/internal/seed"
	"github.com/kozaktomas/photo-variants/internal/textgen"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

// Phase is a step of a run.
type Phase string

const (
	PhaseTextGeneration Phase = "text_generation"
	PhaseAugmentation   Phase = "augmentation"
	PhaseArchiving      Phase = "archiving"
	PhaseDone           Phase = "done"
	PhaseStopped        Phase = "stopped"
	PhaseFailed         Phase = "failed"
)

// Outcome is how a run ended.
type Outcome int

const (
	Completed Outcome = iota
	Stopped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is returned by Run. Stopped is an expected outcome, not an error.
type Result struct {
	Outcome     Outcome
	Reason      string
	ArchivePath string
	Written     int
}

// Token is a cooperative stop signal shared between the caller and the
// workers.
type Token struct {
	stopped atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

// Cancel requests a stop. Safe to call more than once and from any goroutine.
func (t *Token) Cancel() {
	t.stopped.Store(true)
}

// Cancelled reports whether Cancel was called. A nil token is never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.stopped.Load()
}

// Event is a progress notification.
type Event struct {
	JobID    string `json:"jobId"`
	Phase    Phase  `json:"phase"`
	Progress int    `json:"progress"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Message  string `json:"message,omitempty"`
}

// ProgressSink receives events. Calls are serialized by the orchestrator.
type ProgressSink func(Event)

// RunContext carries the per-run collaborators.
type RunContext struct {
	SessionID string
	Layout    job.Layout
	Cancel    *Token
	Progress  ProgressSink
	Logger    *slog.Logger
}

// Config holds the injected ports and tuning.
type Config struct {
	Text       textgen.Generator
	Packer     archive.Packer
	Workers    int
	Limits     job.Limits
	StyleHints string
}

// Orchestrator runs jobs. It holds no per-job state and may run several
// jobs for different sessions at once.
type Orchestrator struct {
	text       textgen.Generator
	packer     archive.Packer
	workers    int
	limits     job.Limits
	styleHints string
}

// New returns an orchestrator. A nil packer means local packing only.
func New(cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Packer == nil {
		cfg.Packer = archive.Local{}
	}
	if cfg.Limits == (job.Limits{}) {
		cfg.Limits = job.DefaultLimits()
	}
	return &Orchestrator{
		text:       cfg.Text,
		packer:     cfg.Packer,
		workers:    cfg.Workers,
		limits:     cfg.Limits,
		styleHints: cfg.StyleHints,
	}
}

// run is the state of a single Run call.
type run struct {
	o      *Orchestrator
	rc     RunContext
	job    *job.Job
	logger *slog.Logger

	sinkMu     sync.Mutex
	progressMu sync.Mutex

	// watermarkOff is set when the overlay could not be loaded and photos
	// were rendered without it.
	watermarkOff bool
}

// Run executes j to completion, stop or failure. Status transitions are
// persisted to the job file under rc.Layout.Root. Files already written stay
// on disk whatever the outcome.
func (o *Orchestrator) Run(ctx context.Context, rc RunContext, j *job.Job) Result {
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_id", j.ID, "session_id", rc.SessionID)

	r := &run{o: o, rc: rc, job: j, logger: logger}
	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) Result {
	started := time.Now()
	r.job.SetStatus(job.StatusRunning, "")
	r.save()

	p, err := r.job.Plan(r.o.limits)
	if err != nil {
		return r.fail(err, 0)
	}

	// Text generation
	r.enterPhase(PhaseTextGeneration, constants.ProgressTextStart)
	texts := r.prepareTexts(ctx, p.Variants())
	r.enterPhase(PhaseTextGeneration, constants.ProgressTextDone)
	if r.stopRequested(ctx) {
		return r.stop(0)
	}

	// Augmentation
	r.enterPhase(PhaseAugmentation, constants.ProgressAugmentStart)
	written, err := r.augment(ctx, p, texts)
	if r.stopRequested(ctx) {
		return r.stop(written)
	}
	if err != nil {
		return r.fail(err, written)
	}

	// Archiving
	r.enterPhase(PhaseArchiving, constants.ProgressAugmentEnd)
	archivePath, err := r.archive(ctx)
	if r.stopRequested(ctx) {
		r.discardArchive(archivePath)
		return r.stop(written)
	}
	if err != nil {
		return r.fail(err, written)
	}

	r.job.SetArchivePath(archivePath)
	r.job.SetStatus(job.StatusDone, "")
	r.enterPhase(PhaseDone, constants.ProgressDone)
	r.save()

	r.logger.Info("job completed",
		"variants", p.Variants(),
		"photos_per_variant", p.PerVariant(),
		"written", written,
		"archive", archivePath,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return Result{Outcome: Completed, ArchivePath: archivePath, Written: written}
}

// discardArchive removes an archive packed while a stop was requested.
func (r *run) discardArchive(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove archive of stopped run", "path", path, "error", err)
	}
}

func (r *run) stopRequested(ctx context.Context) bool {
	return r.rc.Cancel.Cancelled() || ctx.Err() != nil
}

func (r *run) stop(written int) Result {
	r.job.SetStatus(job.StatusStopped, "")
	r.job.SetPhase(string(PhaseStopped), r.job.State().Progress)
	r.save()
	r.emit(Event{Phase: PhaseStopped, Progress: r.job.State().Progress, Message: "stopped by user"})
	r.logger.Info("job stopped", "written", written)
	return Result{Outcome: Stopped, Reason: "stopped", Written: written}
}

func (r *run) fail(err error, written int) Result {
	reason := err.Error()
	r.job.SetStatus(job.StatusFailed, reason)
	r.job.SetPhase(string(PhaseFailed), r.job.State().Progress)
	r.save()
	r.emit(Event{Phase: PhaseFailed, Progress: r.job.State().Progress, Message: reason})
	r.logger.Error("job failed", "error", err, "written", written)
	return Result{Outcome: Failed, Reason: reason, Written: written}
}

func (r *run) enterPhase(phase Phase, progress int) {
	r.job.SetPhase(string(phase), progress)
	r.save()
	r.emit(Event{Phase: phase, Progress: progress})
}

func (r *run) emit(e Event) {
	if r.rc.Progress == nil {
		return
	}
	e.JobID = r.job.ID
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	r.rc.Progress(e)
}

// save persists the job. A failed save is logged and does not stop the run.
func (r *run) save() {
	if r.rc.Layout.Root == "" {
		return
	}
	if err := r.job.Save(r.rc.Layout.Root); err != nil {
		r.logger.Warn("failed to persist job state", "error", err)
	}
}

// prepareTexts asks the text port for n descriptions and records them for
// diagnostics. It always returns n texts.
func (r *run) prepareTexts(ctx context.Context, n int) []string {
	texts := textgen.Prepare(ctx, r.o.text, textgen.Request{
		BaseFacts:       r.job.Facts,
		BaseDescription: r.job.BaseDescription,
		N:               n,
		StyleHints:      r.o.styleHints,
	}, r.logger)

	if r.rc.Layout.Root != "" {
		data, err := json.MarshalIndent(texts, "", "  ")
		if err == nil {
			err = renameio.WriteFile(r.rc.Layout.TextsPath(), data, 0644)
		}
		if err != nil {
			r.logger.Warn("failed to write generated texts", "error", err)
		}
	}
	return texts
}

// loadOverlay decodes the job's watermark. A missing or broken asset turns
// the watermark off for this run.
func (r *run) loadOverlay() (*watermark.Profile, image.Image) {
	if r.job.Watermark == nil {
		return nil, nil
	}
	overlay, err := watermark.LoadOverlay(r.job.Watermark.OverlayPath)
	if err != nil {
		r.logger.Warn("watermark asset unavailable, rendering without watermark", "error", err)
		r.watermarkOff = true
		return nil, nil
	}
	return r.job.Watermark, overlay
}

// resetOutputs removes the output tree and archive of an earlier run so a
// rerun with fewer variants or photos leaves nothing stale behind.
func (r *run) resetOutputs() error {
	layout := r.rc.Layout
	if layout.Root != "" {
		if err := os.RemoveAll(layout.OutDir()); err != nil {
			return fmt.Errorf("failed to clear output directory: %w", err)
		}
		if err := os.Remove(layout.ArchivePath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove previous archive: %w", err)
		}
	}
	if err := os.MkdirAll(layout.OutDir(), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

type unit struct {
	variant int
	slot    int
	source  int
}

// augment renders every (variant, slot) pair with a bounded worker pool.
// Workers check the stop signal before taking a unit and the dispatcher
// checks it before handing one out.
func (r *run) augment(ctx context.Context, p *plan.Plan, texts []string) (int, error) {
	layout := r.rc.Layout
	if err := r.resetOutputs(); err != nil {
		return 0, err
	}

	profile, overlay := r.loadOverlay()
	sources := newSourceCache(r.job.Unique)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := p.Total()
	saveEvery := max(total/constants.ProgressSaveDivisor, 1)

	var (
		done     atomic.Int64
		written  atomic.Int64
		firstErr error
		errOnce  sync.Once
	)
	setErr := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	units := make(chan unit)
	var wg sync.WaitGroup
	for range min(r.o.workers, total) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range units {
				if r.rc.Cancel.Cancelled() || ctx.Err() != nil {
					continue
				}
				if err := r.render(u, sources, profile, overlay); err != nil {
					setErr(err)
					continue
				}
				written.Add(1)

				n := r.unitDone(&done, total)
				if n%saveEvery == 0 {
					r.save()
				}
				if n%constants.YieldEvery == 0 {
					runtime.Gosched()
				}
			}
		}()
	}

dispatch:
	for v := range p.Variants() {
		if r.rc.Cancel.Cancelled() || ctx.Err() != nil {
			break
		}
		if err := writeDescription(layout, v, texts[v]); err != nil {
			setErr(err)
			break
		}
		for m := range p.PerVariant() {
			if r.rc.Cancel.Cancelled() {
				break dispatch
			}
			select {
			case units <- unit{variant: v, slot: m, source: p.Index(v, m)}:
			case <-ctx.Done():
				break dispatch
			}
		}
	}
	close(units)
	wg.Wait()

	return int(written.Load()), firstErr
}

// unitDone counts a finished unit and reports progress. Counting and
// reporting happen together so observers see increasing values.
func (r *run) unitDone(done *atomic.Int64, total int) int {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()

	n := int(done.Add(1))
	progress := constants.ProgressAugmentStart +
		(constants.ProgressAugmentEnd-constants.ProgressAugmentStart)*n/total
	r.job.SetProgress(progress)
	r.emit(Event{Phase: PhaseAugmentation, Progress: progress, Done: n, Total: total})
	return n
}

// render produces one output photo. It is a pure function of the job ID,
// the pair, the source photo and the watermark profile.
func (r *run) render(u unit, sources *sourceCache, profile *watermark.Profile, overlay image.Image) error {
	src, err := sources.get(u.source)
	if err != nil {
		return err
	}

	img := augment.Apply(src, seed.New(r.job.ID, u.variant, u.slot))
	if profile != nil {
		img = profile.Apply(img, overlay)
	}

	if err := photo.SaveJPEG(r.rc.Layout.PhotoPath(u.variant, u.slot), img, constants.OutputJPEGQuality); err != nil {
		return fmt.Errorf("variant %d slot %d: %w", u.variant+1, u.slot+1, err)
	}
	return nil
}

func writeDescription(layout job.Layout, v int, text string) error {
	dir := layout.VariantDir(v)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create variant directory: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, job.DescriptionFile), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write description: %w", err)
	}
	return nil
}

// archive writes the manifest and packs the output tree.
func (r *run) archive(ctx context.Context) (string, error) {
	layout := r.rc.Layout
	manifest := r.job.Manifest(time.Now())
	if r.watermarkOff {
		manifest.Watermark = watermark.Describe(nil)
	}
	if err := manifest.Write(layout.OutDir()); err != nil {
		return "", err
	}

	r.enterPhase(PhaseArchiving, constants.ProgressArchiveStart)
	if r.stopRequested(ctx) {
		return "", nil
	}

	packer := archive.WithFallback(r.o.packer, archive.Local{}, r.logger)
	if _, ok := r.o.packer.(archive.Local); ok {
		packer = r.o.packer
	}
	out, err := packer.Pack(ctx, layout.OutDir(), layout.ArchivePath(), r.job.Title)
	if err != nil {
		return "", err
	}
	return out, nil
}

// sourceCache decodes each pool photo at most once per run.
type sourceCache struct {
	photos []*photo.SourcePhoto
	once   []sync.Once
	images []image.Image
	errs   []error
}

func newSourceCache(photos []*photo.SourcePhoto) *sourceCache {
	return &sourceCache{
		photos: photos,
		once:   make([]sync.Once, len(photos)),
		images: make([]image.Image, len(photos)),
		errs:   make([]error, len(photos)),
	}
}

func (c *sourceCache) get(i int) (image.Image, error) {
	if i < 0 || i >= len(c.photos) {
		return nil, errors.New("pool index out of range")
	}
	c.once[i].Do(func() {
		c.images[i], c.errs[i] = photo.Open(c.photos[i].Path)
	})
	return c.images[i], c.errs[i]
}
