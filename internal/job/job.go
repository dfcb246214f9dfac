// Package job holds the job model, its on-disk layout and the manifest.
package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/plan"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusDone    Status = "done"
)

// Terminal reports whether no further transitions happen without a rerun.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusDone
}

// Limits bounds the job parameters.
type Limits struct {
	MaxPhotos int
	MaxN      int
	MaxM      int
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPhotos: constants.DefaultMaxPhotos,
		MaxN:      constants.DefaultMaxN,
		MaxM:      constants.DefaultMaxM,
	}
}

// LimitsFromConfig converts the configured limits.
func LimitsFromConfig(c config.LimitsConfig) Limits {
	return Limits{MaxPhotos: c.MaxPhotos, MaxN: c.MaxN, MaxM: c.MaxM}
}

// Job is one variant-generation request.
type Job struct {
	mu sync.RWMutex

	ID              string               `json:"jobId"`
	UserID          string               `json:"userId"`
	Title           string               `json:"title"`
	BaseDescription string               `json:"baseDescription"`
	Facts           Facts                `json:"facts"`
	Photos          []*photo.SourcePhoto `json:"photos"`
	Unique          []*photo.SourcePhoto `json:"uniquePhotos"`
	N               int                  `json:"n"`
	M               int                  `json:"m"`
	Watermark       *watermark.Profile   `json:"watermark,omitempty"`
	Status          Status               `json:"status"`
	Phase           string               `json:"phase,omitempty"`
	Progress        int                  `json:"progress"`
	Error           string               `json:"error,omitempty"`
	ArchivePath     string               `json:"archivePath,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// Params collects what a caller supplies to create a job.
type Params struct {
	ID              string
	UserID          string
	Title           string
	BaseDescription string
	Facts           map[string]any
	Photos          []*photo.SourcePhoto
	Unique          []*photo.SourcePhoto
	N               int
	M               int
	Watermark       *watermark.Profile
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultTitle returns the archive title for a job created at now.
func DefaultTitle(now time.Time) string {
	return "ads_" + now.Format("20060102_1504")
}

// New validates p against limits and returns an idle job.
func New(p Params, limits Limits) (*Job, error) {
	if n := utf8.RuneCountInString(p.BaseDescription); n < constants.MinDescriptionLength {
		return nil, fmt.Errorf("%w: description has %d characters, need at least %d",
			plan.ErrValidation, n, constants.MinDescriptionLength)
	}
	if len(p.Unique) > limits.MaxPhotos {
		return nil, &plan.ValidationError{Field: "photos", Value: len(p.Unique), Min: 1, Max: limits.MaxPhotos}
	}
	if err := plan.Validate(len(p.Unique), p.N, p.M, limits.MaxM, limits.MaxN); err != nil {
		return nil, err
	}

	now := time.Now()
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.Title == "" {
		p.Title = DefaultTitle(now)
	}
	var wm *watermark.Profile
	if p.Watermark != nil {
		n := p.Watermark.Normalize()
		wm = &n
	}

	return &Job{
		ID:              p.ID,
		UserID:          p.UserID,
		Title:           p.Title,
		BaseDescription: p.BaseDescription,
		Facts:           Facts{Source: p.BaseDescription, Structured: p.Facts},
		Photos:          p.Photos,
		Unique:          p.Unique,
		N:               p.N,
		M:               p.M,
		Watermark:       wm,
		Status:          StatusIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SetParams changes N and M, re-validating against the current pool.
func (j *Job) SetParams(n, m int, limits Limits) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := plan.Validate(len(j.Unique), n, m, limits.MaxM, limits.MaxN); err != nil {
		return err
	}
	j.N, j.M = n, m
	j.UpdatedAt = time.Now()
	return nil
}

// Params returns the current N and M.
func (j *Job) Params() (n, m int) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.N, j.M
}

// Plan returns the assignment plan for the job's current parameters.
func (j *Job) Plan(limits Limits) (*plan.Plan, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return plan.New(len(j.Unique), j.N, j.M, limits.MaxM, limits.MaxN)
}

// State is a consistent snapshot of the mutable run fields.
type State struct {
	Status   Status `json:"status"`
	Phase    string `json:"phase,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return State{Status: j.Status, Phase: j.Phase, Progress: j.Progress, Error: j.Error}
}

// SetStatus records a status transition. Entering Running clears a previous
// error so a stopped or failed job can be run again.
func (j *Job) SetStatus(s Status, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = s
	j.Error = errMsg
	if s == StatusRunning {
		j.Progress = 0
		j.ArchivePath = ""
	}
	j.UpdatedAt = time.Now()
}

// SetPhase records the current phase and progress.
func (j *Job) SetPhase(phase string, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Phase = phase
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetProgress updates progress. Progress never moves backwards within a run.
func (j *Job) SetProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress > j.Progress {
		j.Progress = progress
		j.UpdatedAt = time.Now()
	}
}

// SetArchivePath records where the finished archive was written.
func (j *Job) SetArchivePath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArchivePath = path
}

func (j *Job) GetArchivePath() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.ArchivePath
}

// Save writes job.json into root atomically.
func (j *Job) Save(root string) error {
	j.mu.RLock()
	data, err := json.MarshalIndent(j, "", "  ")
	j.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(root, JobFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	return nil
}

// Load reads job.json from root.
func Load(root string) (*Job, error) {
	data, err := os.ReadFile(filepath.Join(root, JobFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return &j, nil
}
