package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/dedup"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/plan"
	"github.com/kozaktomas/photo-variants/internal/watermark"
	"github.com/kozaktomas/photo-variants/internal/web/middleware"
)

// JobsHandler handles variant-generation job endpoints.
type JobsHandler struct {
	config       *config.Config
	jobManager   *JobManager
	orchestrator *orchestrator.Orchestrator
	profiles     database.ProfileReader
	logger       *slog.Logger
}

// NewJobsHandler creates a new jobs handler. profiles may be nil, which
// disables watermarks.
func NewJobsHandler(cfg *config.Config, jm *JobManager, orch *orchestrator.Orchestrator, profiles database.ProfileReader, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		config:       cfg,
		jobManager:   jm,
		orchestrator: orch,
		profiles:     profiles,
		logger:       logger,
	}
}

// jobForm holds the non-file fields of a job request.
type jobForm struct {
	UserID       string
	Title        string
	Description  string
	Facts        map[string]any
	N            int
	M            int
	UseWatermark bool
}

// formInt reads an optional integer form field.
func formInt(r *http.Request, key string, defaultVal int) (int, error) {
	s := strings.TrimSpace(r.FormValue(key))
	if s == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func parseJobForm(r *http.Request, sessionUserID string) (jobForm, error) {
	form := jobForm{
		UserID:      sessionUserID,
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	// user_id only applies to requests without a session.
	if form.UserID == "" {
		form.UserID = strings.TrimSpace(r.FormValue("user_id"))
	}
	form.Facts = job.FactsFromInput(r.FormValue("facts"), form.Description)

	var err error
	if form.N, err = formInt(r, "n", constants.DefaultN); err != nil {
		return form, err
	}
	if form.M, err = formInt(r, "m", constants.DefaultM); err != nil {
		return form, err
	}
	if s := r.FormValue("use_watermark"); s != "" {
		if form.UseWatermark, err = strconv.ParseBool(s); err != nil {
			return form, errors.New("use_watermark must be a boolean")
		}
	}
	return form, nil
}

// readUpload reads a multipart file into memory.
func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fileHeader.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", fileHeader.Filename)
	}
	return data, nil
}

// ingestUploads stores every decodable upload in dir. Files that are not
// images are skipped and reported by name.
func ingestUploads(files []*multipart.FileHeader, dir string) ([]*photo.SourcePhoto, []string, error) {
	var photos []*photo.SourcePhoto
	var rejected []string
	for _, fileHeader := range files {
		data, err := readUpload(fileHeader)
		if err != nil {
			return nil, nil, err
		}
		p, err := photo.Ingest(data, dir)
		if errors.Is(err, photo.ErrUnsupportedInput) {
			rejected = append(rejected, filepath.Base(fileHeader.Filename))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to store %s: %w", filepath.Base(fileHeader.Filename), err)
		}
		photos = append(photos, p)
	}
	return photos, rejected, nil
}

// lookupWatermark returns the user's profile when requested. Any problem
// turns the watermark off instead of failing the job.
func (h *JobsHandler) lookupWatermark(ctx context.Context, userID string, use bool) *watermark.Profile {
	if !use || h.profiles == nil {
		return nil
	}
	profile, err := h.profiles.Get(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to load watermark profile", "user_id", sanitizeForLog(userID), "error", err)
		return nil
	}
	if profile == nil {
		h.logger.Info("no watermark profile, continuing without watermark", "user_id", sanitizeForLog(userID))
	}
	return profile
}

// Start creates a job from a multipart upload and runs it in the background.
func (h *JobsHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	var sessionID, sessionUserID string
	if session := middleware.GetSessionFromContext(r.Context()); session != nil {
		sessionID, sessionUserID = session.ID, session.UserID
	}

	form, err := parseJobForm(r, sessionUserID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if form.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !validUserID(form.UserID) {
		respondError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if h.jobManager.HasActive(form.UserID) {
		respondError(w, http.StatusConflict, errJobActive.Error())
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no photos provided")
		return
	}
	limits := job.LimitsFromConfig(h.config.Limits)
	if len(files) > limits.MaxPhotos {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("too many photos: %d, at most %d", len(files), limits.MaxPhotos))
		return
	}

	jobID := job.NewID()
	layout := job.Layout{Root: h.config.Workspace.JobRoot(form.UserID, jobID)}
	discard := func() {
		if err := os.RemoveAll(layout.Root); err != nil {
			h.logger.Warn("failed to remove job directory", "job_id", jobID, "error", err)
		}
	}

	photos, rejected, err := ingestUploads(files, layout.PhotosDir())
	if err != nil {
		discard()
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(photos) == 0 {
		discard()
		respondError(w, http.StatusBadRequest, "no supported photos provided")
		return
	}

	pool, _ := dedup.Cluster(photos, h.config.Limits.DuplicateThreshold, limits.MaxPhotos)
	j, err := job.New(job.Params{
		ID:              jobID,
		UserID:          form.UserID,
		Title:           form.Title,
		BaseDescription: form.Description,
		Facts:           form.Facts,
		Photos:          photos,
		Unique:          pool.Members(),
		N:               form.N,
		M:               form.M,
		Watermark:       h.lookupWatermark(r.Context(), form.UserID, form.UseWatermark),
	}, limits)
	if err != nil {
		discard()
		if errors.Is(err, plan.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := j.Save(layout.Root); err != nil {
		discard()
		respondError(w, http.StatusInternalServerError, "failed to save job")
		return
	}

	vj := &VariantJob{
		ID:         jobID,
		UserID:     form.UserID,
		SessionID:  sessionID,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
		Rejected:   rejected,
		Suppressed: pool.Suppressed(),
		job:        j,
		layout:     layout,
		token:      orchestrator.NewToken(),
	}
	if err := h.jobManager.Add(vj); err != nil {
		discard()
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info("job created", "job_id", jobID, "user_id", sanitizeForLog(form.UserID),
		"photos", len(photos), "unique", pool.Len(), "n", form.N, "m", form.M)

	go h.runJob(vj)

	respondJSON(w, http.StatusAccepted, vj.View())
}

// RerunRequest optionally changes N and M before running a stopped or
// failed job again.
type RerunRequest struct {
	N int `json:"n"`
	M int `json:"m"`
}

// Rerun runs a finished job again. Files written by earlier runs are
// removed first.
func (h *JobsHandler) Rerun(w http.ResponseWriter, r *http.Request) {
	vj := h.lookup(w, r)
	if vj == nil {
		return
	}
	if !isJobTerminal(vj.GetStatus()) {
		respondError(w, http.StatusConflict, "job is still running")
		return
	}

	var req RerunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	// The slot is claimed before anything is touched. It stays taken until
	// the previous run has released it.
	if err := h.jobManager.Add(vj); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	if req.N > 0 || req.M > 0 {
		n, m := vj.job.Params()
		if req.N > 0 {
			n = req.N
		}
		if req.M > 0 {
			m = req.M
		}
		if err := vj.job.SetParams(n, m, job.LimitsFromConfig(h.config.Limits)); err != nil {
			h.jobManager.Release(vj)
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	vj.mu.Lock()
	vj.Status = JobStatusPending
	vj.StartedAt = time.Now()
	vj.CompletedAt = nil
	vj.Result = nil
	vj.token = orchestrator.NewToken()
	vj.mu.Unlock()

	go h.runJob(vj)

	respondJSON(w, http.StatusAccepted, vj.View())
}

// runJob executes the job and broadcasts its progress.
func (h *JobsHandler) runJob(vj *VariantJob) {
	defer h.jobManager.Release(vj)

	vj.setStatus(JobStatusRunning)
	vj.SendEvent(JobEvent{Type: "started", Message: "Job started"})

	res := h.orchestrator.Run(context.Background(), orchestrator.RunContext{
		SessionID: vj.SessionID,
		Layout:    vj.layout,
		Cancel:    vj.token,
		Progress: func(e orchestrator.Event) {
			vj.SendEvent(JobEvent{Type: "progress", Message: e.Message, Data: e})
		},
		Logger: h.logger,
	}, vj.job)

	status := vj.finish(res)
	vj.SendEvent(JobEvent{Type: string(status), Message: res.Reason, Data: vj.View()})
}

// lookup resolves the {jobId} URL parameter, writing the error response
// when it fails.
func (h *JobsHandler) lookup(w http.ResponseWriter, r *http.Request) *VariantJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	vj := h.ownedJob(r, jobID)
	if vj == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return vj
}

// ownedJob returns the job unless the request carries a session of another
// user. Foreign jobs look the same as missing ones.
func (h *JobsHandler) ownedJob(r *http.Request, jobID string) *VariantJob {
	vj := h.jobManager.GetJob(jobID)
	if vj == nil {
		return nil
	}
	if session := middleware.GetSessionFromContext(r.Context()); session != nil && session.UserID != vj.UserID {
		return nil
	}
	return vj
}

// List returns the jobs of the calling session's user.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "no session")
		return
	}
	views := []JobView{}
	for _, vj := range h.jobManager.ListJobs(session.UserID) {
		views = append(views, vj.View())
	}
	respondJSON(w, http.StatusOK, views)
}

// Status returns the job state.
func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	vj := h.lookup(w, r)
	if vj == nil {
		return
	}
	respondJSON(w, http.StatusOK, vj.View())
}

// Events streams job events via SSE.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, func(id string) SSEJob {
		if vj := h.ownedJob(r, id); vj != nil {
			return vj
		}
		return nil
	}, func(j SSEJob) any {
		return j.(*VariantJob).View()
	})
}

// Cancel requests a stop. Work already written stays on disk.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	vj := h.lookup(w, r)
	if vj == nil {
		return
	}
	if isJobTerminal(vj.GetStatus()) {
		respondError(w, http.StatusConflict, "job is not running")
		return
	}
	vj.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// Archive downloads the finished archive.
func (h *JobsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	vj := h.lookup(w, r)
	if vj == nil {
		return
	}
	path := vj.ArchivePath()
	if path == "" {
		respondError(w, http.StatusConflict, "archive is not ready")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", vj.job.Title+".zip"))
	http.ServeFile(w, r, path)
}
