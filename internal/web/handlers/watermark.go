package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/renameio"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

const errInvalidPayload = "invalid payload"

// WatermarkHandler handles watermark profile endpoints.
type WatermarkHandler struct {
	config *config.Config
	store  database.ProfileStore
	logger *slog.Logger
}

// NewWatermarkHandler creates a new watermark handler.
func NewWatermarkHandler(cfg *config.Config, store database.ProfileStore, logger *slog.Logger) *WatermarkHandler {
	return &WatermarkHandler{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

// WatermarkRequest is the body of a profile upsert. Opacity and margin are
// pointers so that a missing value can be told apart from zero.
type WatermarkRequest struct {
	UserID    string `json:"userId"`
	FilePath  string `json:"filePath"`
	SHA256    string `json:"sha256"`
	Placement string `json:"placement"`
	Opacity   *int   `json:"opacity"`
	Margin    *int   `json:"margin"`
}

func (req WatermarkRequest) valid() bool {
	return validUserID(req.UserID) && req.FilePath != "" && req.SHA256 != "" &&
		req.Placement != "" && req.Opacity != nil && req.Margin != nil
}

// userParam resolves the {userId} URL parameter.
func userParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userId")
	if !validUserID(userID) {
		respondError(w, http.StatusBadRequest, "invalid user ID")
		return "", false
	}
	return userID, true
}

// Get returns the user's profile, or null when there is none.
func (h *WatermarkHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	profile, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get watermark", "user_id", sanitizeForLog(userID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get watermark")
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// Set creates or replaces a profile.
func (h *WatermarkHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req WatermarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	if !req.valid() {
		respondError(w, http.StatusBadRequest, errInvalidPayload)
		return
	}

	if err := os.MkdirAll(filepath.Dir(req.FilePath), 0755); err != nil {
		h.logger.Error("failed to create watermark directory", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save watermark")
		return
	}

	profile := watermark.Profile{
		OverlayPath: req.FilePath,
		SHA256:      req.SHA256,
		Placement:   watermark.Placement(req.Placement),
		Opacity:     *req.Opacity,
		Margin:      *req.Margin,
	}
	if err := h.store.Set(r.Context(), req.UserID, profile); err != nil {
		h.logger.Error("failed to save watermark", "user_id", sanitizeForLog(req.UserID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save watermark")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Upload stores a new overlay image for the user. An existing profile keeps
// its placement, opacity and margin.
func (h *WatermarkHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one file is required")
		return
	}

	data, err := readUpload(files[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		respondError(w, http.StatusBadRequest, "file is not a supported image")
		return
	}

	path := h.config.Workspace.WatermarkPath(userID, files[0].Filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save watermark")
		return
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		h.logger.Error("failed to write watermark asset", "user_id", sanitizeForLog(userID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save watermark")
		return
	}

	sum := sha256.Sum256(data)
	profile := watermark.NewProfile(path, hex.EncodeToString(sum[:]))
	existing, err := h.store.Get(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get watermark")
		return
	}
	if existing != nil {
		profile.Placement = existing.Placement
		profile.Opacity = existing.Opacity
		profile.Margin = existing.Margin
	}

	if err := h.store.Set(r.Context(), userID, profile); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save watermark")
		return
	}
	respondJSON(w, http.StatusOK, profile.Normalize())
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, key string) (int, bool) {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	return n, err == nil
}

// Preview renders the profile on a blank canvas as JPEG. The placement,
// opacity and margin query parameters override the stored values.
func (h *WatermarkHandler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, ok := userParam(w, r)
	if !ok {
		return
	}

	profile, err := h.store.Get(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get watermark")
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "watermark not found")
		return
	}

	p := *profile
	if placement := r.URL.Query().Get("placement"); placement != "" {
		p.Placement = watermark.Placement(placement)
	}
	if opacity, ok := queryInt(r, "opacity"); ok {
		p.Opacity = opacity
	}
	if margin, ok := queryInt(r, "margin"); ok {
		p.Margin = margin
	}

	overlay, err := watermark.LoadOverlay(p.OverlayPath)
	if errors.Is(err, watermark.ErrMissingAsset) {
		respondError(w, http.StatusConflict, "watermark asset missing")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load watermark")
		return
	}

	data, err := photo.EncodeJPEG(watermark.Preview(nil, overlay, p), constants.PreviewJPEGQuality)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render preview")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
