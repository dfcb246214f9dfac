package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/kozaktomas/photo-variants/internal/archive"
)

// ZipHandler exposes the archiver as a service.
type ZipHandler struct {
	logger *slog.Logger
}

// NewZipHandler creates a new zip handler.
func NewZipHandler(logger *slog.Logger) *ZipHandler {
	return &ZipHandler{logger: logger}
}

// Create builds an archive from folders on the server's filesystem.
func (h *ZipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req archive.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	if req.InputFolders == nil || req.OutputZipPath == "" {
		respondError(w, http.StatusBadRequest, errInvalidPayload)
		return
	}
	for _, dir := range req.InputFolders {
		if _, err := os.Stat(dir); err != nil {
			respondError(w, http.StatusBadRequest, "Input folder not found: "+dir)
			return
		}
	}

	resp, err := archive.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("zip failed", "output", sanitizeForLog(req.OutputZipPath), "error", err)
		respondError(w, http.StatusInternalServerError, "Zip failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
