package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/textgen"
)

// TextsHandler exposes a text generator as a service. It never fails the
// request: callers treat an empty list as "pad locally".
type TextsHandler struct {
	generator textgen.Generator
	logger    *slog.Logger
}

// NewTextsHandler creates a new texts handler.
func NewTextsHandler(gen textgen.Generator, logger *slog.Logger) *TextsHandler {
	return &TextsHandler{generator: gen, logger: logger}
}

func respondVariants(w http.ResponseWriter, variants []string) {
	if variants == nil {
		variants = []string{}
	}
	respondJSON(w, http.StatusOK, textgen.GenerateResponse{OK: true, Variants: variants})
}

// Generate returns up to n distinct descriptions.
func (h *TextsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req textgen.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondVariants(w, nil)
		return
	}
	if strings.TrimSpace(req.BaseDescription) == "" || req.N < 1 || req.N > constants.DefaultMaxN {
		respondVariants(w, nil)
		return
	}
	if h.generator == nil {
		respondVariants(w, nil)
		return
	}

	variants, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Warn("text generation failed", "provider", h.generator.Name(), "error", err)
		respondVariants(w, nil)
		return
	}
	respondVariants(w, textgen.Unique(variants, req.N))
}
