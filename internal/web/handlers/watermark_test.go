package handlers

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-variants/internal/database/mock"
	"github.com/kozaktomas/photo-variants/internal/logging"
	"github.com/kozaktomas/photo-variants/internal/watermark"
)

func newTestWatermarkHandler(t *testing.T) (*WatermarkHandler, *mock.MockProfileStore) {
	t.Helper()
	store := mock.NewMockProfileStore()
	return NewWatermarkHandler(testConfig(t), store, logging.Discard()), store
}

func TestWatermarkHandler_Get(t *testing.T) {
	h, store := newTestWatermarkHandler(t)
	store.Set(t.Context(), "42", watermark.Profile{OverlayPath: "/wm/logo.png", SHA256: "abc", Placement: watermark.Center, Opacity: 50, Margin: 8})

	t.Run("existing profile", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": "42"})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		var profile watermark.Profile
		parseJSONResponse(t, recorder, &profile)
		if profile.OverlayPath != "/wm/logo.png" || profile.Placement != watermark.Center || profile.Opacity != 50 {
			t.Errorf("unexpected profile %+v", profile)
		}
	})

	t.Run("no profile is null", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": "7"})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		if body := strings.TrimSpace(recorder.Body.String()); body != "null" {
			t.Errorf("expected null, got %q", body)
		}
	})

	t.Run("store error", func(t *testing.T) {
		store.GetError = errors.New("database is down")
		defer func() { store.GetError = nil }()

		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": "42"})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)

		assertStatusCode(t, recorder, http.StatusInternalServerError)
		assertJSONError(t, recorder, "failed to get watermark")
	})

	t.Run("invalid user id", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": ".."})
		recorder := httptest.NewRecorder()
		h.Get(recorder, req)

		assertStatusCode(t, recorder, http.StatusBadRequest)
	})
}

func TestWatermarkHandler_Set(t *testing.T) {
	h, store := newTestWatermarkHandler(t)
	filePath := filepath.Join(t.TempDir(), "assets", "logo.png")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{
			name:   "valid",
			body:   `{"userId":"42","filePath":"` + filePath + `","sha256":"abc","placement":"top-left","opacity":200,"margin":0}`,
			status: http.StatusOK,
		},
		{
			name:   "missing opacity",
			body:   `{"userId":"42","filePath":"/wm/logo.png","sha256":"abc","placement":"center","margin":4}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "missing user",
			body:   `{"filePath":"/wm/logo.png","sha256":"abc","placement":"center","opacity":50,"margin":4}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "not json",
			body:   `opacity=50`,
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Set(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/watermark", strings.NewReader(tc.body)))
			assertStatusCode(t, recorder, tc.status)
		})
	}

	profile, _ := store.Get(t.Context(), "42")
	if profile == nil {
		t.Fatal("expected the valid request to store a profile")
	}
	if profile.Placement != watermark.TopLeft || profile.Opacity != 100 || profile.Margin != 0 {
		t.Errorf("expected normalized profile, got %+v", profile)
	}
	if _, err := os.Stat(filepath.Dir(filePath)); err != nil {
		t.Errorf("expected asset directory to be created: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 stored profile, got %d", store.Count())
	}
}

func TestWatermarkHandler_Set_StoreError(t *testing.T) {
	h, store := newTestWatermarkHandler(t)
	store.SetError = errors.New("read-only database")

	body := `{"userId":"42","filePath":"` + filepath.Join(t.TempDir(), "logo.png") + `","sha256":"abc","placement":"center","opacity":50,"margin":4}`
	recorder := httptest.NewRecorder()
	h.Set(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/watermark", strings.NewReader(body)))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to save watermark")
}

func uploadOverlay(t *testing.T, h *WatermarkHandler, userID string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/", nil, []upload{{field: "file", name: "logo.png", data: data}})
	req = requestWithChiParams(req, map[string]string{"userId": userID})
	recorder := httptest.NewRecorder()
	h.Upload(recorder, req)
	return recorder
}

func TestWatermarkHandler_Upload(t *testing.T) {
	h, store := newTestWatermarkHandler(t)
	store.Set(t.Context(), "42", watermark.Profile{OverlayPath: "/old.png", Placement: watermark.TopRight, Opacity: 30, Margin: 12})

	recorder := uploadOverlay(t, h, "42", encodePNG(t, createBlockImage(32, 16, 5)))
	assertStatusCode(t, recorder, http.StatusOK)

	profile, _ := store.Get(t.Context(), "42")
	if profile == nil {
		t.Fatal("expected a stored profile")
	}
	if profile.OverlayPath != h.config.Workspace.WatermarkPath("42", "logo.png") {
		t.Errorf("OverlayPath = %s; want %s", profile.OverlayPath, h.config.Workspace.WatermarkPath("42", "logo.png"))
	}
	if len(profile.SHA256) != 64 {
		t.Errorf("expected hex sha256, got %q", profile.SHA256)
	}
	if profile.Placement != watermark.TopRight || profile.Opacity != 30 || profile.Margin != 12 {
		t.Errorf("expected existing settings to be kept, got %+v", profile)
	}
	if _, err := os.Stat(profile.OverlayPath); err != nil {
		t.Errorf("expected overlay on disk: %v", err)
	}
}

func TestWatermarkHandler_Upload_NotAnImage(t *testing.T) {
	h, store := newTestWatermarkHandler(t)

	recorder := uploadOverlay(t, h, "42", []byte("GIF? no, just text"))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "file is not a supported image")
	if store.Count() != 0 {
		t.Error("expected nothing to be stored")
	}
}

func TestWatermarkHandler_Preview(t *testing.T) {
	h, _ := newTestWatermarkHandler(t)
	if rec := uploadOverlay(t, h, "42", encodePNG(t, createBlockImage(32, 16, 5))); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %s", rec.Body.String())
	}

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/?placement=center&opacity=40", nil), map[string]string{"userId": "42"})
	recorder := httptest.NewRecorder()
	h.Preview(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "image/jpeg")
	img, err := jpeg.Decode(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("preview is not a JPEG: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 800, 600) {
		t.Errorf("preview bounds = %v; want 800x600", img.Bounds())
	}
}

func TestWatermarkHandler_Preview_Errors(t *testing.T) {
	h, store := newTestWatermarkHandler(t)
	store.Set(t.Context(), "7", watermark.NewProfile(filepath.Join(t.TempDir(), "gone.png"), "abc"))

	tests := []struct {
		userID string
		status int
		msg    string
	}{
		{"42", http.StatusNotFound, "watermark not found"},
		{"7", http.StatusConflict, "watermark asset missing"},
	}

	for _, tc := range tests {
		t.Run(tc.userID, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"userId": tc.userID})
			recorder := httptest.NewRecorder()
			h.Preview(recorder, req)

			assertStatusCode(t, recorder, tc.status)
			assertJSONError(t, recorder, tc.msg)
		})
	}
}
