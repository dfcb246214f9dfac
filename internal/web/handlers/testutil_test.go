package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-variants/internal/config"
	"github.com/kozaktomas/photo-variants/internal/database"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/logging"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
	"github.com/kozaktomas/photo-variants/internal/photo"
	"github.com/kozaktomas/photo-variants/internal/textgen"
	"github.com/kozaktomas/photo-variants/internal/web/middleware"
)

const testDescription = "Bright two-room apartment close to the park, renovated in 2023."

// testConfig creates a minimal config with a temporary workspace
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Workspace: config.WorkspaceConfig{Dir: t.TempDir()},
		Limits: config.LimitsConfig{
			MaxPhotos:          50,
			MaxN:               100,
			MaxM:               20,
			Workers:            2,
			DuplicateThreshold: 10,
		},
	}
}

// newTestJobsHandler wires a jobs handler with the static text provider and
// the local packer
func newTestJobsHandler(cfg *config.Config, profiles database.ProfileReader) *JobsHandler {
	orch := orchestrator.New(orchestrator.Config{
		Text:    &textgen.StaticProvider{},
		Workers: cfg.Limits.Workers,
		Limits:  job.LimitsFromConfig(cfg.Limits),
	})
	return NewJobsHandler(cfg, NewJobManager(), orch, profiles, logging.Discard())
}

// newTestVariantJob creates a job that is tracked by nothing and never run
func newTestVariantJob(t *testing.T, id, userID string, status JobStatus) *VariantJob {
	t.Helper()
	j, err := job.New(job.Params{
		ID:              id,
		UserID:          userID,
		Title:           "ads_test",
		BaseDescription: testDescription,
		Unique:          []*photo.SourcePhoto{{Path: "a.jpg", PHash: 1}},
		N:               1,
		M:               1,
	}, job.DefaultLimits())
	if err != nil {
		t.Fatalf("job.New failed: %v", err)
	}
	return &VariantJob{
		ID:        id,
		UserID:    userID,
		Status:    status,
		StartedAt: time.Now(),
		job:       j,
		layout:    job.Layout{Root: t.TempDir()},
		token:     orchestrator.NewToken(),
	}
}

// waitForTerminal polls until the job reaches a terminal status
func waitForTerminal(t *testing.T, vj *VariantJob) JobStatus {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if status := vj.GetStatus(); isJobTerminal(status) {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, status %s", vj.ID, vj.GetStatus())
	return ""
}

// waitForRelease polls until userID has no active job
func waitForRelease(t *testing.T, jm *JobManager, userID string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for jm.HasActive(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s still has an active job", userID)
		}
		time.Sleep(time.Millisecond)
	}
}

// createBlockImage draws a deterministic pattern of 8x8 gray blocks
func createBlockImage(w, h int, seed uint32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := seed
	levels := make(map[[2]int]uint8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			key := [2]int{x / 8, y / 8}
			v, ok := levels[key]
			if !ok {
				state = state*1664525 + 1013904223
				v = uint8(state >> 24)
				levels[key] = v
			}
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func invert(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := range 3 {
			out.Pix[i+c] = 255 - out.Pix[i+c]
		}
	}
	return out
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// upload is one file part of a multipart request
type upload struct {
	field string
	name  string
	data  []byte
}

// multipartRequest builds a multipart/form-data request
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files []upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithSession puts a session for userID into the request context
func requestWithSession(r *http.Request, userID string) *http.Request {
	session := &middleware.Session{ID: "session-" + userID, UserID: userID}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
