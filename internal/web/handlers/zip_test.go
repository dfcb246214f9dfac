package handlers

import (
	"archive/zip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-variants/internal/archive"
	"github.com/kozaktomas/photo-variants/internal/logging"
)

func zipRequest(t *testing.T, req archive.CreateRequest) *http.Request {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewRequest(http.MethodPost, "/api/v1/zip/create", strings.NewReader(string(body)))
}

func TestZipHandler_Create(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "variant_01"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "variant_01", "description.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out.zip")

	h := NewZipHandler(logging.Discard())
	recorder := httptest.NewRecorder()
	h.Create(recorder, zipRequest(t, archive.CreateRequest{
		InputFolders:   []string{src},
		OutputZipPath:  out,
		RootFolderName: "ads_test",
		Flatten:        true,
	}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp archive.CreateResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.OK || resp.Bytes <= 0 || resp.Output != out {
		t.Errorf("unexpected response %+v", resp)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "ads_test/variant_01/description.txt" {
		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		t.Errorf("unexpected entries %v", names)
	}
}

func TestZipHandler_Create_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"not json", "{", http.StatusBadRequest, errInvalidPayload},
		{"no folders", `{"outputZipPath":"/tmp/x.zip"}`, http.StatusBadRequest, errInvalidPayload},
		{"no output", `{"inputFolders":["/tmp"]}`, http.StatusBadRequest, errInvalidPayload},
		{
			"folder not found",
			`{"inputFolders":["` + missing + `"],"outputZipPath":"` + filepath.Join(t.TempDir(), "x.zip") + `"}`,
			http.StatusBadRequest,
			"Input folder not found: " + missing,
		},
		{
			"nothing to archive",
			`{"inputFolders":[],"outputZipPath":"` + filepath.Join(t.TempDir(), "x.zip") + `"}`,
			http.StatusInternalServerError,
			"Zip failed",
		},
	}

	h := NewZipHandler(logging.Discard())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Create(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/zip/create", strings.NewReader(tc.body)))
			assertStatusCode(t, recorder, tc.status)
			assertJSONError(t, recorder, tc.message)
		})
	}
}
