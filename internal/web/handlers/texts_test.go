package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/photo-variants/internal/logging"
	"github.com/kozaktomas/photo-variants/internal/textgen"
)

type failingGenerator struct{}

func (failingGenerator) Name() string { return "failing" }

func (failingGenerator) Generate(ctx context.Context, req textgen.Request) ([]string, error) {
	return nil, errors.New("upstream timeout")
}

func generateTexts(t *testing.T, gen textgen.Generator, body string) textgen.GenerateResponse {
	t.Helper()
	h := NewTextsHandler(gen, logging.Discard())
	recorder := httptest.NewRecorder()
	h.Generate(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/texts/generate", strings.NewReader(body)))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp textgen.GenerateResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.OK {
		t.Error("expected ok to be true")
	}
	if resp.Variants == nil {
		t.Error("expected variants to be an array, got null")
	}
	return resp
}

func TestTextsHandler_Generate(t *testing.T) {
	gen := &textgen.StaticProvider{Texts: []string{
		"Sunny flat with a balcony over the quiet courtyard and fresh paint.",
		"Sunny flat with a balcony over the quiet courtyard and fresh paint!",
		"Spacious home near the metro, modern kitchen, two bright bedrooms.",
		"Cozy apartment beside the river park with new windows and floors.",
	}}

	resp := generateTexts(t, gen, `{"baseFacts":{"source":"x"},"baseDescription":"`+testDescription+`","n":2}`)
	if len(resp.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d: %v", len(resp.Variants), resp.Variants)
	}
	if resp.Variants[0] == resp.Variants[1] {
		t.Error("expected distinct variants")
	}
	if strings.HasSuffix(resp.Variants[1], "paint!") {
		t.Error("near-identical variant should have been dropped")
	}
}

func TestTextsHandler_Generate_AlwaysOK(t *testing.T) {
	valid := `{"baseDescription":"` + testDescription + `","n":3}`

	tests := []struct {
		name string
		gen  textgen.Generator
		body string
	}{
		{"invalid json", &textgen.StaticProvider{Texts: []string{"a"}}, "{"},
		{"empty description", &textgen.StaticProvider{Texts: []string{"a"}}, `{"baseDescription":"  ","n":3}`},
		{"n zero", &textgen.StaticProvider{Texts: []string{"a"}}, `{"baseDescription":"x","n":0}`},
		{"n too large", &textgen.StaticProvider{Texts: []string{"a"}}, `{"baseDescription":"x","n":101}`},
		{"provider error", failingGenerator{}, valid},
		{"provider empty", &textgen.StaticProvider{}, valid},
		{"no provider", nil, valid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := generateTexts(t, tc.gen, tc.body)
			if len(resp.Variants) != 0 {
				t.Errorf("expected no variants, got %v", resp.Variants)
			}
		})
	}
}
