package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type echoResponse struct {
	Method string `json:"method"`
	Name   string `json:"name"`
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(echoResponse{Method: r.Method, Name: body["name"]})
	}))
	defer server.Close()

	resp, err := PostJSON[echoResponse](context.Background(), server.Client(), server.URL, map[string]string{"name": "alpha"})
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if resp.Method != http.MethodPost || resp.Name != "alpha" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDoJSON_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := GetJSON[echoResponse](context.Background(), server.Client(), server.URL)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should include status and body, got %v", err)
	}
}

func TestDoJSON_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := GetJSON[echoResponse](context.Background(), server.Client(), server.URL); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, endpoint, expected string
	}{
		{"http://host", "api/v1/zip/create", "http://host/api/v1/zip/create"},
		{"http://host/", "/api/v1/zip/create", "http://host/api/v1/zip/create"},
		{"http://host/base", "texts", "http://host/base/texts"},
	}

	for _, tc := range tests {
		if got := JoinURL(tc.base, tc.endpoint); got != tc.expected {
			t.Errorf("JoinURL(%q, %q) = %q; want %q", tc.base, tc.endpoint, got, tc.expected)
		}
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	if c := New(0); c.Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", c.Timeout)
	}
}
