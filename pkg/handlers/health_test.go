package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/config"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

func TestPingEndpoint(t *testing.T) {
	cfg := &config.Config{Env: "local", Version: "1.2.3"}
	h := NewHealthHandler(cfg, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()

	h.Ping(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp PingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", resp.Version, "1.2.3")
	}
	if resp.Service != "ingest-engine" {
		t.Errorf("service = %q, want %q", resp.Service, "ingest-engine")
	}
	if len(resp.SupportedFormats) == 0 {
		t.Error("supported_formats is empty")
	}
	for _, want := range []string{".csv", ".xlsx", ".parquet"} {
		found := false
		for _, got := range resp.SupportedFormats {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("supported_formats missing %q in %v", want, resp.SupportedFormats)
		}
	}
}
