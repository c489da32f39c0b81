package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"keepsake/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRender_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckRender(context.Background(), srv.URL+"/", "key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckRender_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckRender(context.Background(), srv.URL, "")
	if result.Passed {
		t.Fatal("expected failure for 503")
	}
}

func TestCheckRender_MissingURL(t *testing.T) {
	result := CheckRender(context.Background(), "  ", "key")
	if result.Passed || result.Detail != "missing url" {
		t.Fatalf("expected missing url failure, got %+v", result)
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.Enrichment.APIKey = ""
	result := CheckLLM(context.Background(), "Text provider", &cfg)
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Enrichment.APIKey = "key"
	cfg.Enrichment.BaseURL = srv.URL
	result := CheckLLM(context.Background(), "Text provider", &cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Storage.BlobDir = filepath.Join(t.TempDir(), "missing")
	cfg.Enrichment.APIKey = ""
	cfg.Enrichment.RenderBaseURL = ""

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected directory and text checks, got %d: %+v", len(results), results)
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected blob dir and text provider to fail, got %+v", failed)
	}
	if failed[0].Name != "Blob directory" || failed[1].Name != "Text provider" {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}
