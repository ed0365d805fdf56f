package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchEmptyLocation(t *testing.T) {
	f := New(Options{}, noopLogger())
	if _, err := f.Fetch(context.Background(), ""); err == nil {
		t.Fatal("empty location should fail")
	}
}

func TestFetchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handbook.json")
	if err := os.WriteFile(path, []byte(`{"Items":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	body, err := New(Options{}, noopLogger()).Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `{"Items":[]}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFetchMissingFile(t *testing.T) {
	_, err := New(Options{}, noopLogger()).Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestFetchHTTPSuccess(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"5449016a4bdc2d6f028b456f": 1})
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, UserAgent: "test-agent"}, noopLogger())
	body, err := f.Fetch(context.Background(), srv.URL+"/prices.json")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(string(body), "5449016a4bdc2d6f028b456f") {
		t.Fatalf("unexpected body %q", body)
	}
	if gotUA != "test-agent" {
		t.Fatalf("user agent = %q", gotUA)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"errmsg": "no such table"})
	}))
	defer srv.Close()

	_, err := New(Options{Timeout: time.Second}, noopLogger()).Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "no such table") {
		t.Fatalf("want host error, got %v", err)
	}
}
