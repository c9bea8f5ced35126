package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rpattn/stackshift/internal/source"
	"github.com/rpattn/stackshift/pkg/batch"
	"github.com/rpattn/stackshift/pkg/logger"
)

func testOpts() batch.Options {
	return batch.Options{BatchSize: 10, Concurrency: 2}
}

func TestRunDownloadsBinariesWithSidecars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	store := source.NewMemStore()
	store.AssetList = []source.Asset{
		{ID: "1", URI: "public://img/a.png", Filename: "a.png"},
		{ID: "2", URI: "public://img/b.png", Filename: "b.png"},
	}

	pipeline := NewPipeline(store, dir, server.URL, 5*time.Second, testOpts(), logger.New())
	assetMap, failed, summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
	if summary.Downloaded != 2 || summary.Total != 2 {
		t.Errorf("summary = %+v, want 2 downloaded of 2", summary)
	}

	record, ok := assetMap.ByPath("img/a.png")
	if !ok {
		t.Fatal("asset img/a.png not indexed by path")
	}
	if record.UID != "assets_1" {
		t.Errorf("uid = %q, want assets_1", record.UID)
	}
	if record.MimeType != "image/png" {
		t.Errorf("mime type = %q, want image/png", record.MimeType)
	}

	binary := filepath.Join(dir, "files", "img", "a.png")
	if data, err := os.ReadFile(binary); err != nil || string(data) != "png-bytes" {
		t.Errorf("binary not written: %v", err)
	}
	if _, err := os.Stat(binary + ".json"); err != nil {
		t.Errorf("metadata sidecar not written: %v", err)
	}
}

func TestRunSkipsExistingFiles(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("data"))
	}))
	defer server.Close()

	dir := t.TempDir()
	existing := filepath.Join(dir, "files", "img", "a.png")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := source.NewMemStore()
	store.AssetList = []source.Asset{{ID: "1", URI: "public://img/a.png", Filename: "a.png"}}

	pipeline := NewPipeline(store, dir, server.URL, 5*time.Second, testOpts(), logger.New())
	_, _, summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Downloaded != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
	if requests.Load() != 0 {
		t.Errorf("expected no requests for existing file, got %d", requests.Load())
	}
}

func TestRunRecordsFailureAfterTwoAttempts(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := source.NewMemStore()
	store.AssetList = []source.Asset{{ID: "9", URI: "public://img/broken.png", Filename: "broken.png"}}

	pipeline := NewPipeline(store, t.TempDir(), server.URL, 5*time.Second, testOpts(), logger.New())
	_, failed, summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", requests.Load())
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 failed", summary)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failed record, got %d", len(failed))
	}
	if failed[0].SourceID != "9" || failed[0].Attempts != 2 {
		t.Errorf("failed record = %+v", failed[0])
	}
}

func TestRetryRemovesRecoveredAssets(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	store := source.NewMemStore()
	store.AssetList = []source.Asset{{ID: "9", URI: "public://img/flaky.png", Filename: "flaky.png"}}

	pipeline := NewPipeline(store, t.TempDir(), server.URL, 5*time.Second, testOpts(), logger.New())
	assetMap, failed, _, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected initial failure, got %v", failed)
	}

	fail.Store(false)
	remaining, summary, err := pipeline.Retry(context.Background(), assetMap, failed)
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no remaining failures, got %v", remaining)
	}
	if summary.Downloaded != 1 {
		t.Errorf("retry summary = %+v, want 1 downloaded", summary)
	}
	if _, ok := assetMap.ByUID("assets_9"); !ok {
		t.Error("recovered asset missing from asset map")
	}
}

func TestResolveURLSchemes(t *testing.T) {
	pipeline := NewPipeline(source.NewMemStore(), t.TempDir(), "https://legacy.example", time.Second, testOpts(), logger.New())
	cases := []struct{ uri, want string }{
		{"public://img/a.png", "https://legacy.example/sites/default/files/img/a.png"},
		{"private://docs/b.pdf", "https://legacy.example/system/files/docs/b.pdf"},
		{"//cdn.example/c.png", "https://cdn.example/c.png"},
		{"https://other.example/d.png", "https://other.example/d.png"},
		{"/relative/e.png", "https://legacy.example/relative/e.png"},
	}
	for _, tc := range cases {
		if got := pipeline.ResolveURL(tc.uri); got != tc.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tc.uri, got, tc.want)
		}
	}
}
