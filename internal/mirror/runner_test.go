package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"alistmirror/internal/alist"
	"alistmirror/internal/storage"
	"alistmirror/internal/transfer"
)

// fakeAList serves a small in-memory tree over the listing API.
type fakeAList struct {
	*httptest.Server
	dirs        map[string][]string
	files       map[string]string
	noURL       map[string]bool
	failList    map[string]bool
	contentHits atomic.Int32
	apiAuth     atomic.Int32
	contentAuth atomic.Int32
}

func newFakeAList(t *testing.T) *fakeAList {
	t.Helper()
	f := &fakeAList{
		dirs: map[string][]string{
			"/":            {"docs/", "secret.txt", "top.bin"},
			"/docs":        {"readme.txt", "nested/"},
			"/docs/nested": {},
		},
		files: map[string]string{
			"/secret.txt":      "classified",
			"/top.bin":         strings.Repeat("x", 200*1024),
			"/docs/readme.txt": "abc",
		},
		noURL:    map[string]bool{"/secret.txt": true},
		failList: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/fs/list", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if r.Header.Get("Authorization") != "" {
			f.apiAuth.Add(1)
		}
		if f.failList[req.Path] {
			json.NewEncoder(w).Encode(map[string]any{"code": 500, "message": "failed get storage"})
			return
		}
		names, ok := f.dirs[req.Path]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"code": 500, "message": "object not found"})
			return
		}
		content := []map[string]any{}
		for _, name := range names {
			isDir := strings.HasSuffix(name, "/")
			name = strings.TrimSuffix(name, "/")
			size := len(f.files[path.Join(req.Path, name)])
			content = append(content, map[string]any{"name": name, "is_dir": isDir, "size": size, "modified": "2024-01-01T00:00:00Z"})
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "success", "data": map[string]any{"content": content, "total": len(content)}})
	})
	mux.HandleFunc("/api/fs/get", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		content, ok := f.files[req.Path]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{"code": 500, "message": "object not found"})
			return
		}
		rawURL := f.URL + "/raw" + req.Path
		if f.noURL[req.Path] {
			rawURL = ""
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "success", "data": map[string]any{
			"name": path.Base(req.Path), "size": len(content), "is_dir": false, "raw_url": rawURL,
		}})
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		f.contentHits.Add(1)
		if r.Header.Get("Authorization") != "" {
			f.contentAuth.Add(1)
		}
		content, ok := f.files[strings.TrimPrefix(r.URL.Path, "/raw")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "file", time.Time{}, strings.NewReader(content))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestRunner(t *testing.T, server *fakeAList, root string) *Runner {
	t.Helper()
	client := alist.NewClient(alist.Options{BaseURL: server.URL, RetryAttempts: 1})
	store, err := storage.NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	engine := transfer.NewEngine(client, store, transfer.Options{Headers: client.Headers()})
	walker := NewWalker(client, engine, store, WalkerOptions{Delay: time.Millisecond})
	return NewRunner(walker, RunnerOptions{RunID: "test", BaseURL: server.URL, RemoteRoot: "/", Destination: root})
}

func TestRunMirrorsTree(t *testing.T) {
	server := newFakeAList(t)
	root := t.TempDir()

	result, err := newTestRunner(t, server, root).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "docs", "readme.txt"))
	if err != nil || string(data) != "abc" {
		t.Errorf("docs/readme.txt = %q, %v; want %q", data, err, "abc")
	}
	info, err := os.Stat(filepath.Join(root, "top.bin"))
	if err != nil || info.Size() != 200*1024 {
		t.Errorf("top.bin stat = %v, %v; want 204800 bytes", info, err)
	}
	if info, err := os.Stat(filepath.Join(root, "docs", "nested")); err != nil || !info.IsDir() {
		t.Errorf("docs/nested not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "secret.txt")); !os.IsNotExist(err) {
		t.Errorf("secret.txt exists: %v", err)
	}

	if result.FilesDownloaded != 2 || result.FilesUnresolvable != 1 {
		t.Errorf("downloaded = %d unresolvable = %d, want 2 and 1", result.FilesDownloaded, result.FilesUnresolvable)
	}
	if result.DirectoriesListed != 3 {
		t.Errorf("DirectoriesListed = %d, want 3", result.DirectoriesListed)
	}
	if result.RunID != "test" || result.MirrorDuration == "" {
		t.Errorf("result header = %+v", result)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	server := newFakeAList(t)
	root := t.TempDir()

	if _, err := newTestRunner(t, server, root).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	hits := server.contentHits.Load()

	result, err := newTestRunner(t, server, root).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if server.contentHits.Load() != hits {
		t.Errorf("content requests on second run = %d, want 0", server.contentHits.Load()-hits)
	}
	if result.FilesSkipped != 2 || result.FilesDownloaded != 0 {
		t.Errorf("skipped = %d downloaded = %d, want 2 and 0", result.FilesSkipped, result.FilesDownloaded)
	}
}

func TestRunResumesInterruptedFile(t *testing.T) {
	server := newFakeAList(t)
	root := t.TempDir()

	full := server.files["/top.bin"]
	if err := os.WriteFile(filepath.Join(root, "top.bin"), []byte(full[:1000]), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	result, err := newTestRunner(t, server, root).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "top.bin"))
	if string(data) != full {
		t.Errorf("top.bin has %d bytes, want %d identical bytes", len(data), len(full))
	}
	if result.FilesResumed != 1 {
		t.Errorf("FilesResumed = %d, want 1", result.FilesResumed)
	}
}

func TestRunContinuesPastFailingDirectory(t *testing.T) {
	server := newFakeAList(t)
	server.failList["/docs"] = true
	root := t.TempDir()

	result, err := newTestRunner(t, server, root).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DirectoriesFailed != 1 {
		t.Errorf("DirectoriesFailed = %d, want 1", result.DirectoriesFailed)
	}
	if _, err := os.Stat(filepath.Join(root, "top.bin")); err != nil {
		t.Errorf("sibling file not mirrored: %v", err)
	}
}

func TestRunFailsWhenRootUnlistable(t *testing.T) {
	server := newFakeAList(t)
	server.failList["/"] = true

	result, err := newTestRunner(t, server, t.TempDir()).Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected error")
	}
	var protocolErr *alist.ProtocolError
	if !errors.As(err, &protocolErr) {
		t.Errorf("Run() error = %v, want *alist.ProtocolError", err)
	}
	if result == nil || result.DirectoriesFailed != 1 {
		t.Errorf("result = %+v, want report with the failed root", result)
	}
}

func TestRunKeepsTokenOffContentRequests(t *testing.T) {
	server := newFakeAList(t)
	root := t.TempDir()

	client := alist.NewClient(alist.Options{BaseURL: server.URL, Token: "alist-secret-token", RetryAttempts: 1})
	store, err := storage.NewLocalStore(root)
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	engine := transfer.NewEngine(client, store, transfer.Options{Headers: client.Headers()})
	walker := NewWalker(client, engine, store, WalkerOptions{})
	runner := NewRunner(walker, RunnerOptions{RunID: "test", BaseURL: server.URL, RemoteRoot: "/", Destination: root})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if server.apiAuth.Load() == 0 {
		t.Error("listing requests carried no Authorization header")
	}
	if server.contentHits.Load() == 0 {
		t.Fatal("no content requests made")
	}
	if n := server.contentAuth.Load(); n != 0 {
		t.Errorf("%d content requests carried Authorization, want 0", n)
	}
}
