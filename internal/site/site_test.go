package site

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	srv := New(Options{
		DB:      pingFunc(func(context.Context) error { return nil }),
		Cursor:  func() int { return 17 },
		Pending: func() int { return 2 },
	})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Checks["database"] != "ok" || *body.Cursor != 17 || *body.Pending != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHealthDegraded(t *testing.T) {
	srv := New(Options{DB: pingFunc(func(context.Context) error { return errors.New("down") })})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>intake</h1>"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts := httptest.NewServer(New(Options{Dir: dir}).Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<h1>intake</h1>" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := New(Options{Listen: "127.0.0.1:0"})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := New(Options{}).Start(context.Background()); err != nil {
		t.Fatalf("disabled server must not fail: %v", err)
	}
}
