package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out")
	c := New()
	result, err := c.Get(context.Background(), srv.URL, nil, dst)
	if err != nil {
		t.Fatal(err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("got status %d", result.StatusCode)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "payload" {
		t.Errorf("got %q", data)
	}
}

func TestRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out")
	c := New()
	_, err := c.Get(context.Background(), srv.URL, nil, dst)
	if err != nil {
		t.Fatal(err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestDoesNotRetry404(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out")
	c := New()
	_, err := c.Get(context.Background(), srv.URL, nil, dst)
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable status, got %d", attempts)
	}
}

func TestGitHubTokenOnlyAttachedToGitHubHosts(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "abc123")

	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out")
	c := New()
	if _, err := c.Get(context.Background(), srv.URL, nil, dst); err != nil {
		t.Fatal(err)
	}
	if sawAuth != "" {
		t.Errorf("non-GitHub host must not receive Authorization header, got %q", sawAuth)
	}

	if !IsGitHubHost("https://api.github.com/repos/foo/bar/releases/latest") {
		t.Error("api.github.com should be recognized as a GitHub host")
	}
	if IsGitHubHost(srv.URL) {
		t.Error("local test server must not be treated as a GitHub host")
	}
}

func TestRangeNotSatisfiableDiscardsAndRetriesFromZero(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Range") != "" && calls == 1 {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Write([]byte("full-content"))
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "out")
	os.WriteFile(dst, []byte("partial"), 0o644)

	c := New()
	_, err := c.Get(context.Background(), srv.URL, nil, dst)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "full-content" {
		t.Errorf("expected full re-download after 416, got %q", data)
	}
}
