package replication

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:       baseURL,
		ThrottleDelay: time.Millisecond,
		MaxAttempts:   3,
		RetryDelay:    time.Millisecond,
	})
}

func gzipBody(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	gz := gzip.NewWriter(w)
	if _, err := gz.Write([]byte(body)); err != nil {
		t.Fatalf("Failed to write gzip body: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close gzip writer: %v", err)
	}
}

func TestClient_Tip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/state.yaml" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("---\nsequence: 424242\n"))
	}))
	defer srv.Close()

	tip, err := testClient(srv.URL).Tip(context.Background())
	if err != nil {
		t.Fatalf("Tip() returned error: %v", err)
	}
	if tip != 424242 {
		t.Errorf("Tip() = %d, want 424242", tip)
	}
}

func TestClient_Fetch(t *testing.T) {
	const payload = `<osm><changeset id="1" created_at="2020-01-01T00:00:00Z"/></osm>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/006/543/217.osm.gz" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		gzipBody(t, w, payload)
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Fetch(context.Background(), 6543217)
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if string(data) != payload {
		t.Errorf("Fetch() = %q, want %q", data, payload)
	}
}

func TestClient_FetchNotFound(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	// 404 is terminal: no retries.
	if n := requests.Load(); n != 1 {
		t.Errorf("Expected exactly 1 request for a 404, got %d", n)
	}
}

func TestClient_FetchRetriesTransientErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		gzipBody(t, w, "ok")
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("Fetch() returned error after retries: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("Fetch() = %q, want ok", data)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("Expected 3 requests, got %d", n)
	}
}

func TestClient_FetchExhaustsAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Fetch(context.Background(), 1)
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if !strings.Contains(err.Error(), "unexpected status 500") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestClient_FetchBadGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not gzip"))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Fetch(context.Background(), 1); err == nil {
		t.Error("Expected error for non-gzip body")
	}
}
