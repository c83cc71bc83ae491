package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStore(t *testing.T) {
	var gotFilename, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/store" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotFilename = r.Header.Get("X-Filename")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"handle":"h-123"}`)
	}))
	defer server.Close()

	s := NewHTTPStore(server.URL, "secret")
	handle, err := s.Store(context.Background(), []byte("artifact-bytes"), "series_42_chapter_1.cbz")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if handle != "h-123" {
		t.Errorf("Expected handle 'h-123', got %q", handle)
	}
	if gotFilename != "series_42_chapter_1.cbz" {
		t.Errorf("Filename header not sent, got %q", gotFilename)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Auth header not sent, got %q", gotAuth)
	}
	if string(gotBody) != "artifact-bytes" {
		t.Errorf("Body not uploaded, got %q", gotBody)
	}
}

func TestHTTPStoreErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInsufficientStorage)
		}))
		defer server.Close()

		s := NewHTTPStore(server.URL, "")
		if _, err := s.Store(context.Background(), []byte("x"), "f"); err == nil {
			t.Error("Expected error on non-2xx status")
		}
	})

	t.Run("empty handle", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		s := NewHTTPStore(server.URL, "")
		if _, err := s.Store(context.Background(), []byte("x"), "f"); err == nil {
			t.Error("Expected error on empty handle")
		}
	})
}
