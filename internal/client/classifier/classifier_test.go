package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clinicflow/intake/internal/config"
)

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content type = %q", ct)
		}
		_, _ = w.Write([]byte(`{"tone_group":"III","confidence":0.91}`))
	}))
	defer srv.Close()

	c := New(config.ClassifierConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	payload, err := c.Classify(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if string(payload) != `{"tone_group":"III","confidence":0.91}` {
		t.Fatalf("payload = %s", payload)
	}
}

func TestClassifyFailuresSurfaceAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(config.ClassifierConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if _, err := c.Classify(context.Background(), []byte{1}, "image/png"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClassifyRejectsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := New(config.ClassifierConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if _, err := c.Classify(context.Background(), []byte{1}, "image/png"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
