package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/DevSrijit/commsync-sub002/internal/model"
	"github.com/DevSrijit/commsync-sub002/internal/provider"
)

func TestGetAppliesHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header missing, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("query not encoded, got %q", got)
		}
		w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, model.ProviderDiscord, map[string]string{"Authorization": "Bearer tok"})

	var out struct {
		Name string `json:"name"`
	}
	q := map[string][]string{"limit": {"5"}}
	if err := c.Get(context.Background(), "/things", q, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Name != "ok" {
		t.Fatalf("expected decoded response, got %+v", out)
	}
}

func TestRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, model.ProviderDiscord, nil)
	if err := c.Get(context.Background(), "/x", nil, nil); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestUnauthorizedBecomesAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, model.ProviderWhatsApp, nil)
	err := c.Get(context.Background(), "/x", nil, nil)
	if !provider.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestDeleteToleratesMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, model.ProviderDiscord, nil)
	if err := c.Delete(context.Background(), "/things/42"); err != nil {
		t.Fatalf("deleting a missing resource must succeed, got %v", err)
	}
}

func TestServerErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, model.ProviderDiscord, nil)
	err := c.Get(context.Background(), "/x", nil, nil)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("expected a 500 StatusError, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatal("a 500 is not a 404")
	}
}

func TestConnectionRefusedIsConnectionError(t *testing.T) {
	c := New("http://127.0.0.1:1", model.ProviderDiscord, nil)
	err := c.Get(context.Background(), "/x", nil, nil)
	if !provider.IsConnectionError(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}
