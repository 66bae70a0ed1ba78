package deepl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kotoba-cloud/lingorelay/internal/domain"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(&Config{
		Endpoint: srv.URL + "/v2/translate",
		APIKey:   "test-key",
		Logger:   zap.NewNop(),
	})
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "DeepL-Auth-Key test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("text") != "こんにちは" {
			t.Errorf("unexpected text %q", r.PostForm.Get("text"))
		}
		if r.PostForm.Get("target_lang") != "EN" {
			t.Errorf("unexpected target_lang %q", r.PostForm.Get("target_lang"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"translations":[{"detected_source_language":"ja","text":"Hello"}]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).Translate(context.Background(), "こんにちは", "EN")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got.Text != "Hello" {
		t.Errorf("expected text Hello, got %q", got.Text)
	}
	if got.DetectedSourceLang != "JA" {
		t.Errorf("detected language must be uppercased, got %q", got.DetectedSourceLang)
	}
}

func TestTranslate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(456)
		w.Write([]byte(`{"message":"Quota for this billing period has been exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Translate(context.Background(), "hello", "JA")
	if !errors.Is(err, domain.ErrProviderUpstream) {
		t.Fatalf("expected ErrProviderUpstream, got %v", err)
	}
}

func TestTranslate_EmptyTranslations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translations":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Translate(context.Background(), "hello", "JA")
	if !errors.Is(err, domain.ErrProviderUpstream) {
		t.Fatalf("expected ErrProviderUpstream, got %v", err)
	}
}

func TestTranslate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv).Translate(context.Background(), "hello", "JA")
	if !errors.Is(err, domain.ErrProviderTransport) {
		t.Fatalf("expected ErrProviderTransport, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/usage" {
			t.Errorf("expected /v2/usage, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"character_count":100,"character_limit":500000}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv).HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
}
