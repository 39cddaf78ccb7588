package openrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientAddsAttributionHeaders(t *testing.T) {
	t.Parallel()

	var referer, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	cfg := &Config{SiteURL: " https://chative.example.com ", SiteName: "Chative", Timeout: 5 * time.Second}
	client := cfg.HTTPClient()
	if client.Timeout != 5*time.Second {
		t.Fatalf("HTTPClient().Timeout = %v", client.Timeout)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if referer != "https://chative.example.com" || title != "Chative" {
		t.Fatalf("headers = %q, %q", referer, title)
	}
}

func TestHTTPClientWithoutAttribution(t *testing.T) {
	t.Parallel()

	client := (&Config{}).HTTPClient()
	if client.Transport != http.DefaultTransport {
		t.Fatalf("HTTPClient().Transport = %T, want default transport", client.Transport)
	}
}

func TestNewRequiresModel(t *testing.T) {
	t.Parallel()

	cfg := &Config{APIKey: "key"}
	if _, err := cfg.New(context.Background()); err == nil {
		t.Fatal("New() error = nil, want missing model error")
	}
}

func TestNewBuildsChatModel(t *testing.T) {
	t.Parallel()

	tokens := 500
	cfg := &Config{
		BaseURL:            "https://openrouter.ai/api/v1/",
		APIKey:             "key",
		Model:              "x-ai/grok-4.1-fast",
		MaxCompletionToken: &tokens,
		Temperature:        0.3,
	}
	m, err := cfg.New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m == nil {
		t.Fatal("New() returned nil model")
	}
}
