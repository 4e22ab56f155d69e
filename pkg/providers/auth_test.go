package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientCredentialsTokenSource_FetchAndCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("missing or wrong basic auth: %s/%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	source := NewClientCredentialsTokenSource(server.URL, "client-id", "client-secret")

	tok, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token = %q", tok)
	}

	// Second call must be served from cache.
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("cached token: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected 1 token request, got %d", requests)
	}
}

func TestClientCredentialsTokenSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad client"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	source := NewClientCredentialsTokenSource(server.URL, "id", "secret")
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatal("expected error for unauthorized token request")
	}
}

func TestClientCredentialsTokenSource_MissingCredentials(t *testing.T) {
	source := NewClientCredentialsTokenSource("", "", "")
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatal("expected error when credentials are empty")
	}
}

func TestStaticTokenSource(t *testing.T) {
	source := NewStaticTokenSource("abc", "test")
	tok, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "abc" {
		t.Fatalf("token = %q", tok)
	}

	empty := NewStaticTokenSource("  ", "test")
	if _, err := empty.Token(context.Background()); err == nil {
		t.Fatal("expected error for empty static token")
	}
}

func TestBearerTokenAuth_Apply(t *testing.T) {
	auth := NewBearerTokenAuth(NewStaticTokenSource("abc", "test"))
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err := auth.Apply(context.Background(), req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Fatalf("Authorization = %q", got)
	}
}
