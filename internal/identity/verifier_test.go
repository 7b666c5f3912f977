package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPVerifierValidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("path = %s, want /auth/v1/user", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("apikey = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "user-42", "email": "x@example.com"}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "anon-key")
	id, err := v.Verify(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ID != "user-42" || id.Email != "x@example.com" {
		t.Errorf("identity = %+v", id)
	}
}

func TestHTTPVerifierRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "")
	_, err := v.Verify(context.Background(), "bad-token")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestHTTPVerifierEmptyUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, "")
	_, err := v.Verify(context.Background(), "tok")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	var v StaticVerifier
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token err = %v, want ErrUnauthorized", err)
	}
	id, err := v.Verify(context.Background(), "dev-user")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ID != "dev-user" {
		t.Errorf("id = %q, want dev-user", id.ID)
	}
}
