package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized means the presented token did not resolve to a user.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is a verified caller.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves a bearer token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HTTPVerifier validates tokens against a GoTrue-style auth endpoint
// (GET {base}/auth/v1/user with the token as a bearer credential).
type HTTPVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier for the given auth service base URL.
func NewHTTPVerifier(baseURL, apiKey string) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Identity{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("auth service returned %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decoding auth response: %w", err)
	}
	if id.ID == "" {
		return Identity{}, ErrUnauthorized
	}
	return id, nil
}

// StaticVerifier accepts any non-empty token and derives the identity from
// the token itself. Used when no auth service is configured, typically in
// local development.
type StaticVerifier struct{}

func (StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{ID: token}, nil
}
