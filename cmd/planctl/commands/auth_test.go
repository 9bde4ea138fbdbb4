package commands

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func TestAuthTestCmd(t *testing.T) {
	t.Parallel()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	key, err := jwk.FromRaw(raw.PublicKey)
	if err != nil {
		t.Fatalf("Failed to wrap key: %v", err)
	}
	_ = key.Set(jwk.KeyIDKey, "signing-1")
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		t.Fatalf("Failed to build key set: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Failed to marshal key set: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer empty.Close()

	out, err := runCmd(t, "auth", "test", "--jwks-url", server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "kid=signing-1") || !strings.Contains(out, "returned 1 keys") {
		t.Errorf("Expected key listing, got %q", out)
	}

	if _, err := runCmd(t, "auth", "test", "--jwks-url", empty.URL); err == nil || !strings.Contains(err.Error(), "no keys") {
		t.Errorf("Expected no keys error, got %v", err)
	}
}
