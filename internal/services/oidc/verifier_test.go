package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type testIssuer struct {
	key     jwk.Key
	server  *httptest.Server
	fetches atomic.Int32
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("Failed to wrap key: %v", err)
	}
	_ = key.Set(jwk.KeyIDKey, "test-key")
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)

	pub, err := key.PublicKey()
	if err != nil {
		t.Fatalf("Failed to derive public key: %v", err)
	}
	_ = pub.Set(jwk.KeyIDKey, "test-key")
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		t.Fatalf("Failed to build key set: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Failed to marshal key set: %v", err)
	}

	issuer := &testIssuer{key: key}
	issuer.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuer.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(issuer.server.Close)
	return issuer
}

func (i *testIssuer) sign(t *testing.T, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()

	now := time.Now()
	b := jwt.NewBuilder().
		Subject("user-123").
		Issuer("https://issuer.example.com").
		Audience([]string{"dayplan"}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("email", "planner@example.com")
	if build != nil {
		b = build(b)
	}
	tok, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build token: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, i.key))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return string(signed)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	verifier := NewVerifier(NewJWKSManager(time.Minute), issuer.server.URL, "https://issuer.example.com", "dayplan")

	tests := []struct {
		name    string
		build   func(*jwt.Builder) *jwt.Builder
		raw     string
		wantErr bool
	}{
		{name: "valid token"},
		{name: "expired", build: func(b *jwt.Builder) *jwt.Builder {
			return b.Expiration(time.Now().Add(-time.Hour))
		}, wantErr: true},
		{name: "wrong issuer", build: func(b *jwt.Builder) *jwt.Builder {
			return b.Issuer("https://evil.example.com")
		}, wantErr: true},
		{name: "wrong audience", build: func(b *jwt.Builder) *jwt.Builder {
			return b.Audience([]string{"other"})
		}, wantErr: true},
		{name: "missing subject", build: func(b *jwt.Builder) *jwt.Builder {
			return b.Subject("")
		}, wantErr: true},
		{name: "garbage", raw: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token := tt.raw
			if token == "" {
				token = issuer.sign(t, tt.build)
			}
			claims, err := verifier.Verify(context.Background(), token)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if claims.Sub != "user-123" {
				t.Errorf("Expected sub 'user-123', got '%s'", claims.Sub)
			}
			if claims.Email != "planner@example.com" {
				t.Errorf("Expected email 'planner@example.com', got '%s'", claims.Email)
			}
			if claims.Aud != "dayplan" {
				t.Errorf("Expected aud 'dayplan', got '%s'", claims.Aud)
			}
		})
	}
}

func TestJWKSManager_CachesKeys(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	manager := NewJWKSManager(time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := manager.GetJWKS(context.Background(), issuer.server.URL); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if got := issuer.fetches.Load(); got != 1 {
		t.Errorf("Expected 1 fetch, got %d", got)
	}
}

func TestJWKSManager_BadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewJWKSManager(0).GetJWKS(context.Background(), server.URL); err == nil {
		t.Error("Expected error for non-200 JWKS response")
	}
}
