package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func toJWK(key *rsa.PrivateKey, kid string) JWKSKey {
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func jwksServer(t *testing.T, hits *int32, keys func() []JWKSKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKSResponse{Keys: keys()})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSCache_FetchAndCache(t *testing.T) {
	key := generateKey(t)
	var hits int32
	srv := jwksServer(t, &hits, func() []JWKSKey { return []JWKSKey{toJWK(key, "k1")} })

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	got, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N.Cmp(key.PublicKey.N) != 0 || got.E != key.PublicKey.E {
		t.Error("fetched key does not match original")
	}

	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected 1 fetch, got %d", hits)
	}
}

func TestJWKSCache_UnknownKidRefetches(t *testing.T) {
	first, second := generateKey(t), generateKey(t)
	var hits int32
	srv := jwksServer(t, &hits, func() []JWKSKey {
		if atomic.LoadInt32(&hits) == 1 {
			return []JWKSKey{toJWK(first, "old")}
		}
		return []JWKSKey{toJWK(first, "old"), toJWK(second, "new")}
	})

	cache := NewJWKSCache(srv.URL, 10*time.Minute)
	if _, err := cache.GetKey("old"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := cache.GetKey("new")
	if err != nil {
		t.Fatalf("expected rotated key to be found: %v", err)
	}
	if got.N.Cmp(second.PublicKey.N) != 0 {
		t.Error("rotated key modulus does not match")
	}
	if hits != 2 {
		t.Errorf("expected 2 fetches, got %d", hits)
	}
}

func TestJWKSCache_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	if _, err := NewJWKSCache(failing.URL, time.Minute).GetKey("any"); err == nil {
		t.Error("expected error for server error response")
	}

	var hits int32
	srv := jwksServer(t, &hits, func() []JWKSKey { return []JWKSKey{toJWK(generateKey(t), "present")} })
	if _, err := NewJWKSCache(srv.URL, time.Minute).GetKey("absent"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	if _, err := parseRSAPublicKey(JWKSKey{N: "!!!", E: "AQAB"}); err == nil {
		t.Error("expected error for invalid modulus")
	}
	if _, err := parseRSAPublicKey(JWKSKey{N: "AQAB", E: "!!!"}); err == nil {
		t.Error("expected error for invalid exponent")
	}
}

func TestJWKSKeyFunc_NoKid(t *testing.T) {
	keyFunc := jwksKeyFunc(NewJWKSCache("http://127.0.0.1:0", time.Minute))
	_, err := keyFunc(&jwt.Token{Header: map[string]interface{}{}})
	if err == nil || err.Error() != "token has no kid header" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": "https://idp.example.com/keys"})
	}))
	defer srv.Close()

	url, err := DiscoverJWKSURL(srv.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://idp.example.com/keys" {
		t.Errorf("unexpected jwks url %q", url)
	}
}

func TestJWTMiddleware_RS256ViaJWKS(t *testing.T) {
	key := generateKey(t)
	var hits int32
	srv := jwksServer(t, &hits, func() []JWKSKey { return []JWKSKey{toJWK(key, "rs-1")} })

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("doctor-5", RolePhysician))
	token.Header["kid"] = "rs-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = runJWT(t, JWTConfig{JWKSURL: srv.URL}, "Bearer "+signed, func(c echo.Context) error {
		if uid := UserIDFromContext(c.Request().Context()); uid != "doctor-5" {
			t.Errorf("expected doctor-5, got %q", uid)
		}
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
