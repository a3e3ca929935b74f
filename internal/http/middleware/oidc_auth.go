package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OIDCConfig holds the issuer details for admin token validation.
type OIDCConfig struct {
	Issuer   string
	ClientID string // expected audience; empty skips the check
	// JWKSURL overrides the default <issuer>/.well-known/jwks.json, mainly
	// for tests.
	JWKSURL string
}

// OIDCClaims represents the claims in an OIDC identity token.
type OIDCClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

const oidcClaimsKey contextKey = "oidcClaims"

// jwksCache caches the signing keys fetched from the issuer.
type jwksCache struct {
	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

var jwksCaches = make(map[string]*jwksCache)
var jwksCachesMu sync.RWMutex

// OIDCAuth validates RS256 tokens issued by the configured OIDC provider.
func OIDCAuth(cfg OIDCConfig) func(http.Handler) http.Handler {
	if cfg.Issuer == "" {
		// Reject everything rather than silently allowing when misconfigured.
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeMessage(w, http.StatusUnauthorized, "admin auth not configured")
			})
		}
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeMessage(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")

			// The key id lives in the unverified header.
			token, _, err := jwt.NewParser().ParseUnverified(tokenString, &OIDCClaims{})
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "invalid token format")
				return
			}
			kid, ok := token.Header["kid"].(string)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "missing key id in token")
				return
			}

			pubKey, err := getPublicKey(jwksURL, kid, cfg.Issuer)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "failed to resolve signing key")
				return
			}

			claims := &OIDCClaims{}
			opts := []jwt.ParserOption{jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired()}
			if cfg.ClientID != "" {
				opts = append(opts, jwt.WithAudience(cfg.ClientID))
			}
			validated, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return pubKey, nil
			}, opts...)
			if err != nil || !validated.Valid {
				writeMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), oidcClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OIDCClaimsFromContext retrieves validated OIDC claims from the context.
func OIDCClaimsFromContext(ctx context.Context) (*OIDCClaims, bool) {
	claims, ok := ctx.Value(oidcClaimsKey).(*OIDCClaims)
	return claims, ok
}

// getPublicKey fetches and caches the issuer's public key for kid.
func getPublicKey(jwksURL, kid, issuer string) (*rsa.PublicKey, error) {
	jwksCachesMu.RLock()
	cache, exists := jwksCaches[issuer]
	jwksCachesMu.RUnlock()

	if exists {
		cache.mu.RLock()
		if time.Now().Before(cache.expires) {
			if key, ok := cache.keys[kid]; ok {
				cache.mu.RUnlock()
				return key, nil
			}
		}
		cache.mu.RUnlock()
	}

	keys, err := fetchJWKS(jwksURL)
	if err != nil {
		return nil, err
	}

	jwksCachesMu.Lock()
	jwksCaches[issuer] = &jwksCache{
		keys:    keys,
		expires: time.Now().Add(1 * time.Hour),
	}
	jwksCachesMu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetchJWKS fetches the key set from the given URL.
func fetchJWKS(url string) (map[string]*rsa.PublicKey, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid RSA keys found in JWKS")
	}
	return keys, nil
}

// parseRSAPublicKey parses RSA public key components from base64url strings.
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
