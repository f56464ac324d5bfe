package oidc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID    = "test-key-1"
	testClientID = "fitcoach-cli"
)

// jwk is an RSA JSON Web Key
type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

type issuedCode struct {
	nonce     string
	challenge string
	subject   string
	email     string
}

// testIssuer is a minimal in-process OpenID Connect issuer.
type testIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu      sync.Mutex
	codes   map[string]issuedCode
	revoked []string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	iss := &testIssuer{t: t, key: key, codes: make(map[string]issuedCode)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", iss.discovery)
	mux.HandleFunc("GET /jwks", iss.jwks)
	mux.HandleFunc("POST /token", iss.token)
	mux.HandleFunc("POST /revoke", iss.revoke)
	iss.server = httptest.NewServer(mux)
	t.Cleanup(iss.server.Close)

	return iss
}

func (i *testIssuer) URL() string {
	return i.server.URL
}

// authorize simulates the user approving the request: it records a code bound
// to the nonce and PKCE challenge that the authorization URL carried.
func (i *testIssuer) authorize(code, nonce, challenge, subject, email string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[code] = issuedCode{nonce: nonce, challenge: challenge, subject: subject, email: email}
}

func (i *testIssuer) revokedTokens() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.revoked...)
}

func (i *testIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                i.URL(),
		"authorization_endpoint":                i.URL() + "/authorize",
		"token_endpoint":                        i.URL() + "/token",
		"jwks_uri":                              i.URL() + "/jwks",
		"revocation_endpoint":                   i.URL() + "/revoke",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (i *testIssuer) jwks(w http.ResponseWriter, r *http.Request) {
	pub := i.key.PublicKey
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []jwk{{
			Kty: "RSA",
			Use: "sig",
			Kid: testKeyID,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (i *testIssuer) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(i.t, r.ParseForm())

	i.mu.Lock()
	issued, ok := i.codes[r.FormValue("code")]
	delete(i.codes, r.FormValue("code"))
	i.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	sum := sha256.Sum256([]byte(r.FormValue("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != issued.challenge {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "PKCE mismatch"})
		return
	}

	now := time.Now()
	idToken := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
		"iss":     i.URL(),
		"aud":     testClientID,
		"sub":     issued.subject,
		"email":   issued.email,
		"name":    "Jane Doe",
		"picture": "https://img.example.test/jane.png",
		"nonce":   issued.nonce,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	idToken.Header["kid"] = testKeyID
	rawIDToken, err := idToken.SignedString(i.key)
	require.NoError(i.t, err)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "provider-access-token",
		"refresh_token": "provider-refresh-token",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      rawIDToken,
	})
}

func (i *testIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	require.NoError(i.t, r.ParseForm())
	i.mu.Lock()
	i.revoked = append(i.revoked, r.FormValue("token"))
	i.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
