package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Voice-Signature"

var (
	errMissingToken     = errors.New("missing bearer token")
	errInvalidToken     = errors.New("invalid bearer token")
	errMissingSignature = errors.New("missing body signature")
	errInvalidSignature = errors.New("invalid body signature")
)

// Authenticator checks the shared bearer token and, when a secret is
// configured, the body HMAC. Both comparisons are constant time.
type Authenticator struct {
	token  string
	secret string
}

// NewAuthenticator creates an authenticator. The secret is optional;
// when empty, signature checking is skipped.
func NewAuthenticator(token, secret string) *Authenticator {
	return &Authenticator{token: token, secret: secret}
}

// Authenticate verifies credentials on the raw request before any body
// decoding happens.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) error {
	header := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || presented == "" {
		return errMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) != 1 {
		return errInvalidToken
	}

	if a.secret == "" {
		return nil
	}
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return errMissingSignature
	}
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) != 1 {
		return errInvalidSignature
	}
	return nil
}
