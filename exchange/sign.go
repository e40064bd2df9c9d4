package exchange

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// ErrSigningUnavailable is returned when a private endpoint is requested
// without configured API credentials. The request must not be sent.
var ErrSigningUnavailable = errors.New("signing unavailable: no API credentials configured")

// SignHeader is the request header carrying the hex-encoded HMAC digest.
const SignHeader = "apisign"

// Credentials holds the API key pair for private endpoints.
type Credentials struct {
	Key    string
	Secret string
}

// Configured reports whether both key and secret are present.
func (c Credentials) Configured() bool {
	return c.Key != "" && c.Secret != ""
}

// Signer signs private requests with an HMAC-SHA512 over the final URL.
// Credentials are injected at construction; there is no shared global state.
type Signer struct {
	creds Credentials
}

// NewSigner returns a signer for the given credentials. The credentials may
// be empty; signing then fails with ErrSigningUnavailable.
func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds}
}

// Sign appends the apikey and a fresh random nonce to rawURL, computes the
// HMAC-SHA512 of the final URL keyed with the API secret, and returns the
// final URL together with the signature header to attach.
func (s *Signer) Sign(rawURL string) (string, http.Header, error) {
	if !s.creds.Configured() {
		return "", nil, ErrSigningUnavailable
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse request url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", s.creds.Key)
	q.Set("nonce", newNonce())
	u.RawQuery = q.Encode()
	final := u.String()

	mac := hmac.New(sha512.New, []byte(s.creds.Secret))
	mac.Write([]byte(final))

	header := http.Header{}
	header.Set(SignHeader, hex.EncodeToString(mac.Sum(nil)))
	return final, header, nil
}

// newNonce returns a short random hex nonce for replay protection.
func newNonce() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}
