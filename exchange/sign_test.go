package exchange

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"testing"
)

func TestSignWithoutCredentials(t *testing.T) {
	s := NewSigner(Credentials{})
	if _, _, err := s.Sign("https://example.com/api/v1.1/account/getorder"); !errors.Is(err, ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}
	s = NewSigner(Credentials{Key: "key-only"})
	if _, _, err := s.Sign("https://example.com/api/v1.1/account/getorder"); !errors.Is(err, ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable for missing secret, got %v", err)
	}
}

func TestSignAppendsKeyAndNonce(t *testing.T) {
	s := NewSigner(Credentials{Key: "my-key", Secret: "my-secret"})
	final, header, err := s.Sign("https://example.com/api/v1.1/market/cancel?uuid=abc")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	u, err := url.Parse(final)
	if err != nil {
		t.Fatalf("signed URL does not parse: %v", err)
	}
	q := u.Query()
	if q.Get("apikey") != "my-key" {
		t.Errorf("apikey = %q", q.Get("apikey"))
	}
	if q.Get("nonce") == "" {
		t.Error("nonce missing")
	}
	if q.Get("uuid") != "abc" {
		t.Error("original query parameters lost")
	}

	mac := hmac.New(sha512.New, []byte("my-secret"))
	mac.Write([]byte(final))
	want := hex.EncodeToString(mac.Sum(nil))
	if got := header.Get(SignHeader); got != want {
		t.Errorf("signature = %q, want %q", got, want)
	}
}

func TestSignFreshNonce(t *testing.T) {
	s := NewSigner(Credentials{Key: "k", Secret: "s"})
	first, _, err := s.Sign("https://example.com/a")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	second, _, err := s.Sign("https://example.com/a")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if first == second {
		t.Error("nonce reused across requests")
	}
}
