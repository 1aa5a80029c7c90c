package okxauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAccessKey       = "OK-ACCESS-KEY"
	HeaderAccessSign      = "OK-ACCESS-SIGN"
	HeaderAccessTimestamp = "OK-ACCESS-TIMESTAMP"
	HeaderPassphrase      = "OK-ACCESS-PASSPHRASE"
	HeaderProjectID       = "OK-ACCESS-PROJECT-ID"
	HeaderSimulated       = "x-simulated-trading"
)

// Signer builds the OK-ACCESS-* header set for aggregator requests.
// In simulated mode it emits a deterministic placeholder signature and never
// touches the secret.
type Signer struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	ProjectID  string
	Simulated  bool
	Now        func() time.Time
}

// Sign returns the base64 signature for the given request parts.
func (s *Signer) Sign(timestamp, method, path, body string) string {
	if s.Simulated {
		return base64.StdEncoding.EncodeToString([]byte("mock-signature-" + timestamp))
	}
	return sign(s.SecretKey, prehash(timestamp, method, path, body))
}

// Headers returns a fresh header set stamped with the current time in milliseconds.
func (s *Signer) Headers(method, path, body string) http.Header {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	h := make(http.Header)
	h.Set(HeaderAccessKey, s.APIKey)
	h.Set(HeaderAccessSign, s.Sign(ts, method, path, body))
	h.Set(HeaderAccessTimestamp, ts)
	h.Set(HeaderPassphrase, s.Passphrase)
	h.Set(HeaderProjectID, s.ProjectID)
	h.Set("Content-Type", "application/json")
	if s.Simulated {
		h.Set(HeaderSimulated, "1")
	} else {
		h.Set(HeaderSimulated, "0")
	}
	return h
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// prehash is the signed string shared by outbound and inbound requests.
func prehash(timestamp, method, path, body string) string {
	return timestamp + strings.ToUpper(method) + path + body
}

func sign(secret, prehash string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(prehash))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
