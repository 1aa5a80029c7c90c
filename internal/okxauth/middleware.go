package okxauth

import (
	"crypto/hmac"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderRequestSignature = "X-Agreex-Signature"
	HeaderRequestTimestamp = "X-Agreex-Timestamp"
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
)

// Verifier authenticates calls into the escrow API with the same scheme the
// aggregator expects from us: base64 HMAC-SHA256 over timestamp, upper-cased
// method, request path with query, and body. Timestamps are unix seconds.
// An empty Secret disables verification.
type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	Now     func() time.Time
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.Secret != "" {
			if err := v.check(r); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequestSignature is what a client sends in X-Agreex-Signature.
func RequestSignature(secret, timestamp, method, path string, body []byte) string {
	return sign(secret, prehash(timestamp, method, path, string(body)))
}

func (v *Verifier) check(r *http.Request) error {
	sig := strings.TrimSpace(r.Header.Get(HeaderRequestSignature))
	if sig == "" {
		return ErrMissingSignature
	}
	ts := r.Header.Get(HeaderRequestTimestamp)
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMissingTimestamp
	}
	if age := v.now().Sub(time.Unix(issued, 0)); age > v.MaxSkew || -age > v.MaxSkew {
		return ErrStaleTimestamp
	}

	body, err := bufferBody(r)
	if err != nil {
		return err
	}
	want := RequestSignature(v.Secret, ts, r.Method, r.URL.RequestURI(), body)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// bufferBody reads the body for signing and puts it back for the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	return body, nil
}
