package server

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"agreex/internal/idempotency"
)

const headerIdempotencyKey = "X-Idempotency-Key"

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// storeFunc decides whether a finished response is kept for replay.
type storeFunc func(status int, body []byte) bool

// belowServerError keeps everything except 5xx, so failed upstream calls can be retried.
func belowServerError(status int, _ []byte) bool {
	return status < http.StatusInternalServerError
}

// releasedOnly keeps a milestone completion only once a payment went out. A
// "not yet completed" answer is not stored, so a client polling with one key
// still sees the aggregator's later completion.
func releasedOnly(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	var res struct {
		Success bool `json:"success"`
	}
	return json.Unmarshal(body, &res) == nil && res.Success
}

// replayable serves a stored response when the caller repeats an
// X-Idempotency-Key on the same path. Requests without the header run
// normally; keep decides which outcomes are stored.
func (s *Server) replayable(route string, keep storeFunc, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientKey := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		if clientKey == "" || s.replay == nil {
			next(w, r)
			return
		}

		ctx := r.Context()
		key := idempotency.Key(r.Method+" "+r.URL.Path, clientKey)

		if existing, _ := s.replay.Get(ctx, key); existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Response)
			s.metrics.incReplay(route)
			return
		}

		cw := &captureWriter{ResponseWriter: w}
		next(cw, r)

		if cw.status == 0 || !keep(cw.status, cw.body.Bytes()) {
			return
		}
		now := time.Now()
		record := idempotency.Record{
			StatusCode: cw.status,
			Response:   cw.body.Bytes(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.cfg.Service.IdempotencyWindow),
		}
		if err := s.replay.Save(ctx, key, record); err != nil {
			log.Printf("idempotency save failed route=%s: %v", route, err)
		}
	}
}
