package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"agreex/internal/chains"
	"agreex/internal/dex"
	"agreex/internal/escrow"
	"agreex/internal/verification"
)

const headerRequestID = "X-Request-Id"

func newRequestID() string { return "req_" + uuid.NewString() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success":    false,
		"request_id": r.Header.Get(headerRequestID),
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// writeDomainError maps package sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	writeError(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, chains.ErrUnsupportedChain):
		return http.StatusBadRequest, "unsupported_chain"
	case errors.Is(err, verification.ErrMalformedInput):
		return http.StatusBadRequest, "malformed_input"
	case errors.Is(err, dex.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, escrow.ErrContractNotFound):
		return http.StatusNotFound, "contract_not_found"
	case errors.Is(err, escrow.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, "milestone_out_of_range"
	case errors.Is(err, escrow.ErrContractClosed):
		return http.StatusConflict, "contract_closed"
	case errors.Is(err, escrow.ErrContractExists):
		return http.StatusConflict, "contract_exists"
	case errors.Is(err, dex.ErrCollaboratorUnavailable):
		return http.StatusBadGateway, "dex_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}
