package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"agreex/internal/dex"
	"agreex/internal/escrow"
	"agreex/internal/verification"
)

func (s *Server) handleListChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"supportedChains": s.chains.Names(),
		"chains":          s.chains.All(),
	})
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	info, err := s.chains.Resolve(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleVerify takes the raw chat-style message: contract JSON and milestone
// text separated by the verification delimiter.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		writeText(w, http.StatusOK, verification.WelcomeText)
		return
	}
	contractJSON, milestone, err := verification.ParseMessage(message)
	if err != nil {
		s.metrics.incVerification("usage")
		writeText(w, http.StatusBadRequest, verification.UsageText)
		return
	}

	result := s.verifier.Process(r.Context(), contractJSON, milestone)
	if !result.OK() {
		s.metrics.incVerification("error")
		status, _ := classify(result.Err)
		writeJSON(w, status, result.Envelope())
		return
	}
	s.metrics.incVerification("success")
	writeJSON(w, http.StatusOK, result.Envelope())
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var req escrow.EscrowRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json payload")
		return
	}
	if req.Employer == "" {
		req.Employer = s.cfg.OKX.Wallet
	}
	if req.Token == "" {
		if info, err := s.chains.Lookup(req.Chain); err == nil {
			req.Token = info.NativeCurrency
		}
	}
	if err := validateEscrowRequest(req); err != nil {
		s.metrics.incEscrow("rejected")
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	record, err := s.escrow.CreateEscrow(r.Context(), req)
	if err != nil {
		s.metrics.incEscrow("failed")
		writeDomainError(w, r, err)
		return
	}

	if record.Contract.VerificationError != "" {
		s.metrics.incEscrow("unverified")
	} else {
		s.metrics.incEscrow("created")
	}
	writeJSON(w, http.StatusCreated, record)
}

func validateEscrowRequest(req escrow.EscrowRequest) error {
	if !common.IsHexAddress(req.Employer) {
		return errors.New("employer must be a hex address")
	}
	if !common.IsHexAddress(req.Freelancer) {
		return errors.New("freelancer must be a hex address")
	}
	if req.Chain == "" {
		return errors.New("chain is required")
	}
	if req.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	for i, m := range req.Milestones {
		if m.Amount.IsNegative() {
			return fmt.Errorf("milestone %d amount must not be negative", i)
		}
	}
	return nil
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := s.escrow.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contracts": contracts,
		"count":     len(contracts),
	})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	contract, err := s.escrow.Get(r.Context(), address)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract":    contract,
		"explorerUrl": s.escrow.ExplorerURL(contract),
	})
}

func (s *Server) handleCompleteMilestone(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_index", "milestone index must be an integer")
		return
	}

	result, err := s.escrow.ProcessMilestone(r.Context(), address, index)
	if err != nil {
		s.metrics.incCompletion("error")
		status, code := classify(err)
		writeJSON(w, status, map[string]any{
			"success":    false,
			"request_id": r.Header.Get(headerRequestID),
			"milestone":  result.Milestone,
			"error": map[string]any{
				"code":    code,
				"message": result.Error,
			},
		})
		return
	}

	if result.Success {
		s.metrics.incCompletion("released")
	} else {
		s.metrics.incCompletion("pending")
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCloseContract(w http.ResponseWriter, r *http.Request) {
	address, ok := addressParam(w, r)
	if !ok {
		return
	}
	contract, err := s.escrow.Close(r.Context(), address)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"contract": contract,
	})
}

type quoteRequest struct {
	Chain       string `json:"chain"`
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	Amount      string `json:"amount"`
	Slippage    string `json:"slippage"`
	UserAddress string `json:"userAddress"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json payload")
		return
	}
	if req.FromToken == "" || req.ToToken == "" || req.Amount == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "fromToken, toToken and amount are required")
		return
	}
	info, err := s.chains.Resolve(req.Chain)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.UserAddress == "" {
		req.UserAddress = s.cfg.OKX.Wallet
	}

	quote, err := s.dex.Quote(r.Context(), dex.QuoteRequest{
		ChainID:     info.ChainID,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		Amount:      req.Amount,
		Slippage:    req.Slippage,
		UserAddress: req.UserAddress,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chain":   info.Key,
		"quote":   quote,
	})
}

type crossChainRequest struct {
	SourceChain      string `json:"sourceChain"`
	TargetChain      string `json:"targetChain"`
	ConditionHash    string `json:"conditionHash"`
	VerificationType string `json:"verificationType"`
}

func (s *Server) handleCrossChain(w http.ResponseWriter, r *http.Request) {
	var req crossChainRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid json payload")
		return
	}
	source, err := s.chains.Resolve(req.SourceChain)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	target, err := s.chains.Resolve(req.TargetChain)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.VerificationType == "" {
		req.VerificationType = "milestone-completion"
	}

	result, err := s.dex.VerifyCrossChain(r.Context(), dex.CrossChainRequest{
		SourceChainID:    source.ChainID,
		TargetChainID:    target.ChainID,
		ConditionHash:    req.ConditionHash,
		VerificationType: req.VerificationType,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"verification": result,
	})
}

// addressParam reads and checksums the {address} path segment.
func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, r, http.StatusBadRequest, "invalid_address", "address must be a hex address")
		return "", false
	}
	return common.HexToAddress(raw).Hex(), true
}
