package dex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agreex/internal/okxauth"
)

const defaultTimeout = 10 * time.Second

// HTTPClient talks to the live aggregator. Every request is signed, bounded
// by Timeout and attempted exactly once.
type HTTPClient struct {
	baseURL string
	signer  *okxauth.Signer
	http    *http.Client
}

type HTTPClientConfig struct {
	BaseURL string
	Signer  *okxauth.Signer
	Timeout time.Duration
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		signer:  cfg.Signer,
		http: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}, nil
}

func (c *HTTPClient) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	slippage := req.Slippage
	if slippage == "" {
		slippage = "0.5"
	}
	q := url.Values{}
	q.Set("chainId", req.ChainID)
	q.Set("fromTokenAddress", req.FromToken)
	q.Set("toTokenAddress", req.ToToken)
	q.Set("amount", req.Amount)
	q.Set("slippage", slippage)
	if req.UserAddress != "" {
		q.Set("userWalletAddress", req.UserAddress)
	}

	// The quote endpoint answers with a one-element array.
	var quotes []Quote
	if err := c.do(ctx, http.MethodGet, PathQuote, q, nil, &quotes); err != nil {
		return Quote{}, err
	}
	if len(quotes) == 0 {
		return Quote{}, fmt.Errorf("%w: empty quote", ErrCollaboratorUnavailable)
	}
	return quotes[0], nil
}

func (c *HTTPClient) VerifyDeployment(ctx context.Context, chainID, contractAddress string) (DeploymentVerification, error) {
	payload := map[string]string{
		"chainId":          chainID,
		"contractAddress":  contractAddress,
		"verificationType": "agreex-standard",
	}
	var out DeploymentVerification
	err := c.do(ctx, http.MethodPost, PathContractVerify, nil, payload, &out)
	return out, err
}

func (c *HTTPClient) CheckMilestone(ctx context.Context, contractAddress string, milestoneID int, chainID string) (MilestoneStatus, error) {
	q := url.Values{}
	q.Set("contractAddress", contractAddress)
	q.Set("milestoneId", strconv.Itoa(milestoneID))
	q.Set("chainId", chainID)

	var out MilestoneStatus
	err := c.do(ctx, http.MethodGet, PathMilestoneStatus, q, nil, &out)
	return out, err
}

func (c *HTTPClient) ReleasePayment(ctx context.Context, req PaymentRequest) (PaymentRelease, error) {
	if req.TokenAddress == "" {
		req.TokenAddress = NativeToken
	}
	if req.ReleaseType == "" {
		req.ReleaseType = "milestone-completion"
	}
	var out PaymentRelease
	err := c.do(ctx, http.MethodPost, PathPaymentRelease, nil, req, &out)
	return out, err
}

func (c *HTTPClient) VerifyCrossChain(ctx context.Context, req CrossChainRequest) (CrossChainVerification, error) {
	if req.VerificationType == "" {
		req.VerificationType = "merkle-proof"
	}
	var out CrossChainVerification
	err := c.do(ctx, http.MethodPost, PathCrossChainVerify, nil, req, &out)
	return out, err
}

// Ping sends a HEAD to the API root; any HTTP answer counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+APIVersionPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	resp.Body.Close()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: encode payload: %v", ErrInvalidRequest, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header = c.signer.Headers(method, requestPath, string(body))
	req.Header.Set("User-Agent", "AgreeX/1.0 OKX-DEX-Integration")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrCollaboratorUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrCollaboratorUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrCollaboratorUnavailable, path, resp.StatusCode)
	}

	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCollaboratorUnavailable, path, err)
	}
	if !env.OK() {
		return fmt.Errorf("%w: %s code %s: %s", ErrCollaboratorUnavailable, path, env.Code, env.Msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", ErrCollaboratorUnavailable, path, err)
	}
	return nil
}
