package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"agreex/internal/chains"
	"agreex/internal/config"
	"agreex/internal/dex"
	"agreex/internal/escrow"
	"agreex/internal/idempotency"
	"agreex/internal/okxauth"
	"agreex/internal/verification"
)

const (
	testSecret     = "test-secret"
	testEmployer   = "0x1111111111111111111111111111111111111111"
	testFreelancer = "0x2222222222222222222222222222222222222222"
)

// countingDex reports every milestone as completed and counts releases.
type countingDex struct {
	dex.SimulatedClient
	mu       sync.Mutex
	releases int
	pingErr  error
}

func (c *countingDex) ReleasePayment(ctx context.Context, req dex.PaymentRequest) (dex.PaymentRelease, error) {
	c.mu.Lock()
	c.releases++
	c.mu.Unlock()
	return c.SimulatedClient.ReleasePayment(ctx, req)
}

func (c *countingDex) Ping(context.Context) error { return c.pingErr }

func (c *countingDex) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

func newTestServer(t *testing.T, client dex.Client) *Server {
	t.Helper()
	cfg := &config.AppConfig{
		OKX: config.OKXConfig{
			Simulate: true,
			Wallet:   testEmployer,
		},
		Service: config.ServiceConfig{
			HMACSecret:        testSecret,
			HMACClockSkew:     time.Minute,
			IdempotencyWindow: time.Minute,
		},
	}
	registry := chains.Default()
	contracts := escrow.NewMemoryStore()
	return NewServer(cfg, Dependencies{
		Chains:    registry,
		Escrow:    escrow.NewManager(contracts, client, registry),
		Verifier:  verification.NewVerifier(registry, chains.SimulatedBlocks{}),
		DEX:       client,
		Contracts: contracts,
		Replay:    idempotency.NewMemoryStore(),
	})
}

func signedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(okxauth.HeaderRequestTimestamp, ts)
	req.Header.Set(okxauth.HeaderRequestSignature, okxauth.RequestSignature(testSecret, ts, method, req.URL.RequestURI(), body))
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func createContract(t *testing.T, srv *Server, chain string) escrow.EscrowRecord {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"freelancer": testFreelancer,
		"amount":     "3",
		"token":      "ETH",
		"chain":      chain,
		"milestones": []map[string]any{
			{"description": "design", "amount": "1"},
			{"description": "build", "amount": "2"},
		},
	})
	rec := serve(srv, signedRequest(http.MethodPost, "/api/v1/contracts", payload))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var record escrow.EscrowRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return record
}

func TestCreateContractUsesPlatformWallet(t *testing.T) {
	srv := newTestServer(t, &countingDex{})
	record := createContract(t, srv, "polygon")

	if !record.Success || record.Contract.ChainID != "137" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !strings.EqualFold(record.Contract.Employer, testEmployer) {
		t.Fatalf("expected platform wallet as employer, got %s", record.Contract.Employer)
	}
	if record.Contract.Verification == nil || !record.Contract.Verification.Verified {
		t.Fatalf("expected deployment verification, got %+v", record.Contract.Verification)
	}
	if !strings.HasPrefix(record.ExplorerURL, "https://polygonscan.com/address/0x") {
		t.Fatalf("unexpected explorer url %s", record.ExplorerURL)
	}
}

func TestCreateContractIdempotency(t *testing.T) {
	srv := newTestServer(t, &countingDex{})
	payload := []byte(`{"freelancer":"` + testFreelancer + `","amount":"1","chain":"ethereum","milestones":[{"amount":"1"}]}`)

	req := signedRequest(http.MethodPost, "/api/v1/contracts", payload)
	req.Header.Set(headerIdempotencyKey, "key-1")
	first := serve(srv, req)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}

	req2 := signedRequest(http.MethodPost, "/api/v1/contracts", payload)
	req2.Header.Set(headerIdempotencyKey, "key-1")
	second := serve(srv, req2)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected cached 201 got %d", second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatalf("expected same response body on idempotent request")
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker")
	}

	contracts, _ := srv.escrow.List(context.Background())
	if len(contracts) != 1 {
		t.Fatalf("expected one contract, got %d", len(contracts))
	}
}

func TestCompleteMilestoneReleasesEveryCall(t *testing.T) {
	client := &countingDex{SimulatedClient: dex.SimulatedClient{MilestoneState: dex.MilestoneCompleted}}
	srv := newTestServer(t, client)
	record := createContract(t, srv, "ethereum")
	path := "/api/v1/contracts/" + strings.ToLower(record.Contract.Address) + "/milestones/1/complete"

	for i := 0; i < 2; i++ {
		rec := serve(srv, signedRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("complete: expected 200 got %d: %s", rec.Code, rec.Body.String())
		}
		var result escrow.CompletionResult
		_ = json.Unmarshal(rec.Body.Bytes(), &result)
		if !result.Success || result.Payment == nil || result.Message != "Payment of 2 initiated via OKX DEX" {
			t.Fatalf("unexpected completion %+v", result)
		}
	}
	if client.releaseCount() != 2 {
		t.Fatalf("expected a release per call, got %d", client.releaseCount())
	}

	// A repeated idempotency key replays instead of releasing again.
	for i := 0; i < 2; i++ {
		req := signedRequest(http.MethodPost, path, nil)
		req.Header.Set(headerIdempotencyKey, "release-1")
		if rec := serve(srv, req); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
	}
	if client.releaseCount() != 3 {
		t.Fatalf("expected replay to skip release, got %d releases", client.releaseCount())
	}
}

func TestCompleteMilestonePending(t *testing.T) {
	client := &countingDex{}
	srv := newTestServer(t, client)
	record := createContract(t, srv, "ethereum")

	rec := serve(srv, signedRequest(http.MethodPost, "/api/v1/contracts/"+record.Contract.Address+"/milestones/0/complete", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var result escrow.CompletionResult
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Success || result.Status != dex.MilestonePending {
		t.Fatalf("unexpected result %+v", result)
	}
	if client.releaseCount() != 0 {
		t.Fatalf("pending milestone must not release")
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, &countingDex{})
	record := createContract(t, srv, "ethereum")
	addr := record.Contract.Address
	unknown := "0x3333333333333333333333333333333333333333"

	cases := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"unknown contract", signedRequest(http.MethodPost, "/api/v1/contracts/"+unknown+"/milestones/0/complete", nil), http.StatusNotFound},
		{"index out of range", signedRequest(http.MethodPost, "/api/v1/contracts/"+addr+"/milestones/5/complete", nil), http.StatusUnprocessableEntity},
		{"bad index", signedRequest(http.MethodPost, "/api/v1/contracts/"+addr+"/milestones/x/complete", nil), http.StatusBadRequest},
		{"bad address", httptest.NewRequest(http.MethodGet, "/api/v1/contracts/nope", nil), http.StatusBadRequest},
		{"get unknown", httptest.NewRequest(http.MethodGet, "/api/v1/contracts/"+unknown, nil), http.StatusNotFound},
		{"unsupported chain", signedRequest(http.MethodPost, "/api/v1/contracts", []byte(`{"freelancer":"`+testFreelancer+`","chain":"solana"}`)), http.StatusBadRequest},
		{"unknown chain info", httptest.NewRequest(http.MethodGet, "/api/v1/chains/solana", nil), http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := serve(srv, tc.req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestCloseContract(t *testing.T) {
	srv := newTestServer(t, &countingDex{})
	record := createContract(t, srv, "arbitrum")
	path := "/api/v1/contracts/" + record.Contract.Address + "/close"

	if rec := serve(srv, signedRequest(http.MethodPost, path, nil)); rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200 got %d", rec.Code)
	}
	if rec := serve(srv, signedRequest(http.MethodPost, path, nil)); rec.Code != http.StatusConflict {
		t.Fatalf("second close: expected 409 got %d", rec.Code)
	}
	complete := "/api/v1/contracts/" + record.Contract.Address + "/milestones/0/complete"
	if rec := serve(srv, signedRequest(http.MethodPost, complete, nil)); rec.Code != http.StatusConflict {
		t.Fatalf("complete on closed: expected 409 got %d", rec.Code)
	}
}

func TestUnsignedMutationRejected(t *testing.T) {
	srv := newTestServer(t, &countingDex{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts", strings.NewReader(`{}`))
	if rec := serve(srv, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	srv := newTestServer(t, &countingDex{})

	usage := serve(srv, signedRequest(http.MethodPost, "/api/v1/verify", []byte("hello")))
	if usage.Code != http.StatusBadRequest || usage.Body.String() != verification.UsageText {
		t.Fatalf("expected usage text, got %d %q", usage.Code, usage.Body.String())
	}

	msg := []byte(`{"chainId":"1","conditions":[{"description":"design approved"}]}` + "\n" + verification.Delimiter + "\nThe design was approved")
	ok := serve(srv, signedRequest(http.MethodPost, "/api/v1/verify", msg))
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ok.Code, ok.Body.String())
	}
	var env verification.Envelope
	if err := json.Unmarshal(ok.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Status != "success" || len(env.Verification.VerifiedConditions) != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}

	bad := serve(srv, signedRequest(http.MethodPost, "/api/v1/verify", []byte("{bad\n"+verification.Delimiter+"\nx")))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", bad.Code)
	}

	metrics := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	body, _ := io.ReadAll(metrics.Body)
	if !strings.Contains(string(body), `agreex_verifications_total{status="success"} 1`) {
		t.Fatalf("metrics missing verification counter:\n%s", body)
	}
}

func TestQuoteAndCrossChain(t *testing.T) {
	srv := newTestServer(t, &countingDex{})

	rec := serve(srv, signedRequest(http.MethodPost, "/api/v1/swap/quote", []byte(`{"chain":"bsc","fromToken":"0xa","toToken":"0xb","amount":"1000"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var quote struct {
		Chain string    `json:"chain"`
		Quote dex.Quote `json:"quote"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &quote)
	if quote.Chain != "bsc" || quote.Quote.RouterResult.ToTokenAmount != "950" {
		t.Fatalf("unexpected quote %+v", quote)
	}

	rec = serve(srv, signedRequest(http.MethodPost, "/api/v1/swap/quote", []byte(`{"chain":"bsc","fromToken":"0xa","toToken":"0xb","amount":"lots"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: expected 400 got %d", rec.Code)
	}

	rec = serve(srv, signedRequest(http.MethodPost, "/api/v1/cross-chain/verify", []byte(`{"sourceChain":"ethereum","targetChain":"137","conditionHash":"0xabc"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("cross-chain: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndRequestID(t *testing.T) {
	client := &countingDex{}
	srv := newTestServer(t, client)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	if id := rec.Header().Get(headerRequestID); !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected generated request id, got %q", id)
	}

	client.pingErr = errors.New("upstream down")
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.Header.Set(headerRequestID, "req_fixed")
	rec = serve(srv, req)
	if rec.Header().Get(headerRequestID) != "req_fixed" {
		t.Fatalf("request id not propagated")
	}
}

func TestCompletionPollingSeesLaterRelease(t *testing.T) {
	client := &countingDex{}
	srv := newTestServer(t, client)
	record := createContract(t, srv, "ethereum")
	path := "/api/v1/contracts/" + record.Contract.Address + "/milestones/0/complete"

	poll := func() escrow.CompletionResult {
		req := signedRequest(http.MethodPost, path, nil)
		req.Header.Set(headerIdempotencyKey, "poll-1")
		rec := serve(srv, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		var result escrow.CompletionResult
		_ = json.Unmarshal(rec.Body.Bytes(), &result)
		return result
	}

	if res := poll(); res.Success {
		t.Fatalf("expected pending result, got %+v", res)
	}

	client.MilestoneState = dex.MilestoneCompleted
	if res := poll(); !res.Success || res.Payment == nil {
		t.Fatalf("expected release after completion, got %+v", res)
	}
	if res := poll(); !res.Success {
		t.Fatalf("expected replayed release, got %+v", res)
	}
	if client.releaseCount() != 1 {
		t.Fatalf("expected one release, got %d", client.releaseCount())
	}
}
