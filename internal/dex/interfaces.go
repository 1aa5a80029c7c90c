package dex

import (
	"context"
	"encoding/json"
	"errors"
)

const APIVersionPath = "/api/v5/dex"

const (
	PathQuote            = APIVersionPath + "/aggregator/quote"
	PathContractVerify   = APIVersionPath + "/aggregator/contract/verify"
	PathMilestoneStatus  = APIVersionPath + "/aggregator/milestone/status"
	PathPaymentRelease   = APIVersionPath + "/aggregator/payment/release"
	PathCrossChainVerify = APIVersionPath + "/aggregator/cross-chain/verify"
)

// NativeToken is the zero address the aggregator uses for a chain's native asset.
const NativeToken = "0x0000000000000000000000000000000000000000"

var (
	// ErrCollaboratorUnavailable wraps every transport or upstream failure. Calls are not retried.
	ErrCollaboratorUnavailable = errors.New("dex collaborator unavailable")
	ErrInvalidRequest          = errors.New("invalid dex request")
)

// Client abstracts the aggregator endpoints the escrow workflow depends on.
type Client interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	VerifyDeployment(ctx context.Context, chainID, contractAddress string) (DeploymentVerification, error)
	CheckMilestone(ctx context.Context, contractAddress string, milestoneID int, chainID string) (MilestoneStatus, error)
	ReleasePayment(ctx context.Context, req PaymentRequest) (PaymentRelease, error)
	VerifyCrossChain(ctx context.Context, req CrossChainRequest) (CrossChainVerification, error)
}

// HealthChecker is implemented by clients that can probe their upstream.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Response is the aggregator envelope. Code "0" signals logical success.
type Response struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg,omitempty"`
	Data json.RawMessage `json:"data"`
}

func (r Response) OK() bool { return r.Code == "0" }

type QuoteRequest struct {
	ChainID     string
	FromToken   string
	ToToken     string
	Amount      string // base units
	Slippage    string // percent, defaults to 0.5
	UserAddress string
}

type Quote struct {
	RouterResult RouterResult `json:"routerResult"`
	Tx           QuoteTx      `json:"tx"`
}

type RouterResult struct {
	FromTokenAmount string  `json:"fromTokenAmount"`
	ToTokenAmount   string  `json:"toTokenAmount"`
	Routes          []Route `json:"routes"`
}

type Route struct {
	Percentage int        `json:"percentage"`
	SubRoutes  []SubRoute `json:"subRoutes"`
}

type SubRoute struct {
	Dex        string `json:"dex"`
	Percentage int    `json:"percentage"`
}

type QuoteTx struct {
	Data  string `json:"data"`
	To    string `json:"to"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

type DeploymentVerification struct {
	Verified         bool     `json:"verified"`
	ContractType     string   `json:"contractType"`
	DeploymentBlock  uint64   `json:"deploymentBlock"`
	VerificationHash string   `json:"verificationHash"`
	Features         []string `json:"features"`
}

// Milestone states reported by the aggregator.
const (
	MilestonePending   = "pending"
	MilestoneCompleted = "completed"
)

type MilestoneStatus struct {
	MilestoneID       int    `json:"milestoneId"`
	Status            string `json:"status"`
	VerificationProof string `json:"verificationProof"`
	Timestamp         int64  `json:"timestamp"`
	GasUsed           string `json:"gasUsed"`
}

type PaymentRequest struct {
	ContractAddress string `json:"contractAddress"`
	MilestoneID     int    `json:"milestoneId"`
	ChainID         string `json:"chainId"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	TokenAddress    string `json:"tokenAddress"`
	ReleaseType     string `json:"releaseType"`
}

type PaymentRelease struct {
	TransactionHash       string        `json:"transactionHash"`
	Status                string        `json:"status"`
	EstimatedConfirmation int           `json:"estimatedConfirmation"`
	PaymentID             string        `json:"paymentId"`
	Route                 *PaymentRoute `json:"okxDexRoute,omitempty"`
}

type PaymentRoute struct {
	Protocol     string `json:"protocol"`
	GasOptimized bool   `json:"gasOptimized"`
}

type CrossChainRequest struct {
	SourceChainID    string `json:"sourceChainId"`
	TargetChainID    string `json:"targetChainId"`
	ConditionHash    string `json:"conditionHash"`
	VerificationType string `json:"verificationType"`
}

type CrossChainVerification struct {
	Verified          bool   `json:"verified"`
	SourceBlockNumber uint64 `json:"sourceBlockNumber"`
	TargetBlockNumber uint64 `json:"targetBlockNumber"`
	BridgeProtocol    string `json:"bridgeProtocol"`
	VerificationTime  int    `json:"verificationTime"`
	Proof             string `json:"proof"`
}
