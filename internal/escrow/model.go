package escrow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"agreex/internal/chains"
	"agreex/internal/dex"
)

var (
	ErrUnsupportedChain = chains.ErrUnsupportedChain
	ErrContractNotFound = errors.New("contract not found")
	ErrContractExists   = errors.New("contract already exists")
	ErrIndexOutOfRange  = errors.New("milestone index out of range")
	ErrContractClosed   = errors.New("contract is closed")
)

type ContractStatus string

const (
	StatusActive ContractStatus = "active"
	StatusClosed ContractStatus = "closed"
)

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
)

// Milestone is one separately payable unit of work. Its position in
// Contract.Milestones is its index.
type Milestone struct {
	Index       int             `json:"index"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      MilestoneStatus `json:"status"`
}

// Integration records which aggregator features the contract was created with.
type Integration struct {
	Enabled           bool   `json:"enabled"`
	AggregatorVersion string `json:"aggregatorVersion"`
	CrossChainEnabled bool   `json:"crossChainEnabled"`
}

type Contract struct {
	Address           string                      `json:"address"`
	Chain             string                      `json:"chain"`
	ChainID           string                      `json:"chainId"`
	Employer          string                      `json:"employer"`
	Freelancer        string                      `json:"freelancer"`
	TotalAmount       decimal.Decimal             `json:"totalAmount"`
	Token             string                      `json:"token"`
	Milestones        []Milestone                 `json:"milestones"`
	Status            ContractStatus              `json:"status"`
	CreatedAt         time.Time                   `json:"createdAt"`
	Integration       Integration                 `json:"okxDexIntegration"`
	Verification      *dex.DeploymentVerification `json:"verification,omitempty"`
	VerificationError string                      `json:"verificationError,omitempty"`
}

func (c Contract) clone() Contract {
	out := c
	out.Milestones = append([]Milestone(nil), c.Milestones...)
	if c.Verification != nil {
		v := *c.Verification
		v.Features = append([]string(nil), c.Verification.Features...)
		out.Verification = &v
	}
	return out
}

type MilestoneInput struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type EscrowRequest struct {
	Employer   string           `json:"employer"`
	Freelancer string           `json:"freelancer"`
	Amount     decimal.Decimal  `json:"amount"`
	Token      string           `json:"token"`
	Chain      string           `json:"chain"`
	Milestones []MilestoneInput `json:"milestones"`
}

type EscrowRecord struct {
	Success     bool     `json:"success"`
	Contract    Contract `json:"contract"`
	ExplorerURL string   `json:"explorerUrl"`
}

// CompletionResult is the outcome of one milestone check. Lookup misses are
// reported here with Success false and Error set, alongside the returned error.
type CompletionResult struct {
	Success   bool                `json:"success"`
	Milestone int                 `json:"milestone"`
	Payment   *dex.PaymentRelease `json:"paymentStatus,omitempty"`
	Status    string              `json:"status,omitempty"`
	Message   string              `json:"message,omitempty"`
	Error     string              `json:"error,omitempty"`
}
