package verification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"agreex/internal/chains"
	"agreex/internal/dex"
	"agreex/internal/matcher"
)

// UnitCost is the flat per-condition verification charge, in ETH.
var UnitCost = decimal.RequireFromString("0.00012")

type RouteLeg struct {
	Name string `json:"name"`
	Part int    `json:"part"`
}

type Route struct {
	Protocol     string     `json:"protocol"`
	Route        []RouteLeg `json:"route"`
	EstimatedGas string     `json:"estimatedGas"`
	PriceImpact  string     `json:"priceImpact"`
}

// VerifiedCondition is derived per call and never stored.
type VerifiedCondition struct {
	ConditionIndex     int    `json:"conditionIndex"`
	Status             string `json:"status"`
	VerificationMethod string `json:"verificationMethod"`
	ChainID            string `json:"chainId"`
	BlockNumber        uint64 `json:"blockNumber"`
	Timestamp          string `json:"timestamp"`
	GasUsed            string `json:"gasUsed"`
	Route              Route  `json:"okxDexRoute"`
}

type Integration struct {
	AggregatorVersion string   `json:"aggregatorVersion"`
	SupportedChains   []string `json:"supportedChains"`
	VerificationCost  string   `json:"verificationCost"`
	CrossChainCapable bool     `json:"crossChainCapable"`
}

type Metadata struct {
	Address               string `json:"address"`
	ChainID               string `json:"chainId"`
	VerificationTimestamp string `json:"verificationTimestamp"`
}

type Report struct {
	VerifiedConditions []VerifiedCondition `json:"verifiedConditions"`
	Integration        Integration         `json:"okxDexIntegration"`
	Metadata           Metadata            `json:"contractMetadata"`
}

// Verifier matches milestone reports against contract conditions and stamps
// each satisfied condition with the chain's current block.
type Verifier struct {
	chains *chains.Registry
	blocks chains.BlockSource

	Logger *slog.Logger
	Now    func() time.Time
}

func NewVerifier(registry *chains.Registry, blocks chains.BlockSource) *Verifier {
	return &Verifier{chains: registry, blocks: blocks}
}

// Verify evaluates every condition in order. The only error it returns comes
// from the block source.
func (v *Verifier) Verify(ctx context.Context, data ContractData, milestone string) (Report, error) {
	timestamp := strconv.FormatInt(v.now().UnixMilli(), 10)

	verified := make([]VerifiedCondition, 0, len(data.Conditions))
	var (
		block   uint64
		fetched bool
	)
	for _, cond := range data.Conditions {
		if !matcher.IsSatisfied(cond.Description, milestone) {
			continue
		}
		if !fetched {
			n, err := v.blocks.BlockNumber(ctx, data.ChainID)
			if err != nil {
				return Report{}, fmt.Errorf("%w: block number: %v", dex.ErrCollaboratorUnavailable, err)
			}
			block, fetched = n, true
		}
		verified = append(verified, VerifiedCondition{
			ConditionIndex:     cond.Index,
			Status:             "verified",
			VerificationMethod: "okx-dex-aggregator",
			ChainID:            data.ChainID,
			BlockNumber:        block,
			Timestamp:          timestamp,
			GasUsed:            UnitCost.String(),
			Route:              simulatedRoute(),
		})
	}

	v.logger().Debug("conditions verified", "address", data.ContractAddress, "matched", len(verified), "total", len(data.Conditions))
	return Report{
		VerifiedConditions: verified,
		Integration: Integration{
			AggregatorVersion: "v5",
			SupportedChains:   v.chains.Names(),
			VerificationCost:  Cost(len(verified)),
			CrossChainCapable: true,
		},
		Metadata: Metadata{
			Address:               data.ContractAddress,
			ChainID:               data.ChainID,
			VerificationTimestamp: timestamp,
		},
	}, nil
}

// Process parses a contract description and verifies it, folding every
// failure into the returned Result.
func (v *Verifier) Process(ctx context.Context, contractJSON, milestone string) Result {
	data, err := ParseContractData([]byte(contractJSON))
	if err != nil {
		return Result{Err: err}
	}
	report, err := v.Verify(ctx, data, milestone)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Report: &report}
}

// Cost renders the verification charge for n conditions.
func Cost(n int) string {
	return decimal.NewFromInt(int64(n)).Mul(UnitCost).String() + " ETH"
}

func simulatedRoute() Route {
	return Route{
		Protocol: "OKX-DEX-AGGREGATOR",
		Route: []RouteLeg{
			{Name: "OKX-Pool", Part: 70},
			{Name: "1inch", Part: 20},
			{Name: "0x", Part: 10},
		},
		EstimatedGas: "150000",
		PriceImpact:  "0.05%",
	}
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
