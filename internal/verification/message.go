package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the contract JSON from the milestone description.
const Delimiter = "---VERIFICATION---"

const Platform = "AgreeX-OKX-DEX"

var ErrUsage = errors.New("message must contain contract JSON and a milestone description separated by " + Delimiter)

const WelcomeText = "Welcome to AgreeX Contract Verification on OKX DEX\n\n" +
	"Please provide:\n" +
	"1. Contract data (JSON format with conditions and chain info)\n" +
	"2. Milestone completion description\n\n" +
	"Supported chains: Ethereum, Polygon, Arbitrum, Optimism, Avalanche, BSC\n" +
	"Powered by OKX DEX Aggregator API v5"

const UsageText = "Please format your message as:\n" +
	"[Contract JSON]\n" +
	Delimiter + "\n" +
	"[Milestone description]"

// ParseMessage splits an inbound message into its two trimmed parts.
func ParseMessage(message string) (contractJSON, milestone string, err error) {
	parts := strings.Split(message, Delimiter)
	if len(parts) != 2 {
		return "", "", ErrUsage
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// Result is either a report or the error that prevented one.
type Result struct {
	Report *Report
	Err    error
}

func (r Result) OK() bool { return r.Err == nil && r.Report != nil }

// Envelope is the caller-facing rendering of a Result.
type Envelope struct {
	Status       string  `json:"status"`
	Platform     string  `json:"platform"`
	Verification *Report `json:"verification,omitempty"`
	Error        string  `json:"error,omitempty"`
	Message      string  `json:"message"`
}

func (r Result) Envelope() Envelope {
	if !r.OK() {
		msg := "verification produced no report"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return Envelope{
			Status:   "error",
			Platform: Platform,
			Error:    msg,
			Message:  "Verification failed. Please check contract data format.",
		}
	}
	return Envelope{
		Status:       "success",
		Platform:     Platform,
		Verification: r.Report,
		Message:      fmt.Sprintf("Verified %d conditions via OKX DEX", len(r.Report.VerifiedConditions)),
	}
}

// Reply answers one chat-style message: the welcome text for an empty
// message, the usage text for a badly shaped one, otherwise the indented JSON
// envelope.
func (v *Verifier) Reply(ctx context.Context, message string) string {
	if strings.TrimSpace(message) == "" {
		return WelcomeText
	}
	contractJSON, milestone, err := ParseMessage(message)
	if err != nil {
		return UsageText
	}
	out, err := json.MarshalIndent(v.Process(ctx, contractJSON, milestone).Envelope(), "", "  ")
	if err != nil {
		return "Error processing verification: " + err.Error()
	}
	return string(out)
}
