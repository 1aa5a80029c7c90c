package verification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformedInput = errors.New("malformed contract data")

const (
	defaultChainID = "1"
	defaultAddress = "0x..."
)

// Condition is one requirement of a contract, identified by its position.
type Condition struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// ContractData is the contract description submitted for verification.
type ContractData struct {
	Conditions      []Condition `json:"conditions"`
	ChainID         string      `json:"chainId"`
	ContractAddress string      `json:"contractAddress"`
}

// ParseContractData decodes a contract description. Only a document that is
// not a JSON object, or whose conditions field is not a list, is rejected;
// individual malformed conditions degrade to empty descriptions.
func ParseContractData(raw []byte) (ContractData, error) {
	var doc struct {
		Conditions      json.RawMessage `json:"conditions"`
		ChainID         json.RawMessage `json:"chainId"`
		ContractAddress json.RawMessage `json:"contractAddress"`
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return ContractData{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedInput)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ContractData{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	out := ContractData{
		ChainID:         scalarString(doc.ChainID, defaultChainID),
		ContractAddress: scalarString(doc.ContractAddress, defaultAddress),
	}

	if len(doc.Conditions) == 0 || string(doc.Conditions) == "null" {
		return out, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(doc.Conditions, &items); err != nil {
		return ContractData{}, fmt.Errorf("%w: conditions must be a list", ErrMalformedInput)
	}
	out.Conditions = make([]Condition, len(items))
	for i, item := range items {
		out.Conditions[i] = Condition{Index: i, Description: conditionText(item)}
	}
	return out, nil
}

// conditionText accepts {"description": "..."} or a bare string.
func conditionText(item json.RawMessage) string {
	var obj struct {
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal(item, &obj); err == nil {
		return scalarString(obj.Description, "")
	}
	return scalarString(item, "")
}

// scalarString renders a JSON string or number as text, falling back for
// anything else.
func scalarString(v json.RawMessage, fallback string) string {
	if len(v) == 0 {
		return fallback
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return fallback
}
