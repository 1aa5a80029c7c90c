package chains

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedChain is returned when a chain name or id is not in the registry.
var ErrUnsupportedChain = errors.New("unsupported chain")

// ChainInfo describes one EVM chain the aggregator can route on.
type ChainInfo struct {
	Key            string `json:"key" yaml:"key"`
	Name           string `json:"name" yaml:"name"`
	ChainID        string `json:"chainId" yaml:"chainId"`
	NativeCurrency string `json:"nativeCurrency" yaml:"nativeCurrency"`
	RPCURL         string `json:"rpcUrl" yaml:"rpcUrl"`
	ExplorerURL    string `json:"explorerUrl" yaml:"explorerUrl"`
}

// AddressURL returns the explorer page for an address on this chain.
func (c ChainInfo) AddressURL(address string) string {
	return c.ExplorerURL + "/address/" + address
}

var defaultChains = []ChainInfo{
	{Key: "ethereum", Name: "Ethereum Mainnet", ChainID: "1", NativeCurrency: "ETH", RPCURL: "https://eth-mainnet.g.alchemy.com/v2/", ExplorerURL: "https://etherscan.io"},
	{Key: "polygon", Name: "Polygon", ChainID: "137", NativeCurrency: "MATIC", RPCURL: "https://polygon-rpc.com", ExplorerURL: "https://polygonscan.com"},
	{Key: "arbitrum", Name: "Arbitrum One", ChainID: "42161", NativeCurrency: "ETH", RPCURL: "https://arb1.arbitrum.io/rpc", ExplorerURL: "https://arbiscan.io"},
	{Key: "optimism", Name: "Optimism", ChainID: "10", NativeCurrency: "ETH", RPCURL: "https://mainnet.optimism.io", ExplorerURL: "https://optimistic.etherscan.io"},
	{Key: "avalanche", Name: "Avalanche C-Chain", ChainID: "43114", NativeCurrency: "AVAX", RPCURL: "https://api.avax.network/ext/bc/C/rpc", ExplorerURL: "https://snowtrace.io"},
	{Key: "bsc", Name: "BNB Smart Chain", ChainID: "56", NativeCurrency: "BNB", RPCURL: "https://bsc-dataseed.binance.org", ExplorerURL: "https://bscscan.com"},
}

// Registry is an immutable lookup table of supported chains.
type Registry struct {
	ordered []ChainInfo
	byKey   map[string]ChainInfo
	byID    map[string]ChainInfo
}

// Default returns the built-in six-chain registry.
func Default() *Registry {
	r, _ := New(defaultChains)
	return r
}

// New builds a registry, rejecting empty or duplicated keys and chain ids.
func New(list []ChainInfo) (*Registry, error) {
	r := &Registry{
		ordered: make([]ChainInfo, 0, len(list)),
		byKey:   make(map[string]ChainInfo, len(list)),
		byID:    make(map[string]ChainInfo, len(list)),
	}
	for _, c := range list {
		c.Key = strings.ToLower(strings.TrimSpace(c.Key))
		if c.Key == "" || c.ChainID == "" {
			return nil, fmt.Errorf("chain entry %q: key and chainId are required", c.Name)
		}
		if _, dup := r.byKey[c.Key]; dup {
			return nil, fmt.Errorf("duplicate chain key %s", c.Key)
		}
		if _, dup := r.byID[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %s", c.ChainID)
		}
		r.ordered = append(r.ordered, c)
		r.byKey[c.Key] = c
		r.byID[c.ChainID] = c
	}
	return r, nil
}

// LoadFile reads a YAML chain table of the form `chains: [...]`.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Chains []ChainInfo `yaml:"chains"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid chains yaml: %w", err)
	}
	if len(doc.Chains) == 0 {
		return nil, fmt.Errorf("chains file %s has no entries", path)
	}
	return New(doc.Chains)
}

// Lookup finds a chain by its key, case-insensitively.
func (r *Registry) Lookup(name string) (ChainInfo, error) {
	c, ok := r.byKey[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ChainInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, name)
	}
	return c, nil
}

// ByID finds a chain by its numeric id string.
func (r *Registry) ByID(chainID string) (ChainInfo, error) {
	c, ok := r.byID[strings.TrimSpace(chainID)]
	if !ok {
		return ChainInfo{}, fmt.Errorf("%w: chain id %s", ErrUnsupportedChain, chainID)
	}
	return c, nil
}

// Resolve accepts either a chain key or a chain id.
func (r *Registry) Resolve(nameOrID string) (ChainInfo, error) {
	if c, err := r.Lookup(nameOrID); err == nil {
		return c, nil
	}
	return r.ByID(nameOrID)
}

// Names returns chain keys in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.ordered))
	for i, c := range r.ordered {
		out[i] = c.Key
	}
	return out
}

func (r *Registry) All() []ChainInfo {
	out := make([]ChainInfo, len(r.ordered))
	copy(out, r.ordered)
	return out
}
