package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"agreex/internal/chains"
	"agreex/internal/dex"
)

const maxAddressAttempts = 16

// escrowCodeHash stands in for the init code hash of the escrow template in
// CREATE2 address derivation.
var escrowCodeHash = crypto.Keccak256([]byte("AgreeX-Escrow-V1"))

// Manager owns the contract registry and drives milestone completion against
// the aggregator. Milestone status is never cached: every ProcessMilestone
// call asks the aggregator again, and repeated calls for a completed
// milestone each request a release.
type Manager struct {
	store  Store
	dex    dex.Client
	chains *chains.Registry

	Logger *slog.Logger
	Now    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*addressLock
}

func NewManager(store Store, client dex.Client, registry *chains.Registry) *Manager {
	return &Manager{
		store:  store,
		dex:    client,
		chains: registry,
		locks:  make(map[string]*addressLock),
	}
}

// CreateEscrow registers a new active contract and attaches the aggregator's
// deployment verification. A failed verification leaves the record in place
// with VerificationError set.
func (m *Manager) CreateEscrow(ctx context.Context, req EscrowRequest) (EscrowRecord, error) {
	info, err := m.chains.Lookup(req.Chain)
	if err != nil {
		return EscrowRecord{}, err
	}

	milestones := make([]Milestone, len(req.Milestones))
	for i, in := range req.Milestones {
		milestones[i] = Milestone{
			Index:       i,
			Description: in.Description,
			Amount:      in.Amount,
			Status:      MilestonePending,
		}
	}

	c := Contract{
		Chain:       info.Key,
		ChainID:     info.ChainID,
		Employer:    req.Employer,
		Freelancer:  req.Freelancer,
		TotalAmount: req.Amount,
		Token:       req.Token,
		Milestones:  milestones,
		Status:      StatusActive,
		CreatedAt:   m.now().UTC(),
		Integration: Integration{
			Enabled:           true,
			AggregatorVersion: "v5",
			CrossChainEnabled: true,
		},
	}

	if err := m.insert(ctx, &c); err != nil {
		return EscrowRecord{}, err
	}

	verification, verr := m.dex.VerifyDeployment(ctx, info.ChainID, c.Address)
	if verr != nil {
		m.logger().Warn("deployment verification failed", "address", c.Address, "chain", info.Key, "err", verr)
	}
	updated, err := m.store.Update(ctx, c.Address, func(stored *Contract) error {
		if verr != nil {
			stored.VerificationError = verr.Error()
			return nil
		}
		stored.Verification = &verification
		stored.VerificationError = ""
		return nil
	})
	if err != nil {
		return EscrowRecord{}, fmt.Errorf("attach verification: %w", err)
	}

	m.logger().Info("escrow created", "address", updated.Address, "chain", info.Key, "milestones", len(updated.Milestones))
	return EscrowRecord{
		Success:     true,
		Contract:    updated,
		ExplorerURL: info.AddressURL(updated.Address),
	}, nil
}

// insert derives a CREATE2-style address from the employer and a random salt,
// drawing a new salt if the address is already taken. No allocation state is
// kept in the process, so managers sharing a store never replay addresses.
func (m *Manager) insert(ctx context.Context, c *Contract) error {
	deployer := common.HexToAddress(c.Employer)
	for attempt := 0; attempt < maxAddressAttempts; attempt++ {
		c.Address = crypto.CreateAddress2(deployer, newSalt(), escrowCodeHash).Hex()
		err := m.store.Insert(ctx, *c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrContractExists) {
			return err
		}
	}
	return fmt.Errorf("allocate contract address: %w", ErrContractExists)
}

// ProcessMilestone asks the aggregator whether a milestone is complete and, if
// so, releases its amount to the freelancer. The payment payload is returned
// exactly as the aggregator produced it.
func (m *Manager) ProcessMilestone(ctx context.Context, address string, index int) (CompletionResult, error) {
	unlock := m.lock(address)
	defer unlock()

	fail := func(err error) (CompletionResult, error) {
		return CompletionResult{Milestone: index, Error: err.Error()}, err
	}

	c, err := m.store.Get(ctx, address)
	if err != nil {
		return fail(err)
	}
	if c.Status == StatusClosed {
		return fail(ErrContractClosed)
	}
	if index < 0 || index >= len(c.Milestones) {
		return fail(fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(c.Milestones)))
	}
	milestone := c.Milestones[index]

	status, err := m.dex.CheckMilestone(ctx, c.Address, index, c.ChainID)
	if err != nil {
		return fail(collaboratorErr("check milestone", err))
	}

	if status.Status != dex.MilestoneCompleted {
		reported := status.Status
		if reported == "" {
			reported = "unknown"
		}
		return CompletionResult{
			Success:   false,
			Milestone: index,
			Status:    reported,
			Message:   "Milestone not yet completed",
		}, nil
	}

	payment, err := m.dex.ReleasePayment(ctx, dex.PaymentRequest{
		ContractAddress: c.Address,
		MilestoneID:     index,
		ChainID:         c.ChainID,
		Recipient:       c.Freelancer,
		Amount:          milestone.Amount.String(),
		TokenAddress:    tokenAddress(c.Token),
		ReleaseType:     "milestone-completion",
	})
	if err != nil {
		return fail(collaboratorErr("release payment", err))
	}

	m.logger().Info("milestone payment initiated", "address", c.Address, "milestone", index, "amount", milestone.Amount.String())
	return CompletionResult{
		Success:   true,
		Milestone: index,
		Payment:   &payment,
		Message:   fmt.Sprintf("Payment of %s initiated via OKX DEX", milestone.Amount.String()),
	}, nil
}

// Close moves an active contract to closed. Closed contracts reject further
// milestone processing.
func (m *Manager) Close(ctx context.Context, address string) (Contract, error) {
	unlock := m.lock(address)
	defer unlock()

	return m.store.Update(ctx, address, func(c *Contract) error {
		if c.Status == StatusClosed {
			return ErrContractClosed
		}
		c.Status = StatusClosed
		return nil
	})
}

func (m *Manager) Get(ctx context.Context, address string) (Contract, error) {
	return m.store.Get(ctx, address)
}

func (m *Manager) List(ctx context.Context) ([]Contract, error) {
	return m.store.List(ctx)
}

// ExplorerURL returns the explorer page for a stored contract.
func (m *Manager) ExplorerURL(c Contract) string {
	info, err := m.chains.ByID(c.ChainID)
	if err != nil {
		return ""
	}
	return info.AddressURL(c.Address)
}

type addressLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes operations on a single contract address. Entries live only
// while some caller holds or waits for them.
func (m *Manager) lock(address string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[address]
	if !ok {
		l = &addressLock{}
		m.locks[address] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, address)
		}
		m.locksMu.Unlock()
	}
}

func newSalt() [32]byte {
	var salt [32]byte
	id := uuid.New()
	copy(salt[:], id[:])
	return salt
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// tokenAddress passes ERC-20 addresses through and maps symbols to the native token.
func tokenAddress(token string) string {
	if common.IsHexAddress(token) {
		return common.HexToAddress(token).Hex()
	}
	return dex.NativeToken
}

func collaboratorErr(op string, err error) error {
	if errors.Is(err, dex.ErrCollaboratorUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, dex.ErrCollaboratorUnavailable, err)
}
