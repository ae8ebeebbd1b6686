// Package community stakes GToken for and registers communities in the
// registry, and drives permissionless MySBT membership mints.
package community

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/xerrors"
)

var (
	// ErrInsufficientStake is returned when a wallet's available stGToken is
	// below the registration stake.
	ErrInsufficientStake = errors.New("insufficient available stGToken")
	// ErrWalletMismatch is returned when a key does not control the listed address.
	ErrWalletMismatch = errors.New("key does not match community address")
	// ErrCommunityInactive is returned when minting into an inactive community.
	ErrCommunityInactive = errors.New("community is not active")
	// ErrMintDisabled is returned when the community does not allow permissionless mints.
	ErrMintDisabled = errors.New("community has permissionless mint disabled")
)

type GToken interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, t *chain.Transactor, to common.Address, amount *big.Int) (*chain.Receipt, error)
	Approve(ctx context.Context, t *chain.Transactor, spender common.Address, amount *big.Int) (*chain.Receipt, error)
}

type Staking interface {
	Address() common.Address
	BalanceOf(ctx context.Context, user common.Address) (*big.Int, error)
	AvailableBalance(ctx context.Context, user common.Address) (*big.Int, error)
	Stake(ctx context.Context, t *chain.Transactor, amount *big.Int) (*chain.Receipt, error)
}

type Registry interface {
	IsRegisteredCommunity(ctx context.Context, community common.Address) (bool, error)
	GetCommunityProfile(ctx context.Context, community common.Address) (chain.CommunityProfile, error)
	RegisterCommunity(ctx context.Context, t *chain.Transactor, p chain.CommunityProfile, stake *big.Int) (*chain.Receipt, error)
	SetPermissionlessMint(ctx context.Context, t *chain.Transactor, enabled bool) (*chain.Receipt, error)
}

type MySBT interface {
	Address() common.Address
	UserToSBT(ctx context.Context, user common.Address) (*big.Int, error)
	GetMemberships(ctx context.Context, tokenID *big.Int) ([]chain.Membership, error)
	UserMint(ctx context.Context, t *chain.Transactor, community common.Address, metadata string) (*chain.Receipt, error)
}

// SignerSource resolves key references; *keysource.Resolver implements it.
type SignerSource interface {
	Signer(ctx context.Context, ref string) (chain.Signer, error)
}

// Funder sends native currency; *chain.Transactor implements it.
type Funder interface {
	SendValue(ctx context.Context, to common.Address, amount *big.Int) (*chain.Receipt, error)
}

// Config wires a Manager. Source is the operator wallet that tops up
// communities; it may be nil for workflows that do not transfer.
type Config struct {
	GToken   GToken
	Staking  Staking
	Registry Registry
	MySBT    MySBT

	Source  *chain.Transactor
	Funder  Funder
	Signers SignerSource
	// Transactor binds a resolved signer to the chain.
	Transactor func(chain.Signer) *chain.Transactor

	Logger log.Logger
	Now    func() time.Time
}

type Manager struct {
	cfg    Config
	logger log.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.Funder == nil && cfg.Source != nil {
		cfg.Funder = cfg.Source
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg, logger: log.OrNop(cfg.Logger)}
}

// open resolves a community's wallet and checks it against the listed address.
func (m *Manager) open(ctx context.Context, d Definition) (*chain.Transactor, error) {
	if m.cfg.Signers == nil || m.cfg.Transactor == nil {
		return nil, xerrors.New("community signers are not configured")
	}
	s, err := m.cfg.Signers.Signer(ctx, d.Key)
	if err != nil {
		return nil, err
	}
	if d.Address != "" && common.HexToAddress(d.Address) != s.Address() {
		return nil, xerrors.Wrapf(ErrWalletMismatch, "%s: listed %s, key controls %s", d.Name, d.Address, s.Address().Hex())
	}
	return m.cfg.Transactor(s), nil
}

// StakeResult reports one community's staking run.
type StakeResult struct {
	Name        string
	Address     common.Address
	Before      *big.Int
	After       *big.Int
	Transferred *big.Int
	Staked      *big.Int
	Skipped     bool
	TxHashes    []string
	Err         error
}

// Stake tops each community up to amount stGToken. Missing GT is transferred
// from the source wallet first. Failures are recorded per community.
func (m *Manager) Stake(ctx context.Context, defs []Definition, amount *big.Int) []StakeResult {
	if m.cfg.Source != nil {
		if bal, err := m.cfg.GToken.BalanceOf(ctx, m.cfg.Source.From()); err == nil {
			need := new(big.Int).Mul(amount, big.NewInt(int64(len(defs))))
			if bal.Cmp(need) < 0 {
				m.logger.Warn(ctx, "source wallet may not have enough GToken",
					"source", m.cfg.Source.From().Hex(), "balance", chain.FormatEther(bal), "needed", chain.FormatEther(need))
			}
		}
	}

	out := make([]StakeResult, 0, len(defs))
	for _, d := range defs {
		res := StakeResult{Name: d.Name}
		res.Err = m.stakeOne(ctx, d, amount, &res)
		if res.Err != nil {
			m.logger.Error(ctx, res.Err, "stake failed", "community", d.Name)
		}
		out = append(out, res)
	}
	return out
}

func (m *Manager) stakeOne(ctx context.Context, d Definition, amount *big.Int, res *StakeResult) error {
	t, err := m.open(ctx, d)
	if err != nil {
		return err
	}
	addr := t.From()
	res.Address = addr

	gt, err := m.cfg.GToken.BalanceOf(ctx, addr)
	if err != nil {
		return err
	}
	st, err := m.cfg.Staking.BalanceOf(ctx, addr)
	if err != nil {
		return err
	}
	res.Before = st
	if st.Cmp(amount) >= 0 {
		res.Skipped, res.After = true, st
		m.logger.Info(ctx, "community already staked", "community", d.Name, "stgt", chain.FormatEther(st))
		return nil
	}

	needed := new(big.Int).Sub(amount, st)
	if gt.Cmp(needed) < 0 {
		if m.cfg.Source == nil {
			return xerrors.Newf("%s needs %s GT and no source wallet is configured", d.Name, chain.FormatEther(needed))
		}
		r, err := m.cfg.GToken.Transfer(ctx, m.cfg.Source, addr, needed)
		if err != nil {
			return xerrors.Wrap(err, "transfer GT")
		}
		res.Transferred = needed
		res.TxHashes = append(res.TxHashes, r.TxHash)
	}

	r, err := m.cfg.GToken.Approve(ctx, t, m.cfg.Staking.Address(), needed)
	if err != nil {
		return xerrors.Wrap(err, "approve staking")
	}
	res.TxHashes = append(res.TxHashes, r.TxHash)

	r, err = m.cfg.Staking.Stake(ctx, t, needed)
	if err != nil {
		return xerrors.Wrap(err, "stake")
	}
	res.TxHashes = append(res.TxHashes, r.TxHash)
	res.Staked = needed

	after, err := m.cfg.Staking.BalanceOf(ctx, addr)
	if err != nil {
		return err
	}
	res.After = after
	m.logger.Info(ctx, "community staked", "community", d.Name, "staked", chain.FormatEther(needed), "stgt", chain.FormatEther(after))
	return nil
}

// RegisterResult reports one community's registration.
type RegisterResult struct {
	Name              string
	Address           common.Address
	Available         *big.Int
	AlreadyRegistered bool
	EnabledMint       bool
	TxHash            string
	BlockNumber       uint64
	Err               error
}

// Register registers each community with stake. Registered communities are
// skipped, with permissionless mint switched on if it is off.
func (m *Manager) Register(ctx context.Context, defs []Definition, stake *big.Int) []RegisterResult {
	out := make([]RegisterResult, 0, len(defs))
	for _, d := range defs {
		res := RegisterResult{Name: d.Name}
		res.Err = m.registerOne(ctx, d, stake, &res)
		if res.Err != nil {
			m.logger.Error(ctx, res.Err, "registration failed", "community", d.Name)
		}
		out = append(out, res)
	}
	return out
}

func (m *Manager) registerOne(ctx context.Context, d Definition, stake *big.Int, res *RegisterResult) error {
	t, err := m.open(ctx, d)
	if err != nil {
		return err
	}
	addr := t.From()
	res.Address = addr

	avail, err := m.cfg.Staking.AvailableBalance(ctx, addr)
	if err != nil {
		return err
	}
	res.Available = avail

	// a profile read error means the community is unknown to the registry
	if p, err := m.cfg.Registry.GetCommunityProfile(ctx, addr); err == nil && p.Registered() {
		res.AlreadyRegistered = true
		if !p.AllowPermissionlessMint {
			r, err := m.cfg.Registry.SetPermissionlessMint(ctx, t, true)
			if err != nil {
				return xerrors.Wrap(err, "enable permissionless mint")
			}
			res.EnabledMint, res.TxHash, res.BlockNumber = true, r.TxHash, r.BlockNumber
		}
		return nil
	}

	if avail.Cmp(stake) < 0 {
		return xerrors.Wrapf(ErrInsufficientStake, "%s: have %s stGT, need %s", d.Name, chain.FormatEther(avail), chain.FormatEther(stake))
	}
	r, err := m.cfg.Registry.RegisterCommunity(ctx, t, d.Profile(addr), stake)
	if err != nil {
		return xerrors.Wrap(err, "register community")
	}
	res.TxHash, res.BlockNumber = r.TxHash, r.BlockNumber
	m.logger.Info(ctx, "community registered", "community", d.Name, "address", addr.Hex(), "tx", r.TxHash)
	return nil
}

// FreshResult is a newly created and registered community wallet.
type FreshResult struct {
	Address common.Address
	// PrivateKey is hex without 0x. Callers must store it, it is not kept anywhere else.
	PrivateKey string
	Profile    chain.CommunityProfile
	TxHashes   []string
}

// RegisterFresh creates a random wallet, funds it with gas and stake GT from
// the source wallet, stakes and registers it under d's profile. d.Key and
// d.Address are ignored.
func (m *Manager) RegisterFresh(ctx context.Context, d Definition, gas, stake *big.Int) (*FreshResult, error) {
	if m.cfg.Source == nil || m.cfg.Funder == nil || m.cfg.Transactor == nil {
		return nil, xerrors.New("register fresh needs a source wallet")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, xerrors.Wrap(err, "generate key")
	}
	return m.registerWithKey(ctx, key, d, gas, stake)
}

func (m *Manager) registerWithKey(ctx context.Context, key *ecdsa.PrivateKey, d Definition, gas, stake *big.Int) (*FreshResult, error) {
	t := m.cfg.Transactor(chain.NewKeySignerFromKey(key))
	addr := t.From()
	res := &FreshResult{Address: addr, PrivateKey: hex.EncodeToString(crypto.FromECDSA(key))}
	m.logger.Info(ctx, "fresh community wallet created", "address", addr.Hex())

	steps := []struct {
		name string
		fn   func() (*chain.Receipt, error)
	}{
		{"send gas", func() (*chain.Receipt, error) { return m.cfg.Funder.SendValue(ctx, addr, gas) }},
		{"transfer GT", func() (*chain.Receipt, error) { return m.cfg.GToken.Transfer(ctx, m.cfg.Source, addr, stake) }},
		{"approve staking", func() (*chain.Receipt, error) { return m.cfg.GToken.Approve(ctx, t, m.cfg.Staking.Address(), stake) }},
		{"stake", func() (*chain.Receipt, error) { return m.cfg.Staking.Stake(ctx, t, stake) }},
		{"register community", func() (*chain.Receipt, error) {
			return m.cfg.Registry.RegisterCommunity(ctx, t, d.Profile(addr), stake)
		}},
	}
	for _, s := range steps {
		r, err := s.fn()
		if err != nil {
			// the key is returned so funds already sent are recoverable
			return res, xerrors.Wrap(err, s.name)
		}
		res.TxHashes = append(res.TxHashes, r.TxHash)
	}

	p, err := m.cfg.Registry.GetCommunityProfile(ctx, addr)
	if err != nil {
		return res, xerrors.Wrap(err, "read back profile")
	}
	res.Profile = p
	return res, nil
}

// Inspection is the registry's view of one address.
type Inspection struct {
	Address    common.Address
	Registered bool
	Profile    *chain.CommunityProfile
}

// Inspect reads registration state and, when registered, the profile.
func (m *Manager) Inspect(ctx context.Context, addr common.Address) (*Inspection, error) {
	ok, err := m.cfg.Registry.IsRegisteredCommunity(ctx, addr)
	if err != nil {
		return nil, err
	}
	in := &Inspection{Address: addr, Registered: ok}
	if !ok {
		return in, nil
	}
	p, err := m.cfg.Registry.GetCommunityProfile(ctx, addr)
	if err != nil {
		return nil, err
	}
	in.Profile = &p
	return in, nil
}

// MintResult reports a MySBT membership mint.
type MintResult struct {
	Holder        common.Address
	TokenID       *big.Int
	AlreadyHolder bool
	Community     string
	TxHashes      []string
	BlockNumber   uint64
	Memberships   []chain.Membership
}

// MintApproval is the GToken allowance granted to MySBT before userMint.
var MintApproval = chain.MustParseUnits("1", 18)

// DefaultMetadata is the membership metadata used when none is given.
func (m *Manager) DefaultMetadata() string {
	b, _ := json.Marshal(map[string]any{
		"type":      "faucet-test",
		"timestamp": m.cfg.Now().UnixMilli(),
		"version":   "2.3.1",
	})
	return string(b)
}

// MintMembership mints a MySBT for t's wallet into community. A wallet that
// already holds an SBT gets its memberships reported and nothing is sent.
func (m *Manager) MintMembership(ctx context.Context, t *chain.Transactor, community common.Address, metadata string) (*MintResult, error) {
	holder := t.From()
	res := &MintResult{Holder: holder}

	id, err := m.cfg.MySBT.UserToSBT(ctx, holder)
	if err != nil {
		return nil, err
	}
	if id.Sign() > 0 {
		res.TokenID, res.AlreadyHolder = id, true
		res.Memberships, err = m.cfg.MySBT.GetMemberships(ctx, id)
		return res, err
	}

	p, err := m.cfg.Registry.GetCommunityProfile(ctx, community)
	if err != nil {
		return nil, xerrors.Wrapf(err, "community %s", community.Hex())
	}
	res.Community = p.Name
	if !p.IsActive {
		return nil, xerrors.Wrapf(ErrCommunityInactive, "%s", community.Hex())
	}
	if !p.AllowPermissionlessMint {
		return nil, xerrors.Wrapf(ErrMintDisabled, "%s", community.Hex())
	}

	if metadata == "" {
		metadata = m.DefaultMetadata()
	}
	r, err := m.cfg.GToken.Approve(ctx, t, m.cfg.MySBT.Address(), MintApproval)
	if err != nil {
		return nil, xerrors.Wrap(err, "approve GToken")
	}
	res.TxHashes = append(res.TxHashes, r.TxHash)

	r, err = m.cfg.MySBT.UserMint(ctx, t, community, metadata)
	if err != nil {
		return nil, xerrors.Wrap(err, "userMint")
	}
	res.TxHashes = append(res.TxHashes, r.TxHash)
	res.BlockNumber = r.BlockNumber

	if res.TokenID, err = m.cfg.MySBT.UserToSBT(ctx, holder); err != nil {
		return res, err
	}
	res.Memberships, err = m.cfg.MySBT.GetMemberships(ctx, res.TokenID)
	return res, err
}
