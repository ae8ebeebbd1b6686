package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CommunityProfile mirrors the registry's profile tuple. Field order and
// types must match the ABI.
type CommunityProfile struct {
	Name                    string
	EnsName                 string
	Description             string
	Website                 string
	LogoURI                 string
	TwitterHandle           string
	GithubOrg               string
	TelegramGroup           string
	XPNTsToken              common.Address
	SupportedSBTs           []common.Address
	Mode                    uint8
	NodeType                uint8
	PaymasterAddress        common.Address
	Community               common.Address
	RegisteredAt            *big.Int
	LastUpdatedAt           *big.Int
	IsActive                bool
	MemberCount             *big.Int
	AllowPermissionlessMint bool
}

// Registered reports whether the registry has a record for the community.
func (p CommunityProfile) Registered() bool {
	return p.RegisteredAt != nil && p.RegisteredAt.Sign() > 0
}

// NewProfile fills the fields the registry expects from a fresh registration.
func NewProfile(community common.Address, name, ens, description, website, logo, twitter, github, telegram string) CommunityProfile {
	return CommunityProfile{
		Name:                    name,
		EnsName:                 ens,
		Description:             description,
		Website:                 website,
		LogoURI:                 logo,
		TwitterHandle:           twitter,
		GithubOrg:               github,
		TelegramGroup:           telegram,
		SupportedSBTs:           []common.Address{},
		Community:               community,
		RegisteredAt:            new(big.Int),
		LastUpdatedAt:           new(big.Int),
		IsActive:                true,
		MemberCount:             new(big.Int),
		AllowPermissionlessMint: true,
	}
}

// Registry is the community registry.
type Registry struct{ c *Contract }

func NewRegistry(addr common.Address, b Backend) (*Registry, error) {
	c, err := NewContract("registry", addr, registryABI, b)
	if err != nil {
		return nil, err
	}
	return &Registry{c: c}, nil
}

func (r *Registry) Address() common.Address { return r.c.Address() }

func (r *Registry) IsRegisteredCommunity(ctx context.Context, community common.Address) (bool, error) {
	return single[bool](r.c.Call(ctx, "isRegisteredCommunity", community))
}

func (r *Registry) GetCommunityProfile(ctx context.Context, community common.Address) (CommunityProfile, error) {
	return single[CommunityProfile](r.c.Call(ctx, "getCommunityProfile", community))
}

// RegisterCommunity registers the sender as a community, locking stake of its stGToken.
func (r *Registry) RegisterCommunity(ctx context.Context, t *Transactor, p CommunityProfile, stake *big.Int) (*Receipt, error) {
	return r.c.Transact(ctx, t, "registerCommunity", p, stake)
}

func (r *Registry) SetPermissionlessMint(ctx context.Context, t *Transactor, enabled bool) (*Receipt, error) {
	return r.c.Transact(ctx, t, "setPermissionlessMint", enabled)
}

// Membership is one community an SBT holder belongs to.
type Membership struct {
	Community      common.Address
	JoinedAt       *big.Int
	LastActiveTime *big.Int
	IsActive       bool
	Metadata       string
}

// MySBT is the multi-community membership SBT.
type MySBT struct{ c *Contract }

func NewMySBT(addr common.Address, b Backend) (*MySBT, error) {
	c, err := NewContract("mysbt", addr, mySBTABI, b)
	if err != nil {
		return nil, err
	}
	return &MySBT{c: c}, nil
}

func (m *MySBT) Address() common.Address { return m.c.Address() }

func (m *MySBT) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return single[*big.Int](m.c.Call(ctx, "balanceOf", owner))
}

// UserToSBT returns the holder's token id, zero when they have none.
func (m *MySBT) UserToSBT(ctx context.Context, user common.Address) (*big.Int, error) {
	return single[*big.Int](m.c.Call(ctx, "userToSBT", user))
}

func (m *MySBT) GetMemberships(ctx context.Context, tokenID *big.Int) ([]Membership, error) {
	return single[[]Membership](m.c.Call(ctx, "getMemberships", tokenID))
}

// UserMint mints (or extends) the sender's SBT with membership in community.
func (m *MySBT) UserMint(ctx context.Context, t *Transactor, community common.Address, metadata string) (*Receipt, error) {
	return m.c.Transact(ctx, t, "userMint", community, metadata)
}
