package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SBT is the faucet's soulbound test token.
type SBT struct{ c *Contract }

func NewSBT(addr common.Address, b Backend) (*SBT, error) {
	c, err := NewContract("sbt", addr, sbtABI, b)
	if err != nil {
		return nil, err
	}
	return &SBT{c: c}, nil
}

func (s *SBT) Address() common.Address { return s.c.Address() }

func (s *SBT) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return single[*big.Int](s.c.Call(ctx, "balanceOf", owner))
}

func (s *SBT) SafeMint(ctx context.Context, t *Transactor, to common.Address) (*Receipt, error) {
	return s.c.Transact(ctx, t, "safeMint", to)
}

// Token is an ERC20 with the test-network mint and faucet extensions.
type Token struct{ c *Contract }

func NewToken(name string, addr common.Address, b Backend) (*Token, error) {
	c, err := NewContract(name, addr, tokenABI, b)
	if err != nil {
		return nil, err
	}
	return &Token{c: c}, nil
}

func (t *Token) Address() common.Address { return t.c.Address() }

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return single[*big.Int](t.c.Call(ctx, "balanceOf", owner))
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	return single[uint8](t.c.Call(ctx, "decimals"))
}

func (t *Token) Owner(ctx context.Context) (common.Address, error) {
	return single[common.Address](t.c.Call(ctx, "owner"))
}

// Mint is restricted to the token owner on chain.
func (t *Token) Mint(ctx context.Context, tr *Transactor, to common.Address, amount *big.Int) (*Receipt, error) {
	return t.c.Transact(ctx, tr, "mint", to, amount)
}

// Faucet asks the token to mint its fixed faucet amount to to.
func (t *Token) Faucet(ctx context.Context, tr *Transactor, to common.Address) (*Receipt, error) {
	return t.c.Transact(ctx, tr, "faucet", to)
}

func (t *Token) Transfer(ctx context.Context, tr *Transactor, to common.Address, amount *big.Int) (*Receipt, error) {
	return t.c.Transact(ctx, tr, "transfer", to, amount)
}

func (t *Token) Approve(ctx context.Context, tr *Transactor, spender common.Address, amount *big.Int) (*Receipt, error) {
	return t.c.Transact(ctx, tr, "approve", spender, amount)
}

// AccountFactory deploys counterfactual smart accounts.
type AccountFactory struct{ c *Contract }

func NewAccountFactory(addr common.Address, b Backend) (*AccountFactory, error) {
	c, err := NewContract("account_factory", addr, accountFactoryABI, b)
	if err != nil {
		return nil, err
	}
	return &AccountFactory{c: c}, nil
}

func (f *AccountFactory) Address() common.Address { return f.c.Address() }

// GetAddress predicts the account address for (owner, salt) without deploying.
func (f *AccountFactory) GetAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	return single[common.Address](f.c.Call(ctx, "getAddress", owner, salt))
}

func (f *AccountFactory) CreateAccount(ctx context.Context, t *Transactor, owner common.Address, salt *big.Int) (*Receipt, error) {
	return f.c.Transact(ctx, t, "createAccount", owner, salt)
}

// Staking is the GToken staking contract that backs community registration.
type Staking struct{ c *Contract }

func NewStaking(addr common.Address, b Backend) (*Staking, error) {
	c, err := NewContract("gtoken_staking", addr, stakingABI, b)
	if err != nil {
		return nil, err
	}
	return &Staking{c: c}, nil
}

func (s *Staking) Address() common.Address { return s.c.Address() }

// BalanceOf is the staked (stGToken) balance.
func (s *Staking) BalanceOf(ctx context.Context, user common.Address) (*big.Int, error) {
	return single[*big.Int](s.c.Call(ctx, "balanceOf", user))
}

// AvailableBalance is the stake not yet locked by a registration.
func (s *Staking) AvailableBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	return single[*big.Int](s.c.Call(ctx, "availableBalance", user))
}

func (s *Staking) Stake(ctx context.Context, t *Transactor, amount *big.Int) (*Receipt, error) {
	return s.c.Transact(ctx, t, "stake", amount)
}
