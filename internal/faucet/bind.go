package faucet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/chain"
)

// Addresses selects the contracts BindChain wires. Zero addresses are skipped.
type Addresses struct {
	SBT         common.Address
	PNT         common.Address
	USDT        common.Address
	Factory     common.Address
	PoolFactory common.Address
}

// BindChain builds Backends that send every transaction through t.
func BindChain(c *chain.Client, t *chain.Transactor, a Addresses) (Backends, error) {
	b := Backends{Code: c, SBTAddress: a.SBT, PNTAddress: a.PNT, USDTAddress: a.USDT}
	zero := common.Address{}

	if a.SBT != zero {
		sbt, err := chain.NewSBT(a.SBT, c)
		if err != nil {
			return Backends{}, err
		}
		b.SBT = boundSBT{sbt, t}
	}
	if a.PNT != zero {
		pnt, err := chain.NewToken("pnt", a.PNT, c)
		if err != nil {
			return Backends{}, err
		}
		b.PNT = boundPNT{pnt, t}
	}
	if a.USDT != zero {
		usdt, err := chain.NewToken("usdt", a.USDT, c)
		if err != nil {
			return Backends{}, err
		}
		b.USDT = boundUSDT{usdt, t}
	}
	if a.Factory != zero {
		f, err := chain.NewAccountFactory(a.Factory, c)
		if err != nil {
			return Backends{}, err
		}
		b.Factory = boundFactory{f, t}
	}
	if a.PoolFactory != zero {
		f, err := chain.NewAccountFactory(a.PoolFactory, c)
		if err != nil {
			return Backends{}, err
		}
		b.PoolFactory = boundFactory{f, t}
	}
	return b, nil
}

type boundSBT struct {
	c *chain.SBT
	t *chain.Transactor
}

func (b boundSBT) BalanceOf(ctx context.Context, o common.Address) (*big.Int, error) {
	return b.c.BalanceOf(ctx, o)
}

func (b boundSBT) SafeMint(ctx context.Context, to common.Address) (*chain.Receipt, error) {
	return b.c.SafeMint(ctx, b.t, to)
}

type boundPNT struct {
	c *chain.Token
	t *chain.Transactor
}

func (b boundPNT) Mint(ctx context.Context, to common.Address, amount *big.Int) (*chain.Receipt, error) {
	return b.c.Mint(ctx, b.t, to, amount)
}

type boundUSDT struct {
	c *chain.Token
	t *chain.Transactor
}

func (b boundUSDT) Faucet(ctx context.Context, to common.Address) (*chain.Receipt, error) {
	return b.c.Faucet(ctx, b.t, to)
}

func (b boundUSDT) BalanceOf(ctx context.Context, o common.Address) (*big.Int, error) {
	return b.c.BalanceOf(ctx, o)
}

func (b boundUSDT) Decimals(ctx context.Context) (uint8, error) { return b.c.Decimals(ctx) }

type boundFactory struct {
	c *chain.AccountFactory
	t *chain.Transactor
}

func (b boundFactory) Address() common.Address { return b.c.Address() }

func (b boundFactory) GetAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	return b.c.GetAddress(ctx, owner, salt)
}

func (b boundFactory) CreateAccount(ctx context.Context, owner common.Address, salt *big.Int) (*chain.Receipt, error) {
	return b.c.CreateAccount(ctx, b.t, owner, salt)
}

func txHash(r *chain.Receipt, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return r.TxHash, nil
}
