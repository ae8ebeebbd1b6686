package faucet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aastar/faucet/internal/chain"
)

type fakeChain struct {
	mu sync.Mutex

	sbtHolders map[common.Address]bool
	pntMinted  map[common.Address]*big.Int
	usdt       map[common.Address]*big.Int
	code       map[common.Address]bool
	txs        int

	failSBT, failPNT, failUSDT, failFactory error
	failBalance                             error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		sbtHolders: make(map[common.Address]bool),
		pntMinted:  make(map[common.Address]*big.Int),
		usdt:       make(map[common.Address]*big.Int),
		code:       make(map[common.Address]bool),
	}
}

func (f *fakeChain) receipt() *chain.Receipt {
	f.txs++
	return &chain.Receipt{TxHash: common.BigToHash(big.NewInt(int64(f.txs))).Hex(), BlockNumber: uint64(1000 + f.txs)}
}

func (f *fakeChain) backends() Backends {
	return Backends{
		SBT:         fakeSBT{f},
		PNT:         fakePNT{f},
		USDT:        fakeUSDT{f},
		Factory:     fakeFactory{f, common.HexToAddress("0xfac")},
		PoolFactory: fakeFactory{f, common.HexToAddress("0xf00")},
		Code:        fakeCode{f},
		SBTAddress:  common.HexToAddress("0x5b7"),
		PNTAddress:  common.HexToAddress("0x907"),
		USDTAddress: common.HexToAddress("0x115d"),
	}
}

type fakeSBT struct{ f *fakeChain }

func (s fakeSBT) BalanceOf(_ context.Context, o common.Address) (*big.Int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.failBalance != nil {
		return nil, s.f.failBalance
	}
	if s.f.sbtHolders[o] {
		return big.NewInt(1), nil
	}
	return big.NewInt(0), nil
}

func (s fakeSBT) SafeMint(_ context.Context, to common.Address) (*chain.Receipt, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.failSBT != nil {
		return nil, s.f.failSBT
	}
	s.f.sbtHolders[to] = true
	return s.f.receipt(), nil
}

type fakePNT struct{ f *fakeChain }

func (p fakePNT) Mint(_ context.Context, to common.Address, amount *big.Int) (*chain.Receipt, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.f.failPNT != nil {
		return nil, p.f.failPNT
	}
	cur := p.f.pntMinted[to]
	if cur == nil {
		cur = new(big.Int)
	}
	p.f.pntMinted[to] = new(big.Int).Add(cur, amount)
	return p.f.receipt(), nil
}

type fakeUSDT struct{ f *fakeChain }

func (u fakeUSDT) Faucet(_ context.Context, to common.Address) (*chain.Receipt, error) {
	u.f.mu.Lock()
	defer u.f.mu.Unlock()
	if u.f.failUSDT != nil {
		return nil, u.f.failUSDT
	}
	cur := u.f.usdt[to]
	if cur == nil {
		cur = new(big.Int)
	}
	u.f.usdt[to] = new(big.Int).Add(cur, big.NewInt(10_000_000))
	return u.f.receipt(), nil
}

func (u fakeUSDT) BalanceOf(_ context.Context, o common.Address) (*big.Int, error) {
	u.f.mu.Lock()
	defer u.f.mu.Unlock()
	if v := u.f.usdt[o]; v != nil {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (u fakeUSDT) Decimals(context.Context) (uint8, error) { return 6, nil }

type fakeFactory struct {
	f    *fakeChain
	addr common.Address
}

func (ff fakeFactory) Address() common.Address { return ff.addr }

// GetAddress derives a stable address from (factory, owner, salt).
func (ff fakeFactory) GetAddress(_ context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	h := crypto.Keccak256(ff.addr.Bytes(), owner.Bytes(), common.LeftPadBytes(salt.Bytes(), 32))
	return common.BytesToAddress(h[12:]), nil
}

func (ff fakeFactory) CreateAccount(ctx context.Context, owner common.Address, salt *big.Int) (*chain.Receipt, error) {
	addr, _ := ff.GetAddress(ctx, owner, salt)
	ff.f.mu.Lock()
	defer ff.f.mu.Unlock()
	if ff.f.failFactory != nil {
		return nil, ff.f.failFactory
	}
	ff.f.code[addr] = true
	return ff.f.receipt(), nil
}

type fakeCode struct{ f *fakeChain }

func (c fakeCode) HasCode(_ context.Context, a common.Address) (bool, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	return c.f.code[a], nil
}

type txObservation struct {
	action, result string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []txObservation
}

func (r *fakeRecorder) ObserveTransaction(action, result string, _ time.Duration) {
	r.mu.Lock()
	r.obs = append(r.obs, txObservation{action, result})
	r.mu.Unlock()
}

type memSink struct {
	stored []*PoolReport
	err    error
}

func (m *memSink) Store(_ context.Context, r *PoolReport) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.stored = append(m.stored, r)
	return "mem://" + r.RunID, nil
}
