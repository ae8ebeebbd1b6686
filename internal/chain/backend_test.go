package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// fakeBackend answers calls from canned outputs keyed by method selector and
// mines every sent transaction immediately.
type fakeBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	calls    map[string][]byte
	sent     []*types.Transaction
	status   uint64
	nonce    uint64
	balance  *big.Int
	sendErr  error
	callErr  error
	block    uint64
	noCodeAt map[common.Address]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(11155111),
		calls:    make(map[string][]byte),
		status:   types.ReceiptStatusSuccessful,
		balance:  big.NewInt(0),
		block:    100,
		noCodeAt: make(map[common.Address]bool),
	}
}

// answer registers the packed outputs of method in abiJSON.
func (f *fakeBackend) answer(abiJSON, method string, outs ...interface{}) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}
	m := parsed.Methods[method]
	data, err := m.Outputs.Pack(outs...)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.calls[string(m.ID)] = data
	f.mu.Unlock()
}

func (f *fakeBackend) CodeAt(_ context.Context, a common.Address, _ *big.Int) ([]byte, error) {
	if f.noCodeAt[a] {
		return nil, nil
	}
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("short call data")
	}
	return f.calls[string(msg.Data[:4])], nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(f.block)}, nil
}

func (f *fakeBackend) PendingCodeAt(ctx context.Context, a common.Address) ([]byte, error) {
	return f.CodeAt(ctx, a, nil)
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(<-chan struct{}) error { return nil }), nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == h {
			return &types.Receipt{
				TxHash:      h,
				Status:      f.status,
				BlockNumber: new(big.Int).SetUint64(f.block),
				GasUsed:     21000,
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.block, nil
}

func (f *fakeBackend) lastSent() *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}
