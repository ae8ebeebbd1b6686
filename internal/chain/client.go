package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/aastar/faucet/internal/xerrors"
)

// Backend is the RPC surface used by contracts and transactors.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client is a connected Backend plus the chain id it reported at dial time.
type Client struct {
	Backend
	chainID *big.Int
	closer  func()
}

// Dial connects to rpcURL and fetches the chain id. When wantChainID is
// non-zero a mismatch is an error, which catches a mainnet URL in a testnet
// deployment.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*Client, error) {
	if rpcURL == "" {
		return nil, xerrors.New("rpc url is empty")
	}
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ec, err := ethclient.DialContext(dctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(err, "dial rpc")
	}
	c, err := NewClient(dctx, ec, wantChainID)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(ctx context.Context, b Backend, wantChainID int64) (*Client, error) {
	id, err := b.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "query chain id")
	}
	if wantChainID != 0 && id.Int64() != wantChainID {
		return nil, xerrors.Newf("rpc reports chain id %s, expected %d", id, wantChainID)
	}
	return &Client{Backend: b, chainID: id}, nil
}

// ChainIDValue returns the chain id captured at dial time.
func (c *Client) ChainIDValue() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying RPC connection, if any.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Check is a health probe: the node answers and reports a block number.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.BlockNumber(ctx); err != nil {
		return xerrors.Wrap(err, "rpc block number")
	}
	return nil
}

// HasCode reports whether addr holds contract code at the latest block.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, xerrors.Wrapf(err, "code at %s", addr.Hex())
	}
	return len(code) > 0, nil
}
