package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aastar/faucet/internal/xerrors"
)

var tracer = otel.Tracer("faucet/chain")

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

// DefaultConfirmTimeout bounds how long a transaction may wait to be mined.
const DefaultConfirmTimeout = 2 * time.Minute

// Receipt is the part of a mined transaction the faucet reports.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

func newReceipt(r *types.Receipt) *Receipt {
	out := &Receipt{TxHash: r.TxHash.Hex(), GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// Transactor sends transactions for one signer. Sends are serialised so each
// transaction sees the previous one's pending nonce; waiting for inclusion is not.
type Transactor struct {
	signer  Signer
	chainID *big.Int
	backend Backend
	timeout time.Duration

	mu sync.Mutex
}

// NewTransactor binds signer to a chain. A non-positive timeout uses DefaultConfirmTimeout.
func NewTransactor(backend Backend, signer Signer, chainID *big.Int, timeout time.Duration) *Transactor {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Transactor{signer: signer, chainID: chainID, backend: backend, timeout: timeout}
}

// From is the signing account.
func (t *Transactor) From() common.Address { return t.signer.Address() }

// Balance is the signing account's native balance in wei.
func (t *Transactor) Balance(ctx context.Context) (*big.Int, error) {
	b, err := t.backend.BalanceAt(ctx, t.From(), nil)
	if err != nil {
		return nil, xerrors.Wrapf(err, "balance of %s", t.From().Hex())
	}
	return b, nil
}

func (t *Transactor) send(ctx context.Context, fn func(*bind.TransactOpts) (*types.Transaction, error), value *big.Int, gasLimit uint64) (*types.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	opts, err := t.signer.TransactOpts(ctx, t.chainID)
	if err != nil {
		return nil, err
	}
	opts.Value = value
	opts.GasLimit = gasLimit
	return fn(opts)
}

func (t *Transactor) wait(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	r, err := bind.WaitMined(wctx, t.backend, tx)
	if err != nil {
		return nil, xerrors.Wrapf(err, "wait for %s", tx.Hash().Hex())
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return newReceipt(r), xerrors.Wrapf(ErrReverted, "tx %s", tx.Hash().Hex())
	}
	return newReceipt(r), nil
}

// SendValue transfers wei to a plain account and waits for inclusion.
func (t *Transactor) SendValue(ctx context.Context, to common.Address, amount *big.Int) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "chain.transfer", trace.WithAttributes(
		attribute.String("eth.from", t.From().Hex()),
		attribute.String("eth.to", to.Hex()),
	))
	defer span.End()

	bc := bind.NewBoundContract(to, abi.ABI{}, t.backend, t.backend, t.backend)
	// gas estimation refuses code-less targets, so plain transfers use the fixed cost
	tx, err := t.send(ctx, bc.Transfer, amount, params.TxGas)
	if err != nil {
		return nil, spanErr(span, xerrors.Wrapf(err, "transfer to %s", to.Hex()))
	}
	span.SetAttributes(attribute.String("eth.tx_hash", tx.Hash().Hex()))
	r, err := t.wait(ctx, tx)
	if err != nil {
		return r, spanErr(span, err)
	}
	return r, nil
}

// Contract is a bound contract with traced calls and transactions.
type Contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewContract parses abiJSON and binds it at addr.
func NewContract(name string, addr common.Address, abiJSON string, backend Backend) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse %s abi", name)
	}
	return &Contract{
		name:    name,
		address: addr,
		abi:     parsed,
		bound:   bind.NewBoundContract(addr, parsed, backend, backend, backend),
	}, nil
}

func (c *Contract) Name() string            { return c.name }
func (c *Contract) Address() common.Address { return c.address }

// Call runs a read-only method and returns its decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, span := tracer.Start(ctx, "chain.call "+c.name+"."+method, trace.WithAttributes(
		attribute.String("eth.contract", c.address.Hex()),
	))
	defer span.End()

	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, spanErr(span, xerrors.Wrapf(err, "%s.%s", c.name, method))
	}
	return out, nil
}

// Transact sends method through t and waits until it is mined. A reverted
// transaction returns its receipt together with ErrReverted.
func (c *Contract) Transact(ctx context.Context, t *Transactor, method string, args ...interface{}) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "chain.transact "+c.name+"."+method, trace.WithAttributes(
		attribute.String("eth.contract", c.address.Hex()),
		attribute.String("eth.from", t.From().Hex()),
	))
	defer span.End()

	tx, err := t.send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.bound.Transact(opts, method, args...)
	}, nil, 0)
	if err != nil {
		return nil, spanErr(span, xerrors.Wrapf(err, "%s.%s", c.name, method))
	}
	span.SetAttributes(attribute.String("eth.tx_hash", tx.Hash().Hex()))

	r, err := t.wait(ctx, tx)
	if r != nil {
		span.SetAttributes(attribute.Int64("eth.block", int64(r.BlockNumber)))
	}
	if err != nil {
		return r, spanErr(span, xerrors.Wrapf(err, "%s.%s", c.name, method))
	}
	return r, nil
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// single returns the only output of a call converted to T.
func single[T any](out []interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, xerrors.New("call returned no values")
	}
	v, ok := out[0].(T)
	if !ok {
		return *abi.ConvertType(out[0], new(T)).(*T), nil
	}
	return v, nil
}
