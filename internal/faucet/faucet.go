// Package faucet implements the testnet faucet actions: SBT and PNT mints,
// the mock USDT faucet, smart-account creation and the test account pool.
//
// The service talks to contracts through small interfaces; bind.go adapts the
// chain package to them. Rate limiting and HTTP concerns live in faucethttp.
package faucet

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/xerrors"
)

var (
	// ErrAlreadyOwnsSBT is returned by MintSBT when the recipient holds a token.
	ErrAlreadyOwnsSBT = errors.New("address already owns an SBT")
	// ErrNotConfigured is returned when the action's contract or signer is missing.
	ErrNotConfigured = errors.New("faucet is not configured for this action")
)

var addressRE = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address. Case
// is not checked against the EIP-55 checksum.
func ValidAddress(s string) bool {
	return addressRE.MatchString(s)
}

// SBT is the soulbound token the faucet mints.
type SBT interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	SafeMint(ctx context.Context, to common.Address) (*chain.Receipt, error)
}

// PNT is the mintable points token.
type PNT interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) (*chain.Receipt, error)
}

// USDT is the mock stablecoin with a public faucet.
type USDT interface {
	Faucet(ctx context.Context, to common.Address) (*chain.Receipt, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
}

// Factory deploys smart accounts at counterfactual addresses.
type Factory interface {
	Address() common.Address
	GetAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error)
	CreateAccount(ctx context.Context, owner common.Address, salt *big.Int) (*chain.Receipt, error)
}

// CodeReader reports whether an address holds deployed code.
type CodeReader interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

// Recorder observes transaction outcomes; metrics.Registry implements it.
type Recorder interface {
	ObserveTransaction(action, result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransaction(string, string, time.Duration) {}

// Backends are the contract handles the service uses. Nil fields disable the
// actions that need them.
type Backends struct {
	SBT         SBT
	PNT         PNT
	USDT        USDT
	Factory     Factory
	PoolFactory Factory
	Code        CodeReader

	SBTAddress  common.Address
	PNTAddress  common.Address
	USDTAddress common.Address
}

// Service runs faucet actions. Safe for concurrent use.
type Service struct {
	b            Backends
	network      string
	pntAmount    *big.Int
	pntLabel     string
	defaultOwner common.Address
	pool         PoolOptions
	logger       log.Logger
	rec          Recorder
	now          func() time.Time
}

type Option func(*Service)

// WithNetwork sets the network name reported in responses. Defaults to "Sepolia".
func WithNetwork(n string) Option {
	return func(s *Service) {
		if n != "" {
			s.network = n
		}
	}
}

// WithPNTAmount sets the PNT mint size in whole tokens (18 decimals).
func WithPNTAmount(whole string) Option {
	return func(s *Service) {
		if v, err := chain.ParseUnits(whole, 18); err == nil && v.Sign() > 0 {
			s.pntAmount = v
			s.pntLabel = whole + " PNT"
		}
	}
}

// WithDefaultOwner sets the owner used by CreateAccount when none is supplied.
func WithDefaultOwner(a common.Address) Option {
	return func(s *Service) { s.defaultOwner = a }
}

func WithPool(p PoolOptions) Option {
	return func(s *Service) { s.pool = p.withDefaults() }
}

func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = log.OrNop(l) }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(b Backends, opts ...Option) *Service {
	s := &Service{
		b:         b,
		network:   "Sepolia",
		pntAmount: chain.MustParseUnits("100", 18),
		pntLabel:  "100 PNT",
		pool:      PoolOptions{}.withDefaults(),
		logger:    log.Nop(),
		rec:       nopRecorder{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Network is the display name of the chain.
func (s *Service) Network() string { return s.network }

// DefaultOwner returns the configured default account owner.
func (s *Service) DefaultOwner() (common.Address, bool) {
	return s.defaultOwner, s.defaultOwner != (common.Address{})
}

func notConfigured(action string) error {
	return xerrors.Public(xerrors.Wrap(ErrNotConfigured, action), http.StatusInternalServerError, "Server configuration error")
}

// observe records a transaction outcome and returns err unchanged.
func (s *Service) observe(action string, start time.Time, err error) error {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyOwnsSBT):
		result = "rejected"
	default:
		result = chain.Classify(err).String()
	}
	s.rec.ObserveTransaction(action, result, s.now().Sub(start))
	return err
}
