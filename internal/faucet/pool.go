package faucet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aastar/faucet/internal/xerrors"
)

// PoolOptions control InitPool.
type PoolOptions struct {
	// DefaultSize is used when the caller asks for size 0. Default 20.
	DefaultSize int
	// MaxSize caps a single run. Default 50.
	MaxSize int
	// Interval paces accounts to stay under RPC provider limits. Default 2s.
	Interval time.Duration
	// Sink archives the finished report; nil skips archiving.
	Sink ReportSink
}

func (p PoolOptions) withDefaults() PoolOptions {
	if p.DefaultSize <= 0 {
		p.DefaultSize = 20
	}
	if p.MaxSize <= 0 {
		p.MaxSize = 50
	}
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	return p
}

// ReportSink stores pool reports and returns where each one went.
type ReportSink interface {
	Store(ctx context.Context, r *PoolReport) (string, error)
}

// PoolReport is the result of one InitPool run.
type PoolReport struct {
	RunID         string            `json:"runId"`
	Timestamp     time.Time         `json:"timestamp"`
	Network       string            `json:"network"`
	Configuration PoolConfiguration `json:"configuration"`
	Statistics    PoolStatistics    `json:"statistics"`
	Accounts      []PoolAccount     `json:"accounts"`
	ArchivedTo    string            `json:"archivedTo,omitempty"`
}

type PoolConfiguration struct {
	FactoryAddress string `json:"factoryAddress"`
	SBTAddress     string `json:"sbtAddress"`
	PNTAddress     string `json:"pntAddress"`
	USDTAddress    string `json:"usdtAddress"`
	PoolSize       int    `json:"poolSize"`
}

type PoolStatistics struct {
	TotalAccounts      int     `json:"totalAccounts"`
	SuccessfulAccounts int     `json:"successfulAccounts"`
	FailedAccounts     int     `json:"failedAccounts"`
	DurationSeconds    float64 `json:"durationSeconds"`
}

// PoolAccount is one test account. Owner keys derive from a public seed and
// hold only test funds, so they are reported in full.
type PoolAccount struct {
	Index           int           `json:"index"`
	Owner           string        `json:"owner"`
	OwnerPrivateKey string        `json:"ownerPrivateKey,omitempty"`
	AAAccount       string        `json:"aaAccount,omitempty"`
	Salt            int           `json:"salt"`
	Tokens          *TokenResults `json:"tokens,omitempty"`
	Deployed        bool          `json:"deployed"`
	Error           string        `json:"error,omitempty"`
}

type TokenResults struct {
	SBT  StepResult `json:"sbt"`
	PNT  StepResult `json:"pnt"`
	USDT StepResult `json:"usdt"`
}

// StepResult is the outcome of one funding step. Failures are recorded and
// the pool run continues.
type StepResult struct {
	Success       bool   `json:"success"`
	TxHash        string `json:"txHash,omitempty"`
	AlreadyMinted bool   `json:"alreadyMinted,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TestAccountKey derives pool account i's key as keccak256("test-account-{i}").
func TestAccountKey(i int) *ecdsa.PrivateKey {
	seed := crypto.Keccak256([]byte(fmt.Sprintf("test-account-%d", i)))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		// a keccak output is out of range with negligible probability
		panic(fmt.Sprintf("faucet: derive test account %d: %v", i, err))
	}
	return key
}

// PoolSize clamps a requested size to the configured bounds.
func (s *Service) PoolSize(requested int) int {
	switch {
	case requested <= 0:
		return s.pool.DefaultSize
	case requested > s.pool.MaxSize:
		return s.pool.MaxSize
	default:
		return requested
	}
}

// InitPool creates size deterministic test accounts and funds each with an
// SBT, PNT and USDT. Per-account failures are recorded in the report; only
// configuration errors and cancellation abort the run.
func (s *Service) InitPool(ctx context.Context, size int) (*PoolReport, error) {
	f := s.b.PoolFactory
	if f == nil {
		f = s.b.Factory
	}
	if f == nil || s.b.Code == nil || s.b.SBT == nil || s.b.PNT == nil || s.b.USDT == nil {
		return nil, notConfigured("init pool")
	}
	size = s.PoolSize(size)

	rep := &PoolReport{
		RunID:   uuid.NewString(),
		Network: s.network,
		Configuration: PoolConfiguration{
			FactoryAddress: f.Address().Hex(),
			SBTAddress:     s.b.SBTAddress.Hex(),
			PNTAddress:     s.b.PNTAddress.Hex(),
			USDTAddress:    s.b.USDTAddress.Hex(),
			PoolSize:       size,
		},
		Accounts: make([]PoolAccount, 0, size),
	}
	logger := s.logger.With("run_id", rep.RunID)
	logger.Info(ctx, "pool initialization started", "size", size)

	start := s.now()
	pace := rate.NewLimiter(rate.Every(s.pool.Interval), 1)
	for i := 0; i < size; i++ {
		if err := pace.Wait(ctx); err != nil {
			return nil, xerrors.Wrapf(err, "pool run %s interrupted at account %d", rep.RunID, i)
		}
		acct := s.poolAccount(ctx, f, i)
		if acct.Error != "" {
			logger.Warn(ctx, "pool account failed", "index", i, "owner", acct.Owner, "err", acct.Error)
		} else {
			logger.Info(ctx, "pool account ready", "index", i, "account", acct.AAAccount,
				"sbt", acct.Tokens.SBT.Success, "pnt", acct.Tokens.PNT.Success, "usdt", acct.Tokens.USDT.Success)
		}
		rep.Accounts = append(rep.Accounts, acct)
	}
	end := s.now()

	rep.Timestamp = end.UTC()
	rep.Statistics.TotalAccounts = len(rep.Accounts)
	for _, a := range rep.Accounts {
		if a.Error == "" {
			rep.Statistics.SuccessfulAccounts++
		} else {
			rep.Statistics.FailedAccounts++
		}
	}
	rep.Statistics.DurationSeconds = float64(end.Sub(start).Milliseconds()/10) / 100

	if s.pool.Sink != nil {
		loc, err := s.pool.Sink.Store(ctx, rep)
		if err != nil {
			logger.Error(ctx, err, "pool report archive failed")
		} else {
			rep.ArchivedTo = loc
		}
	}

	logger.Info(ctx, "pool initialization complete",
		"successful", rep.Statistics.SuccessfulAccounts,
		"failed", rep.Statistics.FailedAccounts,
		"duration_s", rep.Statistics.DurationSeconds,
	)
	return rep, nil
}

func (s *Service) poolAccount(ctx context.Context, f Factory, i int) PoolAccount {
	key := TestAccountKey(i)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	acct := PoolAccount{Index: i, Owner: owner.Hex(), Salt: i}

	res, err := s.createAccount(ctx, f, owner, big.NewInt(int64(i)))
	if err != nil {
		acct.Error = err.Error()
		return acct
	}
	acct.OwnerPrivateKey = hexutil.Encode(crypto.FromECDSA(key))
	acct.AAAccount = res.AccountAddress
	acct.Deployed = !res.AlreadyDeployed

	aa := common.HexToAddress(res.AccountAddress)
	acct.Tokens = &TokenResults{
		SBT:  s.poolSBT(ctx, aa),
		PNT:  s.poolStep(ctx, "pnt", func() (string, error) { return txHash(s.b.PNT.Mint(ctx, aa, s.pntAmount)) }),
		USDT: s.poolStep(ctx, "usdt", func() (string, error) { return txHash(s.b.USDT.Faucet(ctx, aa)) }),
	}
	return acct
}

func (s *Service) poolSBT(ctx context.Context, aa common.Address) StepResult {
	bal, err := s.b.SBT.BalanceOf(ctx, aa)
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	if bal.Sign() > 0 {
		return StepResult{Success: true, AlreadyMinted: true}
	}
	return s.poolStep(ctx, "sbt", func() (string, error) { return txHash(s.b.SBT.SafeMint(ctx, aa)) })
}

func (s *Service) poolStep(_ context.Context, action string, fn func() (string, error)) StepResult {
	start := s.now()
	h, err := fn()
	if err := s.observe("pool_"+action, start, err); err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, TxHash: h}
}
