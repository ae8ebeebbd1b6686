package faucet

import (
	"context"
	"encoding/json"
	"math/big"
	"math/rand/v2"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/xerrors"
)

// MintResult describes a confirmed SBT or PNT mint.
type MintResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	Type        string `json:"type"`
	Network     string `json:"network"`
}

// USDTResult describes a confirmed USDT faucet call.
type USDTResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	Balance     string `json:"balance"`
	Network     string `json:"network"`
}

// AccountResult describes a created or pre-existing smart account.
type AccountResult struct {
	TxHash          string      `json:"txHash,omitempty"`
	BlockNumber     uint64      `json:"blockNumber,omitempty"`
	AccountAddress  string      `json:"accountAddress"`
	Owner           string      `json:"owner"`
	Salt            json.Number `json:"salt"`
	AlreadyDeployed bool        `json:"alreadyDeployed"`
	Network         string      `json:"network"`
}

// MaxRandomSalt bounds the salt picked when the caller does not supply one.
const MaxRandomSalt = 1_000_000

// RandomSalt returns a salt in [0, MaxRandomSalt).
func RandomSalt() *big.Int {
	return big.NewInt(rand.Int64N(MaxRandomSalt))
}

// MintSBT mints one SBT to recipient unless it already holds one.
// recipient is echoed back exactly as supplied.
func (s *Service) MintSBT(ctx context.Context, recipient string) (*MintResult, error) {
	if s.b.SBT == nil {
		return nil, notConfigured("mint sbt")
	}
	start := s.now()
	to := common.HexToAddress(recipient)

	bal, err := s.b.SBT.BalanceOf(ctx, to)
	if err != nil {
		return nil, s.observe("sbt", start, err)
	}
	if bal.Sign() > 0 {
		err := xerrors.Public(ErrAlreadyOwnsSBT, http.StatusBadRequest, "Address already owns an SBT")
		return nil, s.observe("sbt", start, err)
	}

	r, err := s.b.SBT.SafeMint(ctx, to)
	if err := s.observe("sbt", start, err); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "sbt minted", "recipient", recipient, "tx_hash", r.TxHash, "block", r.BlockNumber)
	return &MintResult{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Amount:      "1 SBT",
		Recipient:   recipient,
		Type:        "sbt",
		Network:     s.network,
	}, nil
}

// MintPNT mints the configured PNT amount to recipient.
func (s *Service) MintPNT(ctx context.Context, recipient string) (*MintResult, error) {
	if s.b.PNT == nil {
		return nil, notConfigured("mint pnt")
	}
	start := s.now()

	r, err := s.b.PNT.Mint(ctx, common.HexToAddress(recipient), s.pntAmount)
	if err := s.observe("pnt", start, err); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "pnt minted", "recipient", recipient, "tx_hash", r.TxHash, "block", r.BlockNumber)
	return &MintResult{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Amount:      s.pntLabel,
		Recipient:   recipient,
		Type:        "pnt",
		Network:     s.network,
	}, nil
}

// MintUSDT calls the USDT faucet for recipient and reports the new balance.
// A failed balance read after a confirmed mint is logged, not returned.
func (s *Service) MintUSDT(ctx context.Context, recipient string) (*USDTResult, error) {
	if s.b.USDT == nil {
		return nil, notConfigured("mint usdt")
	}
	start := s.now()
	to := common.HexToAddress(recipient)

	r, err := s.b.USDT.Faucet(ctx, to)
	if err := s.observe("usdt", start, err); err != nil {
		return nil, err
	}

	balance := ""
	bal, err := s.b.USDT.BalanceOf(ctx, to)
	if err == nil {
		var dec uint8
		if dec, err = s.b.USDT.Decimals(ctx); err == nil {
			balance = chain.FormatUnits(bal, dec)
		}
	}
	if err != nil {
		s.logger.Warn(ctx, "usdt balance read failed after mint", "recipient", recipient, "tx_hash", r.TxHash, "err", err)
	}

	s.logger.Info(ctx, "usdt minted", "recipient", recipient, "tx_hash", r.TxHash, "block", r.BlockNumber)
	return &USDTResult{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Amount:      "10 USDT",
		Recipient:   recipient,
		Balance:     balance,
		Network:     s.network,
	}, nil
}

// CreateAccount deploys the smart account for (owner, salt) unless code is
// already present at its counterfactual address.
func (s *Service) CreateAccount(ctx context.Context, owner string, salt *big.Int) (*AccountResult, error) {
	if s.b.Factory == nil || s.b.Code == nil {
		return nil, notConfigured("create account")
	}
	if salt == nil {
		salt = RandomSalt()
	}
	res, err := s.createAccount(ctx, s.b.Factory, common.HexToAddress(owner), salt)
	if err != nil {
		return nil, err
	}
	res.Owner = owner
	return res, nil
}

func (s *Service) createAccount(ctx context.Context, f Factory, owner common.Address, salt *big.Int) (*AccountResult, error) {
	start := s.now()
	addr, err := f.GetAddress(ctx, owner, salt)
	if err != nil {
		return nil, s.observe("account", start, err)
	}
	deployed, err := s.b.Code.HasCode(ctx, addr)
	if err != nil {
		return nil, s.observe("account", start, err)
	}
	res := &AccountResult{
		AccountAddress:  addr.Hex(),
		Owner:           owner.Hex(),
		Salt:            json.Number(salt.String()),
		AlreadyDeployed: deployed,
		Network:         s.network,
	}
	if deployed {
		return res, nil
	}

	r, err := f.CreateAccount(ctx, owner, salt)
	if err := s.observe("account", start, err); err != nil {
		return nil, err
	}
	res.TxHash = r.TxHash
	res.BlockNumber = r.BlockNumber
	s.logger.Info(ctx, "account created", "account", res.AccountAddress, "owner", res.Owner, "salt", res.Salt, "tx_hash", r.TxHash)
	return res, nil
}
