package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core"
)

// Kind groups node and contract failures by how they are reported to users.
type Kind int

const (
	KindOther Kind = iota
	// KindInsufficientFunds means the signer cannot pay for gas.
	KindInsufficientFunds
	// KindNonce means another transaction from the signer raced this one.
	KindNonce
	// KindSenderCreator means an EntryPoint-gated factory was called directly.
	KindSenderCreator
	// KindReverted means the transaction was mined but failed.
	KindReverted
	// KindNoCode means the target address has no contract deployed.
	KindNoCode
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNonce:
		return "nonce"
	case KindSenderCreator:
		return "sender_creator"
	case KindReverted:
		return "reverted"
	case KindNoCode:
		return "no_code"
	default:
		return "other"
	}
}

// Classify inspects err, including RPC error strings that lost their type
// crossing JSON-RPC.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	switch {
	case errors.Is(err, core.ErrInsufficientFunds), errors.Is(err, core.ErrInsufficientFundsForTransfer):
		return KindInsufficientFunds
	case errors.Is(err, core.ErrNonceTooLow), errors.Is(err, core.ErrNonceTooHigh):
		return KindNonce
	case errors.Is(err, ErrReverted):
		return KindReverted
	case errors.Is(err, bind.ErrNoCode):
		return KindNoCode
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return KindInsufficientFunds
	case strings.Contains(msg, "nonce"), strings.Contains(msg, "replacement transaction underpriced"):
		return KindNonce
	case strings.Contains(msg, "sendercreator"):
		return KindSenderCreator
	case strings.Contains(msg, "execution reverted"):
		return KindReverted
	}
	return KindOther
}
