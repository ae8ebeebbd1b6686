package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/aastar/faucet/internal/xerrors"
)

// KMSAPI is the subset of the KMS client needed to sign with an asymmetric key.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}

	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

type ecdsaSignature struct {
	R, S *big.Int
}

// KMSSigner signs with an ECC_SECG_P256K1 key held in AWS KMS. The private key
// never leaves KMS; the public key is fetched once and cached.
type KMSSigner struct {
	client KMSAPI
	keyID  string

	mu     sync.RWMutex
	pub    *ecdsa.PublicKey
	pubRaw []byte
	addr   common.Address
}

func NewKMSSigner(client KMSAPI, keyID string) *KMSSigner {
	return &KMSSigner{client: client, keyID: keyID}
}

// Init fetches the public key so Address is usable.
func (s *KMSSigner) Init(ctx context.Context) error {
	_, err := s.publicKey(ctx)
	return err
}

func (s *KMSSigner) publicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	s.mu.RLock()
	if s.pub != nil {
		defer s.mu.RUnlock()
		return s.pub, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub != nil {
		return s.pub, nil
	}
	if s.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := s.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(s.keyID)})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms get public key")
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, expected SIGN_VERIFY", s.keyID, out.KeyUsage)
	}
	pub, err := parseSecp256k1SPKI(out.PublicKey)
	if err != nil {
		return nil, err
	}
	s.pub = pub
	s.pubRaw = crypto.FromECDSAPub(pub)
	s.addr = crypto.PubkeyToAddress(*pub)
	return s.pub, nil
}

// Address is the zero address until Init or a signature has succeeded.
func (s *KMSSigner) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *KMSSigner) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	if _, err := s.publicKey(ctx); err != nil {
		return nil, err
	}
	from := s.Address()
	signer := types.LatestSignerForChainID(chainID)
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, bind.ErrNotAuthorized
			}
			sig, err := s.SignHash(ctx, signer.Hash(tx).Bytes())
			if err != nil {
				return nil, err
			}
			return tx.WithSignature(signer, sig)
		},
	}, nil
}

// SignHash returns a 65-byte [R || S || V] signature over a 32-byte digest
// with V in {0, 1} and S in the lower half of the curve order.
func (s *KMSSigner) SignHash(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, xerrors.Newf("digest must be 32 bytes, got %d", len(digest))
	}
	if _, err := s.publicKey(ctx); err != nil {
		return nil, err
	}

	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      kmstypes.MessageTypeDigest,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "kms sign")
	}

	var es ecdsaSignature
	if _, err := asn1.Unmarshal(out.Signature, &es); err != nil {
		return nil, xerrors.Wrap(err, "parse kms signature DER")
	}
	if es.S.Cmp(secp256k1HalfN) > 0 {
		es.S = new(big.Int).Sub(secp256k1N, es.S)
	}

	sig := make([]byte, 65)
	es.R.FillBytes(sig[0:32])
	es.S.FillBytes(sig[32:64])

	s.mu.RLock()
	want := s.pubRaw
	s.mu.RUnlock()
	for v := byte(0); v < 2; v++ {
		sig[64] = v
		got, err := crypto.Ecrecover(digest, sig)
		if err == nil && bytes.Equal(got, want) {
			return sig, nil
		}
	}
	return nil, xerrors.New("kms signature does not recover to the key's public key")
}

// parseSecp256k1SPKI decodes a DER SubjectPublicKeyInfo. crypto/x509 does not
// know the secp256k1 curve, so the structure is unpacked by hand.
func parseSecp256k1SPKI(der []byte) (*ecdsa.PublicKey, error) {
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key DER")
	}
	if !spki.Algorithm.Algorithm.Equal(oidECPublicKey) {
		return nil, xerrors.Newf("kms key algorithm %v is not EC", spki.Algorithm.Algorithm)
	}
	var curve asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(spki.Algorithm.Parameters.FullBytes, &curve); err != nil {
		return nil, xerrors.Wrap(err, "parse kms key curve")
	}
	if !curve.Equal(oidSecp256k1) {
		return nil, xerrors.Newf("kms key curve %v is not secp256k1", curve)
	}
	pub, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, xerrors.Wrap(err, "unmarshal secp256k1 public key")
	}
	return pub, nil
}
