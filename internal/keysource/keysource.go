// Package keysource resolves signing keys and secrets from references so
// private keys need not live in flags or config files.
//
// A reference is one of:
//
//	kms:<key id or alias>     secp256k1 key held in AWS KMS (signers only)
//	ssm:<parameter name>      SecureString parameter, decrypted
//	env:<VAR>                 environment variable
//	file:<path>               file contents, trimmed
//	<anything else>           the literal value, e.g. a hex private key
package keysource

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used to read parameters.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver turns references into values. Clients are optional; a reference
// that needs a missing client is an error.
type Resolver struct {
	SSM    SSMAPI
	KMS    chain.KMSAPI
	Getenv func(string) string
}

const (
	schemeKMS  = "kms:"
	schemeSSM  = "ssm:"
	schemeEnv  = "env:"
	schemeFile = "file:"
)

// Describe renders a reference for logs without revealing literal values.
func Describe(ref string) string {
	for _, p := range []string{schemeKMS, schemeSSM, schemeEnv, schemeFile} {
		if strings.HasPrefix(ref, p) {
			return ref
		}
	}
	if ref == "" {
		return "unset"
	}
	return "literal"
}

// Secret resolves ref to a string value.
func (r *Resolver) Secret(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", xerrors.New("empty key reference")
	case strings.HasPrefix(ref, schemeKMS):
		return "", xerrors.Newf("%s references cannot be read as secrets", ref)
	case strings.HasPrefix(ref, schemeSSM):
		return r.fromSSM(ctx, strings.TrimPrefix(ref, schemeSSM))
	case strings.HasPrefix(ref, schemeEnv):
		name := strings.TrimPrefix(ref, schemeEnv)
		getenv := r.Getenv
		if getenv == nil {
			getenv = os.Getenv
		}
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return "", xerrors.Newf("environment variable %s is empty", name)
		}
		return v, nil
	case strings.HasPrefix(ref, schemeFile):
		path := strings.TrimPrefix(ref, schemeFile)
		b, err := os.ReadFile(path)
		if err != nil {
			return "", xerrors.Wrapf(err, "read key file %s", path)
		}
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", xerrors.Newf("key file %s is empty", path)
		}
		return v, nil
	default:
		return ref, nil
	}
}

// Signer resolves ref to a transaction signer. KMS signers have their public
// key fetched before returning.
func (r *Resolver) Signer(ctx context.Context, ref string) (chain.Signer, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, schemeKMS) {
		if r.KMS == nil {
			return nil, xerrors.Newf("%s: kms client is not configured", ref)
		}
		s := chain.NewKMSSigner(r.KMS, strings.TrimPrefix(ref, schemeKMS))
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	hexKey, err := r.Secret(ctx, ref)
	if err != nil {
		return nil, err
	}
	s, err := chain.NewKeySigner(hexKey)
	if err != nil {
		return nil, xerrors.Wrapf(err, "key %s", Describe(ref))
	}
	return s, nil
}

func (r *Resolver) fromSSM(ctx context.Context, name string) (string, error) {
	if r.SSM == nil {
		return "", xerrors.Newf("ssm:%s: ssm client is not configured", name)
	}
	out, err := r.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}

// NeedsAWS reports whether any reference requires AWS clients.
func NeedsAWS(refs ...string) bool {
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if strings.HasPrefix(ref, schemeKMS) || strings.HasPrefix(ref, schemeSSM) {
			return true
		}
	}
	return false
}
