package community

import (
	"bytes"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/xerrors"
)

// DefaultStake is the stGToken a PAYMASTER_AOA community locks on registration.
const DefaultStake = "30"

// Definition describes one community the operator manages.
type Definition struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address,omitempty"`
	// Key is a key reference (env:, file:, ssm:, kms:) for the community wallet.
	Key         string `yaml:"key"`
	ENS         string `yaml:"ens,omitempty"`
	Description string `yaml:"description,omitempty"`
	Website     string `yaml:"website,omitempty"`
	Logo        string `yaml:"logo,omitempty"`
	Twitter     string `yaml:"twitter,omitempty"`
	GitHub      string `yaml:"github,omitempty"`
	Telegram    string `yaml:"telegram,omitempty"`
}

// Profile builds the registry profile for the wallet at addr.
func (d Definition) Profile(addr common.Address) chain.CommunityProfile {
	return chain.NewProfile(addr, d.Name, d.ENS, d.Description, d.Website, d.Logo, d.Twitter, d.GitHub, d.Telegram)
}

// File is the on-disk community list.
type File struct {
	// Stake is the per-community stake in whole GT.
	Stake       string       `yaml:"stake,omitempty"`
	Communities []Definition `yaml:"communities"`
}

// StakeAmount returns Stake in wei, defaulting to DefaultStake.
func (f *File) StakeAmount() (*big.Int, error) {
	s := f.Stake
	if s == "" {
		s = DefaultStake
	}
	v, err := chain.ParseUnits(s, 18)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stake %q", s)
	}
	if v.Sign() <= 0 {
		return nil, xerrors.Newf("stake %q must be positive", s)
	}
	return v, nil
}

// LoadFile reads and validates a community file.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", path)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse %s", path)
	}
	return f, nil
}

// Parse decodes YAML strictly; unknown fields are errors so typos in key
// names do not silently drop profile data.
func Parse(b []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, xerrors.Wrap(err, "decode communities")
	}
	if len(f.Communities) == 0 {
		return nil, xerrors.New("no communities defined")
	}
	seen := make(map[string]bool, len(f.Communities))
	for i, d := range f.Communities {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, xerrors.Newf("community %d: name is required", i)
		}
		if seen[d.Name] {
			return nil, xerrors.Newf("community %q defined twice", d.Name)
		}
		seen[d.Name] = true
		if strings.TrimSpace(d.Key) == "" {
			return nil, xerrors.Newf("community %q: key is required", d.Name)
		}
		if d.Address != "" && !common.IsHexAddress(d.Address) {
			return nil, xerrors.Newf("community %q: invalid address %q", d.Name, d.Address)
		}
		f.Communities[i] = d
	}
	if _, err := f.StakeAmount(); err != nil {
		return nil, err
	}
	return &f, nil
}
