// Package contracts is the catalog of deployed contract addresses the faucet
// and admin tooling talk to, embedded at build time.
package contracts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/xerrors"
)

//go:embed sepolia.json
var sepoliaJSON []byte

// Well-known catalog names.
const (
	GToken               = "GTOKEN"
	GTokenStaking        = "GTOKEN_STAKING"
	Registry             = "REGISTRY"
	MySBT                = "MYSBT"
	USDT                 = "USDT"
	PNT                  = "PNT"
	SBT                  = "SBT"
	EntryPoint           = "ENTRYPOINT"
	SimpleAccountFactory = "SIMPLE_ACCOUNT_FACTORY"
	PoolAccountFactory   = "POOL_ACCOUNT_FACTORY"
	DefaultCommunity     = "DEFAULT_COMMUNITY"
)

// groupFaucet holds addresses the faucet uses but the published catalog omits.
const groupFaucet = "faucet"

// Categories used by Metadata entries.
var Categories = []string{"core", "tokens", "testTokens", "other"}

type Entry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Group   string `json:"group"`
}

// Metadata describes one deployed contract version.
type Metadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	VersionCode int      `json:"versionCode"`
	DeployedAt  string   `json:"deployedAt"`
	Address     string   `json:"address"`
	Features    []string `json:"features"`
	Category    string   `json:"category"`
}

// Catalog is immutable after Load.
type Catalog struct {
	Network     string     `json:"network"`
	DisplayName string     `json:"displayName"`
	ChainID     int64      `json:"chainId"`
	Version     string     `json:"version"`
	Addresses   []Entry    `json:"addresses"`
	Meta        []Metadata `json:"metadata"`

	byName map[string]common.Address
}

// Load returns the embedded Sepolia catalog.
func Load() (*Catalog, error) {
	return Parse(sepoliaJSON)
}

// LoadFile reads a catalog with the same shape from disk.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read catalog %s", path)
	}
	return Parse(b)
}

// Parse decodes and validates a catalog document.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, xerrors.Wrap(err, "decode catalog")
	}
	c.byName = make(map[string]common.Address, len(c.Addresses))
	for _, e := range c.Addresses {
		if !common.IsHexAddress(e.Address) {
			return nil, xerrors.Newf("catalog entry %s: invalid address %q", e.Name, e.Address)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, xerrors.Newf("catalog entry %s is duplicated", e.Name)
		}
		c.byName[e.Name] = common.HexToAddress(e.Address)
	}
	for _, m := range c.Meta {
		if !common.IsHexAddress(m.Address) {
			return nil, xerrors.Newf("catalog metadata %s: invalid address %q", m.Name, m.Address)
		}
	}
	return &c, nil
}

// Address looks up a contract by catalog name.
func (c *Catalog) Address(name string) (common.Address, bool) {
	a, ok := c.byName[name]
	return a, ok
}

// MustAddress panics when name is missing; for names in the embedded catalog.
func (c *Catalog) MustAddress(name string) common.Address {
	a, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("contracts: %s not in catalog", name))
	}
	return a
}

// Group returns the entries of one address group in catalog order.
func (c *Catalog) Group(g string) []Entry {
	var out []Entry
	for _, e := range c.Addresses {
		if e.Group == g {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) Core() []Entry       { return c.Group("core") }
func (c *Catalog) Tokens() []Entry     { return c.Group("tokens") }
func (c *Catalog) TestTokens() []Entry { return c.Group("testTokens") }

// Published returns every address except faucet-internal ones.
func (c *Catalog) Published() []Entry {
	out := make([]Entry, 0, len(c.Addresses))
	for _, e := range c.Addresses {
		if e.Group != groupFaucet {
			out = append(out, e)
		}
	}
	return out
}

// Metadata returns all metadata entries, or only those in category when it is non-empty.
func (c *Catalog) Metadata(category string) []Metadata {
	if category == "" {
		return append([]Metadata(nil), c.Meta...)
	}
	var out []Metadata
	for _, m := range c.Meta {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// ByCategory groups metadata by category. Every entry of Categories is present.
func (c *Catalog) ByCategory() map[string][]Metadata {
	out := make(map[string][]Metadata, len(Categories))
	for _, cat := range Categories {
		out[cat] = []Metadata{}
	}
	for _, m := range c.Meta {
		out[m.Category] = append(out[m.Category], m)
	}
	return out
}

// View is the JSON document served to browsers.
type View struct {
	Network    string                `json:"network"`
	ChainID    int64                 `json:"chainId"`
	Version    string                `json:"version"`
	Contracts  map[string]string     `json:"contracts"`
	Categories map[string][]Metadata `json:"categories"`
}

func (c *Catalog) View() View {
	m := make(map[string]string)
	for _, e := range c.Published() {
		m[e.Name] = e.Address
	}
	return View{
		Network:    c.Network,
		ChainID:    c.ChainID,
		Version:    c.Version,
		Contracts:  m,
		Categories: c.ByCategory(),
	}
}

// Render writes the browser contracts.js module: CONTRACTS, CONTRACT_METADATA
// and SHARED_CONFIG_VERSION attached to window and module.exports.
func (c *Catalog) Render(w io.Writer, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// Generated from the faucet contract catalog v%s\n", c.Version)
	b.WriteString("// DO NOT EDIT MANUALLY - run 'faucetctl contracts generate' to regenerate\n")
	fmt.Fprintf(&b, "// Generated at: %s\n\n", now.UTC().Format(time.RFC3339Nano))

	// objects keep catalog order, so they are written by hand rather than from a map
	b.WriteString("const CONTRACTS = {\n")
	pub := c.Published()
	for i, e := range pub {
		sep := ","
		if i == len(pub)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %q: %q%s\n", e.Name, e.Address, sep)
	}
	b.WriteString("};\n\n")

	meta, err := json.MarshalIndent(c.sortedMeta(), "", "  ")
	if err != nil {
		return xerrors.Wrap(err, "encode metadata")
	}
	b.WriteString("// Contract metadata with version info and categories\n")
	fmt.Fprintf(&b, "const CONTRACT_METADATA = %s;\n\n", meta)
	fmt.Fprintf(&b, "// Version string for display in UI\nconst SHARED_CONFIG_VERSION = %q;\n\n", c.Version)
	b.WriteString(`// Export for use in browser
if (typeof window !== 'undefined') {
  window.CONTRACTS = CONTRACTS;
  window.CONTRACT_METADATA = CONTRACT_METADATA;
  window.SHARED_CONFIG_VERSION = SHARED_CONFIG_VERSION;
}

// Export for CommonJS/ES modules
if (typeof module !== 'undefined' && module.exports) {
  module.exports = { CONTRACTS, CONTRACT_METADATA };
}
`)
	if _, err := io.WriteString(w, b.String()); err != nil {
		return xerrors.Wrap(err, "write contracts.js")
	}
	return nil
}

// sortedMeta orders metadata by category rank, keeping catalog order within a category.
func (c *Catalog) sortedMeta() []Metadata {
	rank := make(map[string]int, len(Categories))
	for i, cat := range Categories {
		rank[cat] = i
	}
	out := c.Metadata("")
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := rank[out[i].Category]
		if !ok {
			ri = len(Categories)
		}
		rj, ok := rank[out[j].Category]
		if !ok {
			rj = len(Categories)
		}
		return ri < rj
	})
	return out
}
