package cli

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/community"
	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/keysource"
	"github.com/aastar/faucet/internal/ratelimit"
	"github.com/aastar/faucet/internal/xerrors"
)

func (a *App) catalog() (*contracts.Catalog, error) {
	if path := a.v.GetString("catalog-file"); path != "" {
		return contracts.LoadFile(path)
	}
	return contracts.Load()
}

// session is a connected chain client plus key resolution for one command.
type session struct {
	client   *chain.Client
	resolver *keysource.Resolver
	catalog  *contracts.Catalog
	timeout  time.Duration
}

// openSession dials the RPC. AWS clients are only loaded when one of refs
// needs them.
func (a *App) openSession(ctx context.Context, refs ...string) (*session, error) {
	cat, err := a.catalog()
	if err != nil {
		return nil, err
	}
	resolver := &keysource.Resolver{Getenv: a.getenv}
	if keysource.NeedsAWS(refs...) {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		resolver.SSM = ssm.NewFromConfig(awsCfg)
		resolver.KMS = kms.NewFromConfig(awsCfg)
	}

	rpcURL := a.ref("rpc-url")
	if rpcURL == "" {
		return nil, xerrors.New("--rpc-url (or SEPOLIA_RPC_URL) is required")
	}
	client, err := chain.Dial(ctx, rpcURL, a.v.GetInt64("chain-id"))
	if err != nil {
		return nil, err
	}
	a.lg().Debug(ctx, "rpc connected", "chain_id", client.ChainIDValue().String())
	return &session{
		client:   client,
		resolver: resolver,
		catalog:  cat,
		timeout:  a.v.GetDuration("confirm-timeout"),
	}, nil
}

func (s *session) close() { s.client.Close() }

// transactor resolves ref and binds it to the chain. flag names the option
// for the error when ref is empty.
func (s *session) transactor(ctx context.Context, ref, flag string) (*chain.Transactor, error) {
	if ref == "" {
		return nil, xerrors.Newf("--%s is required", flag)
	}
	signer, err := s.resolver.Signer(ctx, ref)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve --%s", flag)
	}
	return s.bind(signer), nil
}

func (s *session) bind(signer chain.Signer) *chain.Transactor {
	return chain.NewTransactor(s.client, signer, s.client.ChainIDValue(), s.timeout)
}

func (s *session) address(name string) (common.Address, error) {
	a, ok := s.catalog.Address(name)
	if !ok {
		return common.Address{}, xerrors.Newf("catalog has no %s entry", name)
	}
	return a, nil
}

// optional returns the catalog address or the zero address, which BindChain skips.
func (s *session) optional(name string) common.Address {
	a, _ := s.catalog.Address(name)
	return a
}

// manager binds the community contracts. source may be nil for read-only
// commands.
func (s *session) manager(source *chain.Transactor, a *App) (*community.Manager, error) {
	gtAddr, err := s.address("GTOKEN")
	if err != nil {
		return nil, err
	}
	stAddr, err := s.address("GTOKEN_STAKING")
	if err != nil {
		return nil, err
	}
	regAddr, err := s.address("REGISTRY")
	if err != nil {
		return nil, err
	}
	sbtAddr, err := s.address("MYSBT")
	if err != nil {
		return nil, err
	}

	gt, err := chain.NewToken("gtoken", gtAddr, s.client)
	if err != nil {
		return nil, err
	}
	staking, err := chain.NewStaking(stAddr, s.client)
	if err != nil {
		return nil, err
	}
	reg, err := chain.NewRegistry(regAddr, s.client)
	if err != nil {
		return nil, err
	}
	mysbt, err := chain.NewMySBT(sbtAddr, s.client)
	if err != nil {
		return nil, err
	}

	cfg := community.Config{
		GToken:     gt,
		Staking:    staking,
		Registry:   reg,
		MySBT:      mysbt,
		Source:     source,
		Signers:    s.resolver,
		Transactor: s.bind,
		Logger:     a.lg(),
		Now:        a.now,
	}
	return community.NewManager(cfg), nil
}

// redisLimiter opens a RedisWindow on a fresh client.
func redisLimiter(ctx context.Context, addr, prefix string, window time.Duration, max int) (ratelimit.Limiter, func() error, error) {
	if addr == "" {
		return nil, nil, xerrors.New("--redis-addr (or FAUCET_REDIS_ADDR) is required")
	}
	c, err := ratelimit.DialRedis(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisWindow(c, window, max, ratelimit.WithRedisPrefix(prefix)), c.Close, nil
}
