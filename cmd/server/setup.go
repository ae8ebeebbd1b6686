package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aastar/faucet/internal/cfg"
	"github.com/aastar/faucet/internal/chain"
	"github.com/aastar/faucet/internal/contracts"
	"github.com/aastar/faucet/internal/faucet"
	"github.com/aastar/faucet/internal/keysource"
	"github.com/aastar/faucet/internal/log"
	"github.com/aastar/faucet/internal/metrics"
	"github.com/aastar/faucet/internal/poolreport"
	"github.com/aastar/faucet/internal/xerrors"
)

type faucetSetup struct {
	client     *chain.Client
	transactor *chain.Transactor
	service    *faucet.Service
	catalog    *contracts.Catalog
	adminKey   string
}

func (f *faucetSetup) close() {
	if f.client != nil {
		f.client.Close()
	}
}

func describeRef(ref string) string { return keysource.Describe(ref) }

func setupFaucet(ctx context.Context, L log.Logger, conf *cfg.App, m *metrics.ServerMetrics) (*faucetSetup, error) {
	out := &faucetSetup{}

	catalog, err := loadCatalog(conf.CatalogFile)
	if err != nil {
		return nil, err
	}
	out.catalog = catalog

	var (
		awsCfg  aws.Config
		haveAWS bool
	)
	if keysource.NeedsAWS(conf.SignerKey, conf.OwnerKey, conf.AdminKey) || conf.ReportS3Bucket != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
		haveAWS = true
	}

	resolver := &keysource.Resolver{}
	if haveAWS {
		resolver.SSM = ssm.NewFromConfig(awsCfg)
		resolver.KMS = kms.NewFromConfig(awsCfg)
	}

	client, err := chain.Dial(ctx, conf.RPCURL, conf.ChainID)
	if err != nil {
		return nil, err
	}
	out.client = client
	m.SetRPCUp(true)

	signer, err := resolver.Signer(ctx, conf.SignerKey)
	if err != nil {
		out.close()
		return nil, xerrors.Wrap(err, "resolve faucet signer")
	}
	out.transactor = chain.NewTransactor(client, signer, client.ChainIDValue(), conf.ConfirmTimeout)
	L.Info(ctx, "faucet signer ready",
		"address", signer.Address().Hex(),
		"signer_key_ref", keysource.Describe(conf.SignerKey),
		"chain_id", client.ChainIDValue().String(),
	)

	var owner common.Address
	if conf.OwnerKey != "" {
		s, err := resolver.Signer(ctx, conf.OwnerKey)
		if err != nil {
			out.close()
			return nil, xerrors.Wrap(err, "resolve default owner")
		}
		owner = s.Address()
		L.Info(ctx, "default account owner", "address", owner.Hex())
	}

	if conf.AdminKey != "" {
		out.adminKey, err = resolver.Secret(ctx, conf.AdminKey)
		if err != nil {
			out.close()
			return nil, xerrors.Wrap(err, "resolve init-pool admin key")
		}
	} else {
		L.Info(ctx, "no admin key configured, init-pool is disabled")
	}

	addrs := faucet.Addresses{
		SBT:         pick(catalog, conf.SBTAddress, "SBT"),
		PNT:         pick(catalog, conf.PNTAddress, "PNT"),
		USDT:        pick(catalog, conf.USDTAddress, "USDT"),
		Factory:     pick(catalog, conf.FactoryAddress, "SIMPLE_ACCOUNT_FACTORY"),
		PoolFactory: pick(catalog, conf.PoolFactoryAddress, "POOL_ACCOUNT_FACTORY"),
	}
	backends, err := faucet.BindChain(client, out.transactor, addrs)
	if err != nil {
		out.close()
		return nil, xerrors.Wrap(err, "bind contracts")
	}
	L.Info(ctx, "contracts bound",
		"sbt", addrs.SBT.Hex(),
		"pnt", addrs.PNT.Hex(),
		"usdt", addrs.USDT.Hex(),
		"factory", addrs.Factory.Hex(),
		"pool_factory", addrs.PoolFactory.Hex(),
	)

	var sinks poolreport.Multi
	if conf.ReportS3Bucket != "" {
		s, err := poolreport.NewS3Sink(s3.NewFromConfig(awsCfg), conf.ReportS3Bucket, conf.ReportS3Prefix)
		if err != nil {
			out.close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if conf.ReportDir != "" {
		sinks = append(sinks, poolreport.NewDirSink(conf.ReportDir))
	}
	pool := faucet.PoolOptions{
		DefaultSize: conf.PoolDefaultSize,
		MaxSize:     conf.PoolMaxSize,
		Interval:    conf.PoolInterval,
	}
	if len(sinks) > 0 {
		pool.Sink = sinks
	}

	opts := []faucet.Option{
		faucet.WithNetwork(conf.Network),
		faucet.WithPNTAmount(conf.PNTAmount),
		faucet.WithPool(pool),
		faucet.WithLogger(L.With("component", "faucet")),
		faucet.WithRecorder(m),
	}
	if owner != (common.Address{}) {
		opts = append(opts, faucet.WithDefaultOwner(owner))
	}
	out.service = faucet.New(backends, opts...)
	return out, nil
}

func loadCatalog(path string) (*contracts.Catalog, error) {
	if path == "" {
		return contracts.Load()
	}
	return contracts.LoadFile(path)
}

// pick prefers an explicit address and falls back to the catalog entry.
// Validate has already checked overrides are hex addresses.
func pick(c *contracts.Catalog, override, name string) common.Address {
	if override != "" {
		return common.HexToAddress(override)
	}
	a, _ := c.Address(name)
	return a
}
