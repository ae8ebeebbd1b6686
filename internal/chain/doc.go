// Package chain talks to an EVM JSON-RPC endpoint on behalf of the faucet.
//
// It wraps go-ethereum's bind package with:
//   - Backend, the RPC surface (satisfied by *ethclient.Client)
//   - Signer, a hex private key (KeySigner) or an AWS KMS secp256k1 key (KMSSigner)
//   - Transactor, which serialises nonce assignment per signing account
//   - typed handles for the faucet and registry contracts
//
// Every call and transaction gets an OpenTelemetry span. Classify maps node
// errors to the few kinds the HTTP layer reports differently.
package chain
