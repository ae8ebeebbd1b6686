// Package faucethttp serves the faucet JSON API:
//
//	POST /api/mint            SBT or PNT mint, 2 per hour per type and address
//	POST /api/mint-usdt       mock USDT faucet, 5 per hour per address
//	POST /api/create-account  smart account deployment, 3 per hour per owner
//	GET|POST /api/init-pool   admin-only test pool builder
//	GET /api/contracts        contract catalog
//
// Validation runs before rate limiting, so malformed requests never consume
// quota; rejected requests are not recorded by the limiter.
package faucethttp
