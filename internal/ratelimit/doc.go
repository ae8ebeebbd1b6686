// Package ratelimit tracks per-key request history and admits or rejects
// requests against a quota inside a trailing time window.
//
// Keys are "{purpose}-{subject}", e.g. "sbt-0xAbC...". The window is sliding,
// not bucketed: a request is counted for exactly one window length after it
// was admitted. Rejected requests are never recorded, so hammering a key does
// not push its reset further out.
//
// Two backends implement Limiter:
//   - SlidingWindow keeps history in process memory. The quota is per process.
//   - RedisWindow runs the same algorithm atomically in Redis so every
//     replica shares one quota per key.
//
// ClientGuard is a separate coarse per-client-IP token bucket applied to the
// whole API as flood protection. It is not a faucet quota.
package ratelimit
