// Package cryptoutil holds the small hashing helpers shared by the faucet:
// constant-time secret comparison for the admin key and SHA-256 digests for
// archived pool reports.
package cryptoutil
