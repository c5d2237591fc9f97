// Package keycheck answers "is this vendor API key live?" for the /validate
// endpoint and the check-key command.
//
// A key is first checked against the vendor's format locally. Only a
// well-formed key costs a network round trip: one minimal completion with a
// token budget of one. The outcome is classified as valid, rejected by the
// vendor, throttled (the vendor answered 429, which proves the key exists)
// or unverifiable.
//
// Confirmed verdicts are cached in a ristretto cache. Cache keys are a
// BLAKE2b-256 MAC of provider and key under a secret generated per process,
// so raw keys never sit in memory as map keys and digests are useless
// outside the process.
package keycheck
