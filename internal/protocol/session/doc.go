// Package session owns stop-and-wait reliability parameters.
//
// Ownership boundary:
// - timeout/retry/backoff configuration
// - sequence arithmetic under a configurable modulus
//
// Engines in internal/arq consume Config; they never mutate it.
package session
