// Package protocol owns wire contract primitives.
//
// Ownership boundary:
// - frame/ack codec (protocol/frame)
// - reliability parameters and sequence arithmetic (protocol/session)
package protocol
